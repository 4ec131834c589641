package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/ratekl/api/internal/activity"
	"github.com/ratekl/api/internal/app/migrate"
	"github.com/ratekl/api/internal/domain"
	httpx "github.com/ratekl/api/internal/http"
	"github.com/ratekl/api/internal/push"
	"github.com/ratekl/api/internal/repository"
	"github.com/ratekl/api/internal/repository/memory"
	"github.com/ratekl/api/internal/repository/multitenant"
	"github.com/ratekl/api/internal/repository/postgres"
	"github.com/ratekl/api/internal/service/appdata"
	"github.com/ratekl/api/internal/service/appinfo"
	"github.com/ratekl/api/internal/service/auth"
	"github.com/ratekl/api/internal/service/directory"
	"github.com/ratekl/api/internal/service/member"
	"github.com/ratekl/api/internal/service/notify"
	"github.com/ratekl/api/internal/store"
	"github.com/ratekl/api/internal/store/memstore"
	mongostore "github.com/ratekl/api/internal/store/mongo"
	"github.com/ratekl/api/internal/tenant"
	"github.com/ratekl/api/internal/ws"
	"github.com/ratekl/api/pkg/config"
	"github.com/ratekl/api/pkg/logger"
)

type closer func(context.Context) error

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("load .env", "error", err)
	}
	cfg := config.LoadAPIConfig()
	log := logger.New("api", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	health := map[string]httpx.HealthCheck{}
	var closers []closer

	var domains repository.DirectoryRepository
	var backend store.Backend
	if cfg.StorageBackend == config.StorageMemory {
		log.Warn("using in-memory storage; data is lost on restart")
		domains = memory.NewDirectory()
		backend = memstore.New()
	} else {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		closers = append(closers, func(context.Context) error { pool.Close(); return nil })
		if err := pool.Ping(ctx); err != nil {
			log.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		if err := applyMigrations(ctx, cfg, log); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		dir := postgres.New(pool)
		domains = dir
		health["database"] = dir.Ping

		mongoBackend, err := mongostore.Connect(ctx, cfg.MongoURL, log)
		if err != nil {
			log.Error("failed to connect to mongodb", "error", err)
			os.Exit(1)
		}
		closers = append(closers, mongoBackend.Close)
		health["mongo"] = mongoBackend.Ping
		backend = mongoBackend
	}

	cache := multitenant.NewModelCache(backend, domains, domain.Schemas(), log, multitenant.WithMetrics(reg))
	dataRepo := multitenant.NewRepository[domain.AppData](cache, domain.AppDataSchema)
	memberRepo := multitenant.NewRepository[domain.AppMember](cache, domain.AppMemberSchema)
	infoRepo := multitenant.NewRepository[domain.AppInfo](cache, domain.AppInfoSchema)

	tracker := activity.NewTracker()
	hub := ws.NewHub()
	go hub.Run(ctx)

	dispatcher := notify.New(dataRepo, memberRepo, infoRepo, tracker, newSender(ctx, cfg, log, reg), log, notify.Config{
		Workers:   cfg.NotifyWorkers,
		QueueSize: cfg.NotifyQueueSize,
		Timeout:   cfg.NotifyTimeout,
	}, reg)
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(ctx)
	}()

	members := member.New(memberRepo, log)
	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(httpx.Deps{
		Logger:     log,
		Resolver:   tenant.NewResolver(tenant.DefaultPolicy(cfg.PreviewProduct)),
		Auth:       auth.New(members, log, cfg),
		AppData:    appdata.New(dataRepo, tracker, dispatcher, hub, log),
		Members:    members,
		AppInfo:    appinfo.New(infoRepo, log),
		Directory:  directory.New(domains, cache, log),
		Tracker:    tracker,
		Hub:        hub,
		Limiter:    limiter,
		Registerer: reg,
		Gatherer:   reg,
		Health:     health,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "storage", cfg.StorageBackend, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	stop()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		log.Warn("notification workers did not drain before shutdown deadline")
	}
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i](shutdownCtx))
	}
	if err != nil {
		log.Error("graceful shutdown incomplete", "error", err)
	}
	log.Info("api server stopped")
}

func applyMigrations(ctx context.Context, cfg config.APIConfig, log *slog.Logger) error {
	runner, err := migrate.New(cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		return err
	}
	return multierr.Append(runner.Up(ctx), runner.Close())
}

func newSender(ctx context.Context, cfg config.APIConfig, log *slog.Logger, reg prometheus.Registerer) push.Sender {
	if cfg.FirebaseAccountIOS == "" && cfg.FirebaseAccountAnd == "" {
		log.Info("push credentials not configured; notifications are logged only")
		return push.LogSender{Logger: log.With("component", "push")}
	}
	sender, err := push.NewFCMSender(ctx, cfg.FirebaseAccountIOS, cfg.FirebaseAccountAnd, log, reg)
	if err != nil {
		log.Warn("fcm sender unavailable; notifications are logged only", "error", err)
		return push.LogSender{Logger: log.With("component", "push")}
	}
	return sender
}
