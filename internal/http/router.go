package httpx

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ratekl/api/internal/activity"
	"github.com/ratekl/api/internal/service/appdata"
	"github.com/ratekl/api/internal/service/appinfo"
	"github.com/ratekl/api/internal/service/auth"
	"github.com/ratekl/api/internal/service/directory"
	"github.com/ratekl/api/internal/service/member"
	"github.com/ratekl/api/internal/tenant"
	"github.com/ratekl/api/internal/ws"
)

// HealthCheck probes one dependency.
type HealthCheck func(context.Context) error

// Deps carries everything the router serves.
type Deps struct {
	Logger    *slog.Logger
	Resolver  *tenant.Resolver
	Auth      auth.Service
	AppData   appdata.Service
	Members   member.Service
	AppInfo   appinfo.Service
	Directory directory.Service
	Tracker   *activity.Tracker
	Hub       *ws.Hub
	Limiter   RateLimiter
	// Registerer receives the HTTP metrics and Gatherer backs /metrics.
	// Both default to the prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Health     map[string]HealthCheck
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	resolver  *tenant.Resolver
	auth      auth.Service
	appData   appdata.Service
	members   member.Service
	appInfo   appinfo.Service
	directory directory.Service
	tracker   *activity.Tracker
	hub       *ws.Hub
	upgrader  websocket.Upgrader
	limiter   RateLimiter
	metrics   *routerMetrics
	gatherer  prometheus.Gatherer
	health    map[string]HealthCheck
}

const (
	rateWindowDefault   = time.Minute
	rateWindowRealtime  = 30 * time.Second
	rateLimitLogin      = 12
	rateLimitUserWrite  = 120
	rateLimitUserRead   = 240
	rateLimitPublicRead = 240
	rateLimitWebsocket  = 30
	healthCheckTimeout  = 2 * time.Second
	sseHeartbeat        = 20 * time.Second
	wsPingInterval      = 30 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(deps Deps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = tenant.NewResolver(nil)
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = activity.NewTracker()
	}
	reg := deps.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger.With("component", "http"),
		resolver:  resolver,
		auth:      deps.Auth,
		appData:   deps.AppData,
		members:   deps.Members,
		appInfo:   deps.AppInfo,
		directory: deps.Directory,
		tracker:   tracker,
		hub:       deps.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  deps.Limiter,
		metrics:  newRouterMetrics(reg),
		gatherer: gatherer,
		health:   deps.Health,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("GET /healthz", r.audit(r.handleHealthz))
	r.mux.Handle("GET /metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	r.mux.HandleFunc("GET /ping", r.audit(r.handlePing))

	r.mux.HandleFunc("POST /auth-v2", r.audit(r.withTenant(r.withRateLimit("auth", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin))))

	r.registerAppData()
	r.registerMembers()
	r.registerAppInfo()
	r.registerDomains()

	r.mux.HandleFunc("GET /activity-v2", r.audit(r.handlerAuthRate("activity", rateLimitUserRead, rateWindowDefault, r.handleActivityGet)))
	r.mux.HandleFunc("PUT /activity-v2", r.audit(r.handlerAuthRate("activity", rateLimitUserWrite, rateWindowDefault, r.handleActivityPut)))

	r.mux.HandleFunc("GET /ws/feed", r.audit(r.handlerAuthRate("feed", rateLimitWebsocket, rateWindowRealtime, r.handleFeedWS)))
	r.mux.HandleFunc("GET /sse/feed", r.audit(r.handlerAuthRate("feed", rateLimitWebsocket, rateWindowRealtime, r.handleFeedSSE)))
}

func (r *Router) read(route string, next http.HandlerFunc) http.HandlerFunc {
	return r.audit(r.handlerAuthRate(route, rateLimitUserRead, rateWindowDefault, next))
}

func (r *Router) write(route string, next http.HandlerFunc) http.HandlerFunc {
	return r.audit(r.handlerAuthRate(route, rateLimitUserWrite, rateWindowDefault, next))
}

func (r *Router) public(route string, next http.HandlerFunc) http.HandlerFunc {
	return r.audit(r.handlerPublicRate(route, rateLimitPublicRead, rateWindowDefault, next))
}

// admin guards directory routes, which are not tenant scoped.
func (r *Router) admin(route string, limit int, next http.HandlerFunc) http.HandlerFunc {
	return r.audit(r.requireAuth(r.withRateLimit(route, limit, rateWindowDefault, rateLimitKeyUser, next)))
}

func (r *Router) handlePing(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339Nano)})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]any)
	status := "ok"
	names := make([]string, 0, len(r.health))
	for name := range r.health {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		err := r.health[name](ctx)
		cancel()
		if err != nil {
			status = "degraded"
			components[name] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
			continue
		}
		components[name] = map[string]any{"status": "up"}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		reqID := strings.TrimSpace(req.Header.Get("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		route := req.Pattern
		if route == "" {
			route = req.URL.Path
		}
		r.metrics.recordRequest(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		fields = append(fields, "request_id", reqID)
		if key, ok := tenant.KeyFromContext(ctx); ok {
			fields = append(fields, "tenant", key)
		}
		if caller, ok := principalFromContext(ctx); ok {
			actor = "member"
			fields = append(fields, "user_id", caller.ID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// SetContext lets inner middleware report the enriched request context.
// Only the innermost call matters, so later calls win.
func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}
