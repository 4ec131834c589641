// Package notify sends push notifications for new posts, comments and
// referrals without blocking the write that triggered them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ratekl/api/internal/activity"
	"github.com/ratekl/api/internal/domain"
	"github.com/ratekl/api/internal/push"
	"github.com/ratekl/api/internal/schema"
	"github.com/ratekl/api/internal/store"
	"github.com/ratekl/api/internal/tenant"
)

// FeaturePushBasic gates every notification of a tenant.
const FeaturePushBasic = "pushBasic"

// DataRepository reads tenant content.
type DataRepository interface {
	Find(ctx context.Context, filter store.Filter) ([]domain.AppData, error)
}

// MemberRepository reads tenant members.
type MemberRepository interface {
	Find(ctx context.Context, filter store.Filter) ([]domain.AppMember, error)
	FindByID(ctx context.Context, id string, filter store.Filter) (domain.AppMember, error)
}

// InfoRepository reads tenant site configuration.
type InfoRepository interface {
	FindOne(ctx context.Context, filter store.Filter) (*domain.AppInfo, error)
}

// Event is a persisted AppData write that may notify members.
type Event struct {
	ID     string
	Tenant string
	Record domain.AppData
	Actor  domain.Principal
}

// Config tunes the dispatcher.
type Config struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Dispatcher processes events on background workers.
type Dispatcher struct {
	data    DataRepository
	members MemberRepository
	info    InfoRepository
	tracker *activity.Tracker
	sender  push.Sender
	logger  *slog.Logger
	cfg     Config
	queue   chan Event
	metrics *dispatchMetrics
	wg      sync.WaitGroup
	now     func() time.Time
}

// New constructs a dispatcher. Call Run to start processing.
func New(data DataRepository, members MemberRepository, info InfoRepository, tracker *activity.Tracker, sender push.Sender, logger *slog.Logger, cfg Config, reg prometheus.Registerer) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		data:    data,
		members: members,
		info:    info,
		tracker: tracker,
		sender:  sender,
		logger:  logger.With("component", "notify"),
		cfg:     cfg,
		queue:   make(chan Event, cfg.QueueSize),
		metrics: newDispatchMetrics(reg),
		now:     time.Now,
	}
}

// Submit queues ev for processing. It never blocks: when the queue is full
// the event is dropped.
func (d *Dispatcher) Submit(ev Event) {
	if !Notifies(ev.Record.Type) {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	select {
	case d.queue <- ev:
		d.metrics.observe("queued")
	default:
		d.metrics.observe("dropped")
		d.logger.Warn("notification queue full, event dropped", "event_id", ev.ID, "tenant", ev.Tenant, "type", ev.Record.Type)
	}
}

// Notifies reports whether records of type trigger notifications.
func Notifies(recordType string) bool {
	switch recordType {
	case domain.TypePost, domain.TypeComment, domain.TypeReferral:
		return true
	}
	return false
}

// Run starts the workers and blocks until ctx is cancelled and the workers
// have drained.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("notification dispatcher started", "workers", d.cfg.Workers, "queue", d.cfg.QueueSize)
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	<-ctx.Done()
	d.wg.Wait()
	d.logger.Info("notification dispatcher stopped")
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.Process(ev)
		}
	}
}

// Process handles one event synchronously. Errors and panics are logged and
// swallowed.
func (d *Dispatcher) Process(ev Event) {
	ctx, cancel := context.WithTimeout(tenant.WithKey(context.Background(), ev.Tenant), d.cfg.Timeout)
	defer cancel()
	logger := d.logger.With("event_id", ev.ID, "tenant", ev.Tenant, "type", ev.Record.Type, "record", ev.Record.Name)
	defer func() {
		if rec := recover(); rec != nil {
			d.metrics.observe("panic")
			logger.Error("notification panic", "panic", rec, "stack", string(debug.Stack()))
		}
	}()
	sent, err := d.process(ctx, ev, logger)
	if err != nil {
		d.metrics.observe("failed")
		logger.Error("notification failed", "error", err)
		return
	}
	d.metrics.observe("processed")
	logger.Debug("notification processed", "sent", sent)
}

var errSkip = errors.New("notification skipped")

func (d *Dispatcher) process(ctx context.Context, ev Event, logger *slog.Logger) (int, error) {
	if !Notifies(ev.Record.Type) {
		return 0, nil
	}
	info, err := d.info.FindOne(ctx, store.Filter{Where: store.Where{"draft": true}})
	if err != nil {
		return 0, fmt.Errorf("load site configuration: %w", err)
	}
	if info == nil || !info.Feature(FeaturePushBasic) {
		logger.Debug("push disabled for tenant")
		return 0, nil
	}
	actor, err := d.members.FindByID(ctx, ev.Actor.Key(), store.Filter{})
	if err != nil {
		return 0, fmt.Errorf("load acting member %q: %w", ev.Actor.Key(), err)
	}
	recipients, err := d.recipients(ctx, ev, actor)
	if err != nil {
		if errors.Is(err, errSkip) {
			logger.Debug("no recipient", "reason", err)
			return 0, nil
		}
		return 0, err
	}
	body, data, threadID := compose(ev.Record, actor)
	title := info.Title()

	sent := 0
	for _, member := range recipients {
		token := member.PushToken()
		if token == "" {
			continue
		}
		badge, err := d.badge(ctx, ev.Tenant, member)
		if err != nil {
			logger.Warn("unread count failed", "member", member.UserName, "error", err)
		}
		d.sender.Send(ctx, push.Message{
			Token:    token,
			Title:    title,
			Body:     body,
			Data:     data,
			ThreadID: threadID,
			Badge:    badge,
		}, push.PlatformOf(member.PushType()))
		sent++
	}
	return sent, nil
}

func (d *Dispatcher) recipients(ctx context.Context, ev Event, actor domain.AppMember) ([]domain.AppMember, error) {
	if ev.Record.Type == domain.TypeReferral {
		name := ev.Record.DataString("recipient")
		if name == "" {
			return nil, fmt.Errorf("%w: referral %q names no recipient", errSkip, ev.Record.Name)
		}
		member, err := d.members.FindByID(ctx, name, store.Filter{})
		if err != nil {
			return nil, fmt.Errorf("load referral recipient %q: %w", name, err)
		}
		return []domain.AppMember{member}, nil
	}
	members, err := d.members.Find(ctx, store.Filter{
		Where: store.Where{"userName": map[string]any{store.OpNeq: actor.UserName}},
	})
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	return members, nil
}

// badge counts posts and comments newer than the member's last-seen post
// marker and advances the marker to the newest of them.
func (d *Dispatcher) badge(ctx context.Context, tenantKey string, member domain.AppMember) (int, error) {
	user := activity.UserKey(member.Email, member.UserName)
	lastSeen := d.tracker.GetActivityByUser(tenantKey, user, activity.KindPost)
	if lastSeen == "" {
		return 0, nil
	}
	since, err := schema.ParseTime(lastSeen)
	if err != nil {
		return 0, fmt.Errorf("parse last seen %q: %w", lastSeen, err)
	}
	unread, err := d.data.Find(ctx, store.Filter{
		Where: store.Where{
			"createdAt": map[string]any{store.OpGt: since},
			"type":      map[string]any{store.OpInq: []any{domain.TypePost, domain.TypeComment}},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("load unread: %w", err)
	}
	var newest time.Time
	for _, item := range unread {
		if item.CreatedAt.After(newest) {
			newest = item.CreatedAt
		}
	}
	if !newest.IsZero() {
		d.tracker.Advance(tenantKey, user, activity.KindPost, lastSeenMarker(newest))
	}
	return len(unread), nil
}

// lastSeenMarker renders ts so that it parses back to an instant no earlier
// than ts. Sub-millisecond digits are kept when present.
func lastSeenMarker(ts time.Time) string {
	if ts.Equal(ts.Truncate(time.Millisecond)) {
		return schema.FormatTime(ts)
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

// compose builds the body, data payload and thread id of a notification.
func compose(record domain.AppData, actor domain.AppMember) (string, map[string]string, string) {
	from := actor.DisplayName()
	switch record.Type {
	case domain.TypePost:
		return "New message from " + from, map[string]string{"postId": record.Name}, ""
	case domain.TypeComment:
		return "New comment from " + from, map[string]string{"commentId": record.Name}, record.DataString("itemName")
	default:
		return "You have a new referral from " + from, map[string]string{"commentId": record.Name}, referralThread(record)
	}
}

func referralThread(record domain.AppData) string {
	if name := record.DataString("preferredName"); name != "" {
		return name
	}
	if first := record.DataString("firstName"); first != "" {
		return first + " " + record.DataString("lastName")
	}
	return record.DataString("message")
}
