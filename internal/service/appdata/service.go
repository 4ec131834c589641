package appdata

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ratekl/api/internal/activity"
	"github.com/ratekl/api/internal/domain"
	"github.com/ratekl/api/internal/repository"
	"github.com/ratekl/api/internal/repository/multitenant"
	"github.com/ratekl/api/internal/schema"
	"github.com/ratekl/api/internal/service/notify"
	"github.com/ratekl/api/internal/store"
	"github.com/ratekl/api/internal/tenant"
)

// Notifier accepts write events for background notification.
type Notifier interface {
	Submit(notify.Event)
}

// Feed publishes new records to live subscribers of a tenant.
type Feed interface {
	Broadcast(tenant string, payload []byte) bool
}

// Service exposes tenant content.
type Service struct {
	data     *multitenant.Repository[domain.AppData]
	tracker  *activity.Tracker
	notifier Notifier
	feed     Feed
	logger   *slog.Logger
	now      func() time.Time
}

// New returns an AppData service. notifier and feed may be nil.
func New(data *multitenant.Repository[domain.AppData], tracker *activity.Tracker, notifier Notifier, feed Feed, logger *slog.Logger) Service {
	return Service{data: data, tracker: tracker, notifier: notifier, feed: feed, logger: logger, now: time.Now}
}

// Create persists record and hands it to the notifier and the live feed. The
// record is stored before either sees it.
func (s Service) Create(ctx context.Context, caller domain.Principal, record domain.AppData) (domain.AppData, error) {
	now := s.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
	if record.Owner == "" {
		record.Owner = caller.ID
	}
	created, err := s.data.Create(ctx, record)
	if err != nil {
		return domain.AppData{}, err
	}
	tenantKey, _ := tenant.KeyFromContext(ctx)
	if s.notifier != nil {
		s.notifier.Submit(notify.Event{Tenant: tenantKey, Record: created, Actor: caller})
	}
	if s.feed != nil {
		if payload, err := json.Marshal(created); err == nil {
			if !s.feed.Broadcast(tenantKey, payload) {
				s.logger.Warn("feed saturated, record not broadcast", "tenant", tenantKey, "name", created.Name)
			}
		}
	}
	s.logger.Info("app data created", "tenant", tenantKey, "name", created.Name, "type", created.Type)
	return created, nil
}

// Find returns matching records. Reading the post feed marks the caller's
// posts as seen.
func (s Service) Find(ctx context.Context, caller domain.Principal, filter store.Filter) ([]domain.AppData, error) {
	if ReadsPosts(filter.Where) {
		tenantKey, _ := tenant.KeyFromContext(ctx)
		s.tracker.SetActivity(tenantKey, caller.Key(), activity.KindPost, schema.FormatTime(s.now()))
	}
	return s.data.Find(ctx, filter)
}

// ReadsPosts reports whether where selects type "post" either directly or
// through an eq operator.
func ReadsPosts(where store.Where) bool {
	v, ok := where.Literal("type")
	if !ok {
		return false
	}
	typ, _ := v.(string)
	return typ == domain.TypePost
}

// FindPublic returns matching records readable without authentication.
// Relations are never resolved on public reads.
func (s Service) FindPublic(ctx context.Context, filter store.Filter) ([]domain.AppData, error) {
	filter.Where = publicOnly(filter.Where)
	filter.Include = nil
	records, err := s.data.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i] = records[i].Public()
	}
	return records, nil
}

// FindPublicByID returns a public record or not-found.
func (s Service) FindPublicByID(ctx context.Context, id string, filter store.Filter) (domain.AppData, error) {
	filter.Include = nil
	record, err := s.data.FindByID(ctx, id, filter)
	if err != nil {
		return domain.AppData{}, err
	}
	if record.Access != domain.AccessPublic {
		return domain.AppData{}, &repository.EntityNotFoundError{Entity: domain.EntityAppData, ID: id}
	}
	return record.Public(), nil
}

func publicOnly(where store.Where) store.Where {
	out := make(store.Where, len(where)+1)
	for k, v := range where {
		out[k] = v
	}
	out["access"] = domain.AccessPublic
	return out
}

// FindByID returns one record.
func (s Service) FindByID(ctx context.Context, id string, filter store.Filter) (domain.AppData, error) {
	return s.data.FindByID(ctx, id, filter)
}

// Count returns the number of matching records.
func (s Service) Count(ctx context.Context, where store.Where) (int64, error) {
	return s.data.Count(ctx, where)
}

// UpdateAll patches every matching record.
func (s Service) UpdateAll(ctx context.Context, patch store.Document, where store.Where) (int64, error) {
	return s.data.UpdateAll(ctx, s.touch(patch), where)
}

// UpdateByID patches one record.
func (s Service) UpdateByID(ctx context.Context, id string, patch store.Document) error {
	return s.data.UpdateByID(ctx, id, s.touch(patch))
}

// ReplaceByID overwrites one record.
func (s Service) ReplaceByID(ctx context.Context, id string, record domain.AppData) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = s.now().UTC()
	}
	return s.data.ReplaceByID(ctx, id, record)
}

// DeleteByID removes one record.
func (s Service) DeleteByID(ctx context.Context, id string) error {
	return s.data.DeleteByID(ctx, id)
}

// touch stamps updatedAt on a non-empty patch. Empty patches pass through so
// the repository rejects them.
func (s Service) touch(patch store.Document) store.Document {
	if len(patch) == 0 {
		return patch
	}
	if _, ok := patch["updatedAt"]; ok {
		return patch
	}
	out := patch.Clone()
	out["updatedAt"] = s.now().UTC()
	return out
}
