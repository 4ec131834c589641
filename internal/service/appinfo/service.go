package appinfo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ratekl/api/internal/domain"
	"github.com/ratekl/api/internal/repository/multitenant"
	"github.com/ratekl/api/internal/store"
)

var (
	// ErrNoPrevious reports a revert with no previously published version.
	ErrNoPrevious = errors.New("appinfo: previous published instance not found")

	errMissingName = errors.New("appinfo: name required")
)

// Service manages versioned site configuration.
type Service struct {
	infos  *multitenant.Repository[domain.AppInfo]
	logger *slog.Logger
	now    func() time.Time
}

// New returns an AppInfo service.
func New(infos *multitenant.Repository[domain.AppInfo], logger *slog.Logger) Service {
	return Service{infos: infos, logger: logger, now: time.Now}
}

// Publish makes name the live version. The version live before becomes the
// previous one, and the version that was previous moves to history. It
// returns the number of records touched.
func (s Service) Publish(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errMissingName
	}
	if _, err := s.infos.FindByID(ctx, name, store.Filter{}); err != nil {
		return 0, err
	}
	var count int64
	live, err := s.infos.FindOne(ctx, store.Filter{Fields: []string{"name"}, Where: store.Where{"published": true}})
	if err != nil {
		return 0, err
	}
	if live != nil {
		if err := s.infos.UpdateByID(ctx, live.Name, store.Document{"previous": true}); err != nil {
			return count, fmt.Errorf("mark %q previous: %w", live.Name, err)
		}
		count++
	}

	if err := s.infos.UpdateByID(ctx, name, store.Document{
		"published":     true,
		"publishedDate": s.now().UTC(),
		"draft":         false,
		"previous":      false,
		"history":       false,
	}); err != nil {
		return count, fmt.Errorf("publish %q: %w", name, err)
	}
	count++

	n, err := s.infos.UpdateAll(ctx, store.Document{"published": false}, store.Where{
		"name": map[string]any{store.OpNeq: name},
	})
	if err != nil {
		return count, fmt.Errorf("unpublish others: %w", err)
	}
	count += n

	stale := store.Where{"previous": true}
	if live != nil {
		stale["name"] = map[string]any{store.OpNeq: live.Name}
	}
	n, err = s.infos.UpdateAll(ctx, store.Document{"previous": false, "history": true}, stale)
	if err != nil {
		return count, fmt.Errorf("archive previous: %w", err)
	}
	count += n

	s.logger.Info("app info published", "name", name, "updated", count)
	return count, nil
}

// Revert brings the previous version back live and demotes the current one
// to previous.
func (s Service) Revert(ctx context.Context, name string) (int64, error) {
	previous, err := s.infos.FindOne(ctx, store.Filter{Fields: []string{"name"}, Where: store.Where{"previous": true}})
	if err != nil {
		return 0, err
	}
	if previous == nil {
		return 0, fmt.Errorf("revert %q: %w", name, ErrNoPrevious)
	}
	var count int64
	if err := s.infos.UpdateByID(ctx, previous.Name, store.Document{"published": true, "previous": false}); err != nil {
		return count, fmt.Errorf("restore %q: %w", previous.Name, err)
	}
	count++

	n, err := s.infos.UpdateAll(ctx, store.Document{"published": false, "previous": true}, store.Where{
		"name":      map[string]any{store.OpNeq: previous.Name},
		"published": true,
	})
	if err != nil {
		return count, fmt.Errorf("demote live: %w", err)
	}
	count += n

	s.logger.Info("app info reverted", "requested", name, "restored", previous.Name, "updated", count)
	return count, nil
}

// Create stores a new version; unset flags take their defaults.
func (s Service) Create(ctx context.Context, info domain.AppInfo) (domain.AppInfo, error) {
	return s.infos.Create(ctx, info)
}

// Find returns matching versions.
func (s Service) Find(ctx context.Context, filter store.Filter) ([]domain.AppInfo, error) {
	return s.infos.Find(ctx, filter)
}

// FindByID returns one version.
func (s Service) FindByID(ctx context.Context, name string, filter store.Filter) (domain.AppInfo, error) {
	return s.infos.FindByID(ctx, name, filter)
}

// Count returns the number of matching versions.
func (s Service) Count(ctx context.Context, where store.Where) (int64, error) {
	return s.infos.Count(ctx, where)
}

// UpdateAll patches every matching version.
func (s Service) UpdateAll(ctx context.Context, patch store.Document, where store.Where) (int64, error) {
	return s.infos.UpdateAll(ctx, patch, where)
}

// UpdateByID patches one version.
func (s Service) UpdateByID(ctx context.Context, name string, patch store.Document) error {
	return s.infos.UpdateByID(ctx, name, patch)
}

// ReplaceByID overwrites one version.
func (s Service) ReplaceByID(ctx context.Context, name string, info domain.AppInfo) error {
	return s.infos.ReplaceByID(ctx, name, info)
}

// DeleteByID removes one version.
func (s Service) DeleteByID(ctx context.Context, name string) error {
	return s.infos.DeleteByID(ctx, name)
}
