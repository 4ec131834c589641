// Package memory provides an in-process tenant directory for development and
// tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ratekl/api/internal/domain"
	"github.com/ratekl/api/internal/repository"
)

// Directory is a map-backed DirectoryRepository.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]domain.Domain
	now     func() time.Time
}

var _ repository.DirectoryRepository = (*Directory)(nil)

// NewDirectory returns a directory seeded with entries.
func NewDirectory(entries ...domain.Domain) *Directory {
	d := &Directory{entries: make(map[string]domain.Domain, len(entries)), now: time.Now}
	for _, e := range entries {
		e.Hostname = normalizeHost(e.Hostname)
		d.entries[e.Hostname] = e
	}
	return d
}

func (d *Directory) GetDomain(_ context.Context, hostname string) (*domain.Domain, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[normalizeHost(hostname)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (d *Directory) ListDomains(_ context.Context, filter domain.DomainFilter) ([]domain.Domain, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Domain, 0, len(d.entries))
	for _, e := range d.entries {
		if filter.Active != nil && e.Active != *filter.Active {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hostname < out[j].Hostname })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []domain.Domain{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (d *Directory) CountDomains(_ context.Context, active *bool) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var n int64
	for _, e := range d.entries {
		if active == nil || e.Active == *active {
			n++
		}
	}
	return n, nil
}

func (d *Directory) CreateDomain(_ context.Context, e *domain.Domain) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e.Hostname = normalizeHost(e.Hostname)
	if _, exists := d.entries[e.Hostname]; exists {
		return repository.ErrConflict
	}
	now := d.now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	d.entries[e.Hostname] = *e
	return nil
}

func (d *Directory) ReplaceDomain(_ context.Context, e *domain.Domain) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e.Hostname = normalizeHost(e.Hostname)
	current, ok := d.entries[e.Hostname]
	if !ok {
		return repository.ErrNotFound
	}
	e.CreatedAt = current.CreatedAt
	e.UpdatedAt = d.now().UTC()
	d.entries[e.Hostname] = *e
	return nil
}

func (d *Directory) UpdateDomain(_ context.Context, hostname string, patch domain.DomainPatch) error {
	if patch.Empty() {
		return errors.New("directory patch is empty")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	key := normalizeHost(hostname)
	e, ok := d.entries[key]
	if !ok {
		return repository.ErrNotFound
	}
	d.entries[key] = d.apply(e, patch)
	return nil
}

func (d *Directory) UpdateDomains(_ context.Context, active *bool, patch domain.DomainPatch) (int64, error) {
	if patch.Empty() {
		return 0, errors.New("directory patch is empty")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for key, e := range d.entries {
		if active != nil && e.Active != *active {
			continue
		}
		d.entries[key] = d.apply(e, patch)
		n++
	}
	return n, nil
}

func (d *Directory) apply(e domain.Domain, patch domain.DomainPatch) domain.Domain {
	if patch.Database != nil {
		e.Database = *patch.Database
	}
	if patch.Redirect != nil {
		e.Redirect = *patch.Redirect
	}
	if patch.Active != nil {
		e.Active = *patch.Active
	}
	e.UpdatedAt = d.now().UTC()
	return e
}

func (d *Directory) DeleteDomain(_ context.Context, hostname string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := normalizeHost(hostname)
	if _, ok := d.entries[key]; !ok {
		return repository.ErrNotFound
	}
	delete(d.entries, key)
	return nil
}

// Ping always succeeds.
func (d *Directory) Ping(context.Context) error { return nil }

func normalizeHost(hostname string) string {
	return strings.ToLower(strings.TrimSpace(hostname))
}
