// Package multitenant routes entity persistence to per-tenant collections
// resolved from the domain directory.
package multitenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ratekl/api/internal/domain"
	"github.com/ratekl/api/internal/repository"
	"github.com/ratekl/api/internal/schema"
	"github.com/ratekl/api/internal/store"
)

// DirectoryLookup resolves a hostname to its directory entry.
type DirectoryLookup interface {
	GetDomain(ctx context.Context, hostname string) (*domain.Domain, error)
}

// BoundField is a descriptor field with its nested entity handle attached.
type BoundField struct {
	schema.Field
	Target *Handle
}

// Handle is a tenant-scoped collection binding. Handles are built once per
// entity type and tenant key and are read-only once cached.
type Handle struct {
	EntityType     string
	TenantKey      string
	CollectionName string
	Database       string
	Collection     store.Collection
	Descriptor     schema.Descriptor
	Fields         []BoundField
	Strict         bool
	StrictDelete   bool
}

// Field returns the bound field with the given name.
func (h *Handle) Field(name string) (BoundField, bool) {
	for _, f := range h.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return BoundField{}, false
}

// CollectionName returns the cache key of an entity type for a tenant.
func CollectionName(entityType, tenantKey string) string {
	return entityType + "_app_" + strings.ReplaceAll(tenantKey, ".", "_")
}

// DirectoryHost maps a tenant key to the hostname stored in the directory.
func DirectoryHost(tenantKey string) string {
	return strings.TrimSuffix(tenantKey, ".local")
}

// ModelCache builds and caches tenant-scoped handles.
type ModelCache struct {
	backend   store.Backend
	directory DirectoryLookup
	registry  *schema.Registry
	logger    *slog.Logger
	metrics   *cacheMetrics

	mu      sync.RWMutex
	handles map[string]*Handle
	group   singleflight.Group
}

// NewModelCache constructs a cache. Metrics are off unless WithMetrics is
// passed.
func NewModelCache(backend store.Backend, directory DirectoryLookup, registry *schema.Registry, logger *slog.Logger, opts ...Option) *ModelCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &ModelCache{
		backend:   backend,
		directory: directory,
		registry:  registry,
		logger:    logger.With("component", "model_cache"),
		handles:   make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry exposes the descriptor registry the cache resolves references in.
func (c *ModelCache) Registry() *schema.Registry {
	return c.registry
}

// Handle returns the handle of descriptor for tenantKey, building it on first
// use. Unknown tenants fail with *repository.TenantNotFoundError.
func (c *ModelCache) Handle(ctx context.Context, descriptor schema.Descriptor, tenantKey string) (*Handle, error) {
	name := CollectionName(descriptor.Name, tenantKey)
	if h := c.cached(name); h != nil {
		c.metrics.hit(descriptor.Name)
		return h, nil
	}
	c.metrics.miss(descriptor.Name)

	// Shared builds must not fail because the first caller went away.
	buildCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(name, func() (any, error) {
		if h := c.cached(name); h != nil {
			return h, nil
		}
		entry, err := c.lookup(buildCtx, tenantKey)
		if err != nil {
			return nil, err
		}
		return c.resolve(buildCtx, descriptor, tenantKey, entry, map[string]*Handle{})
	})
	if err != nil {
		c.metrics.build(descriptor.Name, err)
		return nil, err
	}
	return v.(*Handle), nil
}

// Invalidate drops every cached handle of a tenant so that the next access
// re-reads the directory. Handles of other tenants are never touched, even
// when their key ends with tenantKey.
func (c *ModelCache) Invalidate(tenantKey string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for _, entityType := range c.registry.Names() {
		name := CollectionName(entityType, tenantKey)
		if _, ok := c.handles[name]; ok {
			delete(c.handles, name)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Info("tenant handles invalidated", "tenant", tenantKey, "count", removed)
	}
	return removed
}

// Len returns the number of cached handles.
func (c *ModelCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handles)
}

func (c *ModelCache) cached(name string) *Handle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handles[name]
}

func (c *ModelCache) lookup(ctx context.Context, tenantKey string) (*domain.Domain, error) {
	host := DirectoryHost(tenantKey)
	if host == "" {
		return nil, &repository.TenantNotFoundError{Tenant: tenantKey}
	}
	entry, err := c.directory.GetDomain(ctx, host)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &repository.TenantNotFoundError{Tenant: tenantKey}
		}
		return nil, fmt.Errorf("lookup tenant %q: %w", tenantKey, err)
	}
	if entry == nil || entry.Database == "" {
		return nil, &repository.TenantNotFoundError{Tenant: tenantKey}
	}
	return entry, nil
}

// resolve returns a handle for descriptor, reusing cached or in-flight
// handles. inflight holds placeholders registered before nested fields are
// resolved so that cyclic references terminate.
func (c *ModelCache) resolve(ctx context.Context, descriptor schema.Descriptor, tenantKey string, entry *domain.Domain, inflight map[string]*Handle) (*Handle, error) {
	name := CollectionName(descriptor.Name, tenantKey)
	if h := c.cached(name); h != nil {
		return h, nil
	}
	if h, ok := inflight[name]; ok {
		return h, nil
	}

	h := &Handle{
		EntityType:     descriptor.Name,
		TenantKey:      tenantKey,
		CollectionName: name,
		Database:       entry.Database,
		Collection: store.Collection{
			Database: entry.Database,
			Name:     descriptor.Name,
			IDField:  descriptor.IDField,
		},
		Descriptor:   descriptor,
		Strict:       true,
		StrictDelete: false,
	}
	inflight[name] = h

	fields := make([]BoundField, 0, len(descriptor.Fields))
	for _, f := range descriptor.Fields {
		bound := BoundField{Field: f}
		if ref, ok := f.References(); ok {
			target, found := c.registry.Get(ref)
			if !found {
				return nil, fmt.Errorf("%s.%s: unknown entity type %q", descriptor.Name, f.Name, ref)
			}
			nested, err := c.resolve(ctx, target, tenantKey, entry, inflight)
			if err != nil {
				return nil, err
			}
			bound.Target = nested
		}
		fields = append(fields, bound)
	}
	h.Fields = fields

	indexes := make([]store.Index, 0)
	for _, f := range descriptor.IndexedFields() {
		indexes = append(indexes, store.Index{Field: f.Name, Unique: f.Unique})
	}
	if err := c.backend.EnsureCollection(ctx, h.Collection, indexes); err != nil {
		return nil, fmt.Errorf("ensure collection %s: %w", name, err)
	}

	c.mu.Lock()
	c.handles[name] = h
	c.mu.Unlock()
	c.metrics.build(descriptor.Name, nil)
	c.logger.Debug("collection handle built", "collection", name, "database", entry.Database)
	return h, nil
}
