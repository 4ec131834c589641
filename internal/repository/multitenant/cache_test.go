package multitenant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratekl/api/internal/domain"
	"github.com/ratekl/api/internal/repository"
	"github.com/ratekl/api/internal/schema"
	"github.com/ratekl/api/internal/store/memstore"
)

func cyclicSchemas(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry(
		schema.Descriptor{
			Name:    "Thread",
			IDField: "id",
			Fields: []schema.Field{
				{Name: "title", Type: schema.String, Indexed: true},
				{Name: "replies", Type: schema.Array, ItemType: schema.Entity, ItemRef: "Reply"},
			},
			Settings: schema.Settings{Strict: true},
		},
		schema.Descriptor{
			Name:    "Reply",
			IDField: "id",
			Fields: []schema.Field{
				{Name: "body", Type: schema.String},
				{Name: "thread", Type: schema.Entity, Ref: "Thread"},
			},
			Settings: schema.Settings{Strict: true},
		},
	)
	require.NoError(t, err)
	return reg
}

func TestHandleBindsTenantCollection(t *testing.T) {
	dir := standardDirectory()
	cache := NewModelCache(memstore.New(), dir, domain.Schemas(), discardLogger())

	h, err := cache.Handle(context.Background(), domain.AppDataSchema, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "AppData_app_acme_com", h.CollectionName)
	assert.Equal(t, "acme_db", h.Database)
	assert.Equal(t, "AppData", h.Collection.Name)
	assert.Equal(t, "acme_db", h.Collection.Database)
	assert.Equal(t, "name", h.Collection.IDField)
	assert.True(t, h.Strict)
	assert.False(t, h.StrictDelete)
}

func TestHandleLooksUpDirectoryWithoutLocalSuffix(t *testing.T) {
	dir := standardDirectory()
	cache := NewModelCache(memstore.New(), dir, domain.Schemas(), discardLogger())

	h, err := cache.Handle(context.Background(), domain.AppMemberSchema, "acme.com.local")
	require.NoError(t, err)
	assert.Equal(t, "AppMember_app_acme_com_local", h.CollectionName)
	assert.Equal(t, []string{"acme.com"}, dir.lookups)
}

func TestHandleUnknownTenant(t *testing.T) {
	cache := NewModelCache(memstore.New(), standardDirectory(), domain.Schemas(), discardLogger())

	for _, key := range []string{"nobody.com", ""} {
		_, err := cache.Handle(context.Background(), domain.AppDataSchema, key)
		var notFound *repository.TenantNotFoundError
		require.True(t, errors.As(err, &notFound), "key %q", key)
		require.True(t, errors.Is(err, repository.ErrNotFound))
	}
	assert.Zero(t, cache.Len())
}

func TestHandleEntryWithoutDatabaseIsUnknown(t *testing.T) {
	dir := newStubDirectory(domain.Domain{Hostname: "acme.com"})
	cache := NewModelCache(memstore.New(), dir, domain.Schemas(), discardLogger())
	_, err := cache.Handle(context.Background(), domain.AppDataSchema, "acme.com")
	var notFound *repository.TenantNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestHandleIsCached(t *testing.T) {
	dir := standardDirectory()
	backend := memstore.New()
	cache := NewModelCache(backend, dir, domain.Schemas(), discardLogger())
	ctx := context.Background()

	first, err := cache.Handle(ctx, domain.AppDataSchema, "acme.com")
	require.NoError(t, err)
	calls := backend.Calls()

	second, err := cache.Handle(ctx, domain.AppDataSchema, "acme.com")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, dir.calls())
	assert.Equal(t, calls, backend.Calls(), "hot path performs no storage calls")
}

func TestHandleConcurrentFirstAccess(t *testing.T) {
	dir := standardDirectory()
	dir.delay = 20 * time.Millisecond
	cache := NewModelCache(memstore.New(), dir, domain.Schemas(), discardLogger())

	const workers = 32
	handles := make([]*Handle, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = cache.Handle(context.Background(), domain.AppMemberSchema, "beta.com")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "beta_db", handles[i].Database)
		assert.Equal(t, "AppMember_app_beta_com", handles[i].CollectionName)
	}
	assert.Equal(t, 1, dir.calls())
}

func TestHandleResolvesCyclicReferences(t *testing.T) {
	dir := standardDirectory()
	cache := NewModelCache(memstore.New(), dir, cyclicSchemas(t), discardLogger())
	threadSchema, _ := cache.Registry().Get("Thread")

	thread, err := cache.Handle(context.Background(), threadSchema, "acme.com")
	require.NoError(t, err)

	replies, ok := thread.Field("replies")
	require.True(t, ok)
	require.NotNil(t, replies.Target)
	assert.Equal(t, "Reply_app_acme_com", replies.Target.CollectionName)

	back, ok := replies.Target.Field("thread")
	require.True(t, ok)
	assert.Same(t, thread, back.Target)
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, 1, dir.calls())
}

func TestHandleConcurrentCyclesDoNotDeadlock(t *testing.T) {
	dir := standardDirectory()
	dir.delay = 5 * time.Millisecond
	cache := NewModelCache(memstore.New(), dir, cyclicSchemas(t), discardLogger())
	threadSchema, _ := cache.Registry().Get("Thread")
	replySchema, _ := cache.Registry().Get("Reply")

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, err := cache.Handle(context.Background(), threadSchema, "acme.com")
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				_, err := cache.Handle(context.Background(), replySchema, "acme.com")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handle resolution deadlocked")
	}
	h1, err := cache.Handle(context.Background(), threadSchema, "acme.com")
	require.NoError(t, err)
	h2, err := cache.Handle(context.Background(), threadSchema, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, h1.Database, h2.Database)
	assert.Equal(t, h1.CollectionName, h2.CollectionName)
}

func TestInvalidateRereadsDirectory(t *testing.T) {
	dir := standardDirectory()
	cache := NewModelCache(memstore.New(), dir, domain.Schemas(), discardLogger())
	ctx := context.Background()

	_, err := cache.Handle(ctx, domain.AppDataSchema, "acme.com")
	require.NoError(t, err)
	_, err = cache.Handle(ctx, domain.AppDataSchema, "beta.com")
	require.NoError(t, err)

	dir.mu.Lock()
	dir.entries["acme.com"] = domain.Domain{Hostname: "acme.com", Database: "acme_v2"}
	dir.mu.Unlock()

	stale, err := cache.Handle(ctx, domain.AppDataSchema, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "acme_db", stale.Database)

	assert.Equal(t, 1, cache.Invalidate("acme.com"))
	fresh, err := cache.Handle(ctx, domain.AppDataSchema, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "acme_v2", fresh.Database)
	assert.Equal(t, 2, cache.Len())
}

func TestInvalidateLeavesTenantsWithSharedSuffix(t *testing.T) {
	dir := newStubDirectory(
		domain.Domain{Hostname: "b.com", Database: "b_db"},
		domain.Domain{Hostname: "app.b.com", Database: "app_b_db"},
	)
	cache := NewModelCache(memstore.New(), dir, domain.Schemas(), discardLogger())
	ctx := context.Background()

	_, err := cache.Handle(ctx, domain.AppInfoSchema, "b.com")
	require.NoError(t, err)
	_, err = cache.Handle(ctx, domain.AppInfoSchema, "app.b.com")
	require.NoError(t, err)
	lookups := dir.calls()

	assert.Equal(t, 1, cache.Invalidate("b.com"))
	assert.Equal(t, 1, cache.Len())

	_, err = cache.Handle(ctx, domain.AppInfoSchema, "app.b.com")
	require.NoError(t, err)
	assert.Equal(t, lookups, dir.calls(), "app.b.com must stay cached")
}

func TestCacheMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	cache := NewModelCache(memstore.New(), standardDirectory(), domain.Schemas(), discardLogger(), WithMetrics(reg))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cache.Handle(ctx, domain.AppDataSchema, "acme.com")
		require.NoError(t, err)
	}
	_, err := cache.Handle(ctx, domain.AppDataSchema, "ghost.com")
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(cache.metrics.lookups.WithLabelValues("AppData", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(cache.metrics.lookups.WithLabelValues("AppData", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cache.metrics.builds.WithLabelValues("AppData", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cache.metrics.builds.WithLabelValues("AppData", "error")))
}
