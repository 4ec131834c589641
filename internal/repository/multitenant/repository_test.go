package multitenant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/ratekl/api/internal/domain"
	"github.com/ratekl/api/internal/repository"
	"github.com/ratekl/api/internal/store"
	"github.com/ratekl/api/internal/store/memstore"
	"github.com/ratekl/api/internal/tenant"
)

type fixture struct {
	backend *memstore.Store
	dir     *stubDirectory
	cache   *ModelCache
	data    *Repository[domain.AppData]
	members *Repository[domain.AppMember]
	info    *Repository[domain.AppInfo]
}

func newFixture() *fixture {
	f := &fixture{backend: memstore.New(), dir: standardDirectory()}
	f.cache = NewModelCache(f.backend, f.dir, domain.Schemas(), discardLogger())
	f.data = NewRepository[domain.AppData](f.cache, domain.AppDataSchema)
	f.members = NewRepository[domain.AppMember](f.cache, domain.AppMemberSchema)
	f.info = NewRepository[domain.AppInfo](f.cache, domain.AppInfoSchema)
	return f
}

func acme() context.Context {
	return tenant.WithKey(context.Background(), "acme.com")
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestCreateAndFindByID(t *testing.T) {
	f := newFixture()
	ctx := acme()

	created, err := f.data.Create(ctx, domain.AppData{
		Name:      "p1",
		Type:      domain.TypePost,
		Data:      map[string]any{"message": "hello"},
		CreatedAt: day(2),
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", created.Name)

	found, err := f.data.FindByID(ctx, "p1", store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, domain.TypePost, found.Type)
	assert.Equal(t, "hello", found.DataString("message"))
	assert.True(t, found.CreatedAt.Equal(day(2)))

	_, err = f.data.FindByID(ctx, "missing", store.Filter{})
	var notFound *repository.EntityNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestCreateGeneratesID(t *testing.T) {
	f := newFixture()
	created, err := f.data.Create(acme(), domain.AppData{Type: domain.TypeComment})
	require.NoError(t, err)
	assert.NotEmpty(t, created.Name)
}

func TestCreateDuplicateSurfacesStorageError(t *testing.T) {
	f := newFixture()
	ctx := acme()
	_, err := f.members.Create(ctx, domain.AppMember{UserName: "ann"})
	require.NoError(t, err)
	_, err = f.members.Create(ctx, domain.AppMember{UserName: "ann"})
	require.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestCreateAppliesDefaults(t *testing.T) {
	f := newFixture()
	created, err := f.info.Create(acme(), domain.AppInfo{Name: "v1"})
	require.NoError(t, err)
	require.NotNil(t, created.Draft)
	require.NotNil(t, created.Published)
	assert.True(t, *created.Draft)
	assert.False(t, *created.Published)
	assert.False(t, *created.Previous)
	assert.False(t, *created.History)
}

func TestStrictSchemaRejectsUnknownProperties(t *testing.T) {
	f := newFixture()
	raw := NewRepository[map[string]any](f.cache, domain.AppDataSchema)

	_, err := raw.Create(acme(), map[string]any{"name": "x", "colour": "red"})
	var invalid *repository.ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{"colour: unknown property"}, invalid.Issues)

	_, err = raw.CreateAll(acme(), []map[string]any{
		{"name": "a", "type": 1},
		{"name": "b"},
		{"name": "c", "data": "not an object"},
	})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	require.ErrorAs(t, err, &invalid)

	count, err := raw.Count(acme(), nil)
	require.NoError(t, err)
	assert.Zero(t, count, "batch rejected before any insert")
}

func TestUpdateByIDEmptyBodyFailsBeforeStorage(t *testing.T) {
	f := newFixture()
	err := f.data.UpdateByID(tenant.WithKey(context.Background(), "nobody.com"), "p1", store.Document{})
	var invalid *repository.InvalidBodyError
	require.ErrorAs(t, err, &invalid)
	assert.Zero(t, f.backend.Calls())
	assert.Zero(t, f.dir.calls())
	assert.Zero(t, f.cache.Len())
}

func TestUpdateSemantics(t *testing.T) {
	f := newFixture()
	ctx := acme()
	_, err := f.data.CreateAll(ctx, []domain.AppData{
		{Name: "p1", Type: domain.TypePost},
		{Name: "p2", Type: domain.TypePost},
		{Name: "c1", Type: domain.TypeComment},
	})
	require.NoError(t, err)

	n, err := f.data.UpdateAll(ctx, store.Document{"access": domain.AccessPublic}, store.Where{"type": domain.TypePost})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = f.data.UpdateAll(ctx, store.Document{"access": "x"}, store.Where{"type": "nothing"})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.data.UpdateAll(ctx, store.Document{}, nil)
	var invalid *repository.InvalidBodyError
	require.ErrorAs(t, err, &invalid)

	require.NoError(t, f.data.UpdateByID(ctx, "c1", store.Document{"data": map[string]any{"itemName": "p1"}}))
	c1, err := f.data.FindByID(ctx, "c1", store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, "p1", c1.DataString("itemName"))

	err = f.data.UpdateByID(ctx, "ghost", store.Document{"access": "x"})
	var notFound *repository.EntityNotFoundError
	require.ErrorAs(t, err, &notFound)

	err = f.data.UpdateByID(ctx, "p1", store.Document{"bogus": true})
	var validation *repository.ValidationError
	require.ErrorAs(t, err, &validation)

	require.NoError(t, f.data.Update(ctx, domain.AppData{Name: "p2", Owner: "ann"}))
	p2, err := f.data.FindByID(ctx, "p2", store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, "ann", p2.Owner)
	assert.Equal(t, domain.TypePost, p2.Type)
}

func TestReplaceAndSave(t *testing.T) {
	f := newFixture()
	ctx := acme()
	_, err := f.data.Create(ctx, domain.AppData{Name: "p1", Type: domain.TypePost, Access: domain.AccessPublic})
	require.NoError(t, err)

	require.NoError(t, f.data.ReplaceByID(ctx, "p1", domain.AppData{Type: domain.TypeComment}))
	p1, err := f.data.FindByID(ctx, "p1", store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, domain.TypeComment, p1.Type)
	assert.Empty(t, p1.Access)

	err = f.data.ReplaceByID(ctx, "ghost", domain.AppData{Type: domain.TypePost})
	var notFound *repository.EntityNotFoundError
	require.ErrorAs(t, err, &notFound)

	saved, err := f.data.Save(ctx, domain.AppData{Type: domain.TypeReferral})
	require.NoError(t, err)
	require.NotEmpty(t, saved.Name)

	saved.Access = domain.AccessPublic
	_, err = f.data.Save(ctx, saved)
	require.NoError(t, err)
	again, err := f.data.FindByID(ctx, saved.Name, store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, domain.AccessPublic, again.Access)
}

func TestDeleteSemantics(t *testing.T) {
	f := newFixture()
	ctx := acme()
	_, err := f.data.CreateAll(ctx, []domain.AppData{
		{Name: "p1", Type: domain.TypePost},
		{Name: "p2", Type: domain.TypePost},
	})
	require.NoError(t, err)

	err = f.data.DeleteByID(ctx, "ghost")
	var notFound *repository.EntityNotFoundError
	require.ErrorAs(t, err, &notFound)

	n, err := f.data.DeleteAll(ctx, store.Where{"type": "nothing"})
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, f.data.Delete(ctx, domain.AppData{Name: "p1"}))
	exists, err := f.data.Exists(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, exists)

	n, err = f.data.DeleteAll(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestTenantsAreIsolated(t *testing.T) {
	f := newFixture()
	acmeCtx := acme()
	betaCtx := tenant.WithKey(context.Background(), "beta.com")

	_, err := f.members.Create(acmeCtx, domain.AppMember{UserName: "sam", FirstName: "Acme"})
	require.NoError(t, err)
	_, err = f.members.Create(betaCtx, domain.AppMember{UserName: "sam", FirstName: "Beta"})
	require.NoError(t, err)

	assert.Equal(t, []string{"acme_db", "beta_db"}, f.backend.Databases())

	a, err := f.members.FindByID(acmeCtx, "sam", store.Filter{})
	require.NoError(t, err)
	b, err := f.members.FindByID(betaCtx, "sam", store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, "Acme", a.FirstName)
	assert.Equal(t, "Beta", b.FirstName)
}

func TestOperationsWithoutTenantFail(t *testing.T) {
	f := newFixture()
	_, err := f.data.Find(context.Background(), store.Filter{})
	var notFound *repository.TenantNotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = f.data.Count(tenant.WithKey(context.Background(), "ghost.com"), nil)
	require.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestFindFiltersByDateStrings(t *testing.T) {
	f := newFixture()
	ctx := acme()
	_, err := f.data.CreateAll(ctx, []domain.AppData{
		{Name: "p1", Type: domain.TypePost, CreatedAt: day(2)},
		{Name: "p2", Type: domain.TypePost, CreatedAt: day(3)},
		{Name: "c1", Type: domain.TypeComment, CreatedAt: day(5)},
		{Name: "r1", Type: domain.TypeReferral, CreatedAt: day(6)},
	})
	require.NoError(t, err)

	found, err := f.data.Find(ctx, store.Filter{
		Where: store.Where{
			"createdAt": map[string]any{"gt": "2024-01-02T00:00:00.000Z"},
			"type":      map[string]any{"inq": []any{domain.TypePost, domain.TypeComment}},
		},
		Order: []store.SortKey{{Field: "createdAt", Desc: true}},
	})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "c1", found[0].Name)
	assert.Equal(t, "p2", found[1].Name)

	one, err := f.data.FindOne(ctx, store.Filter{Where: store.Where{"type": domain.TypeReferral}})
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, "r1", one.Name)

	none, err := f.data.FindOne(ctx, store.Filter{Where: store.Where{"type": "nothing"}})
	require.NoError(t, err)
	assert.Nil(t, none)

	count, err := f.data.Count(ctx, store.Where{"createdAt": map[string]any{"lte": "2024-01-03"}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestFindIncludesRelations(t *testing.T) {
	f := newFixture()
	ctx := acme()
	_, err := f.members.Create(ctx, domain.AppMember{UserName: "ann", FirstName: "Ann"})
	require.NoError(t, err)
	_, err = f.data.CreateAll(ctx, []domain.AppData{
		{Name: "p1", Type: domain.TypePost, Owner: "ann"},
		{Name: "p2", Type: domain.TypePost, Owner: "ghost"},
	})
	require.NoError(t, err)

	posts, err := f.data.Find(ctx, store.Filter{
		Include: []string{"ownerMember"},
		Order:   []store.SortKey{{Field: "name"}},
	})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.NotNil(t, posts[0].OwnerMember)
	assert.Equal(t, "Ann", posts[0].OwnerMember.FirstName)
	assert.Nil(t, posts[1].OwnerMember)

	ann, err := f.members.FindByID(ctx, "ann", store.Filter{Include: []string{"posts"}})
	require.NoError(t, err)
	require.Len(t, ann.Posts, 1)
	assert.Equal(t, "p1", ann.Posts[0].Name)

	_, err = f.data.Find(ctx, store.Filter{Include: []string{"nope"}})
	var invalid *repository.ValidationError
	require.ErrorAs(t, err, &invalid)

	require.NoError(t, f.data.ReplaceByID(ctx, "p1", posts[0]), "relation properties are not persisted")
}
