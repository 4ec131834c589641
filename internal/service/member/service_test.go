package member

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratekl/api/internal/domain"
	"github.com/ratekl/api/internal/repository"
	"github.com/ratekl/api/internal/repository/multitenant"
	"github.com/ratekl/api/internal/store"
	"github.com/ratekl/api/internal/store/memstore"
	"github.com/ratekl/api/internal/tenant"
	"github.com/ratekl/api/pkg/crypto"
	"github.com/ratekl/api/pkg/logger"
)

type directory map[string]domain.Domain

func (d directory) GetDomain(_ context.Context, hostname string) (*domain.Domain, error) {
	entry, ok := d[hostname]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &entry, nil
}

func newService() Service {
	cache := multitenant.NewModelCache(memstore.New(), directory{
		"acme.com": {Hostname: "acme.com", Database: "acme_db", Active: true},
	}, domain.Schemas(), logger.Nop())
	return New(multitenant.NewRepository[domain.AppMember](cache, domain.AppMemberSchema), logger.Nop())
}

func acme() context.Context {
	return tenant.WithKey(context.Background(), "acme.com")
}

func TestCreateHashesPlaintextPassword(t *testing.T) {
	svc := newService()

	created, err := svc.Create(acme(), domain.AppMember{UserName: "bob", Password: "hunter2"})
	require.NoError(t, err)
	assert.True(t, crypto.IsHash(created.Password))
	assert.NoError(t, crypto.ComparePassword([]byte(created.Password), "hunter2"))
	assert.False(t, created.CreatedAt.IsZero())
}

func TestCreateKeepsExistingHash(t *testing.T) {
	svc := newService()
	hash, err := crypto.HashPassword("secret")
	require.NoError(t, err)

	created, err := svc.Create(acme(), domain.AppMember{UserName: "bob", Password: string(hash)})
	require.NoError(t, err)
	assert.Equal(t, string(hash), created.Password)
}

func TestUpdateByIDHashesPatchedPassword(t *testing.T) {
	svc := newService()
	_, err := svc.Create(acme(), domain.AppMember{UserName: "bob"})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateByID(acme(), "bob", store.Document{"password": "n3w"}))

	got, err := svc.FindByID(acme(), "bob", store.Filter{})
	require.NoError(t, err)
	assert.NoError(t, crypto.ComparePassword([]byte(got.Password), "n3w"))
}

func TestPublicReadsStripSecrets(t *testing.T) {
	svc := newService()
	_, err := svc.Create(acme(), domain.AppMember{
		UserName:   "bob",
		Password:   "pw",
		MemberData: map[string]any{"pushToken": "tok", "pushType": "ios", "bio": "hi"},
	})
	require.NoError(t, err)

	list, err := svc.FindPublic(acme(), store.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Password)
	assert.Equal(t, map[string]any{"bio": "hi"}, list[0].MemberData)

	one, err := svc.FindPublicByID(acme(), "bob", store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, one.Password)
	assert.NotContains(t, one.MemberData, "pushToken")

	full, err := svc.FindByID(acme(), "bob", store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, "tok", full.PushToken())
}
