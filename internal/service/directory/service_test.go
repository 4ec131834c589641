package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratekl/api/internal/domain"
	"github.com/ratekl/api/internal/repository"
	"github.com/ratekl/api/internal/repository/memory"
	"github.com/ratekl/api/pkg/logger"
)

type countingInvalidator map[string]int

func (c countingInvalidator) Invalidate(key string) int {
	c[key]++
	return 1
}

func TestCreateValidatesAndNormalizes(t *testing.T) {
	svc := New(memory.NewDirectory(), nil, logger.Nop())

	_, err := svc.Create(context.Background(), domain.Domain{Hostname: " ", Database: "db"})
	assert.True(t, IsInvalid(err))
	_, err = svc.Create(context.Background(), domain.Domain{Hostname: "acme.com"})
	assert.True(t, IsInvalid(err))

	created, err := svc.Create(context.Background(), domain.Domain{Hostname: " ACME.com ", Database: "acme_db", Active: true})
	require.NoError(t, err)
	assert.Equal(t, "acme.com", created.Hostname)

	_, err = svc.Create(context.Background(), domain.Domain{Hostname: "acme.com", Database: "other"})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestUpdateRejectsEmptyPatch(t *testing.T) {
	svc := New(memory.NewDirectory(domain.Domain{Hostname: "acme.com", Database: "acme_db"}), nil, logger.Nop())

	assert.True(t, IsInvalid(svc.Update(context.Background(), "acme.com", domain.DomainPatch{})))
	blank := ""
	assert.True(t, IsInvalid(svc.Update(context.Background(), "acme.com", domain.DomainPatch{Database: &blank})))

	active := true
	require.NoError(t, svc.Update(context.Background(), "acme.com", domain.DomainPatch{Active: &active}))
	got, err := svc.Get(context.Background(), "acme.com")
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.ErrorIs(t, svc.Update(context.Background(), "nope.com", domain.DomainPatch{Active: &active}), repository.ErrNotFound)
}

func TestInvalidateCoversLocalAlias(t *testing.T) {
	inv := countingInvalidator{}
	svc := New(memory.NewDirectory(), inv, logger.Nop())

	assert.Equal(t, 2, svc.Invalidate("Acme.com"))
	assert.Equal(t, countingInvalidator{"acme.com": 1, "acme.com.local": 1}, inv)
}
