package repository

import (
	"context"

	"github.com/ratekl/api/internal/domain"
)

// DirectoryRepository persists the hostname to database mapping.
type DirectoryRepository interface {
	GetDomain(ctx context.Context, hostname string) (*domain.Domain, error)
	ListDomains(ctx context.Context, filter domain.DomainFilter) ([]domain.Domain, error)
	CountDomains(ctx context.Context, active *bool) (int64, error)
	CreateDomain(ctx context.Context, d *domain.Domain) error
	ReplaceDomain(ctx context.Context, d *domain.Domain) error
	UpdateDomain(ctx context.Context, hostname string, patch domain.DomainPatch) error
	UpdateDomains(ctx context.Context, active *bool, patch domain.DomainPatch) (int64, error)
	DeleteDomain(ctx context.Context, hostname string) error
}
