package directory

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ratekl/api/internal/domain"
	"github.com/ratekl/api/internal/repository"
)

var (
	errMissingHostname = errors.New("hostname is required")
	errMissingDatabase = errors.New("database is required")
	errEmptyPatch      = errors.New("at least one of database, redirect or active is required")
)

// IsInvalid reports whether err was raised by input validation.
func IsInvalid(err error) bool {
	return errors.Is(err, errMissingHostname) || errors.Is(err, errMissingDatabase) || errors.Is(err, errEmptyPatch)
}

// Invalidator drops cached tenant handles.
type Invalidator interface {
	Invalidate(tenantKey string) int
}

// Service administers the tenant directory.
type Service struct {
	domains repository.DirectoryRepository
	cache   Invalidator
	logger  *slog.Logger
}

// New returns a directory service. cache may be nil.
func New(domains repository.DirectoryRepository, cache Invalidator, logger *slog.Logger) Service {
	return Service{domains: domains, cache: cache, logger: logger}
}

// Create registers a hostname.
func (s Service) Create(ctx context.Context, d domain.Domain) (*domain.Domain, error) {
	if err := validate(&d); err != nil {
		return nil, err
	}
	if err := s.domains.CreateDomain(ctx, &d); err != nil {
		return nil, err
	}
	s.logger.Info("domain created", "hostname", d.Hostname, "database", d.Database)
	return &d, nil
}

// Get returns one entry.
func (s Service) Get(ctx context.Context, hostname string) (*domain.Domain, error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return nil, errMissingHostname
	}
	return s.domains.GetDomain(ctx, hostname)
}

// List returns entries.
func (s Service) List(ctx context.Context, filter domain.DomainFilter) ([]domain.Domain, error) {
	return s.domains.ListDomains(ctx, filter)
}

// Count returns the number of entries.
func (s Service) Count(ctx context.Context, active *bool) (int64, error) {
	return s.domains.CountDomains(ctx, active)
}

// Replace overwrites an entry.
func (s Service) Replace(ctx context.Context, hostname string, d domain.Domain) error {
	d.Hostname = hostname
	if err := validate(&d); err != nil {
		return err
	}
	if err := s.domains.ReplaceDomain(ctx, &d); err != nil {
		return err
	}
	s.logger.Info("domain replaced", "hostname", d.Hostname)
	return nil
}

// Update patches an entry.
func (s Service) Update(ctx context.Context, hostname string, patch domain.DomainPatch) error {
	if strings.TrimSpace(hostname) == "" {
		return errMissingHostname
	}
	if patch.Empty() {
		return errEmptyPatch
	}
	if patch.Database != nil && strings.TrimSpace(*patch.Database) == "" {
		return errMissingDatabase
	}
	return s.domains.UpdateDomain(ctx, hostname, patch)
}

// UpdateAll patches every entry, optionally only those in one active state.
func (s Service) UpdateAll(ctx context.Context, active *bool, patch domain.DomainPatch) (int64, error) {
	if patch.Empty() {
		return 0, errEmptyPatch
	}
	if patch.Database != nil && strings.TrimSpace(*patch.Database) == "" {
		return 0, errMissingDatabase
	}
	return s.domains.UpdateDomains(ctx, active, patch)
}

// Delete removes an entry.
func (s Service) Delete(ctx context.Context, hostname string) error {
	if err := s.domains.DeleteDomain(ctx, hostname); err != nil {
		return err
	}
	s.logger.Info("domain deleted", "hostname", hostname)
	return nil
}

// Invalidate forgets the cached collection handles of hostname and its
// .local alias. Cached handles otherwise survive directory changes.
func (s Service) Invalidate(hostname string) int {
	if s.cache == nil {
		return 0
	}
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	return s.cache.Invalidate(hostname) + s.cache.Invalidate(hostname+".local")
}

func validate(d *domain.Domain) error {
	d.Hostname = strings.ToLower(strings.TrimSpace(d.Hostname))
	d.Database = strings.TrimSpace(d.Database)
	if d.Hostname == "" {
		return errMissingHostname
	}
	if d.Database == "" {
		return errMissingDatabase
	}
	return nil
}
