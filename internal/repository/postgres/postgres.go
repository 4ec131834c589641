package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ratekl/api/internal/domain"
	"github.com/ratekl/api/internal/repository"
)

// Repository implements the tenant directory on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

var _ repository.DirectoryRepository = (*Repository)(nil)

const domainColumns = `hostname, database, redirect, active, created_at, updated_at`

// GetDomain fetches a directory entry by hostname.
func (r *Repository) GetDomain(ctx context.Context, hostname string) (*domain.Domain, error) {
	const query = `SELECT ` + domainColumns + ` FROM domains WHERE hostname = $1`
	d, err := scanDomain(r.pool.QueryRow(ctx, query, normalizeHost(hostname)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListDomains returns directory entries ordered by hostname.
func (r *Repository) ListDomains(ctx context.Context, filter domain.DomainFilter) ([]domain.Domain, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT ` + domainColumns + ` FROM domains
	WHERE ($1::boolean IS NULL OR active = $1)
	ORDER BY hostname
	LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, filter.Active, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Domain, 0)
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// CountDomains counts entries, optionally restricted to one active state.
func (r *Repository) CountDomains(ctx context.Context, active *bool) (int64, error) {
	const query = `SELECT COUNT(*) FROM domains WHERE ($1::boolean IS NULL OR active = $1)`
	var n int64
	if err := r.pool.QueryRow(ctx, query, active).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CreateDomain inserts an entry and stamps its timestamps.
func (r *Repository) CreateDomain(ctx context.Context, d *domain.Domain) error {
	now := r.now().UTC()
	d.Hostname = normalizeHost(d.Hostname)
	d.CreatedAt, d.UpdatedAt = now, now
	const query = `INSERT INTO domains (` + domainColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, d.Hostname, d.Database, nilIfEmpty(d.Redirect), d.Active, d.CreatedAt, d.UpdatedAt)
	return mapWriteError(err)
}

// ReplaceDomain overwrites every mutable column of an existing entry.
func (r *Repository) ReplaceDomain(ctx context.Context, d *domain.Domain) error {
	d.Hostname = normalizeHost(d.Hostname)
	d.UpdatedAt = r.now().UTC()
	const query = `UPDATE domains SET database = $2, redirect = $3, active = $4, updated_at = $5
		WHERE hostname = $1
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, query, d.Hostname, d.Database, nilIfEmpty(d.Redirect), d.Active, d.UpdatedAt).Scan(&d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	return mapWriteError(err)
}

// UpdateDomain applies a partial update to one entry.
func (r *Repository) UpdateDomain(ctx context.Context, hostname string, patch domain.DomainPatch) error {
	n, err := r.update(ctx, patch, "hostname = $1", normalizeHost(hostname))
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateDomains applies a partial update to every entry, optionally
// restricted to one active state, and returns the number updated.
func (r *Repository) UpdateDomains(ctx context.Context, active *bool, patch domain.DomainPatch) (int64, error) {
	return r.update(ctx, patch, "($1::boolean IS NULL OR active = $1)", active)
}

func (r *Repository) update(ctx context.Context, patch domain.DomainPatch, where string, arg any) (int64, error) {
	if patch.Empty() {
		return 0, errors.New("directory patch is empty")
	}
	args := []any{arg, r.now().UTC()}
	sets := []string{"updated_at = $2"}
	if patch.Database != nil {
		args = append(args, *patch.Database)
		sets = append(sets, fmt.Sprintf("database = $%d", len(args)))
	}
	if patch.Redirect != nil {
		args = append(args, nilIfEmpty(*patch.Redirect))
		sets = append(sets, fmt.Sprintf("redirect = $%d", len(args)))
	}
	if patch.Active != nil {
		args = append(args, *patch.Active)
		sets = append(sets, fmt.Sprintf("active = $%d", len(args)))
	}
	query := `UPDATE domains SET ` + strings.Join(sets, ", ") + ` WHERE ` + where
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, mapWriteError(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteDomain removes an entry.
func (r *Repository) DeleteDomain(ctx context.Context, hostname string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM domains WHERE hostname = $1`, normalizeHost(hostname))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanDomain(row pgx.Row) (*domain.Domain, error) {
	var (
		d        domain.Domain
		redirect *string
	)
	if err := row.Scan(&d.Hostname, &d.Database, &redirect, &d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if redirect != nil {
		d.Redirect = *redirect
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", repository.ErrConflict, pgErr.Detail)
		case "23502", "23514", "22P02":
			return fmt.Errorf("invalid directory entry: %s", pgErr.Message)
		}
	}
	return err
}

func normalizeHost(hostname string) string {
	return strings.ToLower(strings.TrimSpace(hostname))
}

func nilIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
