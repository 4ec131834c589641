package repository

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrConflict indicates a write collided with an existing key.
var ErrConflict = errors.New("repository: conflict")

// TenantNotFoundError reports a tenant key without a directory entry.
type TenantNotFoundError struct {
	Tenant string
}

func (e *TenantNotFoundError) Error() string {
	return fmt.Sprintf("tenant %q not found", e.Tenant)
}

// Is matches ErrNotFound.
func (e *TenantNotFoundError) Is(target error) bool { return target == ErrNotFound }

// EntityNotFoundError reports an id-scoped operation on a missing entity.
type EntityNotFoundError struct {
	Entity string
	ID     any
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity not found: %s with id %v", e.Entity, e.ID)
}

// Is matches ErrNotFound.
func (e *EntityNotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidBodyError reports an empty partial update.
type InvalidBodyError struct {
	Entity string
	ID     any
}

func (e *InvalidBodyError) Error() string {
	if e.ID == nil {
		return fmt.Sprintf("invalid body for %s: no properties to update", e.Entity)
	}
	return fmt.Sprintf("invalid body for %s with id %v: no properties to update", e.Entity, e.ID)
}

// ValidationError reports schema violations.
type ValidationError struct {
	Entity string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(e.Issues, "; "))
}
