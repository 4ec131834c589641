// Package store defines the document storage contract used by tenant-scoped
// repositories.
package store

import (
	"context"
	"errors"
)

var (
	// ErrDuplicateKey is returned when an insert collides with an existing id
	// or unique index.
	ErrDuplicateKey = errors.New("store: duplicate key")
	// ErrNotFound is returned by Replace when the target document is absent.
	ErrNotFound = errors.New("store: document not found")
)

// Document is a schemaless record.
type Document map[string]any

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Document:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Collection addresses a physical collection inside a database. IDField names
// the entity property that carries the primary key.
type Collection struct {
	Database string
	Name     string
	IDField  string
}

// Index describes a secondary index to ensure on a collection.
type Index struct {
	Field  string
	Unique bool
}

// Backend executes document operations against a storage engine.
type Backend interface {
	EnsureCollection(ctx context.Context, c Collection, indexes []Index) error
	Insert(ctx context.Context, c Collection, docs []Document) error
	Find(ctx context.Context, c Collection, filter Filter) ([]Document, error)
	Count(ctx context.Context, c Collection, where Where) (int64, error)
	UpdateMany(ctx context.Context, c Collection, where Where, data Document) (int64, error)
	Replace(ctx context.Context, c Collection, id any, doc Document) error
	DeleteMany(ctx context.Context, c Collection, where Where) (int64, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
