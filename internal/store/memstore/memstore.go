// Package memstore implements store.Backend in process memory. It backs the
// development profile and package tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ratekl/api/internal/store"
)

type collectionKey struct {
	database string
	name     string
}

type collection struct {
	ids     []string
	docs    map[string]store.Document
	indexes []store.Index
}

// Store is an in-memory document store. Documents are cloned on the way in
// and out so callers never share state with the store.
type Store struct {
	mu          sync.RWMutex
	collections map[collectionKey]*collection
	calls       atomic.Int64
}

// New constructs an empty store.
func New() *Store {
	return &Store{collections: make(map[collectionKey]*collection)}
}

// Calls returns the number of operations executed, including EnsureCollection.
func (s *Store) Calls() int64 {
	return s.calls.Load()
}

// Databases lists databases that hold at least one collection.
func (s *Store) Databases() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	var out []string
	for key := range s.collections {
		if _, ok := seen[key.database]; ok {
			continue
		}
		seen[key.database] = struct{}{}
		out = append(out, key.database)
	}
	sort.Strings(out)
	return out
}

func (s *Store) get(c store.Collection, create bool) *collection {
	key := collectionKey{database: c.Database, name: c.Name}
	col, ok := s.collections[key]
	if !ok && create {
		col = &collection{docs: make(map[string]store.Document)}
		s.collections[key] = col
	}
	return col
}

// EnsureCollection creates the collection and records its indexes.
func (s *Store) EnsureCollection(_ context.Context, c store.Collection, indexes []store.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Add(1)
	col := s.get(c, true)
	col.indexes = append([]store.Index(nil), indexes...)
	return nil
}

// Insert stores documents, generating ids for documents without one. The
// batch is rejected as a whole on a duplicate id or unique index value.
func (s *Store) Insert(_ context.Context, c store.Collection, docs []store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Add(1)
	col := s.get(c, true)
	pending := make(map[string]struct{}, len(docs))
	for i, doc := range docs {
		id := idString(doc[c.IDField])
		if id == "" {
			id = uuid.NewString()
			doc[c.IDField] = id
		}
		_, stored := col.docs[id]
		_, batched := pending[id]
		if stored || batched {
			return fmt.Errorf("%w: %s=%s", store.ErrDuplicateKey, c.IDField, id)
		}
		pending[id] = struct{}{}
		if err := col.checkUnique(doc, docs[:i]); err != nil {
			return err
		}
	}
	for _, doc := range docs {
		id := idString(doc[c.IDField])
		col.docs[id] = doc.Clone()
		col.ids = append(col.ids, id)
	}
	return nil
}

func (col *collection) checkUnique(doc store.Document, earlier []store.Document) error {
	for _, idx := range col.indexes {
		if !idx.Unique {
			continue
		}
		value, ok := lookup(doc, idx.Field)
		if !ok || value == nil {
			continue
		}
		for _, id := range col.ids {
			if existing, found := lookup(col.docs[id], idx.Field); found && equal(existing, value) {
				return fmt.Errorf("%w: %s", store.ErrDuplicateKey, idx.Field)
			}
		}
		for _, other := range earlier {
			if existing, found := lookup(other, idx.Field); found && equal(existing, value) {
				return fmt.Errorf("%w: %s", store.ErrDuplicateKey, idx.Field)
			}
		}
	}
	return nil
}

// Find returns matching documents after ordering, pagination and projection.
func (s *Store) Find(_ context.Context, c store.Collection, filter store.Filter) ([]store.Document, error) {
	s.calls.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	col := s.get(c, false)
	if col == nil {
		return nil, nil
	}
	matched, err := col.match(filter.Where)
	if err != nil {
		return nil, err
	}
	if len(filter.Order) > 0 {
		sortDocuments(matched, filter.Order)
	}
	if filter.Skip > 0 {
		if filter.Skip >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Skip:]
		}
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	fields := filter.Projection(c.IDField)
	out := make([]store.Document, 0, len(matched))
	for _, doc := range matched {
		out = append(out, project(doc, fields))
	}
	return out, nil
}

// Count returns the number of matching documents.
func (s *Store) Count(_ context.Context, c store.Collection, where store.Where) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.calls.Add(1)
	col := s.get(c, false)
	if col == nil {
		return 0, nil
	}
	matched, err := col.match(where)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

// UpdateMany merges data into every matching document.
func (s *Store) UpdateMany(_ context.Context, c store.Collection, where store.Where, data store.Document) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Add(1)
	col := s.get(c, false)
	if col == nil {
		return 0, nil
	}
	ids, err := col.matchIDs(where)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		doc := col.docs[id]
		for k, v := range data {
			if k == c.IDField {
				continue
			}
			doc[k] = cloneAny(v)
		}
	}
	return int64(len(ids)), nil
}

// Replace overwrites the document with the given id.
func (s *Store) Replace(_ context.Context, c store.Collection, id any, doc store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Add(1)
	col := s.get(c, false)
	key := idString(id)
	if col == nil {
		return store.ErrNotFound
	}
	if _, ok := col.docs[key]; !ok {
		return store.ErrNotFound
	}
	replacement := doc.Clone()
	replacement[c.IDField] = key
	col.docs[key] = replacement
	return nil
}

// DeleteMany removes every matching document.
func (s *Store) DeleteMany(_ context.Context, c store.Collection, where store.Where) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Add(1)
	col := s.get(c, false)
	if col == nil {
		return 0, nil
	}
	ids, err := col.matchIDs(where)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	removed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		delete(col.docs, id)
		removed[id] = struct{}{}
	}
	kept := col.ids[:0]
	for _, id := range col.ids {
		if _, gone := removed[id]; !gone {
			kept = append(kept, id)
		}
	}
	col.ids = kept
	return int64(len(ids)), nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

func (col *collection) matchIDs(where store.Where) ([]string, error) {
	var ids []string
	for _, id := range col.ids {
		ok, err := Match(col.docs[id], where)
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (col *collection) match(where store.Where) ([]store.Document, error) {
	ids, err := col.matchIDs(where)
	if err != nil {
		return nil, err
	}
	out := make([]store.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, col.docs[id])
	}
	return out, nil
}

func sortDocuments(docs []store.Document, order []store.SortKey) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range order {
			a, _ := lookup(docs[i], key.Field)
			b, _ := lookup(docs[j], key.Field)
			cmp, ok := compare(a, b)
			if !ok {
				cmp = compareMissing(a, b)
			}
			if cmp == 0 {
				continue
			}
			if key.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareMissing(a, b any) int {
	switch {
	case a == nil && b != nil:
		return -1
	case a != nil && b == nil:
		return 1
	}
	return 0
}

func project(doc store.Document, fields []string) store.Document {
	if fields == nil {
		return doc.Clone()
	}
	out := make(store.Document, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = cloneAny(v)
		}
	}
	return out
}

func cloneAny(v any) any {
	wrapped := store.Document{"v": v}.Clone()
	return wrapped["v"]
}

func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}
