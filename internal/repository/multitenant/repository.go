package multitenant

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/ratekl/api/internal/repository"
	"github.com/ratekl/api/internal/schema"
	"github.com/ratekl/api/internal/store"
	"github.com/ratekl/api/internal/tenant"
)

// Repository is a CRUD facade whose every call is routed to the collection of
// the tenant stored on the context.
type Repository[T any] struct {
	cache      *ModelCache
	descriptor schema.Descriptor
}

// NewRepository binds a repository to an entity descriptor.
func NewRepository[T any](cache *ModelCache, descriptor schema.Descriptor) *Repository[T] {
	return &Repository[T]{cache: cache, descriptor: descriptor}
}

// Descriptor returns the entity descriptor.
func (r *Repository[T]) Descriptor() schema.Descriptor {
	return r.descriptor
}

func (r *Repository[T]) handle(ctx context.Context) (*Handle, error) {
	key, _ := tenant.KeyFromContext(ctx)
	return r.cache.Handle(ctx, r.descriptor, key)
}

func (r *Repository[T]) backend() store.Backend {
	return r.cache.backend
}

// Create validates and stores entity and returns the stored form.
func (r *Repository[T]) Create(ctx context.Context, entity T) (T, error) {
	var zero T
	h, err := r.handle(ctx)
	if err != nil {
		return zero, err
	}
	doc, err := r.toDocument(entity)
	if err != nil {
		return zero, err
	}
	if err := r.prepare(h, doc, false); err != nil {
		return zero, err
	}
	if err := r.backend().Insert(ctx, h.Collection, []store.Document{doc}); err != nil {
		return zero, err
	}
	return fromDocument[T](doc)
}

// CreateAll validates every entity before inserting the batch. Validation
// failures are reported together.
func (r *Repository[T]) CreateAll(ctx context.Context, entities []T) ([]T, error) {
	h, err := r.handle(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]store.Document, 0, len(entities))
	var errs error
	for _, entity := range entities {
		doc, err := r.toDocument(entity)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := r.prepare(h, doc, false); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}
	if errs != nil {
		return nil, errs
	}
	if len(docs) == 0 {
		return []T{}, nil
	}
	if err := r.backend().Insert(ctx, h.Collection, docs); err != nil {
		return nil, err
	}
	return fromDocuments[T](docs)
}

// Save creates entity when it has no id and replaces it otherwise.
func (r *Repository[T]) Save(ctx context.Context, entity T) (T, error) {
	doc, err := r.toDocument(entity)
	if err != nil {
		var zero T
		return zero, err
	}
	id := idOf(doc, r.descriptor.IDField)
	if id == "" {
		return r.Create(ctx, entity)
	}
	if err := r.ReplaceByID(ctx, id, entity); err != nil {
		var zero T
		return zero, err
	}
	return entity, nil
}

// Find returns the entities matching filter.
func (r *Repository[T]) Find(ctx context.Context, filter store.Filter) ([]T, error) {
	h, err := r.handle(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := r.find(ctx, h, filter)
	if err != nil {
		return nil, err
	}
	return fromDocuments[T](docs)
}

// FindOne returns the first match or nil.
func (r *Repository[T]) FindOne(ctx context.Context, filter store.Filter) (*T, error) {
	h, err := r.handle(ctx)
	if err != nil {
		return nil, err
	}
	filter.Limit = 1
	docs, err := r.find(ctx, h, filter)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	entity, err := fromDocument[T](docs[0])
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// FindByID returns the entity with id. The filter's where clause is ignored.
func (r *Repository[T]) FindByID(ctx context.Context, id string, filter store.Filter) (T, error) {
	var zero T
	h, err := r.handle(ctx)
	if err != nil {
		return zero, err
	}
	filter.Where = store.Where{r.descriptor.IDField: id}
	filter.Limit = 1
	filter.Skip = 0
	docs, err := r.find(ctx, h, filter)
	if err != nil {
		return zero, err
	}
	if len(docs) == 0 {
		return zero, &repository.EntityNotFoundError{Entity: r.descriptor.Name, ID: id}
	}
	return fromDocument[T](docs[0])
}

// UpdateAll merges data into every entity matching where and returns the
// number of entities matched.
func (r *Repository[T]) UpdateAll(ctx context.Context, data store.Document, where store.Where) (int64, error) {
	h, err := r.handle(ctx)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, &repository.InvalidBodyError{Entity: r.descriptor.Name}
	}
	patch := data.Clone()
	delete(patch, r.descriptor.IDField)
	if len(patch) == 0 {
		return 0, &repository.InvalidBodyError{Entity: r.descriptor.Name}
	}
	if err := r.prepare(h, patch, true); err != nil {
		return 0, err
	}
	return r.backend().UpdateMany(ctx, h.Collection, r.coerceWhere(where), patch)
}

// UpdateByID merges data into the entity with id.
func (r *Repository[T]) UpdateByID(ctx context.Context, id string, data store.Document) error {
	if len(data) == 0 {
		return &repository.InvalidBodyError{Entity: r.descriptor.Name, ID: id}
	}
	if id == "" {
		return fmt.Errorf("update %s: id cannot be empty", r.descriptor.Name)
	}
	n, err := r.UpdateAll(ctx, data, store.Where{r.descriptor.IDField: id})
	if err != nil {
		return err
	}
	if n == 0 {
		return &repository.EntityNotFoundError{Entity: r.descriptor.Name, ID: id}
	}
	return nil
}

// Update writes the non-empty properties of entity to its stored record.
func (r *Repository[T]) Update(ctx context.Context, entity T) error {
	doc, err := r.toDocument(entity)
	if err != nil {
		return err
	}
	id := idOf(doc, r.descriptor.IDField)
	delete(doc, r.descriptor.IDField)
	return r.UpdateByID(ctx, id, doc)
}

// ReplaceByID overwrites the entity with id.
func (r *Repository[T]) ReplaceByID(ctx context.Context, id string, entity T) error {
	h, err := r.handle(ctx)
	if err != nil {
		return err
	}
	doc, err := r.toDocument(entity)
	if err != nil {
		return err
	}
	doc[r.descriptor.IDField] = id
	if err := r.prepare(h, doc, false); err != nil {
		return err
	}
	if err := r.backend().Replace(ctx, h.Collection, id, doc); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &repository.EntityNotFoundError{Entity: r.descriptor.Name, ID: id}
		}
		return err
	}
	return nil
}

// Delete removes entity by its id.
func (r *Repository[T]) Delete(ctx context.Context, entity T) error {
	doc, err := r.toDocument(entity)
	if err != nil {
		return err
	}
	return r.DeleteByID(ctx, idOf(doc, r.descriptor.IDField))
}

// DeleteByID removes the entity with id.
func (r *Repository[T]) DeleteByID(ctx context.Context, id string) error {
	h, err := r.handle(ctx)
	if err != nil {
		return err
	}
	n, err := r.backend().DeleteMany(ctx, h.Collection, store.Where{r.descriptor.IDField: id})
	if err != nil {
		return err
	}
	if n == 0 {
		return &repository.EntityNotFoundError{Entity: r.descriptor.Name, ID: id}
	}
	return nil
}

// DeleteAll removes every entity matching where and returns the count.
func (r *Repository[T]) DeleteAll(ctx context.Context, where store.Where) (int64, error) {
	h, err := r.handle(ctx)
	if err != nil {
		return 0, err
	}
	return r.backend().DeleteMany(ctx, h.Collection, r.coerceWhere(where))
}

// Count returns the number of entities matching where.
func (r *Repository[T]) Count(ctx context.Context, where store.Where) (int64, error) {
	h, err := r.handle(ctx)
	if err != nil {
		return 0, err
	}
	return r.backend().Count(ctx, h.Collection, r.coerceWhere(where))
}

// Exists reports whether an entity with id is stored.
func (r *Repository[T]) Exists(ctx context.Context, id string) (bool, error) {
	n, err := r.Count(ctx, store.Where{r.descriptor.IDField: id})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repository[T]) find(ctx context.Context, h *Handle, filter store.Filter) ([]store.Document, error) {
	filter.Where = r.coerceWhere(filter.Where)
	docs, err := r.backend().Find(ctx, h.Collection, filter)
	if err != nil {
		return nil, err
	}
	if len(filter.Include) > 0 && len(docs) > 0 {
		if err := r.include(ctx, h, docs, filter.Include); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// prepare validates doc against the handle and normalises it for storage.
func (r *Repository[T]) prepare(h *Handle, doc store.Document, partial bool) error {
	reg := r.cache.registry
	if issues := reg.Validate(h.Descriptor, doc, partial); len(issues) > 0 {
		return &repository.ValidationError{Entity: h.EntityType, Issues: issues}
	}
	if !partial {
		h.Descriptor.ApplyDefaults(doc)
	}
	reg.Coerce(h.Descriptor, doc)
	return nil
}

func (r *Repository[T]) include(ctx context.Context, h *Handle, docs []store.Document, names []string) error {
	relations := make([]schema.Relation, 0, len(names))
	for _, name := range names {
		rel, ok := r.descriptor.Relation(name)
		if !ok {
			return &repository.ValidationError{
				Entity: r.descriptor.Name,
				Issues: []string{fmt.Sprintf("%s: relation is not defined", name)},
			}
		}
		relations = append(relations, rel)
	}

	results := make([]map[string]any, len(relations))
	g, gctx := errgroup.WithContext(ctx)
	for i, rel := range relations {
		g.Go(func() error {
			attached, err := r.resolveRelation(gctx, h, docs, rel)
			if err != nil {
				return fmt.Errorf("include %s: %w", rel.Name, err)
			}
			results[i] = attached
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, rel := range relations {
		for _, doc := range docs {
			key := fmt.Sprint(doc[rel.KeyFrom])
			if v, ok := results[i][key]; ok {
				doc[rel.Name] = v
			} else if rel.Kind == schema.HasMany {
				doc[rel.Name] = []any{}
			}
		}
	}
	return nil
}

// resolveRelation loads the related records of docs keyed by the source key.
func (r *Repository[T]) resolveRelation(ctx context.Context, h *Handle, docs []store.Document, rel schema.Relation) (map[string]any, error) {
	target, ok := r.cache.registry.Get(rel.Target)
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", rel.Target)
	}
	th, err := r.cache.Handle(ctx, target, h.TenantKey)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	keys := make([]any, 0, len(docs))
	for _, doc := range docs {
		v, ok := doc[rel.KeyFrom]
		if !ok || v == nil {
			continue
		}
		k := fmt.Sprint(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, v)
	}
	out := make(map[string]any, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	related, err := r.backend().Find(ctx, th.Collection, store.Filter{
		Where: store.Where{rel.KeyTo: map[string]any{store.OpInq: keys}},
	})
	if err != nil {
		return nil, err
	}
	for _, doc := range related {
		k := fmt.Sprint(doc[rel.KeyTo])
		switch rel.Kind {
		case schema.HasMany:
			list, _ := out[k].([]any)
			out[k] = append(list, map[string]any(doc))
		default:
			if _, exists := out[k]; !exists {
				out[k] = map[string]any(doc)
			}
		}
	}
	return out, nil
}
