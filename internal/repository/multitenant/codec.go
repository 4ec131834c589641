package multitenant

import (
	"encoding/json"
	"fmt"

	"github.com/ratekl/api/internal/schema"
	"github.com/ratekl/api/internal/store"
)

// toDocument converts an entity into its stored representation. Relation
// properties are never persisted.
func (r *Repository[T]) toDocument(entity T) (store.Document, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", r.descriptor.Name, err)
	}
	var doc store.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode %s: %w", r.descriptor.Name, err)
	}
	if doc == nil {
		doc = store.Document{}
	}
	for _, rel := range r.descriptor.Relations {
		delete(doc, rel.Name)
	}
	return doc, nil
}

func fromDocument[T any](doc store.Document) (T, error) {
	var out T
	raw, err := json.Marshal(doc)
	if err != nil {
		return out, fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

func fromDocuments[T any](docs []store.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		entity, err := fromDocument[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

func idOf(doc store.Document, idField string) string {
	switch id := doc[idField].(type) {
	case nil:
		return ""
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}

// coerceWhere converts date strings compared against Date fields into
// time.Time values so every backend compares instants.
func (r *Repository[T]) coerceWhere(where store.Where) store.Where {
	if len(where) == 0 {
		return where
	}
	out := make(store.Where, len(where))
	for key, cond := range where {
		switch key {
		case store.OpAnd, store.OpOr:
			clauses, err := store.Clauses(cond)
			if err != nil {
				out[key] = cond
				continue
			}
			converted := make([]any, 0, len(clauses))
			for _, clause := range clauses {
				converted = append(converted, map[string]any(r.coerceWhere(clause)))
			}
			out[key] = converted
			continue
		}
		field, ok := r.descriptor.Field(key)
		if !ok || field.Type != schema.Date {
			out[key] = cond
			continue
		}
		if ops, isOps := store.OperatorMap(cond); isOps {
			converted := make(map[string]any, len(ops))
			for op, operand := range ops {
				converted[op] = coerceDate(operand)
			}
			out[key] = converted
			continue
		}
		out[key] = coerceDate(cond)
	}
	return out
}

func coerceDate(v any) any {
	switch val := v.(type) {
	case string:
		if ts, err := schema.ParseTime(val); err == nil {
			return ts
		}
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = coerceDate(item)
		}
		return out
	}
	return v
}
