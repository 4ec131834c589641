package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Where is a query condition. Keys are field paths (dotted for nested
// properties) or the logical operators "and" / "or". Values are either a
// literal, matched by equality, or an operator object such as
// {"gt": 3} or {"inq": ["a", "b"]}.
type Where map[string]any

// Supported comparison operators.
const (
	OpEq      = "eq"
	OpNeq     = "neq"
	OpGt      = "gt"
	OpGte     = "gte"
	OpLt      = "lt"
	OpLte     = "lte"
	OpInq     = "inq"
	OpNin     = "nin"
	OpBetween = "between"
	OpExists  = "exists"
	OpLike    = "like"
	OpNlike   = "nlike"
	OpRegexp  = "regexp"
	OpOptions = "options"

	OpAnd = "and"
	OpOr  = "or"
)

var operators = map[string]struct{}{
	OpEq: {}, OpNeq: {}, OpGt: {}, OpGte: {}, OpLt: {}, OpLte: {},
	OpInq: {}, OpNin: {}, OpBetween: {}, OpExists: {}, OpLike: {},
	OpNlike: {}, OpRegexp: {}, OpOptions: {},
}

// IsOperator reports whether key is a comparison operator.
func IsOperator(key string) bool {
	_, ok := operators[key]
	return ok
}

// OperatorMap returns v as an operator object when every key is an operator.
func OperatorMap(v any) (map[string]any, bool) {
	m, ok := asMap(v)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !IsOperator(k) {
			return nil, false
		}
	}
	return m, true
}

// Clauses returns the sub-conditions of an "and" / "or" value.
func Clauses(v any) ([]Where, error) {
	items, ok := v.([]any)
	if !ok {
		if typed, isTyped := v.([]Where); isTyped {
			return typed, nil
		}
		if typed, isTyped := v.([]map[string]any); isTyped {
			out := make([]Where, len(typed))
			for i, m := range typed {
				out[i] = Where(m)
			}
			return out, nil
		}
		return nil, fmt.Errorf("store: logical operator expects an array, got %T", v)
	}
	out := make([]Where, 0, len(items))
	for _, item := range items {
		m, ok := asMap(item)
		if !ok {
			return nil, fmt.Errorf("store: logical clause must be an object, got %T", item)
		}
		out = append(out, Where(m))
	}
	return out, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Where:
		return m, true
	case Document:
		return m, true
	}
	return nil, false
}

// Literal returns the value compared for equality in a where clause, either
// the raw value or the operand of an {"eq": v} object.
func (w Where) Literal(field string) (any, bool) {
	v, ok := w[field]
	if !ok {
		return nil, false
	}
	if ops, isOps := OperatorMap(v); isOps {
		if len(ops) != 1 {
			return nil, false
		}
		eq, hasEq := ops[OpEq]
		return eq, hasEq
	}
	return v, true
}

// SortKey orders results by one field.
type SortKey struct {
	Field string
	Desc  bool
}

// Filter selects, orders, projects and paginates documents.
type Filter struct {
	Where   Where
	Fields  []string
	Order   []SortKey
	Limit   int
	Skip    int
	Include []string
}

// Projection returns the fields to keep, always including idField. A nil
// result keeps every field.
func (f Filter) Projection(idField string) []string {
	if len(f.Fields) == 0 {
		return nil
	}
	out := append([]string(nil), f.Fields...)
	for _, name := range out {
		if name == idField {
			return out
		}
	}
	return append(out, idField)
}

type rawFilter struct {
	Where   Where           `json:"where"`
	Fields  json.RawMessage `json:"fields"`
	Order   json.RawMessage `json:"order"`
	Limit   int             `json:"limit"`
	Skip    int             `json:"skip"`
	Offset  int             `json:"offset"`
	Include json.RawMessage `json:"include"`
}

// UnmarshalJSON accepts the query-string filter shapes clients send:
// fields as a list or a {"name": true} map, order as "field DESC" or a list,
// include as a name, list of names, or list of {"relation": name} objects.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw rawFilter
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("store: decode filter: %w", err)
	}
	out := Filter{Where: raw.Where, Limit: raw.Limit, Skip: raw.Skip}
	if out.Skip == 0 {
		out.Skip = raw.Offset
	}
	fields, err := decodeFields(raw.Fields)
	if err != nil {
		return err
	}
	out.Fields = fields
	order, err := decodeStrings(raw.Order)
	if err != nil {
		return fmt.Errorf("store: decode order: %w", err)
	}
	for _, o := range order {
		key, err := ParseSortKey(o)
		if err != nil {
			return err
		}
		out.Order = append(out.Order, key)
	}
	include, err := decodeInclude(raw.Include)
	if err != nil {
		return err
	}
	out.Include = include
	*f = out
	return nil
}

// ParseSortKey parses "field", "field ASC" or "field DESC".
func ParseSortKey(s string) (SortKey, error) {
	parts := strings.Fields(s)
	switch len(parts) {
	case 1:
		return SortKey{Field: parts[0]}, nil
	case 2:
		switch strings.ToUpper(parts[1]) {
		case "ASC":
			return SortKey{Field: parts[0]}, nil
		case "DESC":
			return SortKey{Field: parts[0], Desc: true}, nil
		}
	}
	return SortKey{}, fmt.Errorf("store: invalid order %q", s)
}

func decodeStrings(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func decodeFields(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var flags map[string]bool
	if err := json.Unmarshal(raw, &flags); err == nil {
		var out []string
		for name, keep := range flags {
			if keep {
				out = append(out, name)
			}
		}
		sort.Strings(out)
		return out, nil
	}
	list, err := decodeStrings(raw)
	if err != nil {
		return nil, fmt.Errorf("store: decode fields: %w", err)
	}
	return list, nil
}

func decodeInclude(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if names, err := decodeStrings(raw); err == nil {
		return names, nil
	}
	var objects []struct {
		Relation string `json:"relation"`
	}
	if err := json.Unmarshal(raw, &objects); err != nil {
		return nil, fmt.Errorf("store: decode include: %w", err)
	}
	out := make([]string, 0, len(objects))
	for _, o := range objects {
		if o.Relation != "" {
			out = append(out, o.Relation)
		}
	}
	return out, nil
}

// ParseWhere decodes a where clause from its JSON query representation.
func ParseWhere(s string) (Where, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var w Where
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return nil, fmt.Errorf("store: decode where: %w", err)
	}
	return w, nil
}

// ParseFilter decodes a filter from its JSON query representation.
func ParseFilter(s string) (Filter, error) {
	if strings.TrimSpace(s) == "" {
		return Filter{}, nil
	}
	var f Filter
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return Filter{}, err
	}
	return f, nil
}
