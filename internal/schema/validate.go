package schema

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Validate checks doc against the descriptor. Partial documents skip the
// required check. Returned issues are sorted for stable messages.
func (r *Registry) Validate(d Descriptor, doc map[string]any, partial bool) []string {
	var issues []string
	r.validate(d, doc, partial, "", &issues)
	sort.Strings(issues)
	return issues
}

func (r *Registry) validate(d Descriptor, doc map[string]any, partial bool, prefix string, issues *[]string) {
	for key, value := range doc {
		path := prefix + key
		field, ok := d.Field(key)
		if !ok {
			if key == d.IDField {
				if value != nil {
					if _, isString := value.(string); !isString {
						*issues = append(*issues, fmt.Sprintf("%s: must be a string", path))
					}
				}
				continue
			}
			if d.Settings.Strict {
				*issues = append(*issues, fmt.Sprintf("%s: unknown property", path))
			}
			continue
		}
		if value == nil {
			if field.Required && !partial {
				*issues = append(*issues, fmt.Sprintf("%s: is required", path))
			}
			continue
		}
		r.checkType(field.Type, field.Ref, field.ItemType, field.ItemRef, value, path, issues)
	}
	if partial {
		return
	}
	for _, field := range d.Fields {
		if !field.Required {
			continue
		}
		if _, ok := doc[field.Name]; !ok {
			*issues = append(*issues, fmt.Sprintf("%s%s: is required", prefix, field.Name))
		}
	}
}

func (r *Registry) checkType(typ FieldType, ref string, itemType FieldType, itemRef string, value any, path string, issues *[]string) {
	bad := func(want string) {
		*issues = append(*issues, fmt.Sprintf("%s: must be %s", path, want))
	}
	switch typ {
	case String:
		if _, ok := value.(string); !ok {
			bad("a string")
		}
	case Number:
		if !isNumber(value) {
			bad("a number")
		}
	case Boolean:
		if _, ok := value.(bool); !ok {
			bad("a boolean")
		}
	case Date:
		switch v := value.(type) {
		case time.Time:
		case string:
			if _, err := ParseTime(v); err != nil {
				bad("a date")
			}
		default:
			bad("a date")
		}
	case Object:
		if _, ok := value.(map[string]any); !ok {
			bad("an object")
		}
	case Entity:
		nested, ok := value.(map[string]any)
		if !ok {
			bad("an object")
			return
		}
		if target, found := r.Get(ref); found {
			r.validate(target, nested, false, path+".", issues)
		}
	case Array:
		items, ok := value.([]any)
		if !ok {
			bad("an array")
			return
		}
		if itemType == "" || itemType == Any {
			return
		}
		for i, item := range items {
			if item == nil {
				continue
			}
			r.checkType(itemType, itemRef, "", "", item, fmt.Sprintf("%s[%d]", path, i), issues)
		}
	}
}

func isNumber(v any) bool {
	switch n := v.(type) {
	case float64:
		return !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

// ApplyDefaults sets declared defaults for fields missing from doc.
func (d Descriptor) ApplyDefaults(doc map[string]any) {
	for _, field := range d.Fields {
		if field.Default == nil {
			continue
		}
		if v, ok := doc[field.Name]; !ok || v == nil {
			doc[field.Name] = field.Default
		}
	}
}

// Coerce converts date strings into time.Time for Date fields, recursing into
// nested entities. Values that do not parse are left untouched.
func (r *Registry) Coerce(d Descriptor, doc map[string]any) {
	for key, value := range doc {
		field, ok := d.Field(key)
		if !ok || value == nil {
			continue
		}
		switch field.Type {
		case Date:
			if s, isString := value.(string); isString {
				if ts, err := ParseTime(s); err == nil {
					doc[key] = ts
				}
			}
		case Entity:
			if nested, isMap := value.(map[string]any); isMap {
				if target, found := r.Get(field.Ref); found {
					r.Coerce(target, nested)
				}
			}
		case Array:
			items, isSlice := value.([]any)
			if !isSlice || field.ItemType != Entity {
				continue
			}
			target, found := r.Get(field.ItemRef)
			if !found {
				continue
			}
			for _, item := range items {
				if nested, isMap := item.(map[string]any); isMap {
					r.Coerce(target, nested)
				}
			}
		}
	}
}

// ParseTime accepts RFC 3339 timestamps and plain dates.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("schema: invalid date %q", s)
}

// FormatTime renders a timestamp with millisecond precision in UTC, e.g.
// 2024-01-05T00:00:00.000Z.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
