package memstore

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/ratekl/api/internal/store"
)

// Match evaluates a where clause against a document.
func Match(doc store.Document, where store.Where) (bool, error) {
	for key, cond := range where {
		switch key {
		case store.OpAnd, store.OpOr:
			clauses, err := store.Clauses(cond)
			if err != nil {
				return false, err
			}
			ok, err := matchLogical(doc, key, clauses)
			if err != nil || !ok {
				return false, err
			}
			continue
		}
		value, present := lookup(doc, key)
		ok, err := matchField(value, present, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchLogical(doc store.Document, op string, clauses []store.Where) (bool, error) {
	if len(clauses) == 0 {
		return true, nil
	}
	for _, clause := range clauses {
		ok, err := Match(doc, clause)
		if err != nil {
			return false, err
		}
		if op == store.OpOr && ok {
			return true, nil
		}
		if op == store.OpAnd && !ok {
			return false, nil
		}
	}
	return op == store.OpAnd, nil
}

func matchField(value any, present bool, cond any) (bool, error) {
	ops, isOps := store.OperatorMap(cond)
	if !isOps {
		return matchEq(value, cond), nil
	}
	for op, operand := range ops {
		ok, err := matchOp(op, value, present, operand, ops)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchOp(op string, value any, present bool, operand any, ops map[string]any) (bool, error) {
	switch op {
	case store.OpEq:
		return matchEq(value, operand), nil
	case store.OpNeq:
		return !matchEq(value, operand), nil
	case store.OpGt, store.OpGte, store.OpLt, store.OpLte:
		cmp, ok := compare(value, operand)
		if !ok {
			return false, nil
		}
		switch op {
		case store.OpGt:
			return cmp > 0, nil
		case store.OpGte:
			return cmp >= 0, nil
		case store.OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case store.OpInq, store.OpNin:
		items, ok := toSlice(operand)
		if !ok {
			return false, fmt.Errorf("store: %s expects an array, got %T", op, operand)
		}
		found := false
		for _, item := range items {
			if matchEq(value, item) {
				found = true
				break
			}
		}
		if op == store.OpInq {
			return found, nil
		}
		return !found, nil
	case store.OpBetween:
		bounds, ok := toSlice(operand)
		if !ok || len(bounds) != 2 {
			return false, fmt.Errorf("store: between expects two bounds")
		}
		lo, okLo := compare(value, bounds[0])
		hi, okHi := compare(value, bounds[1])
		return okLo && okHi && lo >= 0 && hi <= 0, nil
	case store.OpExists:
		want, ok := operand.(bool)
		if !ok {
			return false, fmt.Errorf("store: exists expects a boolean")
		}
		return present == want, nil
	case store.OpLike, store.OpNlike, store.OpRegexp:
		re, err := compilePattern(operand, ops[store.OpOptions])
		if err != nil {
			return false, err
		}
		s, isString := value.(string)
		matched := isString && re.MatchString(s)
		if op == store.OpNlike {
			return !matched, nil
		}
		return matched, nil
	case store.OpOptions:
		return true, nil
	}
	return false, fmt.Errorf("store: unsupported operator %q", op)
}

func compilePattern(pattern any, options any) (*regexp.Regexp, error) {
	expr, ok := pattern.(string)
	if !ok {
		return nil, fmt.Errorf("store: pattern must be a string")
	}
	if expr = strings.TrimSpace(expr); strings.HasPrefix(expr, "/") && strings.LastIndex(expr, "/") > 0 {
		last := strings.LastIndex(expr, "/")
		flags := expr[last+1:]
		expr = expr[1:last]
		if strings.Contains(flags, "i") {
			expr = "(?i)" + expr
		}
	}
	if flags, isString := options.(string); isString && strings.Contains(flags, "i") {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}

// matchEq matches scalars by value. An array field matches when any element
// is equal, the way document databases treat equality on arrays.
func matchEq(value, want any) bool {
	if items, ok := value.([]any); ok {
		if _, wantSlice := want.([]any); !wantSlice {
			for _, item := range items {
				if equal(item, want) {
					return true
				}
			}
			return false
		}
	}
	return equal(value, want)
}

func equal(a, b any) bool {
	if cmp, ok := compare(a, b); ok {
		return cmp == 0
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compare orders two values of a compatible kind. Dates compare with RFC 3339
// strings so that JSON clients can query date fields.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	if ta, ok := toTime(a); ok {
		if tb, ok := toTime(b); ok {
			return ta.Compare(tb), true
		}
		if _, isTime := a.(time.Time); isTime {
			return 0, false
		}
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func toSlice(v any) ([]any, bool) {
	switch items := v.(type) {
	case []any:
		return items, true
	case []string:
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out, true
	case []time.Time:
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out, true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		ts, err := time.Parse(time.RFC3339Nano, t)
		return ts, err == nil
	}
	return time.Time{}, false
}

// lookup resolves a dotted path inside a document.
func lookup(doc store.Document, path string) (any, bool) {
	var current any = map[string]any(doc)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			if d, isDoc := current.(store.Document); isDoc {
				m = d
			} else {
				return nil, false
			}
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
