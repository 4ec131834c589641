package mongo

import (
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/ratekl/api/internal/store"
)

var comparison = map[string]string{
	store.OpEq:  "$eq",
	store.OpNeq: "$ne",
	store.OpGt:  "$gt",
	store.OpGte: "$gte",
	store.OpLt:  "$lt",
	store.OpLte: "$lte",
	store.OpInq: "$in",
	store.OpNin: "$nin",
}

// Translate converts a where clause into a MongoDB query document. The id
// field is rewritten to _id.
func Translate(where store.Where, idField string) (bson.M, error) {
	out := bson.M{}
	for key, cond := range where {
		switch key {
		case store.OpAnd, store.OpOr:
			clauses, err := store.Clauses(cond)
			if err != nil {
				return nil, err
			}
			parts := make(bson.A, 0, len(clauses))
			for _, clause := range clauses {
				part, err := Translate(clause, idField)
				if err != nil {
					return nil, err
				}
				parts = append(parts, part)
			}
			if len(parts) > 0 {
				out["$"+key] = parts
			}
			continue
		}
		field := fieldName(key, idField)
		ops, isOps := store.OperatorMap(cond)
		if !isOps {
			if field == idKey {
				cond = matchID(cond)
			}
			out[field] = cond
			continue
		}
		expr, err := translateOps(ops)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		out[field] = expr
	}
	return out, nil
}

// matchID matches an id given as hex against both its string form and the
// ObjectID it encodes, so records written with server-generated ids stay
// addressable.
func matchID(id any) any {
	s, ok := id.(string)
	if !ok {
		return id
	}
	oid, err := bson.ObjectIDFromHex(s)
	if err != nil {
		return id
	}
	return bson.M{"$in": bson.A{s, oid}}
}

func translateOps(ops map[string]any) (bson.M, error) {
	expr := bson.M{}
	for op, operand := range ops {
		if mongoOp, ok := comparison[op]; ok {
			expr[mongoOp] = operand
			continue
		}
		switch op {
		case store.OpBetween:
			bounds, ok := operand.([]any)
			if !ok || len(bounds) != 2 {
				return nil, fmt.Errorf("between expects two bounds")
			}
			expr["$gte"] = bounds[0]
			expr["$lte"] = bounds[1]
		case store.OpExists:
			expr["$exists"] = operand
		case store.OpLike, store.OpRegexp:
			re, err := regex(operand, ops[store.OpOptions])
			if err != nil {
				return nil, err
			}
			expr["$regex"] = re
		case store.OpNlike:
			re, err := regex(operand, ops[store.OpOptions])
			if err != nil {
				return nil, err
			}
			expr["$not"] = re
		case store.OpOptions:
		default:
			return nil, fmt.Errorf("unsupported operator %q", op)
		}
	}
	return expr, nil
}

func regex(pattern, options any) (bson.Regex, error) {
	expr, ok := pattern.(string)
	if !ok {
		return bson.Regex{}, fmt.Errorf("pattern must be a string")
	}
	flags := ""
	if strings.HasPrefix(expr, "/") && strings.LastIndex(expr, "/") > 0 {
		last := strings.LastIndex(expr, "/")
		flags = expr[last+1:]
		expr = expr[1:last]
	}
	if opt, isString := options.(string); isString {
		flags += opt
	}
	if _, err := regexp.Compile(expr); err != nil {
		return bson.Regex{}, fmt.Errorf("invalid pattern: %w", err)
	}
	return bson.Regex{Pattern: expr, Options: flags}, nil
}
