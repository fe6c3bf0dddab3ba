package query

import (
	"fmt"
	"strings"
)

// Filter is one node of a boolean filter tree: either a Cond leaf or a
// Group combining child filters with AND/OR.
type Filter interface {
	isFilter()
}

// Cond is a single (field, operator, value) condition. Field may be a
// dotted cross-relationship path.
type Cond struct {
	Field string
	Op    string
	Value any
}

func (Cond) isFilter() {}

// Group combines child filters with its own connector ("all" = AND,
// "any" = OR). Groups nest arbitrarily.
type Group struct {
	Operator string
	Filters  []Filter
}

func (Group) isFilter() {}

// OrderSpec is one ordering key; Direction is "asc" or "desc".
type OrderSpec struct {
	Field     string
	Direction string
}

// Canonical operator names after synonym folding.
const (
	opIs          = "is"
	opIsNot       = "is_not"
	opIn          = "in"
	opNotIn       = "not_in"
	opContains    = "contains"
	opNotContains = "not_contains"
	opStartsWith  = "starts_with"
	opEndsWith    = "ends_with"
	opLT          = "<"
	opLTE         = "<="
	opGT          = ">"
	opGTE         = ">="
	opBetween     = "between"
)

// canonicalOp folds the operator spellings accepted on the wire into their
// canonical names.
func canonicalOp(op string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(op)) {
	case "", "is", "equals", "==":
		return opIs, nil
	case "is_not", "!=":
		return opIsNot, nil
	case "in":
		return opIn, nil
	case "not_in":
		return opNotIn, nil
	case "contains", "name_contains":
		return opContains, nil
	case "not_contains":
		return opNotContains, nil
	case "starts_with", "startswith":
		return opStartsWith, nil
	case "ends_with", "endswith":
		return opEndsWith, nil
	case "<", "lt":
		return opLT, nil
	case "<=", "lte":
		return opLTE, nil
	case ">", "gt":
		return opGT, nil
	case ">=", "gte":
		return opGTE, nil
	case "between", "range":
		return opBetween, nil
	default:
		return "", &UnsupportedOperatorError{Op: op}
	}
}

// normalizeConnector validates a filter_operator value, defaulting to "all".
func normalizeConnector(op string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(op)) {
	case "", "all":
		return "all", nil
	case "any":
		return "any", nil
	default:
		return "", &InvalidFilterError{Reason: fmt.Sprintf("filter_operator must be \"all\" or \"any\", got %q", op)}
	}
}

// ParseFilters converts a decoded JSON filter list into a filter tree.
// Each element is a 2-tuple [field, value] (implicit "is"), a 3-tuple
// [field, operator, value], or a {"filter_operator": ..., "filters": [...]}
// group.
func ParseFilters(v any) ([]Filter, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, &InvalidFilterError{Reason: fmt.Sprintf("filters must be a list, got %T", v)}
	}
	filters := make([]Filter, 0, len(list))
	for _, item := range list {
		f, err := parseFilter(item)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func parseFilter(item any) (Filter, error) {
	switch node := item.(type) {
	case map[string]any:
		rawOp, hasOp := node["filter_operator"]
		if !hasOp {
			return nil, &InvalidFilterError{Reason: "filter group is missing filter_operator"}
		}
		opStr, _ := rawOp.(string)
		connector, err := normalizeConnector(opStr)
		if err != nil {
			return nil, err
		}
		children, err := ParseFilters(node["filters"])
		if err != nil {
			return nil, err
		}
		return Group{Operator: connector, Filters: children}, nil
	case []any:
		switch len(node) {
		case 2:
			field, ok := node[0].(string)
			if !ok {
				return nil, &InvalidFilterError{Reason: "filter field name must be a string"}
			}
			return Cond{Field: field, Op: opIs, Value: node[1]}, nil
		case 3:
			field, ok := node[0].(string)
			if !ok {
				return nil, &InvalidFilterError{Reason: "filter field name must be a string"}
			}
			op, ok := node[1].(string)
			if !ok {
				return nil, &InvalidFilterError{Reason: "filter operator must be a string"}
			}
			return Cond{Field: field, Op: op, Value: node[2]}, nil
		default:
			return nil, &InvalidFilterError{Reason: fmt.Sprintf("filter condition must have 2 or 3 elements, got %d", len(node))}
		}
	default:
		return nil, &InvalidFilterError{Reason: fmt.Sprintf("filter element must be a condition or group, got %T", item)}
	}
}

// ParseOrder converts a decoded JSON order list into order specs. Elements
// are either {"field": ..., "direction": ...} maps (field_name and name are
// accepted aliases) or bare strings, with a "-" prefix meaning descending.
func ParseOrder(v any) ([]OrderSpec, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, &InvalidFilterError{Reason: fmt.Sprintf("order must be a list, got %T", v)}
	}
	specs := make([]OrderSpec, 0, len(list))
	for _, item := range list {
		switch node := item.(type) {
		case string:
			field := node
			direction := "asc"
			if strings.HasPrefix(field, "-") {
				field = strings.TrimPrefix(field, "-")
				direction = "desc"
			}
			specs = append(specs, OrderSpec{Field: field, Direction: direction})
		case map[string]any:
			var field string
			for _, key := range []string{"field_name", "field", "name"} {
				if s, ok := node[key].(string); ok && s != "" {
					field = s
					break
				}
			}
			if field == "" {
				continue
			}
			direction := "asc"
			if d, ok := node["direction"].(string); ok && strings.HasPrefix(strings.ToLower(d), "desc") {
				direction = "desc"
			}
			specs = append(specs, OrderSpec{Field: field, Direction: direction})
		default:
			return nil, &InvalidFilterError{Reason: fmt.Sprintf("order element must be a string or map, got %T", item)}
		}
	}
	return specs, nil
}
