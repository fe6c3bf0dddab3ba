package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/mhayashi-dev/prodtrack/internal/dates"
	"github.com/mhayashi-dev/prodtrack/internal/schema"
)

// baseAlias is the alias of the queried entity's table in compiled SQL.
const baseAlias = "e"

// compiler translates a filter tree into a WHERE clause plus the LEFT JOIN
// chain needed by dotted cross-relationship paths. Negative operators
// compile with an IS NULL escape so rows whose intermediate relationship is
// null match is_not/not_in and never match positive conditions.
type compiler struct {
	reg     *schema.Registry
	base    *schema.Entity
	joins   []string
	aliases map[string]string // dotted path prefix -> join alias
}

func newCompiler(reg *schema.Registry, base *schema.Entity) *compiler {
	return &compiler{reg: reg, base: base, aliases: make(map[string]string)}
}

// fieldRef is a resolved filter/order field: the SQL column expression for
// scalars and to-one references, or the join-table geometry for a to-many
// terminal segment.
type fieldRef struct {
	field      schema.Field
	expr       string
	ownerAlias string
}

func (c *compiler) resolveField(path string) (fieldRef, error) {
	segments := strings.Split(path, ".")
	ent := c.base
	alias := baseAlias
	for i, seg := range segments {
		// The primary key is addressable on every entity even though it is
		// not a declared field.
		if seg == "id" {
			if i != len(segments)-1 {
				return fieldRef{}, &InvalidFilterError{Reason: fmt.Sprintf("cannot traverse %s.id: id is not a relationship (path %q)", ent.Kind, path)}
			}
			return fieldRef{
				field:      schema.Field{Name: "id", Type: schema.TypeInt},
				expr:       alias + ".id",
				ownerAlias: alias,
			}, nil
		}
		field, ok := ent.Field(seg)
		if !ok {
			return fieldRef{}, &InvalidFilterError{Reason: fmt.Sprintf("entity %s has no field %q (path %q)", ent.Kind, seg, path)}
		}
		if i == len(segments)-1 {
			ref := fieldRef{field: field, ownerAlias: alias}
			if field.Type == schema.TypeMultiEntity {
				return ref, nil
			}
			ref.expr = alias + "." + field.Column()
			return ref, nil
		}
		if field.Type != schema.TypeEntity {
			return fieldRef{}, &InvalidFilterError{Reason: fmt.Sprintf("cannot traverse %s.%s: only to-one relationships may appear mid-path", ent.Kind, seg)}
		}
		target, ok := c.reg.Entity(string(field.Target))
		if !ok {
			return fieldRef{}, &InvalidFilterError{Reason: fmt.Sprintf("field %s.%s targets undeclared kind %s", ent.Kind, seg, field.Target)}
		}
		prefix := strings.Join(segments[:i+1], ".")
		joinAlias, seen := c.aliases[prefix]
		if !seen {
			joinAlias = fmt.Sprintf("j%d", len(c.aliases)+1)
			c.aliases[prefix] = joinAlias
			c.joins = append(c.joins, fmt.Sprintf("LEFT JOIN %s %s ON %s.id = %s.%s",
				target.Table, joinAlias, joinAlias, alias, field.Column()))
		}
		ent = target
		alias = joinAlias
	}
	return fieldRef{}, &InvalidFilterError{Reason: fmt.Sprintf("empty field path %q", path)}
}

// where compiles a filter list under the given top-level connector.
// Returns an empty clause when there is nothing to filter on.
func (c *compiler) where(filters []Filter, connector string) (string, []any, error) {
	connector, err := normalizeConnector(connector)
	if err != nil {
		return "", nil, err
	}
	return c.groupSQL(filters, connector)
}

func (c *compiler) groupSQL(filters []Filter, connector string) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	glue := " AND "
	if connector == "any" {
		glue = " OR "
	}
	var (
		parts []string
		args  []any
	)
	for _, f := range filters {
		switch node := f.(type) {
		case Cond:
			sql, condArgs, err := c.condSQL(node)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			args = append(args, condArgs...)
		case Group:
			childConnector, err := normalizeConnector(node.Operator)
			if err != nil {
				return "", nil, err
			}
			sql, childArgs, err := c.groupSQL(node.Filters, childConnector)
			if err != nil {
				return "", nil, err
			}
			if sql == "" {
				continue
			}
			parts = append(parts, "("+sql+")")
			args = append(args, childArgs...)
		default:
			return "", nil, &InvalidFilterError{Reason: fmt.Sprintf("unrecognized filter node %T", f)}
		}
	}
	if len(parts) == 0 {
		return "", nil, nil
	}
	return strings.Join(parts, glue), args, nil
}

func (c *compiler) condSQL(cond Cond) (string, []any, error) {
	op, err := canonicalOp(cond.Op)
	if err != nil {
		return "", nil, err
	}
	ref, err := c.resolveField(cond.Field)
	if err != nil {
		return "", nil, err
	}
	if ref.field.Type == schema.TypeMultiEntity {
		return c.multiEntitySQL(ref, op, cond.Value)
	}

	col := ref.expr
	value := normalizeFilterValue(ref.field, cond.Value)

	switch op {
	case opIs:
		if value == nil {
			return col + " IS NULL", nil, nil
		}
		return col + " = ?", []any{value}, nil
	case opIsNot:
		if value == nil {
			return col + " IS NOT NULL", nil, nil
		}
		return "(" + col + " IS NULL OR " + col + " != ?)", []any{value}, nil
	case opIn:
		values, err := normalizeFilterList(ref.field, cond.Value)
		if err != nil {
			return "", nil, err
		}
		if len(values) == 0 {
			return "0 = 1", nil, nil
		}
		return col + " IN (" + placeholders(len(values)) + ")", values, nil
	case opNotIn:
		values, err := normalizeFilterList(ref.field, cond.Value)
		if err != nil {
			return "", nil, err
		}
		if len(values) == 0 {
			return "1 = 1", nil, nil
		}
		return "(" + col + " IS NULL OR " + col + " NOT IN (" + placeholders(len(values)) + "))", values, nil
	case opContains, opNotContains, opStartsWith, opEndsWith:
		s, ok := cond.Value.(string)
		if !ok {
			return "", nil, &InvalidFilterError{Reason: fmt.Sprintf("operator %s requires a string value, got %T", op, cond.Value)}
		}
		pattern := escapeLikePattern(s)
		switch op {
		case opContains:
			return col + ` LIKE ? ESCAPE '\'`, []any{"%" + pattern + "%"}, nil
		case opNotContains:
			return "(" + col + " IS NULL OR " + col + ` NOT LIKE ? ESCAPE '\')`, []any{"%" + pattern + "%"}, nil
		case opStartsWith:
			return col + ` LIKE ? ESCAPE '\'`, []any{pattern + "%"}, nil
		default:
			return col + ` LIKE ? ESCAPE '\'`, []any{"%" + pattern}, nil
		}
	case opLT, opLTE, opGT, opGTE:
		return col + " " + op + " ?", []any{value}, nil
	case opBetween:
		bounds, err := normalizeFilterList(ref.field, cond.Value)
		if err != nil || len(bounds) != 2 {
			return "", nil, &InvalidFilterError{Reason: "between requires a 2-element [low, high] value"}
		}
		return col + " BETWEEN ? AND ?", bounds, nil
	default:
		return "", nil, &UnsupportedOperatorError{Op: op}
	}
}

// multiEntitySQL compiles conditions against a to-many terminal segment as
// EXISTS subqueries over the join table, so rows never duplicate.
func (c *compiler) multiEntitySQL(ref fieldRef, op string, value any) (string, []any, error) {
	f := ref.field
	sub := fmt.Sprintf("SELECT 1 FROM %s m WHERE m.%s = %s.id", f.JoinTable, f.SourceColumn, ref.ownerAlias)
	target := "m." + f.TargetColumn

	switch op {
	case opIs:
		if value == nil {
			return "NOT EXISTS (" + sub + ")", nil, nil
		}
		id, ok := asID(normalizeFilterValue(f, value))
		if !ok {
			return "", nil, &InvalidFilterError{Reason: fmt.Sprintf("cannot use %T as a reference id", value)}
		}
		return "EXISTS (" + sub + " AND " + target + " = ?)", []any{id}, nil
	case opIsNot:
		if value == nil {
			return "EXISTS (" + sub + ")", nil, nil
		}
		id, ok := asID(normalizeFilterValue(f, value))
		if !ok {
			return "", nil, &InvalidFilterError{Reason: fmt.Sprintf("cannot use %T as a reference id", value)}
		}
		return "NOT EXISTS (" + sub + " AND " + target + " = ?)", []any{id}, nil
	case opIn, opNotIn:
		values, err := normalizeFilterList(f, value)
		if err != nil {
			return "", nil, err
		}
		if len(values) == 0 {
			if op == opIn {
				return "0 = 1", nil, nil
			}
			return "1 = 1", nil, nil
		}
		clause := "EXISTS (" + sub + " AND " + target + " IN (" + placeholders(len(values)) + "))"
		if op == opNotIn {
			clause = "NOT " + clause
		}
		return clause, values, nil
	default:
		return "", nil, &UnsupportedOperatorError{Op: op}
	}
}

// orderBy compiles order specs into an ORDER BY clause, always appending
// the base id as the final key so composite sorts are stable.
func (c *compiler) orderBy(specs []OrderSpec) (string, error) {
	keys := make([]string, 0, len(specs)+1)
	for _, spec := range specs {
		ref, err := c.resolveField(spec.Field)
		if err != nil {
			return "", err
		}
		if ref.field.Type == schema.TypeMultiEntity {
			return "", &InvalidFilterError{Reason: fmt.Sprintf("cannot order by to-many field %q", spec.Field)}
		}
		dir := "ASC"
		if strings.HasPrefix(strings.ToLower(spec.Direction), "desc") {
			dir = "DESC"
		}
		keys = append(keys, ref.expr+" "+dir)
	}
	keys = append(keys, baseAlias+".id ASC")
	return strings.Join(keys, ", "), nil
}

// normalizeFilterValue converts reference values (Link or {id: ...} maps)
// to bare ids and time values to the field's storage format.
func normalizeFilterValue(f schema.Field, v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case Link:
		return val.ID
	case map[string]any:
		if id, ok := asID(val["id"]); ok {
			return id
		}
		return v
	case time.Time:
		if f.Type == schema.TypeDateTime {
			return val.Format(dates.DateTimeLayout)
		}
		return val.Format(dates.DateLayout)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

func normalizeFilterList(f schema.Field, v any) ([]any, error) {
	raw, err := anySlice(v)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(raw))
	for i, item := range raw {
		out[i] = normalizeFilterValue(f, item)
	}
	return out, nil
}

// anySlice widens the slice shapes filter values arrive in.
func anySlice(v any) ([]any, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return list, nil
	case []int64:
		out := make([]any, len(list))
		for i, n := range list {
			out[i] = n
		}
		return out, nil
	case []int:
		out := make([]any, len(list))
		for i, n := range list {
			out[i] = int64(n)
		}
		return out, nil
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, nil
	default:
		return nil, &InvalidFilterError{Reason: fmt.Sprintf("operator requires a list value, got %T", v)}
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// escapeLikePattern escapes special characters for LIKE pattern matching.
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
