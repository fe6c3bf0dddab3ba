// Package query implements the generic entity query engine: a single
// find/find_one surface over the declared entity schema, with nested
// boolean filters, dotted cross-relationship field paths, projection,
// ordering and pagination, plus create/update/delete mutations.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mhayashi-dev/prodtrack/internal/dates"
	"github.com/mhayashi-dev/prodtrack/internal/db"
	"github.com/mhayashi-dev/prodtrack/internal/schema"
)

// Engine executes entity queries and mutations against SQLite. Each public
// call is one logical storage transaction; the engine keeps no entity
// state between calls.
type Engine struct {
	db  *sql.DB
	uow db.UnitOfWork
	reg *schema.Registry
}

// NewEngine creates an Engine over an opened database. The registry is the
// single source of truth for entity kinds and relationship edges.
func NewEngine(database *sql.DB, reg *schema.Registry) *Engine {
	return &Engine{db: database, uow: db.NewSQLiteUnitOfWork(database), reg: reg}
}

// NewEngineWithUnitOfWork creates an Engine with an explicit transaction
// runner, used by tests to inject write failures.
func NewEngineWithUnitOfWork(database *sql.DB, uow db.UnitOfWork, reg *schema.Registry) *Engine {
	return &Engine{db: database, uow: uow, reg: reg}
}

// Registry returns the engine's entity registry.
func (e *Engine) Registry() *schema.Registry { return e.reg }

// FindOptions carries the optional parts of a Find call.
type FindOptions struct {
	// Fields is the projection list; empty means every direct attribute
	// plus every to-many relationship.
	Fields []string
	// Order applies as a stable composite sort, first spec winning.
	Order []OrderSpec
	// FilterOperator combines the top-level filters: "all" (default) or "any".
	FilterOperator string
	// Limit 0 means unbounded; Page is 1-indexed and only meaningful with
	// Limit > 0.
	Limit int
	Page  int
}

func (e *Engine) entity(name string) (*schema.Entity, error) {
	ent, ok := e.reg.Entity(name)
	if !ok {
		return nil, &UnknownEntityError{Type: name}
	}
	return ent, nil
}

// Find returns every record matching the filter tree, serialized per the
// projection rules.
func (e *Engine) Find(ctx context.Context, entityType string, filters []Filter, opts *FindOptions) ([]Record, error) {
	ent, err := e.entity(entityType)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &FindOptions{}
	}

	c := newCompiler(e.reg, ent)
	where, args, err := c.where(filters, opts.FilterOperator)
	if err != nil {
		return nil, err
	}
	orderBy, err := c.orderBy(opts.Order)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s %s", aliasColumns(ent, baseAlias), ent.Table, baseAlias)
	for _, join := range c.joins {
		b.WriteString(" ")
		b.WriteString(join)
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(orderBy)
	if opts.Limit > 0 {
		offset := 0
		if opts.Page > 1 {
			offset = (opts.Page - 1) * opts.Limit
		}
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", opts.Limit, offset)
	}

	rows, err := e.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, &StorageError{Op: "querying " + entityType, Err: err}
	}
	defer rows.Close()
	raw, err := scanRows(rows)
	if err != nil {
		return nil, &StorageError{Op: "querying " + entityType, Err: err}
	}

	f := newFetcher(e.db, e.reg)
	records := make([]Record, 0, len(raw))
	for _, row := range raw {
		rec, err := f.serialize(ctx, ent, row, opts.Fields)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// FindOne returns the first record matching the filters, or nil when
// nothing matches.
func (e *Engine) FindOne(ctx context.Context, entityType string, filters []Filter, fields []string) (Record, error) {
	records, err := e.Find(ctx, entityType, filters, &FindOptions{Fields: fields, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// Get is the single-entity lookup: FindOne on an id equality filter.
func (e *Engine) Get(ctx context.Context, entityType string, id int64, fields []string) (Record, error) {
	return e.FindOne(ctx, entityType, []Filter{Cond{Field: "id", Op: "is", Value: id}}, fields)
}

// Create inserts a new entity row (and its to-many join rows) in one
// transaction and returns the stored record.
func (e *Engine) Create(ctx context.Context, entityType string, data map[string]any, fields []string) (Record, error) {
	ent, err := e.entity(entityType)
	if err != nil {
		return nil, err
	}
	values, multi, err := splitInput(ent, data)
	if err != nil {
		return nil, err
	}

	var newID int64
	err = e.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		if err := e.checkReferences(ctx, tx, ent, values); err != nil {
			return err
		}
		cols := make([]string, 0, len(values))
		args := make([]any, 0, len(values))
		for _, field := range ent.Fields {
			col := field.Column()
			if col == "" {
				continue
			}
			if v, ok := values[field.Name]; ok {
				cols = append(cols, col)
				args = append(args, v)
			}
		}
		var res sql.Result
		if len(cols) == 0 {
			res, err = tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", ent.Table))
		} else {
			res, err = tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
				ent.Table, strings.Join(cols, ", "), placeholders(len(cols))), args...)
		}
		if err != nil {
			return &StorageError{Op: "creating " + entityType, Err: err}
		}
		newID, err = res.LastInsertId()
		if err != nil {
			return &StorageError{Op: "creating " + entityType, Err: err}
		}
		return e.writeMulti(ctx, tx, ent, newID, multi, false)
	})
	if err != nil {
		return nil, err
	}
	return e.Get(ctx, entityType, newID, fields)
}

// Update applies a partial update to the named fields and returns the
// re-read record.
func (e *Engine) Update(ctx context.Context, entityType string, id int64, data map[string]any) (Record, error) {
	ent, err := e.entity(entityType)
	if err != nil {
		return nil, err
	}
	values, multi, err := splitInput(ent, data)
	if err != nil {
		return nil, err
	}

	err = e.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var one int
		row := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", ent.Table), id)
		if err := row.Scan(&one); err != nil {
			if err == sql.ErrNoRows {
				return &NotFoundError{Type: entityType, ID: id}
			}
			return &StorageError{Op: "updating " + entityType, Err: err}
		}
		if err := e.checkReferences(ctx, tx, ent, values); err != nil {
			return err
		}
		sets := make([]string, 0, len(values))
		args := make([]any, 0, len(values)+1)
		for _, field := range ent.Fields {
			col := field.Column()
			if col == "" {
				continue
			}
			if v, ok := values[field.Name]; ok {
				sets = append(sets, col+" = ?")
				args = append(args, v)
			}
		}
		if len(sets) > 0 {
			args = append(args, id)
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s WHERE id = ?",
				ent.Table, strings.Join(sets, ", ")), args...); err != nil {
				return &StorageError{Op: "updating " + entityType, Err: err}
			}
		}
		return e.writeMulti(ctx, tx, ent, id, multi, true)
	})
	if err != nil {
		return nil, err
	}
	return e.Get(ctx, entityType, id, nil)
}

// Delete removes one entity row, letting the schema's cascade/nullify
// rules run, and reports whether a row was actually removed.
func (e *Engine) Delete(ctx context.Context, entityType string, id int64) (bool, error) {
	ent, err := e.entity(entityType)
	if err != nil {
		return false, err
	}
	res, err := e.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", ent.Table), id)
	if err != nil {
		return false, &StorageError{Op: "deleting " + entityType, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &StorageError{Op: "deleting " + entityType, Err: err}
	}
	return n > 0, nil
}

// splitInput validates mutation data against the schema and converts each
// value to its storage form. To-many values are returned separately as id
// lists for join-table writes.
func splitInput(ent *schema.Entity, data map[string]any) (map[string]any, map[string][]int64, error) {
	values := make(map[string]any, len(data))
	multi := make(map[string][]int64)
	for name, v := range data {
		field, ok := ent.Field(name)
		if !ok {
			return nil, nil, &ValidationError{Reason: fmt.Sprintf("%s has no field %q", ent.Kind, name)}
		}
		switch field.Type {
		case schema.TypeMultiEntity:
			raw, err := anySlice(v)
			if err != nil {
				return nil, nil, &ValidationError{Reason: fmt.Sprintf("field %q requires a list of references", name)}
			}
			ids := make([]int64, 0, len(raw))
			for _, item := range raw {
				id, ok := asID(normalizeFilterValue(field, item))
				if !ok {
					return nil, nil, &ValidationError{Reason: fmt.Sprintf("field %q contains a value that is not a reference", name)}
				}
				ids = append(ids, id)
			}
			multi[name] = ids
		case schema.TypeEntity:
			if v == nil {
				if !field.Nullable {
					return nil, nil, &ValidationError{Reason: fmt.Sprintf("field %q must reference a %s", name, field.Target)}
				}
				values[name] = nil
				continue
			}
			id, ok := asID(normalizeFilterValue(field, v))
			if !ok {
				return nil, nil, &ValidationError{Reason: fmt.Sprintf("field %q requires a %s reference, got %T", name, field.Target, v)}
			}
			values[name] = id
		default:
			converted, err := convertScalar(field, v)
			if err != nil {
				return nil, nil, err
			}
			values[name] = converted
		}
	}
	return values, multi, nil
}

func convertScalar(field schema.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch field.Type {
	case schema.TypeDate:
		switch val := v.(type) {
		case time.Time:
			return val.Format(dates.DateLayout), nil
		case string:
			return val, nil
		}
	case schema.TypeDateTime:
		switch val := v.(type) {
		case time.Time:
			return val.Format(dates.DateTimeLayout), nil
		case string:
			return val, nil
		}
	case schema.TypeBool:
		switch val := v.(type) {
		case bool:
			if val {
				return int64(1), nil
			}
			return int64(0), nil
		case int64:
			return val, nil
		case float64:
			return int64(val), nil
		}
	case schema.TypeDecimal:
		switch val := v.(type) {
		case float64:
			return val, nil
		case int64:
			return float64(val), nil
		case int:
			return float64(val), nil
		}
	case schema.TypeInt:
		if id, ok := asID(v); ok {
			return id, nil
		}
	case schema.TypeText:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, &ValidationError{Reason: fmt.Sprintf("field %q cannot hold a %T value", field.Name, v)}
}

// checkReferences verifies every to-one reference in the converted values
// resolves to an existing row of the expected type.
func (e *Engine) checkReferences(ctx context.Context, tx db.DBTX, ent *schema.Entity, values map[string]any) error {
	for _, field := range ent.Fields {
		if field.Type != schema.TypeEntity {
			continue
		}
		v, ok := values[field.Name]
		if !ok || v == nil {
			continue
		}
		target, _ := e.reg.Entity(string(field.Target))
		var one int
		row := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", target.Table), v)
		if err := row.Scan(&one); err != nil {
			if err == sql.ErrNoRows {
				return &ValidationError{Reason: fmt.Sprintf("field %q references %s %v which does not exist", field.Name, field.Target, v)}
			}
			return &StorageError{Op: "checking reference " + field.Name, Err: err}
		}
	}
	return nil
}

// writeMulti replaces (or, on create, writes) the join rows for each
// to-many field present in the input.
func (e *Engine) writeMulti(ctx context.Context, tx db.DBTX, ent *schema.Entity, ownerID int64, multi map[string][]int64, replace bool) error {
	for name, ids := range multi {
		field, _ := ent.Field(name)
		if replace {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", field.JoinTable, field.SourceColumn), ownerID); err != nil {
				return &StorageError{Op: "replacing " + name, Err: err}
			}
		}
		for _, targetID := range ids {
			var one int
			target, _ := e.reg.Entity(string(field.Target))
			row := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", target.Table), targetID)
			if err := row.Scan(&one); err != nil {
				if err == sql.ErrNoRows {
					return &ValidationError{Reason: fmt.Sprintf("field %q references %s %d which does not exist", name, field.Target, targetID)}
				}
				return &StorageError{Op: "checking reference " + name, Err: err}
			}
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)",
				field.JoinTable, field.SourceColumn, field.TargetColumn), ownerID, targetID); err != nil {
				return &StorageError{Op: "writing " + name, Err: err}
			}
		}
	}
	return nil
}

// aliasColumns renders an entity's column list prefixed with a table alias.
func aliasColumns(ent *schema.Entity, alias string) string {
	cols := ent.Columns()
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = alias + "." + col
	}
	return strings.Join(parts, ", ")
}
