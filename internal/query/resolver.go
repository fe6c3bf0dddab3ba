package query

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/mhayashi-dev/prodtrack/internal/db"
	"github.com/mhayashi-dev/prodtrack/internal/schema"
)

// fetcher loads and serializes entity rows. Related rows are cached for
// the duration of one engine call only, so repeated link targets inside a
// result set cost a single lookup without any state outliving the request.
type fetcher struct {
	db   db.DBTX
	reg  *schema.Registry
	rows map[schema.Kind]map[int64]map[string]any
}

func newFetcher(dbtx db.DBTX, reg *schema.Registry) *fetcher {
	return &fetcher{db: dbtx, reg: reg, rows: make(map[schema.Kind]map[int64]map[string]any)}
}

// scanRows reads every result row into a column-keyed map. BLOB values are
// widened to strings; everything else keeps the driver's scalar type.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading result columns: %w", err)
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// row loads one entity row by id, returning nil without error when it does
// not exist.
func (f *fetcher) row(ctx context.Context, ent *schema.Entity, id int64) (map[string]any, error) {
	if cached, ok := f.rows[ent.Kind][id]; ok {
		return cached, nil
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(ent.Columns(), ", "), ent.Table)
	rows, err := f.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, &StorageError{Op: "loading " + string(ent.Kind), Err: err}
	}
	defer rows.Close()
	scanned, err := scanRows(rows)
	if err != nil {
		return nil, &StorageError{Op: "loading " + string(ent.Kind), Err: err}
	}
	var row map[string]any
	if len(scanned) > 0 {
		row = scanned[0]
	}
	if f.rows[ent.Kind] == nil {
		f.rows[ent.Kind] = make(map[int64]map[string]any)
	}
	f.rows[ent.Kind][id] = row
	return row, nil
}

// link builds the {type, id, name} reference for one target row, falling
// back to the stringified id when the label attribute is absent.
func (f *fetcher) link(ctx context.Context, ent *schema.Entity, id int64) (*Link, error) {
	row, err := f.row(ctx, ent, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	name, _ := row[ent.Label].(string)
	if name == "" {
		name = strconv.FormatInt(id, 10)
	}
	return &Link{Type: string(ent.Kind), ID: id, Name: name}, nil
}

// links loads a to-many relationship as an ordered link list. Order is the
// join table's insertion order, which is stable but not contractual.
func (f *fetcher) links(ctx context.Context, field schema.Field, ownerID int64) ([]Link, error) {
	target, ok := f.reg.Entity(string(field.Target))
	if !ok {
		return nil, &UnknownEntityError{Type: string(field.Target)}
	}
	labelField, _ := target.Field(target.Label)
	query := fmt.Sprintf("SELECT t.id, t.%s FROM %s jt JOIN %s t ON t.id = jt.%s WHERE jt.%s = ? ORDER BY jt.rowid",
		labelField.Column(), field.JoinTable, target.Table, field.TargetColumn, field.SourceColumn)
	rows, err := f.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, &StorageError{Op: "loading " + field.Name, Err: err}
	}
	defer rows.Close()

	links := []Link{}
	for rows.Next() {
		var (
			id   int64
			name sql.NullString
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, &StorageError{Op: "loading " + field.Name, Err: err}
		}
		label := name.String
		if label == "" {
			label = strconv.FormatInt(id, 10)
		}
		links = append(links, Link{Type: string(target.Kind), ID: id, Name: label})
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "loading " + field.Name, Err: err}
	}
	return links, nil
}

// formatField converts one stored value to its wire shape per the field's
// declared type.
func (f *fetcher) formatField(ctx context.Context, owner *schema.Entity, field schema.Field, row map[string]any) (any, error) {
	switch field.Type {
	case schema.TypeEntity:
		raw := row[field.Column()]
		if raw == nil {
			return nil, nil
		}
		id, ok := asID(raw)
		if !ok {
			return nil, nil
		}
		target, ok := f.reg.Entity(string(field.Target))
		if !ok {
			return nil, &UnknownEntityError{Type: string(field.Target)}
		}
		link, err := f.link(ctx, target, id)
		if err != nil {
			return nil, err
		}
		if link == nil {
			return nil, nil
		}
		return *link, nil
	case schema.TypeMultiEntity:
		id, ok := asID(row["id"])
		if !ok {
			return nil, nil
		}
		return f.links(ctx, field, id)
	case schema.TypeDecimal:
		switch n := row[field.Column()].(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		default:
			return nil, nil
		}
	case schema.TypeBool:
		n, _ := row[field.Column()].(int64)
		return n != 0, nil
	default:
		return row[field.Column()], nil
	}
}

// resolvePath walks a dot-separated attribute path across to-one
// relationships and returns the formatted terminal value. Resolution fails
// closed: a null intermediate, an unknown segment, or a to-many
// relationship anywhere but the final segment all yield nil.
func (f *fetcher) resolvePath(ctx context.Context, ent *schema.Entity, row map[string]any, path string) (any, error) {
	segments := strings.Split(path, ".")
	current := row
	for i, seg := range segments {
		if seg == "id" && i == len(segments)-1 {
			if id, ok := asID(current["id"]); ok {
				return id, nil
			}
			return nil, nil
		}
		field, ok := ent.Field(seg)
		if !ok {
			return nil, nil
		}
		if i == len(segments)-1 {
			return f.formatField(ctx, ent, field, current)
		}
		if field.Type != schema.TypeEntity {
			return nil, nil
		}
		raw := current[field.Column()]
		if raw == nil {
			return nil, nil
		}
		id, ok := asID(raw)
		if !ok {
			return nil, nil
		}
		target, ok := f.reg.Entity(string(field.Target))
		if !ok {
			return nil, nil
		}
		next, err := f.row(ctx, target, id)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}
		ent = target
		current = next
	}
	return nil, nil
}

// serialize projects one stored row into a Record. With no field list the
// record carries every direct attribute plus every to-many relationship;
// with one, exactly the requested keys appear. id and type are always
// present, and requested keys that cannot be resolved for this row are
// still emitted with a nil value so every row in a result set has the same
// shape.
func (f *fetcher) serialize(ctx context.Context, ent *schema.Entity, row map[string]any, fields []string) (Record, error) {
	rec := Record{"type": string(ent.Kind)}
	if id, ok := asID(row["id"]); ok {
		rec["id"] = id
	}

	if len(fields) == 0 {
		for _, field := range ent.Fields {
			value, err := f.formatField(ctx, ent, field, row)
			if err != nil {
				return nil, err
			}
			rec[field.Name] = value
		}
		return rec, nil
	}

	for _, name := range fields {
		if name == "id" || name == "type" {
			continue
		}
		if strings.Contains(name, ".") {
			value, err := f.resolvePath(ctx, ent, row, name)
			if err != nil {
				return nil, err
			}
			rec[name] = value
			continue
		}
		field, ok := ent.Field(name)
		if !ok {
			rec[name] = nil
			continue
		}
		value, err := f.formatField(ctx, ent, field, row)
		if err != nil {
			return nil, err
		}
		rec[name] = value
	}
	return rec, nil
}
