// Package schema declares the production-tracking entity graph: every
// entity kind, its attributes, and its relationship edges with target kind
// and cardinality. The query engine walks these declarations instead of
// reflecting over storage, so an invalid dotted path is detectable without
// touching the database.
package schema

import "fmt"

// Kind is an entity type name as it appears on the wire.
type Kind string

const (
	KindDepartment     Kind = "Department"
	KindStep           Kind = "Step"
	KindPerson         Kind = "Person"
	KindWorkCategory   Kind = "WorkCategory"
	KindSubproject     Kind = "Subproject"
	KindPhase          Kind = "Phase"
	KindAsset          Kind = "Asset"
	KindTask           Kind = "Task"
	KindMilestoneTask  Kind = "MilestoneTask"
	KindPersonWorkload Kind = "PersonWorkload"
	KindPMMWorkload    Kind = "PMMWorkload"
)

type FieldType int

const (
	TypeInt FieldType = iota
	TypeText
	TypeDate
	TypeDateTime
	TypeDecimal
	TypeBool
	// TypeEntity is a to-one reference stored as a foreign key column.
	TypeEntity
	// TypeMultiEntity is a to-many reference stored in a join table.
	TypeMultiEntity
)

// Field describes one attribute or relationship edge of an entity.
type Field struct {
	Name     string
	Type     FieldType
	Target   Kind // relationship target, TypeEntity/TypeMultiEntity only
	Nullable bool

	// Join table geometry, TypeMultiEntity only.
	JoinTable    string
	SourceColumn string
	TargetColumn string
}

// Column returns the storage column holding this field. To-one references
// are stored as "<name>_id"; to-many fields have no column on the entity
// table and return "".
func (f Field) Column() string {
	switch f.Type {
	case TypeEntity:
		return f.Name + "_id"
	case TypeMultiEntity:
		return ""
	default:
		return f.Name
	}
}

// IsRelation reports whether the field is a relationship edge.
func (f Field) IsRelation() bool {
	return f.Type == TypeEntity || f.Type == TypeMultiEntity
}

// Entity describes one entity kind.
type Entity struct {
	Kind  Kind
	Table string
	// Label is the attribute used as the display name in links.
	Label  string
	Fields []Field

	byName map[string]Field
}

// Field looks up a field by name.
func (e *Entity) Field(name string) (Field, bool) {
	f, ok := e.byName[name]
	return f, ok
}

// Columns returns the ordered storage column list, starting with id.
func (e *Entity) Columns() []string {
	cols := []string{"id"}
	for _, f := range e.Fields {
		if c := f.Column(); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

// Registry holds every declared entity kind.
type Registry struct {
	byKind map[Kind]*Entity
	order  []Kind
}

// Entity looks up an entity by its wire type name.
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.byKind[Kind(name)]
	return e, ok
}

// Kinds returns every declared kind in registration order.
func (r *Registry) Kinds() []Kind {
	return append([]Kind(nil), r.order...)
}

// Validate checks the relationship graph once at startup: every edge must
// point at a declared kind and every join table must be fully specified.
func (r *Registry) Validate() error {
	for _, k := range r.order {
		e := r.byKind[k]
		for _, f := range e.Fields {
			if !f.IsRelation() {
				continue
			}
			if _, ok := r.byKind[f.Target]; !ok {
				return fmt.Errorf("entity %s: field %q targets undeclared kind %q", k, f.Name, f.Target)
			}
			if f.Type == TypeMultiEntity && (f.JoinTable == "" || f.SourceColumn == "" || f.TargetColumn == "") {
				return fmt.Errorf("entity %s: to-many field %q is missing join table geometry", k, f.Name)
			}
		}
	}
	return nil
}

func newRegistry(entities ...*Entity) *Registry {
	r := &Registry{byKind: make(map[Kind]*Entity, len(entities))}
	for _, e := range entities {
		e.byName = make(map[string]Field, len(e.Fields))
		for _, f := range e.Fields {
			e.byName[f.Name] = f
		}
		r.byKind[e.Kind] = e
		r.order = append(r.order, e.Kind)
	}
	return r
}

// Default returns the production-tracking entity registry.
func Default() *Registry {
	return newRegistry(
		&Entity{
			Kind: KindDepartment, Table: "departments", Label: "name",
			Fields: []Field{
				{Name: "name", Type: TypeText},
				{Name: "description", Type: TypeText, Nullable: true},
			},
		},
		&Entity{
			Kind: KindStep, Table: "steps", Label: "name",
			Fields: []Field{
				{Name: "name", Type: TypeText},
				{Name: "color", Type: TypeText},
			},
		},
		&Entity{
			Kind: KindWorkCategory, Table: "work_categories", Label: "name",
			Fields: []Field{
				{Name: "name", Type: TypeText},
				{Name: "description", Type: TypeText, Nullable: true},
			},
		},
		&Entity{
			Kind: KindPerson, Table: "people", Label: "name",
			Fields: []Field{
				{Name: "name", Type: TypeText},
				{Name: "email", Type: TypeText, Nullable: true},
				{Name: "department", Type: TypeEntity, Target: KindDepartment, Nullable: true},
				{Name: "manager", Type: TypeEntity, Target: KindPerson, Nullable: true},
				{Name: "subproject", Type: TypeMultiEntity, Target: KindSubproject,
					JoinTable: "person_subprojects", SourceColumn: "person_id", TargetColumn: "subproject_id"},
			},
		},
		&Entity{
			Kind: KindSubproject, Table: "subprojects", Label: "name",
			Fields: []Field{
				{Name: "name", Type: TypeText},
				{Name: "start_date", Type: TypeDate},
				{Name: "end_date", Type: TypeDate},
				{Name: "editing", Type: TypeEntity, Target: KindPerson, Nullable: true},
				{Name: "last_edit", Type: TypeDateTime, Nullable: true},
				{Name: "department", Type: TypeEntity, Target: KindDepartment, Nullable: true},
				{Name: "access", Type: TypeText},
				{Name: "pmm_status", Type: TypeText},
			},
		},
		&Entity{
			Kind: KindPhase, Table: "phases", Label: "name",
			Fields: []Field{
				{Name: "subproject", Type: TypeEntity, Target: KindSubproject},
				{Name: "name", Type: TypeText},
				{Name: "start_date", Type: TypeDate},
				{Name: "end_date", Type: TypeDate},
				{Name: "milestone", Type: TypeBool},
				{Name: "phase_type", Type: TypeText},
			},
		},
		&Entity{
			Kind: KindAsset, Table: "assets", Label: "name",
			Fields: []Field{
				{Name: "phase", Type: TypeEntity, Target: KindPhase},
				{Name: "name", Type: TypeText},
				{Name: "start_date", Type: TypeDate},
				{Name: "end_date", Type: TypeDate},
				{Name: "asset_type", Type: TypeText},
				{Name: "work_category", Type: TypeEntity, Target: KindWorkCategory, Nullable: true},
				{Name: "step", Type: TypeEntity, Target: KindStep, Nullable: true},
			},
		},
		&Entity{
			Kind: KindTask, Table: "tasks", Label: "name",
			Fields: []Field{
				{Name: "asset", Type: TypeEntity, Target: KindAsset},
				{Name: "name", Type: TypeText},
				{Name: "start_date", Type: TypeDate},
				{Name: "end_date", Type: TypeDate},
				{Name: "assignees", Type: TypeMultiEntity, Target: KindPerson,
					JoinTable: "task_assignees", SourceColumn: "task_id", TargetColumn: "person_id"},
				{Name: "status", Type: TypeText},
			},
		},
		&Entity{
			Kind: KindMilestoneTask, Table: "milestone_tasks", Label: "name",
			Fields: []Field{
				{Name: "asset", Type: TypeEntity, Target: KindAsset},
				{Name: "name", Type: TypeText},
				{Name: "start_date", Type: TypeDate},
				{Name: "end_date", Type: TypeDate},
				{Name: "milestone_type", Type: TypeText},
			},
		},
		&Entity{
			Kind: KindPersonWorkload, Table: "person_workloads", Label: "name",
			Fields: []Field{
				{Name: "task", Type: TypeEntity, Target: KindTask},
				{Name: "person", Type: TypeEntity, Target: KindPerson},
				{Name: "name", Type: TypeText},
				{Name: "week", Type: TypeDate},
				{Name: "man_week", Type: TypeDecimal},
			},
		},
		&Entity{
			Kind: KindPMMWorkload, Table: "pmm_workloads", Label: "name",
			Fields: []Field{
				{Name: "subproject", Type: TypeEntity, Target: KindSubproject},
				{Name: "work_category", Type: TypeEntity, Target: KindWorkCategory, Nullable: true},
				{Name: "name", Type: TypeText},
				{Name: "week", Type: TypeDate},
				{Name: "man_week", Type: TypeDecimal},
			},
		},
	)
}
