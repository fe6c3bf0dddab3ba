package testutil

import (
	"context"
	"testing"

	"github.com/mhayashi-dev/prodtrack/internal/query"
)

// Option overrides one field of a fixture's default payload.
type Option func(map[string]any)

// With sets a field on the created entity.
func With(field string, value any) Option {
	return func(data map[string]any) {
		data[field] = value
	}
}

// Fixture creates entities through the engine's mutation path so every
// test row passes the same validation as production writes.
type Fixture struct {
	t      *testing.T
	engine *query.Engine
}

func NewFixture(t *testing.T, engine *query.Engine) *Fixture {
	t.Helper()
	return &Fixture{t: t, engine: engine}
}

func (f *Fixture) create(kind string, data map[string]any, opts []Option) int64 {
	f.t.Helper()
	for _, opt := range opts {
		opt(data)
	}
	rec, err := f.engine.Create(context.Background(), kind, data, []string{"id"})
	if err != nil {
		f.t.Fatalf("creating fixture %s: %v", kind, err)
	}
	return rec.ID()
}

func (f *Fixture) Department(name string, opts ...Option) int64 {
	return f.create("Department", map[string]any{"name": name}, opts)
}

func (f *Fixture) Step(name, color string, opts ...Option) int64 {
	return f.create("Step", map[string]any{"name": name, "color": color}, opts)
}

func (f *Fixture) WorkCategory(name string, opts ...Option) int64 {
	return f.create("WorkCategory", map[string]any{"name": name}, opts)
}

func (f *Fixture) Person(name string, opts ...Option) int64 {
	return f.create("Person", map[string]any{
		"name":  name,
		"email": name + "@studio.example",
	}, opts)
}

func (f *Fixture) Subproject(name string, opts ...Option) int64 {
	return f.create("Subproject", map[string]any{
		"name":       name,
		"start_date": "2024-01-01",
		"end_date":   "2024-06-30",
	}, opts)
}

func (f *Fixture) Phase(subprojectID int64, name string, opts ...Option) int64 {
	return f.create("Phase", map[string]any{
		"subproject": subprojectID,
		"name":       name,
		"start_date": "2024-01-01",
		"end_date":   "2024-03-31",
	}, opts)
}

func (f *Fixture) Asset(phaseID int64, name string, opts ...Option) int64 {
	return f.create("Asset", map[string]any{
		"phase":      phaseID,
		"name":       name,
		"start_date": "2024-01-08",
		"end_date":   "2024-02-16",
	}, opts)
}

func (f *Fixture) Task(assetID int64, name string, opts ...Option) int64 {
	return f.create("Task", map[string]any{
		"asset":      assetID,
		"name":       name,
		"start_date": "2024-01-08",
		"end_date":   "2024-01-19",
		"status":     "wtg",
	}, opts)
}

func (f *Fixture) MilestoneTask(assetID int64, name string, opts ...Option) int64 {
	return f.create("MilestoneTask", map[string]any{
		"asset":          assetID,
		"name":           name,
		"start_date":     "2024-02-01",
		"end_date":       "2024-02-01",
		"milestone_type": "Review",
	}, opts)
}

func (f *Fixture) PersonWorkload(taskID, personID int64, week string, opts ...Option) int64 {
	return f.create("PersonWorkload", map[string]any{
		"task":     taskID,
		"person":   personID,
		"name":     "workload",
		"week":     week,
		"man_week": 0.5,
	}, opts)
}

func (f *Fixture) PMMWorkload(subprojectID, workCategoryID int64, week string, opts ...Option) int64 {
	return f.create("PMMWorkload", map[string]any{
		"subproject":    subprojectID,
		"work_category": workCategoryID,
		"name":          "pmm workload",
		"week":          week,
		"man_week":      2.0,
	}, opts)
}
