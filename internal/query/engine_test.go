package query_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhayashi-dev/prodtrack/internal/query"
	"github.com/mhayashi-dev/prodtrack/internal/schema"
	"github.com/mhayashi-dev/prodtrack/internal/testutil"
)

func TestEngine_Create_RoundTrip(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	ctx := context.Background()

	dept, err := engine.Create(ctx, "Department", map[string]any{
		"name":        "Exterior Design",
		"description": "body and surfaces",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Department", dept.Type())
	assert.NotZero(t, dept.ID())
	assert.Equal(t, "Exterior Design", dept["name"])

	person, err := engine.Create(ctx, "Person", map[string]any{
		"name":       "Aiko",
		"email":      "aiko@studio.example",
		"department": dept.ID(),
	}, []string{"id", "name", "department"})
	require.NoError(t, err)
	assert.Equal(t, "Person", person.Type())
	assert.Equal(t, "Aiko", person["name"])

	link, ok := person["department"].(query.Link)
	require.True(t, ok, "department should serialize as a link, got %T", person["department"])
	assert.Equal(t, query.Link{Type: "Department", ID: dept.ID(), Name: "Exterior Design"}, link)
}

func TestEngine_Find_Operators(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	f := testutil.NewFixture(t, engine)
	ctx := context.Background()

	f.Person("Aiko")
	f.Person("Daichi")
	f.Person("Daisuke")
	f.Person("Haruto")

	find := func(filters ...query.Filter) []string {
		records, err := engine.Find(ctx, "Person", filters, &query.FindOptions{
			Fields: []string{"name"},
			Order:  []query.OrderSpec{{Field: "name"}},
		})
		require.NoError(t, err)
		names := make([]string, len(records))
		for i, rec := range records {
			names[i] = rec["name"].(string)
		}
		return names
	}

	assert.Equal(t, []string{"Aiko"}, find(query.Cond{Field: "name", Op: "is", Value: "Aiko"}))
	assert.Equal(t, []string{"Daichi", "Daisuke", "Haruto"},
		find(query.Cond{Field: "name", Op: "is_not", Value: "Aiko"}))
	assert.Equal(t, []string{"Daichi", "Daisuke"},
		find(query.Cond{Field: "name", Op: "starts_with", Value: "Dai"}))
	assert.Equal(t, []string{"Haruto"},
		find(query.Cond{Field: "name", Op: "ends_with", Value: "ruto"}))
	assert.Equal(t, []string{"Aiko", "Daichi", "Daisuke"},
		find(query.Cond{Field: "name", Op: "contains", Value: "i"}))
	assert.Equal(t, []string{"Aiko", "Daichi"},
		find(query.Cond{Field: "name", Op: "not_contains", Value: "u"}))
	assert.Equal(t, []string{"Aiko", "Haruto"},
		find(query.Cond{Field: "name", Op: "in", Value: []any{"Aiko", "Haruto"}}))
	assert.Equal(t, []string{"Daichi", "Daisuke"},
		find(query.Cond{Field: "name", Op: "not_in", Value: []any{"Aiko", "Haruto"}}))
	assert.Equal(t, []string{"Aiko", "Daichi"},
		find(query.Cond{Field: "name", Op: "<=", Value: "Daichi"}))
	assert.Equal(t, []string{"Haruto"},
		find(query.Cond{Field: "name", Op: ">", Value: "Daisuke"}))

	// Operator synonyms fold to the same behavior.
	assert.Equal(t, []string{"Aiko"}, find(query.Cond{Field: "name", Op: "equals", Value: "Aiko"}))
	assert.Equal(t, []string{"Daichi", "Daisuke"},
		find(query.Cond{Field: "name", Op: "startswith", Value: "Dai"}))
}

func TestEngine_Find_IDIsAddressable(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	f := testutil.NewFixture(t, engine)
	ctx := context.Background()

	boss := f.Person("Boss")
	managed := f.Person("Managed", testutil.With("manager", boss))
	solo := f.Person("Solo")

	// id works as a plain filter field.
	records, err := engine.Find(ctx, "Person",
		[]query.Filter{query.Cond{Field: "id", Op: "is", Value: managed}}, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Managed", records[0]["name"])

	records, err = engine.Find(ctx, "Person",
		[]query.Filter{query.Cond{Field: "id", Op: "in", Value: []int64{boss, solo}}}, nil)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	// id works as an ordering key.
	records, err = engine.Find(ctx, "Person", nil, &query.FindOptions{
		Fields: []string{"name"},
		Order:  []query.OrderSpec{{Field: "id", Direction: "desc"}},
	})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Solo", records[0]["name"])
	assert.Equal(t, "Boss", records[2]["name"])

	// id works as the terminal segment of a dotted path.
	records, err = engine.Find(ctx, "Person",
		[]query.Filter{query.Cond{Field: "manager.id", Op: "is", Value: boss}},
		&query.FindOptions{Fields: []string{"name", "manager.id"}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, boss, records[0]["manager.id"])

	// But id is not traversable mid-path.
	_, err = engine.Find(ctx, "Person",
		[]query.Filter{query.Cond{Field: "id.name", Op: "is", Value: "Boss"}}, nil)
	var filterErr *query.InvalidFilterError
	require.ErrorAs(t, err, &filterErr)

	// And Get, which rides the id filter, round-trips.
	rec, err := engine.Get(ctx, "Person", managed, []string{"name"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Managed", rec["name"])
}

func TestEngine_Find_EmptyInLists(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	f := testutil.NewFixture(t, engine)
	ctx := context.Background()

	f.Person("Aiko")
	f.Person("Daichi")

	records, err := engine.Find(ctx, "Person",
		[]query.Filter{query.Cond{Field: "name", Op: "in", Value: []any{}}}, nil)
	require.NoError(t, err)
	assert.Empty(t, records, "empty in list matches nothing")

	records, err = engine.Find(ctx, "Person",
		[]query.Filter{query.Cond{Field: "name", Op: "not_in", Value: []any{}}}, nil)
	require.NoError(t, err)
	assert.Len(t, records, 2, "empty not_in list matches everything")
}

func TestEngine_Find_DateRange(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	f := testutil.NewFixture(t, engine)
	ctx := context.Background()

	f.Subproject("Sedan MY26", testutil.With("start_date", "2024-01-01"))
	f.Subproject("SUV MY26", testutil.With("start_date", "2024-02-05"))
	f.Subproject("Coupe MY27", testutil.With("start_date", "2024-03-11"))

	records, err := engine.Find(ctx, "Subproject", []query.Filter{
		query.Cond{Field: "start_date", Op: "between", Value: []any{"2024-01-15", "2024-02-28"}},
	}, &query.FindOptions{Fields: []string{"name"}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "SUV MY26", records[0]["name"])

	// "range" is accepted as a synonym.
	records, err = engine.Find(ctx, "Subproject", []query.Filter{
		query.Cond{Field: "start_date", Op: "range", Value: []any{"2024-01-01", "2024-12-31"}},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestEngine_Find_NestedGroups(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	f := testutil.NewFixture(t, engine)
	ctx := context.Background()

	f.Person("Aiko")
	f.Person("Daichi")
	f.Person("Haruto")

	// name == Aiko OR (name starts with H AND name contains u)
	records, err := engine.Find(ctx, "Person", []query.Filter{
		query.Cond{Field: "name", Op: "is", Value: "Aiko"},
		query.Group{Operator: "all", Filters: []query.Filter{
			query.Cond{Field: "name", Op: "starts_with", Value: "H"},
			query.Cond{Field: "name", Op: "contains", Value: "u"},
		}},
	}, &query.FindOptions{
		Fields:         []string{"name"},
		FilterOperator: "any",
		Order:          []query.OrderSpec{{Field: "name"}},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Aiko", records[0]["name"])
	assert.Equal(t, "Haruto", records[1]["name"])
}

func TestEngine_Find_DottedPathFilter(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	f := testutil.NewFixture(t, engine)
	ctx := context.Background()

	sedan := f.Subproject("Sedan MY26")
	suv := f.Subproject("SUV MY26")
	sedanPhase := f.Phase(sedan, "Concept")
	suvPhase := f.Phase(suv, "Concept")
	sedanAsset := f.Asset(sedanPhase, "Front Fascia")
	suvAsset := f.Asset(suvPhase, "Front Fascia")
	f.Task(sedanAsset, "Sketch refinement")
	f.Task(suvAsset, "Sketch refinement")

	records, err := engine.Find(ctx, "Task", []query.Filter{
		query.Cond{Field: "asset.phase.subproject.name", Op: "is", Value: "Sedan MY26"},
	}, &query.FindOptions{Fields: []string{"name", "asset.phase.subproject"}})
	require.NoError(t, err)
	require.Len(t, records, 1)

	link, ok := records[0]["asset.phase.subproject"].(query.Link)
	require.True(t, ok)
	assert.Equal(t, sedan, link.ID)
	assert.Equal(t, "Sedan MY26", link.Name)
}

func TestEngine_Find_NullIntermediatePath(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	f := testutil.NewFixture(t, engine)
	ctx := context.Background()

	boss := f.Person("Boss")
	f.Person("Managed", testutil.With("manager", boss))
	f.Person("Solo")

	// A positive condition never matches rows whose intermediate link is null.
	records, err := engine.Find(ctx, "Person", []query.Filter{
		query.Cond{Field: "manager.name", Op: "is", Value: "Boss"},
	}, &query.FindOptions{Fields: []string{"name"}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Managed", records[0]["name"])

	// The negated condition matches those same rows.
	records, err = engine.Find(ctx, "Person", []query.Filter{
		query.Cond{Field: "manager.name", Op: "is_not", Value: "Boss"},
	}, &query.FindOptions{
		Fields: []string{"name"},
		Order:  []query.OrderSpec{{Field: "name"}},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Boss", records[0]["name"])
	assert.Equal(t, "Solo", records[1]["name"])
}

func TestEngine_Find_ToManyFilter(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	f := testutil.NewFixture(t, engine)
	ctx := context.Background()

	aiko := f.Person("Aiko")
	daichi := f.Person("Daichi")
	sp := f.Subproject("Sedan MY26")
	phase := f.Phase(sp, "Concept")
	asset := f.Asset(phase, "Front Fascia")
	f.Task(asset, "Sketch refinement", testutil.With("assignees", []int64{aiko}))
	f.Task(asset, "3D blockout", testutil.With("assignees", []int64{aiko, daichi}))
	f.Task(asset, "Detailing")

	records, err := engine.Find(ctx, "Task", []query.Filter{
		query.Cond{Field: "assignees", Op: "is", Value: daichi},
	}, &query.FindOptions{Fields: []string{"name"}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "3D blockout", records[0]["name"])

	// is with nil means "has no assignees".
	records, err = engine.Find(ctx, "Task", []query.Filter{
		query.Cond{Field: "assignees", Op: "is", Value: nil},
	}, &query.FindOptions{Fields: []string{"name"}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Detailing", records[0]["name"])

	// Matching both assignees still yields each task once.
	records, err = engine.Find(ctx, "Task", []query.Filter{
		query.Cond{Field: "assignees", Op: "in", Value: []int64{aiko, daichi}},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestEngine_Find_OrderingAndPagination(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	f := testutil.NewFixture(t, engine)
	ctx := context.Background()

	for _, name := range []string{"Echo", "Alpha", "Delta", "Charlie", "Bravo"} {
		f.Person(name)
	}

	records, err := engine.Find(ctx, "Person", nil, &query.FindOptions{
		Fields: []string{"name"},
		Order:  []query.OrderSpec{{Field: "name", Direction: "desc"}},
	})
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "Echo", records[0]["name"])
	assert.Equal(t, "Alpha", records[4]["name"])

	// Page 2 of size 2 under an ascending sort.
	records, err = engine.Find(ctx, "Person", nil, &query.FindOptions{
		Fields: []string{"name"},
		Order:  []query.OrderSpec{{Field: "name"}},
		Limit:  2,
		Page:   2,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Charlie", records[0]["name"])
	assert.Equal(t, "Delta", records[1]["name"])

	// Limit 0 is unbounded.
	records, err = engine.Find(ctx, "Person", nil, &query.FindOptions{Limit: 0})
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestEngine_Find_UniformRowShape(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	f := testutil.NewFixture(t, engine)
	ctx := context.Background()

	boss := f.Person("Boss")
	f.Person("Managed", testutil.With("manager", boss))

	records, err := engine.Find(ctx, "Person", nil, &query.FindOptions{
		Fields: []string{"name", "manager", "no_such_field"},
		Order:  []query.OrderSpec{{Field: "name"}},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	for _, rec := range records {
		// id and type are forced even though they were not requested.
		assert.NotZero(t, rec.ID())
		assert.Equal(t, "Person", rec.Type())
		// Unknown keys are present with a nil value on every row.
		v, present := rec["no_such_field"]
		assert.True(t, present)
		assert.Nil(t, v)
	}
	assert.Nil(t, records[0]["manager"], "Boss has no manager")
	assert.NotNil(t, records[1]["manager"])
}

func TestEngine_FindOne(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	f := testutil.NewFixture(t, engine)
	ctx := context.Background()

	f.Person("Aiko")

	rec, err := engine.FindOne(ctx, "Person",
		[]query.Filter{query.Cond{Field: "name", Op: "is", Value: "Aiko"}}, nil)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Aiko", rec["name"])

	rec, err = engine.FindOne(ctx, "Person",
		[]query.Filter{query.Cond{Field: "name", Op: "is", Value: "Nobody"}}, nil)
	require.NoError(t, err)
	assert.Nil(t, rec, "no match returns nil without error")
}

func TestEngine_Update(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	f := testutil.NewFixture(t, engine)
	ctx := context.Background()

	aiko := f.Person("Aiko")
	daichi := f.Person("Daichi")
	sp := f.Subproject("Sedan MY26")
	phase := f.Phase(sp, "Concept")
	asset := f.Asset(phase, "Front Fascia")
	task := f.Task(asset, "Sketch refinement", testutil.With("assignees", []int64{aiko}))

	rec, err := engine.Update(ctx, "Task", task, map[string]any{
		"status":    "ip",
		"assignees": []int64{daichi},
	})
	require.NoError(t, err)
	assert.Equal(t, "ip", rec["status"])
	assert.Equal(t, "Sketch refinement", rec["name"], "unnamed fields keep their values")

	links, ok := rec["assignees"].([]query.Link)
	require.True(t, ok)
	require.Len(t, links, 1, "to-many update replaces the whole set")
	assert.Equal(t, daichi, links[0].ID)
}

func TestEngine_Delete_Cascade(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	f := testutil.NewFixture(t, engine)
	ctx := context.Background()

	sp := f.Subproject("Sedan MY26")
	phase := f.Phase(sp, "Concept")
	asset := f.Asset(phase, "Front Fascia")
	f.Task(asset, "Sketch refinement")

	deleted, err := engine.Delete(ctx, "Subproject", sp)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = engine.Delete(ctx, "Subproject", sp)
	require.NoError(t, err)
	assert.False(t, deleted, "second delete reports nothing removed")

	for _, kind := range []string{"Phase", "Asset", "Task"} {
		records, err := engine.Find(ctx, kind, nil, nil)
		require.NoError(t, err)
		assert.Empty(t, records, "%s rows should cascade away", kind)
	}
}

func TestEngine_ErrorTaxonomy(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	f := testutil.NewFixture(t, engine)
	ctx := context.Background()

	aiko := f.Person("Aiko")

	t.Run("unknown entity", func(t *testing.T) {
		_, err := engine.Find(ctx, "Spaceship", nil, nil)
		var unknownErr *query.UnknownEntityError
		require.ErrorAs(t, err, &unknownErr)
		assert.Equal(t, "Spaceship", unknownErr.Type)
	})

	t.Run("unsupported operator", func(t *testing.T) {
		_, err := engine.Find(ctx, "Person",
			[]query.Filter{query.Cond{Field: "name", Op: "sounds_like", Value: "Aiko"}}, nil)
		var opErr *query.UnsupportedOperatorError
		require.ErrorAs(t, err, &opErr)
	})

	t.Run("invalid filter field", func(t *testing.T) {
		_, err := engine.Find(ctx, "Person",
			[]query.Filter{query.Cond{Field: "no_such.path", Op: "is", Value: 1}}, nil)
		var filterErr *query.InvalidFilterError
		require.ErrorAs(t, err, &filterErr)
	})

	t.Run("update of missing row", func(t *testing.T) {
		_, err := engine.Update(ctx, "Person", 99999, map[string]any{"name": "Ghost"})
		var notFound *query.NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, int64(99999), notFound.ID)
	})

	t.Run("unknown field in mutation", func(t *testing.T) {
		_, err := engine.Create(ctx, "Person", map[string]any{"name": "X", "nickname": "Y"}, nil)
		var validationErr *query.ValidationError
		require.ErrorAs(t, err, &validationErr)
	})

	t.Run("id in mutation data", func(t *testing.T) {
		_, err := engine.Create(ctx, "Person", map[string]any{"id": 7, "name": "X"}, nil)
		var validationErr *query.ValidationError
		require.ErrorAs(t, err, &validationErr, "ids are assigned by storage, never by callers")
	})

	t.Run("dangling reference", func(t *testing.T) {
		_, err := engine.Update(ctx, "Person", aiko, map[string]any{"department": 424242})
		var validationErr *query.ValidationError
		require.ErrorAs(t, err, &validationErr)
	})

	t.Run("missing required reference", func(t *testing.T) {
		_, err := engine.Create(ctx, "Phase", map[string]any{
			"name": "Concept", "subproject": nil,
			"start_date": "2024-01-01", "end_date": "2024-03-31",
		}, nil)
		var validationErr *query.ValidationError
		require.ErrorAs(t, err, &validationErr)
	})
}

func TestEngine_Create_RollsBackOnJoinWriteFailure(t *testing.T) {
	database := testutil.NewTestDB(t)
	injected := errors.New("disk full")
	engine := query.NewEngineWithUnitOfWork(database,
		&testutil.FailOnNthExecUoW{DB: database, FailOn: 2, Err: injected},
		schema.Default())
	plain := query.NewEngine(database, schema.Default())
	f := testutil.NewFixture(t, plain)
	ctx := context.Background()

	aiko := f.Person("Aiko")
	sp := f.Subproject("Sedan MY26")
	phase := f.Phase(sp, "Concept")
	asset := f.Asset(phase, "Front Fascia")

	// Exec 1 is the task insert, exec 2 the assignee join row.
	_, err := engine.Create(ctx, "Task", map[string]any{
		"asset":      asset,
		"name":       "Sketch refinement",
		"start_date": "2024-01-08",
		"end_date":   "2024-01-19",
		"status":     "wtg",
		"assignees":  []int64{aiko},
	}, nil)
	require.ErrorIs(t, err, injected)

	records, err := plain.Find(ctx, "Task", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, records, "failed create must not leave a partial task")
}
