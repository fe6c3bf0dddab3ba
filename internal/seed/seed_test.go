package seed_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhayashi-dev/prodtrack/internal/dates"
	"github.com/mhayashi-dev/prodtrack/internal/query"
	"github.com/mhayashi-dev/prodtrack/internal/seed"
	"github.com/mhayashi-dev/prodtrack/internal/testutil"
)

func TestRun_GeneratesConsistentData(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	ctx := context.Background()

	result, err := seed.Run(ctx, engine, seed.Options{
		People:      12,
		Subprojects: 2,
		Seed:        1,
		Start:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, 5, result.Departments)
	assert.Equal(t, 5, result.Steps)
	assert.Equal(t, 12, result.People)
	assert.Equal(t, 10, result.WorkCategories)
	assert.Equal(t, 2, result.Subprojects)
	assert.Equal(t, 8, result.Phases, "four phases per subproject")
	assert.Positive(t, result.Assets)
	assert.Positive(t, result.Tasks)
	assert.Positive(t, result.PersonWorkloads)
	assert.Positive(t, result.PMMWorkloads)

	// Every task belongs to the hierarchy and has at least one assignee.
	tasks, err := engine.Find(ctx, "Task", nil, &query.FindOptions{
		Fields: []string{"name", "asset", "assignees", "asset.phase.subproject"},
	})
	require.NoError(t, err)
	require.Len(t, tasks, result.Tasks)
	for _, task := range tasks {
		assert.NotNil(t, task["asset"])
		assert.NotNil(t, task["asset.phase.subproject"])
		links, ok := task["assignees"].([]query.Link)
		require.True(t, ok)
		assert.NotEmpty(t, links)
	}

	// Workload weeks land on Mondays.
	workloads, err := engine.Find(ctx, "PersonWorkload", nil, &query.FindOptions{
		Fields: []string{"week"},
	})
	require.NoError(t, err)
	for _, wl := range workloads {
		week, err := dates.ParseDate(wl["week"].(string))
		require.NoError(t, err)
		assert.Equal(t, time.Monday, week.Weekday())
	}
}

func TestRun_WipesPreviousData(t *testing.T) {
	engine := testutil.NewTestEngine(t)
	f := testutil.NewFixture(t, engine)
	ctx := context.Background()

	stale := f.Department("Stale Department")

	_, err := seed.Run(ctx, engine, seed.Options{People: 5, Subprojects: 1, Seed: 7})
	require.NoError(t, err)

	rec, err := engine.Get(ctx, "Department", stale, nil)
	require.NoError(t, err)
	assert.Nil(t, rec, "previous rows are wiped before regeneration")
}
