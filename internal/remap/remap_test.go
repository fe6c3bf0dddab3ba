package remap_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhayashi-dev/prodtrack/internal/query"
	"github.com/mhayashi-dev/prodtrack/internal/remap"
)

func TestRemapKeyInList_Defaults(t *testing.T) {
	in := []query.Record{
		{"id": int64(1), "old": "a"},
		{"id": int64(2), "old": "b", "new": "kept"},
		{"id": int64(3)},
		nil,
	}
	out := remap.RemapKeyInList(in, "old", "new")

	require.Len(t, out, 4)
	assert.Equal(t, "a", out[0]["new"])
	_, hasOld := out[0]["old"]
	assert.False(t, hasOld, "old key is removed by default")

	assert.Equal(t, "kept", out[1]["new"], "existing new key wins without Override")
	_, hasOld = out[1]["old"]
	assert.False(t, hasOld)

	_, hasNew := out[2]["new"]
	assert.False(t, hasNew, "records without the old key are untouched")
	assert.Nil(t, out[3])

	// Inputs are never mutated.
	assert.Equal(t, "a", in[0]["old"])
	_, hasNew = in[0]["new"]
	assert.False(t, hasNew)
}

func TestRemapKeyInList_OverrideAndKeepOld(t *testing.T) {
	in := []query.Record{{"id": int64(1), "old": "a", "new": "stale"}}

	out := remap.RemapKeyInList(in, "old", "new", remap.Options{Override: true, KeepOld: true})
	assert.Equal(t, "a", out[0]["new"])
	assert.Equal(t, "a", out[0]["old"])
}

func TestApply_TaskRules(t *testing.T) {
	sub := query.Link{Type: "Subproject", ID: 5, Name: "Sedan MY26"}
	wc := query.Link{Type: "WorkCategory", ID: 2, Name: "Exterior"}
	in := []query.Record{{
		"id":                     int64(10),
		"type":                   "Task",
		"name":                   "Sketch refinement",
		"asset.phase.subproject": sub,
		"asset.work_category":    wc,
	}}

	out := remap.Apply(in)
	require.Len(t, out, 1)
	assert.Equal(t, sub, out[0]["subproject"])
	assert.Equal(t, wc, out[0]["work_category"])
	_, hasDotted := out[0]["asset.phase.subproject"]
	assert.False(t, hasDotted)

	// The input list still carries the dotted keys.
	assert.Equal(t, sub, in[0]["asset.phase.subproject"])
}

func TestApply_KindsWithoutRulesPassThrough(t *testing.T) {
	in := []query.Record{{"id": int64(1), "type": "Department", "name": "CMF"}}
	out := remap.Apply(in)
	assert.Equal(t, in, out)
}

func TestApply_StringifiesUpdateAt(t *testing.T) {
	in := []query.Record{{
		"id":        int64(1),
		"type":      "Subproject",
		"update_at": time.Date(2024, 3, 11, 14, 30, 0, 0, time.UTC),
	}}
	out := remap.Apply(in)
	assert.Equal(t, "2024-03-11 14:30:00", out[0]["update_at"])

	in = []query.Record{{
		"id":        int64(2),
		"type":      "Subproject",
		"update_at": time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
	}}
	out = remap.Apply(in)
	assert.Equal(t, "2024-03-11", out[0]["update_at"])
}

func TestApplyOne(t *testing.T) {
	rec := query.Record{
		"id":         int64(3),
		"type":       "Asset",
		"step.color": "70, 130, 180",
	}
	out := remap.ApplyOne(rec)
	assert.Equal(t, "70, 130, 180", out["color"])
	assert.Nil(t, remap.ApplyOne(nil))
}

func TestMergeByID(t *testing.T) {
	a := []query.Record{
		{"id": int64(1), "type": "Step", "name": "Sketch"},
		{"id": int64(2), "type": "Step", "name": "Clay"},
	}
	b := []query.Record{
		{"id": int64(2), "type": "Step", "name": "Clay Modeling"},
		{"id": int64(3), "type": "Step", "name": "Surfacing"},
		nil,
	}

	out := remap.MergeByID(a, b)
	require.Len(t, out, 3)
	assert.Equal(t, int64(1), out[0].ID())
	assert.Equal(t, int64(2), out[1].ID())
	assert.Equal(t, int64(3), out[2].ID())
	assert.Equal(t, "Clay Modeling", out[1]["name"], "last-seen record wins for a duplicated id")
}

func TestMergeByID_Empty(t *testing.T) {
	out := remap.MergeByID(nil, []query.Record{})
	assert.Empty(t, out)
}
