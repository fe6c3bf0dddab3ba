package query_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mhayashi-dev/prodtrack/internal/query"
)

func TestFormatValue_Times(t *testing.T) {
	midnight := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-11", query.FormatValue(midnight))

	afternoon := time.Date(2024, 3, 11, 14, 30, 5, 0, time.UTC)
	assert.Equal(t, "2024-03-11 14:30:05", query.FormatValue(afternoon))
}

func TestFormatValue_LinkShapes(t *testing.T) {
	link := query.Link{Type: "Person", ID: 7, Name: "Aiko"}
	assert.Equal(t, link, query.FormatValue(link), "links pass through unchanged")

	collapsed := query.FormatValue(map[string]any{"type": "Person", "id": float64(7), "name": "Aiko"})
	assert.Equal(t, link, collapsed, "link-shaped maps collapse to Link")

	partial := map[string]any{"id": float64(7)}
	assert.Equal(t, partial, query.FormatValue(partial), "maps without a name stay maps")
}

func TestFormatValue_Idempotent(t *testing.T) {
	values := []any{
		query.Link{Type: "Step", ID: 3, Name: "Sketch"},
		"2024-03-11",
		int64(42),
		1.5,
		nil,
	}
	for _, v := range values {
		once := query.FormatValue(v)
		assert.Equal(t, once, query.FormatValue(once))
	}
}

func TestFormatRecord(t *testing.T) {
	rec := query.Record{
		"id":       int64(1),
		"type":     "Task",
		"created":  time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
		"subtasks": []any{map[string]any{"id": float64(2), "name": "sub", "type": "Task"}},
	}
	out := query.FormatRecord(rec)
	assert.Equal(t, "2024-01-08", out["created"])
	list, ok := out["subtasks"].([]any)
	assert.True(t, ok)
	assert.Equal(t, query.Link{Type: "Task", ID: 2, Name: "sub"}, list[0])

	assert.Nil(t, query.FormatRecord(nil))
}
