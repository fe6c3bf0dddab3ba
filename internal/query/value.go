package query

import (
	"time"

	"github.com/mhayashi-dev/prodtrack/internal/dates"
)

// Link is the normalized cross-entity reference used on the wire in place
// of a raw foreign key. Links are produced only by the formatter and the
// engine's serializer; downstream layers move them around without
// re-inspecting their shape.
type Link struct {
	Type string `json:"type,omitempty"`
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Record is one serialized entity row. Values are scalars, Link or []Link;
// "id" and "type" are always present.
type Record map[string]any

// Type returns the record's entity type name, or "" if absent.
func (r Record) Type() string {
	s, _ := r["type"].(string)
	return s
}

// ID returns the record's id, or 0 if absent.
func (r Record) ID() int64 {
	n, _ := asID(r["id"])
	return n
}

// FormatValue normalizes a single value for the wire: timestamps become
// ISO strings (date-only unless a time of day is present), link-shaped
// maps collapse to Link, and already-formatted values pass through
// unchanged, so the function is idempotent.
func FormatValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 {
			return val.Format(dates.DateLayout)
		}
		return val.Format(dates.DateTimeLayout)
	case Link, []Link:
		return val
	case map[string]any:
		if link, ok := linkFromMap(val); ok {
			return link
		}
		return val
	default:
		return v
	}
}

// FormatRecord applies FormatValue to every value in a record, recursing
// into nested lists.
func FormatRecord(rec Record) Record {
	if rec == nil {
		return nil
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		switch val := v.(type) {
		case []any:
			formatted := make([]any, len(val))
			for i, item := range val {
				formatted[i] = FormatValue(item)
			}
			out[k] = formatted
		default:
			out[k] = FormatValue(v)
		}
	}
	return out
}

// FormatList applies FormatRecord to every record in a list.
func FormatList(recs []Record) []Record {
	out := make([]Record, len(recs))
	for i, rec := range recs {
		out[i] = FormatRecord(rec)
	}
	return out
}

// linkFromMap collapses a link-shaped mapping (has id and name) to a Link,
// inferring the type key when present.
func linkFromMap(m map[string]any) (Link, bool) {
	idVal, hasID := m["id"]
	nameVal, hasName := m["name"]
	if !hasID || !hasName {
		return Link{}, false
	}
	id, ok := asID(idVal)
	if !ok {
		return Link{}, false
	}
	name, ok := nameVal.(string)
	if !ok {
		return Link{}, false
	}
	link := Link{ID: id, Name: name}
	if t, ok := m["type"].(string); ok {
		link.Type = t
	}
	return link, true
}

// asID coerces the numeric shapes ids arrive in (int64 from storage,
// float64 from decoded JSON, int from Go callers) to int64.
func asID(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case Link:
		return n.ID, true
	default:
		return 0, false
	}
}
