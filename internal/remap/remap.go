// Package remap flattens the dotted composite keys produced by
// cross-entity projections into the flat field names downstream consumers
// expect (a task's "asset.phase.subproject" becomes its "subproject"), and
// deduplicates entity lists fetched across several page bundles.
package remap

import (
	"time"

	"github.com/mhayashi-dev/prodtrack/internal/dates"
	"github.com/mhayashi-dev/prodtrack/internal/query"
	"github.com/mhayashi-dev/prodtrack/internal/schema"
)

// Rule renames one projected key.
type Rule struct {
	Old string
	New string
}

// rules maps each entity kind to its key renames. Kinds without an entry
// pass through untouched. The table is dispatched on the record's own
// type tag, which the query engine injects into every record.
var rules = map[schema.Kind][]Rule{
	schema.KindAsset: {
		{Old: "step.color", New: "color"},
	},
	schema.KindTask: {
		{Old: "asset.phase.subproject", New: "subproject"},
		{Old: "asset.work_category", New: "work_category"},
	},
	schema.KindMilestoneTask: {
		{Old: "asset.phase.subproject", New: "subproject"},
		{Old: "asset.asset_type", New: "asset_type"},
	},
	schema.KindPersonWorkload: {
		{Old: "task.asset.phase.subproject", New: "subproject"},
	},
}

// Options control how RemapKeyInList moves a key.
type Options struct {
	// Override replaces an existing value under the new key.
	Override bool
	// KeepOld leaves the old key in place after copying.
	KeepOld bool
}

// RemapKeyInList renames a key on every record in the list. Records are
// copied; inputs are never mutated. By default the value moves only when
// the new key is absent, and the old key is removed afterwards.
func RemapKeyInList(items []query.Record, oldKey, newKey string, opts ...Options) []query.Record {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	out := make([]query.Record, 0, len(items))
	for _, item := range items {
		if item == nil {
			out = append(out, item)
			continue
		}
		target := make(query.Record, len(item))
		for k, v := range item {
			target[k] = v
		}
		if v, ok := target[oldKey]; ok {
			if _, exists := target[newKey]; o.Override || !exists {
				target[newKey] = v
			}
			if !o.KeepOld {
				delete(target, oldKey)
			}
		}
		out = append(out, target)
	}
	return out
}

// Apply runs the registered rules for each record's entity kind, plus a
// universal pass that stringifies any update_at timestamp for display.
func Apply(items []query.Record) []query.Record {
	if len(items) == 0 {
		return items
	}
	out := copyList(items)
	for _, rule := range rules[schema.Kind(items[0].Type())] {
		out = RemapKeyInList(out, rule.Old, rule.New)
	}
	for _, item := range out {
		if item == nil {
			continue
		}
		if t, ok := item["update_at"].(time.Time); ok {
			if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
				item["update_at"] = t.Format(dates.DateLayout)
			} else {
				item["update_at"] = t.Format(dates.DateTimeLayout)
			}
		}
	}
	return out
}

// ApplyOne runs Apply on a single record.
func ApplyOne(rec query.Record) query.Record {
	if rec == nil {
		return nil
	}
	out := Apply([]query.Record{rec})
	return out[0]
}

func copyList(items []query.Record) []query.Record {
	out := make([]query.Record, len(items))
	for i, item := range items {
		if item == nil {
			continue
		}
		cp := make(query.Record, len(item))
		for k, v := range item {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

// MergeByID merges entity lists keyed by id. The last-seen record wins for
// a duplicated id; output order is the first-seen order of ids.
func MergeByID(lists ...[]query.Record) []query.Record {
	merged := make(map[int64]query.Record)
	var order []int64
	for _, list := range lists {
		for _, item := range list {
			if item == nil {
				continue
			}
			id := item.ID()
			if _, seen := merged[id]; !seen {
				order = append(order, id)
			}
			merged[id] = item
		}
	}
	out := make([]query.Record, 0, len(order))
	for _, id := range order {
		out = append(out, merged[id])
	}
	return out
}
