package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Direction orders query results.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter is an equality condition on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Query selects documents of one collection. All filters must match.
type Query struct {
	Collection string
	ID         string // restricts the query to a single document when set
	Filters    []Filter
	OrderBy    string
	Direction  Direction
	Limit      int
}

// Doc is a query watching one document.
func Doc(collection, id string) Query {
	return Query{Collection: collection, ID: id}
}

// Where is a query with equality filters.
func Where(collection string, filters ...Filter) Query {
	return Query{Collection: collection, Filters: filters}
}

// Order sets the order field and direction.
func (q Query) Order(field string, dir Direction) Query {
	q.OrderBy = field
	q.Direction = dir
	return q
}

// Take limits the number of results.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// FilterObject returns the filters as a JSON-normalized object, used by backends that
// can push equality filters down (e.g. jsonb containment).
func (q Query) FilterObject() map[string]any {
	out := make(map[string]any, len(q.Filters))
	for _, f := range q.Filters {
		out[f.Field] = normalizeValue(f.Value)
	}
	return out
}

// Apply filters, orders and limits docs the way every backend must. Input order is
// irrelevant; ties keep creation order.
func Apply(q Query, docs []Document) []Document {
	want := q.FilterObject()
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if q.ID != "" && d.ID != q.ID {
			continue
		}
		if matches(d, want) {
			out = append(out, d)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compareValues(out[i].Data[q.OrderBy], out[j].Data[q.OrderBy])
			if q.Direction == Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func matches(d Document, want map[string]any) bool {
	for field, value := range want {
		got, ok := d.Data[field]
		if !ok || !reflect.DeepEqual(got, value) {
			return false
		}
	}
	return true
}

// Prepare resolves ServerTimestamp sentinels and normalizes every value to its JSON
// form (numbers become float64, structs become maps), which is what backends store.
func Prepare(fields Fields, now time.Time) (map[string]any, error) {
	resolved := make(map[string]any, len(fields))
	stamp := now.UTC().Format(TimeLayout)
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			resolved[k] = stamp
			continue
		}
		resolved[k] = v
	}
	raw, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return out, nil
}

// Merge returns base with patch's top-level fields replaced.
func Merge(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func normalizeValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(TimeLayout)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
