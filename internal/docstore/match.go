package docstore

import (
	"cmp"
	"slices"
	"time"
)

func matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, present := data[f.Field]
		switch f.Op {
		case OpEqual:
			if !present || !equalValues(v, f.Value) {
				return false
			}
		case OpNotEqual:
			// Documents without the field never match an inequality.
			if !present || equalValues(v, f.Value) {
				return false
			}
		case OpArrayContains:
			if !present || !containsValue(toSlice(v), f.Value) {
				return false
			}
		case OpIn:
			if !present || !containsValue(toSlice(f.Value), v) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func toSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	}
	return nil
}

func containsValue(haystack []any, needle any) bool {
	for _, e := range haystack {
		if equalValues(e, needle) {
			return true
		}
	}
	return false
}

func equalValues(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if na, ok := number(a); ok {
		nb, ok := number(b)
		return ok && na == nb
	}
	switch a.(type) {
	case string, bool, nil:
		return a == b
	}
	return false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// compareValues orders values of the same kind; mixed kinds fall back to a
// fixed kind ranking.
func compareValues(a, b any) int {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if na, ok := number(a); ok {
		if nb, ok := number(b); ok {
			return cmp.Compare(na, nb)
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return cmp.Compare(sa, sb)
		}
	}
	return cmp.Compare(kindRank(a), kindRank(b))
}

func kindRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int32, int64, float32, float64:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	}
	return 5
}

// evaluate applies filters, ordering and limit. Without an explicit order
// documents come back sorted by id.
func evaluate(docs []Document, q Query) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if !matches(d.Data, q.Filters) {
			continue
		}
		if q.OrderBy != "" {
			if _, ok := d.Data[q.OrderBy]; !ok {
				continue
			}
		}
		out = append(out, d)
	}

	slices.SortStableFunc(out, func(a, b Document) int {
		if q.OrderBy != "" {
			c := compareValues(a.Data[q.OrderBy], b.Data[q.OrderBy])
			if q.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		c := cmp.Compare(a.ID, b.ID)
		if q.Descending && q.OrderBy != "" {
			c = -c
		}
		return c
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
