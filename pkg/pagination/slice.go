package pagination

import (
	"cmp"
	"slices"
)

// In-memory keyset pagination for result sets that are fully materialized
// (upstream feeds, upstream search results). Ordering matches KeysetBuilder:
// NULL primaries last when ascending and first when descending, tiebreak
// always ascending.

// Less reports whether the row (ap, at) sorts strictly before (bp, bt).
func Less(ap, at, bp, bt any, order Order) bool {
	switch {
	case ap == nil && bp != nil:
		return order == OrderDesc
	case ap != nil && bp == nil:
		return order == OrderAsc
	case ap != nil && bp != nil:
		if c := CompareValues(ap, bp); c != 0 {
			if order == OrderDesc {
				return c > 0
			}
			return c < 0
		}
	}
	return CompareValues(at, bt) < 0
}

// SortSlice sorts items in scan order.
func SortSlice[T any](items []T, position PositionFunc[T], order Order) {
	slices.SortStableFunc(items, func(a, b T) int {
		ap, at := position(a)
		bp, bt := position(b)
		switch {
		case Less(ap, at, bp, bt, order):
			return -1
		case Less(bp, bt, ap, at, order):
			return 1
		default:
			return 0
		}
	})
}

// Window returns the rows of a sorted slice that belong to the requested
// page, including the look-ahead row used by Assemble.
func Window[T any](req Request, after *CursorPayload, items []T, position PositionFunc[T]) []T {
	start := 0
	switch {
	case req.Mode == ModeOffset:
		start = min(max(req.Offset(), 0), len(items))
	case after != nil:
		start = len(items)
		for i, item := range items {
			p, t := position(item)
			if Less(after.Primary(), after.Tiebreak(), p, t, req.Order) {
				start = i
				break
			}
		}
	}
	end := start + min(max(req.FetchLimit(), 0), len(items)-start)
	return items[start:end]
}

// CompareValues orders two non-nil scalar values. Numbers compare
// numerically across integer and float types, strings lexically and false
// before true. Values of different kinds order by kind.
func CompareValues(a, b any) int {
	ka, kb := kindOf(a), kindOf(b)
	if ka != kb {
		return cmp.Compare(ka, kb)
	}
	switch ka {
	case kindNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		if ia, ok := a.(int64); ok {
			if ib, ok := b.(int64); ok {
				return cmp.Compare(ia, ib)
			}
		}
		return cmp.Compare(fa, fb)
	case kindString:
		return cmp.Compare(a.(string), b.(string))
	case kindBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	default:
		return 0
	}
}

const (
	kindNil = iota
	kindBool
	kindNumber
	kindString
	kindOther
)

func kindOf(v any) int {
	switch v.(type) {
	case nil:
		return kindNil
	case bool:
		return kindBool
	case int, int32, int64, float32, float64:
		return kindNumber
	case string:
		return kindString
	default:
		return kindOther
	}
}

func toFloat(v any) (float64, bool) {
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
	default:
		return 0, false
	}
}
