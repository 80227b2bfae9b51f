package pipeline

import (
	"fmt"
	"strings"
	"time"

	"fsec/internal"
)

type MergePolicy string

const (
	// MergeMin keeps the smaller of duplicate cells.
	MergeMin MergePolicy = "min"
	// MergeFirst keeps the first non-nil duplicate cell.
	MergeFirst MergePolicy = "first"
)

func ParseMergePolicy(s string) (MergePolicy, error) {
	switch p := MergePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case MergeMin, MergeFirst:
		return p, nil
	case "":
		return MergeMin, nil
	}
	return "", fmt.Errorf("unknown merge policy: %s", s)
}

// reshape returns a frame with exactly the schema's columns sorted by name.
// Missing columns are nil, extra columns dropped and duplicate columns
// merged cell by cell under policy.
func reshape(frame internal.Frame, schema internal.Schema, policy MergePolicy) internal.Frame {
	sorted := schema.Sorted()
	sources := make([][]int, len(sorted))
	for i, col := range sorted {
		for j, name := range frame.Columns {
			if name == col.Name {
				sources[i] = append(sources[i], j)
			}
		}
	}

	out := internal.Frame{Columns: sorted.Names(), Rows: make([][]any, 0, len(frame.Rows))}
	for _, row := range frame.Rows {
		next := make([]any, len(sorted))
		for i, idx := range sources {
			var v any
			for _, j := range idx {
				if j >= len(row) {
					continue
				}
				v = mergeCell(v, row[j], policy)
			}
			next[i] = v
		}
		out.Rows = append(out.Rows, next)
	}
	return out
}

// mergeCell combines an accumulated value with the next duplicate. Nil never
// wins over a value.
func mergeCell(acc, next any, policy MergePolicy) any {
	if acc == nil {
		return next
	}
	if next == nil || policy == MergeFirst {
		return acc
	}
	if less(next, acc) {
		return next
	}
	return acc
}

func less(a, b any) bool {
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			return x < y
		}
	case int64:
		if y, ok := b.(int64); ok {
			return x < y
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Before(y)
		}
	case string:
		if y, ok := b.(string); ok {
			return x < y
		}
	}
	return false
}
