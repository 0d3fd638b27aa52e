package dataset

import (
	"slices"
	"strconv"
)

// OuterJoin joins left and right on their row labels. The result holds the
// union of both indexes in label order and the union of both column sets,
// left columns first. When a column exists on both sides, the left value
// wins and nulls are filled from the right.
func OuterJoin(left, right *Frame) *Frame {
	labels := slices.Clone(left.index)
	for _, l := range right.index {
		if _, ok := left.pos[l]; !ok {
			labels = append(labels, l)
		}
	}
	slices.SortStableFunc(labels, CompareLabels)

	cols := slices.Clone(left.columns)
	for _, c := range right.columns {
		if !left.HasColumn(c) {
			cols = append(cols, c)
		}
	}

	out := New(cols...)
	for _, label := range labels {
		li, inLeft := left.pos[label]
		ri, inRight := right.pos[label]
		row := make(map[string]any, len(cols))
		for _, c := range cols {
			var v any
			if inLeft {
				v = left.Get(li, c)
			}
			if IsNull(v) && inRight && right.HasColumn(c) {
				v = right.Get(ri, c)
			}
			row[c] = deepCopy(v)
		}
		_ = out.AppendRow(label, row)
	}
	return out
}

// Concat stacks frames keeping their row labels. A label seen again only
// fills cells that are still null, so earlier non-null values are kept.
func Concat(frames ...*Frame) *Frame {
	out := New()
	for _, f := range frames {
		if f == nil {
			continue
		}
		for _, c := range f.columns {
			out.AddColumn(c, nil)
		}
		for i, label := range f.index {
			if p, ok := out.pos[label]; ok {
				for _, c := range f.columns {
					if IsNull(out.data[c][p]) {
						out.data[c][p] = deepCopy(f.data[c][i])
					}
				}
				continue
			}
			_ = out.AppendRow(label, deepCopyRow(f.Row(i)))
		}
	}
	return out
}

// Stack stacks frames discarding their labels; rows are relabelled 0..n-1.
func Stack(frames ...*Frame) *Frame {
	out := New()
	n := 0
	for _, f := range frames {
		if f == nil {
			continue
		}
		for _, c := range f.columns {
			out.AddColumn(c, nil)
		}
		for i := range f.index {
			_ = out.AppendRow(strconv.Itoa(n), deepCopyRow(f.Row(i)))
			n++
		}
	}
	return out
}

func deepCopyRow(row map[string]any) map[string]any {
	for k, v := range row {
		row[k] = deepCopy(v)
	}
	return row
}
