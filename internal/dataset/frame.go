// Package dataset provides a small column-oriented table used for labelling
// data and annotation results, together with its JSON and CSV codecs.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformed is returned when a document cannot be decoded into a Frame.
var ErrMalformed = errors.New("dataset: malformed document")

// Frame is an ordered set of named columns sharing one row index. Row labels
// are strings; cells hold decoded JSON values (nil, float64, string, bool,
// []any, map[string]any). A nil cell or a NaN float is treated as null.
type Frame struct {
	columns []string
	index   []string
	data    map[string][]any
	pos     map[string]int
}

// New returns an empty frame with the given columns.
func New(columns ...string) *Frame {
	f := &Frame{
		data: make(map[string][]any, len(columns)),
		pos:  make(map[string]int),
	}
	for _, c := range columns {
		f.AddColumn(c, nil)
	}
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.index) }

// Empty reports whether the frame has no rows.
func (f *Frame) Empty() bool { return len(f.index) == 0 }

// Columns returns the column names in order.
func (f *Frame) Columns() []string { return slices.Clone(f.columns) }

// Index returns the row labels in order.
func (f *Frame) Index() []string { return slices.Clone(f.index) }

// Label returns the label of row i.
func (f *Frame) Label(i int) string { return f.index[i] }

// HasColumn reports whether name is a column of f.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.data[name]
	return ok
}

// AddColumn appends a column filled with v. It is a no-op when the column
// already exists.
func (f *Frame) AddColumn(name string, v any) {
	if f.HasColumn(name) {
		return
	}
	col := make([]any, len(f.index))
	for i := range col {
		col[i] = v
	}
	f.columns = append(f.columns, name)
	f.data[name] = col
}

// DropColumn removes a column if present.
func (f *Frame) DropColumn(name string) {
	if !f.HasColumn(name) {
		return
	}
	delete(f.data, name)
	f.columns = slices.DeleteFunc(f.columns, func(c string) bool { return c == name })
}

// RenameColumn renames old to name. Renaming onto an existing column
// replaces it.
func (f *Frame) RenameColumn(old, name string) {
	if old == name || !f.HasColumn(old) {
		return
	}
	f.DropColumn(name)
	f.data[name] = f.data[old]
	delete(f.data, old)
	for i, c := range f.columns {
		if c == old {
			f.columns[i] = name
		}
	}
}

// AppendRow adds a row with the given label. Columns missing from values are
// null; keys of values that are not columns yet are added.
func (f *Frame) AppendRow(label string, values map[string]any) error {
	if _, dup := f.pos[label]; dup {
		return fmt.Errorf("dataset: duplicate row label %q", label)
	}
	for _, k := range sortedKeys(values) {
		f.AddColumn(k, nil)
	}
	f.pos[label] = len(f.index)
	f.index = append(f.index, label)
	for _, c := range f.columns {
		f.data[c] = append(f.data[c], values[c])
	}
	return nil
}

// Lookup returns the position of the row with the given label.
func (f *Frame) Lookup(label string) (int, bool) {
	i, ok := f.pos[label]
	return i, ok
}

// Get returns the cell at row i of col, or nil when the column is missing.
func (f *Frame) Get(i int, col string) any {
	c, ok := f.data[col]
	if !ok || i < 0 || i >= len(c) {
		return nil
	}
	return c[i]
}

// Set writes v at row i of col, adding the column when needed.
func (f *Frame) Set(i int, col string, v any) {
	if i < 0 || i >= len(f.index) {
		return
	}
	f.AddColumn(col, nil)
	f.data[col][i] = v
}

// Row returns row i as a map of column to value.
func (f *Frame) Row(i int) map[string]any {
	row := make(map[string]any, len(f.columns))
	for _, c := range f.columns {
		row[c] = f.data[c][i]
	}
	return row
}

// Column returns a copy of the named column.
func (f *Frame) Column(name string) []any {
	return slices.Clone(f.data[name])
}

// Floats returns the numeric values of col keyed by row position, skipping
// nulls and non-numeric cells.
func (f *Frame) Floats(col string) (positions []int, values []float64) {
	for i, v := range f.data[col] {
		if x, ok := Float(v); ok {
			positions = append(positions, i)
			values = append(values, x)
		}
	}
	return positions, values
}

// NonNull counts the non-null cells of col.
func (f *Frame) NonNull(col string) int {
	n := 0
	for _, v := range f.data[col] {
		if !IsNull(v) {
			n++
		}
	}
	return n
}

// NumericColumns returns the columns whose non-null cells are all numbers.
// Columns with no non-null cell are not numeric. Booleans are not numbers.
func (f *Frame) NumericColumns() []string {
	var out []string
	for _, c := range f.columns {
		seen := false
		numeric := true
		for _, v := range f.data[c] {
			if IsNull(v) {
				continue
			}
			seen = true
			if _, ok := Float(v); !ok {
				numeric = false
				break
			}
		}
		if seen && numeric {
			out = append(out, c)
		}
	}
	return out
}

// Clone returns a deep copy of f. Nested lists and maps are copied so that
// appending to a cloned list never aliases the original.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		columns: slices.Clone(f.columns),
		index:   slices.Clone(f.index),
		data:    make(map[string][]any, len(f.data)),
		pos:     make(map[string]int, len(f.pos)),
	}
	for k, v := range f.pos {
		out.pos[k] = v
	}
	for c, col := range f.data {
		cp := make([]any, len(col))
		for i, v := range col {
			cp[i] = deepCopy(v)
		}
		out.data[c] = cp
	}
	return out
}

// Select returns a new frame holding the rows at the given positions, in
// that order.
func (f *Frame) Select(positions []int) *Frame {
	out := New(f.columns...)
	for _, p := range positions {
		label := f.index[p]
		out.pos[label] = len(out.index)
		out.index = append(out.index, label)
		for _, c := range f.columns {
			out.data[c] = append(out.data[c], deepCopy(f.data[c][p]))
		}
	}
	return out
}

// IsNull reports whether v is absent: nil or a NaN float.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	return false
}

// Float converts a numeric non-null cell to float64.
func Float(v any) (float64, bool) {
	var x float64
	switch n := v.(type) {
	case float64:
		x = n
	case float32:
		x = float64(n)
	case int:
		x = float64(n)
	case int64:
		x = float64(n)
	case int32:
		x = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(x) {
		return 0, false
	}
	return x, true
}

// CompareLabels orders row labels numerically when both are integers and
// lexically otherwise. Numeric labels sort before non-numeric ones.
func CompareLabels(a, b string) int {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return ai - bi
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopy(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = deepCopy(e)
		}
		return out
	}
	return v
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
