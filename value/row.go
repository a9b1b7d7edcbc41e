package value

import (
	"sort"
	"strings"
)

// Row maps canonical column names to values. A missing column reads as Null.
type Row map[string]Value

// CanonicalName folds a column name to its case-insensitive form.
func CanonicalName(name string) string {
	return strings.ToLower(name)
}

func (r Row) Get(column string) (Value, error) {
	return r[CanonicalName(column)], nil
}

func (r Row) Lookup(column string) (Value, bool) {
	v, ok := r[CanonicalName(column)]
	return v, ok
}

func (r Row) Set(column string, v Value) {
	r[CanonicalName(column)] = v
}

func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Columns lists the row's column names in sorted order.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Natives returns a plain map suitable for JSON encoding.
func (r Row) Natives() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v.Native()
	}
	return out
}

// RowFrom builds a Row from Go natives.
func RowFrom(m map[string]any) (Row, error) {
	r := make(Row, len(m))
	for k, x := range m {
		v, err := FromAny(x)
		if err != nil {
			return nil, err
		}
		r.Set(k, v)
	}
	return r, nil
}
