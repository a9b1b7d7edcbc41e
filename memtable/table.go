package memtable

import (
	"fmt"
	"sort"
	"sync"

	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
)

type (
	Table struct {
		def  schema.TableDef
		cols map[string]schema.Column
		// names is every declared column, the projection of a whole row.
		names []string

		mu      sync.RWMutex
		rows    map[int64]*row
		lastKey int64
	}

	// row guards its own values so single-field updates never tear.
	row struct {
		mu   sync.RWMutex
		vals value.Row
	}
)

func newTable(def schema.TableDef) *Table {
	cols := make(map[string]schema.Column, len(def.Columns))
	for _, c := range def.Columns {
		cols[c.Name] = c
	}
	return &Table{
		def:   def,
		cols:  cols,
		names: def.ColumnNames(),
		rows:  make(map[int64]*row),
	}
}

func (t *Table) Def() schema.TableDef {
	return t.def
}

func (t *Table) Name() string {
	return t.def.Name
}

// InsertRow allocates the next key and stores an empty row carrying only that key.
// Keys are never reused, even after the row is removed.
func (t *Table) InsertRow() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastKey++
	t.rows[t.lastKey] = t.emptyRow(t.lastKey)
	return t.lastKey
}

// InsertRowWithKey stores an empty row at an explicit key. Later allocations continue
// above the largest key seen.
func (t *Table) InsertRowWithKey(key int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.rows[key]; exists {
		return fmt.Errorf("key %d in table %s: %w", key, t.def.Name, utils.ErrDuplicateKey)
	}
	if key > t.lastKey {
		t.lastKey = key
	}
	t.rows[key] = t.emptyRow(key)
	return nil
}

func (t *Table) emptyRow(key int64) *row {
	return &row{vals: value.Row{t.def.PrimaryKey: value.Int(key)}}
}

func (t *Table) column(name string) (schema.Column, error) {
	c, ok := t.cols[value.CanonicalName(name)]
	if !ok {
		return schema.Column{}, fmt.Errorf("column %q in table %s: %w", name, t.def.Name, utils.ErrNotFound)
	}
	return c, nil
}

func (t *Table) get(key int64) (*row, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.rows[key]
	return r, ok
}

// checkValues coerces vals against the declared columns. The primary key can only be
// "written" with the value it already has.
func (t *Table) checkValues(key int64, vals value.Row) (value.Row, error) {
	out := make(value.Row, len(vals))
	for name, v := range vals {
		c, err := t.column(name)
		if err != nil {
			return nil, err
		}
		cv, err := c.Coerce(v)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", t.def.Name, err)
		}
		if c.Name == t.def.PrimaryKey && !value.Equal(cv, value.Int(key)) {
			return nil, fmt.Errorf("primary key %s of table %s is immutable: %w", c.Name, t.def.Name, utils.ErrUnsupportedShape)
		}
		out[c.Name] = cv
	}
	return out, nil
}

// PutValue type-checks v against the column and stores it. Unknown keys are a no-op.
func (t *Table) PutValue(key int64, column string, v value.Value) error {
	return t.PutValues(key, value.Row{column: v})
}

// PutValues checks every value before storing any of them.
func (t *Table) PutValues(key int64, vals value.Row) error {
	checked, err := t.checkValues(key, vals)
	if err != nil {
		return err
	}
	r, ok := t.get(key)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, v := range checked {
		r.vals[name] = v
	}
	return nil
}

// GetValue fails for an undeclared column and returns Null when the row or value is absent.
func (t *Table) GetValue(key int64, column string) (value.Value, error) {
	c, err := t.column(column)
	if err != nil {
		return value.Value{}, err
	}
	r, ok := t.get(key)
	if !ok {
		return value.Null(), nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vals[c.Name], nil
}

// GetValues projects columns of one row, every declared column when columns is nil.
// Absent values are reported as Null. ok is false when the row does not exist.
func (t *Table) GetValues(key int64, columns []string) (value.Row, bool, error) {
	for _, name := range columns {
		if _, err := t.column(name); err != nil {
			return nil, false, err
		}
	}
	r, ok := t.get(key)
	if !ok {
		return nil, false, nil
	}
	if columns == nil {
		columns = t.names
	}
	return r.project(columns), true, nil
}

func (r *row) project(columns []string) value.Row {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(value.Row, len(columns))
	for _, name := range columns {
		name = value.CanonicalName(name)
		out[name] = r.vals[name]
	}
	return out
}

// Row returns a copy of the whole row.
func (t *Table) Row(key int64) (value.Row, bool) {
	r, ok := t.get(key)
	if !ok {
		return nil, false
	}
	return r.project(t.names), true
}

func (t *Table) Contains(key int64) bool {
	_, ok := t.get(key)
	return ok
}

// RemoveRow deletes the row; afterwards it reads as not found. It reports whether a
// row was there.
func (t *Table) RemoveRow(key int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.rows[key]
	delete(t.rows, key)
	return ok
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Keys snapshots the live keys in ascending order.
func (t *Table) Keys() []int64 {
	t.mu.RLock()
	keys := make([]int64, 0, len(t.rows))
	for k := range t.rows {
		keys = append(keys, k)
	}
	t.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
