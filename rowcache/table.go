package rowcache

import (
	"sort"
	"sync"
	"time"

	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/value"
)

// Table is the cache of one table: its entries plus the subset that is dirty. Dirty
// set membership changes only under mu, taken before any entry lock.
type Table struct {
	def schema.TableDef
	// Now stamps timestamped tables; tests replace it.
	Now func() time.Time

	mu      sync.RWMutex
	entries map[int64]*Entry
	dirty   map[int64]*Entry
}

func NewTable(def schema.TableDef) *Table {
	return &Table{
		def:     def,
		Now:     func() time.Time { return time.Now().UTC() },
		entries: make(map[int64]*Entry),
		dirty:   make(map[int64]*Entry),
	}
}

func (t *Table) Def() schema.TableDef {
	return t.def
}

// Entry returns the cached entry for key, if any.
func (t *Table) Entry(key int64) (*Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	return e, ok
}

func (t *Table) entry(key int64) *Entry {
	e, ok := t.entries[key]
	if !ok {
		e = newEntry(key)
		e.values[t.def.PrimaryKey] = value.Int(key)
		t.entries[key] = e
	}
	return e
}

// Value returns a cached column value.
func (t *Table) Value(key int64, column string) (value.Value, bool) {
	e, ok := t.Entry(key)
	if !ok {
		return value.Value{}, false
	}
	return e.Value(column)
}

// Set writes vals into the entry for key, creating it if needed, and reports whether
// anything changed. On timestamped tables a real change also refreshes updated_at.
func (t *Table) Set(key int64, vals value.Row) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	changed := e.set(vals)
	if len(changed) == 0 {
		return false
	}
	if t.def.Timestamped && realChange(changed) {
		e.set(value.Row{schema.UpdatedAt: value.Time(t.Now())})
	}
	t.dirty[key] = e
	return true
}

func realChange(cols []string) bool {
	for _, c := range cols {
		if !schema.IsTimestampColumn(c) {
			return true
		}
	}
	return false
}

// Load merges backend values into the entry for key and marks it Clean, discarding
// unflushed local writes.
func (t *Table) Load(key int64, vals value.Row) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entry(key)
	e.mu.Lock()
	e.load(vals)
	e.mu.Unlock()
	delete(t.dirty, key)
	return e
}

// Stamp fills the timestamp columns of a record about to be created.
func (t *Table) Stamp(initial value.Row) value.Row {
	return t.def.StampNew(initial, t.Now())
}

// Remove forgets the entry, dirty or not.
func (t *Table) Remove(key int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
	delete(t.dirty, key)
}

// Synchronized is true for uncached keys.
func (t *Table) Synchronized(key int64) bool {
	e, ok := t.Entry(key)
	if !ok {
		return true
	}
	return e.Synchronized()
}

// DirtyKeys snapshots the dirty subset in ascending key order.
func (t *Table) DirtyKeys() []int64 {
	t.mu.RLock()
	keys := make([]int64, 0, len(t.dirty))
	for k := range t.dirty {
		keys = append(keys, k)
	}
	t.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (t *Table) DirtyCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.dirty)
}

// DirtyValues snapshots the modified columns of key for a flush. ok is false when the
// entry is Clean or not cached.
func (t *Table) DirtyValues(key int64) (value.Row, bool) {
	e, ok := t.Entry(key)
	if !ok {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.modified) == 0 {
		return nil, false
	}
	return e.dirtyValues(), true
}

// MarkFlushed records that flushed reached the backend. The entry leaves the dirty
// set once no column is left modified.
func (t *Table) MarkFlushed(key int64, flushed value.Row) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		return
	}
	e.mu.Lock()
	e.markFlushed(flushed)
	clean := len(e.modified) == 0
	e.mu.Unlock()
	if clean {
		delete(t.dirty, key)
	}
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Clear drops every entry. Pending writes are lost, so callers flush first.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[int64]*Entry)
	t.dirty = make(map[int64]*Entry)
}
