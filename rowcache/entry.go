// Package rowcache holds per-row dirty-tracking cache entries grouped per table. An
// entry is Clean when no column was modified since the last flush and Dirty otherwise.
package rowcache

import (
	"sort"
	"sync"

	"github.com/danthegoodman1/recordstore/value"
)

// Entry caches the known columns of one row. Values may be sparse.
type Entry struct {
	mu       sync.RWMutex
	key      int64
	values   value.Row
	modified map[string]struct{}
}

func newEntry(key int64) *Entry {
	return &Entry{
		key:      key,
		values:   value.Row{},
		modified: make(map[string]struct{}),
	}
}

func (e *Entry) Key() int64 {
	return e.key
}

// Value returns the cached value of column and whether it is known.
func (e *Entry) Value(column string) (value.Value, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.values.Lookup(column)
}

// Values copies every known column.
func (e *Entry) Values() value.Row {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.values.Clone()
}

func (e *Entry) Synchronized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.modified) == 0
}

// Modified lists the dirty columns in sorted order.
func (e *Entry) Modified() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cols := make([]string, 0, len(e.modified))
	for c := range e.modified {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// set writes vals and reports which columns actually changed. A column already
// holding an equal value is neither written nor marked.
func (e *Entry) set(vals value.Row) []string {
	var changed []string
	for name, v := range vals {
		name = value.CanonicalName(name)
		if cur, ok := e.values[name]; ok && value.Equal(cur, v) && cur.Kind == v.Kind {
			continue
		}
		e.values[name] = v
		e.modified[name] = struct{}{}
		changed = append(changed, name)
	}
	return changed
}

// load overwrites with backend values and drops every pending modification.
func (e *Entry) load(vals value.Row) {
	for name, v := range vals {
		e.values[value.CanonicalName(name)] = v
	}
	e.modified = make(map[string]struct{})
}

func (e *Entry) dirtyValues() value.Row {
	out := make(value.Row, len(e.modified))
	for name := range e.modified {
		out[name] = e.values[name]
	}
	return out
}

// markFlushed clears the columns whose value is still the one that was flushed. A
// column rewritten while the flush was in flight stays dirty.
func (e *Entry) markFlushed(flushed value.Row) {
	for name, v := range flushed {
		cur, ok := e.values[name]
		if ok && value.Equal(cur, v) && cur.Kind == v.Kind {
			delete(e.modified, name)
		}
	}
}
