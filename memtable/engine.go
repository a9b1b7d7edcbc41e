// Package memtable is an in-process relational table engine: typed columns, rows keyed
// by a monotonically allocated integer primary key, and full scans with filtering,
// ordering, limits and streaming aggregation. There are no secondary indices.
package memtable

import (
	"fmt"
	"sort"
	"sync"

	"github.com/danthegoodman1/recordstore/gologger"
	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
)

var logger = gologger.NewComponentLogger("memtable")

type Engine struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

func New() *Engine {
	return &Engine{
		tables: make(map[string]*Table),
	}
}

// CreateTable registers a new empty table. It fails if the name is already taken.
func (e *Engine) CreateTable(def schema.TableDef) (*Table, error) {
	def, err := def.Normalize()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tables[def.Name]; exists {
		return nil, fmt.Errorf("table %s already exists: %w", def.Name, utils.ErrDuplicateKey)
	}

	t := newTable(def)
	e.tables[def.Name] = t
	logger.Debug().Str("table", def.Name).Int("columns", len(def.Columns)).Msg("created table")
	return t, nil
}

// Table looks up a table by case-insensitive name.
func (e *Engine) Table(name string) (*Table, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.tables[value.CanonicalName(name)]
	if !ok {
		return nil, fmt.Errorf("table %s: %w", name, utils.ErrNotFound)
	}
	return t, nil
}

func (e *Engine) DropTable(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	name = value.CanonicalName(name)
	if _, ok := e.tables[name]; !ok {
		return fmt.Errorf("table %s: %w", name, utils.ErrNotFound)
	}
	delete(e.tables, name)
	return nil
}

// Tables lists the registered table names in sorted order.
func (e *Engine) Tables() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.tables))
	for name := range e.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
