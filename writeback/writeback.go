// Package writeback fronts a backing store.Store with a row cache. Reads go through
// the cache and load whole rows on a miss; writes only touch the cache until Save or
// SaveAll flushes them. Bulk reads (counts, scans, aggregates) flush the tables they
// read first, so backend results never miss local writes.
//
// Flush calls against one table must be serialized by the caller.
package writeback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/UltimateTournament/backoff/v4"
	"github.com/danthegoodman1/recordstore/query"
	"github.com/danthegoodman1/recordstore/rowcache"
	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/store"
	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
	"github.com/rs/zerolog"
)

type Store struct {
	ID      string
	backend store.Store
	// Now stamps timestamped tables; it is handed to every table cache.
	Now func() time.Time

	mu     sync.Mutex
	tables map[string]*rowcache.Table
}

var _ store.Store = (*Store)(nil)

func Open(ctx context.Context, backend store.Store) *Store {
	s := &Store{
		ID:      utils.GenRandomShortID(),
		backend: backend,
		Now:     func() time.Time { return time.Now().UTC() },
		tables:  make(map[string]*rowcache.Table),
	}
	zerolog.Ctx(ctx).Debug().Str("store", s.ID).Msg("opened write-back store")
	return s
}

func (s *Store) Backend() store.Store {
	return s.backend
}

// cache returns the table cache, creating it from the backend's definition.
func (s *Store) cache(ctx context.Context, table string) (*rowcache.Table, error) {
	name := value.CanonicalName(table)
	s.mu.Lock()
	c, ok := s.tables[name]
	s.mu.Unlock()
	if ok {
		return c, nil
	}

	def, err := s.backend.TableDef(ctx, name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.tables[name]; ok {
		return c, nil
	}
	c = rowcache.NewTable(def)
	c.Now = s.Now
	s.tables[name] = c
	return c, nil
}

func (s *Store) cached() []*rowcache.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*rowcache.Table, 0, len(s.tables))
	for _, c := range s.tables {
		out = append(out, c)
	}
	return out
}

func (s *Store) CreateTable(ctx context.Context, def schema.TableDef) error {
	return s.backend.CreateTable(ctx, def)
}

func (s *Store) TableDef(ctx context.Context, table string) (schema.TableDef, error) {
	c, err := s.cache(ctx, table)
	if err != nil {
		return schema.TableDef{}, err
	}
	return c.Def(), nil
}

func (s *Store) Tables(ctx context.Context) ([]string, error) {
	return s.backend.Tables(ctx)
}

// load reads the whole row from the backend and merges it into the cache as clean.
// Columns the backend leaves out are cached as Null so the entry is always complete.
func (s *Store) load(ctx context.Context, c *rowcache.Table, key int64) (*rowcache.Entry, error) {
	def := c.Def()
	row, err := s.backend.GetValues(ctx, def.Name, key, nil)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = value.Row{}
	}
	for _, col := range def.Columns {
		if _, ok := row.Lookup(col.Name); !ok {
			row.Set(col.Name, value.Null())
		}
	}
	zerolog.Ctx(ctx).Trace().Str("table", c.Def().Name).Int64("key", key).Msg("read through")
	return c.Load(key, row), nil
}

func (s *Store) GetValue(ctx context.Context, table string, key int64, column string) (value.Value, error) {
	row, err := s.GetValues(ctx, table, key, []string{column})
	if err != nil {
		return value.Value{}, err
	}
	return row.Get(column)
}

func (s *Store) GetValues(ctx context.Context, table string, key int64, columns []string) (value.Row, error) {
	c, err := s.cache(ctx, table)
	if err != nil {
		return nil, err
	}
	def := c.Def()
	if columns == nil {
		columns = def.ColumnNames()
	}
	if err = def.CheckColumns(columns); err != nil {
		return nil, err
	}

	e, ok := c.Entry(key)
	if ok {
		if row, complete := pick(e, columns); complete {
			return row, nil
		}
	}
	if e, err = s.load(ctx, c, key); err != nil {
		return nil, err
	}
	row, _ := pick(e, columns)
	return row, nil
}

// pick projects columns out of e; complete is false if any of them is not cached.
func pick(e *rowcache.Entry, columns []string) (value.Row, bool) {
	out := make(value.Row, len(columns))
	complete := true
	for _, name := range columns {
		v, ok := e.Value(name)
		if !ok {
			complete = false
			v = value.Null()
		}
		out.Set(name, v)
	}
	return out, complete
}

func (s *Store) SetValue(ctx context.Context, table string, key int64, column string, v value.Value) error {
	return s.SetValues(ctx, table, key, value.Row{column: v})
}

// SetValues writes into the cache only. A record that is not cached yet is loaded
// first, which also checks that it exists.
func (s *Store) SetValues(ctx context.Context, table string, key int64, vals value.Row) error {
	c, err := s.cache(ctx, table)
	if err != nil {
		return err
	}
	def := c.Def()
	checked, err := def.CoerceRow(vals)
	if err != nil {
		return err
	}
	if pk, ok := checked[def.PrimaryKey]; ok && !value.Equal(pk, value.Int(key)) {
		return fmt.Errorf("primary key %s of table %s is immutable: %w", def.PrimaryKey, def.Name, utils.ErrUnsupportedShape)
	}
	if _, ok := c.Entry(key); !ok {
		if _, err = s.load(ctx, c, key); err != nil {
			return err
		}
	}
	c.Set(key, checked)
	return nil
}

func (s *Store) ContainsRecord(ctx context.Context, table string, key int64) (bool, error) {
	c, err := s.cache(ctx, table)
	if err != nil {
		return false, err
	}
	if _, ok := c.Entry(key); ok {
		return true, nil
	}
	return s.backend.ContainsRecord(ctx, c.Def().Name, key)
}

// fullRow widens initial to every declared column so the new entry is complete.
func fullRow(def schema.TableDef, key int64, initial value.Row) value.Row {
	out := make(value.Row, len(def.Columns))
	for _, col := range def.Columns {
		v, ok := initial.Lookup(col.Name)
		if !ok {
			v = value.Null()
		}
		out[col.Name] = v
	}
	out[def.PrimaryKey] = value.Int(key)
	return out
}

// InsertNewRecord creates the record in the backend right away, since only the
// backend can allocate its key, and caches it clean.
func (s *Store) InsertNewRecord(ctx context.Context, table string, initial value.Row) (int64, error) {
	c, err := s.cache(ctx, table)
	if err != nil {
		return 0, err
	}
	def := c.Def()
	checked, err := def.CoerceRow(c.Stamp(initial))
	if err != nil {
		return 0, err
	}
	delete(checked, def.PrimaryKey)
	key, err := s.backend.InsertNewRecord(ctx, def.Name, checked)
	if err != nil {
		return 0, err
	}
	c.Load(key, fullRow(def, key, checked))
	return key, nil
}

func (s *Store) CreateRecord(ctx context.Context, table string, key int64, initial value.Row) error {
	c, err := s.cache(ctx, table)
	if err != nil {
		return err
	}
	def := c.Def()
	checked, err := def.CoerceRow(c.Stamp(initial))
	if err != nil {
		return err
	}
	delete(checked, def.PrimaryKey)
	if err = s.backend.CreateRecord(ctx, def.Name, key, checked); err != nil {
		return err
	}
	c.Load(key, fullRow(def, key, checked))
	return nil
}

// Destroy deletes the record and then drops the cached entry, including unflushed
// writes. A failed backend delete leaves the entry and its writes in place.
func (s *Store) Destroy(ctx context.Context, table string, key int64) error {
	c, err := s.cache(ctx, table)
	if err != nil {
		return err
	}
	if err = s.backend.Destroy(ctx, c.Def().Name, key); err != nil {
		return err
	}
	c.Remove(key)
	return nil
}

// flushFor flushes table and every table an association in cond reads.
func (s *Store) flushFor(ctx context.Context, table string, cond query.Condition) error {
	tables := append([]string{table}, query.Tables(cond)...)
	seen := make(map[string]bool, len(tables))
	for _, t := range tables {
		t = value.CanonicalName(t)
		if seen[t] {
			continue
		}
		seen[t] = true
		if _, err := s.SaveAll(ctx, t); err != nil {
			return fmt.Errorf("error flushing %s before read: %w", t, err)
		}
	}
	return nil
}

func (s *Store) Count(ctx context.Context, table string, cond query.Condition) (int64, error) {
	if err := s.flushFor(ctx, table, cond); err != nil {
		return 0, err
	}
	return s.backend.Count(ctx, table, cond)
}

func (s *Store) FindFirstWithData(ctx context.Context, table string, columns []string, scope query.Scope) (value.Row, bool, error) {
	var found value.Row
	err := s.StreamAllWithData(ctx, table, columns, scope.WithLimit(1), func(row value.Row) (bool, error) {
		found = row
		return false, nil
	})
	if err != nil {
		return nil, false, err
	}
	return found, found != nil, nil
}

// StreamAllWithData scans the backend after flushing. Whole rows (nil columns) are
// merged into the cache as clean entries.
func (s *Store) StreamAllWithData(ctx context.Context, table string, columns []string, scope query.Scope, fn store.RowFunc) error {
	c, err := s.cache(ctx, table)
	if err != nil {
		return err
	}
	if err = s.flushFor(ctx, table, scope.Condition()); err != nil {
		return err
	}
	def := c.Def()
	return s.backend.StreamAllWithData(ctx, def.Name, columns, scope, func(row value.Row) (bool, error) {
		if columns == nil {
			if pk, ok := row.Lookup(def.PrimaryKey); ok && pk.Kind == value.KindInt {
				c.Load(pk.I64, row)
			}
		}
		return fn(row)
	})
}

// Aggregate flushes and then pushes the aggregate down to the backend.
func (s *Store) Aggregate(ctx context.Context, table string, agg query.Aggregate, cond query.Condition) (value.Value, error) {
	if err := s.flushFor(ctx, table, cond); err != nil {
		return value.Value{}, err
	}
	return s.backend.Aggregate(ctx, table, agg, cond)
}

// Save flushes one entry. On failure the entry stays dirty.
func (s *Store) Save(ctx context.Context, table string, key int64) (bool, error) {
	c, err := s.cache(ctx, table)
	if err != nil {
		return false, err
	}
	return s.save(ctx, c, key)
}

func (s *Store) save(ctx context.Context, c *rowcache.Table, key int64) (bool, error) {
	snap, ok := c.DirtyValues(key)
	if !ok {
		return false, nil
	}
	if err := s.backend.SetValues(ctx, c.Def().Name, key, snap); err != nil {
		return false, fmt.Errorf("error in backend SetValues for %s/%d: %w", c.Def().Name, key, err)
	}
	c.MarkFlushed(key, snap)
	return true, nil
}

// SaveAll flushes every dirty entry of table. Backends implementing
// store.BatchWriter get all of them in one call; otherwise entries are flushed one
// at a time and the first failure stops the flush, leaving the rest dirty.
func (s *Store) SaveAll(ctx context.Context, table string) (bool, error) {
	c, err := s.cache(ctx, table)
	if err != nil {
		return false, err
	}
	keys := c.DirtyKeys()
	if len(keys) == 0 {
		return false, nil
	}
	logger := zerolog.Ctx(ctx).With().Str("store", s.ID).Str("table", c.Def().Name).Logger()

	if bw, ok := s.backend.(store.BatchWriter); ok {
		snaps := make(map[int64]value.Row, len(keys))
		for _, key := range keys {
			if snap, dirty := c.DirtyValues(key); dirty {
				snaps[key] = snap
			}
		}
		if len(snaps) == 0 {
			return false, nil
		}
		if err = bw.SetValuesBatch(ctx, c.Def().Name, snaps); err != nil {
			return false, fmt.Errorf("error in SetValuesBatch for %s: %w", c.Def().Name, err)
		}
		for key, snap := range snaps {
			c.MarkFlushed(key, snap)
		}
		logger.Debug().Int("entries", len(snaps)).Msg("flushed batch")
		return true, nil
	}

	changed := false
	for _, key := range keys {
		saved, err := s.save(ctx, c, key)
		if err != nil {
			logger.Warn().Err(err).Int64("key", key).Msg("flush failed")
			return changed, err
		}
		changed = changed || saved
	}
	logger.Debug().Int("entries", len(keys)).Msg("flushed")
	return changed, nil
}

// SaveAllWithRetry re-invokes SaveAll under b until it succeeds, b gives up, or the
// error is permanent.
func (s *Store) SaveAllWithRetry(ctx context.Context, table string, b backoff.BackOff) (bool, error) {
	changed := false
	err := utils.Retry(ctx, b, func() error {
		saved, err := s.SaveAll(ctx, table)
		changed = changed || saved
		return err
	})
	return changed, err
}

func (s *Store) IsSynchronized(ctx context.Context, table string, key int64) (bool, error) {
	c, err := s.cache(ctx, table)
	if err != nil {
		return false, err
	}
	return c.Synchronized(key), nil
}

func (s *Store) IsCached() bool {
	return true
}

// DirtyCount is the number of entries of table waiting for a flush.
func (s *Store) DirtyCount(ctx context.Context, table string) (int, error) {
	c, err := s.cache(ctx, table)
	if err != nil {
		return 0, err
	}
	return c.DirtyCount(), nil
}

// Close flushes every table and then closes the backend. If any flush fails the
// backend stays open and the joined errors are returned, so Close can be retried.
func (s *Store) Close(ctx context.Context) error {
	var errs []error
	for _, c := range s.cached() {
		if _, err := s.SaveAll(ctx, c.Def().Name); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("error flushing on close: %w", errors.Join(errs...))
	}
	zerolog.Ctx(ctx).Debug().Str("store", s.ID).Msg("closing write-back store")
	return s.backend.Close(ctx)
}
