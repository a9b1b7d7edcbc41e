// Package memstore implements store.Store directly on the in-process table engine. It
// never caches, so every record is always synchronized.
package memstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/danthegoodman1/recordstore/memtable"
	"github.com/danthegoodman1/recordstore/query"
	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/store"
	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
	"github.com/rs/zerolog"
)

type Store struct {
	ID     string
	engine *memtable.Engine
	closed atomic.Bool
	// Now stamps timestamped tables.
	Now func() time.Time
}

var _ store.Store = (*Store)(nil)

func Open(ctx context.Context) *Store {
	s := &Store{
		ID:     utils.GenRandomShortID(),
		engine: memtable.New(),
		Now:    func() time.Time { return time.Now().UTC() },
	}
	zerolog.Ctx(ctx).Debug().Str("store", s.ID).Msg("opened memory store")
	return s
}

// Engine exposes the underlying tables, e.g. for snapshots.
func (s *Store) Engine() *memtable.Engine {
	return s.engine
}

func (s *Store) table(name string) (*memtable.Table, error) {
	if s.closed.Load() {
		return nil, utils.ErrClosed
	}
	return s.engine.Table(name)
}

func (s *Store) CreateTable(ctx context.Context, def schema.TableDef) error {
	if s.closed.Load() {
		return utils.ErrClosed
	}
	t, err := s.engine.CreateTable(def)
	if err != nil {
		return fmt.Errorf("error in CreateTable: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("store", s.ID).Str("table", t.Name()).Msg("created table")
	return nil
}

func (s *Store) TableDef(_ context.Context, table string) (schema.TableDef, error) {
	t, err := s.table(table)
	if err != nil {
		return schema.TableDef{}, err
	}
	return t.Def(), nil
}

func (s *Store) Tables(context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, utils.ErrClosed
	}
	return s.engine.Tables(), nil
}

func (s *Store) GetValue(_ context.Context, table string, key int64, column string) (value.Value, error) {
	t, err := s.table(table)
	if err != nil {
		return value.Value{}, err
	}
	v, err := t.GetValue(key, column)
	if err != nil {
		return value.Value{}, err
	}
	if !t.Contains(key) {
		return value.Value{}, fmt.Errorf("%s/%d: %w", t.Name(), key, utils.ErrRecordNotFound)
	}
	return v, nil
}

func (s *Store) GetValues(_ context.Context, table string, key int64, columns []string) (value.Row, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	row, ok, err := t.GetValues(key, columns)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s/%d: %w", t.Name(), key, utils.ErrRecordNotFound)
	}
	return row, nil
}

func (s *Store) SetValue(ctx context.Context, table string, key int64, column string, v value.Value) error {
	return s.SetValues(ctx, table, key, value.Row{column: v})
}

// SetValues refreshes updated_at on timestamped tables when a column other than the
// timestamps actually changes, unless vals carries updated_at itself.
func (s *Store) SetValues(_ context.Context, table string, key int64, vals value.Row) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	def := t.Def()
	checked, err := def.CoerceRow(vals)
	if err != nil {
		return err
	}
	current, ok := t.Row(key)
	if !ok {
		return fmt.Errorf("%s/%d: %w", t.Name(), key, utils.ErrRecordNotFound)
	}
	if _, explicit := checked[schema.UpdatedAt]; def.Timestamped && !explicit {
		for name, v := range checked {
			if !schema.IsTimestampColumn(name) && !value.Equal(current[name], v) {
				checked[schema.UpdatedAt] = value.Time(s.Now())
				break
			}
		}
	}
	return t.PutValues(key, checked)
}

func (s *Store) ContainsRecord(_ context.Context, table string, key int64) (bool, error) {
	t, err := s.table(table)
	if err != nil {
		return false, err
	}
	return t.Contains(key), nil
}

func (s *Store) InsertNewRecord(_ context.Context, table string, initial value.Row) (int64, error) {
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}
	def := t.Def()
	checked, err := def.CoerceRow(def.StampNew(initial, s.Now()))
	if err != nil {
		return 0, err
	}
	delete(checked, def.PrimaryKey)
	key := t.InsertRow()
	if err = t.PutValues(key, checked); err != nil {
		t.RemoveRow(key)
		return 0, err
	}
	return key, nil
}

func (s *Store) CreateRecord(_ context.Context, table string, key int64, initial value.Row) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	def := t.Def()
	checked, err := def.CoerceRow(def.StampNew(initial, s.Now()))
	if err != nil {
		return err
	}
	delete(checked, def.PrimaryKey)
	if err = t.InsertRowWithKey(key); err != nil {
		return err
	}
	if err = t.PutValues(key, checked); err != nil {
		t.RemoveRow(key)
		return err
	}
	return nil
}

func (s *Store) Destroy(_ context.Context, table string, key int64) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	t.RemoveRow(key)
	return nil
}

func (s *Store) Count(ctx context.Context, table string, cond query.Condition) (int64, error) {
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}
	return t.Count(cond, s.engine.Resolver())
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

func (s *Store) StreamAllWithData(_ context.Context, table string, columns []string, scope query.Scope, fn store.RowFunc) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	def := t.Def()
	if err = def.CheckColumns(columns); err != nil {
		return err
	}
	return t.Scan(scope, s.engine.Resolver(), func(_ int64, row value.Row) (bool, error) {
		return fn(project(row, columns))
	})
}

func project(row value.Row, columns []string) value.Row {
	if columns == nil {
		return row
	}
	out := make(value.Row, len(columns))
	for _, c := range columns {
		v, _ := row.Get(c)
		out.Set(c, v)
	}
	return out
}

func (s *Store) Aggregate(_ context.Context, table string, agg query.Aggregate, cond query.Condition) (value.Value, error) {
	t, err := s.table(table)
	if err != nil {
		return value.Value{}, err
	}
	return t.Aggregate(agg, cond, s.engine.Resolver())
}

func (s *Store) Save(context.Context, string, int64) (bool, error) {
	return false, nil
}

func (s *Store) SaveAll(context.Context, string) (bool, error) {
	return false, nil
}

func (s *Store) IsSynchronized(context.Context, string, int64) (bool, error) {
	return true, nil
}

func (s *Store) IsCached() bool {
	return false
}

func (s *Store) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	zerolog.Ctx(ctx).Debug().Str("store", s.ID).Msg("closed memory store")
	return nil
}
