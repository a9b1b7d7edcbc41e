package sqlstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
	"github.com/jackc/pgx/v4"
)

func (s *Store) GetValue(ctx context.Context, table string, key int64, column string) (value.Value, error) {
	row, err := s.GetValues(ctx, table, key, []string{column})
	if err != nil {
		return value.Value{}, err
	}
	return row.Get(column)
}

func (s *Store) GetValues(ctx context.Context, table string, key int64, columns []string) (value.Row, error) {
	def, err := s.def(ctx, table)
	if err != nil {
		return nil, err
	}
	if columns == nil {
		columns = def.ColumnNames()
	}
	if err = def.CheckColumns(columns); err != nil {
		return nil, err
	}
	canonical := make([]string, len(columns))
	for i, c := range columns {
		canonical[i] = value.CanonicalName(c)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		quoteList(s.dialect, canonical), s.dialect.QuoteIdent(def.Name), s.dialect.QuoteIdent(def.PrimaryKey))
	rows, err := s.pool.Query(ctx, sql, key)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return nil, translateErr(err)
		}
		return nil, fmt.Errorf("%s/%d: %w", def.Name, key, utils.ErrRecordNotFound)
	}
	raw, err := rows.Values()
	if err != nil {
		return nil, err
	}
	return decodeRow(def, canonical, raw)
}

func (s *Store) SetValue(ctx context.Context, table string, key int64, column string, v value.Value) error {
	return s.SetValues(ctx, table, key, value.Row{column: v})
}

// checkUpdate coerces vals and rejects primary key changes.
func checkUpdate(def schema.TableDef, key int64, vals value.Row) (value.Row, error) {
	checked, err := def.CoerceRow(vals)
	if err != nil {
		return nil, err
	}
	if pk, ok := checked[def.PrimaryKey]; ok {
		if !value.Equal(pk, value.Int(key)) {
			return nil, fmt.Errorf("primary key %s of table %s is immutable: %w", def.PrimaryKey, def.Name, utils.ErrUnsupportedShape)
		}
		delete(checked, def.PrimaryKey)
	}
	return checked, nil
}

// stamp is the updated_at value for an update of vals, nil when none applies.
func (s *Store) stamp(def schema.TableDef, vals value.Row) *value.Value {
	if !def.Timestamped {
		return nil
	}
	if _, explicit := vals[schema.UpdatedAt]; explicit {
		return nil
	}
	now := value.Time(s.Now())
	return &now
}

func (s *Store) SetValues(ctx context.Context, table string, key int64, vals value.Row) error {
	def, err := s.def(ctx, table)
	if err != nil {
		return err
	}
	checked, err := checkUpdate(def, key, vals)
	if err != nil {
		return err
	}
	if len(checked) == 0 {
		ok, err := s.ContainsRecord(ctx, def.Name, key)
		if err == nil && !ok {
			err = fmt.Errorf("%s/%d: %w", def.Name, key, utils.ErrRecordNotFound)
		}
		return err
	}
	sql, args := updateSQL(s.dialect, def, key, checked, s.stamp(def, checked))
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("error updating %s/%d: %w", def.Name, key, translateErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%d: %w", def.Name, key, utils.ErrRecordNotFound)
	}
	return nil
}

// SetValuesBatch applies every update in one transaction; a missing record aborts all
// of them.
func (s *Store) SetValuesBatch(ctx context.Context, table string, rows map[int64]value.Row) error {
	def, err := s.def(ctx, table)
	if err != nil {
		return err
	}
	keys := make([]int64, 0, len(rows))
	checked := make(map[int64]value.Row, len(rows))
	for key, vals := range rows {
		c, err := checkUpdate(def, key, vals)
		if err != nil {
			return err
		}
		if len(c) == 0 {
			continue
		}
		keys = append(keys, key)
		checked[key] = c
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	return utils.ReliableExecInTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		for _, key := range keys {
			sql, args := updateSQL(s.dialect, def, key, checked[key], s.stamp(def, checked[key]))
			tag, err := tx.Exec(ctx, sql, args...)
			if err != nil {
				return fmt.Errorf("error updating %s/%d: %w", def.Name, key, translateErr(err))
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%s/%d: %w", def.Name, key, utils.ErrRecordNotFound)
			}
		}
		return nil
	})
}

func (s *Store) ContainsRecord(ctx context.Context, table string, key int64) (bool, error) {
	def, err := s.def(ctx, table)
	if err != nil {
		return false, err
	}
	var exists bool
	err = s.pool.QueryRow(ctx, fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)",
		s.dialect.QuoteIdent(def.Name), s.dialect.QuoteIdent(def.PrimaryKey)), key).Scan(&exists)
	if err != nil {
		return false, translateErr(err)
	}
	return exists, nil
}

// checkInsert stamps and coerces the initial values of a new record.
func (s *Store) checkInsert(def schema.TableDef, initial value.Row) (value.Row, error) {
	checked, err := def.CoerceRow(def.StampNew(initial, s.Now()))
	if err != nil {
		return nil, err
	}
	delete(checked, def.PrimaryKey)
	return checked, nil
}

func (s *Store) InsertNewRecord(ctx context.Context, table string, initial value.Row) (int64, error) {
	def, err := s.def(ctx, table)
	if err != nil {
		return 0, err
	}
	checked, err := s.checkInsert(def, initial)
	if err != nil {
		return 0, err
	}
	sql, args := insertSQL(s.dialect, def, checked)
	var key int64
	if err = s.pool.QueryRow(ctx, sql, args...).Scan(&key); err != nil {
		return 0, fmt.Errorf("error inserting into %s: %w", def.Name, translateErr(err))
	}
	return key, nil
}

// CreateRecord inserts at an explicit key. On Postgres the key sequence is not moved,
// so mixing explicit keys with allocated ones can collide and fail with ErrDuplicateKey.
func (s *Store) CreateRecord(ctx context.Context, table string, key int64, initial value.Row) error {
	def, err := s.def(ctx, table)
	if err != nil {
		return err
	}
	checked, err := s.checkInsert(def, initial)
	if err != nil {
		return err
	}
	checked[def.PrimaryKey] = value.Int(key)
	sql, args := insertSQL(s.dialect, def, checked)
	var got int64
	err = s.pool.QueryRow(ctx, sql, args...).Scan(&got)
	if err != nil {
		return fmt.Errorf("error inserting %s/%d: %w", def.Name, key, translateErr(err))
	}
	return nil
}

func (s *Store) Destroy(ctx context.Context, table string, key int64) error {
	def, err := s.def(ctx, table)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		s.dialect.QuoteIdent(def.Name), s.dialect.QuoteIdent(def.PrimaryKey)), key)
	if err != nil {
		return fmt.Errorf("error deleting %s/%d: %w", def.Name, key, translateErr(err))
	}
	return nil
}
