package sqlstore

import (
	"context"
	"fmt"

	"github.com/danthegoodman1/recordstore/query"
	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/store"
	"github.com/danthegoodman1/recordstore/value"
	"github.com/jackc/pgtype"
)

func (s *Store) Count(ctx context.Context, table string, cond query.Condition) (int64, error) {
	def, err := s.def(ctx, table)
	if err != nil {
		return 0, err
	}
	sql, args, err := countSQL(s.dialect, def, s.pushable(ctx, def.Name, cond))
	if err != nil {
		return 0, err
	}
	var n int64
	if err = s.pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting %s: %w", def.Name, translateErr(err))
	}
	return n, nil
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

func (s *Store) StreamAllWithData(ctx context.Context, table string, columns []string, scope query.Scope, fn store.RowFunc) error {
	def, err := s.def(ctx, table)
	if err != nil {
		return err
	}
	if columns == nil {
		columns = def.ColumnNames()
	}
	if err = def.CheckColumns(columns); err != nil {
		return err
	}
	canonical := make([]string, len(columns))
	for i, c := range columns {
		canonical[i] = value.CanonicalName(c)
	}

	scope = scope.WithCondition(s.pushable(ctx, def.Name, scope.Condition()))
	sql, args, err := selectSQL(s.dialect, def, canonical, scope)
	if err != nil {
		return err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("error scanning %s: %w", def.Name, translateErr(err))
	}
	defer rows.Close()
	for rows.Next() {
		raw, err := rows.Values()
		if err != nil {
			return err
		}
		row, err := decodeRow(def, canonical, raw)
		if err != nil {
			return err
		}
		more, err := fn(row)
		if err != nil || !more {
			return err
		}
	}
	if err = rows.Err(); err != nil {
		return translateErr(err)
	}
	return nil
}

// Aggregate pushes agg down to the backend. Sums decode as Int when the source is
// integral and as Float otherwise.
func (s *Store) Aggregate(ctx context.Context, table string, agg query.Aggregate, cond query.Condition) (value.Value, error) {
	def, err := s.def(ctx, table)
	if err != nil {
		return value.Value{}, err
	}
	kind, err := sourceKind(def, agg.Source)
	if err != nil {
		return value.Value{}, err
	}
	sql, args, err := aggregateSQL(s.dialect, def, agg, s.pushable(ctx, def.Name, cond))
	if err != nil {
		return value.Value{}, err
	}
	if agg.Func == query.Sum {
		var num pgtype.Numeric
		if err = s.pool.QueryRow(ctx, sql, args...).Scan(&num); err != nil {
			return value.Value{}, fmt.Errorf("error aggregating %s: %w", def.Name, translateErr(err))
		}
		return decodeSum(num, kind)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return value.Value{}, fmt.Errorf("error aggregating %s: %w", def.Name, translateErr(err))
	}
	defer rows.Close()
	var raw any
	if rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return value.Value{}, err
		}
		raw = vals[0]
	}
	if err = rows.Err(); err != nil {
		return value.Value{}, translateErr(err)
	}
	v, err := value.FromAny(raw)
	if err != nil {
		return value.Value{}, err
	}
	switch agg.Func {
	case query.Minimum, query.Maximum:
		return value.Convert(v, kind)
	}
	return v, nil
}

// pushable rewrites LIKE comparisons the backend would reject into ones that match
// nothing, as they do in process.
func (s *Store) pushable(ctx context.Context, table string, cond query.Condition) query.Condition {
	if cond == nil {
		return nil
	}
	return query.StringOnlyLike(cond, table, func(t, column string) (value.Kind, bool) {
		def, err := s.def(ctx, t)
		if err != nil {
			return value.KindNull, false
		}
		col, err := def.Column(column)
		if err != nil {
			return value.KindNull, false
		}
		return col.Kind, true
	})
}

// sourceKind is the kind of the values src reads from def.
func sourceKind(def schema.TableDef, src query.Source) (value.Kind, error) {
	col, err := def.Column(src.Column)
	if err != nil {
		return value.KindNull, err
	}
	if src.Func == "" {
		return col.Kind, nil
	}
	f, ok := query.Functions[src.Func]
	if !ok {
		return value.KindNull, fmt.Errorf("derived function %q: %w", src.Func, query.ErrFuncNotFound)
	}
	return f.Kind, nil
}

func decodeSum(num pgtype.Numeric, kind value.Kind) (value.Value, error) {
	if num.Status != pgtype.Present {
		if kind == value.KindInt {
			return value.Int(0), nil
		}
		return value.Float(0), nil
	}
	if kind == value.KindInt {
		var i int64
		if err := num.AssignTo(&i); err != nil {
			return value.Value{}, fmt.Errorf("error in Numeric.AssignTo: %w", err)
		}
		return value.Int(i), nil
	}
	var f float64
	if err := num.AssignTo(&f); err != nil {
		return value.Value{}, fmt.Errorf("error in Numeric.AssignTo: %w", err)
	}
	return value.Float(f), nil
}
