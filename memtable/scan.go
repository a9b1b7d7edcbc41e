package memtable

import (
	"fmt"
	"sort"

	"github.com/danthegoodman1/recordstore/query"
	"github.com/danthegoodman1/recordstore/value"
)

// ScanFunc receives each matching row; returning false stops the scan.
type ScanFunc func(key int64, row value.Row) (bool, error)

// Scan walks a snapshot of the live keys taken when it starts, in ascending key
// order. Rows removed before they are visited are skipped; values of rows not yet
// visited are read when visited, not when the scan starts. With an order every match
// is collected and sorted (ties broken by key) before the limit applies. r may be nil
// when the condition has no association.
func (t *Table) Scan(scope query.Scope, r query.Resolver, fn ScanFunc) error {
	cond := scope.Condition()
	limit := scope.Limit()
	if limit == 0 {
		return nil
	}
	ordered := !scope.Order().IsEmpty()

	type match struct {
		key int64
		row value.Row
	}
	var matches []match
	emitted := 0

	for _, key := range t.Keys() {
		rw, ok := t.get(key)
		if !ok {
			continue
		}
		snapshot := rw.project(t.names)
		ok, err := query.Evaluate(cond, snapshot, r)
		if err != nil {
			return fmt.Errorf("error evaluating condition on %s/%d: %w", t.def.Name, key, err)
		}
		if !ok {
			continue
		}
		if ordered {
			matches = append(matches, match{key: key, row: snapshot})
			continue
		}
		more, err := fn(key, snapshot)
		if err != nil {
			return err
		}
		emitted++
		if !more || (limit != query.NoLimit && emitted >= limit) {
			return nil
		}
	}

	if !ordered {
		return nil
	}

	var sortErr error
	order := scope.Order()
	sort.SliceStable(matches, func(i, j int) bool {
		c, err := order.Compare(matches[i].row, matches[j].row)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return c < 0
	})
	if sortErr != nil {
		return fmt.Errorf("error ordering %s: %w", t.def.Name, sortErr)
	}
	if limit != query.NoLimit && len(matches) > limit {
		matches = matches[:limit]
	}
	for _, m := range matches {
		more, err := fn(m.key, m.row)
		if err != nil || !more {
			return err
		}
	}
	return nil
}

// FindFirst returns the first row of the scope, stopping the scan there.
func (t *Table) FindFirst(scope query.Scope, r query.Resolver) (value.Row, bool, error) {
	var found value.Row
	err := t.Scan(scope.WithLimit(1), r, func(_ int64, row value.Row) (bool, error) {
		found = row
		return false, nil
	})
	if err != nil {
		return nil, false, err
	}
	return found, found != nil, nil
}

func (t *Table) FindAll(scope query.Scope, r query.Resolver) ([]value.Row, error) {
	var rows []value.Row
	err := t.Scan(scope, r, func(_ int64, row value.Row) (bool, error) {
		rows = append(rows, row)
		return true, nil
	})
	return rows, err
}

func (t *Table) Count(cond query.Condition, r query.Resolver) (int64, error) {
	var n int64
	err := t.Scan(query.NewScope(cond), r, func(int64, value.Row) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

// Aggregate streams matching rows through a reducer without collecting them.
func (t *Table) Aggregate(agg query.Aggregate, cond query.Condition, r query.Resolver) (value.Value, error) {
	col, err := t.column(agg.Source.Column)
	if err != nil {
		return value.Value{}, err
	}
	kind := col.Kind
	if agg.Source.Func != "" {
		f, ok := query.Functions[agg.Source.Func]
		if !ok {
			return value.Value{}, fmt.Errorf("derived function %q: %w", agg.Source.Func, query.ErrFuncNotFound)
		}
		kind = f.Kind
	}
	red := query.NewReducer(agg).ForKind(kind)
	err = t.Scan(query.NewScope(cond), r, func(_ int64, row value.Row) (bool, error) {
		return true, red.Add(row)
	})
	if err != nil {
		return value.Value{}, err
	}
	return red.Result(), nil
}

// ValuesByForeignKey projects column from every row whose condColumn equals
// condValue, without materializing whole rows. It is how join tables are resolved.
func (t *Table) ValuesByForeignKey(column, condColumn string, condValue value.Value) ([]value.Value, error) {
	col, err := t.column(column)
	if err != nil {
		return nil, err
	}
	condCol, err := t.column(condColumn)
	if err != nil {
		return nil, err
	}
	var out []value.Value
	for _, key := range t.Keys() {
		rw, ok := t.get(key)
		if !ok {
			continue
		}
		rw.mu.RLock()
		match := value.Equal(rw.vals[condCol.Name], condValue)
		v := rw.vals[col.Name]
		rw.mu.RUnlock()
		if match {
			out = append(out, v)
		}
	}
	return out, nil
}
