package store

import (
	"context"
	"fmt"

	"github.com/danthegoodman1/recordstore/query"
	"github.com/danthegoodman1/recordstore/value"
)

// Resolver resolves association conditions through s.
func Resolver(ctx context.Context, s Store) query.Resolver {
	return &storeResolver{ctx: ctx, s: s}
}

type storeResolver struct {
	ctx context.Context
	s   Store
}

func (r *storeResolver) Exists(table string, c query.Condition) (bool, error) {
	_, ok, err := r.s.FindFirstWithData(r.ctx, table, nil, query.NewScope(c))
	return ok, err
}

func (r *storeResolver) ValuesByForeignKey(table, column, condColumn string, condValue value.Value) ([]value.Value, error) {
	var out []value.Value
	err := r.s.StreamAllWithData(r.ctx, table, []string{column}, query.NewScope(query.Is(condColumn, condValue)), func(row value.Row) (bool, error) {
		v, ok := row.Lookup(column)
		if !ok {
			return false, fmt.Errorf("column %s missing from projection of %s", column, table)
		}
		out = append(out, v)
		return true, nil
	})
	return out, err
}
