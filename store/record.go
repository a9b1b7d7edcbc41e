package store

import (
	"context"

	"github.com/danthegoodman1/recordstore/query"
	"github.com/danthegoodman1/recordstore/value"
)

// Record is a query.Getter over one stored record that fetches columns on demand.
type Record struct {
	ctx   context.Context
	s     Store
	table string
	key   int64
}

func NewRecord(ctx context.Context, s Store, table string, key int64) *Record {
	return &Record{ctx: ctx, s: s, table: table, key: key}
}

func (r *Record) Key() int64 {
	return r.key
}

func (r *Record) Get(column string) (value.Value, error) {
	return r.s.GetValue(r.ctx, r.table, r.key, column)
}

// Matches evaluates c against the record, resolving associations through its store.
func (r *Record) Matches(c query.Condition) (bool, error) {
	return query.Evaluate(c, r, Resolver(r.ctx, r.s))
}
