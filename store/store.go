// Package store defines the record store contract shared by every backend: per-row
// get/set, record lifecycle, scans over a query.Scope, aggregation and flushing.
package store

import (
	"context"

	"github.com/danthegoodman1/recordstore/query"
	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/value"
)

type (
	// Store is implemented by the in-memory store, the SQL store and the write-back
	// cache fronting either of them. Keys are int64 primary keys. Undeclared tables and
	// columns fail with utils.ErrNotFound.
	Store interface {
		CreateTable(ctx context.Context, def schema.TableDef) error
		TableDef(ctx context.Context, table string) (schema.TableDef, error)
		Tables(ctx context.Context) ([]string, error)

		// GetValue fails with utils.ErrRecordNotFound when the record does not exist.
		GetValue(ctx context.Context, table string, key int64, column string) (value.Value, error)
		// GetValues returns every requested column; nil columns means all of them.
		GetValues(ctx context.Context, table string, key int64, columns []string) (value.Row, error)
		SetValue(ctx context.Context, table string, key int64, column string, v value.Value) error
		SetValues(ctx context.Context, table string, key int64, vals value.Row) error

		ContainsRecord(ctx context.Context, table string, key int64) (bool, error)
		// InsertNewRecord allocates a fresh key and stores initial, which may be nil.
		InsertNewRecord(ctx context.Context, table string, initial value.Row) (int64, error)
		// CreateRecord stores a record at an explicit key, failing with
		// utils.ErrDuplicateKey if it is taken.
		CreateRecord(ctx context.Context, table string, key int64, initial value.Row) error
		Destroy(ctx context.Context, table string, key int64) error

		Count(ctx context.Context, table string, cond query.Condition) (int64, error)
		// FindFirstWithData returns the first row of scope projected onto columns.
		FindFirstWithData(ctx context.Context, table string, columns []string, scope query.Scope) (value.Row, bool, error)
		// StreamAllWithData calls fn for every row of scope until fn returns false.
		StreamAllWithData(ctx context.Context, table string, columns []string, scope query.Scope, fn RowFunc) error
		Aggregate(ctx context.Context, table string, agg query.Aggregate, cond query.Condition) (value.Value, error)

		// Save flushes one cached record and reports whether anything was written.
		Save(ctx context.Context, table string, key int64) (bool, error)
		SaveAll(ctx context.Context, table string) (bool, error)
		IsSynchronized(ctx context.Context, table string, key int64) (bool, error)
		IsCached() bool

		Close(ctx context.Context) error
	}

	RowFunc func(row value.Row) (bool, error)

	// BatchWriter is implemented by backends that can apply many row updates of one
	// table atomically. The write-back cache uses it to flush in one round trip.
	BatchWriter interface {
		SetValuesBatch(ctx context.Context, table string, rows map[int64]value.Row) error
	}
)
