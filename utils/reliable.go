package utils

import (
	"context"
	"fmt"

	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ReliableExec runs f on a connection acquired from pool and releases it afterwards.
func ReliableExec(ctx context.Context, pool *pgxpool.Pool, f func(ctx context.Context, conn *pgxpool.Conn) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("error in pool.Acquire: %w", err)
	}
	defer conn.Release()
	return f(ctx, conn)
}

// ReliableExecInTx runs f inside a transaction. crdbpgx restarts the transaction on
// CockroachDB serialization failures, so f must be safe to run more than once.
func ReliableExecInTx(ctx context.Context, pool *pgxpool.Pool, f func(ctx context.Context, tx pgx.Tx) error) error {
	return ReliableExec(ctx, pool, func(ctx context.Context, conn *pgxpool.Conn) error {
		return crdbpgx.ExecuteTx(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
			return f(ctx, tx)
		})
	})
}
