package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGXDB is an interface that pgxpool.Pool, pgx.Tx and Session implement.
// This allows callers to work with a connection pool, a raw transaction or
// a unit of work interchangeably.
type PGXDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner can start a database transaction. Implemented by pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// batchSender can send queued statements in one round trip.
type batchSender interface {
	PGXDB
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// sessionBackend is what a session needs from its engine.
type sessionBackend interface {
	batchSender
	TxBeginner
}

// Ensure types implement the interface at compile time.
var (
	_ PGXDB          = (*pgxpool.Pool)(nil)
	_ PGXDB          = (pgx.Tx)(nil)
	_ PGXDB          = (*Session)(nil)
	_ TxBeginner     = (*pgxpool.Pool)(nil)
	_ batchSender    = (pgx.Tx)(nil)
	_ sessionBackend = (*pgxpool.Pool)(nil)
)
