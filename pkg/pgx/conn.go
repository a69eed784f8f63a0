package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is satisfied by *pgx.Conn, *pgxpool.Pool and pgx.Tx, so the helpers in
// this package run the same inside and outside a transaction.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// Begin starts a transaction, or a savepoint when called on a pgx.Tx.
	Begin(ctx context.Context) (pgx.Tx, error)
}
