// Package pgtest wires tests to a live PostgreSQL named by TEST_DATABASE.
// Tests using it are skipped when the variable is unset.
package pgtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// ConnString returns TEST_DATABASE or skips the test.
func ConnString(t testing.TB) string {
	t.Helper()
	connString := os.Getenv("TEST_DATABASE")
	if connString == "" {
		t.Skip("TEST_DATABASE not set")
	}
	return connString
}

// ParseConfig returns a connection config that forwards server notices to the test log.
func ParseConfig(t testing.TB) *pgx.ConnConfig {
	config, err := pgx.ParseConfig(ConnString(t))
	require.NoError(t, err)

	config.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		t.Logf("PostgreSQL %s: %s", n.Severity, n.Message)
	}
	return config
}

// Connect opens a single connection closed at test cleanup.
func Connect(ctx context.Context, t testing.TB) *pgx.Conn {
	conn, err := pgx.ConnectConfig(ctx, ParseConfig(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, conn.Close(ctx))
	})
	return conn
}

// Pool opens a pool closed at test cleanup.
func Pool(ctx context.Context, t testing.TB) *pgxpool.Pool {
	pool, err := pgxpool.New(ctx, ConnString(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// Exec runs setup statements, failing the test on the first error.
func Exec(ctx context.Context, t testing.TB, conn interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		_, err := conn.Exec(ctx, stmt)
		require.NoError(t, err, stmt)
	}
}
