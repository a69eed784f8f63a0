package pgx

import (
	"context"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/edgeflare/pgcrud/internal/testutil/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableIdentifier(t *testing.T) {
	assert.Equal(t, `"users"`, TableIdentifier("users"))
	assert.Equal(t, `"auth"."users"`, TableIdentifier("auth.users"))
	assert.Equal(t, `"odd""name"`, TableIdentifier(`odd"name`))
}

func TestReturningClause(t *testing.T) {
	assert.Equal(t, "RETURNING *", returningClause(nil))
	assert.Equal(t, `RETURNING "id", "name"`, returningClause([]string{"id", "name"}))
}

func TestRowHelpers(t *testing.T) {
	ctx := context.Background()
	conn := pgtest.Connect(ctx, t)
	pgtest.Exec(ctx, t, conn,
		`DROP TABLE IF EXISTS pgcrud_rows`,
		`CREATE TABLE pgcrud_rows (id SERIAL PRIMARY KEY, name TEXT NOT NULL, age INT)`,
	)
	t.Cleanup(func() { _, _ = conn.Exec(context.Background(), `DROP TABLE IF EXISTS pgcrud_rows`) })

	inserted, err := InsertRow(ctx, conn, "pgcrud_rows", map[string]any{"name": "ann", "age": 31}, "id")
	require.NoError(t, err)
	id := inserted["id"]
	require.NotNil(t, id)
	assert.Len(t, inserted, 1)

	_, err = InsertRow(ctx, conn, "pgcrud_rows", map[string]any{"name": "bob"})
	require.NoError(t, err)

	updated, err := UpdateRow(ctx, conn, "pgcrud_rows", map[string]any{"age": 32}, map[string]any{"id": id})
	require.NoError(t, err)
	assert.EqualValues(t, 32, updated["age"])
	assert.Equal(t, "ann", updated["name"])

	_, err = UpdateRow(ctx, conn, "pgcrud_rows", map[string]any{"age": 1}, map[string]any{"id": -1})
	assert.ErrorIs(t, err, ErrNoRows)

	_, err = UpdateRow(ctx, conn, "pgcrud_rows", map[string]any{"age": 1}, nil)
	assert.Error(t, err)

	rows, err := CollectRows(ctx, conn, psql.Select("name").From("pgcrud_rows").OrderBy("name"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ann", rows[0]["name"])

	empty, err := CollectRows(ctx, conn, psql.Select("name").From("pgcrud_rows").Where(sq.Eq{"name": "nobody"}))
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	n, err := Count(ctx, conn, psql.Select("COUNT(*)").From("pgcrud_rows"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
