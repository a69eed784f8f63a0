package pgx

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// ErrNoRows is returned when a statement expected to touch one row touched none.
var ErrNoRows = pgx.ErrNoRows

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// TableIdentifier quotes a possibly schema-qualified table name.
func TableIdentifier(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func returningClause(cols []string) string {
	if len(cols) == 0 {
		return "RETURNING *"
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return "RETURNING " + strings.Join(quoted, ", ")
}

// InsertRow inserts data into table and returns the inserted row restricted
// to the returning columns, or the whole row when none are given.
// Column names are quoted, not validated; callers filter them first.
func InsertRow(ctx context.Context, conn Conn, table string, data map[string]any, returning ...string) (map[string]any, error) {
	if len(data) == 0 {
		return nil, errors.New("pgx: insert without values")
	}

	keys := sortedKeys(data)
	cols := make([]string, len(keys))
	vals := make([]any, len(keys))
	for i, k := range keys {
		cols[i] = pgx.Identifier{k}.Sanitize()
		vals[i] = data[k]
	}

	q := psql.Insert(TableIdentifier(table)).
		Columns(cols...).
		Values(vals...).
		Suffix(returningClause(returning))
	row, err := CollectOne(ctx, conn, q)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
	return row, nil
}

// UpdateRow sets data on the row matching every where column and returns the
// updated row. ErrNoRows is returned when nothing matched.
func UpdateRow(ctx context.Context, conn Conn, table string, data, where map[string]any, returning ...string) (map[string]any, error) {
	if len(where) == 0 {
		return nil, errors.New("pgx: update without WHERE conditions")
	}
	if len(data) == 0 {
		return nil, errors.New("pgx: update without values")
	}

	q := psql.Update(TableIdentifier(table))
	for _, k := range sortedKeys(data) {
		q = q.Set(pgx.Identifier{k}.Sanitize(), data[k])
	}
	eq := sq.Eq{}
	for k, v := range where {
		eq[pgx.Identifier{k}.Sanitize()] = v
	}
	q = q.Where(eq).Suffix(returningClause(returning))

	row, err := CollectOne(ctx, conn, q)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	return row, nil
}

// CollectRows runs q and returns every row as a column-name keyed map.
func CollectRows(ctx context.Context, conn Conn, q sq.Sqlizer) ([]map[string]any, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []map[string]any{}
	}
	return out, nil
}

// CollectOne runs q and returns its single row. ErrNoRows reports an empty result.
func CollectOne(ctx context.Context, conn Conn, q sq.Sqlizer) (map[string]any, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
}

// Count runs a single-column integer query such as SELECT COUNT(*).
func Count(ctx context.Context, conn Conn, q sq.Sqlizer) (int64, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	var n int64
	if err := conn.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
