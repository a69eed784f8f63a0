package crud

import (
	"context"
	"testing"
	"time"

	"github.com/edgeflare/pgcrud/internal/testutil/pgtest"
	"github.com/edgeflare/pgcrud/pkg/cache"
	"github.com/edgeflare/pgcrud/pkg/pgx/schema"
	"github.com/edgeflare/pgcrud/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceAgainstDatabase(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Pool(ctx, t)
	pgtest.Exec(ctx, t, pool,
		`DROP TABLE IF EXISTS crud_users`,
		`DROP TABLE IF EXISTS crud_roles`,
		`CREATE TABLE crud_roles (id SERIAL PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE crud_users (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			age INT,
			role_id INT REFERENCES crud_roles(id),
			deleted_at TIMESTAMPTZ
		)`,
		`INSERT INTO crud_roles (name) VALUES ('admin'), ('member')`,
		`INSERT INTO crud_users (name, age, role_id) VALUES
			('ann', 31, 1), ('bob', 25, 2), ('cid', 47, 2), ('dee', 19, NULL)`,
		`INSERT INTO crud_users (name, age, deleted_at) VALUES ('gone', 60, now())`,
	)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP TABLE IF EXISTS crud_users, crud_roles`)
	})

	tables, err := schema.Load(ctx, pool, "public")
	require.NoError(t, err)
	entity, err := schema.Entity(tables, "crud_users", schema.EntityOptions{})
	require.NoError(t, err)

	s, err := NewService(entity, pool, Options{Name: "users", Cache: cache.NewMemory(time.Minute)})
	require.NoError(t, err)

	defaults := query.DefaultQueryParams()

	t.Run("find paginates and hides deleted rows", func(t *testing.T) {
		page, err := s.Find(ctx, query.Merge(defaults, query.QueryParams{
			Limit: query.Int(3),
			Sort:  []query.SortSpec{{Field: "age", Order: query.SortDesc}},
		}))
		require.NoError(t, err)
		assert.EqualValues(t, 4, page.Total)
		assert.Equal(t, 2, page.PageCount)
		require.Len(t, page.Data, 3)
		assert.Equal(t, "cid", page.Data[0]["name"])
	})

	t.Run("include deleted", func(t *testing.T) {
		n, err := s.Count(ctx, query.Merge(defaults, query.QueryParams{IncludeDeleted: query.Bool(true)}))
		require.NoError(t, err)
		assert.EqualValues(t, 5, n)
	})

	t.Run("filters and joins", func(t *testing.T) {
		page, err := s.Find(ctx, query.Merge(defaults, query.QueryParams{
			Fields: []string{"name"},
			Filter: []query.FilterCondition{{Field: "age", Operator: query.OpBetween, Value: query.List(20, 40)}},
			Or:     []query.FilterCondition{{Field: "role_id", Operator: query.OpIsNull}},
			Join:   []query.JoinSpec{{Field: "role", Select: []string{"name"}}},
			Sort:   []query.SortSpec{{Field: "name"}},
		}))
		require.NoError(t, err)
		require.Len(t, page.Data, 3)
		assert.Equal(t, "ann", page.Data[0]["name"])
		assert.Equal(t, map[string]any{"name": "admin"}, page.Data[0]["role"])
		assert.Nil(t, page.Data[2]["role"])
		assert.Contains(t, page.Data[0], "id")
	})

	t.Run("find by id", func(t *testing.T) {
		row, err := s.FindByID(ctx, "2", query.QueryParams{})
		require.NoError(t, err)
		assert.Equal(t, "bob", row["name"])

		row, err = s.FindByID(ctx, "999", query.QueryParams{})
		require.NoError(t, err)
		assert.Nil(t, row)

		_, err = s.FindByIDOrFail(ctx, "999", query.QueryParams{})
		assert.True(t, query.IsNotFound(err))
	})

	t.Run("create update delete", func(t *testing.T) {
		created, err := s.Create(ctx, map[string]any{"name": "eve", "age": 22}, query.QueryParams{})
		require.NoError(t, err)
		require.NotNil(t, created["id"])
		assert.Equal(t, "eve", created["name"])

		updated, err := s.Update(ctx, created["id"], map[string]any{"age": 23}, query.QueryParams{})
		require.NoError(t, err)
		assert.EqualValues(t, 23, updated["age"])

		_, err = s.Update(ctx, "999", map[string]any{"age": 1}, query.QueryParams{})
		assert.True(t, query.IsNotFound(err))

		removed, err := s.Delete(ctx, SplitIDs("3||4"), query.QueryParams{})
		require.NoError(t, err)
		assert.Len(t, removed, 2)

		n, err := s.Count(ctx, defaults)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
	})
}
