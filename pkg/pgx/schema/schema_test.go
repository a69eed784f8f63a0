package schema

import (
	"context"
	"testing"

	"github.com/edgeflare/pgcrud/internal/testutil/pgtest"
	"github.com/edgeflare/pgcrud/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalog() map[string]Table {
	return map[string]Table{
		"public.users": {
			Schema: "public", Name: "users", Type: TypeTable,
			Columns: []Column{
				{Name: "id", IsPrimaryKey: true}, {Name: "name"}, {Name: "role_id"},
				{Name: "manager"}, {Name: "deleted_at", IsNullable: true},
			},
			PrimaryKeys: []string{"id"},
			ForeignKeys: []ForeignKey{
				{Column: "role_id", ReferencedSchema: "auth", ReferencedTable: "roles", ReferencedColumn: "id"},
				{Column: "manager", ReferencedSchema: "public", ReferencedTable: "users", ReferencedColumn: "id"},
			},
		},
		"auth.roles": {
			Schema: "auth", Name: "roles", Type: TypeTable,
			Columns:     []Column{{Name: "id", IsPrimaryKey: true}, {Name: "title"}},
			PrimaryKeys: []string{"id"},
		},
		"reports.users": {
			Schema: "reports", Name: "users", Type: TypeView,
			Columns: []Column{{Name: "id"}, {Name: "total"}},
		},
	}
}

func TestEntity(t *testing.T) {
	s, err := Entity(catalog(), "users", EntityOptions{})
	require.NoError(t, err)

	assert.Equal(t, "users", s.Table())
	assert.Equal(t, []string{"id", "name", "role_id", "manager", "deleted_at"}, s.Columns())
	assert.Equal(t, []string{"id"}, s.PrimaryColumns())
	assert.Equal(t, "deleted_at", s.SoftDeleteColumn())
	assert.Equal(t, []string{"role", "users"}, s.RelationNames())

	role, ok := s.Relation("role")
	require.True(t, ok)
	assert.Equal(t, query.Relation{Table: "auth.roles", LocalColumn: "role_id", ForeignColumn: "id", Columns: []string{"id", "title"}}, role)
}

func TestEntitySkipsRelationsShadowingColumns(t *testing.T) {
	tables := catalog()
	users := tables["public.users"]
	users.ForeignKeys = []ForeignKey{{Column: "name", ReferencedTable: "name", ReferencedColumn: "id"}}
	tables["public.users"] = users

	s, err := Entity(tables, "public.users", EntityOptions{SoftDeleteColumn: "-"})
	require.NoError(t, err)
	assert.Empty(t, s.RelationNames())
	assert.False(t, s.HasSoftDeleteColumn())
}

func TestEntityView(t *testing.T) {
	_, err := Entity(catalog(), "reports.users", EntityOptions{})
	require.ErrorIs(t, err, query.ErrNoPrimaryKey)

	s, err := Entity(catalog(), "reports.users", EntityOptions{PrimaryColumns: []string{"id"}, Dialect: query.DialectOther})
	require.NoError(t, err)
	assert.Equal(t, "reports.users", s.Table())
	assert.Equal(t, query.DialectOther, s.Dialect())
}

func TestLookup(t *testing.T) {
	tables := catalog()

	got, err := Lookup(tables, "users")
	require.NoError(t, err)
	assert.Equal(t, "public", got.Schema)

	got, err = Lookup(tables, "roles")
	require.NoError(t, err)
	assert.Equal(t, "auth", got.Schema)

	_, err = Lookup(tables, "auth.users")
	assert.Error(t, err)

	delete(tables, "public.users")
	tables["billing.users"] = Table{Schema: "billing", Name: "users"}
	_, err = Lookup(tables, "users")
	assert.ErrorContains(t, err, "ambiguous")
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	conn := pgtest.Connect(ctx, t)
	pgtest.Exec(ctx, t, conn,
		`DROP SCHEMA IF EXISTS pgcrud_load CASCADE`,
		`CREATE SCHEMA pgcrud_load`,
		`CREATE TABLE pgcrud_load.roles (id SERIAL PRIMARY KEY, title TEXT)`,
		`CREATE TABLE pgcrud_load.users (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			role_id INT REFERENCES pgcrud_load.roles(id),
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE VIEW pgcrud_load.active_users AS SELECT id, name FROM pgcrud_load.users WHERE deleted_at IS NULL`,
	)
	t.Cleanup(func() { _, _ = conn.Exec(context.Background(), `DROP SCHEMA IF EXISTS pgcrud_load CASCADE`) })

	tables, err := Load(ctx, conn, "pgcrud_load")
	require.NoError(t, err)
	require.Contains(t, tables, "pgcrud_load.users")
	assert.Equal(t, TypeView, tables["pgcrud_load.active_users"].Type)

	users := tables["pgcrud_load.users"]
	assert.Equal(t, []string{"id", "name", "role_id", "deleted_at"}, users.ColumnNames())
	assert.Equal(t, []string{"id"}, users.PrimaryKeys)
	require.Len(t, users.ForeignKeys, 1)
	assert.Equal(t, ForeignKey{Column: "role_id", ReferencedSchema: "pgcrud_load", ReferencedTable: "roles", ReferencedColumn: "id"}, users.ForeignKeys[0])

	s, err := Entity(tables, "pgcrud_load.users", EntityOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"role"}, s.RelationNames())
	assert.True(t, s.HasSoftDeleteColumn())
}
