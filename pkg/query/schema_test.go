package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usersSchema(t *testing.T, opts ...SchemaOption) *EntitySchema {
	t.Helper()
	base := []SchemaOption{
		WithRelation("role", Relation{Table: "roles", LocalColumn: "role_id", ForeignColumn: "id", Columns: []string{"id", "name"}}),
		WithRelation("avatar", Relation{Table: "public.avatars", LocalColumn: "avatar_id", ForeignColumn: "id"}),
	}
	s, err := NewEntitySchema("users",
		[]string{"id", "name", "email", "age", "role_id", "avatar_id", "profile.city", "deleted_at"},
		[]string{"id"},
		append(base, opts...)...)
	require.NoError(t, err)
	return s
}

func TestNewEntitySchema(t *testing.T) {
	s := usersSchema(t, WithSoftDelete("deleted_at"))

	assert.Equal(t, "users", s.Table())
	assert.Equal(t, []string{"id"}, s.PrimaryColumns())
	assert.Equal(t, []string{"role", "avatar"}, s.RelationNames())
	assert.True(t, s.HasColumn("profile.city"))
	assert.False(t, s.HasColumn("password"))
	assert.True(t, s.HasSoftDeleteColumn())
	assert.Equal(t, DialectPostgres, s.Dialect())
	assert.Equal(t, "ILIKE", s.LikeOperator())

	rel, ok := s.Relation("role")
	require.True(t, ok)
	rel.Columns[0] = "mutated"
	again, _ := s.Relation("role")
	assert.Equal(t, "id", again.Columns[0])
}

func TestNewEntitySchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		columns []string
		primary []string
		opts    []SchemaOption
	}{
		{"empty table", "", []string{"id"}, []string{"id"}, nil},
		{"primary not a column", "users", []string{"name"}, []string{"id"}, nil},
		{"bad column name", "users", []string{"id", "name;--"}, []string{"id"}, nil},
		{"soft delete not a column", "users", []string{"id"}, []string{"id"}, []SchemaOption{WithSoftDelete("deleted_at")}},
		{"incomplete relation", "users", []string{"id"}, []string{"id"}, []SchemaOption{WithRelation("role", Relation{Table: "roles"})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEntitySchema(tt.table, tt.columns, tt.primary, tt.opts...)
			assert.Error(t, err)
		})
	}
}

func TestNewEntitySchemaWithoutPrimaryKey(t *testing.T) {
	_, err := NewEntitySchema("audit_log", []string{"at", "message"}, nil)
	require.ErrorIs(t, err, ErrNoPrimaryKey)
}

func TestSchemaConfigBuild(t *testing.T) {
	cfg := SchemaConfig{
		Table:          "posts",
		Columns:        []string{"id", "title", "author_id", "editor_id"},
		PrimaryColumns: []string{"id"},
		Relations: map[string]Relation{
			"editor": {Table: "users", LocalColumn: "editor_id", ForeignColumn: "id"},
			"author": {Table: "users", LocalColumn: "author_id", ForeignColumn: "id"},
		},
		Dialect: "mysql",
	}
	s, err := cfg.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"author", "editor"}, s.RelationNames())
	assert.Equal(t, DialectOther, s.Dialect())
	assert.Equal(t, "LIKE", s.LikeOperator())
}

func TestColumnRef(t *testing.T) {
	s := usersSchema(t)
	assert.Equal(t, `"t"."name"`, s.ColumnRef("name"))
	assert.Equal(t, `"t"."profile.city"`, s.ColumnRef("profile.city"))
	assert.Equal(t, `"role"."name"`, s.ColumnRef("role.name"))
	assert.Equal(t, `"t"."unknown.name"`, s.ColumnRef("unknown.name"))
}

func TestParseDialect(t *testing.T) {
	assert.Equal(t, DialectPostgres, ParseDialect("PostgreSQL"))
	assert.Equal(t, DialectPostgres, ParseDialect(""))
	assert.Equal(t, DialectOther, ParseDialect("sqlite"))
}
