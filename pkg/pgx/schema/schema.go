// Package schema reads table metadata from the PostgreSQL catalogs and turns
// it into query.EntitySchema values.
//
// Foreign keys become joinable relations named after the referencing column
// without its "_id" suffix (author_id -> author), or after the referenced
// table when the column has no such suffix.
package schema

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	pg "github.com/edgeflare/pgcrud/pkg/pgx"
	"github.com/edgeflare/pgcrud/pkg/query"
)

type TableType string

const (
	TypeTable            TableType = "TABLE"
	TypeView             TableType = "VIEW"
	TypeMaterializedView TableType = "MATERIALIZED VIEW"
)

// DefaultSoftDeleteColumn marks soft-deletable tables unless overridden.
const DefaultSoftDeleteColumn = "deleted_at"

type Table struct {
	Schema      string       `json:"schema"`
	Name        string       `json:"name"`
	Type        TableType    `json:"type"`
	Columns     []Column     `json:"columns"`
	PrimaryKeys []string     `json:"primary_keys"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

type Column struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	IsNullable   bool   `json:"is_nullable"`
	IsPrimaryKey bool   `json:"is_primary_key"`
}

type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedSchema string `json:"referenced_schema"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// FullName is the schema-qualified name tables are keyed by.
func (t Table) FullName() string {
	return t.Schema + "." + t.Name
}

// ColumnNames returns the column names in ordinal order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Load reads tables, views and materialized views of the given schemas, or of
// every non-system schema when none are given. Keys are "schema.table".
func Load(ctx context.Context, conn pg.Conn, schemas ...string) (map[string]Table, error) {
	if len(schemas) == 0 {
		var err error
		if schemas, err = querySchemas(ctx, conn); err != nil {
			return nil, fmt.Errorf("query schemas: %w", err)
		}
	}

	tables := make(map[string]Table)
	for _, schema := range schemas {
		if isSystem(schema) {
			continue
		}
		if err := loadSchema(ctx, conn, schema, tables); err != nil {
			return nil, fmt.Errorf("load schema %s: %w", schema, err)
		}
	}
	return tables, nil
}

func loadSchema(ctx context.Context, conn pg.Conn, schema string, into map[string]Table) error {
	rows, err := conn.Query(ctx, `
		SELECT table_schema, table_name, 'TABLE'::text AS table_type
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		UNION ALL
		SELECT table_schema, table_name, 'VIEW'::text AS table_type
		FROM information_schema.views
		WHERE table_schema = $1
		UNION ALL
		SELECT schemaname, matviewname, 'MATERIALIZED VIEW'::text AS table_type
		FROM pg_matviews
		WHERE schemaname = $1
		ORDER BY table_schema, table_name`, schema)
	if err != nil {
		return err
	}

	var found []Table
	for rows.Next() {
		var t Table
		var tableType string
		if err := rows.Scan(&t.Schema, &t.Name, &tableType); err != nil {
			rows.Close()
			return err
		}
		t.Type = TableType(tableType)
		found = append(found, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, t := range found {
		if t.Columns, t.PrimaryKeys, err = queryColumns(ctx, conn, t.Schema, t.Name); err != nil {
			return fmt.Errorf("query columns %s: %w", t.FullName(), err)
		}
		if t.Type == TypeTable {
			if t.ForeignKeys, err = queryForeignKeys(ctx, conn, t.Schema, t.Name); err != nil {
				return fmt.Errorf("query foreign keys %s: %w", t.FullName(), err)
			}
		}
		into[t.FullName()] = t
	}
	return nil
}

func queryColumns(ctx context.Context, conn pg.Conn, schema, table string) ([]Column, []string, error) {
	rows, err := conn.Query(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES',
			EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name
					AND tc.table_schema = kcu.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = $1
					AND tc.table_name = $2
					AND kcu.column_name = c.column_name
			) AS is_primary_key
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`, schema, table)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var cols []Column
	var pkeys []string
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.DataType, &col.IsNullable, &col.IsPrimaryKey); err != nil {
			return nil, nil, err
		}
		cols = append(cols, col)
		if col.IsPrimaryKey {
			pkeys = append(pkeys, col.Name)
		}
	}
	return cols, pkeys, rows.Err()
}

func queryForeignKeys(ctx context.Context, conn pg.Conn, schema, table string) ([]ForeignKey, error) {
	rows, err := conn.Query(ctx, `
		SELECT
			kcu.column_name,
			ccu.table_schema,
			ccu.table_name,
			ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.constraint_schema = tc.constraint_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1
			AND tc.table_name = $2
		ORDER BY kcu.ordinal_position`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fkeys []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Column, &fk.ReferencedSchema, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, err
		}
		fkeys = append(fkeys, fk)
	}
	return fkeys, rows.Err()
}

func querySchemas(ctx context.Context, conn pg.Conn) ([]string, error) {
	rows, err := conn.Query(ctx, `SELECT schema_name FROM information_schema.schemata ORDER BY schema_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var schema string
		if err := rows.Scan(&schema); err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}
	return schemas, rows.Err()
}

func isSystem(schema string) bool {
	switch schema {
	case "information_schema", "pg_catalog", "pg_toast":
		return true
	}
	return strings.HasPrefix(schema, "pg_temp_") || strings.HasPrefix(schema, "pg_toast_temp_")
}

// EntityOptions tune how a Table becomes an entity.
type EntityOptions struct {
	// SoftDeleteColumn defaults to DefaultSoftDeleteColumn; "-" disables soft delete.
	SoftDeleteColumn string
	// PrimaryColumns overrides the catalog primary key, e.g. for views.
	PrimaryColumns []string
	Dialect        query.Dialect
}

// Lookup finds a table by "schema.table" or by bare name. A bare name prefers
// the public schema and must otherwise be unique.
func Lookup(tables map[string]Table, name string) (Table, error) {
	if t, ok := tables[name]; ok {
		return t, nil
	}
	if strings.Contains(name, ".") {
		return Table{}, fmt.Errorf("schema: table %q not found", name)
	}
	if t, ok := tables["public."+name]; ok {
		return t, nil
	}

	var matches []Table
	for _, t := range tables {
		if t.Name == name {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return Table{}, fmt.Errorf("schema: table %q not found", name)
	case 1:
		return matches[0], nil
	}
	return Table{}, fmt.Errorf("schema: table name %q is ambiguous, qualify it with a schema", name)
}

// Entity builds the EntitySchema of the named table. Referenced tables found
// in tables restrict the columns their relation can select.
func Entity(tables map[string]Table, name string, opts EntityOptions) (*query.EntitySchema, error) {
	t, err := Lookup(tables, name)
	if err != nil {
		return nil, err
	}

	columns := t.ColumnNames()
	schemaOpts := []query.SchemaOption{query.WithDialect(cmp.Or(opts.Dialect, query.DialectPostgres))}

	softDelete := cmp.Or(opts.SoftDeleteColumn, DefaultSoftDeleteColumn)
	if softDelete != "-" && slices.Contains(columns, softDelete) {
		schemaOpts = append(schemaOpts, query.WithSoftDelete(softDelete))
	}

	taken := make(map[string]bool, len(columns))
	for _, c := range columns {
		taken[c] = true
	}
	for _, fk := range t.ForeignKeys {
		rel := relationName(fk)
		if taken[rel] {
			continue
		}
		taken[rel] = true

		refSchema := cmp.Or(fk.ReferencedSchema, t.Schema)
		relation := query.Relation{
			Table:         qualified(refSchema, fk.ReferencedTable),
			LocalColumn:   fk.Column,
			ForeignColumn: fk.ReferencedColumn,
		}
		if ref, ok := tables[refSchema+"."+fk.ReferencedTable]; ok {
			relation.Columns = ref.ColumnNames()
		}
		schemaOpts = append(schemaOpts, query.WithRelation(rel, relation))
	}

	primary := t.PrimaryKeys
	if len(opts.PrimaryColumns) > 0 {
		primary = opts.PrimaryColumns
	}
	return query.NewEntitySchema(qualified(t.Schema, t.Name), columns, primary, schemaOpts...)
}

func relationName(fk ForeignKey) string {
	if name, ok := strings.CutSuffix(fk.Column, "_id"); ok && name != "" {
		return name
	}
	return fk.ReferencedTable
}

func qualified(schema, table string) string {
	if schema == "" || schema == "public" {
		return table
	}
	return schema + "." + table
}
