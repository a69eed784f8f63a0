package query

import (
	"fmt"
	"slices"
	"strings"
)

// Dialect is the SQL flavour the plan is rendered for.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectOther    Dialect = "other"
)

// ParseDialect maps driver names onto a Dialect. Anything that is not
// PostgreSQL is DialectOther.
func ParseDialect(name string) Dialect {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pgx", "pg", "":
		return DialectPostgres
	}
	return DialectOther
}

// Relation describes a joinable relation of an entity: the referenced table
// and the key pair of the join condition. Columns, when known, restrict the
// columns a join may select.
type Relation struct {
	Table         string   `mapstructure:"table" json:"table"`
	LocalColumn   string   `mapstructure:"localColumn" json:"localColumn"`
	ForeignColumn string   `mapstructure:"foreignColumn" json:"foreignColumn"`
	Columns       []string `mapstructure:"columns" json:"columns,omitempty"`
}

// EntitySchema is a read-only snapshot of one entity's table. It is built
// once when a service is wired and shared by every request.
type EntitySchema struct {
	table      string
	columns    []string
	columnSet  map[string]struct{}
	primary    []string
	relations  map[string]Relation
	relOrder   []string
	softDelete string
	dialect    Dialect
}

// SchemaOption configures optional parts of an EntitySchema.
type SchemaOption func(*EntitySchema)

// WithRelation declares a joinable relation. Relations keep declaration order.
func WithRelation(name string, rel Relation) SchemaOption {
	return func(s *EntitySchema) {
		if _, ok := s.relations[name]; !ok {
			s.relOrder = append(s.relOrder, name)
		}
		rel.Columns = slices.Clone(rel.Columns)
		s.relations[name] = rel
	}
}

// WithSoftDelete names the delete-timestamp column.
func WithSoftDelete(column string) SchemaOption {
	return func(s *EntitySchema) { s.softDelete = column }
}

func WithDialect(d Dialect) SchemaOption {
	return func(s *EntitySchema) { s.dialect = d }
}

// NewEntitySchema builds a schema for table. Every primary column must be one
// of columns; an empty primary key is a configuration error.
func NewEntitySchema(table string, columns, primary []string, opts ...SchemaOption) (*EntitySchema, error) {
	if table == "" {
		return nil, fmt.Errorf("query: entity table name is empty")
	}
	if len(primary) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPrimaryKey, table)
	}

	s := &EntitySchema{
		table:     table,
		columnSet: make(map[string]struct{}, len(columns)),
		relations: make(map[string]Relation),
		dialect:   DialectPostgres,
	}
	for _, c := range columns {
		if _, dup := s.columnSet[c]; dup {
			continue
		}
		if err := CheckField(c); err != nil {
			return nil, fmt.Errorf("query: entity %s: %w", table, err)
		}
		s.columnSet[c] = struct{}{}
		s.columns = append(s.columns, c)
	}
	for _, pk := range primary {
		if !s.HasColumn(pk) {
			return nil, fmt.Errorf("query: entity %s: primary column %q is not a column", table, pk)
		}
		if !slices.Contains(s.primary, pk) {
			s.primary = append(s.primary, pk)
		}
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.softDelete != "" && !s.HasColumn(s.softDelete) {
		return nil, fmt.Errorf("query: entity %s: soft-delete column %q is not a column", table, s.softDelete)
	}
	for _, name := range s.relOrder {
		if err := CheckField(name); err != nil {
			return nil, fmt.Errorf("query: entity %s: relation: %w", table, err)
		}
		rel := s.relations[name]
		if rel.Table == "" || rel.LocalColumn == "" || rel.ForeignColumn == "" {
			return nil, fmt.Errorf("query: entity %s: relation %q needs table, localColumn and foreignColumn", table, name)
		}
	}
	return s, nil
}

func (s *EntitySchema) Table() string { return s.table }

// Columns returns the declared columns in declaration order.
func (s *EntitySchema) Columns() []string { return slices.Clone(s.columns) }

func (s *EntitySchema) HasColumn(name string) bool {
	_, ok := s.columnSet[name]
	return ok
}

func (s *EntitySchema) PrimaryColumns() []string { return slices.Clone(s.primary) }

// RelationNames returns the joinable relation names in declaration order.
func (s *EntitySchema) RelationNames() []string { return slices.Clone(s.relOrder) }

func (s *EntitySchema) Relation(name string) (Relation, bool) {
	rel, ok := s.relations[name]
	if ok {
		rel.Columns = slices.Clone(rel.Columns)
	}
	return rel, ok
}

func (s *EntitySchema) SoftDeleteColumn() string { return s.softDelete }

func (s *EntitySchema) HasSoftDeleteColumn() bool { return s.softDelete != "" }

func (s *EntitySchema) Dialect() Dialect { return s.dialect }

// LikeOperator is the case-insensitive pattern keyword for the dialect.
func (s *EntitySchema) LikeOperator() string {
	return likeOperator(s.dialect)
}

func likeOperator(d Dialect) string {
	if d == DialectPostgres {
		return "ILIKE"
	}
	return "LIKE"
}

// SchemaConfig is the declarative form of an EntitySchema, as read from
// configuration or a JSON file.
type SchemaConfig struct {
	Table            string              `mapstructure:"table" json:"table"`
	Columns          []string            `mapstructure:"columns" json:"columns"`
	PrimaryColumns   []string            `mapstructure:"primaryColumns" json:"primaryColumns"`
	Relations        map[string]Relation `mapstructure:"relations" json:"relations,omitempty"`
	SoftDeleteColumn string              `mapstructure:"softDeleteColumn" json:"softDeleteColumn,omitempty"`
	Dialect          string              `mapstructure:"dialect" json:"dialect,omitempty"`
}

// Build validates the config and returns the schema. Relations are declared
// in name order since maps carry none.
func (c SchemaConfig) Build() (*EntitySchema, error) {
	opts := []SchemaOption{WithDialect(ParseDialect(c.Dialect))}
	if c.SoftDeleteColumn != "" {
		opts = append(opts, WithSoftDelete(c.SoftDeleteColumn))
	}
	names := make([]string, 0, len(c.Relations))
	for name := range c.Relations {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		opts = append(opts, WithRelation(name, c.Relations[name]))
	}
	return NewEntitySchema(c.Table, c.Columns, c.PrimaryColumns, opts...)
}

// ColumnRef returns the quoted reference for field within a plan over this
// entity. "rel.col" addresses a column of a joined relation; anything else is
// a column of the entity's own table.
func (s *EntitySchema) ColumnRef(field string) string {
	if rel, col, ok := strings.Cut(field, "."); ok && !s.HasColumn(field) {
		if _, isRel := s.relations[rel]; isRel {
			return Column(rel, col)
		}
	}
	return Column(TableAlias, field)
}

// filterable reports whether field names a column of the entity or, as
// "rel.col", a column of one of its relations.
func (s *EntitySchema) filterable(field string) bool {
	if s.HasColumn(field) {
		return true
	}
	rel, col, ok := strings.Cut(field, ".")
	if !ok {
		return false
	}
	r, isRel := s.relations[rel]
	return isRel && (len(r.Columns) == 0 || slices.Contains(r.Columns, col))
}
