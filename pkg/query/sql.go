package query

import (
	"fmt"
	"regexp"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

var placeholderPattern = regexp.MustCompile(`:(\.\.\.)?([A-Za-z_][A-Za-z0-9_]*)`)

// ToSql implements squirrel.Sqlizer. Named placeholders become "?" in
// fragment order and list placeholders expand to one "?" per element.
func (p CompiledPredicate) ToSql() (string, []any, error) {
	var args []any
	var err error
	sql := placeholderPattern.ReplaceAllStringFunc(p.Fragment, func(m string) string {
		sub := placeholderPattern.FindStringSubmatch(m)
		v, ok := p.Bindings[sub[2]]
		if !ok {
			err = fmt.Errorf("query: no binding for :%s in %q", sub[2], p.Fragment)
			return m
		}
		if sub[1] == "" {
			args = append(args, v)
			return "?"
		}
		list, ok := v.([]any)
		if !ok || len(list) == 0 {
			err = fmt.Errorf("query: binding :%s is not a non-empty list", sub[2])
			return m
		}
		args = append(args, list...)
		return strings.TrimSuffix(strings.Repeat("?, ", len(list)), ", ")
	})
	if err != nil {
		return "", nil, err
	}
	return sql, args, nil
}

func placeholders(d Dialect) sq.PlaceholderFormat {
	if d == DialectPostgres {
		return sq.Dollar
	}
	return sq.Question
}

func tableIdent(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

func fromClause(schema *EntitySchema) string {
	return tableIdent(schema.table) + " AS " + Column("", TableAlias)
}

// ToSelect renders plan as a SELECT over schema's table. Selected columns
// keep their names; each joined relation becomes one JSON column named after
// the relation on PostgreSQL, or "relation.column" columns elsewhere.
func ToSelect(schema *EntitySchema, plan *QueryPlan) (sq.SelectBuilder, error) {
	sb := sq.StatementBuilder.PlaceholderFormat(placeholders(schema.dialect)).Select()
	for _, c := range plan.SelectedColumns {
		sb = sb.Column(Column(TableAlias, c) + " AS " + Column("", c))
	}
	for _, j := range plan.Joins {
		rel, ok := schema.relations[j.Field]
		if !ok {
			return sb, fmt.Errorf("query: unknown relation %q", j.Field)
		}
		for _, c := range joinProjection(schema.dialect, j, rel) {
			sb = sb.Column(c)
		}
	}

	sb = sb.From(fromClause(schema))
	sb = leftJoins(sb, schema, plan)
	if where := whereClause(schema, plan); where != nil {
		sb = sb.Where(where)
	}
	for _, o := range plan.OrderBy {
		sb = sb.OrderBy(schema.ColumnRef(o.Field) + " " + string(o.Order))
	}
	// limit=0 leaves the query unbounded
	if plan.Limit != nil && *plan.Limit > 0 {
		sb = sb.Limit(uint64(*plan.Limit))
	}
	if plan.Offset != nil {
		sb = sb.Offset(uint64(*plan.Offset))
	}
	return sb, nil
}

// ToCount renders the COUNT(*) of the rows plan matches, ignoring order and pagination.
func ToCount(schema *EntitySchema, plan *QueryPlan) (sq.SelectBuilder, error) {
	sb := sq.StatementBuilder.PlaceholderFormat(placeholders(schema.dialect)).
		Select("COUNT(*)").
		From(fromClause(schema))
	sb = leftJoins(sb, schema, plan)
	if where := whereClause(schema, plan); where != nil {
		sb = sb.Where(where)
	}
	return sb, nil
}

// ToDelete renders a DELETE of the rows plan's predicates match, returning
// the selected columns of each removed row.
func ToDelete(schema *EntitySchema, plan *QueryPlan) (sq.DeleteBuilder, error) {
	where := whereClause(schema, plan)
	if where == nil {
		return sq.DeleteBuilder{}, fmt.Errorf("query: refusing to delete from %s without a filter", schema.table)
	}
	cols := make([]string, len(plan.SelectedColumns))
	for i, c := range plan.SelectedColumns {
		cols[i] = Column(TableAlias, c) + " AS " + Column("", c)
	}
	db := sq.StatementBuilder.PlaceholderFormat(placeholders(schema.dialect)).
		Delete(fromClause(schema)).
		Where(where)
	if schema.dialect == DialectPostgres {
		db = db.Suffix("RETURNING " + strings.Join(cols, ", "))
	}
	return db, nil
}

func leftJoins(sb sq.SelectBuilder, schema *EntitySchema, plan *QueryPlan) sq.SelectBuilder {
	for _, j := range plan.Joins {
		rel, ok := schema.relations[j.Field]
		if !ok {
			continue
		}
		sb = sb.LeftJoin(fmt.Sprintf("%s AS %s ON %s = %s",
			tableIdent(rel.Table),
			Column("", j.Field),
			Column(j.Field, rel.ForeignColumn),
			Column(TableAlias, rel.LocalColumn)))
	}
	return sb
}

func joinProjection(d Dialect, j JoinSpec, rel Relation) []string {
	alias := Column("", j.Field)
	cols := j.Select
	if len(cols) == 0 {
		cols = rel.Columns
	}

	if d == DialectPostgres {
		obj := "to_jsonb(" + alias + ")"
		if len(cols) > 0 {
			pairs := make([]string, 0, len(cols))
			for _, c := range cols {
				pairs = append(pairs, fmt.Sprintf("'%s', %s", c, Column(j.Field, c)))
			}
			obj = "jsonb_build_object(" + strings.Join(pairs, ", ") + ")"
		}
		return []string{fmt.Sprintf("CASE WHEN %s IS NULL THEN NULL ELSE %s END AS %s",
			Column(j.Field, rel.ForeignColumn), obj, alias)}
	}

	if len(cols) == 0 {
		return []string{alias + ".*"}
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, Column(j.Field, c)+" AS "+Column("", j.Field+"."+c))
	}
	return out
}

// whereClause combines the AND group with the OR predicates and, unless the
// plan lifts it, the soft-delete filter: ((a AND b) OR c OR d) AND deleted IS NULL.
func whereClause(schema *EntitySchema, plan *QueryPlan) sq.Sqlizer {
	var user sq.Sqlizer
	and := sqlizers(plan.Predicates.And)
	or := sqlizers(plan.Predicates.Or)
	switch {
	case len(and) > 0 && len(or) > 0:
		user = sq.Or(append([]sq.Sqlizer{sq.And(and)}, or...))
	case len(and) > 0:
		user = sq.And(and)
	case len(or) > 0:
		user = sq.Or(or)
	}

	if !schema.HasSoftDeleteColumn() || plan.IncludeSoftDeleted {
		return user
	}
	live := sq.Expr(Column(TableAlias, schema.softDelete) + " IS NULL")
	if user == nil {
		return live
	}
	return sq.And{user, live}
}

func sqlizers(preds []CompiledPredicate) []sq.Sqlizer {
	out := make([]sq.Sqlizer, len(preds))
	for i, p := range preds {
		out[i] = p
	}
	return out
}
