package query

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// TableAlias is the alias of the entity's table in every compiled query.
// Joined relations are aliased by their relation name.
const TableAlias = "t"

// Predicates holds the compiled filters. And predicates are combined with
// AND; the Or predicates are each OR-ed onto that group.
type Predicates struct {
	And []CompiledPredicate
	Or  []CompiledPredicate
}

// QueryPlan is the executable description of a list/find request.
type QueryPlan struct {
	// SelectedColumns always contains every primary column.
	SelectedColumns []string
	Joins           []JoinSpec
	Predicates      Predicates
	// OrderBy is ordered by first mention; a repeated field takes the last order.
	OrderBy []SortSpec
	// Limit and Offset are nil when unbounded.
	Limit              *int
	Offset             *int
	IncludeSoftDeleted bool
	CacheEnabled       bool
}

// Compile builds a QueryPlan for params against schema. It fails with a
// *ValidationError on the first malformed filter, sort or join entry and
// never touches a database.
func Compile(schema *EntitySchema, params QueryParams) (*QueryPlan, error) {
	if schema == nil {
		return nil, errors.New("query: nil entity schema")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	plan := &QueryPlan{
		SelectedColumns: selectColumns(schema, params.Fields),
	}

	joins, err := resolveJoins(schema, params.Join)
	if err != nil {
		return nil, err
	}
	plan.Joins = joins

	if plan.Predicates.And, err = compileFilters(schema, joins, "and", params.Filter); err != nil {
		return nil, err
	}
	if plan.Predicates.Or, err = compileFilters(schema, joins, "or", params.Or); err != nil {
		return nil, err
	}

	plan.IncludeSoftDeleted = schema.HasSoftDeleteColumn() && params.IncludeDeleted != nil && *params.IncludeDeleted

	if plan.OrderBy, err = compileSort(schema, joins, params.Sort); err != nil {
		return nil, err
	}

	if params.Paginated() {
		if params.Limit != nil {
			plan.Limit = Int(*params.Limit)
		}
		switch {
		case params.Page != nil:
			if params.Limit != nil {
				plan.Offset = Int((*params.Page - 1) * *params.Limit)
			}
		case params.Offset != nil:
			plan.Offset = Int(*params.Offset)
		}
	}

	plan.CacheEnabled = params.Cache != nil && *params.Cache
	return plan, nil
}

// selectColumns intersects fields with the declared columns, or takes every
// column when fields is empty, and appends any missing primary column.
// Unknown fields are dropped silently so newer clients keep working.
func selectColumns(schema *EntitySchema, fields []string) []string {
	var cols []string
	if len(fields) == 0 {
		cols = schema.Columns()
	} else {
		for _, f := range fields {
			if schema.HasColumn(f) && !slices.Contains(cols, f) {
				cols = append(cols, f)
			}
		}
	}
	for _, pk := range schema.primary {
		if !slices.Contains(cols, pk) {
			cols = append(cols, pk)
		}
	}
	return cols
}

// resolveJoins expands "*" in place, drops duplicate and unknown relations and
// restricts each join's select list to valid relation columns. An explicit
// entry for a relation also reached through "*" contributes its select list.
func resolveJoins(schema *EntitySchema, joins []JoinSpec) ([]JoinSpec, error) {
	type entry struct {
		spec     JoinSpec
		wildcard bool
	}
	var entries []entry
	index := make(map[string]int)
	add := func(j JoinSpec, wildcard bool) {
		if i, ok := index[j.Field]; ok {
			if entries[i].wildcard && !wildcard {
				entries[i] = entry{spec: j}
			}
			return
		}
		index[j.Field] = len(entries)
		entries = append(entries, entry{spec: j, wildcard: wildcard})
	}

	for _, j := range joins {
		if j.Field == JoinAll {
			for _, name := range schema.relOrder {
				add(JoinSpec{Field: name}, true)
			}
			continue
		}
		add(j, false)
	}

	var out []JoinSpec
	for _, e := range entries {
		rel, ok := schema.relations[e.spec.Field]
		if !ok {
			continue
		}
		var sel []string
		for _, c := range e.spec.Select {
			if err := CheckField(c); err != nil {
				return nil, err
			}
			if len(rel.Columns) > 0 && !slices.Contains(rel.Columns, c) {
				continue
			}
			if !slices.Contains(sel, c) {
				sel = append(sel, c)
			}
		}
		out = append(out, JoinSpec{Field: e.spec.Field, Select: sel})
	}
	return out, nil
}

// checkRef rejects a filter or sort field that the rendered query could not
// resolve: an unknown column, or a "rel.col" whose relation is not joined.
func checkRef(schema *EntitySchema, joins []JoinSpec, field string) error {
	if err := CheckField(field); err != nil {
		return err
	}
	if !schema.filterable(field) {
		return validationErrorf(field, "not a column of %s", schema.table)
	}
	if schema.HasColumn(field) {
		return nil
	}
	rel, _, _ := strings.Cut(field, ".")
	if !slices.ContainsFunc(joins, func(j JoinSpec) bool { return j.Field == rel }) {
		return validationErrorf(field, "relation %q is not joined", rel)
	}
	return nil
}

func compileFilters(schema *EntitySchema, joins []JoinSpec, prefix string, conds []FilterCondition) ([]CompiledPredicate, error) {
	var preds []CompiledPredicate
	for i, cond := range conds {
		if err := checkRef(schema, joins, cond.Field); err != nil {
			return nil, err
		}
		pred, err := CompilePredicate(cond, schema.ColumnRef(cond.Field), paramName(prefix, i, cond.Field), schema.dialect)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}
	return preds, nil
}

// paramName derives a placeholder name unique within a plan: the prefix and
// position come first, so two conditions can never produce the same name.
func paramName(prefix string, i int, field string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, field)
	return fmt.Sprintf("%s%d_%s", prefix, i, safe)
}

func compileSort(schema *EntitySchema, joins []JoinSpec, sorts []SortSpec) ([]SortSpec, error) {
	var out []SortSpec
	index := make(map[string]int)
	for _, s := range sorts {
		if err := checkRef(schema, joins, s.Field); err != nil {
			return nil, err
		}
		order, err := normalizeOrder(s.Field, s.Order)
		if err != nil {
			return nil, err
		}
		if i, ok := index[s.Field]; ok {
			out[i].Order = order
			continue
		}
		index[s.Field] = len(out)
		out = append(out, SortSpec{Field: s.Field, Order: order})
	}
	return out, nil
}
