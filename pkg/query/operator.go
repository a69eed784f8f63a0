package query

import (
	"fmt"
	"strings"
)

// CompiledPredicate is a WHERE fragment with named placeholders (":name",
// or "(:...name)" for list expansion) and the values bound to them.
type CompiledPredicate struct {
	Fragment string
	Bindings map[string]any
}

// CompilePredicate maps one filter condition onto a predicate over column,
// an already quoted and qualified reference. Values are bound under param;
// $between binds param_0 and param_1. Unknown operators compile as $eq.
func CompilePredicate(cond FilterCondition, column, param string, dialect Dialect) (CompiledPredicate, error) {
	like := likeOperator(dialect)
	lower := "LOWER(" + column + ")"

	switch cond.Operator {
	case OpEquals:
		return compare(cond, column, "=", param, false)
	case OpNotEquals:
		return compare(cond, column, "!=", param, false)
	case OpGreaterThan:
		return compare(cond, column, ">", param, false)
	case OpLowerThan:
		return compare(cond, column, "<", param, false)
	case OpGreaterThanEquals:
		return compare(cond, column, ">=", param, false)
	case OpLowerThanEquals:
		return compare(cond, column, "<=", param, false)

	case OpStarts:
		return pattern(cond, column, "LIKE", param, "%s%%", false)
	case OpEnds:
		return pattern(cond, column, "LIKE", param, "%%%s", false)
	case OpContains:
		return pattern(cond, column, "LIKE", param, "%%%s%%", false)
	case OpExcludes:
		return pattern(cond, column, "NOT LIKE", param, "%%%s%%", false)

	case OpIn:
		return inList(cond, column, "IN", param, false)
	case OpNotIn:
		return inList(cond, column, "NOT IN", param, false)

	case OpIsNull:
		return CompiledPredicate{Fragment: column + " IS NULL", Bindings: map[string]any{}}, nil
	case OpNotNull:
		return CompiledPredicate{Fragment: column + " IS NOT NULL", Bindings: map[string]any{}}, nil

	case OpBetween:
		if !cond.Value.IsList() || cond.Value.Len() != 2 {
			return CompiledPredicate{}, validationErrorf(cond.Field, "%s expects a list of exactly 2 values", cond.Operator)
		}
		bounds := cond.Value.List()
		lo, hi := param+"_0", param+"_1"
		return CompiledPredicate{
			Fragment: fmt.Sprintf("%s BETWEEN :%s AND :%s", column, lo, hi),
			Bindings: map[string]any{lo: bounds[0], hi: bounds[1]},
		}, nil

	case OpEqualsLow:
		return compare(cond, lower, "=", param, true)
	case OpNotEqualsLow:
		return compare(cond, lower, "!=", param, true)
	case OpStartsLow:
		return pattern(cond, lower, like, param, "%s%%", true)
	case OpEndsLow:
		return pattern(cond, lower, like, param, "%%%s", true)
	case OpContainsLow:
		return pattern(cond, lower, like, param, "%%%s%%", true)
	case OpExcludesLow:
		return pattern(cond, lower, "NOT "+like, param, "%%%s%%", true)
	case OpInLow:
		return inList(cond, lower, "IN", param, true)
	case OpNotInLow:
		return inList(cond, lower, "NOT IN", param, true)

	default:
		return compare(cond, column, "=", param, false)
	}
}

func scalar(cond FilterCondition) (any, error) {
	if !cond.Value.IsScalar() {
		op := cond.Operator
		if op == "" {
			op = OpEquals
		}
		return nil, validationErrorf(cond.Field, "%s expects a single value", op)
	}
	return cond.Value.Scalar(), nil
}

func compare(cond FilterCondition, column, op, param string, fold bool) (CompiledPredicate, error) {
	v, err := scalar(cond)
	if err != nil {
		return CompiledPredicate{}, err
	}
	if fold {
		v = lowerValue(v)
	}
	return CompiledPredicate{
		Fragment: fmt.Sprintf("%s %s :%s", column, op, param),
		Bindings: map[string]any{param: v},
	}, nil
}

func pattern(cond FilterCondition, column, op, param, format string, fold bool) (CompiledPredicate, error) {
	v, err := scalar(cond)
	if err != nil {
		return CompiledPredicate{}, err
	}
	s := fmt.Sprint(v)
	if fold {
		s = strings.ToLower(s)
	}
	return CompiledPredicate{
		Fragment: fmt.Sprintf("%s %s :%s", column, op, param),
		Bindings: map[string]any{param: fmt.Sprintf(format, s)},
	}, nil
}

func inList(cond FilterCondition, column, op, param string, fold bool) (CompiledPredicate, error) {
	if !cond.Value.IsList() || cond.Value.Len() == 0 {
		return CompiledPredicate{}, validationErrorf(cond.Field, "%s expects a non-empty list", cond.Operator)
	}
	values := cond.Value.List()
	if fold {
		for i, v := range values {
			values[i] = lowerValue(v)
		}
	}
	return CompiledPredicate{
		Fragment: fmt.Sprintf("%s %s (:...%s)", column, op, param),
		Bindings: map[string]any{param: values},
	}, nil
}

func lowerValue(v any) any {
	if s, ok := v.(string); ok {
		return strings.ToLower(s)
	}
	return v
}
