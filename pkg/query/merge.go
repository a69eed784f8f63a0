package query

import "slices"

// Merge folds sources onto defaults, in order.
//
// Scalars take the last non-nil value. Fields, Filter, Or, Join and Sort are
// concatenated; Fields and Sort are deduplicated by value and Filter, Or and
// Join by field name, keeping the first occurrence. Sort entries naming the
// same field with different orders all survive, Compile resolves them.
// Merge(d, Merge(d, x)) equals Merge(d, x).
func Merge(defaults QueryParams, sources ...QueryParams) QueryParams {
	var out QueryParams
	for _, src := range append([]QueryParams{defaults}, sources...) {
		out.Fields = append(out.Fields, src.Fields...)
		out.Filter = append(out.Filter, src.Filter...)
		out.Or = append(out.Or, src.Or...)
		out.Join = append(out.Join, src.Join...)
		out.Sort = append(out.Sort, src.Sort...)

		out.Limit = lastSet(out.Limit, src.Limit)
		out.Offset = lastSet(out.Offset, src.Offset)
		out.Page = lastSet(out.Page, src.Page)
		out.Pagination = lastSet(out.Pagination, src.Pagination)
		out.Cache = lastSet(out.Cache, src.Cache)
		out.IncludeDeleted = lastSet(out.IncludeDeleted, src.IncludeDeleted)
	}

	out.Fields = uniqueBy(out.Fields, func(s string) string { return s })
	out.Filter = uniqueBy(out.Filter, func(c FilterCondition) string { return c.Field })
	out.Or = uniqueBy(out.Or, func(c FilterCondition) string { return c.Field })
	out.Join = uniqueBy(out.Join, func(j JoinSpec) string { return j.Field })
	out.Sort = uniqueBy(out.Sort, func(s SortSpec) string { return s.Field + "\x00" + string(s.Order) })
	return out
}

func lastSet[T any](cur, next *T) *T {
	if next == nil {
		return cur
	}
	v := *next
	return &v
}

// uniqueBy keeps the first element for every key, preserving order.
func uniqueBy[T any](items []T, key func(T) string) []T {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		k := key(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return slices.Clip(out)
}

// ParseBool accepts exactly "true" and "false". Query strings carry flags as
// text and anything else is rejected instead of being read as true.
func ParseBool(field, s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, validationErrorf(field, "invalid boolean %q", s)
}
