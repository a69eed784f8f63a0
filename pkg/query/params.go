package query

import "strings"

// Operator is a filter comparison operator such as "$eq" or "$contL".
type Operator string

const (
	OpEquals            Operator = "$eq"
	OpNotEquals         Operator = "$ne"
	OpGreaterThan       Operator = "$gt"
	OpLowerThan         Operator = "$lt"
	OpGreaterThanEquals Operator = "$gte"
	OpLowerThanEquals   Operator = "$lte"
	OpStarts            Operator = "$starts"
	OpEnds              Operator = "$ends"
	OpContains          Operator = "$cont"
	OpExcludes          Operator = "$excl"
	OpIn                Operator = "$in"
	OpNotIn             Operator = "$notin"
	OpIsNull            Operator = "$isnull"
	OpNotNull           Operator = "$notnull"
	OpBetween           Operator = "$between"

	// case insensitive
	OpEqualsLow    Operator = "$eqL"
	OpNotEqualsLow Operator = "$neL"
	OpStartsLow    Operator = "$startsL"
	OpEndsLow      Operator = "$endsL"
	OpContainsLow  Operator = "$contL"
	OpExcludesLow  Operator = "$exclL"
	OpInLow        Operator = "$inL"
	OpNotInLow     Operator = "$notinL"
)

// Operators lists every supported operator.
var Operators = []Operator{
	OpEquals, OpNotEquals, OpGreaterThan, OpLowerThan, OpGreaterThanEquals, OpLowerThanEquals,
	OpStarts, OpEnds, OpContains, OpExcludes, OpIn, OpNotIn, OpIsNull, OpNotNull, OpBetween,
	OpEqualsLow, OpNotEqualsLow, OpStartsLow, OpEndsLow, OpContainsLow, OpExcludesLow, OpInLow, OpNotInLow,
}

// JoinAll is the join field that expands to every relation of the entity.
const JoinAll = "*"

// SortOrder is ASC or DESC.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// FilterCondition is one (field, operator, value) comparison.
type FilterCondition struct {
	Field    string   `mapstructure:"field" json:"field"`
	Operator Operator `mapstructure:"operator" json:"operator"`
	Value    Value    `mapstructure:"value" json:"value,omitempty"`
}

// JoinSpec requests a relation to be left-joined into the result.
type JoinSpec struct {
	Field  string   `mapstructure:"field" json:"field"`
	Select []string `mapstructure:"select" json:"select,omitempty"`
}

type SortSpec struct {
	Field string    `mapstructure:"field" json:"field"`
	Order SortOrder `mapstructure:"order" json:"order"`
}

// QueryParams describes a list/find request. Nil scalar fields are unset and
// are filled in by Merge.
type QueryParams struct {
	Fields         []string          `mapstructure:"fields" json:"fields,omitempty"`
	Filter         []FilterCondition `mapstructure:"filter" json:"filter,omitempty"`
	Or             []FilterCondition `mapstructure:"or" json:"or,omitempty"`
	Join           []JoinSpec        `mapstructure:"join" json:"join,omitempty"`
	Sort           []SortSpec        `mapstructure:"sort" json:"sort,omitempty"`
	Limit          *int              `mapstructure:"limit" json:"limit,omitempty"`
	Offset         *int              `mapstructure:"offset" json:"offset,omitempty"`
	Page           *int              `mapstructure:"page" json:"page,omitempty"`
	Pagination     *bool             `mapstructure:"pagination" json:"pagination,omitempty"`
	Cache          *bool             `mapstructure:"cache" json:"cache,omitempty"`
	IncludeDeleted *bool             `mapstructure:"includeDeleted" json:"includeDeleted,omitempty"`
}

const (
	DefaultLimit  = 50
	DefaultOffset = 0
	DefaultPage   = 1
)

// DefaultQueryParams returns the built-in defaults every request is merged onto.
func DefaultQueryParams() QueryParams {
	return QueryParams{
		Limit:          Int(DefaultLimit),
		Offset:         Int(DefaultOffset),
		Page:           Int(DefaultPage),
		Pagination:     Bool(true),
		Cache:          Bool(false),
		IncludeDeleted: Bool(false),
	}
}

// Validate checks the numeric invariants: limit and offset are not negative
// and page is 1-based.
func (p QueryParams) Validate() error {
	if p.Limit != nil && *p.Limit < 0 {
		return validationErrorf("limit", "must not be negative, got %d", *p.Limit)
	}
	if p.Offset != nil && *p.Offset < 0 {
		return validationErrorf("offset", "must not be negative, got %d", *p.Offset)
	}
	if p.Page != nil && *p.Page < 1 {
		return validationErrorf("page", "must be at least 1, got %d", *p.Page)
	}
	return nil
}

// Paginated reports whether limit/offset apply. Unset means true.
func (p QueryParams) Paginated() bool {
	return p.Pagination == nil || *p.Pagination
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

func normalizeOrder(field string, o SortOrder) (SortOrder, error) {
	switch SortOrder(strings.ToUpper(strings.TrimSpace(string(o)))) {
	case SortAsc, "":
		return SortAsc, nil
	case SortDesc:
		return SortDesc, nil
	}
	return "", validationErrorf(field, "invalid sort order %q", o)
}
