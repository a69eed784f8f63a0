package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeDefaults(t *testing.T) {
	got := Merge(DefaultQueryParams())

	require.NotNil(t, got.Limit)
	assert.Equal(t, 50, *got.Limit)
	assert.Equal(t, 0, *got.Offset)
	assert.Equal(t, 1, *got.Page)
	assert.True(t, *got.Pagination)
	assert.False(t, *got.Cache)
	assert.False(t, *got.IncludeDeleted)
	assert.Empty(t, got.Fields)
	assert.Empty(t, got.Filter)
}

func TestMergeScalarsLastSetWins(t *testing.T) {
	baseline := QueryParams{Limit: Int(20), Cache: Bool(true)}
	request := QueryParams{Limit: Int(5), Page: Int(3)}

	got := Merge(DefaultQueryParams(), baseline, request)

	assert.Equal(t, 5, *got.Limit)
	assert.Equal(t, 3, *got.Page)
	assert.True(t, *got.Cache, "unset source must not reset an earlier value")
	assert.Equal(t, 0, *got.Offset)
}

func TestMergeDoesNotAliasSources(t *testing.T) {
	src := QueryParams{Limit: Int(7)}
	got := Merge(DefaultQueryParams(), src)
	*src.Limit = 99
	assert.Equal(t, 7, *got.Limit)
}

func TestMergeDedupFirstWins(t *testing.T) {
	baseline := QueryParams{
		Fields: []string{"id", "name"},
		Filter: []FilterCondition{{Field: "tenant", Operator: OpEquals, Value: Scalar("acme")}},
		Join:   []JoinSpec{{Field: "role"}},
	}
	request := QueryParams{
		Fields: []string{"name", "email"},
		Filter: []FilterCondition{
			{Field: "tenant", Operator: OpEquals, Value: Scalar("evil")},
			{Field: "age", Operator: OpGreaterThan, Value: Scalar(18)},
			{Field: "age", Operator: OpLowerThan, Value: Scalar(99)},
		},
		Or: []FilterCondition{
			{Field: "name", Operator: OpContains, Value: Scalar("a")},
			{Field: "name", Operator: OpContains, Value: Scalar("b")},
		},
		Join: []JoinSpec{{Field: "avatar"}, {Field: "role", Select: []string{"name"}}},
	}

	got := Merge(DefaultQueryParams(), baseline, request)

	assert.Equal(t, []string{"id", "name", "email"}, got.Fields)
	assert.Equal(t, []FilterCondition{
		{Field: "tenant", Operator: OpEquals, Value: Scalar("acme")},
		{Field: "age", Operator: OpGreaterThan, Value: Scalar(18)},
	}, got.Filter)
	assert.Equal(t, []FilterCondition{{Field: "name", Operator: OpContains, Value: Scalar("a")}}, got.Or)
	assert.Equal(t, []JoinSpec{{Field: "role"}, {Field: "avatar"}}, got.Join)
}

func TestMergeSortDedupByValue(t *testing.T) {
	got := Merge(DefaultQueryParams(), QueryParams{Sort: []SortSpec{
		{Field: "name", Order: SortAsc},
		{Field: "name", Order: SortAsc},
		{Field: "name", Order: SortDesc},
	}})
	assert.Equal(t, []SortSpec{{Field: "name", Order: SortAsc}, {Field: "name", Order: SortDesc}}, got.Sort)
}

func TestMergeIdempotent(t *testing.T) {
	d := DefaultQueryParams()
	d.Filter = []FilterCondition{{Field: "tenant", Operator: OpEquals, Value: Scalar("acme")}}
	d.Fields = []string{"id"}
	d.Sort = []SortSpec{{Field: "id", Order: SortAsc}}

	sources := []QueryParams{
		{},
		{Limit: Int(10), Page: Int(2), Cache: Bool(true)},
		{
			Fields: []string{"id", "name", "name"},
			Filter: []FilterCondition{
				{Field: "tenant", Operator: OpEquals, Value: Scalar("x")},
				{Field: "age", Operator: OpBetween, Value: List(18, 30)},
			},
			Or:   []FilterCondition{{Field: "role", Operator: OpIn, Value: List("a", "b")}},
			Join: []JoinSpec{{Field: JoinAll}, {Field: "role"}},
			Sort: []SortSpec{{Field: "name", Order: SortDesc}},
		},
		{Pagination: Bool(false), IncludeDeleted: Bool(true)},
	}

	for _, x := range sources {
		once := Merge(d, x)
		twice := Merge(d, once)
		assert.Equal(t, once.Fields, twice.Fields)
		assert.Equal(t, once.Filter, twice.Filter)
		assert.Equal(t, once.Or, twice.Or)
		assert.Equal(t, once.Join, twice.Join)
		assert.Equal(t, once.Sort, twice.Sort)
		assert.Equal(t, once.Limit, twice.Limit)
		assert.Equal(t, once.Offset, twice.Offset)
		assert.Equal(t, once.Page, twice.Page)
		assert.Equal(t, once.Pagination, twice.Pagination)
		assert.Equal(t, once.Cache, twice.Cache)
		assert.Equal(t, once.IncludeDeleted, twice.IncludeDeleted)
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"true", true, false},
		{"false", false, false},
		{" TRUE ", false, true},
		{"False", false, true},
		{"true ", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBool("cache", tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
