package query

import (
	"encoding/json"
	"reflect"
	"slices"
)

type valueKind uint8

const (
	kindNone valueKind = iota
	kindScalar
	kindList
)

// Value is the right-hand side of a filter condition: nothing, a single
// scalar or a list of scalars. Operators validate the shape they need.
type Value struct {
	kind   valueKind
	scalar any
	list   []any
}

// Scalar returns a single-valued Value. A nil v yields an empty Value.
func Scalar(v any) Value {
	if v == nil {
		return Value{}
	}
	return Value{kind: kindScalar, scalar: v}
}

// List returns a list Value. List() is an empty list, not an empty Value.
func List(vs ...any) Value {
	return Value{kind: kindList, list: slices.Clone(vs)}
}

// ValueOf wraps a decoded value: slices become lists, nil becomes an empty
// Value and everything else a scalar.
func ValueOf(v any) Value {
	switch t := v.(type) {
	case nil:
		return Value{}
	case Value:
		return t
	case []any:
		return List(t...)
	case []string:
		list := make([]any, len(t))
		for i, s := range t {
			list[i] = s
		}
		return Value{kind: kindList, list: list}
	case []byte:
		return Scalar(string(t))
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		list := make([]any, rv.Len())
		for i := range list {
			list[i] = rv.Index(i).Interface()
		}
		return Value{kind: kindList, list: list}
	}
	return Scalar(v)
}

func (v Value) IsNone() bool   { return v.kind == kindNone }
func (v Value) IsScalar() bool { return v.kind == kindScalar }
func (v Value) IsList() bool   { return v.kind == kindList }

// Scalar returns the scalar payload, or nil for lists and empty values.
func (v Value) Scalar() any {
	return v.scalar
}

// List returns a copy of the list payload, or nil for non-lists.
func (v Value) List() []any {
	if v.kind != kindList {
		return nil
	}
	return slices.Clone(v.list)
}

// Len is the number of list elements, 1 for a scalar and 0 for an empty Value.
func (v Value) Len() int {
	switch v.kind {
	case kindScalar:
		return 1
	case kindList:
		return len(v.list)
	}
	return 0
}

// Any returns the payload as a plain Go value suitable for binding.
func (v Value) Any() any {
	switch v.kind {
	case kindScalar:
		return v.scalar
	case kindList:
		return slices.Clone(v.list)
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = ValueOf(raw)
	return nil
}
