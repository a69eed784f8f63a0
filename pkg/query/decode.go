package query

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

var (
	valueType    = reflect.TypeOf(Value{})
	durationType = reflect.TypeOf(time.Duration(0))
)

// DecodeHook converts loosely typed input, as produced by query-string or
// config decoding, into QueryParams field types. Strings are parsed strictly
// into booleans and integers and filter values become Value variants.
func DecodeHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to == valueType {
			return ValueOf(data), nil
		}
		// durations are left to mapstructure.StringToTimeDurationHookFunc
		if from.Kind() != reflect.String || to == durationType {
			return data, nil
		}
		s := reflect.ValueOf(data).String()
		switch to.Kind() {
		case reflect.Bool:
			return ParseBool("", s)
		case reflect.Int, reflect.Int64, reflect.Int32:
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return nil, validationErrorf("", "invalid integer %q", s)
			}
			return n, nil
		}
		return data, nil
	}
}

// Decode turns a deserialized request (nested maps and slices, usually with
// string leaves) into QueryParams. Unknown keys are ignored. Any decoding
// failure is reported as a *ValidationError.
func Decode(input map[string]any) (QueryParams, error) {
	var p QueryParams
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       DecodeHook(),
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return QueryParams{}, err
	}
	if err := dec.Decode(input); err != nil {
		return QueryParams{}, &ValidationError{Message: err.Error()}
	}
	return p, nil
}
