// Package policy evaluates workflow conditions against instance data.
// Evaluation never mutates its inputs.
package policy

import (
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/dukex/stockflow/pkg/models"
	"github.com/spf13/cast"
)

// Compare applies operator to the resolved value and the condition value.
// Unknown operators and values that cannot be compared evaluate to false.
func Compare(operator models.ConditionOperator, actual, expected any) bool {
	switch operator {
	case models.OperatorEquals:
		return equal(actual, expected)
	case models.OperatorContains:
		if actual == nil {
			return false
		}

		return strings.Contains(cast.ToString(actual), cast.ToString(expected))
	case models.OperatorGreaterThan:
		if a, b, ok := numbers(actual, expected); ok {
			return a > b
		}

		a, b, ok := times(actual, expected)

		return ok && a.After(b)
	case models.OperatorLessThan:
		if a, b, ok := numbers(actual, expected); ok {
			return a < b
		}

		a, b, ok := times(actual, expected)

		return ok && a.Before(b)
	case models.OperatorIn:
		items, ok := list(expected)

		return ok && containsValue(items, actual)
	case models.OperatorNotIn:
		items, ok := list(expected)

		return ok && !containsValue(items, actual)
	case models.OperatorMatches:
		pattern, err := regexp.Compile(cast.ToString(expected))
		if err != nil {
			return false
		}

		return pattern.MatchString(cast.ToString(actual))
	default:
		return false
	}
}

// equal is strict on kind except that numbers compare by value, so a JSON
// float64 equals a YAML int.
func equal(a, b any) bool {
	if isNumber(a) && isNumber(b) {
		return cast.ToFloat64(a) == cast.ToFloat64(b)
	}

	return reflect.DeepEqual(a, b)
}

func numbers(a, b any) (float64, float64, bool) {
	if a == nil || b == nil {
		return 0, 0, false
	}

	x, err := cast.ToFloat64E(a)
	if err != nil {
		return 0, 0, false
	}

	y, err := cast.ToFloat64E(b)
	if err != nil {
		return 0, 0, false
	}

	return x, y, true
}

// times compares instants when at least one side is a time.Time and the other
// converts to one, e.g. an RFC 3339 string.
func times(a, b any) (time.Time, time.Time, bool) {
	_, aIsTime := a.(time.Time)
	_, bIsTime := b.(time.Time)

	if !aIsTime && !bIsTime {
		return time.Time{}, time.Time{}, false
	}

	x, err := cast.ToTimeE(a)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}

	y, err := cast.ToTimeE(b)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}

	return x, y, true
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

func list(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	items := make([]any, rv.Len())
	for i := range rv.Len() {
		items[i] = rv.Index(i).Interface()
	}

	return items, true
}

func containsValue(items []any, v any) bool {
	for _, item := range items {
		if equal(item, v) {
			return true
		}
	}

	return false
}
