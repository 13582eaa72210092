package internal

import (
	"fmt"
	"math"
	"regexp"

	"github.com/stashbase/stashbase"
)

// maxSafeInt bounds int-typed values to the IEEE-754 safe-integer range.
// JSON numbers travel as float64, so integers beyond 2^53-1 cannot be
// represented exactly and are rejected rather than silently rounded.
const maxSafeInt = float64(1<<53 - 1)

// datetimePattern accepts ISO-8601 dates and date-times: bare dates,
// optional seconds and fractional seconds, and a Z or ±HH:MM / ±HHMM offset.
var datetimePattern = regexp.MustCompile(
	`^\d{4}-\d{2}-\d{2}([Tt ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?([Zz]|[+-]\d{2}:?\d{2})?)?$`,
)

// ValidateValue checks a single value against a field definition. A nil
// value is always accepted here; required-field presence is the record
// validator's concern.
func ValidateValue(field stashbase.FieldDefinition, value any) error {
	if value == nil {
		return nil
	}

	switch field.Type {
	case stashbase.FieldTypeString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		if len(field.Enum) > 0 && !enumContains(field.Enum, s) {
			return fmt.Errorf("value '%s' not in enum %v", s, field.Enum)
		}
		return nil

	case stashbase.FieldTypeInt:
		return validateInt(value)

	case stashbase.FieldTypeFloat:
		return validateFloat(value)

	case stashbase.FieldTypeBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		return nil

	case stashbase.FieldTypeDatetime:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected ISO-8601 datetime string, got %T", value)
		}
		if !datetimePattern.MatchString(s) {
			return fmt.Errorf("'%s' is not a valid ISO-8601 date or date-time", s)
		}
		return nil

	case stashbase.FieldTypeStringArray:
		return validateArray(value, func(i int, item any) error {
			if _, ok := item.(string); !ok {
				return fmt.Errorf("[%d]: expected string, got %T", i, item)
			}
			return nil
		})

	case stashbase.FieldTypeIntArray:
		return validateArray(value, func(i int, item any) error {
			if err := validateInt(item); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
			return nil
		})

	case stashbase.FieldTypeFloatArray:
		return validateArray(value, func(i int, item any) error {
			if err := validateFloat(item); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
			return nil
		})

	case stashbase.FieldTypeObject:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
		return nil

	default:
		// Unknown types are rejected when field definitions are validated,
		// so this branch is unreachable through the handler surface.
		return fmt.Errorf("unknown field type '%s'", field.Type)
	}
}

func validateInt(value any) error {
	f, ok := asNumber(value)
	if !ok {
		return fmt.Errorf("expected integer, got %T", value)
	}
	if f != math.Trunc(f) {
		return fmt.Errorf("expected integer, got fractional number %v", f)
	}
	if math.Abs(f) > maxSafeInt {
		return fmt.Errorf("integer %v outside safe range", f)
	}
	return nil
}

func validateFloat(value any) error {
	f, ok := asNumber(value)
	if !ok {
		return fmt.Errorf("expected number, got %T", value)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("expected finite number, got %v", f)
	}
	return nil
}

func validateArray(value any, elem func(int, any) error) error {
	arr, ok := value.([]any)
	if !ok {
		return fmt.Errorf("expected array, got %T", value)
	}
	for i, item := range arr {
		if item == nil {
			return fmt.Errorf("[%d]: null element not allowed", i)
		}
		if err := elem(i, item); err != nil {
			return err
		}
	}
	return nil
}

// asNumber normalizes the numeric types JSON decoding and Go callers
// produce into float64.
func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func enumContains(enum []string, value string) bool {
	for _, e := range enum {
		if e == value {
			return true
		}
	}
	return false
}
