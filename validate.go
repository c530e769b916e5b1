package sigil

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ValidateValue casts a decoded JSON value against a schema and returns the
// typed value or the complete list of violations. Every violation is
// collected, not just the first, so a corrective retry prompt can name each
// one with its path. Malformed input is data, never a panic.
func ValidateValue(schema *Schema, value any) (any, []FieldError) {
	if schema == nil {
		return value, nil
	}
	return validateAt(schema, value, "")
}

func validateAt(schema *Schema, value any, path string) (any, []FieldError) {
	switch schema.Kind {
	case KindObject:
		return validateObject(schema, value, path)
	case KindArray:
		return validateArray(schema, value, path)
	case KindString:
		s, ok := value.(string)
		if !ok {
			return nil, []FieldError{{Path: path, Message: typeMismatch("string", value)}}
		}
		return s, checkScalar(schema, s, float64(len(s)), false, path)
	case KindInteger:
		n, ok := asNumber(value)
		// int(n) is undefined outside the int64 range; the float64 bound for
		// math.MaxInt64 rounds to 2^63, so >= excludes it.
		if !ok || n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return nil, []FieldError{{Path: path, Message: typeMismatch("integer", value)}}
		}
		return int(n), checkScalar(schema, strconv.Itoa(int(n)), n, true, path)
	case KindNumber:
		n, ok := asNumber(value)
		if !ok {
			return nil, []FieldError{{Path: path, Message: typeMismatch("number", value)}}
		}
		return n, checkScalar(schema, strconv.FormatFloat(n, 'g', -1, 64), n, true, path)
	case KindBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, []FieldError{{Path: path, Message: typeMismatch("boolean", value)}}
		}
		return b, nil
	default:
		return nil, []FieldError{{Path: path, Message: fmt.Sprintf("unknown schema kind %q", schema.Kind)}}
	}
}

func validateObject(schema *Schema, value any, path string) (any, []FieldError) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, []FieldError{{Path: path, Message: typeMismatch("object", value)}}
	}

	var errs []FieldError
	typed := make(map[string]any, len(obj))

	for _, req := range schema.Required {
		if _, present := obj[req]; !present {
			errs = append(errs, FieldError{Path: childPath(path, req), Message: "required key missing"})
		}
	}

	// Deterministic property order keeps error lists stable.
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw, present := obj[name]
		if !present {
			continue
		}
		v, propErrs := validateAt(schema.Properties[name], raw, childPath(path, name))
		if len(propErrs) > 0 {
			errs = append(errs, propErrs...)
			continue
		}
		typed[name] = v
	}

	// Keys outside the schema are dropped, matching the adapters' extra-key
	// policy.
	if len(errs) > 0 {
		return nil, errs
	}
	return typed, nil
}

func validateArray(schema *Schema, value any, path string) (any, []FieldError) {
	arr, ok := value.([]any)
	if !ok {
		return nil, []FieldError{{Path: path, Message: typeMismatch("array", value)}}
	}
	var errs []FieldError
	typed := make([]any, 0, len(arr))
	for i, elem := range arr {
		elemPath := fmt.Sprintf("%s[%d]", path, i)
		if schema.Items == nil {
			typed = append(typed, elem)
			continue
		}
		v, elemErrs := validateAt(schema.Items, elem, elemPath)
		if len(elemErrs) > 0 {
			errs = append(errs, elemErrs...)
			continue
		}
		typed = append(typed, v)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return typed, nil
}

func checkScalar(schema *Schema, rendered string, n float64, numeric bool, path string) []FieldError {
	var errs []FieldError
	if len(schema.Enum) > 0 {
		found := false
		for _, allowed := range schema.Enum {
			if allowed == rendered {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, FieldError{Path: path,
				Message: fmt.Sprintf("value %q not in allowed set %v", rendered, schema.Enum)})
		}
	}
	if numeric {
		if schema.Minimum != nil && n < *schema.Minimum {
			errs = append(errs, FieldError{Path: path,
				Message: fmt.Sprintf("value %s below minimum %s", rendered, strconv.FormatFloat(*schema.Minimum, 'g', -1, 64))})
		}
		if schema.Maximum != nil && n > *schema.Maximum {
			errs = append(errs, FieldError{Path: path,
				Message: fmt.Sprintf("value %s above maximum %s", rendered, strconv.FormatFloat(*schema.Maximum, 'g', -1, 64))})
		}
	}
	return errs
}

// asNumber accepts the numeric shapes a decoded completion can carry.
// json.Number appears when an adapter decodes with UseNumber; float64 is the
// default decoding; int shows up from defaults and demos supplied in Go.
func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func typeMismatch(want string, got any) string {
	if got == nil {
		return fmt.Sprintf("expected %s, got null", want)
	}
	return fmt.Sprintf("expected %s, got %T", want, got)
}

func childPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
