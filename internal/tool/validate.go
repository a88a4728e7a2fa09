package tool

import (
	"fmt"
	"slices"
)

// validateParams checks a call's argument map against the tool's declared
// parameter schema. The first violation is returned as an error naming the
// offending parameter; arguments not present in the schema are ignored.
func validateParams(t Tool, params map[string]any) error {
	for _, p := range t.Parameters {
		val, ok := params[p.Name]
		if !ok {
			if p.Required {
				return fmt.Errorf("missing required parameter %q", p.Name)
			}
			continue
		}
		if err := checkType(p, val); err != nil {
			return err
		}
	}
	return nil
}

// checkType verifies a single value against its declared primitive type.
// Values arrive from JSON decoding, so numbers are float64 and objects are
// map[string]any; int and int64 are also accepted for numbers to cover
// programmatic callers.
func checkType(p Parameter, val any) error {
	if val == nil {
		return fmt.Errorf("parameter %q must be of type %s, got null", p.Name, p.Type)
	}
	switch p.Type {
	case TypeString:
		s, ok := val.(string)
		if !ok {
			return typeError(p, val)
		}
		if len(p.Enum) > 0 && !slices.Contains(p.Enum, s) {
			return fmt.Errorf("parameter %q must be one of %v, got %q", p.Name, p.Enum, s)
		}
	case TypeNumber:
		switch val.(type) {
		case float64, float32, int, int32, int64:
		default:
			return typeError(p, val)
		}
	case TypeBoolean:
		if _, ok := val.(bool); !ok {
			return typeError(p, val)
		}
	case TypeArray:
		// Arrays and objects must not be conflated: a JSON array decodes
		// to []any, never to map[string]any.
		if _, ok := val.([]any); !ok {
			return typeError(p, val)
		}
	case TypeObject:
		if _, ok := val.(map[string]any); !ok {
			return typeError(p, val)
		}
	default:
		return fmt.Errorf("parameter %q has unknown declared type %q", p.Name, p.Type)
	}
	return nil
}

func typeError(p Parameter, val any) error {
	return fmt.Errorf("parameter %q must be of type %s, got %s", p.Name, p.Type, jsonTypeName(val))
}

// jsonTypeName names a decoded value in JSON terms for error messages.
func jsonTypeName(val any) string {
	switch val.(type) {
	case string:
		return "string"
	case float64, float32, int, int32, int64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", val)
	}
}
