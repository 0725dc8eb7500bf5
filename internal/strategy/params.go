package strategy

import (
	"fmt"
	"math"
)

// ParamType names the value type a strategy parameter accepts.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamBool   ParamType = "bool"
)

// ParamSpec declares one strategy parameter: name, type, default, and
// optional numeric bounds. A strategy's full spec list is validated against
// the operator-supplied config map at session start; the session refuses to
// start on any violation, and unknown keys are errors.
type ParamSpec struct {
	Name    string
	Type    ParamType
	Default interface{}
	Min     *float64
	Max     *float64
}

// ValidateParams checks raw against specs and returns the merged parameter
// map: defaults filled in for absent keys, supplied values type-checked and
// bounds-checked. Keys in raw that no spec declares are errors.
func ValidateParams(specs []ParamSpec, raw map[string]interface{}) (map[string]interface{}, error) {
	byName := make(map[string]ParamSpec, len(specs))
	for _, spec := range specs {
		byName[spec.Name] = spec
	}

	for key := range raw {
		if _, ok := byName[key]; !ok {
			return nil, fmt.Errorf("unknown strategy parameter %q", key)
		}
	}

	out := make(map[string]interface{}, len(specs))
	for _, spec := range specs {
		value, supplied := raw[spec.Name]
		if !supplied {
			out[spec.Name] = spec.Default
			continue
		}
		coerced, err := coerceParam(spec, value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", spec.Name, err)
		}
		out[spec.Name] = coerced
	}
	return out, nil
}

func coerceParam(spec ParamSpec, value interface{}) (interface{}, error) {
	switch spec.Type {
	case ParamString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		return s, nil
	case ParamBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", value)
		}
		return b, nil
	case ParamInt:
		f, ok := asFloat(value)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("expected integer, got %v", value)
		}
		if err := checkBounds(spec, f); err != nil {
			return nil, err
		}
		return int(f), nil
	case ParamFloat:
		f, ok := asFloat(value)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", value)
		}
		if err := checkBounds(spec, f); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %q", spec.Type)
	}
}

// asFloat accepts the numeric representations a JSON-decoded config map can
// carry alongside natively-typed test fixtures.
func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func checkBounds(spec ParamSpec, f float64) error {
	if spec.Min != nil && f < *spec.Min {
		return fmt.Errorf("value %v below minimum %v", f, *spec.Min)
	}
	if spec.Max != nil && f > *spec.Max {
		return fmt.Errorf("value %v above maximum %v", f, *spec.Max)
	}
	return nil
}
