package config

import (
	"fmt"
	"reflect"
	"strings"
)

// Validator checks one constraint on a configuration value.
type Validator interface {
	Validate(config interface{}) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(config interface{}) error

func (f ValidatorFunc) Validate(config interface{}) error { return f(config) }

// Validate applies each validator in order, stopping at the first
// failure.
func Validate(config interface{}, validators ...Validator) error {
	for _, v := range validators {
		if err := v.Validate(config); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}
	return nil
}

// RangeValidator constrains a numeric field, addressed by dotted
// path, to [min, max].
func RangeValidator(path string, min, max float64) Validator {
	return ValidatorFunc(func(config interface{}) error {
		field, err := fieldAt(config, path)
		if err != nil {
			return err
		}

		var n float64
		switch {
		case field.CanInt():
			n = float64(field.Int())
		case field.CanUint():
			n = float64(field.Uint())
		case field.CanFloat():
			n = field.Float()
		default:
			return fmt.Errorf("field %s is not numeric", path)
		}

		if n < min || n > max {
			return fmt.Errorf("field %s value %v is out of range [%v, %v]", path, n, min, max)
		}
		return nil
	})
}

// ExclusionPatterns checks the syntax of context exclusion paths: each
// entry is a dotted path, and a wildcard may only appear as a trailing
// ".*" segment.
func ExclusionPatterns(path string) Validator {
	return ValidatorFunc(func(config interface{}) error {
		field, err := fieldAt(config, path)
		if err != nil {
			return err
		}
		if field.Kind() != reflect.Slice {
			return fmt.Errorf("field %s is not a slice", path)
		}

		for i := 0; i < field.Len(); i++ {
			pattern, ok := field.Index(i).Interface().(string)
			if !ok {
				return fmt.Errorf("field %s element %d is not a string", path, i)
			}
			if pattern == "" {
				return fmt.Errorf("field %s element %d is empty", path, i)
			}
			if strings.Count(pattern, "*") > 1 {
				return fmt.Errorf("exclusion pattern %q: only one wildcard is allowed", pattern)
			}
			if strings.Contains(pattern, "*") && !strings.HasSuffix(pattern, ".*") {
				return fmt.Errorf("exclusion pattern %q: wildcard must be a trailing .*", pattern)
			}
		}
		return nil
	})
}

// fieldAt resolves a dotted path against a struct value, dereferencing
// pointers along the way.
func fieldAt(config interface{}, path string) (reflect.Value, error) {
	v := reflect.ValueOf(config)
	for _, name := range strings.Split(path, ".") {
		for v.Kind() == reflect.Ptr {
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field %s not found", path)
		}
		v = v.FieldByName(name)
		if !v.IsValid() {
			return reflect.Value{}, fmt.Errorf("field %s not found", path)
		}
	}
	return v, nil
}
