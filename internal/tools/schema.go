package tools

import (
	"fmt"
	"slices"
)

// Validate checks an argument mapping against the schema.
// It enforces required fields, null handling, primitive types, and
// enumerated value domains. The first violation found is returned.
func (s Schema) Validate(args map[string]any) error {
	for _, name := range s.Required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredArg, name)
		}
	}

	for name, prop := range s.Properties {
		value, ok := args[name]
		if !ok {
			continue
		}
		if value == nil {
			if prop.Nullable {
				continue
			}
			return fmt.Errorf("%w: %s", ErrNullArgument, name)
		}
		if err := checkType(name, value, prop.Type); err != nil {
			return err
		}
		if len(prop.Enum) > 0 {
			str, _ := value.(string)
			if !slices.Contains(prop.Enum, str) {
				return fmt.Errorf("%w: %s=%q (allowed: %v)", ErrInvalidEnumValue, name, str, prop.Enum)
			}
		}
	}

	return nil
}

func checkType(name string, value any, expected string) error {
	switch expected {
	case "":
		// Untyped property, nothing to check.
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%w: %s expected string, got %T", ErrInvalidArgType, name, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%w: %s expected boolean, got %T", ErrInvalidArgType, name, value)
		}
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Errorf("%w: %s expected number, got %T", ErrInvalidArgType, name, value)
		}
	default:
		return fmt.Errorf("%w: %s has unsupported schema type %q", ErrInvalidArgType, name, expected)
	}
	return nil
}
