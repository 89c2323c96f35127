package settings

import (
	"strconv"
	"strings"
)

// ValidationState classifies a resolved value against its bounds.
type ValidationState int

const (
	ValidationUnknown ValidationState = iota
	ValidationValid
	ValidationMinimumError
	ValidationMinimumWarning
	ValidationMaximumWarning
	ValidationMaximumError
	ValidationInvalid
)

func (v ValidationState) String() string {
	switch v {
	case ValidationValid:
		return "valid"
	case ValidationMinimumError:
		return "minimum_error"
	case ValidationMinimumWarning:
		return "minimum_warning"
	case ValidationMaximumWarning:
		return "maximum_warning"
	case ValidationMaximumError:
		return "maximum_error"
	case ValidationInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Validator checks numeric settings against the minimum_value,
// maximum_value and warning bounds resolved from the same context.
type Validator struct {
	numericTypes map[string]struct{}
}

// NewValidator returns a validator for the int, float and extruder types.
// Extra numeric type names can be added.
func NewValidator(numericTypes ...string) *Validator {
	v := &Validator{numericTypes: map[string]struct{}{
		"int":               {},
		"float":             {},
		"extruder":          {},
		"optional_extruder": {},
	}}
	for _, name := range numericTypes {
		v.numericTypes[name] = struct{}{}
	}
	return v
}

// Validate resolves key's value and bounds from ctx. Error bounds are checked
// before warning bounds. Non-numeric setting types are always Valid once a
// value exists.
func (v *Validator) Validate(ctx ValueProvider, key string) ValidationState {
	value, err := resolveProperty(ctx, key, "value")
	if err != nil {
		return ValidationInvalid
	}
	if value == nil {
		return ValidationUnknown
	}

	settingType, _ := resolveString(ctx, key, "type")
	if _, numeric := v.numericTypes[settingType]; !numeric {
		return ValidationValid
	}
	number, ok := numberOf(value)
	if !ok {
		return ValidationInvalid
	}

	if bound, ok := v.bound(ctx, key, "minimum_value"); ok && number < bound {
		return ValidationMinimumError
	}
	if bound, ok := v.bound(ctx, key, "maximum_value"); ok && number > bound {
		return ValidationMaximumError
	}
	if bound, ok := v.bound(ctx, key, "minimum_value_warning"); ok && number < bound {
		return ValidationMinimumWarning
	}
	if bound, ok := v.bound(ctx, key, "maximum_value_warning"); ok && number > bound {
		return ValidationMaximumWarning
	}
	return ValidationValid
}

func (v *Validator) bound(ctx ValueProvider, key, property string) (float64, bool) {
	value, err := resolveProperty(ctx, key, property)
	if err != nil || value == nil {
		return 0, false
	}
	return numberOf(value)
}

func resolveString(ctx ValueProvider, key, property string) (string, bool) {
	value, err := resolveProperty(ctx, key, property)
	if err != nil || value == nil {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// numberOf accepts numbers and numeric strings.
func numberOf(value any) (float64, bool) {
	if f, ok := toFloat(value); ok {
		return f, true
	}
	if s, ok := value.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}
