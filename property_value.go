package settings

import "fmt"

// PropertyValue is either a literal or a formula evaluated on read.
type PropertyValue struct {
	literal  any
	function *SettingFunction
}

// Literal wraps a plain value.
func Literal(value any) PropertyValue {
	if fn, ok := value.(*SettingFunction); ok {
		return Formula(fn)
	}
	return PropertyValue{literal: value}
}

// Formula wraps a setting function.
func Formula(fn *SettingFunction) PropertyValue {
	return PropertyValue{function: fn}
}

// IsFunction reports whether the value is a formula.
func (v PropertyValue) IsFunction() bool {
	return v.function != nil
}

// Function returns the wrapped formula, or nil for literals.
func (v PropertyValue) Function() *SettingFunction {
	return v.function
}

// Literal returns the wrapped literal, or nil for formulas.
func (v PropertyValue) Literal() any {
	return v.literal
}

// Raw returns the literal or the *SettingFunction.
func (v PropertyValue) Raw() any {
	if v.function != nil {
		return v.function
	}
	return v.literal
}

// Resolve evaluates formulas against ctx and returns literals unchanged.
func (v PropertyValue) Resolve(ctx ValueProvider) (any, error) {
	if v.function == nil {
		return v.literal, nil
	}
	return v.function.Evaluate(ctx)
}

func (v PropertyValue) String() string {
	if v.function != nil {
		return v.function.String()
	}
	return fmt.Sprint(v.literal)
}

// resolveProperty reads key/property from ctx and evaluates formulas with the
// key marked as in progress, so self-referencing value formulas are reported
// as cycles.
func resolveProperty(ctx ValueProvider, key, property string) (any, error) {
	if ctx == nil {
		return nil, nil
	}
	raw, ok := ctx.RawProperty(key, property)
	if !ok {
		return nil, nil
	}
	return evaluateIn(ctx, raw, key, property)
}

// evaluateIn resolves raw, which was read for key/property, against ctx.
func evaluateIn(ctx ValueProvider, raw PropertyValue, key, property string) (any, error) {
	if raw.function == nil {
		return raw.literal, nil
	}
	ev := newEvaluation()
	if property == "value" {
		ev.enter(key)
	}
	return raw.function.evaluate(ctx, ev)
}
