package settings

import "testing"

func TestValidatorValidate(t *testing.T) {
	dc := simpleDefinition(t, "bounds", map[string]map[string]any{
		"nozzle":  {"type": "float", "default_value": 0.4},
		"wall":    {"type": "float", "default_value": 0.8, "minimum_value": "nozzle", "maximum_value_warning": "nozzle * 4"},
		"count":   {"type": "int", "default_value": 3, "minimum_value": 1, "maximum_value": "10"},
		"label":   {"type": "str", "default_value": "hello"},
		"mode":    {"type": "category"},
		"broken":  {"type": "float", "value": "nozzle +"},
		"percent": {"type": "percentage", "default_value": 150, "maximum_value": 100},
	})
	user := NewInstanceContainer("user")
	user.SetDefinition(dc)
	stack := NewContainerStack("stack")
	mustAdd(t, stack, user, dc)

	tests := []struct {
		name      string
		key       string
		value     any
		validator *Validator
		want      ValidationState
	}{
		{"default within bounds", "wall", nil, NewValidator(), ValidationValid},
		{"below formula minimum", "wall", 0.2, NewValidator(), ValidationMinimumError},
		{"above formula warning", "wall", 2.0, NewValidator(), ValidationMaximumWarning},
		{"numeric string bound", "count", 11, NewValidator(), ValidationMaximumError},
		{"numeric string value", "count", "5", NewValidator(), ValidationValid},
		{"not a number", "count", "many", NewValidator(), ValidationInvalid},
		{"non numeric type", "label", nil, NewValidator(), ValidationValid},
		{"no value", "mode", nil, NewValidator(), ValidationUnknown},
		{"evaluation error", "broken", nil, NewValidator(), ValidationInvalid},
		{"unknown type is not checked", "percent", nil, NewValidator(), ValidationValid},
		{"extra numeric type", "percent", nil, NewValidator("percentage"), ValidationMaximumError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user.Clear()
			if tt.value != nil {
				mustSet(t, user, tt.key, "value", tt.value)
			}
			if got := tt.validator.Validate(stack, tt.key); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
