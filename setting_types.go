package settings

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PropertyKind describes how a definition property is parsed.
type PropertyKind int

const (
	PropertyAny PropertyKind = iota
	PropertyString
	PropertyTranslatedString
	PropertyFunction
)

type propertySpec struct {
	kind     PropertyKind
	required bool
}

var definitionProperties = map[string]propertySpec{
	"type":                   {kind: PropertyString, required: true},
	"label":                  {kind: PropertyTranslatedString},
	"description":            {kind: PropertyTranslatedString},
	"unit":                   {kind: PropertyString},
	"icon":                   {kind: PropertyString},
	"comments":               {kind: PropertyString},
	"default_value":          {kind: PropertyAny},
	"options":                {kind: PropertyAny},
	"allow_empty":            {kind: PropertyAny},
	"settable_per_mesh":      {kind: PropertyAny},
	"settable_per_extruder":  {kind: PropertyAny},
	"settable_per_meshgroup": {kind: PropertyAny},
	"settable_globally":      {kind: PropertyAny},
	"value":                  {kind: PropertyFunction},
	"enabled":                {kind: PropertyFunction},
	"minimum_value":          {kind: PropertyFunction},
	"maximum_value":          {kind: PropertyFunction},
	"minimum_value_warning":  {kind: PropertyFunction},
	"maximum_value_warning":  {kind: PropertyFunction},
	"resolve":                {kind: PropertyFunction},
	"limit_to_extruder":      {kind: PropertyFunction},
}

// DefinitionPropertyKind returns the parse kind of a definition property.
// Unknown names are PropertyAny.
func DefinitionPropertyKind(name string) PropertyKind {
	return definitionProperties[name].kind
}

// RequiredDefinitionProperties lists the properties every definition must carry.
func RequiredDefinitionProperties() []string {
	var names []string
	for name, spec := range definitionProperties {
		if spec.required {
			names = append(names, name)
		}
	}
	return names
}

// ParseSettingValue converts serialized text into a value of settingType.
// Unknown types keep the text.
func ParseSettingValue(settingType, text string) (any, error) {
	text = strings.TrimSpace(text)
	switch settingType {
	case "int", "extruder", "optional_extruder":
		if n, err := strconv.Atoi(text); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil || f != math.Trunc(f) {
			return nil, fmt.Errorf("settings: %q is not an int", text)
		}
		return int(f), nil
	case "float":
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("settings: %q is not a float", text)
		}
		return f, nil
	case "bool":
		switch strings.ToLower(text) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no", "":
			return false, nil
		}
		return nil, fmt.Errorf("settings: %q is not a bool", text)
	default:
		return text, nil
	}
}

// FormatSettingValue renders value for serialized containers. Booleans use
// the True/False spelling existing profile files carry.
func FormatSettingValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case *SettingFunction:
		return v.String()
	case bool:
		if v {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
