package settings

import (
	"strings"
)

// FieldDescriptor describes one setting of a definition container.
type FieldDescriptor struct {
	Path    string `json:"path"`
	Key     string `json:"key"`
	Type    string `json:"type"`
	Label   string `json:"label,omitempty"`
	Unit    string `json:"unit,omitempty"`
	Default any    `json:"default,omitempty"`
	Formula string `json:"formula,omitempty"`
}

// DescribeDefinitions walks the definitions of c depth first and returns one
// descriptor per setting. Paths join the ancestor keys with dots.
func DescribeDefinitions(c *DefinitionContainer) []FieldDescriptor {
	if c == nil {
		return nil
	}
	fields := []FieldDescriptor{}
	for _, def := range c.Definitions() {
		fields = append(fields, describeDefinition(def, "")...)
	}
	return fields
}

func describeDefinition(def *SettingDefinition, prefix string) []FieldDescriptor {
	path := joinPath(prefix, def.Key())
	field := FieldDescriptor{
		Path:  path,
		Key:   def.Key(),
		Type:  def.Type(),
		Label: literalString(def, "label"),
		Unit:  literalString(def, "unit"),
	}
	if value, ok := def.Property("default_value"); ok && !value.IsFunction() {
		field.Default = value.Literal()
	}
	if value, ok := def.Property("value"); ok && value.IsFunction() {
		field.Formula = value.Function().Code()
	}

	fields := []FieldDescriptor{field}
	for _, child := range def.Children() {
		fields = append(fields, describeDefinition(child, path)...)
	}
	return fields
}

func literalString(def *SettingDefinition, name string) string {
	value, ok := def.Property(name)
	if !ok {
		return ""
	}
	s, _ := value.Literal().(string)
	return s
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, ".")
}
