package settings

import (
	"fmt"

	"github.com/goliatone/go-settings/layering"
)

// SettingDefinition describes one configurable setting. Children are owned
// exclusively by their parent.
type SettingDefinition struct {
	key        string
	container  *DefinitionContainer
	parent     *SettingDefinition
	children   []*SettingDefinition
	relations  []*SettingRelation
	names      []string
	properties map[string]PropertyValue
}

// NewSettingDefinition creates a definition owned by container, nested under
// parent when parent is not nil.
func NewSettingDefinition(key string, container *DefinitionContainer, parent *SettingDefinition) *SettingDefinition {
	return &SettingDefinition{
		key:        key,
		container:  container,
		parent:     parent,
		properties: map[string]PropertyValue{},
	}
}

func (d *SettingDefinition) Key() string                     { return d.key }
func (d *SettingDefinition) Container() *DefinitionContainer { return d.container }
func (d *SettingDefinition) Parent() *SettingDefinition      { return d.parent }

// Type returns the "type" property.
func (d *SettingDefinition) Type() string {
	value, ok := d.properties["type"]
	if !ok {
		return ""
	}
	s, _ := value.Literal().(string)
	return s
}

// Children returns the direct children in document order.
func (d *SettingDefinition) Children() []*SettingDefinition {
	return append([]*SettingDefinition(nil), d.children...)
}

// Relations returns the relations owned by this definition.
func (d *SettingDefinition) Relations() []*SettingRelation {
	return append([]*SettingRelation(nil), d.relations...)
}

// Property returns the named property.
func (d *SettingDefinition) Property(name string) (PropertyValue, bool) {
	value, ok := d.properties[name]
	return value, ok
}

// HasProperty reports whether the named property is set.
func (d *SettingDefinition) HasProperty(name string) bool {
	_, ok := d.properties[name]
	return ok
}

// PropertyNames returns property names in document order.
func (d *SettingDefinition) PropertyNames() []string {
	return append([]string(nil), d.names...)
}

// SetProperty stores value under name, keeping the position of existing names.
func (d *SettingDefinition) SetProperty(name string, value PropertyValue) {
	if _, exists := d.properties[name]; !exists {
		d.names = append(d.names, name)
	}
	d.properties[name] = value
}

// AddChild appends child and takes ownership of it.
func (d *SettingDefinition) AddChild(child *SettingDefinition) {
	child.parent = d
	child.setContainer(d.container)
	d.children = append(d.children, child)
}

func (d *SettingDefinition) setContainer(c *DefinitionContainer) {
	d.container = c
	for _, child := range d.children {
		child.setContainer(c)
	}
}

func (d *SettingDefinition) addRelation(r *SettingRelation) {
	d.relations = append(d.relations, r)
}

// FindDefinitions searches the descendants depth-first for definitions
// matching every entry of q. The "key" entry matches the setting key.
func (d *SettingDefinition) FindDefinitions(q Query) []*SettingDefinition {
	var found []*SettingDefinition
	for _, child := range d.children {
		if child.matches(q) {
			found = append(found, child)
		}
		found = append(found, child.FindDefinitions(q)...)
	}
	return found
}

func (d *SettingDefinition) matches(q Query) bool {
	for name, want := range q {
		if name == "key" {
			if want != Wildcard && d.key != want {
				return false
			}
			continue
		}
		value, ok := d.properties[name]
		if !ok {
			return false
		}
		if want == Wildcard {
			continue
		}
		if !valuesEqual(value.Raw(), want) {
			return false
		}
	}
	return true
}

// IsDescendant reports whether key names a definition below d.
func (d *SettingDefinition) IsDescendant(key string) bool {
	for _, child := range d.children {
		if child.key == key || child.IsDescendant(key) {
			return true
		}
	}
	return false
}

// IsAncestor reports whether key names a definition above d.
func (d *SettingDefinition) IsAncestor(key string) bool {
	for p := d.parent; p != nil; p = p.parent {
		if p.key == key {
			return true
		}
	}
	return false
}

// Ancestors returns the keys from the root down to d's parent.
func (d *SettingDefinition) Ancestors() []string {
	var keys []string
	for p := d.parent; p != nil; p = p.parent {
		keys = append([]string{p.key}, keys...)
	}
	return keys
}

// Serialize returns the definition as an ordered document. Formulas are
// written as their source text and children as a nested mapping.
func (d *SettingDefinition) Serialize() *layering.Document {
	doc := layering.NewDocument()
	for _, name := range d.names {
		value := d.properties[name]
		if fn := value.Function(); fn != nil {
			doc.Set(name, fn.Code())
			continue
		}
		doc.Set(name, layering.Clone(value.Literal()))
	}
	if len(d.children) > 0 {
		children := layering.NewDocument()
		for _, child := range d.children {
			children.Set(child.key, child.Serialize())
		}
		doc.Set("children", children)
	}
	return doc
}

// parseDefinition builds a definition tree from doc.
func parseDefinition(key string, doc *layering.Document, container *DefinitionContainer, parent *SettingDefinition, fnOpts []FunctionOption) (*SettingDefinition, error) {
	def := NewSettingDefinition(key, container, parent)
	for _, name := range doc.Keys() {
		raw, _ := doc.Get(name)
		if name == "children" {
			if raw == nil {
				continue
			}
			children, ok := raw.(*layering.Document)
			if !ok {
				return nil, invalidDocument("setting %q: children must be a mapping", key)
			}
			for _, childKey := range children.Keys() {
				childDoc, ok := children.Document(childKey)
				if !ok {
					return nil, invalidDocument("setting %q: child %q must be a mapping", key, childKey)
				}
				child, err := parseDefinition(childKey, childDoc, container, def, fnOpts)
				if err != nil {
					return nil, err
				}
				def.children = append(def.children, child)
			}
			continue
		}
		value, err := parsePropertyValue(name, raw, fnOpts)
		if err != nil {
			return nil, fmt.Errorf("setting %q property %q: %w", key, name, err)
		}
		def.SetProperty(name, value)
	}
	for _, name := range RequiredDefinitionProperties() {
		if !def.HasProperty(name) {
			return nil, fmt.Errorf("%w: setting %q has no %q", ErrMissingAttribute, key, name)
		}
	}
	return def, nil
}

func parsePropertyValue(name string, raw any, fnOpts []FunctionOption) (PropertyValue, error) {
	code, isString := raw.(string)
	switch DefinitionPropertyKind(name) {
	case PropertyFunction:
		if !isString {
			return Literal(raw), nil
		}
		fn, err := ParseSettingFunction(code, fnOpts...)
		if err != nil {
			return PropertyValue{}, err
		}
		return Formula(fn), nil
	case PropertyString, PropertyTranslatedString:
		if !isString && raw != nil {
			return Literal(fmt.Sprint(raw)), nil
		}
		return Literal(raw), nil
	default:
		return Literal(raw), nil
	}
}
