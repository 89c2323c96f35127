package settings

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/copystructure"
	"gopkg.in/ini.v1"
)

// InstanceVersion is the supported instance document version.
const InstanceVersion = 2

// InstanceState records how a setting instance got its value.
type InstanceState int

const (
	InstanceDefault InstanceState = iota + 1
	InstanceCalculated
	InstanceUser
)

func (s InstanceState) String() string {
	switch s {
	case InstanceDefault:
		return "default"
	case InstanceCalculated:
		return "calculated"
	case InstanceUser:
		return "user"
	default:
		return "unknown"
	}
}

// SettingInstance holds the overridden properties of one setting.
type SettingInstance struct {
	definition *SettingDefinition
	state      InstanceState
	names      []string
	properties map[string]PropertyValue
}

func newSettingInstance(def *SettingDefinition) *SettingInstance {
	return &SettingInstance{
		definition: def,
		state:      InstanceDefault,
		properties: map[string]PropertyValue{},
	}
}

func (i *SettingInstance) Definition() *SettingDefinition { return i.definition }
func (i *SettingInstance) State() InstanceState          { return i.state }

// Property returns the named property.
func (i *SettingInstance) Property(name string) (PropertyValue, bool) {
	value, ok := i.properties[name]
	return value, ok
}

// PropertyNames returns the stored property names in insertion order.
func (i *SettingInstance) PropertyNames() []string {
	return append([]string(nil), i.names...)
}

func (i *SettingInstance) set(name string, value PropertyValue) {
	if _, exists := i.properties[name]; !exists {
		i.names = append(i.names, name)
	}
	i.properties[name] = value
}

func (i *SettingInstance) clone() *SettingInstance {
	out := newSettingInstance(i.definition)
	out.state = i.state
	for _, name := range i.names {
		out.set(name, i.properties[name])
	}
	return out
}

// InstanceContainer stores setting overrides on top of a definition
// container. It is the layer providers write into.
type InstanceContainer struct {
	id         string
	name       string
	path       string
	metadata   Metadata
	definition *DefinitionContainer
	keys       []string
	instances  map[string]*SettingInstance
	dirty      bool
	readOnly   bool

	cfg    config
	logger hclog.Logger

	propertyChanged Signal[PropertyChange]
	nameChanged     Signal[string]
	metadataChanged Signal[Container]
}

// NewInstanceContainer creates an empty container. An empty id is replaced
// with a random UUID.
func NewInstanceContainer(id string, opts ...Option) *InstanceContainer {
	if id == "" {
		id = uuid.NewString()
	}
	cfg := applyOptions(opts)
	return &InstanceContainer{
		id:        id,
		name:      id,
		metadata:  Metadata{},
		instances: map[string]*SettingInstance{},
		cfg:       cfg,
		logger:    cfg.loggerOrDefault("instance").With("container", id),
	}
}

func (c *InstanceContainer) sealed() {}

func (c *InstanceContainer) ID() string          { return c.id }
func (c *InstanceContainer) Name() string        { return c.name }
func (c *InstanceContainer) Kind() ContainerKind { return KindInstance }
func (c *InstanceContainer) ReadOnly() bool      { return c.readOnly }
func (c *InstanceContainer) Path() string        { return c.path }
func (c *InstanceContainer) SetPath(path string) { c.path = path }
func (c *InstanceContainer) Dirty() bool         { return c.dirty }

func (c *InstanceContainer) PropertyChanged() *Signal[PropertyChange] { return &c.propertyChanged }
func (c *InstanceContainer) NameChanged() *Signal[string]             { return &c.nameChanged }
func (c *InstanceContainer) MetadataChanged() *Signal[Container]      { return &c.metadataChanged }

func (c *InstanceContainer) SetReadOnly(readOnly bool) { c.readOnly = readOnly }
func (c *InstanceContainer) SetDirty(dirty bool)       { c.dirty = dirty }

// SetName emits NameChanged when the name differs.
func (c *InstanceContainer) SetName(name string) {
	if name == c.name {
		return
	}
	c.name = name
	c.dirty = true
	c.nameChanged.Emit(name)
}

func (c *InstanceContainer) Metadata() Metadata {
	return c.metadata.Clone()
}

func (c *InstanceContainer) MetadataEntry(key string, fallback any) any {
	if value, ok := c.metadata[key]; ok {
		return value
	}
	return fallback
}

// SetMetadataEntry stores value under key and emits MetadataChanged when it
// differs from the current entry.
func (c *InstanceContainer) SetMetadataEntry(key string, value any) {
	if current, ok := c.metadata[key]; ok && valuesEqual(current, value) {
		return
	}
	c.metadata[key] = value
	c.dirty = true
	c.metadataChanged.Emit(c)
}

// Definition returns the definition container instances are created from.
func (c *InstanceContainer) Definition() *DefinitionContainer {
	return c.definition
}

// SetDefinition changes the definition container. Existing instances keep
// pointing at their original definitions.
func (c *InstanceContainer) SetDefinition(def *DefinitionContainer) {
	c.definition = def
}

// Keys returns the keys that have an instance, in insertion order.
func (c *InstanceContainer) Keys() []string {
	return append([]string(nil), c.keys...)
}

// Instance returns the instance for key, or nil.
func (c *InstanceContainer) Instance(key string) *SettingInstance {
	return c.instances[key]
}

// RawProperty returns the stored property. The "state" property reports the
// instance state.
func (c *InstanceContainer) RawProperty(key, property string) (PropertyValue, bool) {
	instance := c.instances[key]
	if instance == nil {
		return PropertyValue{}, false
	}
	if property == "state" {
		return Literal(instance.state), true
	}
	return instance.Property(property)
}

func (c *InstanceContainer) Property(key, property string) any {
	value, err := resolveProperty(c, key, property)
	if err != nil {
		c.logger.Warn("property evaluation failed", "key", key, "property", property, "error", err)
		return nil
	}
	return value
}

func (c *InstanceContainer) HasProperty(key, property string) bool {
	_, ok := c.RawProperty(key, property)
	return ok
}

// SetProperty stores value for key. Strings starting with "=" become formulas.
// Setting "state" to an InstanceState changes the state directly.
func (c *InstanceContainer) SetProperty(key, property string, value any) error {
	if c.readOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, c.id)
	}
	instance := c.instances[key]
	if instance == nil {
		def := c.lookupDefinition(key)
		if def == nil {
			return fmt.Errorf("%w: %q in %s", ErrDefinitionNotFound, key, c.id)
		}
		instance = newSettingInstance(def)
		c.instances[key] = instance
		c.keys = append(c.keys, key)
	}

	if property == "state" {
		state, ok := value.(InstanceState)
		if !ok {
			return fmt.Errorf("settings: state must be an InstanceState, got %T", value)
		}
		if instance.state != state {
			instance.state = state
			c.dirty = true
			c.propertyChanged.Emit(PropertyChange{Key: key, Property: "state"})
		}
		return nil
	}

	next, err := c.propertyValue(value)
	if err != nil {
		return err
	}
	if current, ok := instance.properties[property]; ok && valuesEqual(current.Raw(), next.Raw()) {
		return nil
	}
	instance.set(property, next)
	c.dirty = true

	if property == "value" && instance.state != InstanceUser {
		instance.state = InstanceUser
		c.propertyChanged.Emit(PropertyChange{Key: key, Property: "state"})
	}
	c.propertyChanged.Emit(PropertyChange{Key: key, Property: property})
	c.notifyDependents(instance.definition)
	return nil
}

// RemoveInstance drops the override for key and announces the value, state
// and validation state as changed.
func (c *InstanceContainer) RemoveInstance(key string) {
	instance, ok := c.instances[key]
	if !ok {
		return
	}
	delete(c.instances, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i:i], c.keys[i+1:]...)
			break
		}
	}
	c.dirty = true
	c.propertyChanged.Emit(PropertyChange{Key: key, Property: "value"})
	c.propertyChanged.Emit(PropertyChange{Key: key, Property: "state"})
	c.propertyChanged.Emit(PropertyChange{Key: key, Property: "validationState"})
	c.notifyDependents(instance.definition)
}

// Clear removes every instance.
func (c *InstanceContainer) Clear() {
	for _, key := range c.Keys() {
		c.RemoveInstance(key)
	}
}

// Duplicate returns a deep copy under a new id and name. An empty id is
// replaced with a random UUID.
func (c *InstanceContainer) Duplicate(newID, newName string) (*InstanceContainer, error) {
	if newID == "" {
		newID = uuid.NewString()
	}
	copied, err := copystructure.Copy(map[string]any(c.metadata))
	if err != nil {
		return nil, fmt.Errorf("settings: duplicate %s metadata: %w", c.id, err)
	}
	out := &InstanceContainer{
		id:         newID,
		name:       newName,
		metadata:   Metadata(copied.(map[string]any)),
		definition: c.definition,
		keys:       c.Keys(),
		instances:  make(map[string]*SettingInstance, len(c.instances)),
		readOnly:   false,
		dirty:      true,
		cfg:        c.cfg,
		logger:     c.cfg.loggerOrDefault("instance").With("container", newID),
	}
	for key, instance := range c.instances {
		out.instances[key] = instance.clone()
	}
	return out, nil
}

// Less orders containers by their "weight" metadata entry.
func (c *InstanceContainer) Less(other *InstanceContainer) bool {
	return containerWeight(c) < containerWeight(other)
}

func (c *InstanceContainer) lookupDefinition(key string) *SettingDefinition {
	if c.definition == nil {
		return nil
	}
	return c.definition.Definition(key)
}

func (c *InstanceContainer) propertyValue(value any) (PropertyValue, error) {
	switch v := value.(type) {
	case PropertyValue:
		return v, nil
	case *SettingFunction:
		return Formula(v), nil
	case string:
		if strings.HasPrefix(v, "=") {
			fn, err := ParseSettingFunction(v[1:], c.functionOptions()...)
			if err != nil {
				return PropertyValue{}, err
			}
			return Formula(fn), nil
		}
	}
	return Literal(value), nil
}

func (c *InstanceContainer) functionOptions() []FunctionOption {
	return []FunctionOption{
		FunctionWithEvaluator(c.cfg.evaluatorOrDefault()),
		FunctionWithLogger(c.cfg.evaluatorLoggerOrDefault()),
	}
}

// notifyDependents announces every setting that transitively requires def,
// once per setting and role.
func (c *InstanceContainer) notifyDependents(def *SettingDefinition) {
	if def == nil {
		return
	}
	seen := map[PropertyChange]struct{}{}
	var walk func(d *SettingDefinition)
	walk = func(d *SettingDefinition) {
		for _, rel := range d.relations {
			if rel.Type != RequiredByTarget || rel.Target == nil {
				continue
			}
			change := PropertyChange{Key: rel.Target.Key(), Property: rel.Role}
			if _, done := seen[change]; done {
				continue
			}
			seen[change] = struct{}{}
			c.propertyChanged.Emit(change)
			walk(rel.Target)
		}
	}
	walk(def)
}

var iniOptions = ini.LoadOptions{
	IgnoreInlineComment:     true,
	IgnoreContinuation:      true,
	PreserveSurroundedQuote: true,
}

// Serialize writes the container as an INI document.
func (c *InstanceContainer) Serialize() (string, error) {
	file := ini.Empty(iniOptions)
	general, _ := file.NewSection("general")
	_, _ = general.NewKey("version", strconv.Itoa(InstanceVersion))
	_, _ = general.NewKey("name", encodeINIValue(c.name))
	definitionID := ""
	if c.definition != nil {
		definitionID = c.definition.ID()
	}
	_, _ = general.NewKey("definition", encodeINIValue(definitionID))

	metadata, _ := file.NewSection("metadata")
	for _, key := range c.metadata.Keys() {
		if _, err := metadata.NewKey(key, formatMetadataValue(c.metadata[key])); err != nil {
			return "", fmt.Errorf("settings: serialize %s metadata %q: %w", c.id, key, err)
		}
	}

	values, _ := file.NewSection("values")
	keys := c.Keys()
	sort.Strings(keys)
	for _, key := range keys {
		value, ok := c.instances[key].Property("value")
		if !ok {
			continue
		}
		if _, err := values.NewKey(key, encodeINIValue(FormatSettingValue(value.Raw()))); err != nil {
			return "", fmt.Errorf("settings: serialize %s value %q: %w", c.id, key, err)
		}
	}

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("settings: serialize instance %s: %w", c.id, err)
	}
	return buf.String(), nil
}

// Deserialize replaces the container contents. Nothing changes when the
// document is malformed or its definition cannot be resolved.
func (c *InstanceContainer) Deserialize(serialized string) error {
	file, err := ini.LoadSources(iniOptions, []byte(serialized))
	if err != nil {
		return invalidDocument("instance %s: %v", c.id, err)
	}
	general, err := file.GetSection("general")
	if err != nil {
		return invalidDocument("instance %s: missing [general]", c.id)
	}
	for _, required := range []string{"version", "name", "definition"} {
		if !general.HasKey(required) {
			return invalidDocument("instance %s: missing %q", c.id, required)
		}
	}
	version, err := general.Key("version").Int()
	if err != nil {
		return invalidDocument("instance %s: version %q", c.id, general.Key("version").String())
	}
	if version != InstanceVersion {
		return incorrectVersion("instance", version, InstanceVersion)
	}

	definitionID := decodeINIValue(general.Key("definition").Value())
	definition, err := c.resolveDefinition(definitionID)
	if err != nil {
		return err
	}

	metadata := Metadata{}
	if section, err := file.GetSection("metadata"); err == nil {
		for _, key := range section.Keys() {
			metadata[key.Name()] = parseMetadataValue(key.Value())
		}
	}

	instances := map[string]*SettingInstance{}
	var keys []string
	if section, err := file.GetSection("values"); err == nil {
		for _, entry := range section.Keys() {
			key := entry.Name()
			def := definition.Definition(key)
			if def == nil {
				c.logger.Warn("value for unknown setting", "key", key, "definition", definitionID)
				continue
			}
			value, err := c.parseValue(def, decodeINIValue(entry.Value()))
			if err != nil {
				return invalidDocument("instance %s: setting %q: %v", c.id, key, err)
			}
			instance := newSettingInstance(def)
			instance.state = InstanceUser
			instance.set("value", value)
			instances[key] = instance
			keys = append(keys, key)
		}
	}

	c.name = decodeINIValue(general.Key("name").Value())
	c.metadata = metadata
	c.definition = definition
	c.instances = instances
	c.keys = keys
	c.dirty = false
	return nil
}

func (c *InstanceContainer) parseValue(def *SettingDefinition, text string) (PropertyValue, error) {
	if strings.HasPrefix(text, "=") {
		fn, err := ParseSettingFunction(text[1:], c.functionOptions()...)
		if err != nil {
			return PropertyValue{}, err
		}
		return Formula(fn), nil
	}
	value, err := ParseSettingValue(def.Type(), text)
	if err != nil {
		return PropertyValue{}, err
	}
	return Literal(value), nil
}

func (c *InstanceContainer) resolveDefinition(id string) (*DefinitionContainer, error) {
	if c.definition != nil && c.definition.ID() == id {
		return c.definition, nil
	}
	if c.cfg.registry == nil {
		return nil, fmt.Errorf("%w: %q (no registry)", ErrDefinitionNotFound, id)
	}
	definition, ok := c.cfg.registry.FindContainer(id).(*DefinitionContainer)
	if !ok || definition == nil {
		return nil, fmt.Errorf("%w: %q", ErrDefinitionNotFound, id)
	}
	return definition, nil
}
