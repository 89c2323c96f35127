package settings

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"

	"github.com/goliatone/go-settings/layering"
	"github.com/hashicorp/go-hclog"
)

// DefinitionVersion is the supported definition document version.
const DefinitionVersion = 2

// DefinitionContainer owns a forest of setting definitions loaded from a
// definition document. It is always read-only.
type DefinitionContainer struct {
	id             string
	name           string
	path           string
	metadata       Metadata
	definitions    []*SettingDefinition
	inheritedFiles []string
	cache          map[string]*SettingDefinition

	cfg    config
	logger hclog.Logger

	propertyChanged Signal[PropertyChange]
}

// NewDefinitionContainer creates an empty container. WithLocator is needed to
// deserialize documents that inherit from another document.
func NewDefinitionContainer(id string, opts ...Option) *DefinitionContainer {
	cfg := applyOptions(opts)
	return &DefinitionContainer{
		id:       id,
		metadata: Metadata{},
		cache:    map[string]*SettingDefinition{},
		cfg:      cfg,
		logger:   cfg.loggerOrDefault("definition").With("container", id),
	}
}

func (c *DefinitionContainer) sealed() {}

func (c *DefinitionContainer) ID() string          { return c.id }
func (c *DefinitionContainer) Name() string        { return c.name }
func (c *DefinitionContainer) Kind() ContainerKind { return KindDefinition }
func (c *DefinitionContainer) ReadOnly() bool      { return true }
func (c *DefinitionContainer) Path() string        { return c.path }
func (c *DefinitionContainer) SetPath(path string) { c.path = path }

// PropertyChanged never fires; definitions are immutable once loaded.
func (c *DefinitionContainer) PropertyChanged() *Signal[PropertyChange] {
	return &c.propertyChanged
}

func (c *DefinitionContainer) Metadata() Metadata {
	return c.metadata.Clone()
}

func (c *DefinitionContainer) MetadataEntry(key string, fallback any) any {
	if value, ok := c.metadata[key]; ok {
		return value
	}
	return fallback
}

// InheritedFiles lists the documents merged in through inherits, nearest
// parent last.
func (c *DefinitionContainer) InheritedFiles() []string {
	return append([]string(nil), c.inheritedFiles...)
}

// Definitions returns the top-level definitions in document order.
func (c *DefinitionContainer) Definitions() []*SettingDefinition {
	return append([]*SettingDefinition(nil), c.definitions...)
}

// AddDefinition appends a top-level definition and rebuilds relations.
func (c *DefinitionContainer) AddDefinition(def *SettingDefinition) error {
	def.parent = nil
	def.setContainer(c)
	definitions := append(c.Definitions(), def)
	cache, err := indexDefinitions(definitions)
	if err != nil {
		return err
	}
	c.definitions = definitions
	c.cache = cache
	c.updateRelations()
	return nil
}

// AllKeys returns every setting key in the tree, sorted.
func (c *DefinitionContainer) AllKeys() []string {
	keys := make([]string, 0, len(c.cache))
	for key := range c.cache {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// FindDefinitions searches the whole forest depth-first. An empty query
// returns every definition.
func (c *DefinitionContainer) FindDefinitions(q Query) []*SettingDefinition {
	if key, ok := q["key"].(string); ok && len(q) == 1 && key != Wildcard {
		if def, ok := c.cache[key]; ok {
			return []*SettingDefinition{def}
		}
		return nil
	}
	var found []*SettingDefinition
	for _, def := range c.definitions {
		if def.matches(q) {
			found = append(found, def)
		}
		found = append(found, def.FindDefinitions(q)...)
	}
	return found
}

// Definition returns the definition for key, or nil.
func (c *DefinitionContainer) Definition(key string) *SettingDefinition {
	return c.cache[key]
}

// RawProperty returns the stored property. A missing "value" falls back to
// "default_value".
func (c *DefinitionContainer) RawProperty(key, property string) (PropertyValue, bool) {
	def := c.cache[key]
	if def == nil {
		return PropertyValue{}, false
	}
	if value, ok := def.Property(property); ok {
		return value, true
	}
	if property == "value" {
		return def.Property("default_value")
	}
	return PropertyValue{}, false
}

// Property evaluates the property against the container itself. Evaluation
// failures are logged and reported as nil.
func (c *DefinitionContainer) Property(key, property string) any {
	value, err := resolveProperty(c, key, property)
	if err != nil {
		c.logger.Warn("property evaluation failed", "key", key, "property", property, "error", err)
		return nil
	}
	return value
}

// PropertyIn evaluates the property against ctx, typically the stack the
// container is part of.
func (c *DefinitionContainer) PropertyIn(ctx ValueProvider, key, property string) (any, error) {
	raw, ok := c.RawProperty(key, property)
	if !ok {
		return nil, nil
	}
	if ctx == nil {
		ctx = c
	}
	return evaluateIn(ctx, raw, key, property)
}

func (c *DefinitionContainer) HasProperty(key, property string) bool {
	_, ok := c.RawProperty(key, property)
	return ok
}

// Serialize writes the merged document. The inherits reference is not kept.
func (c *DefinitionContainer) Serialize() (string, error) {
	metadata := layering.NewDocument()
	for _, key := range c.metadata.Keys() {
		metadata.Set(key, c.metadata[key])
	}
	settings := layering.NewDocument()
	for _, def := range c.definitions {
		settings.Set(def.Key(), def.Serialize())
	}

	doc := layering.NewDocument()
	doc.Set("name", c.name)
	doc.Set("version", DefinitionVersion)
	doc.Set("metadata", metadata)
	doc.Set("settings", settings)

	out, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return "", fmt.Errorf("settings: serialize definition %q: %w", c.id, err)
	}
	return string(out), nil
}

// Deserialize replaces the container contents with the parsed document. The
// container is left untouched when any step fails.
func (c *DefinitionContainer) Deserialize(serialized string) error {
	doc, inherited, err := c.resolveDocument([]byte(serialized), map[string]struct{}{})
	if err != nil {
		return err
	}
	c.applyOverrides(doc)

	name, _ := doc.String("name")
	metadataDoc, ok := doc.Document("metadata")
	if !ok {
		return invalidDocument("definition %q: missing metadata", c.id)
	}
	settingsDoc, ok := doc.Document("settings")
	if !ok {
		return invalidDocument("definition %q: missing settings", c.id)
	}

	fnOpts := []FunctionOption{
		FunctionWithEvaluator(c.cfg.evaluatorOrDefault()),
		FunctionWithLogger(c.cfg.evaluatorLoggerOrDefault()),
	}
	definitions := make([]*SettingDefinition, 0, settingsDoc.Len())
	for _, key := range settingsDoc.Keys() {
		settingDoc, ok := settingsDoc.Document(key)
		if !ok {
			return invalidDocument("definition %q: setting %q must be a mapping", c.id, key)
		}
		def, err := parseDefinition(key, settingDoc, c, nil, fnOpts)
		if err != nil {
			return err
		}
		definitions = append(definitions, def)
	}
	cache, err := indexDefinitions(definitions)
	if err != nil {
		return err
	}

	c.name = name
	c.metadata = Metadata(metadataDoc.ToMap())
	c.definitions = definitions
	c.cache = cache
	c.inheritedFiles = inherited
	c.updateRelations()
	return nil
}

// resolveDocument parses data and merges it over its inherits chain.
func (c *DefinitionContainer) resolveDocument(data []byte, seen map[string]struct{}) (*layering.Document, []string, error) {
	doc, err := layering.Parse(data)
	if err != nil {
		return nil, nil, invalidDocument("definition %q: %v", c.id, err)
	}
	if err := verifyDefinitionDocument(doc); err != nil {
		return nil, nil, err
	}

	parentName, ok := doc.String("inherits")
	if !ok || parentName == "" {
		return doc, nil, nil
	}
	if _, loop := seen[parentName]; loop {
		return nil, nil, invalidDocument("definition %q: inheritance loop through %q", c.id, parentName)
	}
	seen[parentName] = struct{}{}

	if c.cfg.locator == nil {
		return nil, nil, &fs.PathError{Op: "locate", Path: parentName + ResourceDefinitions.Suffix(), Err: fs.ErrNotExist}
	}
	path, err := c.cfg.locator.Locate(ResourceDefinitions, parentName)
	if err != nil {
		return nil, nil, err
	}
	parentData, err := c.cfg.locator.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	parent, inherited, err := c.resolveDocument(parentData, seen)
	if err != nil {
		return nil, nil, err
	}

	merged := layering.Merge(parent, doc)
	merged.Delete("inherits")
	return merged, append(inherited, path), nil
}

func verifyDefinitionDocument(doc *layering.Document) error {
	if !doc.Has("version") {
		return invalidDocument("definition document has no version")
	}
	if !doc.Has("name") {
		return invalidDocument("definition document has no name")
	}
	raw, _ := doc.Get("version")
	version, ok := toFloat(raw)
	if !ok {
		return invalidDocument("definition version %v is not a number", raw)
	}
	if version != float64(DefinitionVersion) {
		return incorrectVersion("definition", raw, DefinitionVersion)
	}
	return nil
}

// applyOverrides copies each entry of the top-level overrides mapping onto the
// matching setting, at any depth.
func (c *DefinitionContainer) applyOverrides(doc *layering.Document) {
	overrides, ok := doc.Document("overrides")
	if !ok {
		return
	}
	doc.Delete("overrides")
	settings, _ := doc.Document("settings")
	for _, key := range overrides.Keys() {
		target, found := layering.Find(settings, key)
		if !found {
			c.logger.Warn("override for unknown setting", "key", key)
			continue
		}
		properties, ok := overrides.Document(key)
		if !ok {
			continue
		}
		for _, name := range properties.Keys() {
			value, _ := properties.Get(name)
			target.Set(name, layering.Clone(value))
		}
	}
}

func indexDefinitions(definitions []*SettingDefinition) (map[string]*SettingDefinition, error) {
	cache := map[string]*SettingDefinition{}
	var walk func(defs []*SettingDefinition) error
	walk = func(defs []*SettingDefinition) error {
		for _, def := range defs {
			if _, dup := cache[def.key]; dup {
				return invalidDocument("duplicate setting key %q", def.key)
			}
			cache[def.key] = def
			if err := walk(def.children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(definitions); err != nil {
		return nil, err
	}
	return cache, nil
}

// updateRelations derives relation pairs from every formula property. Self
// references and unknown keys are skipped.
func (c *DefinitionContainer) updateRelations() {
	all := c.FindDefinitions(Query{})
	for _, def := range all {
		def.relations = nil
	}
	for _, def := range all {
		for _, name := range def.names {
			fn := def.properties[name].Function()
			if fn == nil {
				continue
			}
			for _, key := range fn.UsedSettingKeys() {
				if key == def.key {
					continue
				}
				other := c.cache[key]
				if other == nil {
					continue
				}
				def.addRelation(&SettingRelation{Owner: def, Target: other, Type: RequiresTarget, Role: name})
				other.addRelation(&SettingRelation{Owner: other, Target: def, Type: RequiredByTarget, Role: name})
			}
		}
	}
}
