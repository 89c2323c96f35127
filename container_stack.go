package settings

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-settings/pkg/activity"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/ini.v1"
)

// StackVersion is the supported stack document version.
const StackVersion = 3

// ContainerStack resolves properties across an ordered list of containers.
// Index 0 has the highest priority. When no container provides a property,
// the lookup continues in the next stack.
type ContainerStack struct {
	id         string
	name       string
	path       string
	metadata   Metadata
	containers []Container
	forwards   []Subscription
	next       *ContainerStack
	nextSub    Subscription
	readOnly   bool
	dirty      bool

	cfg    config
	logger hclog.Logger

	propertyChanged   Signal[PropertyChange]
	containersChanged Signal[ContainersChange]
	nameChanged       Signal[string]
	metadataChanged   Signal[Container]
}

// NewContainerStack creates an empty stack. WithRegistry is needed to
// deserialize stack documents.
func NewContainerStack(id string, opts ...Option) *ContainerStack {
	cfg := applyOptions(opts)
	return &ContainerStack{
		id:       id,
		name:     id,
		metadata: Metadata{},
		cfg:      cfg,
		logger:   cfg.loggerOrDefault("stack").With("stack", id),
	}
}

func (s *ContainerStack) sealed() {}

func (s *ContainerStack) ID() string          { return s.id }
func (s *ContainerStack) Name() string        { return s.name }
func (s *ContainerStack) Kind() ContainerKind { return KindStack }
func (s *ContainerStack) ReadOnly() bool      { return s.readOnly }
func (s *ContainerStack) Path() string        { return s.path }
func (s *ContainerStack) SetPath(path string) { s.path = path }
func (s *ContainerStack) Dirty() bool         { return s.dirty }

func (s *ContainerStack) SetReadOnly(readOnly bool) { s.readOnly = readOnly }
func (s *ContainerStack) SetDirty(dirty bool)       { s.dirty = dirty }

// PropertyChanged forwards property changes of every owned container and of
// the next stack.
func (s *ContainerStack) PropertyChanged() *Signal[PropertyChange]     { return &s.propertyChanged }
func (s *ContainerStack) ContainersChanged() *Signal[ContainersChange] { return &s.containersChanged }
func (s *ContainerStack) NameChanged() *Signal[string]                 { return &s.nameChanged }
func (s *ContainerStack) MetadataChanged() *Signal[Container]          { return &s.metadataChanged }

// SetName emits NameChanged only when the name differs.
func (s *ContainerStack) SetName(name string) {
	if name == s.name {
		return
	}
	s.name = name
	s.dirty = true
	s.nameChanged.Emit(name)
}

func (s *ContainerStack) Metadata() Metadata {
	return s.metadata.Clone()
}

func (s *ContainerStack) MetadataEntry(key string, fallback any) any {
	if value, ok := s.metadata[key]; ok {
		return value
	}
	return fallback
}

// SetMetadataEntry emits MetadataChanged when the entry changes.
func (s *ContainerStack) SetMetadataEntry(key string, value any) {
	if current, ok := s.metadata[key]; ok && valuesEqual(current, value) {
		return
	}
	s.metadata[key] = value
	s.dirty = true
	s.metadataChanged.Emit(s)
}

// RemoveMetadataEntry emits MetadataChanged when key was present.
func (s *ContainerStack) RemoveMetadataEntry(key string) {
	if _, ok := s.metadata[key]; !ok {
		return
	}
	delete(s.metadata, key)
	s.dirty = true
	s.metadataChanged.Emit(s)
}

// Len returns the number of owned containers.
func (s *ContainerStack) Len() int {
	return len(s.containers)
}

// Containers returns the owned containers in priority order.
func (s *ContainerStack) Containers() []Container {
	return append([]Container(nil), s.containers...)
}

// NextStack returns the stack consulted after the owned containers.
func (s *ContainerStack) NextStack() *ContainerStack {
	return s.next
}

// Top returns the highest priority container, or nil for an empty stack.
func (s *ContainerStack) Top() Container {
	if len(s.containers) == 0 {
		return nil
	}
	return s.containers[0]
}

// Bottom returns the lowest priority container, or nil for an empty stack.
func (s *ContainerStack) Bottom() Container {
	if len(s.containers) == 0 {
		return nil
	}
	return s.containers[len(s.containers)-1]
}

// RawProperty returns the first non-nil property along the containers and
// then the next stack chain.
func (s *ContainerStack) RawProperty(key, property string) (PropertyValue, bool) {
	return s.rawProperty(key, property, map[*ContainerStack]struct{}{})
}

func (s *ContainerStack) rawProperty(key, property string, visiting map[*ContainerStack]struct{}) (PropertyValue, bool) {
	if _, loop := visiting[s]; loop {
		return PropertyValue{}, false
	}
	visiting[s] = struct{}{}
	defer delete(visiting, s)

	for _, c := range s.containers {
		var value PropertyValue
		var ok bool
		if nested, isStack := c.(*ContainerStack); isStack {
			value, ok = nested.rawProperty(key, property, visiting)
		} else {
			value, ok = c.RawProperty(key, property)
		}
		if ok && value.Raw() != nil {
			return value, true
		}
	}
	if s.next != nil {
		return s.next.rawProperty(key, property, visiting)
	}
	return PropertyValue{}, false
}

// ResolveProperty returns the effective property with formulas evaluated
// against this stack.
func (s *ContainerStack) ResolveProperty(key, property string) (any, error) {
	return resolveProperty(s, key, property)
}

// Property returns the effective property, or nil. Evaluation failures are
// logged.
func (s *ContainerStack) Property(key, property string) any {
	value, err := s.ResolveProperty(key, property)
	if err != nil {
		s.logger.Warn("property evaluation failed", "key", key, "property", property, "error", err)
		return nil
	}
	return value
}

func (s *ContainerStack) HasProperty(key, property string) bool {
	_, ok := s.RawProperty(key, property)
	return ok
}

// FindDefinition returns the first definition for key along the chain.
func (s *ContainerStack) FindDefinition(key string) *SettingDefinition {
	for _, level := range s.flatten() {
		switch c := level.container.(type) {
		case *DefinitionContainer:
			if def := c.Definition(key); def != nil {
				return def
			}
		case *InstanceContainer:
			if c.Definition() != nil {
				if def := c.Definition().Definition(key); def != nil {
					return def
				}
			}
		}
	}
	return nil
}

// ResolveWithTrace resolves a property and reports what every flattened
// level holds.
func (s *ContainerStack) ResolveWithTrace(key, property string) (any, Trace, error) {
	trace := Trace{Key: key, Property: property, Winner: -1}
	for i, level := range s.flatten() {
		entry := Provenance{
			Level:         i,
			ContainerID:   level.container.ID(),
			ContainerName: level.container.Name(),
			Kind:          level.container.Kind().String(),
		}
		if raw, ok := level.container.RawProperty(key, property); ok && raw.Raw() != nil {
			entry.Found = true
			if fn := raw.Function(); fn != nil {
				entry.Formula = fn.Code()
			} else {
				entry.Value = raw.Literal()
			}
			if trace.Winner < 0 {
				trace.Winner = i
			}
		}
		trace.Levels = append(trace.Levels, entry)
	}
	value, err := s.ResolveProperty(key, property)
	if err != nil {
		return nil, trace, err
	}
	if winner, ok := trace.WinningLevel(); ok && winner.Formula != "" {
		trace.Levels[trace.Winner].Value = value
	}
	return value, trace, nil
}

// stackLevel is one owned container of a stack in the flattened chain.
type stackLevel struct {
	stack     *ContainerStack
	index     int
	container Container
}

// flatten lists the containers of this stack followed by those of each next
// stack. Nested stacks count as a single level.
func (s *ContainerStack) flatten() []stackLevel {
	var levels []stackLevel
	seen := map[*ContainerStack]struct{}{}
	for current := s; current != nil; current = current.next {
		if _, loop := seen[current]; loop {
			break
		}
		seen[current] = struct{}{}
		for i, c := range current.containers {
			levels = append(levels, stackLevel{stack: current, index: i, container: c})
		}
	}
	return levels
}

// IndexFrom converts a dynamically typed index. Non-integer values fail with
// ErrInvalidIndexType.
func IndexFrom(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("%w: got %T", ErrInvalidIndexType, value)
	}
}

// Container returns the container at index.
func (s *ContainerStack) Container(index int) (Container, error) {
	if err := s.checkIndex(index); err != nil {
		return nil, err
	}
	return s.containers[index], nil
}

// AddContainer appends c with the lowest priority.
func (s *ContainerStack) AddContainer(c Container) error {
	return s.InsertContainer(len(s.containers), c)
}

// InsertContainer inserts c at index, 0 <= index <= len.
func (s *ContainerStack) InsertContainer(index int, c Container) error {
	if index < 0 || index > len(s.containers) {
		return indexOutOfRange(index, len(s.containers)+1)
	}
	if err := s.checkCandidate(c); err != nil {
		return err
	}
	s.containers = append(s.containers, nil)
	copy(s.containers[index+1:], s.containers[index:])
	s.containers[index] = c
	s.forwards = append(s.forwards, 0)
	copy(s.forwards[index+1:], s.forwards[index:])
	s.forwards[index] = s.forward(c)
	s.dirty = true
	s.announce(ContainersChange{Index: index, Container: c})
	return nil
}

// RemoveContainer removes the container at index.
func (s *ContainerStack) RemoveContainer(index int) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	s.unforward(s.containers[index], s.forwards[index])
	s.containers = append(s.containers[:index:index], s.containers[index+1:]...)
	s.forwards = append(s.forwards[:index:index], s.forwards[index+1:]...)
	s.dirty = true
	s.announce(ContainersChange{Index: index})
	return nil
}

// ReplaceContainer swaps the container at index for c.
func (s *ContainerStack) ReplaceContainer(index int, c Container) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	if err := s.checkCandidate(c); err != nil {
		return err
	}
	s.unforward(s.containers[index], s.forwards[index])
	s.containers[index] = c
	s.forwards[index] = s.forward(c)
	s.dirty = true
	s.announce(ContainersChange{Index: index, Container: c})
	return nil
}

// announce emits ContainersChanged and the matching activity event.
func (s *ContainerStack) announce(change ContainersChange) {
	s.containersChanged.Emit(change)
	ids := make([]string, len(s.containers))
	for i, c := range s.containers {
		ids[i] = c.ID()
	}
	s.cfg.emit(s.logger, activity.BuildStackChangedEvent(activity.StackEventInput{
		StackID:    s.id,
		Containers: ids,
	}))
}

func (s *ContainerStack) checkIndex(index int) error {
	if index < 0 || index >= len(s.containers) {
		return indexOutOfRange(index, len(s.containers))
	}
	return nil
}

func (s *ContainerStack) checkCandidate(c Container) error {
	if c == nil {
		return fmt.Errorf("settings: nil container")
	}
	if nested, ok := c.(*ContainerStack); ok && (nested == s || nested.reaches(s)) {
		return fmt.Errorf("%w: %s in %s", ErrSelfReference, c.ID(), s.id)
	}
	return nil
}

// reaches reports whether target is reachable from s through owned
// containers or next stacks.
func (s *ContainerStack) reaches(target *ContainerStack) bool {
	seen := map[*ContainerStack]struct{}{}
	var walk func(*ContainerStack) bool
	walk = func(current *ContainerStack) bool {
		if current == nil {
			return false
		}
		if current == target {
			return true
		}
		if _, done := seen[current]; done {
			return false
		}
		seen[current] = struct{}{}
		for _, c := range current.containers {
			if nested, ok := c.(*ContainerStack); ok && walk(nested) {
				return true
			}
		}
		return walk(current.next)
	}
	return walk(s)
}

func (s *ContainerStack) forward(c Container) Subscription {
	observable, ok := c.(Observable)
	if !ok {
		return 0
	}
	return observable.PropertyChanged().Connect(s.propertyChanged.Emit)
}

func (s *ContainerStack) unforward(c Container, sub Subscription) {
	if observable, ok := c.(Observable); ok && sub != 0 {
		observable.PropertyChanged().Disconnect(sub)
	}
}

// SetNextStack chains stack after the owned containers. A nil stack clears
// the chain.
func (s *ContainerStack) SetNextStack(stack *ContainerStack) error {
	if stack == s || (stack != nil && stack.reaches(s)) {
		return fmt.Errorf("%w: next stack of %s", ErrSelfReference, s.id)
	}
	if s.next == stack {
		return nil
	}
	if s.next != nil {
		s.next.propertyChanged.Disconnect(s.nextSub)
		s.nextSub = 0
	}
	s.next = stack
	if stack != nil {
		s.nextSub = stack.propertyChanged.Connect(s.propertyChanged.Emit)
	}
	s.dirty = true
	s.announce(ContainersChange{Index: -1, Container: stack})
	return nil
}

// FindContainer returns the first container matching q in stack order.
func (s *ContainerStack) FindContainer(q Query) Container {
	for _, c := range s.containers {
		if matchContainer(c, q) {
			return c
		}
	}
	return nil
}

// FindContainers returns every matching container in stack order.
func (s *ContainerStack) FindContainers(q Query) []Container {
	var found []Container
	for _, c := range s.containers {
		if matchContainer(c, q) {
			found = append(found, c)
		}
	}
	return found
}

// Serialize writes the stack as an INI document. Every container must be
// resolvable by id through the registry used for deserialization.
func (s *ContainerStack) Serialize() (string, error) {
	file := ini.Empty(iniOptions)
	general, _ := file.NewSection("general")
	ids := make([]string, len(s.containers))
	for i, c := range s.containers {
		if err := checkListedID(c.ID()); err != nil {
			return "", fmt.Errorf("settings: serialize stack %s: %w", s.id, err)
		}
		ids[i] = c.ID()
	}
	for _, entry := range [][2]string{
		{"name", encodeINIValue(s.name)},
		{"id", encodeINIValue(s.id)},
		{"version", strconv.Itoa(StackVersion)},
		{"containers", encodeINIValue(strings.Join(ids, ","))},
	} {
		if _, err := general.NewKey(entry[0], entry[1]); err != nil {
			return "", fmt.Errorf("settings: serialize stack %s: %w", s.id, err)
		}
	}

	if len(s.metadata) > 0 {
		metadata, _ := file.NewSection("metadata")
		for _, key := range s.metadata.Keys() {
			if _, err := metadata.NewKey(key, formatMetadataValue(s.metadata[key])); err != nil {
				return "", fmt.Errorf("settings: serialize stack %s metadata %q: %w", s.id, key, err)
			}
		}
	}

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("settings: serialize stack %s: %w", s.id, err)
	}
	return buf.String(), nil
}

// Deserialize replaces name, id, metadata and containers from an INI
// document. Every referenced container is resolved before anything changes.
func (s *ContainerStack) Deserialize(serialized string) error {
	file, err := ini.LoadSources(iniOptions, []byte(serialized))
	if err != nil {
		return invalidDocument("stack %s: %v", s.id, err)
	}
	general, err := file.GetSection("general")
	if err != nil {
		return invalidDocument("stack %s: missing [general]", s.id)
	}
	for _, required := range []string{"name", "id", "version", "containers"} {
		if !general.HasKey(required) {
			return invalidDocument("stack %s: missing %q", s.id, required)
		}
	}
	version, err := general.Key("version").Int()
	if err != nil {
		return invalidDocument("stack %s: version %q", s.id, general.Key("version").String())
	}
	if version != StackVersion {
		return incorrectVersion("stack", version, StackVersion)
	}

	containers, err := s.resolveContainers(decodeINIValue(general.Key("containers").Value()))
	if err != nil {
		return err
	}
	for _, c := range containers {
		if err := s.checkCandidate(c); err != nil {
			return err
		}
	}

	metadata := s.metadata.Clone()
	if section, err := file.GetSection("metadata"); err == nil {
		for _, key := range section.Keys() {
			metadata[key.Name()] = parseMetadataValue(key.Value())
		}
	}

	id := decodeINIValue(general.Key("id").Value())
	if err := s.rekey(id); err != nil {
		return err
	}
	for i, c := range s.containers {
		s.unforward(c, s.forwards[i])
	}
	s.id = id
	s.logger = s.cfg.loggerOrDefault("stack").With("stack", s.id)
	s.metadata = metadata
	s.containers = containers
	s.forwards = make([]Subscription, len(containers))
	for i, c := range containers {
		s.forwards[i] = s.forward(c)
	}
	s.SetName(decodeINIValue(general.Key("name").Value()))
	s.dirty = false
	s.announce(ContainersChange{Index: -1})
	return nil
}

// rekey keeps the registry entry of s in step with an id read from a
// document.
func (s *ContainerStack) rekey(id string) error {
	if s.cfg.registry == nil {
		return nil
	}
	return s.cfg.registry.rename(s, s.id, id)
}

// checkListedID rejects ids that would not survive the comma separated
// containers list.
func checkListedID(id string) error {
	if id == "" || id != strings.TrimSpace(id) || strings.Contains(id, ",") {
		return invalidDocument("container id %q cannot be listed in a stack", id)
	}
	return nil
}

func (s *ContainerStack) resolveContainers(list string) ([]Container, error) {
	var ids []string
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if s.cfg.registry == nil {
		return nil, fmt.Errorf("%w: no registry to resolve %s", ErrContainerNotFound, strings.Join(ids, ","))
	}

	var result *multierror.Error
	containers := make([]Container, 0, len(ids))
	for _, id := range ids {
		c := s.cfg.registry.FindContainer(id)
		if c == nil {
			result = multierror.Append(result, fmt.Errorf("%w: %q referenced by stack %s", ErrContainerNotFound, id, s.id))
			continue
		}
		containers = append(containers, c)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return containers, nil
}
