package settings

import (
	"slices"

	"github.com/goliatone/go-settings/pkg/activity"
	"github.com/hashicorp/go-hclog"
)

// ProviderState reports whether a provider is bound to a stack and key.
type ProviderState int

const (
	ProviderDetached ProviderState = iota
	ProviderAttached
)

func (s ProviderState) String() string {
	if s == ProviderAttached {
		return "attached"
	}
	return "detached"
}

// validationStateProperty is computed by the validator when no container
// stores it.
const validationStateProperty = "validationState"

// SettingPropertyProvider observes one setting on a stack. It caches the
// watched properties, reports which stack levels hold a value and writes
// overrides back into the stack.
type SettingPropertyProvider struct {
	registry  *Registry
	cfg       config
	logger    hclog.Logger
	validator *Validator

	stackID      string
	stack        *ContainerStack
	propertySub  Subscription
	containerSub Subscription

	key          string
	watched      []string
	storeIndex   int
	removeUnused bool

	properties  map[string]any
	stackLevels []int
	relations   map[string]struct{}
	valueUsed   bool

	propertiesChanged     Signal[map[string]any]
	stackLevelsChanged    Signal[[]int]
	isValueUsedChanged    Signal[bool]
	containerStackChanged Signal[*ContainerStack]
}

// NewSettingPropertyProvider creates a detached provider. Stack ids are
// resolved through registry.
func NewSettingPropertyProvider(registry *Registry, opts ...Option) *SettingPropertyProvider {
	cfg := applyOptions(opts)
	if registry == nil {
		registry = cfg.registry
	}
	return &SettingPropertyProvider{
		registry:   registry,
		cfg:        cfg,
		logger:     cfg.loggerOrDefault("provider"),
		validator:  cfg.validatorOrDefault(),
		properties: map[string]any{},
		relations:  map[string]struct{}{},
		valueUsed:  true,
	}
}

func (p *SettingPropertyProvider) PropertiesChanged() *Signal[map[string]any] {
	return &p.propertiesChanged
}
func (p *SettingPropertyProvider) StackLevelsChanged() *Signal[[]int]  { return &p.stackLevelsChanged }
func (p *SettingPropertyProvider) IsValueUsedChanged() *Signal[bool]   { return &p.isValueUsedChanged }
func (p *SettingPropertyProvider) ContainerStackChanged() *Signal[*ContainerStack] {
	return &p.containerStackChanged
}

// State is Attached once both a stack and a key are set.
func (p *SettingPropertyProvider) State() ProviderState {
	if p.stack != nil && p.key != "" {
		return ProviderAttached
	}
	return ProviderDetached
}

func (p *SettingPropertyProvider) ContainerStackID() string        { return p.stackID }
func (p *SettingPropertyProvider) ContainerStack() *ContainerStack { return p.stack }
func (p *SettingPropertyProvider) Key() string                     { return p.key }
func (p *SettingPropertyProvider) StoreIndex() int                 { return p.storeIndex }
func (p *SettingPropertyProvider) RemoveUnusedValue() bool         { return p.removeUnused }

func (p *SettingPropertyProvider) WatchedProperties() []string {
	return append([]string(nil), p.watched...)
}

// Properties returns the cached values of the watched properties.
func (p *SettingPropertyProvider) Properties() map[string]any {
	out := make(map[string]any, len(p.properties))
	for name, value := range p.properties {
		out[name] = value
	}
	return out
}

// StackLevels returns the flattened levels that hold a value for the key.
func (p *SettingPropertyProvider) StackLevels() []int {
	return append([]int(nil), p.stackLevels...)
}

// IsValueUsed reports whether some dependent setting still reads this value.
func (p *SettingPropertyProvider) IsValueUsed() bool {
	return p.valueUsed
}

// SetContainerStackID resolves id through the registry and attaches to it.
// An empty id detaches.
func (p *SettingPropertyProvider) SetContainerStackID(id string) {
	if id == p.stackID && (id == "" || p.stack != nil) {
		return
	}
	p.stackID = id
	if id == "" {
		p.bind(nil)
		return
	}
	if p.registry == nil {
		p.logger.Warn("no registry to resolve stack", "stack", id)
		p.bind(nil)
		return
	}
	stacks := p.registry.FindContainerStacks(Query{"id": id})
	if len(stacks) == 0 {
		p.logger.Warn("stack not found", "stack", id)
		p.bind(nil)
		return
	}
	p.bind(stacks[0])
}

// SetContainerStack attaches to stack directly. Nil detaches.
func (p *SettingPropertyProvider) SetContainerStack(stack *ContainerStack) {
	if stack == p.stack {
		return
	}
	p.stackID = ""
	if stack != nil {
		p.stackID = stack.ID()
	}
	p.bind(stack)
}

func (p *SettingPropertyProvider) bind(stack *ContainerStack) {
	if p.stack == stack {
		return
	}
	if p.stack != nil {
		p.stack.PropertyChanged().Disconnect(p.propertySub)
		p.stack.ContainersChanged().Disconnect(p.containerSub)
		p.propertySub, p.containerSub = 0, 0
	}
	p.stack = stack
	if stack != nil {
		p.propertySub = stack.PropertyChanged().Connect(p.onPropertyChanged)
		p.containerSub = stack.ContainersChanged().Connect(p.onContainersChanged)
	}
	p.containerStackChanged.Emit(stack)
	p.refresh(false)
}

func (p *SettingPropertyProvider) SetKey(key string) {
	if key == p.key {
		return
	}
	p.key = key
	p.refresh(false)
}

func (p *SettingPropertyProvider) SetWatchedProperties(names []string) {
	if slices.Equal(names, p.watched) {
		return
	}
	p.watched = append([]string(nil), names...)
	p.refresh(false)
}

func (p *SettingPropertyProvider) SetStoreIndex(index int) {
	p.storeIndex = index
}

func (p *SettingPropertyProvider) SetRemoveUnusedValue(remove bool) {
	p.removeUnused = remove
}

// ForcePropertiesChanged recomputes everything and emits PropertiesChanged
// even when nothing changed.
func (p *SettingPropertyProvider) ForcePropertiesChanged() {
	p.refresh(true)
}

// GetPropertyValue returns the property as stored at a flattened level, with
// formulas evaluated against the whole stack.
func (p *SettingPropertyProvider) GetPropertyValue(name string, level int) any {
	if p.State() != ProviderAttached {
		return nil
	}
	levels := p.stack.flatten()
	if level < 0 || level >= len(levels) {
		p.logger.Warn("stack level out of range", "key", p.key, "level", level, "levels", len(levels))
		return nil
	}
	raw, ok := levels[level].container.RawProperty(p.key, name)
	if !ok {
		return nil
	}
	value, err := evaluateIn(p.stack, raw, p.key, name)
	if err != nil {
		p.logger.Warn("property evaluation failed", "key", p.key, "property", name, "level", level, "error", err)
		return nil
	}
	return value
}

// SetPropertyValue writes value into the container at the store index. When
// writing "value" with pruning enabled, an override equal to the next level
// holding a value is removed instead.
func (p *SettingPropertyProvider) SetPropertyValue(name string, value any) {
	if p.State() != ProviderAttached {
		p.logger.Warn("set on detached provider", "key", p.key, "property", name)
		return
	}
	if !slices.Contains(p.watched, name) {
		p.logger.Warn("set on unwatched property", "key", p.key, "property", name)
		return
	}
	target, ok := p.instanceAt(p.storeIndex)
	if !ok {
		return
	}

	if name == "value" && p.removeUnused {
		for _, level := range p.computeStackLevels() {
			if level <= p.storeIndex {
				continue
			}
			state, _ := target.RawProperty(p.key, "state")
			if state.Literal() != InstanceCalculated && sameValue(p.GetPropertyValue(name, level), value) {
				p.RemoveFromContainer(p.storeIndex)
				return
			}
			break
		}
	}

	old := p.GetPropertyValue(name, p.storeIndex)
	if err := target.SetProperty(p.key, name, value); err != nil {
		p.logger.Warn("failed to write property", "key", p.key, "property", name, "container", target.ID(), "error", err)
		return
	}
	p.cfg.emit(p.logger, activity.BuildSettingUpdatedEvent(activity.SettingEventInput{
		StackID:     p.stack.ID(),
		ContainerID: target.ID(),
		Level:       p.storeIndex,
		Key:         p.key,
		Property:    name,
		OldValue:    old,
		NewValue:    value,
	}))
}

// RemoveFromContainer drops the key's override at a flattened level.
func (p *SettingPropertyProvider) RemoveFromContainer(level int) {
	if p.State() != ProviderAttached {
		p.logger.Warn("remove on detached provider", "key", p.key)
		return
	}
	target, ok := p.instanceAt(level)
	if !ok {
		return
	}
	if target.Instance(p.key) == nil {
		return
	}
	if target.ReadOnly() {
		p.logger.Warn("remove from read-only container", "key", p.key, "container", target.ID())
		return
	}
	old := p.GetPropertyValue("value", level)
	target.RemoveInstance(p.key)
	p.cfg.emit(p.logger, activity.BuildSettingRemovedEvent(activity.SettingEventInput{
		StackID:     p.stack.ID(),
		ContainerID: target.ID(),
		Level:       level,
		Key:         p.key,
		Property:    "value",
		OldValue:    old,
	}))
}

// instanceAt returns the writable instance container at a flattened level.
func (p *SettingPropertyProvider) instanceAt(level int) (*InstanceContainer, bool) {
	levels := p.stack.flatten()
	if level < 0 || level >= len(levels) {
		p.logger.Warn("stack level out of range", "key", p.key, "level", level, "levels", len(levels))
		return nil, false
	}
	instance, ok := levels[level].container.(*InstanceContainer)
	if !ok {
		p.logger.Warn("container at level does not take overrides",
			"key", p.key, "level", level, "kind", levels[level].container.Kind().String())
		return nil, false
	}
	return instance, true
}

func (p *SettingPropertyProvider) onPropertyChanged(change PropertyChange) {
	if change.Key == p.key {
		if change.Property == "value" || change.Property == "state" || slices.Contains(p.watched, change.Property) {
			p.refresh(false)
		}
		return
	}
	if _, related := p.relations[change.Key]; related && (change.Property == "value" || change.Property == "state") {
		p.updateValueUsed()
	}
}

func (p *SettingPropertyProvider) onContainersChanged(ContainersChange) {
	p.refresh(false)
}

// refresh recomputes the cache and emits only what changed, unless force.
func (p *SettingPropertyProvider) refresh(force bool) {
	p.updateRelations()

	next := map[string]any{}
	if p.State() == ProviderAttached {
		for _, name := range p.watched {
			next[name] = p.resolveWatched(name)
		}
	}
	if force || !sameProperties(p.properties, next) {
		p.properties = next
		p.propertiesChanged.Emit(p.Properties())
	}

	levels := p.computeStackLevels()
	if !slices.Equal(levels, p.stackLevels) {
		p.stackLevels = levels
		p.stackLevelsChanged.Emit(p.StackLevels())
	}

	p.updateValueUsed()
}

func (p *SettingPropertyProvider) resolveWatched(name string) any {
	if name == validationStateProperty && !p.stack.HasProperty(p.key, name) {
		return p.validator.Validate(p.stack, p.key)
	}
	value, err := p.stack.ResolveProperty(p.key, name)
	if err != nil {
		p.logger.Warn("property evaluation failed", "key", p.key, "property", name, "error", err)
		return nil
	}
	return value
}

func (p *SettingPropertyProvider) computeStackLevels() []int {
	if p.State() != ProviderAttached {
		return nil
	}
	var levels []int
	for i, level := range p.stack.flatten() {
		if raw, ok := level.container.RawProperty(p.key, "value"); ok && raw.Raw() != nil {
			levels = append(levels, i)
		}
	}
	return levels
}

// updateRelations collects the settings whose value is computed from this
// one.
func (p *SettingPropertyProvider) updateRelations() {
	p.relations = map[string]struct{}{}
	if p.State() != ProviderAttached {
		return
	}
	def := p.stack.FindDefinition(p.key)
	if def == nil {
		return
	}
	for _, rel := range def.Relations() {
		if rel.Type == RequiredByTarget && rel.Role == "value" && rel.Target != nil {
			p.relations[rel.Target.Key()] = struct{}{}
		}
	}
}

func (p *SettingPropertyProvider) updateValueUsed() {
	used := p.computeValueUsed()
	if used != p.valueUsed {
		p.valueUsed = used
		p.isValueUsedChanged.Emit(used)
	}
}

// computeValueUsed is true when nothing depends on the value or some
// dependent is either not overridden by the user or computed by a formula.
func (p *SettingPropertyProvider) computeValueUsed() bool {
	if p.State() != ProviderAttached || len(p.relations) == 0 {
		return true
	}
	for key := range p.relations {
		if state, _ := p.stack.RawProperty(key, "state"); state.Literal() != InstanceUser {
			return true
		}
		if raw, ok := p.stack.RawProperty(key, "value"); ok && raw.IsFunction() {
			return true
		}
	}
	return false
}

func sameProperties(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for name, value := range a {
		other, ok := b[name]
		if !ok || !valuesEqual(value, other) {
			return false
		}
	}
	return true
}
