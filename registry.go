package settings

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// Registry indexes containers by id. Stacks and instance containers resolve
// references through it while deserializing.
type Registry struct {
	mu         sync.RWMutex
	order      []string
	containers map[string]Container

	opts   []Option
	cfg    config
	logger hclog.Logger

	containerAdded   Signal[Container]
	containerRemoved Signal[Container]
}

// NewRegistry creates an empty registry. The options are also applied to
// containers created by Load.
func NewRegistry(opts ...Option) *Registry {
	cfg := applyOptions(opts)
	return &Registry{
		containers: map[string]Container{},
		opts:       append([]Option(nil), opts...),
		cfg:        cfg,
		logger:     cfg.loggerOrDefault("registry"),
	}
}

func (r *Registry) ContainerAdded() *Signal[Container]   { return &r.containerAdded }
func (r *Registry) ContainerRemoved() *Signal[Container] { return &r.containerRemoved }

// AddContainer registers c. Ids are unique.
func (r *Registry) AddContainer(c Container) error {
	if c == nil {
		return fmt.Errorf("settings: nil container")
	}
	r.mu.Lock()
	if _, exists := r.containers[c.ID()]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateContainer, c.ID())
	}
	r.containers[c.ID()] = c
	r.order = append(r.order, c.ID())
	r.mu.Unlock()

	r.containerAdded.Emit(c)
	return nil
}

// RemoveContainer unregisters id. Unknown ids are ignored.
func (r *Registry) RemoveContainer(id string) {
	r.mu.Lock()
	c, ok := r.containers[id]
	if ok {
		delete(r.containers, id)
		for i, existing := range r.order {
			if existing == id {
				r.order = append(r.order[:i:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if ok {
		r.containerRemoved.Emit(c)
	}
}

// rename moves c from oldID to newID, keeping its registration order. It is
// a no-op when c is not registered under oldID.
func (r *Registry) rename(c Container, oldID, newID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if oldID == newID || r.containers[oldID] != c {
		return nil
	}
	if _, exists := r.containers[newID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateContainer, newID)
	}
	delete(r.containers, oldID)
	r.containers[newID] = c
	for i, existing := range r.order {
		if existing == oldID {
			r.order[i] = newID
			break
		}
	}
	return nil
}

// FindContainer returns the container with id, or nil.
func (r *Registry) FindContainer(id string) Container {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.containers[id]
}

// FindContainers returns every container matching q in registration order.
func (r *Registry) FindContainers(q Query) []Container {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found []Container
	for _, id := range r.order {
		if c := r.containers[id]; matchContainer(c, q) {
			found = append(found, c)
		}
	}
	return found
}

func (r *Registry) FindDefinitionContainers(q Query) []*DefinitionContainer {
	return findTyped[*DefinitionContainer](r, q)
}

func (r *Registry) FindInstanceContainers(q Query) []*InstanceContainer {
	return findTyped[*InstanceContainer](r, q)
}

func (r *Registry) FindContainerStacks(q Query) []*ContainerStack {
	return findTyped[*ContainerStack](r, q)
}

func findTyped[T Container](r *Registry, q Query) []T {
	var found []T
	for _, c := range r.FindContainers(q) {
		if typed, ok := c.(T); ok {
			found = append(found, typed)
		}
	}
	return found
}

// Load discovers documents through d and registers them in dependency order:
// definitions, then instances, then stacks. Failures are collected; every
// document that loaded stays registered.
func (r *Registry) Load(d Discoverer) error {
	opts := append(append([]Option(nil), r.opts...), WithRegistry(r), WithLocator(d))

	var result *multierror.Error
	for _, kind := range []ResourceKind{ResourceDefinitions, ResourceInstances, ResourceStacks} {
		paths, err := d.Discover(kind)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("discover %s: %w", kind.Dir(), err))
			continue
		}
		for _, path := range paths {
			if err := r.loadFile(d, kind, path, opts); err != nil {
				r.logger.Warn("failed to load container", "path", path, "error", err)
				result = multierror.Append(result, fmt.Errorf("load %s: %w", path, err))
			}
		}
	}
	return result.ErrorOrNil()
}

func (r *Registry) loadFile(d Discoverer, kind ResourceKind, path string, opts []Option) error {
	data, err := d.ReadFile(path)
	if err != nil {
		return err
	}
	id := resourceID(kind, path)

	var c Container
	switch kind {
	case ResourceDefinitions:
		c = NewDefinitionContainer(id, opts...)
	case ResourceInstances:
		c = NewInstanceContainer(id, opts...)
	case ResourceStacks:
		c = NewContainerStack(id, opts...)
	default:
		return fmt.Errorf("settings: unknown resource kind %d", kind)
	}
	if err := c.Deserialize(string(data)); err != nil {
		return err
	}
	c.SetPath(path)
	if err := r.AddContainer(c); err != nil {
		return err
	}
	r.logger.Debug("loaded container", "id", c.ID(), "kind", c.Kind().String(), "path", path)
	return nil
}
