// Package plugin implements the strategy creator/deleter capability handle
// from the original engine's plug-in contract, without the dynamic
// shared-library loading that contract assumed: here a factory registers
// itself directly in process rather than being resolved by symbol lookup
// out of a .so/.dll.
package plugin

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/alejandrodnm/hftcore/internal/ports"
)

// Instance is one live strategy created through a registered factory,
// tagged with an opaque, stable handle an engine can log and correlate
// against without exposing the underlying StrategyContext.
type Instance struct {
	Handle  string
	Factory string
	Context ports.StrategyContext
}

// Registry holds the set of known ports.StrategyFactory implementations,
// keyed by name, and tracks the instances created through them.
type Registry struct {
	mu        sync.Mutex
	factories map[string]ports.StrategyFactory
	instances map[string]Instance
}

// NewRegistry returns an empty factory registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ports.StrategyFactory),
		instances: make(map[string]Instance),
	}
}

// Register adds a factory under its own Name(). Registering a second
// factory under a name already in use replaces the first — matching the
// original manager's re-registration behavior on plug-in reload.
func (r *Registry) Register(factory ports.StrategyFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[factory.Name()] = factory
}

// Create asks the named factory for a new StrategyContext and hands back an
// opaque handle for it. It returns an error rather than panicking when the
// factory name is unknown, since the caller is typically a config-driven
// strategy list that can surface the error as a startup failure.
func (r *Registry) Create(factoryName, strategyName string, id uint32) (Instance, error) {
	r.mu.Lock()
	factory, ok := r.factories[factoryName]
	r.mu.Unlock()
	if !ok {
		return Instance{}, fmt.Errorf("plugin.Create: unknown factory %q", factoryName)
	}

	ctx := factory.CreateStrategy(strategyName, id)
	inst := Instance{
		Handle:  uuid.New().String(),
		Factory: factoryName,
		Context: ctx,
	}

	r.mu.Lock()
	r.instances[inst.Handle] = inst
	r.mu.Unlock()
	return inst, nil
}

// Delete tears down a previously created instance through its owning
// factory's DeleteStrategy, mirroring the original creator/deleter pairing:
// whichever factory built a context is also responsible for destroying it.
func (r *Registry) Delete(handle string) error {
	r.mu.Lock()
	inst, ok := r.instances[handle]
	if ok {
		delete(r.instances, handle)
	}
	factory := r.factories[inst.Factory]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("plugin.Delete: unknown instance %q", handle)
	}
	factory.DeleteStrategy(inst.Context)
	return nil
}

// Get returns the instance registered under handle, if any.
func (r *Registry) Get(handle string) (Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[handle]
	return inst, ok
}

// Factories lists the currently registered factory names.
func (r *Registry) Factories() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
