package pipeline

import (
	"sort"
	"sync"
)

// ModuleProvider produces a module on demand. Providers are re-invoked
// when a run requests reload, so a long-lived process picks up changed
// definitions.
type ModuleProvider func() (*Module, error)

type registryEntry struct {
	module   *Module
	provider ModuleProvider
}

// Registry is a lock-guarded registry of code-defined modules keyed by
// module name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Register adds a module to the registry, replacing any previous entry
// with the same name.
func (r *Registry) Register(m *Module) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[m.Name] = &registryEntry{module: m}
	return nil
}

// RegisterProvider adds a module produced by fn. The provider runs once
// eagerly to validate, and again whenever a reload is requested.
func (r *Registry) RegisterProvider(name string, fn ModuleProvider) error {
	m, err := fn()
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &registryEntry{module: m, provider: fn}
	return nil
}

// Get retrieves a module by exact name. With reload set, provider-backed
// entries are re-produced before being returned.
func (r *Registry) Get(name string, reload bool) (*Module, bool, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if reload && entry.provider != nil {
		m, err := entry.provider()
		if err != nil {
			return nil, true, err
		}
		if err := m.Validate(); err != nil {
			return nil, true, err
		}
		r.mu.Lock()
		r.entries[name] = &registryEntry{module: m, provider: entry.provider}
		r.mu.Unlock()
		return m, true, nil
	}
	return entry.module, true, nil
}

// List returns sorted names of all registered modules.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// --- Component registry ---

// ComponentRegistry provides named NodeFunc lookup for file-defined
// modules.
type ComponentRegistry struct {
	mu    sync.RWMutex
	funcs map[string]NodeFunc
}

// NewComponentRegistry creates a new empty ComponentRegistry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{funcs: make(map[string]NodeFunc)}
}

// Register adds a component function to the registry.
func (r *ComponentRegistry) Register(name string, fn NodeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Get retrieves a component function by name.
func (r *ComponentRegistry) Get(name string) (NodeFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// List returns sorted names of all registered components.
func (r *ComponentRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
