package backend

import (
	"context"
	"sort"
	"sync"

	fperrors "github.com/legout/flowerpower-sub010/errors"
)

// Callable is a unit of work dispatchable through a backend. Arguments
// must be JSON-serializable so the durable engines can ship them across
// process boundaries. The durable engines deliver at-least-once; callables
// must be idempotent or the caller must deduplicate.
type Callable func(ctx context.Context, args map[string]any) (any, error)

// CallableRegistry maps stable names to callables. Closures cannot cross
// process boundaries, so both the enqueueing process and the worker
// process register the same names.
type CallableRegistry struct {
	mu    sync.RWMutex
	funcs map[string]Callable
}

// NewCallableRegistry creates an empty registry.
func NewCallableRegistry() *CallableRegistry {
	return &CallableRegistry{funcs: make(map[string]Callable)}
}

// Register adds a callable under a stable name.
func (r *CallableRegistry) Register(name string, fn Callable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Get retrieves a callable by name.
func (r *CallableRegistry) Get(name string) (Callable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	if !ok {
		return nil, fperrors.New(fperrors.KindBackend, "callable "+name+" is not registered")
	}
	return fn, nil
}

// List returns sorted names of all registered callables.
func (r *CallableRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
