package pipeline

import (
	"errors"
	"os"
	"strings"
	"sync"

	fperrors "github.com/legout/flowerpower-sub010/errors"
	"github.com/legout/flowerpower-sub010/logger"
)

// ModuleRef names a module to resolve: either a logical name or an
// already-loaded handle.
type ModuleRef struct {
	Name   string
	Handle *Module
}

// Ref creates a module reference by logical name.
func Ref(name string) ModuleRef { return ModuleRef{Name: name} }

// Handle creates a module reference from an already-loaded module, used
// as-is without any lookup.
func Handle(m *Module) ModuleRef { return ModuleRef{Handle: m} }

// Resolver turns module references into loaded modules. String refs try,
// in order: the exact name, the name with hyphens rewritten to
// underscores, and the name under the "pipelines." prefix, first against
// the registry, then against the file loader. Loaded file modules are
// cached; reload bypasses the cache and re-reads from disk under a
// per-module lock.
type Resolver struct {
	registry *Registry
	loader   *FileLoader
	log      *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	cache map[string]*Module
}

// NewResolver creates a resolver over a registry and an optional file
// loader.
func NewResolver(registry *Registry, loader *FileLoader, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Resolver{
		registry: registry,
		loader:   loader,
		log:      log.WithComponent("resolver"),
		locks:    make(map[string]*sync.Mutex),
		cache:    make(map[string]*Module),
	}
}

// Resolve loads every referenced module. With reload set, file modules are
// re-read from disk and provider-backed registry modules are re-produced
// before the run; reloads of the same module serialize on a per-name lock
// so no caller observes a half-reloaded module.
func (r *Resolver) Resolve(refs []ModuleRef, reload bool) ([]*Module, error) {
	modules := make([]*Module, 0, len(refs))
	for _, ref := range refs {
		if ref.Handle != nil {
			modules = append(modules, ref.Handle)
			continue
		}
		m, err := r.resolveName(ref.Name, reload)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, nil
}

// Candidates returns the attempted name variants for a string ref, in
// resolution order.
func Candidates(name string) []string {
	variants := []string{name}
	underscored := strings.ReplaceAll(name, "-", "_")
	if underscored != name {
		variants = append(variants, underscored)
	}
	if !strings.HasPrefix(underscored, "pipelines.") {
		variants = append(variants, "pipelines."+underscored)
	}
	return variants
}

func (r *Resolver) resolveName(name string, reload bool) (*Module, error) {
	candidates := Candidates(name)
	for _, candidate := range candidates {
		m, err := r.lookup(candidate, reload)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fperrors.New(fperrors.KindResolution, "loading module "+candidate+" failed").WithCause(err)
		}
		if m != nil {
			return m, nil
		}
	}
	return nil, fperrors.ModuleNotFound(name, candidates)
}

// lookup tries a single candidate against the registry and file loader.
// A nil module with nil error means the candidate does not exist anywhere.
func (r *Resolver) lookup(candidate string, reload bool) (*Module, error) {
	if r.registry != nil {
		m, ok, err := r.registry.Get(candidate, reload)
		if err != nil {
			return nil, err
		}
		if ok {
			return m, nil
		}
	}

	if r.loader == nil {
		return nil, nil
	}

	if !reload {
		r.mu.Lock()
		cached, ok := r.cache[candidate]
		r.mu.Unlock()
		if ok {
			return cached, nil
		}
	}

	// Reload mutates shared cache state for this module name; serialize
	// per name so concurrent runs never see a half-reloaded module.
	lock := r.moduleLock(candidate)
	lock.Lock()
	defer lock.Unlock()

	m, err := r.loader.Load(candidate)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, os.ErrNotExist
		}
		return nil, err
	}

	r.mu.Lock()
	r.cache[candidate] = m
	r.mu.Unlock()

	if reload {
		r.log.Debug("module reloaded", map[string]interface{}{"module": candidate})
	}
	return m, nil
}

func (r *Resolver) moduleLock(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[name] = lock
	}
	return lock
}
