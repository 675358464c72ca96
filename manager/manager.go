package manager

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/legout/flowerpower-sub010/backend"
	"github.com/legout/flowerpower-sub010/config"
	"github.com/legout/flowerpower-sub010/dag"
	fperrors "github.com/legout/flowerpower-sub010/errors"
	"github.com/legout/flowerpower-sub010/logger"
	"github.com/legout/flowerpower-sub010/pipeline"
)

// RunCallable is the callable name pipeline jobs are submitted under.
// Worker processes must register it against their own Manager so a
// dequeued job can rebuild and run the graph locally.
const RunCallable = "pipeline.run"

// Options configure a Manager.
type Options struct {
	// Root is the project directory holding conf/ and pipelines/.
	Root string

	// Env is the environment snapshot used for interpolation and
	// overlays; nil means the process environment.
	Env map[string]string

	// Backend overrides the engine the project document selects. Used
	// by tests and by callers that construct the engine themselves.
	Backend backend.Backend

	// Logger is the parent logger; nil means the global logger.
	Logger *logger.Logger
}

// Manager is the orchestration facade bound to one project root.
type Manager struct {
	root       string
	project    *config.ProjectConfig
	env        map[string]string
	registry   *pipeline.Registry
	components *pipeline.ComponentRegistry
	resolver   *pipeline.Resolver
	loader     *pipeline.FileLoader
	callables  *backend.CallableRegistry
	backend    backend.Backend
	engine     *dag.Engine
	log        *logger.Logger

	mu     sync.Mutex
	graphs map[string]*dag.Graph
}

// New creates a Manager for the project at opts.Root.
func New(ctx context.Context, opts Options) (*Manager, error) {
	env := opts.Env
	if env == nil {
		env = config.EnvFromOS()
	}

	project, err := config.LoadProject(opts.Root, env)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("manager")

	pipelinesDir := project.Dirs.Pipelines
	if !filepath.IsAbs(pipelinesDir) {
		pipelinesDir = filepath.Join(opts.Root, pipelinesDir)
	}
	components := pipeline.NewComponentRegistry()
	loader := pipeline.NewFileLoader(components, pipelinesDir)
	registry := pipeline.NewRegistry()

	m := &Manager{
		root:       opts.Root,
		project:    project,
		env:        env,
		registry:   registry,
		components: components,
		resolver:   pipeline.NewResolver(registry, loader, log),
		loader:     loader,
		callables:  backend.NewCallableRegistry(),
		engine:     dag.NewEngine(log),
		log:        log,
		graphs:     make(map[string]*dag.Graph),
	}
	m.callables.Register(RunCallable, m.runCallable)

	if opts.Backend != nil {
		m.backend = opts.Backend
	} else {
		m.backend, err = openBackend(ctx, opts.Root, project, m.callables, log)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the code module registry, for registering modules and
// providers before running.
func (m *Manager) Registry() *pipeline.Registry { return m.registry }

// Components returns the component registry file modules bind against.
func (m *Manager) Components() *pipeline.ComponentRegistry { return m.components }

// Callables returns the callable registry of the underlying backend, for
// registering additional job callables.
func (m *Manager) Callables() *backend.CallableRegistry { return m.callables }

// Backend returns the active job engine.
func (m *Manager) Backend() backend.Backend { return m.backend }

// RunNow resolves configuration and modules for the named pipeline and
// executes it to completion in the calling goroutine.
func (m *Manager) RunNow(ctx context.Context, name string, ov config.Overrides) (map[string]any, error) {
	cfg, g, err := m.prepare(name, ov)
	if err != nil {
		return nil, err
	}
	if cfg.Async {
		return m.engine.RunAsync(ctx, g, cfg)
	}
	return m.engine.Run(ctx, g, cfg)
}

// RunNowAsync runs the named pipeline in suspendable mode regardless of
// the resolved Async flag. Results match RunNow for the same inputs.
func (m *Manager) RunNowAsync(ctx context.Context, name string, ov config.Overrides) (map[string]any, error) {
	cfg, g, err := m.prepare(name, ov)
	if err != nil {
		return nil, err
	}
	return m.engine.RunAsync(ctx, g, cfg)
}

// Enqueue submits the named pipeline for one execution through the job
// engine. Requesting the suspendable path on an engine that cannot run
// it is a capability error, never a silent downgrade.
func (m *Manager) Enqueue(ctx context.Context, name string, ov config.Overrides) (*backend.JobHandle, error) {
	cfg, _, err := m.prepare(name, ov)
	if err != nil {
		return nil, err
	}
	if cfg.Async && !m.backend.SupportsAsync() {
		return nil, fperrors.Unsupported("suspendable execution", m.backend.Name())
	}
	return m.backend.Enqueue(ctx, m.queue(), RunCallable, jobArgs(name, cfg, ov))
}

// Schedule submits the named pipeline under a trigger. An empty spec
// falls back to the schedule the configuration layers resolved.
func (m *Manager) Schedule(ctx context.Context, name, triggerSpec string, ov config.Overrides) (*backend.JobHandle, error) {
	cfg, _, err := m.prepare(name, ov)
	if err != nil {
		return nil, err
	}
	if cfg.Async && !m.backend.SupportsAsync() {
		return nil, fperrors.Unsupported("suspendable execution", m.backend.Name())
	}
	if triggerSpec == "" {
		triggerSpec = cfg.Schedule
	}
	trigger, err := backend.ParseTriggerSpec(triggerSpec)
	if err != nil {
		return nil, err
	}
	return m.backend.Schedule(ctx, m.queue(), RunCallable, jobArgs(name, cfg, ov), trigger)
}

// CancelJob stops a job: guaranteed before it starts, best-effort after.
func (m *Manager) CancelJob(ctx context.Context, h *backend.JobHandle) error {
	return m.backend.Cancel(ctx, m.normalize(h))
}

// PauseJob takes a pending job out of dispatch.
func (m *Manager) PauseJob(ctx context.Context, h *backend.JobHandle) error {
	return m.backend.Pause(ctx, m.normalize(h))
}

// ResumeJob returns a paused job to dispatch.
func (m *Manager) ResumeJob(ctx context.Context, h *backend.JobHandle) error {
	return m.backend.Resume(ctx, m.normalize(h))
}

// JobStatus reports a job's current state.
func (m *Manager) JobStatus(ctx context.Context, h *backend.JobHandle) (backend.JobState, error) {
	return m.backend.Status(ctx, m.normalize(h))
}

// JobRecord returns a job's full snapshot.
func (m *Manager) JobRecord(ctx context.Context, h *backend.JobHandle) (*backend.JobRecord, error) {
	return m.backend.Record(ctx, m.normalize(h))
}

// normalize fills a handle's queue with the project default when callers
// reference a job by ID alone.
func (m *Manager) normalize(h *backend.JobHandle) *backend.JobHandle {
	if h.Queue != "" {
		return h
	}
	return &backend.JobHandle{ID: h.ID, Queue: m.queue()}
}

// History lists the queue's jobs, most recently enqueued first. An empty
// queue name means the project's default queue.
func (m *Manager) History(ctx context.Context, queue string) ([]backend.JobRecord, error) {
	if queue == "" {
		queue = m.queue()
	}
	return m.backend.History(ctx, queue)
}

// PurgeQueue removes all jobs of the queue. An empty queue name means
// the project's default queue.
func (m *Manager) PurgeQueue(ctx context.Context, queue string) error {
	if queue == "" {
		queue = m.queue()
	}
	return m.backend.Purge(ctx, queue)
}

// StartWorker starts the backend's worker processing loop.
func (m *Manager) StartWorker(ctx context.Context, opts backend.WorkerOptions) error {
	return m.backend.StartWorker(ctx, opts)
}

// StopWorker stops the worker loop and waits for in-flight jobs.
func (m *Manager) StopWorker(ctx context.Context) error {
	return m.backend.StopWorker(ctx)
}

// ListPipelines returns the names of every registered and on-disk
// pipeline, sorted.
func (m *Manager) ListPipelines() []string {
	seen := make(map[string]bool)
	for _, name := range m.registry.List() {
		seen[name] = true
	}
	for _, name := range m.loader.List() {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GraphFor resolves and composes the named pipeline's graph without
// running it.
func (m *Manager) GraphFor(name string, ov config.Overrides) (*dag.Graph, error) {
	_, g, err := m.prepare(name, ov)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ExportDOT renders the named pipeline's composed graph in DOT form.
func (m *Manager) ExportDOT(name string, ov config.Overrides) (string, error) {
	g, err := m.GraphFor(name, ov)
	if err != nil {
		return "", err
	}
	return dag.ExportDOT(name, g), nil
}

// Close releases the backend.
func (m *Manager) Close() error {
	return m.backend.Close()
}

// prepare resolves the run configuration and the composed graph for one
// pipeline. Graphs are cached per pipeline and module set; a reload run
// rebuilds and replaces the cache entry.
func (m *Manager) prepare(name string, ov config.Overrides) (*config.RunConfig, *dag.Graph, error) {
	pipelineCfg, err := config.LoadPipelineConfig(m.root, name, m.env)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Resolve(m.project, pipelineCfg, m.env, ov)
	if err != nil {
		return nil, nil, err
	}

	cacheKey := name
	for _, extra := range cfg.WithModules {
		cacheKey += "+" + extra
	}

	if !cfg.Reload {
		m.mu.Lock()
		g, ok := m.graphs[cacheKey]
		m.mu.Unlock()
		if ok {
			return cfg, g, nil
		}
	}

	refs := []pipeline.ModuleRef{pipeline.Ref(name)}
	for _, extra := range cfg.WithModules {
		refs = append(refs, pipeline.Ref(extra))
	}
	modules, err := m.resolver.Resolve(refs, cfg.Reload)
	if err != nil {
		return nil, nil, err
	}

	g, err := dag.Compose(modules[0], modules[1:])
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	m.graphs[cacheKey] = g
	m.mu.Unlock()
	return cfg, g, nil
}

func (m *Manager) queue() string {
	return m.project.Worker.Queue
}

// runCallable is the job-side entry point: it rebuilds the run from the
// submitted arguments and executes it in the worker process.
func (m *Manager) runCallable(ctx context.Context, args map[string]any) (any, error) {
	name, _ := args["pipeline"].(string)
	if name == "" {
		return nil, fperrors.Configuration("pipeline", "job arguments", "pipeline name is required")
	}

	ov := config.Overrides{}
	if inputs, ok := args["inputs"].(map[string]any); ok {
		ov.Inputs = inputs
	}
	if raw, ok := args["final_vars"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				ov.FinalVars = append(ov.FinalVars, s)
			}
		}
	} else if vars, ok := args["final_vars"].([]string); ok {
		ov.FinalVars = vars
	}

	results, err := m.RunNow(ctx, name, ov)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// jobArgs is the wire form of a pipeline job: enough for a worker-side
// Manager to rebuild the run. Only JSON-safe values cross the boundary.
func jobArgs(name string, cfg *config.RunConfig, ov config.Overrides) map[string]any {
	args := map[string]any{"pipeline": name}
	if len(ov.Inputs) > 0 {
		args["inputs"] = ov.Inputs
	}
	if len(cfg.FinalVars) > 0 {
		args["final_vars"] = cfg.FinalVars
	}
	return args
}
