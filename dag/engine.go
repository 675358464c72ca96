package dag

import (
	"context"
	"sync"
	"time"

	"github.com/legout/flowerpower-sub010/config"
	fperrors "github.com/legout/flowerpower-sub010/errors"
	"github.com/legout/flowerpower-sub010/logger"
)

// Engine executes a composed graph according to a resolved run config.
type Engine struct {
	log *logger.Logger
}

// NewEngine creates an engine.
func NewEngine(log *logger.Logger) *Engine {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Engine{log: log.WithComponent("engine")}
}

// Run executes the graph in blocking mode, producing exactly the outputs
// named by cfg.FinalVars (all node outputs when empty).
func (e *Engine) Run(ctx context.Context, g *Graph, cfg *config.RunConfig) (map[string]any, error) {
	return e.execute(ctx, g, cfg)
}

// RunAsync executes the graph in suspendable mode: the walk runs on its
// own goroutine with a cooperative suspension point at every node
// boundary, so the caller is only parked on a channel receive, never on
// node computation. Results are identical to Run for the same graph and
// config.
func (e *Engine) RunAsync(ctx context.Context, g *Graph, cfg *config.RunConfig) (map[string]any, error) {
	type outcome struct {
		values map[string]any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		values, err := e.execute(ctx, g, cfg)
		done <- outcome{values: values, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		return o.values, o.err
	}
}

// execute is the shared graph walk for both modes.
func (e *Engine) execute(ctx context.Context, g *Graph, cfg *config.RunConfig) (map[string]any, error) {
	start := time.Now()

	finalVars := cfg.FinalVars
	if len(finalVars) == 0 {
		finalVars = g.NodeNames()
	}
	// Requested outputs must resolve before any node runs.
	for _, name := range finalVars {
		if _, ok := g.Nodes[name]; !ok {
			return nil, fperrors.UnknownOutput(name)
		}
	}

	required := g.Ancestors(finalVars)
	levels, err := BuildLevels(g, required)
	if err != nil {
		return nil, err
	}

	state := NewState()
	params := make(map[string]any)
	overridden := make(map[string]bool)
	for key, val := range cfg.Inputs {
		if _, ok := g.Nodes[key]; ok {
			// Input targeting a node overrides its computation.
			state.Set(key, val)
			overridden[key] = true
		} else {
			params[key] = val
		}
	}

	adapters := buildAdapters(cfg, e.log)
	for _, a := range adapters {
		a.RunStarted(cfg.Pipeline, len(required))
	}
	finish := func(status RunStatus) {
		d := time.Since(start)
		for _, a := range adapters {
			a.RunFinished(status, d)
		}
	}

	for _, level := range levels {
		// Node boundary: a cancellation/suspension point in both modes.
		if err := ctx.Err(); err != nil {
			finish(StatusFailed)
			return nil, err
		}

		var toRun []string
		for _, name := range level {
			if !overridden[name] {
				toRun = append(toRun, name)
			}
		}
		if len(toRun) == 0 {
			continue
		}

		var runErr error
		if cfg.Executor.Type == config.ExecutorConcurrent {
			runErr = e.runLevelConcurrent(ctx, g, state, params, toRun, cfg.Executor.MaxWorkers, adapters)
		} else {
			runErr = e.runLevelSequential(ctx, g, state, params, toRun, adapters)
		}
		if runErr != nil {
			finish(StatusFailed)
			return nil, runErr
		}
	}

	values := make(map[string]any, len(finalVars))
	for _, name := range finalVars {
		if v, ok := state.Get(name); ok {
			values[name] = v
		}
	}

	finish(StatusSucceeded)
	return values, nil
}

// runLevelSequential runs the level's nodes one by one, in sorted order,
// on the calling goroutine.
func (e *Engine) runLevelSequential(ctx context.Context, g *Graph, state *State, params map[string]any, names []string, adapters []Adapter) error {
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.runNode(ctx, g, state, params, name, adapters); err != nil {
			return err
		}
	}
	return nil
}

// runLevelConcurrent fans the level's nodes out to goroutines, bounded by
// maxWorkers. All nodes of the level finish before the error of the
// earliest node (sorted order) is reported, keeping failures
// deterministic.
func (e *Engine) runLevelConcurrent(ctx context.Context, g *Graph, state *State, params map[string]any, names []string, maxWorkers int, adapters []Adapter) error {
	sem := make(chan struct{}, concurrency(maxWorkers, len(names)))
	errs := make([]error, len(names))
	var wg sync.WaitGroup

	for i, name := range names {
		wg.Add(1)
		go func(idx int, nodeName string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}
			errs[idx] = e.runNode(ctx, g, state, params, nodeName, adapters)
		}(i, name)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// runNode gathers a node's inputs from its dependencies and the run
// params, applies adapter wrapping, executes, and records the output.
func (e *Engine) runNode(ctx context.Context, g *Graph, state *State, params map[string]any, name string, adapters []Adapter) error {
	node := g.Nodes[name]

	inputs := make(map[string]any, len(node.DependsOn)+len(params))
	for k, v := range params {
		inputs[k] = v
	}
	for _, dep := range node.DependsOn {
		if v, ok := state.Get(dep); ok {
			inputs[dep] = v
		}
	}

	fn := node.Fn
	for _, a := range adapters {
		fn = a.WrapNode(name, fn)
	}

	out, err := fn(ctx, inputs)
	if err != nil {
		return fperrors.NodeFailed(name, state.Snapshot(), err)
	}
	state.Set(name, out)
	return nil
}

func concurrency(maxWorkers, levelSize int) int {
	if maxWorkers <= 0 || maxWorkers > levelSize {
		return levelSize
	}
	return maxWorkers
}
