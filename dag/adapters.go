package dag

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/legout/flowerpower-sub010/config"
	"github.com/legout/flowerpower-sub010/logger"
	"github.com/legout/flowerpower-sub010/pipeline"
)

// Adapter observes a graph execution. Adapters wrap each node's
// computation and see run boundaries; they never mutate state or results.
type Adapter interface {
	Name() string
	RunStarted(pipelineName string, nodeCount int)
	WrapNode(node string, fn pipeline.NodeFunc) pipeline.NodeFunc
	RunFinished(status RunStatus, duration time.Duration)
}

// buildAdapters instantiates the adapters enabled in the run config. Both
// execution modes call this identically.
func buildAdapters(cfg *config.RunConfig, log *logger.Logger) []Adapter {
	var adapters []Adapter
	if cfg.Adapters.Logging {
		adapters = append(adapters, &LoggingAdapter{log: log.WithComponent("run")})
	}
	if cfg.Adapters.Tracker {
		adapters = append(adapters, NewTrackerAdapter())
	}
	if cfg.Adapters.Tracing {
		adapters = append(adapters, NewTracingAdapter())
	}
	return adapters
}

// LoggingAdapter logs node completion, duration and run outcome.
type LoggingAdapter struct {
	log *logger.Logger
}

func (a *LoggingAdapter) Name() string { return "logging" }

func (a *LoggingAdapter) RunStarted(pipelineName string, nodeCount int) {
	a.log.Debug("run started", map[string]interface{}{
		"pipeline": pipelineName,
		"nodes":    nodeCount,
	})
}

func (a *LoggingAdapter) WrapNode(node string, fn pipeline.NodeFunc) pipeline.NodeFunc {
	return func(ctx context.Context, inputs map[string]any) (any, error) {
		start := time.Now()
		out, err := fn(ctx, inputs)
		fields := map[string]interface{}{
			"node":     node,
			"duration": time.Since(start).String(),
		}
		if err != nil {
			fields["error"] = err.Error()
			a.log.Error("node failed", fields)
		} else {
			a.log.Debug("node completed", fields)
		}
		return out, err
	}
}

func (a *LoggingAdapter) RunFinished(status RunStatus, duration time.Duration) {
	a.log.Info("run finished", map[string]interface{}{
		"status":   string(status),
		"duration": duration.String(),
	})
}

// TrackerAdapter records per-node outcomes and timings for inspection
// after the run.
type TrackerAdapter struct {
	mu      sync.Mutex
	results map[string]NodeResult
	status  RunStatus
}

// NewTrackerAdapter creates an empty tracker.
func NewTrackerAdapter() *TrackerAdapter {
	return &TrackerAdapter{results: make(map[string]NodeResult), status: StatusBuilt}
}

func (a *TrackerAdapter) Name() string { return "tracker" }

func (a *TrackerAdapter) RunStarted(pipelineName string, nodeCount int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = StatusRunning
}

func (a *TrackerAdapter) WrapNode(node string, fn pipeline.NodeFunc) pipeline.NodeFunc {
	return func(ctx context.Context, inputs map[string]any) (any, error) {
		start := time.Now()
		out, err := fn(ctx, inputs)
		nr := NodeResult{Name: node, Duration: time.Since(start), Output: out, Error: err}
		if err != nil {
			nr.Status = "failed"
		} else {
			nr.Status = "completed"
		}
		a.mu.Lock()
		a.results[node] = nr
		a.mu.Unlock()
		return out, err
	}
}

func (a *TrackerAdapter) RunFinished(status RunStatus, duration time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = status
}

// Results returns a copy of the recorded node results.
func (a *TrackerAdapter) Results() map[string]NodeResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]NodeResult, len(a.results))
	for k, v := range a.results {
		out[k] = v
	}
	return out
}

// Status returns the tracked run status.
func (a *TrackerAdapter) Status() RunStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// TracingAdapter wraps each node in an OpenTelemetry span named
// "<pipeline>.<node>". Spans go to the globally registered tracer
// provider; without one they are no-ops.
type TracingAdapter struct {
	tracer trace.Tracer

	mu     sync.Mutex
	prefix string
}

// NewTracingAdapter creates a tracing adapter on the global tracer
// provider.
func NewTracingAdapter() *TracingAdapter {
	return &TracingAdapter{tracer: otel.Tracer("flowerpower/dag")}
}

func (a *TracingAdapter) Name() string { return "tracing" }

func (a *TracingAdapter) RunStarted(pipelineName string, nodeCount int) {
	a.mu.Lock()
	a.prefix = pipelineName
	a.mu.Unlock()
}

func (a *TracingAdapter) WrapNode(node string, fn pipeline.NodeFunc) pipeline.NodeFunc {
	return func(ctx context.Context, inputs map[string]any) (any, error) {
		a.mu.Lock()
		spanName := node
		if a.prefix != "" {
			spanName = a.prefix + "." + node
		}
		a.mu.Unlock()

		ctx, span := a.tracer.Start(ctx, spanName)
		defer span.End()
		span.SetAttributes(attribute.String("dag.node", node))

		out, err := fn(ctx, inputs)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return out, err
	}
}

func (a *TracingAdapter) RunFinished(status RunStatus, duration time.Duration) {}

// NodeResult holds the outcome of a single node execution.
type NodeResult struct {
	Name     string
	Status   string // "completed" | "failed"
	Duration time.Duration
	Output   any
	Error    error
}
