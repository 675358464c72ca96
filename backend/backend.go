package backend

import "context"

// WorkerOptions configure a backend worker.
type WorkerOptions struct {
	// Queues to consume; empty means the backend's default queue.
	Queues []string
	// WithScheduler also runs the trigger-promotion loop alongside the
	// consumers, where the backend has one.
	WithScheduler bool
}

// Backend is the uniform contract over the three job engines. Callers
// never branch on the concrete engine; differences stay internal.
type Backend interface {
	// Name identifies the engine ("immediate", "redis", "scheduler").
	Name() string

	// Enqueue submits the callable for one execution as soon as possible.
	Enqueue(ctx context.Context, queue, callable string, args map[string]any) (*JobHandle, error)

	// Schedule submits the callable under the given trigger.
	Schedule(ctx context.Context, queue, callable string, args map[string]any, trigger Trigger) (*JobHandle, error)

	// Cancel stops a job: guaranteed before it starts, best-effort while
	// running.
	Cancel(ctx context.Context, h *JobHandle) error

	// Pause takes a pending job out of dispatch without discarding it.
	Pause(ctx context.Context, h *JobHandle) error

	// Resume returns a paused job to dispatch.
	Resume(ctx context.Context, h *JobHandle) error

	// Status reports the job's current state.
	Status(ctx context.Context, h *JobHandle) (JobState, error)

	// Record returns the job's full inspectable snapshot, including the
	// result or error payload once resolved.
	Record(ctx context.Context, h *JobHandle) (*JobRecord, error)

	// Purge removes all jobs of the queue.
	Purge(ctx context.Context, queue string) error

	// History lists the queue's jobs, most recently enqueued first.
	History(ctx context.Context, queue string) ([]JobRecord, error)

	// StartWorker starts the engine's worker processing loop. A no-op for
	// the immediate engine, which executes inline.
	StartWorker(ctx context.Context, opts WorkerOptions) error

	// StopWorker stops the worker processing loop and waits for in-flight
	// jobs.
	StopWorker(ctx context.Context) error

	// SupportsAsync reports whether jobs may run the suspendable
	// execution path. Requesting async work on a non-capable engine is a
	// capability error, never a silent fallback.
	SupportsAsync() bool

	// Close releases engine resources.
	Close() error
}
