package backend

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	fperrors "github.com/legout/flowerpower-sub010/errors"
	"github.com/legout/flowerpower-sub010/logger"
)

// ImmediateBackend executes callables inline in the calling goroutine and
// keeps job records in memory. It has no persistence and no worker; a
// handle it returns is already resolved.
type ImmediateBackend struct {
	registry *CallableRegistry
	log      *logger.Logger

	mu   sync.Mutex
	jobs map[string]*JobRecord
	// order of job IDs per queue, newest first
	history map[string][]string
}

// NewImmediate creates an immediate backend over the callable registry.
func NewImmediate(registry *CallableRegistry, log *logger.Logger) *ImmediateBackend {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &ImmediateBackend{
		registry: registry,
		log:      log.WithComponent("backend.immediate"),
		jobs:     make(map[string]*JobRecord),
		history:  make(map[string][]string),
	}
}

func (b *ImmediateBackend) Name() string { return "immediate" }

// SupportsAsync is true: inline execution happens in the caller's own
// goroutine, which may drive the suspendable path itself.
func (b *ImmediateBackend) SupportsAsync() bool { return true }

func (b *ImmediateBackend) Enqueue(ctx context.Context, queue, callable string, args map[string]any) (*JobHandle, error) {
	fn, err := b.registry.Get(callable)
	if err != nil {
		return nil, err
	}

	record := &JobRecord{
		ID:         uuid.NewString(),
		Queue:      queue,
		Callable:   callable,
		Args:       args,
		State:      StateRunning,
		EnqueuedAt: time.Now().UTC(),
		Attempts:   1,
	}
	b.remember(record)

	result, runErr := fn(ctx, args)
	now := time.Now().UTC()

	b.mu.Lock()
	record.LastRunAt = &now
	if runErr != nil {
		record.State = StateFailed
		record.Error = runErr.Error()
	} else {
		record.State = StateSucceeded
		record.Result = result
	}
	b.mu.Unlock()

	handle := &JobHandle{ID: record.ID, Queue: queue}
	if runErr != nil {
		return handle, runErr
	}
	return handle, nil
}

// Schedule accepts only the immediate trigger; the engine has no
// scheduler loop to fire deferred or recurring triggers.
func (b *ImmediateBackend) Schedule(ctx context.Context, queue, callable string, args map[string]any, trigger Trigger) (*JobHandle, error) {
	if err := trigger.Validate(); err != nil {
		return nil, err
	}
	if trigger.Kind != TriggerImmediate {
		return nil, fperrors.Unsupported("deferred triggers", "immediate backend")
	}
	return b.Enqueue(ctx, queue, callable, args)
}

// Cancel always fails: immediate jobs run inline and are resolved by the
// time their handle exists.
func (b *ImmediateBackend) Cancel(ctx context.Context, h *JobHandle) error {
	record, err := b.lookup(h)
	if err != nil {
		return err
	}
	return fperrors.InvalidTransition(h.ID, string(record.State), "cancel")
}

func (b *ImmediateBackend) Pause(ctx context.Context, h *JobHandle) error {
	record, err := b.lookup(h)
	if err != nil {
		return err
	}
	return fperrors.InvalidTransition(h.ID, string(record.State), "pause")
}

func (b *ImmediateBackend) Resume(ctx context.Context, h *JobHandle) error {
	record, err := b.lookup(h)
	if err != nil {
		return err
	}
	return fperrors.InvalidTransition(h.ID, string(record.State), "resume")
}

func (b *ImmediateBackend) Status(ctx context.Context, h *JobHandle) (JobState, error) {
	record, err := b.lookup(h)
	if err != nil {
		return "", err
	}
	return record.State, nil
}

func (b *ImmediateBackend) Record(ctx context.Context, h *JobHandle) (*JobRecord, error) {
	return b.lookup(h)
}

func (b *ImmediateBackend) Purge(ctx context.Context, queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range b.history[queue] {
		delete(b.jobs, id)
	}
	delete(b.history, queue)
	return nil
}

func (b *ImmediateBackend) History(ctx context.Context, queue string) ([]JobRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	records := make([]JobRecord, 0, len(b.history[queue]))
	for _, id := range b.history[queue] {
		if r, ok := b.jobs[id]; ok {
			records = append(records, *r)
		}
	}
	return records, nil
}

// StartWorker is a no-op: there is no out-of-process work to consume.
func (b *ImmediateBackend) StartWorker(ctx context.Context, opts WorkerOptions) error {
	b.log.Debug("immediate backend has no worker; jobs run inline")
	return nil
}

func (b *ImmediateBackend) StopWorker(ctx context.Context) error { return nil }

func (b *ImmediateBackend) Close() error { return nil }

func (b *ImmediateBackend) remember(record *JobRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs[record.ID] = record
	b.history[record.Queue] = append([]string{record.ID}, b.history[record.Queue]...)
}

func (b *ImmediateBackend) lookup(h *JobHandle) (*JobRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.jobs[h.ID]
	if !ok {
		return nil, fperrors.JobNotFound(h.ID)
	}
	copied := *record
	return &copied, nil
}
