package schedstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/legout/flowerpower-sub010/backend"
	fperrors "github.com/legout/flowerpower-sub010/errors"
	"github.com/legout/flowerpower-sub010/logger"
)

func newTestScheduler(t *testing.T, registry *backend.CallableRegistry) *SchedulerBackend {
	t.Helper()
	b, err := New(Config{
		Path:         filepath.Join(t.TempDir(), "scheduler.db"),
		PollInterval: 10 * time.Millisecond,
	}, registry, logger.NewDefault("schedstore-test"))
	if err != nil {
		t.Fatalf("failed to open scheduler store: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func waitForState(t *testing.T, b *SchedulerBackend, h *backend.JobHandle, want backend.JobState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state, err := b.Status(context.Background(), h)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if state == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	state, _ := b.Status(context.Background(), h)
	t.Fatalf("job never reached %s, stuck at %s", want, state)
}

func TestScheduler_ImmediateFiresOnPoll(t *testing.T) {
	registry := backend.NewCallableRegistry()
	registry.Register("greet", func(ctx context.Context, args map[string]any) (any, error) {
		name, _ := args["name"].(string)
		return "hello " + name, nil
	})
	b := newTestScheduler(t, registry)
	ctx := context.Background()

	handle, err := b.Enqueue(ctx, "default", "greet", map[string]any{"name": "world"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := b.StartWorker(ctx, backend.WorkerOptions{}); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	waitForState(t, b, handle, backend.StateSucceeded)

	record, err := b.Record(ctx, handle)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if record.Result != "hello world" {
		t.Fatalf("expected greeting result, got %v", record.Result)
	}
	if record.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", record.Attempts)
	}
}

func TestScheduler_IntervalReArms(t *testing.T) {
	var runs atomic.Int64
	registry := backend.NewCallableRegistry()
	registry.Register("tick", func(ctx context.Context, args map[string]any) (any, error) {
		runs.Add(1)
		return nil, nil
	})
	b := newTestScheduler(t, registry)
	ctx := context.Background()

	handle, err := b.Schedule(ctx, "default", "tick", nil, backend.Every(30*time.Millisecond))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := b.StartWorker(ctx, backend.WorkerOptions{}); err != nil {
		t.Fatalf("start worker: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if runs.Load() < 2 {
		t.Fatalf("expected at least 2 runs, got %d", runs.Load())
	}

	// a recurring job returns to pending with a future fire time
	record, err := b.Record(ctx, handle)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if record.State.Terminal() {
		t.Fatalf("recurring job must not be terminal, got %s", record.State)
	}
}

func TestScheduler_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.db")
	registry := backend.NewCallableRegistry()
	registry.Register("later", func(ctx context.Context, args map[string]any) (any, error) {
		return "ran", nil
	})

	first, err := New(Config{Path: path, PollInterval: 10 * time.Millisecond}, registry, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	handle, err := first.Schedule(context.Background(), "default", "later", nil,
		backend.Date(time.Now().UTC().Add(50*time.Millisecond)))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := New(Config{Path: path, PollInterval: 10 * time.Millisecond}, registry, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { second.Close() })

	state, err := second.Status(context.Background(), handle)
	if err != nil {
		t.Fatalf("status after reopen: %v", err)
	}
	if state != backend.StatePending {
		t.Fatalf("expected schedule to survive reopen as pending, got %s", state)
	}

	if err := second.StartWorker(context.Background(), backend.WorkerOptions{}); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	waitForState(t, second, handle, backend.StateSucceeded)
}

func TestScheduler_CancelPendingNeverRuns(t *testing.T) {
	registry := backend.NewCallableRegistry()
	registry.Register("never", func(ctx context.Context, args map[string]any) (any, error) {
		t.Error("cancelled job must not run")
		return nil, nil
	})
	b := newTestScheduler(t, registry)
	ctx := context.Background()

	handle, err := b.Schedule(ctx, "default", "never", nil,
		backend.Date(time.Now().UTC().Add(time.Hour)))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := b.Cancel(ctx, handle); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := b.StartWorker(ctx, backend.WorkerOptions{}); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	state, err := b.Status(ctx, handle)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if state != backend.StateCancelled {
		t.Fatalf("expected cancelled, got %s", state)
	}
	if err := b.Cancel(ctx, handle); err == nil {
		t.Fatal("expected second cancel to be an invalid transition")
	}
}

func TestScheduler_CronStaysPendingUntilDue(t *testing.T) {
	registry := backend.NewCallableRegistry()
	registry.Register("nightly", func(ctx context.Context, args map[string]any) (any, error) {
		t.Error("nightly job fired before its cron time")
		return nil, nil
	})
	b := newTestScheduler(t, registry)
	ctx := context.Background()

	handle, err := b.Schedule(ctx, "default", "nightly", nil, backend.Cron("0 2 * * *"))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := b.StartWorker(ctx, backend.WorkerOptions{}); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	state, err := b.Status(ctx, handle)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if state != backend.StatePending {
		t.Fatalf("expected pending, got %s", state)
	}

	record, err := b.Record(ctx, handle)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if record.NextRunAt == nil || !record.NextRunAt.After(time.Now()) {
		t.Fatalf("expected a future fire time, got %v", record.NextRunAt)
	}
}

func TestScheduler_PauseResume(t *testing.T) {
	registry := backend.NewCallableRegistry()
	registry.Register("noop", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, nil
	})
	b := newTestScheduler(t, registry)
	ctx := context.Background()

	handle, err := b.Schedule(ctx, "default", "noop", nil,
		backend.Date(time.Now().UTC().Add(20*time.Millisecond)))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := b.Pause(ctx, handle); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := b.StartWorker(ctx, backend.WorkerOptions{}); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	time.Sleep(80 * time.Millisecond)

	state, err := b.Status(ctx, handle)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if state != backend.StatePaused {
		t.Fatalf("expected paused job to hold, got %s", state)
	}

	if err := b.Resume(ctx, handle); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitForState(t, b, handle, backend.StateSucceeded)

	if err := b.Resume(ctx, handle); err == nil {
		t.Fatal("expected resume on a resolved job to fail")
	}
}

func TestScheduler_FailureRecorded(t *testing.T) {
	registry := backend.NewCallableRegistry()
	registry.Register("boom", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, fmt.Errorf("disk full")
	})
	b := newTestScheduler(t, registry)
	ctx := context.Background()

	handle, err := b.Enqueue(ctx, "default", "boom", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := b.StartWorker(ctx, backend.WorkerOptions{}); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	waitForState(t, b, handle, backend.StateFailed)

	record, err := b.Record(ctx, handle)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if record.Error != "disk full" {
		t.Fatalf("expected failure message, got %q", record.Error)
	}
}

func TestScheduler_HistoryAndPurge(t *testing.T) {
	registry := backend.NewCallableRegistry()
	registry.Register("noop", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, nil
	})
	b := newTestScheduler(t, registry)
	ctx := context.Background()

	var last *backend.JobHandle
	for i := 0; i < 3; i++ {
		h, err := b.Schedule(ctx, "reports", "noop", nil,
			backend.Date(time.Now().UTC().Add(time.Hour)))
		if err != nil {
			t.Fatalf("schedule %d: %v", i, err)
		}
		last = h
		time.Sleep(2 * time.Millisecond)
	}

	hist, err := b.History(ctx, "reports")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 records, got %d", len(hist))
	}

	if err := b.Purge(ctx, "reports"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := b.Status(ctx, last); !fperrors.IsKind(err, fperrors.KindBackend) {
		t.Fatalf("expected job-not-found after purge, got %v", err)
	}
}
