package redisq

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/legout/flowerpower-sub010/backend"
	fperrors "github.com/legout/flowerpower-sub010/errors"
	"github.com/legout/flowerpower-sub010/logger"
)

func newTestBackend(t *testing.T, registry *backend.CallableRegistry) *RedisBackend {
	t.Helper()
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mini.Close)

	b, err := New(context.Background(), Config{
		Addr:         mini.Addr(),
		Concurrency:  1,
		PollInterval: 10 * time.Millisecond,
		RetryBackoff: 20 * time.Millisecond,
	}, registry, logger.NewDefault("redisq-test"))
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func waitForState(t *testing.T, b *RedisBackend, h *backend.JobHandle, want backend.JobState) {
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

func TestRedis_EnqueueAndConsume(t *testing.T) {
	registry := backend.NewCallableRegistry()
	registry.Register("sum", func(ctx context.Context, args map[string]any) (any, error) {
		a, _ := args["a"].(float64)
		b, _ := args["b"].(float64)
		return a + b, nil
	})
	b := newTestBackend(t, registry)
	ctx := context.Background()

	handle, err := b.Enqueue(ctx, "default", "sum", map[string]any{"a": 1.0, "b": 2.0})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	state, err := b.Status(ctx, handle)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if state != backend.StatePending {
		t.Fatalf("expected pending before worker starts, got %s", state)
	}

	if err := b.StartWorker(ctx, backend.WorkerOptions{}); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	waitForState(t, b, handle, backend.StateSucceeded)

	record, err := b.Record(ctx, handle)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if record.Result != 3.0 {
		t.Fatalf("expected result 3, got %v", record.Result)
	}
	if record.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", record.Attempts)
	}
}

func TestRedis_RetryThenDeadLetter(t *testing.T) {
	var calls atomic.Int64
	registry := backend.NewCallableRegistry()
	registry.Register("flaky", func(ctx context.Context, args map[string]any) (any, error) {
		calls.Add(1)
		return nil, fmt.Errorf("broken pipe")
	})
	b := newTestBackend(t, registry)
	b.cfg.MaxRetries = 2
	ctx := context.Background()

	handle, err := b.Enqueue(ctx, "default", "flaky", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := b.StartWorker(ctx, backend.WorkerOptions{WithScheduler: true}); err != nil {
		t.Fatalf("start worker: %v", err)
	}

	waitForState(t, b, handle, backend.StateFailed)

	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts (1 + 2 retries), got %d", got)
	}
	record, _ := b.Record(ctx, handle)
	if record.Error == "" {
		t.Fatal("expected error recorded")
	}
	dead, err := b.rdb.LRange(ctx, keyDead("default"), 0, -1).Result()
	if err != nil {
		t.Fatalf("dead letter read: %v", err)
	}
	if len(dead) != 1 || dead[0] != handle.ID {
		t.Fatalf("expected job in dead set, got %v", dead)
	}
}

func TestRedis_DeferredTriggerPromotion(t *testing.T) {
	registry := backend.NewCallableRegistry()
	registry.Register("noop", func(ctx context.Context, args map[string]any) (any, error) {
		return "done", nil
	})
	b := newTestBackend(t, registry)
	ctx := context.Background()

	handle, err := b.Schedule(ctx, "default", "noop", nil,
		backend.Date(time.Now().UTC().Add(50*time.Millisecond)))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	record, err := b.Record(ctx, handle)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if record.NextRunAt == nil {
		t.Fatal("expected a next run time for a deferred job")
	}

	if err := b.StartWorker(ctx, backend.WorkerOptions{WithScheduler: true}); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	waitForState(t, b, handle, backend.StateSucceeded)
}

func TestRedis_CancelBeforeDispatch(t *testing.T) {
	registry := backend.NewCallableRegistry()
	registry.Register("never", func(ctx context.Context, args map[string]any) (any, error) {
		t.Error("cancelled job must not run")
		return nil, nil
	})
	b := newTestBackend(t, registry)
	ctx := context.Background()

	handle, err := b.Schedule(ctx, "default", "never", nil,
		backend.Date(time.Now().UTC().Add(time.Hour)))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := b.Cancel(ctx, handle); err != nil {
		t.Fatalf("cancel: %v", err)
	}

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

func TestRedis_PauseResume(t *testing.T) {
	registry := backend.NewCallableRegistry()
	registry.Register("noop", func(ctx context.Context, args map[string]any) (any, error) {
		return "done", nil
	})
	b := newTestBackend(t, registry)
	ctx := context.Background()

	handle, err := b.Enqueue(ctx, "default", "noop", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := b.Pause(ctx, handle); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// a worker started now must not pick the paused job up
	if err := b.StartWorker(ctx, backend.WorkerOptions{}); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	state, err := b.Status(ctx, handle)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if state != backend.StatePaused {
		t.Fatalf("expected paused, got %s", state)
	}

	if err := b.Resume(ctx, handle); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitForState(t, b, handle, backend.StateSucceeded)
}

func TestRedis_UnknownCallableRejectedAtSubmit(t *testing.T) {
	b := newTestBackend(t, backend.NewCallableRegistry())
	_, err := b.Enqueue(context.Background(), "default", "ghost", nil)
	if err == nil {
		t.Fatal("expected error for unregistered callable")
	}
}

func TestRedis_HistoryAndPurge(t *testing.T) {
	registry := backend.NewCallableRegistry()
	registry.Register("noop", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, nil
	})
	b := newTestBackend(t, registry)
	ctx := context.Background()

	var last *backend.JobHandle
	for i := 0; i < 3; i++ {
		h, err := b.Enqueue(ctx, "reports", "noop", map[string]any{"i": i})
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
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
	if hist[0].ID != last.ID {
		t.Fatal("expected newest record first")
	}

	if err := b.Purge(ctx, "reports"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := b.Status(ctx, last); !fperrors.IsKind(err, fperrors.KindBackend) {
		t.Fatalf("expected job-not-found after purge, got %v", err)
	}
	hist, err = b.History(ctx, "reports")
	if err != nil {
		t.Fatalf("history after purge: %v", err)
	}
	if len(hist) != 0 {
		t.Fatalf("expected empty history, got %d", len(hist))
	}
}

func TestRedis_NoAsyncSupport(t *testing.T) {
	b := newTestBackend(t, backend.NewCallableRegistry())
	if b.SupportsAsync() {
		t.Fatal("durable queue engine must not advertise the suspendable path")
	}
}
