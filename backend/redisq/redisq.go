package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/legout/flowerpower-sub010/backend"
	fperrors "github.com/legout/flowerpower-sub010/errors"
	"github.com/legout/flowerpower-sub010/logger"
)

const (
	keyJobPrefix        = "fp:job:"
	keyQueuePrefix      = "fp:queue:"
	keyProcessingPrefix = "fp:processing:"
	keyDelayedPrefix    = "fp:delayed:"
	keyDeadPrefix       = "fp:dead:"
	keyJobsPrefix       = "fp:jobs:"
)

func keyJob(id string) string       { return keyJobPrefix + id }
func keyQueue(q string) string      { return keyQueuePrefix + q }
func keyProcessing(q string) string { return keyProcessingPrefix + q }
func keyDelayed(q string) string    { return keyDelayedPrefix + q }
func keyDead(q string) string       { return keyDeadPrefix + q }
func keyJobs(q string) string       { return keyJobsPrefix + q }

// RedisBackend is the durable queue engine. Submissions persist in Redis
// and are consumed by worker processes started with StartWorker.
type RedisBackend struct {
	rdb      *goredis.Client
	registry *backend.CallableRegistry
	cfg      Config
	log      *logger.Logger

	workerCancel context.CancelFunc
	workerDone   chan struct{}
}

// New creates a Redis backend and verifies connectivity.
func New(ctx context.Context, cfg Config, registry *backend.CallableRegistry, log *logger.Logger) (*RedisBackend, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fperrors.Configuration("backend.redis", "project config", err.Error())
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fperrors.BackendUnavailable("redis", err)
	}

	return &RedisBackend{
		rdb:      rdb,
		registry: registry,
		cfg:      cfg,
		log:      log.WithComponent("backend.redis"),
	}, nil
}

func (b *RedisBackend) Name() string { return "redis" }

// SupportsAsync is false: the callable runs in a worker process, not in
// the submitter's goroutine, so the suspendable path has nowhere to
// hand control back to.
func (b *RedisBackend) SupportsAsync() bool { return false }

func (b *RedisBackend) Enqueue(ctx context.Context, queue, callable string, args map[string]any) (*backend.JobHandle, error) {
	return b.Schedule(ctx, queue, callable, args, backend.Immediate())
}

func (b *RedisBackend) Schedule(ctx context.Context, queue, callable string, args map[string]any, trigger backend.Trigger) (*backend.JobHandle, error) {
	if err := trigger.Validate(); err != nil {
		return nil, err
	}
	if _, err := b.registry.Get(callable); err != nil {
		return nil, err
	}
	if queue == "" {
		queue = b.cfg.DefaultQueue
	}

	now := time.Now().UTC()
	record := &backend.JobRecord{
		ID:         uuid.NewString(),
		Queue:      queue,
		Callable:   callable,
		Args:       args,
		State:      backend.StatePending,
		EnqueuedAt: now,
	}
	if trigger.Kind != backend.TriggerImmediate {
		record.Trigger = &trigger
	}

	fireAt, pending := now, true
	if trigger.Kind != backend.TriggerImmediate {
		fireAt, pending = trigger.NextFire(now)
	}
	if pending && fireAt.After(now) {
		record.NextRunAt = &fireAt
	}

	if err := b.saveRecord(ctx, record); err != nil {
		return nil, err
	}
	if err := b.rdb.SAdd(ctx, keyJobs(queue), record.ID).Err(); err != nil {
		return nil, fperrors.BackendUnavailable("redis", err)
	}

	switch {
	case !pending:
		// date trigger already in the past; run it once, now
		fallthrough
	case !fireAt.After(now):
		if err := b.rdb.LPush(ctx, keyQueue(queue), record.ID).Err(); err != nil {
			return nil, fperrors.BackendUnavailable("redis", err)
		}
	default:
		member := goredis.Z{Score: float64(fireAt.UnixMilli()), Member: record.ID}
		if err := b.rdb.ZAdd(ctx, keyDelayed(queue), member).Err(); err != nil {
			return nil, fperrors.BackendUnavailable("redis", err)
		}
	}

	b.log.Debug("job submitted", map[string]interface{}{
		"job_id":   record.ID,
		"queue":    queue,
		"callable": callable,
		"trigger":  string(trigger.Kind),
	})
	return &backend.JobHandle{ID: record.ID, Queue: queue}, nil
}

func (b *RedisBackend) Cancel(ctx context.Context, h *backend.JobHandle) error {
	record, err := b.loadRecord(ctx, h.ID)
	if err != nil {
		return err
	}
	switch record.State {
	case backend.StatePending, backend.StatePaused:
		// guaranteed: the job has not started, pull it out of dispatch
		b.rdb.LRem(ctx, keyQueue(h.Queue), 0, h.ID)
		b.rdb.ZRem(ctx, keyDelayed(h.Queue), h.ID)
	case backend.StateRunning:
		// best-effort: the worker keeps the cancelled state on completion
	default:
		return fperrors.InvalidTransition(h.ID, string(record.State), "cancel")
	}
	record.State = backend.StateCancelled
	return b.saveRecord(ctx, record)
}

func (b *RedisBackend) Pause(ctx context.Context, h *backend.JobHandle) error {
	record, err := b.loadRecord(ctx, h.ID)
	if err != nil {
		return err
	}
	if record.State != backend.StatePending {
		return fperrors.InvalidTransition(h.ID, string(record.State), "pause")
	}
	b.rdb.LRem(ctx, keyQueue(h.Queue), 0, h.ID)
	b.rdb.ZRem(ctx, keyDelayed(h.Queue), h.ID)
	record.State = backend.StatePaused
	return b.saveRecord(ctx, record)
}

func (b *RedisBackend) Resume(ctx context.Context, h *backend.JobHandle) error {
	record, err := b.loadRecord(ctx, h.ID)
	if err != nil {
		return err
	}
	if record.State != backend.StatePaused {
		return fperrors.InvalidTransition(h.ID, string(record.State), "resume")
	}
	record.State = backend.StatePending
	if err := b.saveRecord(ctx, record); err != nil {
		return err
	}
	if record.NextRunAt != nil && record.NextRunAt.After(time.Now().UTC()) {
		member := goredis.Z{Score: float64(record.NextRunAt.UnixMilli()), Member: record.ID}
		return b.wrap(b.rdb.ZAdd(ctx, keyDelayed(h.Queue), member).Err())
	}
	return b.wrap(b.rdb.LPush(ctx, keyQueue(h.Queue), record.ID).Err())
}

func (b *RedisBackend) Status(ctx context.Context, h *backend.JobHandle) (backend.JobState, error) {
	record, err := b.loadRecord(ctx, h.ID)
	if err != nil {
		return "", err
	}
	return record.State, nil
}

func (b *RedisBackend) Record(ctx context.Context, h *backend.JobHandle) (*backend.JobRecord, error) {
	return b.loadRecord(ctx, h.ID)
}

func (b *RedisBackend) Purge(ctx context.Context, queue string) error {
	ids, err := b.rdb.SMembers(ctx, keyJobs(queue)).Result()
	if err != nil {
		return fperrors.BackendUnavailable("redis", err)
	}
	for _, id := range ids {
		b.rdb.Del(ctx, keyJob(id))
	}
	return b.wrap(b.rdb.Del(ctx,
		keyQueue(queue), keyProcessing(queue), keyDelayed(queue),
		keyDead(queue), keyJobs(queue),
	).Err())
}

func (b *RedisBackend) History(ctx context.Context, queue string) ([]backend.JobRecord, error) {
	ids, err := b.rdb.SMembers(ctx, keyJobs(queue)).Result()
	if err != nil {
		return nil, fperrors.BackendUnavailable("redis", err)
	}
	records := make([]backend.JobRecord, 0, len(ids))
	for _, id := range ids {
		record, lerr := b.loadRecord(ctx, id)
		if lerr != nil {
			if fperrors.IsKind(lerr, fperrors.KindBackend) {
				return nil, lerr
			}
			continue // record expired between SMEMBERS and load
		}
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].EnqueuedAt.After(records[j].EnqueuedAt)
	})
	return records, nil
}

func (b *RedisBackend) Close() error {
	if b.workerCancel != nil {
		b.workerCancel()
		<-b.workerDone
	}
	return b.rdb.Close()
}

func (b *RedisBackend) saveRecord(ctx context.Context, record *backend.JobRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fperrors.BackendUnavailable("redis", err)
	}
	return b.wrap(b.rdb.Set(ctx, keyJob(record.ID), string(data), 0).Err())
}

func (b *RedisBackend) loadRecord(ctx context.Context, id string) (*backend.JobRecord, error) {
	raw, err := b.rdb.Get(ctx, keyJob(id)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fperrors.JobNotFound(id)
		}
		return nil, fperrors.BackendUnavailable("redis", err)
	}
	var record backend.JobRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fperrors.BackendUnavailable("redis", err)
	}
	return &record, nil
}

func (b *RedisBackend) wrap(err error) error {
	if err != nil {
		return fperrors.BackendUnavailable("redis", err)
	}
	return nil
}

var _ backend.Backend = (*RedisBackend)(nil)
