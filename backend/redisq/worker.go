package redisq

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/legout/flowerpower-sub010/backend"
	fperrors "github.com/legout/flowerpower-sub010/errors"
)

// StartWorker launches consumer goroutines for the requested queues and,
// with opts.WithScheduler, the promotion loop that moves due deferred
// jobs from the delayed set into their queue. Retries and recurring
// triggers ride the delayed set, so a deployment needs at least one
// worker with the scheduler enabled for those to fire.
func (b *RedisBackend) StartWorker(ctx context.Context, opts backend.WorkerOptions) error {
	if b.workerCancel != nil {
		return fperrors.InvalidTransition("worker", "running", "start")
	}

	queues := opts.Queues
	if len(queues) == 0 {
		queues = []string{b.cfg.DefaultQueue}
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	b.workerCancel = cancel
	b.workerDone = make(chan struct{})

	var wg sync.WaitGroup
	for _, queue := range queues {
		for i := 0; i < b.cfg.Concurrency; i++ {
			wg.Add(1)
			go func(queue string) {
				defer wg.Done()
				b.consume(workerCtx, queue)
			}(queue)
		}
		if opts.WithScheduler {
			wg.Add(1)
			go func(queue string) {
				defer wg.Done()
				b.promote(workerCtx, queue)
			}(queue)
		}
	}

	go func() {
		wg.Wait()
		close(b.workerDone)
	}()

	b.log.Info("worker started", map[string]interface{}{
		"queues":         queues,
		"concurrency":    b.cfg.Concurrency,
		"with_scheduler": opts.WithScheduler,
	})
	return nil
}

// StopWorker stops the consumer and scheduler loops and waits for
// in-flight jobs to finish.
func (b *RedisBackend) StopWorker(ctx context.Context) error {
	if b.workerCancel == nil {
		return nil
	}
	b.workerCancel()
	select {
	case <-b.workerDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.workerCancel = nil
	b.workerDone = nil
	return nil
}

func (b *RedisBackend) consume(ctx context.Context, queue string) {
	for {
		if ctx.Err() != nil {
			return
		}
		id, err := b.rdb.RPopLPush(ctx, keyQueue(queue), keyProcessing(queue)).Result()
		if err != nil {
			if !errors.Is(err, goredis.Nil) && ctx.Err() == nil {
				b.log.Warn("queue poll failed", map[string]interface{}{
					"queue": queue,
					"error": err.Error(),
				})
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.cfg.PollInterval):
			}
			continue
		}
		b.process(ctx, queue, id)
	}
}

func (b *RedisBackend) process(ctx context.Context, queue, id string) {
	defer b.rdb.LRem(context.Background(), keyProcessing(queue), 0, id)

	record, err := b.loadRecord(ctx, id)
	if err != nil {
		b.log.Warn("dequeued job has no record", map[string]interface{}{
			"job_id": id,
			"queue":  queue,
		})
		return
	}
	// cancelled or paused between submit and dispatch
	if record.State != backend.StatePending {
		return
	}

	fn, err := b.registry.Get(record.Callable)
	if err != nil {
		record.State = backend.StateFailed
		record.Error = err.Error()
		b.saveRecord(ctx, record)
		b.rdb.LPush(ctx, keyDead(queue), id)
		return
	}

	now := time.Now().UTC()
	record.State = backend.StateRunning
	record.LastRunAt = &now
	record.Attempts++
	record.NextRunAt = nil
	if err := b.saveRecord(ctx, record); err != nil {
		return
	}

	result, runErr := fn(ctx, record.Args)

	// a concurrent Cancel during the run wins over the outcome
	if fresh, ferr := b.loadRecord(ctx, id); ferr == nil && fresh.State == backend.StateCancelled {
		return
	}

	if runErr != nil {
		b.settleFailure(ctx, queue, record, runErr)
		return
	}
	b.settleSuccess(ctx, queue, record, result)
}

func (b *RedisBackend) settleSuccess(ctx context.Context, queue string, record *backend.JobRecord, result any) {
	record.Result = result
	record.Error = ""

	if record.Trigger != nil && record.Trigger.Recurring() {
		if next, ok := record.Trigger.NextFire(time.Now().UTC()); ok {
			record.State = backend.StatePending
			record.NextRunAt = &next
			b.saveRecord(ctx, record)
			member := goredis.Z{Score: float64(next.UnixMilli()), Member: record.ID}
			b.rdb.ZAdd(ctx, keyDelayed(queue), member)
			return
		}
	}

	record.State = backend.StateSucceeded
	b.saveRecord(ctx, record)
	b.log.Debug("job succeeded", map[string]interface{}{
		"job_id":   record.ID,
		"queue":    queue,
		"attempts": record.Attempts,
	})
}

func (b *RedisBackend) settleFailure(ctx context.Context, queue string, record *backend.JobRecord, runErr error) {
	record.Error = runErr.Error()

	if record.Attempts <= b.cfg.MaxRetries {
		delay := time.Duration(record.Attempts) * b.cfg.RetryBackoff
		next := time.Now().UTC().Add(delay)
		record.State = backend.StatePending
		record.NextRunAt = &next
		b.saveRecord(ctx, record)
		member := goredis.Z{Score: float64(next.UnixMilli()), Member: record.ID}
		b.rdb.ZAdd(ctx, keyDelayed(queue), member)
		b.log.Warn("job failed, retrying", map[string]interface{}{
			"job_id":   record.ID,
			"queue":    queue,
			"attempts": record.Attempts,
			"retry_in": delay.String(),
			"error":    runErr.Error(),
		})
		return
	}

	record.State = backend.StateFailed
	b.saveRecord(ctx, record)
	b.rdb.LPush(ctx, keyDead(queue), record.ID)
	b.log.Error("job failed", map[string]interface{}{
		"job_id":   record.ID,
		"queue":    queue,
		"attempts": record.Attempts,
		"error":    runErr.Error(),
	})
}

// promote moves delayed jobs whose fire time has passed into the live
// queue.
func (b *RedisBackend) promote(ctx context.Context, queue string) {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now().UTC()
		due, err := b.rdb.ZRangeByScore(ctx, keyDelayed(queue), &goredis.ZRangeBy{
			Min: "-inf",
			Max: strconv.FormatInt(now.UnixMilli(), 10),
		}).Result()
		if err != nil {
			continue
		}
		for _, id := range due {
			if removed, rerr := b.rdb.ZRem(ctx, keyDelayed(queue), id).Result(); rerr != nil || removed == 0 {
				continue // another scheduler claimed it
			}
			b.rdb.LPush(ctx, keyQueue(queue), id)
		}
	}
}
