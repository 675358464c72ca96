package schedstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/legout/flowerpower-sub010/backend"
	fperrors "github.com/legout/flowerpower-sub010/errors"
	"github.com/legout/flowerpower-sub010/logger"
)

// Config holds store and poll loop settings.
type Config struct {
	// Path is the SQLite database file, or ":memory:" for tests.
	Path string `mapstructure:"path"`

	// PollInterval is how often the loop checks for due jobs.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = ".flowerpower/scheduler.db"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
}

// SchedulerBackend is the persistent scheduler engine. Jobs and their
// triggers live in SQLite and the poll loop fires them in-process.
type SchedulerBackend struct {
	db       *gorm.DB
	registry *backend.CallableRegistry
	cfg      Config
	log      *logger.Logger

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// New opens the scheduler store and migrates its schema.
func New(cfg Config, registry *backend.CallableRegistry, log *logger.Logger) (*SchedulerBackend, error) {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fperrors.BackendUnavailable("scheduler", err)
	}
	if err := db.AutoMigrate(&ScheduledJob{}); err != nil {
		return nil, fperrors.BackendUnavailable("scheduler", err)
	}

	return &SchedulerBackend{
		db:       db,
		registry: registry,
		cfg:      cfg,
		log:      log.WithComponent("backend.scheduler"),
	}, nil
}

func (b *SchedulerBackend) Name() string { return "scheduler" }

// SupportsAsync is true: callables run in the scheduler's own process
// and may drive the suspendable path.
func (b *SchedulerBackend) SupportsAsync() bool { return true }

func (b *SchedulerBackend) Enqueue(ctx context.Context, queue, callable string, args map[string]any) (*backend.JobHandle, error) {
	return b.Schedule(ctx, queue, callable, args, backend.Immediate())
}

func (b *SchedulerBackend) Schedule(ctx context.Context, queue, callable string, args map[string]any, trigger backend.Trigger) (*backend.JobHandle, error) {
	if err := trigger.Validate(); err != nil {
		return nil, err
	}
	if _, err := b.registry.Get(callable); err != nil {
		return nil, err
	}
	if queue == "" {
		queue = "default"
	}

	job, err := newScheduledJob(uuid.NewString(), queue, callable, args, trigger)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if next, ok := trigger.NextFire(now); ok {
		job.NextRunAt = &next
	} else {
		// date trigger already in the past; fire on the next poll
		job.NextRunAt = &now
	}

	if err := b.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fperrors.BackendUnavailable("scheduler", err)
	}
	b.log.Debug("schedule stored", map[string]interface{}{
		"job_id":   job.ID,
		"queue":    queue,
		"callable": callable,
		"trigger":  job.TriggerKind,
	})
	return &backend.JobHandle{ID: job.ID, Queue: queue}, nil
}

func (b *SchedulerBackend) Cancel(ctx context.Context, h *backend.JobHandle) error {
	job, err := b.loadJob(ctx, h.ID)
	if err != nil {
		return err
	}
	state := backend.JobState(job.State)
	if state.Terminal() {
		return fperrors.InvalidTransition(h.ID, job.State, "cancel")
	}
	// pending and paused cancel before the run; a running job keeps the
	// cancelled state when the loop settles it
	return b.updateState(ctx, h.ID, backend.StateCancelled, map[string]any{"next_run_at": nil})
}

func (b *SchedulerBackend) Pause(ctx context.Context, h *backend.JobHandle) error {
	job, err := b.loadJob(ctx, h.ID)
	if err != nil {
		return err
	}
	if backend.JobState(job.State) != backend.StatePending {
		return fperrors.InvalidTransition(h.ID, job.State, "pause")
	}
	return b.updateState(ctx, h.ID, backend.StatePaused, nil)
}

func (b *SchedulerBackend) Resume(ctx context.Context, h *backend.JobHandle) error {
	job, err := b.loadJob(ctx, h.ID)
	if err != nil {
		return err
	}
	if backend.JobState(job.State) != backend.StatePaused {
		return fperrors.InvalidTransition(h.ID, job.State, "resume")
	}
	updates := map[string]any{}
	if job.NextRunAt == nil || !job.NextRunAt.After(time.Now().UTC()) {
		now := time.Now().UTC()
		updates["next_run_at"] = &now
	}
	return b.updateState(ctx, h.ID, backend.StatePending, updates)
}

func (b *SchedulerBackend) Status(ctx context.Context, h *backend.JobHandle) (backend.JobState, error) {
	job, err := b.loadJob(ctx, h.ID)
	if err != nil {
		return "", err
	}
	return backend.JobState(job.State), nil
}

func (b *SchedulerBackend) Record(ctx context.Context, h *backend.JobHandle) (*backend.JobRecord, error) {
	job, err := b.loadJob(ctx, h.ID)
	if err != nil {
		return nil, err
	}
	return job.record(), nil
}

func (b *SchedulerBackend) Purge(ctx context.Context, queue string) error {
	err := b.db.WithContext(ctx).Where("queue = ?", queue).Delete(&ScheduledJob{}).Error
	if err != nil {
		return fperrors.BackendUnavailable("scheduler", err)
	}
	return nil
}

func (b *SchedulerBackend) History(ctx context.Context, queue string) ([]backend.JobRecord, error) {
	var jobs []ScheduledJob
	err := b.db.WithContext(ctx).
		Where("queue = ?", queue).
		Order("created_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, fperrors.BackendUnavailable("scheduler", err)
	}
	records := make([]backend.JobRecord, 0, len(jobs))
	for i := range jobs {
		records = append(records, *jobs[i].record())
	}
	return records, nil
}

// StartWorker launches the poll loop. WithScheduler is implied; the
// engine has no separate consumer role.
func (b *SchedulerBackend) StartWorker(ctx context.Context, opts backend.WorkerOptions) error {
	if b.loopCancel != nil {
		return fperrors.InvalidTransition("scheduler", "running", "start")
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	b.loopCancel = cancel
	b.loopDone = make(chan struct{})
	go b.loop(loopCtx)
	b.log.Info("scheduler loop started", map[string]interface{}{
		"poll_interval": b.cfg.PollInterval.String(),
	})
	return nil
}

func (b *SchedulerBackend) StopWorker(ctx context.Context) error {
	if b.loopCancel == nil {
		return nil
	}
	b.loopCancel()
	select {
	case <-b.loopDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.loopCancel = nil
	b.loopDone = nil
	return nil
}

func (b *SchedulerBackend) Close() error {
	if b.loopCancel != nil {
		b.loopCancel()
		<-b.loopDone
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (b *SchedulerBackend) loop(ctx context.Context) {
	defer close(b.loopDone)
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		b.fireDue(ctx)
	}
}

func (b *SchedulerBackend) fireDue(ctx context.Context) {
	now := time.Now().UTC()
	var due []ScheduledJob
	err := b.db.WithContext(ctx).
		Where("state = ? AND next_run_at <= ?", string(backend.StatePending), now).
		Find(&due).Error
	if err != nil {
		b.log.Warn("due query failed", map[string]interface{}{"error": err.Error()})
		return
	}

	for i := range due {
		job := &due[i]
		// claim: only one loop instance flips pending to running
		claim := b.db.WithContext(ctx).Model(&ScheduledJob{}).
			Where("id = ? AND state = ?", job.ID, string(backend.StatePending)).
			Updates(map[string]any{
				"state":       string(backend.StateRunning),
				"last_run_at": now,
				"attempts":    gorm.Expr("attempts + 1"),
			})
		if claim.Error != nil || claim.RowsAffected == 0 {
			continue
		}
		b.run(ctx, job)
	}
}

func (b *SchedulerBackend) run(ctx context.Context, job *ScheduledJob) {
	fn, err := b.registry.Get(job.Callable)
	if err != nil {
		b.settle(ctx, job, nil, err)
		return
	}

	var args map[string]any
	if len(job.Args) > 0 {
		if uerr := json.Unmarshal(job.Args, &args); uerr != nil {
			b.settle(ctx, job, nil, fmt.Errorf("corrupt args: %w", uerr))
			return
		}
	}

	result, runErr := fn(ctx, args)
	b.settle(ctx, job, result, runErr)
}

func (b *SchedulerBackend) settle(ctx context.Context, job *ScheduledJob, result any, runErr error) {
	// a Cancel issued while the callable ran wins over the outcome
	if fresh, err := b.loadJob(ctx, job.ID); err == nil &&
		backend.JobState(fresh.State) == backend.StateCancelled {
		return
	}

	updates := map[string]any{"next_run_at": nil}

	if runErr != nil {
		updates["state"] = string(backend.StateFailed)
		updates["last_error"] = runErr.Error()
		b.log.Error("scheduled job failed", map[string]interface{}{
			"job_id":   job.ID,
			"queue":    job.Queue,
			"callable": job.Callable,
			"error":    runErr.Error(),
		})
	} else {
		resultJSON, _ := json.Marshal(result)
		updates["result"] = resultJSON
		updates["last_error"] = ""

		trigger := job.trigger()
		if next, ok := nextRecurring(trigger); ok {
			updates["state"] = string(backend.StatePending)
			updates["next_run_at"] = &next
		} else {
			updates["state"] = string(backend.StateSucceeded)
		}
	}

	if err := b.db.WithContext(ctx).Model(&ScheduledJob{}).
		Where("id = ?", job.ID).Updates(updates).Error; err != nil {
		b.log.Warn("settle failed", map[string]interface{}{
			"job_id": job.ID,
			"error":  err.Error(),
		})
	}
}

func nextRecurring(trigger backend.Trigger) (time.Time, bool) {
	if !trigger.Recurring() {
		return time.Time{}, false
	}
	return trigger.NextFire(time.Now().UTC())
}

func (b *SchedulerBackend) loadJob(ctx context.Context, id string) (*ScheduledJob, error) {
	var job ScheduledJob
	err := b.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fperrors.JobNotFound(id)
		}
		return nil, fperrors.BackendUnavailable("scheduler", err)
	}
	return &job, nil
}

func (b *SchedulerBackend) updateState(ctx context.Context, id string, state backend.JobState, extra map[string]any) error {
	updates := map[string]any{"state": string(state)}
	for k, v := range extra {
		updates[k] = v
	}
	err := b.db.WithContext(ctx).Model(&ScheduledJob{}).
		Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return fperrors.BackendUnavailable("scheduler", err)
	}
	return nil
}

var _ backend.Backend = (*SchedulerBackend)(nil)
