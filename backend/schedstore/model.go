package schedstore

import (
	"encoding/json"
	"time"

	"github.com/legout/flowerpower-sub010/backend"
	fperrors "github.com/legout/flowerpower-sub010/errors"
)

// ScheduledJob is the persisted form of a job and its trigger. Args and
// Result are JSON columns; trigger fields are flattened so the poll loop
// can query on them directly.
type ScheduledJob struct {
	ID       string `gorm:"primaryKey"`
	Queue    string `gorm:"index"`
	Callable string
	Args     []byte

	TriggerKind string
	Period      int64 // nanoseconds, interval triggers
	StartAt     *time.Time
	EndAt       *time.Time
	CronExpr    string
	Location    string
	RunAt       *time.Time

	State     string     `gorm:"index"`
	NextRunAt *time.Time `gorm:"index"`
	LastRunAt *time.Time
	Attempts  int
	Result    []byte
	LastError string

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func newScheduledJob(id, queue, callable string, args map[string]any, trigger backend.Trigger) (*ScheduledJob, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fperrors.Configuration("args", "job submission", err.Error())
	}
	job := &ScheduledJob{
		ID:          id,
		Queue:       queue,
		Callable:    callable,
		Args:        argsJSON,
		TriggerKind: string(trigger.Kind),
		Period:      int64(trigger.Period),
		StartAt:     trigger.StartAt,
		EndAt:       trigger.EndAt,
		CronExpr:    trigger.Expr,
		Location:    trigger.Location,
		RunAt:       trigger.At,
		State:       string(backend.StatePending),
	}
	return job, nil
}

func (j *ScheduledJob) trigger() backend.Trigger {
	return backend.Trigger{
		Kind:     backend.TriggerKind(j.TriggerKind),
		Period:   time.Duration(j.Period),
		StartAt:  j.StartAt,
		EndAt:    j.EndAt,
		Expr:     j.CronExpr,
		Location: j.Location,
		At:       j.RunAt,
	}
}

func (j *ScheduledJob) record() *backend.JobRecord {
	record := &backend.JobRecord{
		ID:         j.ID,
		Queue:      j.Queue,
		Callable:   j.Callable,
		State:      backend.JobState(j.State),
		EnqueuedAt: j.CreatedAt,
		LastRunAt:  j.LastRunAt,
		NextRunAt:  j.NextRunAt,
		Attempts:   j.Attempts,
		Error:      j.LastError,
	}
	trigger := j.trigger()
	if trigger.Kind != backend.TriggerImmediate {
		record.Trigger = &trigger
	}
	if len(j.Args) > 0 {
		var args map[string]any
		if err := json.Unmarshal(j.Args, &args); err == nil {
			record.Args = args
		}
	}
	if len(j.Result) > 0 {
		var result any
		if err := json.Unmarshal(j.Result, &result); err == nil {
			record.Result = result
		}
	}
	return record
}
