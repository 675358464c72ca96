package backend

import "time"

// JobState is the lifecycle state of a unit of deferred work.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
	StatePaused    JobState = "paused"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// JobHandle is an opaque reference to a unit of deferred or recurring
// work. It is owned by the backend that created it; callers request state
// transitions through the Backend interface, never mutate it.
type JobHandle struct {
	ID    string
	Queue string
}

// JobRecord is the inspectable snapshot of a job.
type JobRecord struct {
	ID         string         `json:"id"`
	Queue      string         `json:"queue"`
	Callable   string         `json:"callable"`
	Args       map[string]any `json:"args,omitempty"`
	State      JobState       `json:"state"`
	Trigger    *Trigger       `json:"trigger,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	LastRunAt  *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt  *time.Time     `json:"next_run_at,omitempty"`
	Attempts   int            `json:"attempts"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}
