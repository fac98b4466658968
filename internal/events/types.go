// Package events defines the engine's lifecycle signals and the in-process
// bus that carries them to monitoring subscribers.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies a lifecycle signal.
type Type string

// Queue signals.
const (
	// JobAdded is published when a job is enqueued.
	JobAdded Type = "job.added"
	// JobStarted is published when a job is dispatched to its handler.
	JobStarted Type = "job.started"
	// JobCompleted is published when a handler finishes successfully.
	JobCompleted Type = "job.completed"
	// JobFailed is published when a job fails terminally.
	JobFailed Type = "job.failed"
	// JobRetried is published when a failed attempt is rescheduled.
	JobRetried Type = "job.retried"
	// JobCancelled is published when a pending job is cancelled.
	JobCancelled Type = "job.cancelled"
)

// Scheduler signals.
const (
	// ScheduledJobStarted is published when a definition fires.
	ScheduledJobStarted Type = "scheduler.job_started"
	// ScheduledJobCompleted is published when a firing finishes successfully.
	ScheduledJobCompleted Type = "scheduler.job_completed"
	// ScheduledJobFailed is published when a firing fails.
	ScheduledJobFailed Type = "scheduler.job_failed"
	// CriticalJobFailed is published, in addition to ScheduledJobFailed, when
	// a definition on the critical allow-list fails.
	CriticalJobFailed Type = "scheduler.critical_failure"
	// StuckExecutionsDetected is published when the health check finds
	// executions running past the stuck threshold.
	StuckExecutionsDetected Type = "scheduler.stuck_executions"
)

// Orchestrator signals.
const (
	// CycleStarted is published when a cycle execution begins expanding.
	CycleStarted Type = "cycle.started"
	// CycleCompleted is published when an execution finalizes with no failures.
	CycleCompleted Type = "cycle.completed"
	// CycleFailed is published when an execution finalizes with failures.
	CycleFailed Type = "cycle.failed"
	// CycleCancelled is published when an execution is cancelled.
	CycleCancelled Type = "cycle.cancelled"
	// QueryCollected is published when one collection request succeeds.
	QueryCollected Type = "query.collected"
	// QueryFailed is published when one collection request fails an attempt.
	QueryFailed Type = "query.failed"
)

// Event is the envelope carried on the bus.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// New creates an event with a fresh id and timestamp.
func New(t Type, payload any) Event {
	return Event{
		ID:        uuid.New(),
		Type:      t,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// NewError creates an event carrying an error detail.
func NewError(t Type, payload any, err error) Event {
	e := New(t, payload)
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// JobPayload describes a queue job in a signal.
type JobPayload struct {
	JobID       string `json:"job_id"`
	JobType     string `json:"job_type"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	DurationMs  int64  `json:"duration_ms,omitempty"`
}

// ScheduledJobPayload describes one firing of a scheduled definition.
type ScheduledJobPayload struct {
	JobID       string        `json:"job_id"`
	Name        string        `json:"name"`
	ExecutionID string        `json:"execution_id"`
	Duration    time.Duration `json:"duration,omitempty"`
	Critical    bool          `json:"critical,omitempty"`
}

// StuckExecution describes one overdue execution in a stuck signal.
type StuckExecution struct {
	ExecutionID string        `json:"execution_id"`
	JobID       string        `json:"job_id"`
	Running     time.Duration `json:"running"`
}

// StuckExecutionsPayload lists executions running past the stuck threshold.
type StuckExecutionsPayload struct {
	Threshold  time.Duration    `json:"threshold"`
	Executions []StuckExecution `json:"executions"`
}

// CyclePayload describes a cycle execution in a signal.
type CyclePayload struct {
	CycleID          string `json:"cycle_id"`
	ExecutionID      string `json:"execution_id"`
	Status           string `json:"status"`
	TotalQueries     int    `json:"total_queries"`
	CompletedQueries int    `json:"completed_queries"`
	FailedQueries    int    `json:"failed_queries"`
	TotalResults     int    `json:"total_results"`
}

// QueryPayload describes one collection request in a signal.
type QueryPayload struct {
	ExecutionID string   `json:"execution_id"`
	QueryID     string   `json:"query_id"`
	Query       string   `json:"query"`
	Engines     []string `json:"engines"`
	ResultCount int      `json:"result_count,omitempty"`
	Attempt     int      `json:"attempt"`
}
