// Package queue provides the in-memory priority job queue: bounded-concurrency
// dispatch, per-job retry with backoff, timeout enforcement, and lifecycle
// signals for everything it does.
package queue

import (
	"fmt"
	"time"
)

// Status represents a job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// validTransitions lists the allowed status transitions.
var validTransitions = map[Status][]Status{
	StatusPending: {
		StatusRunning,   // Dispatched
		StatusCancelled, // Cancelled before dispatch
	},
	StatusRunning: {
		StatusCompleted, // Handler succeeded
		StatusFailed,    // Handler failed, no attempts left
		StatusPending,   // Handler failed, retry scheduled
	},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// ValidateTransition checks whether a status transition is allowed.
func ValidateTransition(from, to Status) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source status: %s", from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("invalid status transition from %s to %s", from, to)
}

// Job represents one unit of dispatchable work tracked by the queue.
type Job struct {
	// Identity
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Priority Priority `json:"priority"`
	Payload  any      `json:"payload,omitempty"`

	// Status
	Status      Status `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`

	// RetryDelay overrides the queue's retry delay for this job (0 = queue default).
	RetryDelay time.Duration `json:"retry_delay,omitempty"`

	// Timing
	CreatedAt   time.Time  `json:"created_at"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"` // Not eligible for dispatch before this time
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Results
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`

	// seq orders jobs with identical creation timestamps.
	seq uint64
}

// Clone returns a snapshot copy of the job. Payload and Result are shared
// references; everything else is copied.
func (j *Job) Clone() *Job {
	c := *j
	if j.ScheduledAt != nil {
		t := *j.ScheduledAt
		c.ScheduledAt = &t
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Duration returns the job's processing time, or 0 if it has not finished.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// eligibleAt reports whether the job may be dispatched at the given time.
func (j *Job) eligibleAt(now time.Time) bool {
	if j.Status != StatusPending {
		return false
	}
	return j.ScheduledAt == nil || !now.Before(*j.ScheduledAt)
}
