// Package orchestrator turns declarative collection cycles into batches of
// queue jobs and tracks each batch to a terminal outcome. A cycle names a
// query set, an engine list, and retry policy; executing it expands the set
// into one collection job per query, then a poll loop watches the jobs and
// finalizes the execution when they settle.
package orchestrator

import (
	"fmt"
	"time"

	"github.com/cicconel11/TruthLayer-sub001/internal/collector"
	"github.com/cicconel11/TruthLayer-sub001/internal/queries"
	"github.com/cicconel11/TruthLayer-sub001/internal/queue"
)

// JobTypeCollection is the queue job type for one query's collection request.
const JobTypeCollection = "collection"

// CycleConfig is the declarative template for a recurring collection campaign.
type CycleConfig struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	QuerySet         string         `json:"query_set"`
	Engines          []string       `json:"engines,omitempty"`
	QueryCount       int            `json:"query_count"`
	RotationStrategy string         `json:"rotation_strategy,omitempty"`
	Priority         queue.Priority `json:"priority,omitempty"`
	RetryAttempts    int            `json:"retry_attempts,omitempty"`
	RetryDelay       time.Duration  `json:"retry_delay,omitempty"`
	Timeout          time.Duration  `json:"timeout,omitempty"`
	MaxResults       int            `json:"max_results,omitempty"`
}

// Validate reports whether the cycle is well formed enough to register.
// Fields left zero are filled from orchestrator defaults at execution time.
func (c CycleConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: cycle id is required", ErrInvalidCycle)
	}
	if c.QuerySet == "" {
		return fmt.Errorf("%w: cycle %s has no query set", ErrInvalidCycle, c.ID)
	}
	if c.QueryCount <= 0 {
		return fmt.Errorf("%w: cycle %s query count must be positive", ErrInvalidCycle, c.ID)
	}
	switch c.RotationStrategy {
	case "", queries.RotationRoundRobin, queries.RotationRandom, queries.RotationCategoryBalanced:
	default:
		return fmt.Errorf("%w: cycle %s has unknown rotation strategy %q", ErrInvalidCycle, c.ID, c.RotationStrategy)
	}
	if c.Priority != 0 && !c.Priority.IsValid() {
		return fmt.Errorf("%w: cycle %s has invalid priority %d", ErrInvalidCycle, c.ID, int(c.Priority))
	}
	return nil
}

// Status is the lifecycle state of a cycle execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Progress counts an execution's work. SuccessfulEngines and FailedEngines
// accumulate per-engine outcomes across all of the execution's queries.
type Progress struct {
	TotalQueries      int            `json:"total_queries"`
	CompletedQueries  int            `json:"completed_queries"`
	FailedQueries     int            `json:"failed_queries"`
	TotalResults      int            `json:"total_results"`
	SuccessfulEngines map[string]int `json:"successful_engines,omitempty"`
	FailedEngines     map[string]int `json:"failed_engines,omitempty"`
}

// queryOutcome tracks where a single query stands within an execution.
type queryOutcome int

const (
	outcomePending queryOutcome = iota
	outcomeCompleted
	outcomeFailed
)

// Execution is one run of a cycle. The exported fields are the observable
// record; the unexported ones are bookkeeping guarded by the orchestrator
// mutex and never leave the package.
type Execution struct {
	ID          string     `json:"id"`
	CycleID     string     `json:"cycle_id"`
	Status      Status     `json:"status"`
	Progress    Progress   `json:"progress"`
	Errors      []string   `json:"errors,omitempty"`
	JobIDs      []string   `json:"job_ids,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	cycle    CycleConfig                  // resolved config snapshot taken at start
	queries  []queries.Query              // expanded query list, empty until the fetch succeeds
	outcomes map[string]queryOutcome      // query id -> current outcome
	requests map[string]collector.Request // job id -> request for the next attempt
}

// snapshot returns a copy safe to hand outside the orchestrator lock.
func (e *Execution) snapshot() *Execution {
	c := &Execution{
		ID:        e.ID,
		CycleID:   e.CycleID,
		Status:    e.Status,
		Progress:  e.Progress,
		StartedAt: e.StartedAt,
	}
	c.Progress.SuccessfulEngines = copyCounts(e.Progress.SuccessfulEngines)
	c.Progress.FailedEngines = copyCounts(e.Progress.FailedEngines)
	if len(e.Errors) > 0 {
		c.Errors = append([]string(nil), e.Errors...)
	}
	if len(e.JobIDs) > 0 {
		c.JobIDs = append([]string(nil), e.JobIDs...)
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

func copyCounts(m map[string]int) map[string]int {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CollectionPayload is the payload carried by collection jobs. It holds the
// original request shape; recovery strategies may reshape the live request
// tracked on the execution without touching the payload.
type CollectionPayload struct {
	ExecutionID string   `json:"execution_id"`
	QueryID     string   `json:"query_id"`
	Query       string   `json:"query"`
	Engines     []string `json:"engines"`
	MaxResults  int      `json:"max_results"`
}

// request builds the collector request described by the payload.
func (p CollectionPayload) request() collector.Request {
	return collector.Request{
		Query:      p.Query,
		Engines:    append([]string(nil), p.Engines...),
		MaxResults: p.MaxResults,
	}
}

// Stats summarizes the orchestrator's registered cycles and execution history.
type Stats struct {
	TotalCycles         int `json:"total_cycles"`
	TotalExecutions     int `json:"total_executions"`
	ActiveExecutions    int `json:"active_executions"`
	CompletedExecutions int `json:"completed_executions"`
	FailedExecutions    int `json:"failed_executions"`
	CancelledExecutions int `json:"cancelled_executions"`
	QueriesCollected    int `json:"queries_collected"`
	ResultsCollected    int `json:"results_collected"`
}
