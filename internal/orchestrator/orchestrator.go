package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cicconel11/TruthLayer-sub001/internal/collector"
	"github.com/cicconel11/TruthLayer-sub001/internal/config"
	"github.com/cicconel11/TruthLayer-sub001/internal/events"
	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
	"github.com/cicconel11/TruthLayer-sub001/internal/queries"
	"github.com/cicconel11/TruthLayer-sub001/internal/queue"
)

const (
	defaultPollInterval  = 2 * time.Second
	defaultCycleTimeout  = time.Hour
	defaultRetryAttempts = 3
)

var (
	// ErrInvalidCycle is returned when a cycle configuration fails validation.
	ErrInvalidCycle = errors.New("invalid cycle configuration")
	// ErrUnknownCycle is returned when executing a cycle id that was never registered.
	ErrUnknownCycle = errors.New("unknown cycle")
	// ErrExecutionNotFound is returned for operations on an unknown execution id.
	ErrExecutionNotFound = errors.New("execution not found")
	// ErrNotRunning is returned when an operation needs a started orchestrator.
	ErrNotRunning = errors.New("orchestrator is not running")
	// ErrExecutionNotFailed is returned when retrying an execution that is not failed.
	ErrExecutionNotFailed = errors.New("execution is not in a failed state")
)

// Orchestrator expands registered cycles into collection jobs and watches
// each execution to a terminal state. It owns one goroutine per live
// execution; everything else runs on callers' goroutines or inside the
// queue's handler.
type Orchestrator struct {
	cfg        config.OrchestratorConfig
	logger     logger.Logger
	bus        *events.Bus
	queue      *queue.Queue
	provider   queries.Provider
	collector  collector.Collector
	strategies []RecoveryStrategy

	mu         sync.RWMutex
	cycles     map[string]CycleConfig
	executions map[string]*Execution
	started    bool
	stopped    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator around its collaborators. The queue must have
// the collection handler registered (see Handler) before Start.
func New(cfg config.OrchestratorConfig, q *queue.Queue, provider queries.Provider, col collector.Collector, log logger.Logger, bus *events.Bus) *Orchestrator {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultCycleTimeout
	}
	if len(cfg.Engines) == 0 {
		cfg.Engines = append([]string(nil), config.DefaultEngines...)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg,
		logger:     log,
		bus:        bus,
		queue:      q,
		provider:   provider,
		collector:  col,
		strategies: DefaultStrategies(cfg.Engines),
		cycles:     make(map[string]CycleConfig),
		executions: make(map[string]*Execution),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetRecoveryStrategies replaces the recovery chain consulted after failed
// collection attempts.
func (o *Orchestrator) SetRecoveryStrategies(strategies []RecoveryStrategy) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.strategies = strategies
}

// RegisterCycle validates and registers a cycle. Re-registering an existing
// id replaces its configuration; executions already in flight keep the
// snapshot they started with.
func (o *Orchestrator) RegisterCycle(c CycleConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Name == "" {
		c.Name = c.ID
	}

	o.mu.Lock()
	o.cycles[c.ID] = c
	o.mu.Unlock()

	o.logger.Info("cycle registered",
		logger.String("cycle_id", c.ID),
		logger.String("query_set", c.QuerySet),
		logger.Int("query_count", c.QueryCount))
	return nil
}

// Cycles returns the registered cycles sorted by id.
func (o *Orchestrator) Cycles() []CycleConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]CycleConfig, 0, len(o.cycles))
	for _, c := range o.cycles {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetCycle returns a registered cycle by id.
func (o *Orchestrator) GetCycle(id string) (CycleConfig, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.cycles[id]
	return c, ok
}

// Start makes the orchestrator accept executions. The context parents every
// execution's poll loop; cancelling it stops them without finalizing.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return ErrNotRunning
	}
	if o.started {
		o.logger.Info("orchestrator already started")
		return nil
	}
	o.started = true
	o.ctx, o.cancel = context.WithCancel(ctx)

	o.logger.Info("orchestrator started", logger.Int("cycles", len(o.cycles)))
	return nil
}

// Stop halts the orchestrator and waits for its poll loops to exit. Live
// executions are left as they stand; the orchestrator cannot be restarted.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.started {
		o.stopped = true
		o.mu.Unlock()
		return
	}
	o.started = false
	o.stopped = true
	cancel := o.cancel
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
	o.logger.Info("orchestrator stopped")
}

// IsRunning reports whether Start has been called and Stop has not.
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.started
}

// ExecuteCycle creates a pending execution for the cycle and returns its id.
// Expansion into queue jobs and the watch loop run asynchronously; callers
// observe progress through GetExecutionStatus or bus signals.
func (o *Orchestrator) ExecuteCycle(cycleID string) (string, error) {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return "", ErrNotRunning
	}
	c, ok := o.cycles[cycleID]
	if !ok {
		o.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrUnknownCycle, cycleID)
	}

	exec := &Execution{
		ID:        uuid.NewString(),
		CycleID:   cycleID,
		Status:    StatusPending,
		StartedAt: time.Now(),
		cycle:     o.resolveLocked(c),
		outcomes:  make(map[string]queryOutcome),
		requests:  make(map[string]collector.Request),
	}
	exec.Progress.SuccessfulEngines = make(map[string]int)
	exec.Progress.FailedEngines = make(map[string]int)
	o.executions[exec.ID] = exec
	o.wg.Add(1)
	o.mu.Unlock()

	o.logger.Info("cycle execution created",
		logger.String("execution_id", exec.ID),
		logger.String("cycle_id", cycleID))
	go o.runExecution(exec.ID)
	return exec.ID, nil
}

// resolveLocked fills a cycle's zero fields from orchestrator defaults.
func (o *Orchestrator) resolveLocked(c CycleConfig) CycleConfig {
	if c.Name == "" {
		c.Name = c.ID
	}
	if len(c.Engines) == 0 {
		c.Engines = append([]string(nil), o.cfg.Engines...)
	}
	if c.RotationStrategy == "" {
		c.RotationStrategy = queries.RotationRoundRobin
	}
	if c.Priority == 0 {
		c.Priority = queue.PriorityNormal
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = defaultRetryAttempts
	}
	if c.Timeout <= 0 {
		c.Timeout = o.cfg.DefaultTimeout
	}
	if c.MaxResults <= 0 {
		c.MaxResults = o.cfg.MaxResults
	}
	return c
}

// runExecution drives one execution through expansion and the watch loop.
// Also used to re-run an execution that failed before expansion.
func (o *Orchestrator) runExecution(execID string) {
	defer o.wg.Done()

	o.mu.Lock()
	exec, ok := o.executions[execID]
	if !ok || exec.Status != StatusPending {
		o.mu.Unlock()
		return
	}
	exec.Status = StatusRunning
	cycle := exec.cycle
	payload := cyclePayload(exec)
	o.mu.Unlock()

	o.publish(events.New(events.CycleStarted, payload))

	qs, err := o.provider.GetQueriesForExecution(o.ctx, cycle.QuerySet, cycle.QueryCount, cycle.RotationStrategy)
	if err != nil {
		o.failExpansion(execID, fmt.Errorf("failed to fetch queries for set %q: %w", cycle.QuerySet, err))
		return
	}

	if !o.expand(execID, qs) {
		return
	}
	o.watch(execID, cycle.Timeout)
}

// failExpansion marks an execution failed before any jobs were created.
func (o *Orchestrator) failExpansion(execID string, cause error) {
	o.mu.Lock()
	exec, ok := o.executions[execID]
	if !ok || exec.Status.IsTerminal() {
		o.mu.Unlock()
		return
	}
	now := time.Now()
	exec.Status = StatusFailed
	exec.CompletedAt = &now
	exec.Errors = append(exec.Errors, cause.Error())
	payload := cyclePayload(exec)
	cycleID := exec.CycleID
	o.mu.Unlock()

	o.logger.Error("cycle execution failed before expansion",
		logger.String("execution_id", execID),
		logger.String("cycle_id", cycleID),
		logger.Error(cause))
	o.publish(events.NewError(events.CycleFailed, payload, cause))
}

// expand records the query list and enqueues one collection job per query.
// It reports false when the execution stopped being live during the fetch.
func (o *Orchestrator) expand(execID string, qs []queries.Query) bool {
	o.mu.Lock()
	exec, ok := o.executions[execID]
	if !ok || exec.Status != StatusRunning {
		o.mu.Unlock()
		return false
	}

	cycle := exec.cycle
	exec.queries = qs
	exec.Progress.TotalQueries = len(qs)
	for _, q := range qs {
		exec.outcomes[q.ID] = outcomePending
		o.enqueueLocked(exec, q)
	}
	enqueued := len(exec.JobIDs)
	o.mu.Unlock()

	o.logger.Info("cycle execution expanded",
		logger.String("execution_id", execID),
		logger.String("cycle_id", cycle.ID),
		logger.Int("queries", len(qs)),
		logger.Int("jobs", enqueued))
	return true
}

// enqueueLocked creates the collection job for one query and records it on
// the execution. An enqueue failure counts the query as failed immediately.
// Callers hold o.mu.
func (o *Orchestrator) enqueueLocked(exec *Execution, q queries.Query) bool {
	payload := CollectionPayload{
		ExecutionID: exec.ID,
		QueryID:     q.ID,
		Query:       q.Text,
		Engines:     append([]string(nil), exec.cycle.Engines...),
		MaxResults:  exec.cycle.MaxResults,
	}

	opts := []queue.Option{
		queue.WithPriority(exec.cycle.Priority),
		queue.WithMaxAttempts(exec.cycle.RetryAttempts),
	}
	if exec.cycle.RetryDelay > 0 {
		opts = append(opts, queue.WithRetryDelay(exec.cycle.RetryDelay))
	}

	jobID, err := o.queue.Enqueue(JobTypeCollection, payload, opts...)
	if err != nil {
		exec.outcomes[q.ID] = outcomeFailed
		exec.Progress.FailedQueries++
		exec.Errors = append(exec.Errors, fmt.Sprintf("query %q could not be enqueued: %v", q.Text, err))
		return false
	}

	exec.JobIDs = append(exec.JobIDs, jobID)
	exec.requests[jobID] = payload.request()
	return true
}

// watch polls the execution's jobs until they settle, the cycle timeout
// passes, or the orchestrator stops.
func (o *Orchestrator) watch(execID string, timeout time.Duration) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-deadline.C:
			o.finalize(execID, true)
			return
		case <-ticker.C:
			if o.settled(execID) {
				return
			}
		}
	}
}

// settled checks whether every job of the execution reached a terminal
// status, finalizing the execution when they have. It reports true when the
// watch loop can stop.
func (o *Orchestrator) settled(execID string) bool {
	o.mu.RLock()
	exec, ok := o.executions[execID]
	if !ok {
		o.mu.RUnlock()
		return true
	}
	if exec.Status.IsTerminal() {
		o.mu.RUnlock()
		return true
	}
	jobIDs := append([]string(nil), exec.JobIDs...)
	o.mu.RUnlock()

	for _, id := range jobIDs {
		if j := o.queue.Get(id); j != nil && !j.Status.IsTerminal() {
			return false
		}
	}

	o.finalize(execID, false)
	return true
}

// finalize moves a live execution to its terminal status. Queries that never
// resolved are absorbed into the failed count so the progress totals add up.
func (o *Orchestrator) finalize(execID string, timedOut bool) {
	o.mu.Lock()
	exec, ok := o.executions[execID]
	if !ok || exec.Status.IsTerminal() {
		o.mu.Unlock()
		return
	}

	for _, q := range exec.queries {
		if exec.outcomes[q.ID] != outcomePending {
			continue
		}
		exec.outcomes[q.ID] = outcomeFailed
		exec.Progress.FailedQueries++
		if timedOut {
			exec.Errors = append(exec.Errors, fmt.Sprintf("query %q did not resolve before the cycle timeout", q.Text))
		} else {
			exec.Errors = append(exec.Errors, fmt.Sprintf("query %q did not resolve", q.Text))
		}
	}

	now := time.Now()
	exec.CompletedAt = &now
	clear(exec.requests)
	failed := exec.Progress.FailedQueries
	total := exec.Progress.TotalQueries
	if failed > 0 {
		exec.Status = StatusFailed
	} else {
		exec.Status = StatusCompleted
	}
	status := exec.Status
	payload := cyclePayload(exec)
	cycleID := exec.CycleID
	results := exec.Progress.TotalResults
	o.mu.Unlock()

	fields := []logger.Field{
		logger.String("execution_id", execID),
		logger.String("cycle_id", cycleID),
		logger.Int("total_queries", total),
		logger.Int("failed_queries", failed),
		logger.Int("total_results", results),
		logger.Bool("timed_out", timedOut),
	}
	if status == StatusFailed {
		cause := fmt.Errorf("%d of %d queries failed", failed, total)
		o.logger.Error("cycle execution failed", append(fields, logger.Error(cause))...)
		o.publish(events.NewError(events.CycleFailed, payload, cause))
		return
	}
	o.logger.Info("cycle execution completed", fields...)
	o.publish(events.New(events.CycleCompleted, payload))
}

// CancelExecution cancels a pending or running execution. Unresolved queries
// are absorbed into the failed count; collection jobs already enqueued are
// not retracted, their late results are simply discarded. It reports whether
// a cancellation happened.
func (o *Orchestrator) CancelExecution(executionID string) bool {
	o.mu.Lock()
	exec, ok := o.executions[executionID]
	if !ok || exec.Status.IsTerminal() {
		o.mu.Unlock()
		return false
	}

	for _, q := range exec.queries {
		if exec.outcomes[q.ID] != outcomePending {
			continue
		}
		exec.outcomes[q.ID] = outcomeFailed
		exec.Progress.FailedQueries++
		exec.Errors = append(exec.Errors, fmt.Sprintf("query %q cancelled", q.Text))
	}

	now := time.Now()
	exec.Status = StatusCancelled
	exec.CompletedAt = &now
	clear(exec.requests)
	payload := cyclePayload(exec)
	cycleID := exec.CycleID
	o.mu.Unlock()

	o.logger.Info("cycle execution cancelled",
		logger.String("execution_id", executionID),
		logger.String("cycle_id", cycleID))
	o.publish(events.New(events.CycleCancelled, payload))
	return true
}

// RetryFailedCollections re-runs a failed execution's failed queries. The
// error list and failed count reset; completed queries keep their results.
// An execution that failed before expansion re-runs from the query fetch.
func (o *Orchestrator) RetryFailedCollections(executionID string) error {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return ErrNotRunning
	}
	exec, ok := o.executions[executionID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	if exec.Status != StatusFailed {
		status := exec.Status
		o.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrExecutionNotFailed, executionID, status)
	}

	exec.Errors = nil
	exec.Progress.FailedQueries = 0
	exec.CompletedAt = nil

	if len(exec.queries) == 0 {
		exec.Status = StatusPending
		o.wg.Add(1)
		o.mu.Unlock()

		o.logger.Info("retrying cycle execution from expansion",
			logger.String("execution_id", executionID))
		go o.runExecution(executionID)
		return nil
	}

	exec.Status = StatusRunning
	timeout := exec.cycle.Timeout
	retried := 0
	for _, q := range exec.queries {
		if exec.outcomes[q.ID] != outcomeFailed {
			continue
		}
		exec.outcomes[q.ID] = outcomePending
		if o.enqueueLocked(exec, q) {
			retried++
		}
	}
	payload := cyclePayload(exec)
	o.wg.Add(1)
	o.mu.Unlock()

	o.logger.Info("retrying failed collections",
		logger.String("execution_id", executionID),
		logger.Int("queries", retried))
	o.publish(events.New(events.CycleStarted, payload))
	go func() {
		defer o.wg.Done()
		o.watch(executionID, timeout)
	}()
	return nil
}

// GetExecutionStatus returns a snapshot of the execution, or nil when the id
// is unknown.
func (o *Orchestrator) GetExecutionStatus(executionID string) *Execution {
	o.mu.RLock()
	defer o.mu.RUnlock()

	exec, ok := o.executions[executionID]
	if !ok {
		return nil
	}
	return exec.snapshot()
}

// GetExecutions returns snapshots of every tracked execution, oldest first.
func (o *Orchestrator) GetExecutions() []*Execution {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]*Execution, 0, len(o.executions))
	for _, exec := range o.executions {
		out = append(out, exec.snapshot())
	}
	sortExecutions(out)
	return out
}

// GetCycleExecutions returns snapshots of the cycle's executions, oldest
// first.
func (o *Orchestrator) GetCycleExecutions(cycleID string) []*Execution {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []*Execution
	for _, exec := range o.executions {
		if exec.CycleID == cycleID {
			out = append(out, exec.snapshot())
		}
	}
	sortExecutions(out)
	return out
}

// GetActiveExecutions returns snapshots of executions that have not reached
// a terminal status, oldest first.
func (o *Orchestrator) GetActiveExecutions() []*Execution {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []*Execution
	for _, exec := range o.executions {
		if !exec.Status.IsTerminal() {
			out = append(out, exec.snapshot())
		}
	}
	sortExecutions(out)
	return out
}

func sortExecutions(execs []*Execution) {
	sort.Slice(execs, func(i, j int) bool {
		if !execs[i].StartedAt.Equal(execs[j].StartedAt) {
			return execs[i].StartedAt.Before(execs[j].StartedAt)
		}
		return execs[i].ID < execs[j].ID
	})
}

// GetStats summarizes registered cycles and tracked executions. History
// removed by CleanupOldExecutions no longer counts.
func (o *Orchestrator) GetStats() Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	stats := Stats{
		TotalCycles:     len(o.cycles),
		TotalExecutions: len(o.executions),
	}
	for _, exec := range o.executions {
		switch exec.Status {
		case StatusCompleted:
			stats.CompletedExecutions++
		case StatusFailed:
			stats.FailedExecutions++
		case StatusCancelled:
			stats.CancelledExecutions++
		default:
			stats.ActiveExecutions++
		}
		stats.QueriesCollected += exec.Progress.CompletedQueries
		stats.ResultsCollected += exec.Progress.TotalResults
	}
	return stats
}

// CleanupOldExecutions removes terminal executions older than the given
// number of days and returns how many were removed. Days of zero or less
// fall back to the configured cleanup age.
func (o *Orchestrator) CleanupOldExecutions(olderThanDays int) int {
	if olderThanDays <= 0 {
		olderThanDays = o.cfg.CleanupDays
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	o.mu.Lock()
	removed := 0
	for id, exec := range o.executions {
		if exec.Status.IsTerminal() && exec.CompletedAt != nil && exec.CompletedAt.Before(cutoff) {
			delete(o.executions, id)
			removed++
		}
	}
	o.mu.Unlock()

	if removed > 0 {
		o.logger.Info("old executions removed",
			logger.Int("count", removed),
			logger.Int("older_than_days", olderThanDays))
	}
	return removed
}

func cyclePayload(e *Execution) events.CyclePayload {
	return events.CyclePayload{
		CycleID:          e.CycleID,
		ExecutionID:      e.ID,
		Status:           string(e.Status),
		TotalQueries:     e.Progress.TotalQueries,
		CompletedQueries: e.Progress.CompletedQueries,
		FailedQueries:    e.Progress.FailedQueries,
		TotalResults:     e.Progress.TotalResults,
	}
}

func (o *Orchestrator) publish(e events.Event) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(e)
}
