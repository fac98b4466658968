package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cicconel11/TruthLayer-sub001/internal/config"
	"github.com/cicconel11/TruthLayer-sub001/internal/events"
	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
)

const (
	defaultConcurrencyLimit = 5
	defaultDispatchInterval = 1 * time.Second
	defaultJobTimeout       = 10 * time.Minute
	defaultRetryDelay       = 30 * time.Second
	defaultMaxAttempts      = 3
	defaultGraceTimeout     = 30 * time.Second
)

var (
	// ErrQueueClosed is returned by Enqueue after the queue has been stopped.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrNoHandler marks the permanent failure of a job whose type has no
	// registered handler.
	ErrNoHandler = errors.New("no handler registered for job type")
)

// Queue is the in-memory priority job queue. A fixed-interval dispatch tick
// scans pending jobs and runs up to ConcurrencyLimit of them at once; failed
// attempts are rescheduled until the attempt budget is spent.
type Queue struct {
	cfg    config.QueueConfig
	logger logger.Logger
	bus    *events.Bus

	mu      sync.RWMutex
	jobs    map[string]*Job
	running int
	seq     uint64
	stats   *statsTracker
	started bool
	stopped bool

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	stopChan chan struct{}
	wg       sync.WaitGroup
	inflight sync.WaitGroup
}

// Option configures a job at enqueue time.
type Option func(*Job)

// WithPriority sets the job's priority.
func WithPriority(p Priority) Option {
	return func(j *Job) {
		j.Priority = p
	}
}

// WithScheduledAt defers the job's first dispatch until the given time.
func WithScheduledAt(t time.Time) Option {
	return func(j *Job) {
		ts := t
		j.ScheduledAt = &ts
	}
}

// WithMaxAttempts overrides the queue's default attempt budget.
func WithMaxAttempts(n int) Option {
	return func(j *Job) {
		j.MaxAttempts = n
	}
}

// WithRetryDelay overrides the queue's fixed delay between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(j *Job) {
		j.RetryDelay = d
	}
}

// New creates a job queue. The bus is optional; a nil bus disables signals.
func New(cfg config.QueueConfig, log logger.Logger, bus *events.Bus) *Queue {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = defaultConcurrencyLimit
	}
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = defaultDispatchInterval
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.GraceTimeout <= 0 {
		cfg.GraceTimeout = defaultGraceTimeout
	}

	return &Queue{
		cfg:      cfg,
		logger:   log,
		bus:      bus,
		jobs:     make(map[string]*Job),
		stats:    newStatsTracker(),
		handlers: make(map[string]Handler),
		stopChan: make(chan struct{}),
	}
}

// RegisterHandler binds a handler to a job type. Registering a type again
// replaces the previous handler.
func (q *Queue) RegisterHandler(jobType string, h Handler) {
	if jobType == "" || h == nil {
		return
	}

	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()

	if _, exists := q.handlers[jobType]; exists {
		q.logger.Warn("replacing registered handler", logger.String("job_type", jobType))
	}
	q.handlers[jobType] = h
}

// Enqueue adds a job to the queue and returns its id. The job starts pending
// and becomes eligible for dispatch on the next tick (or at its scheduled
// time, if set).
func (q *Queue) Enqueue(jobType string, payload any, opts ...Option) (string, error) {
	if jobType == "" {
		return "", errors.New("job type is required")
	}

	job := &Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Priority:    PriorityNormal,
		Payload:     payload,
		Status:      StatusPending,
		MaxAttempts: q.cfg.MaxAttempts,
		CreatedAt:   time.Now(),
	}
	for _, opt := range opts {
		opt(job)
	}

	if !job.Priority.IsValid() {
		return "", fmt.Errorf("invalid priority value: %d", int(job.Priority))
	}
	if job.MaxAttempts <= 0 {
		return "", errors.New("max attempts must be positive")
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return "", ErrQueueClosed
	}
	q.seq++
	job.seq = q.seq
	q.jobs[job.ID] = job
	q.mu.Unlock()

	q.logger.Debug("job enqueued",
		logger.String("job_id", job.ID),
		logger.String("job_type", jobType),
		logger.String("priority", job.Priority.String()))
	q.publish(events.New(events.JobAdded, jobPayload(job)))

	return job.ID, nil
}

// Cancel cancels a pending job. Returns false for running, terminal, or
// unknown jobs.
func (q *Queue) Cancel(jobID string) bool {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok || job.Status != StatusPending {
		q.mu.Unlock()
		return false
	}
	now := time.Now()
	job.Status = StatusCancelled
	job.CompletedAt = &now
	payload := jobPayload(job)
	q.mu.Unlock()

	q.logger.Info("job cancelled", logger.String("job_id", jobID))
	q.publish(events.New(events.JobCancelled, payload))

	return true
}

// Get returns a snapshot of the job, or nil if it is unknown.
func (q *Queue) Get(jobID string) *Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil
	}
	return job.Clone()
}

// List returns snapshots of every tracked job, oldest first.
func (q *Queue) List() []*Job {
	return q.list(func(*Job) bool { return true })
}

// ListByStatus returns snapshots of all jobs with the given status, oldest
// first.
func (q *Queue) ListByStatus(status Status) []*Job {
	return q.list(func(j *Job) bool { return j.Status == status })
}

// ListByType returns snapshots of all jobs with the given type, oldest first.
func (q *Queue) ListByType(jobType string) []*Job {
	return q.list(func(j *Job) bool { return j.Type == jobType })
}

func (q *Queue) list(match func(*Job) bool) []*Job {
	q.mu.RLock()
	jobs := make([]*Job, 0)
	for _, job := range q.jobs {
		if match(job) {
			jobs = append(jobs, job.Clone())
		}
	}
	q.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].seq < jobs[j].seq
	})
	return jobs
}

// Stats returns a snapshot of queue counters and timing.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{Total: len(q.jobs)}
	for _, job := range q.jobs {
		switch job.Status {
		case StatusPending:
			s.Pending++
		case StatusRunning:
			s.Running++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	s.ThroughputPerMinute = q.stats.throughput(time.Now())
	s.AvgProcessingTimeMs = q.stats.avgProcessingMs()
	return s
}

// Cleanup removes terminal jobs that finished before the cutoff and returns
// how many were removed. Pending and running jobs are never touched.
func (q *Queue) Cleanup(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	q.mu.Lock()
	removed := 0
	for id, job := range q.jobs {
		if job.Status.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed++
		}
	}
	q.mu.Unlock()

	if removed > 0 {
		q.logger.Info("cleaned up finished jobs", logger.Int("removed", removed))
	}
	return removed
}

// Start begins the dispatch loop. Calling Start on a started or stopped
// queue is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	q.wg.Add(1)
	go q.run(ctx)

	q.logger.Info("job queue started",
		logger.Int("concurrency_limit", q.cfg.ConcurrencyLimit),
		logger.Duration("dispatch_interval", q.cfg.DispatchInterval),
		logger.Duration("job_timeout", q.cfg.JobTimeout))
}

// Stop halts dispatch and waits up to graceTimeout (the configured grace
// timeout if zero) for in-flight jobs. Jobs still running afterwards are
// logged and left to finish in the background.
func (q *Queue) Stop(graceTimeout time.Duration) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	wasStarted := q.started
	q.stopped = true
	q.mu.Unlock()

	if wasStarted {
		close(q.stopChan)
		q.wg.Wait()
	}

	if graceTimeout <= 0 {
		graceTimeout = q.cfg.GraceTimeout
	}

	done := make(chan struct{})
	go func() {
		q.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("job queue stopped")
	case <-time.After(graceTimeout):
		q.logger.Warn("job queue stopped with jobs still in flight",
			logger.Duration("grace_timeout", graceTimeout))
	}
}

// IsRunning reports whether the dispatch loop is active.
func (q *Queue) IsRunning() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.started && !q.stopped
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.DispatchInterval)
	defer ticker.Stop()

	// Dispatch immediately on start
	q.dispatchOnce(ctx)

	for {
		select {
		case <-ticker.C:
			q.dispatchOnce(ctx)
		case <-q.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// dispatchOnce runs one dispatch tick: it fills free slots with eligible
// pending jobs in priority order, FIFO within a priority band.
func (q *Queue) dispatchOnce(ctx context.Context) {
	now := time.Now()

	q.mu.Lock()
	free := q.cfg.ConcurrencyLimit - q.running
	if free <= 0 {
		q.mu.Unlock()
		return
	}

	eligible := make([]*Job, 0, free)
	for _, job := range q.jobs {
		if job.eligibleAt(now) {
			eligible = append(eligible, job)
		}
	}
	if len(eligible) == 0 {
		q.mu.Unlock()
		return
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Priority.Weight() != b.Priority.Weight() {
			return a.Priority.Weight() < b.Priority.Weight()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.seq < b.seq
	})
	if len(eligible) > free {
		eligible = eligible[:free]
	}

	snapshots := make([]*Job, 0, len(eligible))
	for _, job := range eligible {
		job.Status = StatusRunning
		job.Attempts++
		started := now
		job.StartedAt = &started
		q.running++
		snapshots = append(snapshots, job.Clone())
	}
	q.mu.Unlock()

	for _, snap := range snapshots {
		q.logger.Debug("job dispatched",
			logger.String("job_id", snap.ID),
			logger.String("job_type", snap.Type),
			logger.Int("attempt", snap.Attempts))
		q.publish(events.New(events.JobStarted, jobPayload(snap)))

		q.inflight.Add(1)
		go q.execute(ctx, snap)
	}
}

type handlerResult struct {
	result any
	err    error
}

// execute runs one job attempt, racing the handler against the job timeout.
func (q *Queue) execute(ctx context.Context, snapshot *Job) {
	defer q.inflight.Done()

	handler := q.handlerFor(snapshot.Type)
	if handler == nil {
		q.failJob(snapshot.ID, fmt.Errorf("%w: %s", ErrNoHandler, snapshot.Type), true)
		return
	}

	hctx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
	defer cancel()

	done := make(chan handlerResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- handlerResult{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		result, err := handler(hctx, snapshot)
		done <- handlerResult{result: result, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			q.failJob(snapshot.ID, res.err, isPermanent(res.err))
			return
		}
		q.completeJob(snapshot.ID, res.result)
	case <-hctx.Done():
		// The handler goroutine may keep running; its result is discarded.
		err := hctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("job timed out after %s", q.cfg.JobTimeout)
		} else {
			err = fmt.Errorf("job interrupted: %w", err)
		}
		q.failJob(snapshot.ID, err, false)
	}
}

func (q *Queue) completeJob(jobID string, result any) {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok || job.Status != StatusRunning {
		q.mu.Unlock()
		return
	}

	now := time.Now()
	job.Status = StatusCompleted
	job.CompletedAt = &now
	job.Result = result
	job.Error = ""
	q.running--

	duration := job.Duration()
	q.stats.recordCompletion(now, duration)
	payload := jobPayload(job)
	payload.DurationMs = duration.Milliseconds()
	q.mu.Unlock()

	q.logger.Debug("job completed",
		logger.String("job_id", jobID),
		logger.Duration("duration", duration))
	q.publish(events.New(events.JobCompleted, payload))
}

// failJob records a failed attempt. Non-permanent failures with attempts left
// are rescheduled; everything else fails terminally.
func (q *Queue) failJob(jobID string, cause error, permanent bool) {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok || job.Status != StatusRunning {
		q.mu.Unlock()
		return
	}

	now := time.Now()
	job.Error = cause.Error()

	if !permanent && job.Attempts < job.MaxAttempts {
		delay := q.cfg.RetryDelay
		if job.RetryDelay > 0 {
			delay = job.RetryDelay
		}
		if d, ok := retryDelayFrom(cause); ok {
			delay = d
		}
		next := now.Add(delay)
		job.Status = StatusPending
		job.ScheduledAt = &next
		q.running--
		payload := jobPayload(job)
		attempt := job.Attempts
		maxAttempts := job.MaxAttempts
		q.mu.Unlock()

		q.logger.Warn("job attempt failed, retrying",
			logger.String("job_id", jobID),
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", maxAttempts),
			logger.Duration("retry_in", delay),
			logger.Error(cause))
		q.publish(events.NewError(events.JobRetried, payload, cause))
		return
	}

	job.Status = StatusFailed
	job.CompletedAt = &now
	q.running--
	payload := jobPayload(job)
	payload.DurationMs = job.Duration().Milliseconds()
	attempts := job.Attempts
	q.mu.Unlock()

	q.logger.Error("job failed",
		logger.String("job_id", jobID),
		logger.Int("attempts", attempts),
		logger.Error(cause))
	q.publish(events.NewError(events.JobFailed, payload, cause))
}

func (q *Queue) handlerFor(jobType string) Handler {
	q.handlersMu.RLock()
	defer q.handlersMu.RUnlock()
	return q.handlers[jobType]
}

func (q *Queue) publish(e events.Event) {
	if q.bus != nil {
		q.bus.Publish(e)
	}
}

func jobPayload(j *Job) events.JobPayload {
	return events.JobPayload{
		JobID:       j.ID,
		JobType:     j.Type,
		Priority:    j.Priority.String(),
		Status:      string(j.Status),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
	}
}
