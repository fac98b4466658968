// Package scheduler owns long-lived recurring job definitions and their cron
// bindings. Definitions are registered permissively; expressions are validated
// when the scheduler starts. Every firing is tracked as an execution so stuck
// work can be detected and reported.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/cicconel11/TruthLayer-sub001/internal/config"
	"github.com/cicconel11/TruthLayer-sub001/internal/events"
	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
)

const (
	defaultStopTimeout    = 30 * time.Second
	defaultStuckThreshold = 2 * time.Hour
)

// Execution triggers.
const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

var (
	// ErrDuplicateJob is returned when a job id is registered twice.
	ErrDuplicateJob = errors.New("job id already registered")

	// ErrJobNotFound is returned when a job id is unknown.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobRunning is returned by TriggerJob when the definition already has
	// an active execution.
	ErrJobRunning = errors.New("job is already running")

	// ErrSchedulerStopped is returned when a run is requested after Stop.
	ErrSchedulerStopped = errors.New("scheduler is stopped")
)

// HandlerFunc is the work bound to a scheduled definition.
type HandlerFunc func(ctx context.Context) error

// jobDefinition is the scheduler's internal record for one recurring job.
type jobDefinition struct {
	id          string
	name        string
	description string
	cronExpr    string
	handler     HandlerFunc
	enabled     bool
	critical    bool

	runCount        int64
	failureCount    int64
	skippedOverlaps int64
	lastRun         *time.Time
	lastError       string
}

// JobStatus is a snapshot of one definition's configuration and counters.
type JobStatus struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	CronExpr        string     `json:"cron"`
	Enabled         bool       `json:"enabled"`
	Critical        bool       `json:"critical"`
	RunCount        int64      `json:"run_count"`
	FailureCount    int64      `json:"failure_count"`
	SkippedOverlaps int64      `json:"skipped_overlaps,omitempty"`
	LastRun         *time.Time `json:"last_run,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	NextRun         *time.Time `json:"next_run,omitempty"`
}

// Execution is one in-flight firing of a definition.
type Execution struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	JobName   string    `json:"job_name"`
	Trigger   string    `json:"trigger"`
	StartedAt time.Time `json:"started_at"`
}

// Stats summarizes the scheduler.
type Stats struct {
	TotalJobs        int           `json:"total_jobs"`
	EnabledJobs      int           `json:"enabled_jobs"`
	ActiveExecutions int           `json:"active_executions"`
	TotalRuns        int64         `json:"total_runs"`
	TotalFailures    int64         `json:"total_failures"`
	Uptime           time.Duration `json:"uptime"`
}

// JobOption configures a definition at registration time.
type JobOption func(*jobDefinition)

// WithDisabled registers the definition without binding it at start.
func WithDisabled() JobOption {
	return func(d *jobDefinition) {
		d.enabled = false
	}
}

// WithCritical marks the definition so its failures raise a critical signal.
func WithCritical() JobOption {
	return func(d *jobDefinition) {
		d.critical = true
	}
}

// Scheduler manages cron-driven recurring jobs.
type Scheduler struct {
	cfg    config.SchedulerConfig
	logger logger.Logger
	bus    *events.Bus

	cron *cron.Cron

	mu        sync.RWMutex
	jobs      map[string]*jobDefinition
	entries   map[string]cron.EntryID
	active    map[string]*Execution
	started   bool
	stopped   bool
	startedAt time.Time

	totalRuns     int64
	totalFailures int64

	// lifecycle context cancelled on Stop; handlers receive it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. The bus is optional; a nil bus disables signals.
func New(cfg config.SchedulerConfig, log logger.Logger, bus *events.Bus) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = defaultStuckThreshold
	}

	c := cron.New(cron.WithParser(standardParser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cfg:     cfg,
		logger:  log,
		bus:     bus,
		cron:    c,
		jobs:    make(map[string]*jobDefinition),
		entries: make(map[string]cron.EntryID),
		active:  make(map[string]*Execution),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddJob registers a recurring job definition. The cron expression is not
// validated here; Start validates every enabled definition before binding.
// Registering an id twice fails and leaves the existing definition untouched.
func (s *Scheduler) AddJob(id, name, description, cronExpr string, h HandlerFunc, opts ...JobOption) error {
	if id == "" {
		return errors.New("job id is required")
	}
	if h == nil {
		return errors.New("job handler is required")
	}

	def := &jobDefinition{
		id:          id,
		name:        name,
		description: description,
		cronExpr:    cronExpr,
		handler:     h,
		enabled:     true,
	}
	for _, opt := range opts {
		opt(def)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, id)
	}
	s.jobs[id] = def

	if s.started && def.enabled {
		if err := s.bindLocked(def); err != nil {
			def.enabled = false
			def.lastError = err.Error()
			s.logger.Error("failed to bind cron for new job, definition disabled",
				logger.String("job_id", id),
				logger.String("cron", cronExpr),
				logger.Error(err))
			return nil
		}
	}

	s.logger.Debug("job registered",
		logger.String("job_id", id),
		logger.String("cron", cronExpr),
		logger.Bool("enabled", def.enabled))
	return nil
}

// RemoveJob unbinds and deletes a definition. Returns false for unknown ids.
func (s *Scheduler) RemoveJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return false
	}
	s.unbindLocked(id)
	delete(s.jobs, id)

	s.logger.Info("job removed", logger.String("job_id", id))
	return true
}

// EnableJob enables a definition, binding its cron immediately when the
// scheduler is running. Returns false for unknown ids or when the expression
// cannot be bound.
func (s *Scheduler) EnableJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, exists := s.jobs[id]
	if !exists {
		return false
	}
	if def.enabled {
		return true
	}

	def.enabled = true
	if s.started {
		if err := s.bindLocked(def); err != nil {
			def.enabled = false
			def.lastError = err.Error()
			s.logger.Error("failed to bind cron on enable",
				logger.String("job_id", id),
				logger.String("cron", def.cronExpr),
				logger.Error(err))
			return false
		}
	}

	s.logger.Info("job enabled", logger.String("job_id", id))
	return true
}

// DisableJob unbinds a definition's cron without touching its counters.
// Returns false for unknown ids.
func (s *Scheduler) DisableJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, exists := s.jobs[id]
	if !exists {
		return false
	}

	def.enabled = false
	s.unbindLocked(id)

	s.logger.Info("job disabled", logger.String("job_id", id))
	return true
}

// TriggerJob runs a definition immediately, bypassing cron but sharing the
// execution-tracking path. It blocks until the handler returns.
func (s *Scheduler) TriggerJob(ctx context.Context, id string) error {
	return s.runJob(ctx, id, TriggerManual)
}

// Start validates every enabled definition's cron expression, binds them, and
// starts the cron engine. A second Start logs and no-ops.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.logger.Info("scheduler already started")
		return nil
	}
	if s.stopped {
		return ErrSchedulerStopped
	}

	// Validate everything before binding anything.
	var invalid []string
	for id, def := range s.jobs {
		if !def.enabled {
			continue
		}
		if _, err := standardParser.Parse(def.cronExpr); err != nil {
			invalid = append(invalid, id)
			s.logger.Error("invalid cron expression",
				logger.String("job_id", id),
				logger.String("cron", def.cronExpr),
				logger.Error(err))
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return fmt.Errorf("invalid cron expressions for jobs: %s", strings.Join(invalid, ", "))
	}

	enabled := 0
	for _, def := range s.jobs {
		if !def.enabled {
			continue
		}
		if err := s.bindLocked(def); err != nil {
			return fmt.Errorf("failed to bind job %s: %w", def.id, err)
		}
		enabled++
	}

	s.cron.Start()
	s.started = true
	s.startedAt = time.Now()

	s.logger.Info("scheduler started",
		logger.Int("jobs", len(s.jobs)),
		logger.Int("enabled", enabled))
	return nil
}

// Stop unbinds all cron entries and waits for active executions, bounded by
// the context and the configured stop timeout.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.stopped = true
	for id := range s.entries {
		s.unbindLocked(id)
	}
	s.mu.Unlock()

	s.cancel()
	cronCtx := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	stopCtx, cancel := context.WithTimeout(ctx, s.cfg.StopTimeout)
	defer cancel()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-stopCtx.Done():
		s.mu.RLock()
		remaining := len(s.active)
		s.mu.RUnlock()
		s.logger.Warn("scheduler stopped with executions still active",
			logger.Int("active", remaining))
		return stopCtx.Err()
	}
}

// IsRunning reports whether the cron engine is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// GetJobStatus returns a snapshot of one definition, or nil if unknown.
func (s *Scheduler) GetJobStatus(id string) *JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, exists := s.jobs[id]
	if !exists {
		return nil
	}
	status := s.statusLocked(def)
	return &status
}

// GetAllJobsStatus returns snapshots of every definition, ordered by id.
func (s *Scheduler) GetAllJobsStatus() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for _, def := range s.jobs {
		statuses = append(statuses, s.statusLocked(def))
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

// GetActiveExecutions returns the in-flight executions, oldest first.
func (s *Scheduler) GetActiveExecutions() []Execution {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execs := make([]Execution, 0, len(s.active))
	for _, e := range s.active {
		execs = append(execs, *e)
	}
	sort.Slice(execs, func(i, j int) bool { return execs[i].StartedAt.Before(execs[j].StartedAt) })
	return execs
}

// GetStats summarizes the scheduler's definitions and counters.
func (s *Scheduler) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		TotalJobs:        len(s.jobs),
		ActiveExecutions: len(s.active),
		TotalRuns:        s.totalRuns,
		TotalFailures:    s.totalFailures,
	}
	for _, def := range s.jobs {
		if def.enabled {
			stats.EnabledJobs++
		}
	}
	if s.started {
		stats.Uptime = time.Since(s.startedAt)
	}
	return stats
}

// CheckStuckExecutions reports executions running past the stuck threshold.
// Offenders are signalled for external alerting, never killed.
func (s *Scheduler) CheckStuckExecutions() []Execution {
	now := time.Now()

	s.mu.RLock()
	var stuck []Execution
	for _, e := range s.active {
		if now.Sub(e.StartedAt) > s.cfg.StuckThreshold {
			stuck = append(stuck, *e)
		}
	}
	s.mu.RUnlock()

	if len(stuck) == 0 {
		return nil
	}

	sort.Slice(stuck, func(i, j int) bool { return stuck[i].StartedAt.Before(stuck[j].StartedAt) })

	payload := events.StuckExecutionsPayload{Threshold: s.cfg.StuckThreshold}
	for _, e := range stuck {
		payload.Executions = append(payload.Executions, events.StuckExecution{
			ExecutionID: e.ID,
			JobID:       e.JobID,
			Running:     now.Sub(e.StartedAt),
		})
		s.logger.Warn("stuck execution detected",
			logger.String("execution_id", e.ID),
			logger.String("job_id", e.JobID),
			logger.Duration("running", now.Sub(e.StartedAt)))
	}
	s.publish(events.New(events.StuckExecutionsDetected, payload))

	return stuck
}

// bindLocked adds a cron entry for the definition. Callers hold s.mu.
func (s *Scheduler) bindLocked(def *jobDefinition) error {
	if _, bound := s.entries[def.id]; bound {
		return nil
	}

	jobID := def.id
	entryID, err := s.cron.AddFunc(def.cronExpr, func() {
		// Errors are tracked on the definition and signalled.
		_ = s.runJob(s.ctx, jobID, TriggerCron)
	})
	if err != nil {
		return fmt.Errorf("failed to parse cron expression: %w", err)
	}
	s.entries[def.id] = entryID

	if s.started {
		next := s.cron.Entry(entryID).Next
		s.logger.Info("job bound",
			logger.String("job_id", def.id),
			logger.String("cron", def.cronExpr),
			logger.Time("next_run", next))
	}
	return nil
}

// unbindLocked removes the definition's cron entry if present. Callers hold
// s.mu.
func (s *Scheduler) unbindLocked(id string) {
	if entryID, bound := s.entries[id]; bound {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
}

// runJob executes one firing of a definition. A firing that finds the same
// definition already executing is skipped and counted, not queued.
func (s *Scheduler) runJob(ctx context.Context, id, trigger string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSchedulerStopped, id)
	}
	def, exists := s.jobs[id]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if s.hasActiveLocked(id) {
		def.skippedOverlaps++
		s.mu.Unlock()
		s.logger.Warn("job already running, skipping firing",
			logger.String("job_id", id),
			logger.String("trigger", trigger))
		return fmt.Errorf("%w: %s", ErrJobRunning, id)
	}

	exec := &Execution{
		ID:        uuid.NewString(),
		JobID:     id,
		JobName:   def.name,
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	s.active[exec.ID] = exec
	handler := def.handler
	critical := def.critical || s.inCriticalList(id)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	payload := events.ScheduledJobPayload{
		JobID:       id,
		Name:        exec.JobName,
		ExecutionID: exec.ID,
		Critical:    critical,
	}

	s.logger.Info("scheduled job started",
		logger.String("job_id", id),
		logger.String("execution_id", exec.ID),
		logger.String("trigger", trigger))
	s.publish(events.New(events.ScheduledJobStarted, payload))

	err := s.invoke(ctx, handler)
	duration := time.Since(exec.StartedAt)
	now := time.Now()

	s.mu.Lock()
	delete(s.active, exec.ID)
	def.lastRun = &now
	s.totalRuns++
	if err != nil {
		def.failureCount++
		def.lastError = err.Error()
		s.totalFailures++
	} else {
		def.runCount++
		def.lastError = ""
	}
	s.mu.Unlock()

	payload.Duration = duration
	if err != nil {
		s.logger.Error("scheduled job failed",
			logger.String("job_id", id),
			logger.String("execution_id", exec.ID),
			logger.Duration("duration", duration),
			logger.Error(err))
		s.publish(events.NewError(events.ScheduledJobFailed, payload, err))
		if critical {
			s.publish(events.NewError(events.CriticalJobFailed, payload, err))
		}
		return err
	}

	s.logger.Info("scheduled job completed",
		logger.String("job_id", id),
		logger.String("execution_id", exec.ID),
		logger.Duration("duration", duration))
	s.publish(events.New(events.ScheduledJobCompleted, payload))
	return nil
}

// invoke runs the handler, converting panics to errors.
func (s *Scheduler) invoke(ctx context.Context, h HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx)
}

func (s *Scheduler) hasActiveLocked(jobID string) bool {
	for _, e := range s.active {
		if e.JobID == jobID {
			return true
		}
	}
	return false
}

func (s *Scheduler) inCriticalList(jobID string) bool {
	list := s.cfg.CriticalJobs
	if len(list) == 0 {
		list = defaultCriticalJobs
	}
	for _, id := range list {
		if id == jobID {
			return true
		}
	}
	return false
}

func (s *Scheduler) statusLocked(def *jobDefinition) JobStatus {
	status := JobStatus{
		ID:              def.id,
		Name:            def.name,
		Description:     def.description,
		CronExpr:        def.cronExpr,
		Enabled:         def.enabled,
		Critical:        def.critical || s.inCriticalList(def.id),
		RunCount:        def.runCount,
		FailureCount:    def.failureCount,
		SkippedOverlaps: def.skippedOverlaps,
		LastError:       def.lastError,
	}
	if def.lastRun != nil {
		t := *def.lastRun
		status.LastRun = &t
	}
	if entryID, bound := s.entries[def.id]; bound && s.started {
		next := s.cron.Entry(entryID).Next
		if !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}

func (s *Scheduler) publish(e events.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}
