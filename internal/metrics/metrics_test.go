package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cicconel11/TruthLayer-sub001/internal/events"
	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
)

func newTestRecorder(t *testing.T) (*Recorder, *events.Bus) {
	t.Helper()

	bus := events.NewBus(logger.NewNop())
	r := NewRecorder(nil, bus, logger.NewNop())
	if err := r.Start(); err != nil {
		t.Fatalf("start recorder: %v", err)
	}
	t.Cleanup(func() {
		r.Stop()
		bus.Close()
	})
	return r, bus
}

// waitForValue polls an instrument until it reaches want. The recorder drains
// its subscription asynchronously, so assertions after a publish must wait.
func waitForValue(t *testing.T, c prometheus.Collector, want float64) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(c) == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("instrument stuck at %v, want %v", testutil.ToFloat64(c), want)
}

func TestRecorderQueueSignals(t *testing.T) {
	r, bus := newTestRecorder(t)

	job := events.JobPayload{JobID: "j1", JobType: "collection", Priority: "high", MaxAttempts: 3}

	// j1 runs once and completes.
	bus.Publish(events.New(events.JobAdded, job))
	bus.Publish(events.New(events.JobStarted, job))
	done := job
	done.Status = "completed"
	done.DurationMs = 1500
	bus.Publish(events.New(events.JobCompleted, done))

	// j2 fails once, retries, then fails terminally.
	job2 := events.JobPayload{JobID: "j2", JobType: "collection", Priority: "normal", MaxAttempts: 2}
	bus.Publish(events.New(events.JobAdded, job2))
	bus.Publish(events.New(events.JobStarted, job2))
	bus.Publish(events.NewError(events.JobRetried, job2, errors.New("engine timeout")))
	bus.Publish(events.New(events.JobStarted, job2))
	failed := job2
	failed.Status = "failed"
	failed.DurationMs = 300
	bus.Publish(events.NewError(events.JobFailed, failed, errors.New("engine timeout")))

	// j3 is cancelled while pending.
	job3 := events.JobPayload{JobID: "j3", JobType: "collection", Priority: "low", MaxAttempts: 3}
	bus.Publish(events.New(events.JobAdded, job3))
	bus.Publish(events.New(events.JobCancelled, job3))

	// The consume loop is FIFO, so once the last event lands the rest have too.
	waitForValue(t, r.metrics.JobsCancelled.WithLabelValues("collection"), 1)

	if got := testutil.ToFloat64(r.metrics.JobsAdded.WithLabelValues("collection", "high")); got != 1 {
		t.Errorf("jobs added high = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.metrics.JobsAdded.WithLabelValues("collection", "normal")); got != 1 {
		t.Errorf("jobs added normal = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.metrics.JobsAdded.WithLabelValues("collection", "low")); got != 1 {
		t.Errorf("jobs added low = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.metrics.JobsCompleted.WithLabelValues("collection")); got != 1 {
		t.Errorf("jobs completed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.metrics.JobsRetried.WithLabelValues("collection")); got != 1 {
		t.Errorf("jobs retried = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.metrics.JobsFailed.WithLabelValues("collection")); got != 1 {
		t.Errorf("jobs failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.metrics.JobsRunning); got != 0 {
		t.Errorf("jobs running = %v, want 0 after all jobs settled", got)
	}
	if got := testutil.CollectAndCount(r.metrics.JobDuration); got != 1 {
		t.Errorf("job duration series = %d, want 1", got)
	}
}

func TestRecorderSchedulerSignals(t *testing.T) {
	r, bus := newTestRecorder(t)

	run := events.ScheduledJobPayload{
		JobID:       "health_check",
		Name:        "Health Check",
		ExecutionID: "e1",
		Duration:    120 * time.Millisecond,
	}
	bus.Publish(events.New(events.ScheduledJobCompleted, run))

	failed := run
	failed.ExecutionID = "e2"
	failed.Critical = true
	cause := errors.New("probe refused")
	bus.Publish(events.NewError(events.ScheduledJobFailed, failed, cause))
	bus.Publish(events.NewError(events.CriticalJobFailed, failed, cause))

	stuck := events.StuckExecutionsPayload{
		Threshold: time.Hour,
		Executions: []events.StuckExecution{
			{ExecutionID: "e9", JobID: "slow_export", Running: 2 * time.Hour},
			{ExecutionID: "e10", JobID: "slow_export", Running: 90 * time.Minute},
		},
	}
	bus.Publish(events.New(events.StuckExecutionsDetected, stuck))

	waitForValue(t, r.metrics.StuckExecutions, 2)

	if got := testutil.ToFloat64(r.metrics.ScheduledRuns.WithLabelValues("health_check", "success")); got != 1 {
		t.Errorf("successful runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.metrics.ScheduledRuns.WithLabelValues("health_check", "failure")); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.metrics.CriticalFailures.WithLabelValues("health_check")); got != 1 {
		t.Errorf("critical failures = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(r.metrics.ScheduledRunDuration); got != 1 {
		t.Errorf("run duration series = %d, want 1", got)
	}
}

func TestRecorderCycleSignals(t *testing.T) {
	r, bus := newTestRecorder(t)

	cycle := events.CyclePayload{CycleID: "daily", ExecutionID: "x1", Status: "running", TotalQueries: 2}
	bus.Publish(events.New(events.CycleStarted, cycle))
	waitForValue(t, r.metrics.CyclesRunning, 1)

	bus.Publish(events.New(events.QueryCollected, events.QueryPayload{
		ExecutionID: "x1",
		QueryID:     "q1",
		Query:       "climate change",
		Engines:     []string{"google", "bing"},
		ResultCount: 10,
		Attempt:     1,
	}))
	bus.Publish(events.NewError(events.QueryFailed, events.QueryPayload{
		ExecutionID: "x1",
		QueryID:     "q2",
		Query:       "election integrity",
		Engines:     []string{"google", "bing"},
		Attempt:     1,
	}, errors.New("blocked by captcha")))

	finished := cycle
	finished.Status = "failed"
	finished.CompletedQueries = 1
	finished.FailedQueries = 1
	finished.TotalResults = 10
	bus.Publish(events.NewError(events.CycleFailed, finished, errors.New("1 of 2 queries failed")))

	waitForValue(t, r.metrics.CyclesRunning, 0)

	if got := testutil.ToFloat64(r.metrics.QueriesCollected); got != 1 {
		t.Errorf("queries collected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.metrics.QueryFailures); got != 1 {
		t.Errorf("query failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.metrics.ResultsCollected); got != 10 {
		t.Errorf("results collected = %v, want 10", got)
	}
	if got := testutil.ToFloat64(r.metrics.CycleExecutions.WithLabelValues("daily", "failed")); got != 1 {
		t.Errorf("cycle executions failed = %v, want 1", got)
	}
}

func TestRecorderHandler(t *testing.T) {
	r, _ := newTestRecorder(t)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "truthlayer_queue_jobs_running") {
		t.Errorf("exposition missing queue gauge:\n%s", body)
	}
	if !strings.Contains(body, "truthlayer_events_dropped_total") {
		t.Errorf("exposition missing dropped counter:\n%s", body)
	}
}

func TestRecorderDroppedCounter(t *testing.T) {
	bus := events.NewBus(logger.NewNop())
	defer bus.Close()

	// A subscriber that never drains forces drops past its one-slot buffer.
	stalled := bus.Subscribe(1, events.JobAdded)
	defer stalled.Close()

	r := NewRecorder(nil, bus, logger.NewNop())

	for i := 0; i < 3; i++ {
		bus.Publish(events.New(events.JobAdded, events.JobPayload{JobID: "j", JobType: "collection"}))
	}

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "truthlayer_events_dropped_total 2") {
		t.Errorf("dropped counter not exposed at 2:\n%s", rec.Body.String())
	}
}

func TestRecorderLifecycle(t *testing.T) {
	bus := events.NewBus(logger.NewNop())
	defer bus.Close()

	r := NewRecorder(nil, bus, logger.NewNop())
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Errorf("second start: %v", err)
	}

	r.Stop()
	r.Stop()

	if err := r.Start(); !errors.Is(err, ErrRecorderStopped) {
		t.Errorf("start after stop = %v, want %v", err, ErrRecorderStopped)
	}
}

func TestRecorderWithoutBus(t *testing.T) {
	r := NewRecorder(nil, nil, nil)
	if err := r.Start(); err != nil {
		t.Fatalf("start without bus: %v", err)
	}
	r.Stop()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if strings.Contains(rec.Body.String(), "truthlayer_events_dropped_total") {
		t.Errorf("dropped counter should not register without a bus")
	}
}
