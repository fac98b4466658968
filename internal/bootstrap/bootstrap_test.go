package bootstrap_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cicconel11/TruthLayer-sub001/internal/bootstrap"
	"github.com/cicconel11/TruthLayer-sub001/internal/collector"
	"github.com/cicconel11/TruthLayer-sub001/internal/config"
	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
	"github.com/cicconel11/TruthLayer-sub001/internal/scheduler"
)

const querySetsYAML = `query_sets:
  - id: core
    name: Core Political Queries
    queries:
      - id: q1
        text: climate change policy
        category: environment
      - id: q2
        text: immigration reform
        category: politics
      - id: q3
        text: healthcare costs
        category: health
`

// writeQueryFile drops a small query-sets file into a temp dir.
func writeQueryFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queries.yml")
	if err := os.WriteFile(path, []byte(querySetsYAML), 0o644); err != nil {
		t.Fatalf("write query file: %v", err)
	}
	return path
}

// fastEngineConfig returns defaults tuned for test speed.
func fastEngineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Queries.File = writeQueryFile(t)
	cfg.Queue.DispatchInterval = 5 * time.Millisecond
	cfg.Queue.RetryDelay = 5 * time.Millisecond
	cfg.Queue.GraceTimeout = time.Second
	cfg.Orchestrator.PollInterval = 10 * time.Millisecond
	return cfg
}

// collectorService fakes the platform collector over HTTP.
func collectorService(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req collector.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result := collector.Result{
			Results: []collector.SearchResult{
				{Engine: "google", Rank: 1, Title: "result", URL: "https://example.org/a"},
				{Engine: "google", Rank: 2, Title: "result", URL: "https://example.org/b"},
			},
			Metadata: collector.Metadata{SuccessfulEngines: req.Engines},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func jobStatusByID(t *testing.T, e *bootstrap.Engine, id string) scheduler.JobStatus {
	t.Helper()
	status := e.Scheduler.GetJobStatus(id)
	if status == nil {
		t.Fatalf("scheduled job %s not registered", id)
	}
	return *status
}

func TestSetupEngineRegistersDefaultJobs(t *testing.T) {
	cfg := fastEngineConfig(t)

	engine, err := bootstrap.SetupEngine(cfg, logger.NewNop(), bootstrap.Collaborators{})
	if err != nil {
		t.Fatalf("setup engine: %v", err)
	}

	all := engine.Scheduler.GetAllJobsStatus()
	if len(all) != 6 {
		t.Fatalf("registered jobs = %d, want 6", len(all))
	}

	// No cycles and no collaborators configured: only the self-contained
	// jobs start enabled.
	wantEnabled := map[string]bool{
		scheduler.JobDailyCollection:    false,
		scheduler.JobExtendedCollection: false,
		scheduler.JobAnnotationDrain:    false,
		scheduler.JobMetricsComputation: false,
		scheduler.JobCleanup:            true,
		scheduler.JobHealthCheck:        true,
	}
	for id, want := range wantEnabled {
		if got := jobStatusByID(t, engine, id).Enabled; got != want {
			t.Errorf("job %s enabled = %v, want %v", id, got, want)
		}
	}

	if !jobStatusByID(t, engine, scheduler.JobDailyCollection).Critical {
		t.Errorf("daily collection should be critical")
	}
	if jobStatusByID(t, engine, scheduler.JobCleanup).Critical {
		t.Errorf("cleanup should not be critical")
	}
}

func TestSetupEngineEnablesCollectionWithCycle(t *testing.T) {
	cfg := fastEngineConfig(t)
	cfg.Orchestrator.Cycles = []config.CycleConfig{{
		ID:         scheduler.JobDailyCollection,
		Name:       "Daily Core",
		QuerySet:   "core",
		QueryCount: 2,
	}}

	engine, err := bootstrap.SetupEngine(cfg, logger.NewNop(), bootstrap.Collaborators{})
	if err != nil {
		t.Fatalf("setup engine: %v", err)
	}

	if _, ok := engine.Orchestrator.GetCycle(scheduler.JobDailyCollection); !ok {
		t.Fatalf("cycle %s not registered", scheduler.JobDailyCollection)
	}
	if !jobStatusByID(t, engine, scheduler.JobDailyCollection).Enabled {
		t.Errorf("daily collection should be enabled when its cycle exists")
	}
	if jobStatusByID(t, engine, scheduler.JobExtendedCollection).Enabled {
		t.Errorf("extended collection should stay disabled without a cycle")
	}
}

func TestSetupEngineRejectsInvalidCycle(t *testing.T) {
	cfg := fastEngineConfig(t)
	cfg.Orchestrator.Cycles = []config.CycleConfig{{
		ID:         "daily",
		QuerySet:   "core",
		QueryCount: 2,
		Priority:   "urgent",
	}}

	if _, err := bootstrap.SetupEngine(cfg, logger.NewNop(), bootstrap.Collaborators{}); err == nil {
		t.Fatalf("expected error for invalid cycle priority")
	}
}

func TestSetupEngineAppliesJobOverrides(t *testing.T) {
	cfg := fastEngineConfig(t)
	disabled := false
	cfg.Scheduler.Jobs = []config.ScheduledJobOverride{
		{ID: scheduler.JobCleanup, Cron: "0 4 * * *"},
		{ID: scheduler.JobHealthCheck, Enabled: &disabled},
	}

	engine, err := bootstrap.SetupEngine(cfg, logger.NewNop(), bootstrap.Collaborators{})
	if err != nil {
		t.Fatalf("setup engine: %v", err)
	}

	if got := jobStatusByID(t, engine, scheduler.JobCleanup).CronExpr; got != "0 4 * * *" {
		t.Errorf("cleanup cron = %q, want override", got)
	}
	if jobStatusByID(t, engine, scheduler.JobHealthCheck).Enabled {
		t.Errorf("health check should be disabled by override")
	}
}

func TestEngineStartStop(t *testing.T) {
	cfg := fastEngineConfig(t)

	engine, err := bootstrap.SetupEngine(cfg, logger.NewNop(), bootstrap.Collaborators{})
	if err != nil {
		t.Fatalf("setup engine: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}

	if !engine.Queue.IsRunning() || !engine.Scheduler.IsRunning() || !engine.Orchestrator.IsRunning() {
		t.Errorf("components not running after start")
	}

	if err := engine.Scheduler.TriggerJob(context.Background(), scheduler.JobHealthCheck); err != nil {
		t.Errorf("health check trigger: %v", err)
	}
	if err := engine.Scheduler.TriggerJob(context.Background(), scheduler.JobCleanup); err != nil {
		t.Errorf("cleanup trigger: %v", err)
	}

	engine.Stop(context.Background())
	if engine.Queue.IsRunning() || engine.Scheduler.IsRunning() || engine.Orchestrator.IsRunning() {
		t.Errorf("components still running after stop")
	}
}

func TestEngineStartFailsWithoutQueryFile(t *testing.T) {
	cfg := fastEngineConfig(t)
	cfg.Queries.File = filepath.Join(t.TempDir(), "missing.yml")

	engine, err := bootstrap.SetupEngine(cfg, logger.NewNop(), bootstrap.Collaborators{})
	if err != nil {
		t.Fatalf("setup engine: %v", err)
	}
	if err := engine.Start(context.Background()); err == nil {
		engine.Stop(context.Background())
		t.Fatalf("expected start to fail when the query file is missing")
	}
}

func TestDisabledJobReportsMissingDependency(t *testing.T) {
	cfg := fastEngineConfig(t)

	engine, err := bootstrap.SetupEngine(cfg, logger.NewNop(), bootstrap.Collaborators{})
	if err != nil {
		t.Fatalf("setup engine: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	defer engine.Stop(context.Background())

	if !engine.Scheduler.EnableJob(scheduler.JobAnnotationDrain) {
		t.Fatalf("enable annotation drain failed")
	}
	err = engine.Scheduler.TriggerJob(context.Background(), scheduler.JobAnnotationDrain)
	if err == nil || !strings.Contains(err.Error(), "annotation service not configured") {
		t.Errorf("trigger error = %v, want missing dependency message", err)
	}
}

type fakeAnnotator struct{ calls atomic.Int64 }

func (f *fakeAnnotator) DrainPending(context.Context) error {
	f.calls.Add(1)
	return nil
}

type fakeMetricsComputer struct{ calls atomic.Int64 }

func (f *fakeMetricsComputer) ComputeDaily(context.Context) error {
	f.calls.Add(1)
	return nil
}

func TestCollaboratorsBindTheirJobs(t *testing.T) {
	cfg := fastEngineConfig(t)
	annotator := &fakeAnnotator{}
	computer := &fakeMetricsComputer{}

	engine, err := bootstrap.SetupEngine(cfg, logger.NewNop(), bootstrap.Collaborators{
		Annotator:       annotator,
		MetricsComputer: computer,
	})
	if err != nil {
		t.Fatalf("setup engine: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	defer engine.Stop(context.Background())

	if !jobStatusByID(t, engine, scheduler.JobAnnotationDrain).Enabled {
		t.Errorf("annotation drain should be enabled with a collaborator")
	}

	if err := engine.Scheduler.TriggerJob(context.Background(), scheduler.JobAnnotationDrain); err != nil {
		t.Fatalf("trigger annotation drain: %v", err)
	}
	if err := engine.Scheduler.TriggerJob(context.Background(), scheduler.JobMetricsComputation); err != nil {
		t.Fatalf("trigger metrics computation: %v", err)
	}

	if annotator.calls.Load() != 1 {
		t.Errorf("annotator calls = %d, want 1", annotator.calls.Load())
	}
	if computer.calls.Load() != 1 {
		t.Errorf("metrics computer calls = %d, want 1", computer.calls.Load())
	}
}

func TestScheduledCollectionEndToEnd(t *testing.T) {
	ts := collectorService(t)

	cfg := fastEngineConfig(t)
	cfg.Collector.BaseURL = ts.URL
	cfg.Collector.RateLimit = 1000
	cfg.Collector.Burst = 10
	cfg.Orchestrator.Cycles = []config.CycleConfig{{
		ID:            scheduler.JobDailyCollection,
		Name:          "Daily Core",
		QuerySet:      "core",
		QueryCount:    2,
		RetryAttempts: 2,
		Timeout:       5 * time.Second,
	}}

	engine, err := bootstrap.SetupEngine(cfg, logger.NewNop(), bootstrap.Collaborators{})
	if err != nil {
		t.Fatalf("setup engine: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	defer engine.Stop(context.Background())

	// TriggerJob blocks until the cycle execution settles.
	if err := engine.Scheduler.TriggerJob(context.Background(), scheduler.JobDailyCollection); err != nil {
		t.Fatalf("scheduled collection run failed: %v", err)
	}

	execs := engine.Orchestrator.GetCycleExecutions(scheduler.JobDailyCollection)
	if len(execs) != 1 {
		t.Fatalf("executions = %d, want 1", len(execs))
	}
	exec := execs[0]
	if exec.Progress.CompletedQueries != 2 || exec.Progress.FailedQueries != 0 {
		t.Errorf("progress = %+v, want 2 completed", exec.Progress)
	}
	if exec.Progress.TotalResults != 4 {
		t.Errorf("total results = %d, want 4", exec.Progress.TotalResults)
	}

	status := jobStatusByID(t, engine, scheduler.JobDailyCollection)
	if status.RunCount != 1 || status.FailureCount != 0 {
		t.Errorf("job status = %+v, want one clean run", status)
	}
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})

	cfg, err := bootstrap.LoadConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Port != 8070 {
		t.Errorf("default port = %d, want 8070", cfg.Server.Port)
	}

	if _, err := bootstrap.LoadConfig("does-not-exist.yml"); err == nil {
		t.Errorf("expected error for explicit missing config path")
	}
}

func TestSetupServerHonoursDisabledFlag(t *testing.T) {
	cfg := fastEngineConfig(t)
	disabled := false
	cfg.Server.Enabled = &disabled

	engine, err := bootstrap.SetupEngine(cfg, logger.NewNop(), bootstrap.Collaborators{})
	if err != nil {
		t.Fatalf("setup engine: %v", err)
	}

	server, errCh := bootstrap.SetupServer(cfg, logger.NewNop(), engine, false)
	if server != nil || errCh != nil {
		t.Errorf("disabled server should return nil components")
	}
}
