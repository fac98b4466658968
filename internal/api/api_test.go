package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cicconel11/TruthLayer-sub001/internal/api"
	"github.com/cicconel11/TruthLayer-sub001/internal/collector"
	"github.com/cicconel11/TruthLayer-sub001/internal/config"
	"github.com/cicconel11/TruthLayer-sub001/internal/events"
	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
	"github.com/cicconel11/TruthLayer-sub001/internal/metrics"
	"github.com/cicconel11/TruthLayer-sub001/internal/orchestrator"
	"github.com/cicconel11/TruthLayer-sub001/internal/queries"
	"github.com/cicconel11/TruthLayer-sub001/internal/queue"
	"github.com/cicconel11/TruthLayer-sub001/internal/scheduler"
)

type stubProvider struct {
	queries []queries.Query
}

func (p *stubProvider) Initialize(context.Context) error { return nil }

func (p *stubProvider) GetQueriesForExecution(_ context.Context, _ string, count int, _ string) ([]queries.Query, error) {
	if count > len(p.queries) {
		count = len(p.queries)
	}
	return append([]queries.Query(nil), p.queries[:count]...), nil
}

// stubCollector succeeds instantly unless a query is marked failing or
// collection is blocked.
type stubCollector struct {
	mu    sync.Mutex
	fail  map[string]bool
	block chan struct{}
}

func newStubCollector() *stubCollector {
	return &stubCollector{fail: make(map[string]bool)}
}

func (s *stubCollector) setFail(query string, failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[query] = failing
}

// blockAll makes Collect hang until the returned release func is called.
func (s *stubCollector) blockAll() func() {
	ch := make(chan struct{})
	s.mu.Lock()
	s.block = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.block = nil
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *stubCollector) Collect(ctx context.Context, req collector.Request) (*collector.Result, error) {
	s.mu.Lock()
	failing := s.fail[req.Query]
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failing {
		return nil, errors.New("connection refused by engine")
	}

	engine := "google"
	if len(req.Engines) > 0 {
		engine = req.Engines[0]
	}
	return &collector.Result{
		Results: []collector.SearchResult{
			{Engine: engine, Rank: 1, Title: "result", URL: "https://example.org/1"},
			{Engine: engine, Rank: 2, Title: "result", URL: "https://example.org/2"},
		},
		Metadata: collector.Metadata{SuccessfulEngines: append([]string(nil), req.Engines...)},
	}, nil
}

func (s *stubCollector) CollectBatch(ctx context.Context, reqs []collector.Request) ([]*collector.Result, error) {
	out := make([]*collector.Result, len(reqs))
	var errs []error
	for i, req := range reqs {
		res, err := s.Collect(ctx, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[i] = res
	}
	return out, errors.Join(errs...)
}

type testRig struct {
	router http.Handler
	orch   *orchestrator.Orchestrator
	col    *stubCollector
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	log := logger.NewNop()
	bus := events.NewBus(log)

	q := queue.New(config.QueueConfig{
		ConcurrencyLimit: 4,
		DispatchInterval: 5 * time.Millisecond,
		JobTimeout:       time.Second,
		RetryDelay:       5 * time.Millisecond,
		MaxAttempts:      3,
		GraceTimeout:     time.Second,
	}, log, bus)

	sched := scheduler.New(config.SchedulerConfig{}, log, bus)

	col := newStubCollector()
	provider := &stubProvider{queries: []queries.Query{
		{ID: "q1", Text: "climate change", Category: "environment"},
		{ID: "q2", Text: "election integrity", Category: "politics"},
		{ID: "q3", Text: "vaccine safety", Category: "health"},
	}}

	orch := orchestrator.New(config.OrchestratorConfig{
		PollInterval:   10 * time.Millisecond,
		DefaultTimeout: 5 * time.Second,
		MaxResults:     10,
		CleanupDays:    30,
		Engines:        []string{"google", "bing"},
	}, q, provider, col, log, bus)

	q.RegisterHandler(orchestrator.JobTypeCollection, orch.Handler())
	q.RegisterHandler("noop", func(context.Context, *queue.Job) (any, error) {
		return "ok", nil
	})

	if err := sched.AddJob("health_check", "Health Check", "reports stuck executions", "0 * * * *",
		func(context.Context) error { return nil }); err != nil {
		t.Fatalf("add scheduled job: %v", err)
	}
	if err := sched.AddJob("weekly_report", "Weekly Report", "", "0 6 * * 1",
		func(context.Context) error { return nil }, scheduler.WithDisabled()); err != nil {
		t.Fatalf("add scheduled job: %v", err)
	}

	q.Start(context.Background())
	if err := sched.Start(); err != nil {
		t.Fatalf("start scheduler: %v", err)
	}
	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("start orchestrator: %v", err)
	}

	recorder := metrics.NewRecorder(nil, bus, log)
	if err := recorder.Start(); err != nil {
		t.Fatalf("start recorder: %v", err)
	}

	t.Cleanup(func() {
		orch.Stop()
		_ = sched.Stop(context.Background())
		q.Stop(time.Second)
		recorder.Stop()
		bus.Close()
	})

	router := api.NewRouter(api.Deps{
		Queue:        q,
		Scheduler:    sched,
		Orchestrator: orch,
		Metrics:      recorder.Handler(),
		Logger:       log,
	})

	return &testRig{router: router, orch: orch, col: col}
}

func (r *testRig) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func registerCycle(t *testing.T, rig *testRig, id string, retryAttempts int) {
	t.Helper()
	err := rig.orch.RegisterCycle(orchestrator.CycleConfig{
		ID:            id,
		QuerySet:      "core",
		QueryCount:    3,
		RetryAttempts: retryAttempts,
		RetryDelay:    5 * time.Millisecond,
		Timeout:       5 * time.Second,
		MaxResults:    5,
	})
	if err != nil {
		t.Fatalf("register cycle: %v", err)
	}
}

type jobBody struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Priority string `json:"priority"`
	Status   string `json:"status"`
	Result   any    `json:"result"`
	Error    string `json:"error"`
}

type execBody struct {
	ID       string `json:"id"`
	CycleID  string `json:"cycle_id"`
	Status   string `json:"status"`
	Progress struct {
		TotalQueries     int `json:"total_queries"`
		CompletedQueries int `json:"completed_queries"`
		FailedQueries    int `json:"failed_queries"`
		TotalResults     int `json:"total_results"`
	} `json:"progress"`
	Errors []string `json:"errors"`
}

func TestHealthEndpoint(t *testing.T) {
	rig := newTestRig(t)

	w := rig.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var body struct {
		Status    string `json:"status"`
		Queue     bool   `json:"queue"`
		Scheduler bool   `json:"scheduler"`
	}
	decodeBody(t, w, &body)
	if body.Status != "ok" || !body.Queue || !body.Scheduler {
		t.Errorf("unexpected health body: %+v", body)
	}
}

func TestStatsEndpoint(t *testing.T) {
	rig := newTestRig(t)

	w := rig.do(t, http.MethodGet, "/api/v1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var body map[string]json.RawMessage
	decodeBody(t, w, &body)
	for _, key := range []string{"queue", "scheduler", "orchestrator"} {
		if _, ok := body[key]; !ok {
			t.Errorf("stats missing %q section: %s", key, w.Body.String())
		}
	}
}

func TestQueueJobLifecycle(t *testing.T) {
	rig := newTestRig(t)

	w := rig.do(t, http.MethodPost, "/api/v1/queue/jobs", map[string]any{
		"type":     "noop",
		"payload":  map[string]any{"reason": "smoke"},
		"priority": "high",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("enqueue status = %d: %s", w.Code, w.Body.String())
	}

	var created jobBody
	decodeBody(t, w, &created)
	if created.ID == "" || created.Type != "noop" || created.Priority != "high" {
		t.Fatalf("unexpected created job: %+v", created)
	}

	waitFor(t, "job completion", func() bool {
		var job jobBody
		resp := rig.do(t, http.MethodGet, "/api/v1/queue/jobs/"+created.ID, nil)
		if resp.Code != http.StatusOK {
			return false
		}
		decodeBody(t, resp, &job)
		return job.Status == "completed"
	})

	var done jobBody
	decodeBody(t, rig.do(t, http.MethodGet, "/api/v1/queue/jobs/"+created.ID, nil), &done)
	if done.Result != "ok" {
		t.Errorf("result = %v, want ok", done.Result)
	}

	var list struct {
		Jobs  []jobBody `json:"jobs"`
		Total int       `json:"total"`
	}
	decodeBody(t, rig.do(t, http.MethodGet, "/api/v1/queue/jobs?status=completed", nil), &list)
	if list.Total != 1 || len(list.Jobs) != 1 || list.Jobs[0].ID != created.ID {
		t.Errorf("unexpected completed list: %+v", list)
	}
}

func TestQueueEnqueueValidation(t *testing.T) {
	rig := newTestRig(t)

	if w := rig.do(t, http.MethodPost, "/api/v1/queue/jobs", map[string]any{"payload": 1}); w.Code != http.StatusBadRequest {
		t.Errorf("missing type: status = %d", w.Code)
	}
	if w := rig.do(t, http.MethodPost, "/api/v1/queue/jobs", map[string]any{"type": "noop", "priority": "urgent"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad priority: status = %d", w.Code)
	}
	if w := rig.do(t, http.MethodGet, "/api/v1/queue/jobs/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown job: status = %d", w.Code)
	}
	if w := rig.do(t, http.MethodGet, "/api/v1/queue/jobs?status=bogus", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad status filter: status = %d", w.Code)
	}
	if w := rig.do(t, http.MethodPost, "/api/v1/queue/jobs/missing/cancel", nil); w.Code != http.StatusNotFound {
		t.Errorf("cancel unknown: status = %d", w.Code)
	}
}

func TestQueueJobCancel(t *testing.T) {
	rig := newTestRig(t)

	// Far-future schedule keeps the job pending.
	w := rig.do(t, http.MethodPost, "/api/v1/queue/jobs", map[string]any{
		"type":         "noop",
		"scheduled_at": time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("enqueue status = %d: %s", w.Code, w.Body.String())
	}
	var created jobBody
	decodeBody(t, w, &created)

	w = rig.do(t, http.MethodPost, "/api/v1/queue/jobs/"+created.ID+"/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d: %s", w.Code, w.Body.String())
	}
	var cancelled jobBody
	decodeBody(t, w, &cancelled)
	if cancelled.Status != "cancelled" {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}

	if w = rig.do(t, http.MethodPost, "/api/v1/queue/jobs/"+created.ID+"/cancel", nil); w.Code != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", w.Code)
	}
}

func TestSchedulerEndpoints(t *testing.T) {
	rig := newTestRig(t)

	var list struct {
		Jobs  []map[string]any `json:"jobs"`
		Total int              `json:"total"`
	}
	decodeBody(t, rig.do(t, http.MethodGet, "/api/v1/scheduler/jobs", nil), &list)
	if list.Total != 2 {
		t.Fatalf("total = %d, want 2: %+v", list.Total, list)
	}

	var status struct {
		ID      string `json:"id"`
		Enabled bool   `json:"enabled"`
	}
	decodeBody(t, rig.do(t, http.MethodGet, "/api/v1/scheduler/jobs/health_check", nil), &status)
	if !status.Enabled {
		t.Errorf("health_check should start enabled")
	}

	decodeBody(t, rig.do(t, http.MethodPost, "/api/v1/scheduler/jobs/health_check/disable", nil), &status)
	if status.Enabled {
		t.Errorf("disable did not stick: %+v", status)
	}
	decodeBody(t, rig.do(t, http.MethodPost, "/api/v1/scheduler/jobs/health_check/enable", nil), &status)
	if !status.Enabled {
		t.Errorf("enable did not stick: %+v", status)
	}

	if w := rig.do(t, http.MethodGet, "/api/v1/scheduler/jobs/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown job status = %d", w.Code)
	}
	if w := rig.do(t, http.MethodPost, "/api/v1/scheduler/jobs/missing/disable", nil); w.Code != http.StatusNotFound {
		t.Errorf("disable unknown status = %d", w.Code)
	}

	var execs struct {
		Total int `json:"total"`
	}
	decodeBody(t, rig.do(t, http.MethodGet, "/api/v1/scheduler/executions", nil), &execs)
	if execs.Total != 0 {
		t.Errorf("active executions = %d, want 0", execs.Total)
	}
}

func TestSchedulerTrigger(t *testing.T) {
	rig := newTestRig(t)

	w := rig.do(t, http.MethodPost, "/api/v1/scheduler/jobs/health_check/trigger", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("trigger status = %d: %s", w.Code, w.Body.String())
	}

	waitFor(t, "triggered run to finish", func() bool {
		var status struct {
			RunCount int64 `json:"run_count"`
		}
		resp := rig.do(t, http.MethodGet, "/api/v1/scheduler/jobs/health_check", nil)
		decodeBody(t, resp, &status)
		return status.RunCount >= 1
	})

	if w = rig.do(t, http.MethodPost, "/api/v1/scheduler/jobs/missing/trigger", nil); w.Code != http.StatusNotFound {
		t.Errorf("trigger unknown status = %d", w.Code)
	}
}

func TestCycleEndpoints(t *testing.T) {
	rig := newTestRig(t)
	registerCycle(t, rig, "daily", 3)

	var cycles struct {
		Cycles []map[string]any `json:"cycles"`
		Total  int              `json:"total"`
	}
	decodeBody(t, rig.do(t, http.MethodGet, "/api/v1/cycles", nil), &cycles)
	if cycles.Total != 1 {
		t.Fatalf("cycles total = %d, want 1", cycles.Total)
	}

	if w := rig.do(t, http.MethodGet, "/api/v1/cycles/daily", nil); w.Code != http.StatusOK {
		t.Errorf("get cycle status = %d", w.Code)
	}
	if w := rig.do(t, http.MethodGet, "/api/v1/cycles/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("get unknown cycle status = %d", w.Code)
	}
	if w := rig.do(t, http.MethodPost, "/api/v1/cycles/missing/execute", nil); w.Code != http.StatusNotFound {
		t.Errorf("execute unknown cycle status = %d", w.Code)
	}

	w := rig.do(t, http.MethodPost, "/api/v1/cycles/daily/execute", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("execute status = %d: %s", w.Code, w.Body.String())
	}
	var started struct {
		ExecutionID string `json:"execution_id"`
		CycleID     string `json:"cycle_id"`
	}
	decodeBody(t, w, &started)
	if started.ExecutionID == "" || started.CycleID != "daily" {
		t.Fatalf("unexpected execute body: %+v", started)
	}

	waitFor(t, "execution completion", func() bool {
		var exec execBody
		resp := rig.do(t, http.MethodGet, "/api/v1/executions/"+started.ExecutionID, nil)
		if resp.Code != http.StatusOK {
			return false
		}
		decodeBody(t, resp, &exec)
		return exec.Status == "completed"
	})

	var exec execBody
	decodeBody(t, rig.do(t, http.MethodGet, "/api/v1/executions/"+started.ExecutionID, nil), &exec)
	if exec.Progress.CompletedQueries != 3 || exec.Progress.FailedQueries != 0 {
		t.Errorf("progress = %+v, want 3 completed", exec.Progress)
	}
	if exec.Progress.TotalResults != 6 {
		t.Errorf("total results = %d, want 6", exec.Progress.TotalResults)
	}

	var execs struct {
		Total int `json:"total"`
	}
	decodeBody(t, rig.do(t, http.MethodGet, "/api/v1/executions?cycle_id=daily", nil), &execs)
	if execs.Total != 1 {
		t.Errorf("cycle executions = %d, want 1", execs.Total)
	}
	decodeBody(t, rig.do(t, http.MethodGet, "/api/v1/executions", nil), &execs)
	if execs.Total != 1 {
		t.Errorf("all executions = %d, want 1", execs.Total)
	}

	if w = rig.do(t, http.MethodGet, "/api/v1/executions/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("get unknown execution status = %d", w.Code)
	}
}

func TestExecutionCancel(t *testing.T) {
	rig := newTestRig(t)
	registerCycle(t, rig, "daily", 3)

	release := rig.col.blockAll()
	defer release()

	w := rig.do(t, http.MethodPost, "/api/v1/cycles/daily/execute", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("execute status = %d: %s", w.Code, w.Body.String())
	}
	var started struct {
		ExecutionID string `json:"execution_id"`
	}
	decodeBody(t, w, &started)

	waitFor(t, "execution to start running", func() bool {
		var exec execBody
		resp := rig.do(t, http.MethodGet, "/api/v1/executions/"+started.ExecutionID, nil)
		if resp.Code != http.StatusOK {
			return false
		}
		decodeBody(t, resp, &exec)
		return exec.Status == "running"
	})

	w = rig.do(t, http.MethodPost, "/api/v1/executions/"+started.ExecutionID+"/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d: %s", w.Code, w.Body.String())
	}
	var exec execBody
	decodeBody(t, w, &exec)
	if exec.Status != "cancelled" {
		t.Errorf("status = %s, want cancelled", exec.Status)
	}

	if w = rig.do(t, http.MethodPost, "/api/v1/executions/"+started.ExecutionID+"/cancel", nil); w.Code != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", w.Code)
	}
	if w = rig.do(t, http.MethodPost, "/api/v1/executions/missing/cancel", nil); w.Code != http.StatusNotFound {
		t.Errorf("cancel unknown status = %d", w.Code)
	}
}

func TestExecutionRetry(t *testing.T) {
	rig := newTestRig(t)
	registerCycle(t, rig, "daily", 1)

	rig.col.setFail("election integrity", true)

	w := rig.do(t, http.MethodPost, "/api/v1/cycles/daily/execute", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("execute status = %d: %s", w.Code, w.Body.String())
	}
	var started struct {
		ExecutionID string `json:"execution_id"`
	}
	decodeBody(t, w, &started)

	waitFor(t, "execution to fail", func() bool {
		var exec execBody
		resp := rig.do(t, http.MethodGet, "/api/v1/executions/"+started.ExecutionID, nil)
		if resp.Code != http.StatusOK {
			return false
		}
		decodeBody(t, resp, &exec)
		return exec.Status == "failed"
	})

	// Retry of a failed execution succeeds once the engine recovers.
	rig.col.setFail("election integrity", false)
	w = rig.do(t, http.MethodPost, "/api/v1/executions/"+started.ExecutionID+"/retry", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("retry status = %d: %s", w.Code, w.Body.String())
	}

	waitFor(t, "retried execution to complete", func() bool {
		var exec execBody
		resp := rig.do(t, http.MethodGet, "/api/v1/executions/"+started.ExecutionID, nil)
		decodeBody(t, resp, &exec)
		return exec.Status == "completed"
	})

	// A completed execution cannot be retried again.
	if w = rig.do(t, http.MethodPost, "/api/v1/executions/"+started.ExecutionID+"/retry", nil); w.Code != http.StatusConflict {
		t.Errorf("retry completed status = %d, want 409", w.Code)
	}
	if w = rig.do(t, http.MethodPost, "/api/v1/executions/missing/retry", nil); w.Code != http.StatusNotFound {
		t.Errorf("retry unknown status = %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rig := newTestRig(t)

	w := rig.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "truthlayer_") {
		t.Errorf("exposition missing engine namespace:\n%s", w.Body.String())
	}
}
