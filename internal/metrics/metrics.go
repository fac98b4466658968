// Package metrics exposes the engine's Prometheus instruments and the
// recorder that feeds them from the event bus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every engine metric.
const Namespace = "truthlayer"

// Metrics holds the engine's Prometheus instruments.
type Metrics struct {
	// Queue metrics
	JobsAdded     *prometheus.CounterVec
	JobsCompleted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobsRetried   *prometheus.CounterVec
	JobsCancelled *prometheus.CounterVec
	JobsRunning   prometheus.Gauge
	JobDuration   *prometheus.HistogramVec

	// Scheduler metrics
	ScheduledRuns        *prometheus.CounterVec
	ScheduledRunDuration *prometheus.HistogramVec
	CriticalFailures     *prometheus.CounterVec
	StuckExecutions      prometheus.Gauge

	// Orchestrator metrics
	CyclesRunning    prometheus.Gauge
	CycleExecutions  *prometheus.CounterVec
	QueriesCollected prometheus.Counter
	QueryFailures    prometheus.Counter
	ResultsCollected prometheus.Counter
}

// New creates the engine's instruments and registers them with reg.
// A nil registerer falls back to the Prometheus default.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}
	m.initQueueMetrics(factory)
	m.initSchedulerMetrics(factory)
	m.initOrchestratorMetrics(factory)
	return m
}

func (m *Metrics) initQueueMetrics(factory promauto.Factory) {
	m.JobsAdded = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "jobs_added_total",
			Help:      "Total number of jobs enqueued",
		},
		[]string{"type", "priority"},
	)

	m.JobsCompleted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs that completed successfully",
		},
		[]string{"type"},
	)

	m.JobsFailed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "jobs_failed_total",
			Help:      "Total number of jobs that failed terminally",
		},
		[]string{"type"},
	)

	m.JobsRetried = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "jobs_retried_total",
			Help:      "Total number of failed attempts rescheduled for retry",
		},
		[]string{"type"},
	)

	m.JobsCancelled = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "jobs_cancelled_total",
			Help:      "Total number of jobs cancelled while pending",
		},
		[]string{"type"},
	)

	m.JobsRunning = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "jobs_running",
			Help:      "Number of jobs currently executing",
		},
	)

	m.JobDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "job_duration_seconds",
			Help:      "Duration of finished jobs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7m
		},
		[]string{"type"},
	)
}

func (m *Metrics) initSchedulerMetrics(factory promauto.Factory) {
	m.ScheduledRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Total number of scheduled job runs by outcome",
		},
		[]string{"job", "status"},
	)

	m.ScheduledRunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Duration of scheduled job runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 15), // 0.1s to ~27m
		},
		[]string{"job"},
	)

	m.CriticalFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "critical_failures_total",
			Help:      "Total number of critical scheduled job failures",
		},
		[]string{"job"},
	)

	m.StuckExecutions = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "stuck_executions",
			Help:      "Scheduled executions running past the stuck threshold at the last health check",
		},
	)
}

func (m *Metrics) initOrchestratorMetrics(factory promauto.Factory) {
	m.CyclesRunning = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "orchestrator",
			Name:      "cycles_running",
			Help:      "Number of cycle executions currently live",
		},
	)

	m.CycleExecutions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "orchestrator",
			Name:      "cycle_executions_total",
			Help:      "Total number of finished cycle executions by outcome",
		},
		[]string{"cycle_id", "status"},
	)

	m.QueriesCollected = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "orchestrator",
			Name:      "queries_collected_total",
			Help:      "Total number of queries collected successfully",
		},
	)

	m.QueryFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "orchestrator",
			Name:      "query_failures_total",
			Help:      "Total number of failed collection attempts",
		},
	)

	m.ResultsCollected = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "orchestrator",
			Name:      "results_collected_total",
			Help:      "Total number of search results collected",
		},
	)
}
