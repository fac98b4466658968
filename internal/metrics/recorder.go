package metrics

import (
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cicconel11/TruthLayer-sub001/internal/events"
	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
)

// ErrRecorderStopped is returned by Start after Stop.
var ErrRecorderStopped = errors.New("metrics recorder is stopped")

// subscriptionBuffer sizes the recorder's event channel. The recorder only
// touches in-memory instruments, so it drains quickly; the buffer absorbs
// bursts from cycle expansion.
const subscriptionBuffer = 256

// Recorder consumes engine events and projects them onto Prometheus
// instruments. It owns its registry, so an engine can expose its metrics
// without touching the process-global default.
type Recorder struct {
	registry *prometheus.Registry
	metrics  *Metrics
	bus      *events.Bus
	logger   logger.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	sub     *events.Subscription
	wg      sync.WaitGroup
}

// NewRecorder creates a recorder over the given registry and bus. A nil
// registry gets a fresh one; a nil bus leaves the instruments registered but
// static.
func NewRecorder(registry *prometheus.Registry, bus *events.Bus, log logger.Logger) *Recorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if log == nil {
		log = logger.NewNop()
	}

	r := &Recorder{
		registry: registry,
		metrics:  New(registry),
		bus:      bus,
		logger:   log,
	}

	if bus != nil {
		registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Total number of events missed by slow bus subscribers",
			},
			func() float64 { return float64(bus.Dropped()) },
		))
	}

	return r
}

// Start subscribes to the bus and begins recording. The recorder is one-shot:
// once stopped it cannot be started again.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return ErrRecorderStopped
	}
	if r.started {
		return nil
	}
	r.started = true

	if r.bus == nil {
		return nil
	}

	r.sub = r.bus.Subscribe(subscriptionBuffer)
	r.wg.Add(1)
	go r.consume()

	r.logger.Info("metrics recorder started")
	return nil
}

// Stop unsubscribes from the bus and waits for the consume loop to drain.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	sub := r.sub
	r.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	r.wg.Wait()
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the recorder's registry for additional registrations.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) consume() {
	defer r.wg.Done()
	for e := range r.sub.Events() {
		r.record(e)
	}
}

func (r *Recorder) record(e events.Event) {
	switch e.Type {
	case events.JobAdded:
		if p, ok := e.Payload.(events.JobPayload); ok {
			r.metrics.JobsAdded.WithLabelValues(p.JobType, p.Priority).Inc()
		}
	case events.JobStarted:
		r.metrics.JobsRunning.Inc()
	case events.JobCompleted:
		r.metrics.JobsRunning.Dec()
		if p, ok := e.Payload.(events.JobPayload); ok {
			r.metrics.JobsCompleted.WithLabelValues(p.JobType).Inc()
			r.metrics.JobDuration.WithLabelValues(p.JobType).Observe(float64(p.DurationMs) / 1000)
		}
	case events.JobFailed:
		r.metrics.JobsRunning.Dec()
		if p, ok := e.Payload.(events.JobPayload); ok {
			r.metrics.JobsFailed.WithLabelValues(p.JobType).Inc()
			r.metrics.JobDuration.WithLabelValues(p.JobType).Observe(float64(p.DurationMs) / 1000)
		}
	case events.JobRetried:
		// A retried job leaves the running state and re-enters the backlog.
		r.metrics.JobsRunning.Dec()
		if p, ok := e.Payload.(events.JobPayload); ok {
			r.metrics.JobsRetried.WithLabelValues(p.JobType).Inc()
		}
	case events.JobCancelled:
		if p, ok := e.Payload.(events.JobPayload); ok {
			r.metrics.JobsCancelled.WithLabelValues(p.JobType).Inc()
		}

	case events.ScheduledJobCompleted:
		if p, ok := e.Payload.(events.ScheduledJobPayload); ok {
			r.metrics.ScheduledRuns.WithLabelValues(p.JobID, "success").Inc()
			r.metrics.ScheduledRunDuration.WithLabelValues(p.JobID).Observe(p.Duration.Seconds())
		}
	case events.ScheduledJobFailed:
		if p, ok := e.Payload.(events.ScheduledJobPayload); ok {
			r.metrics.ScheduledRuns.WithLabelValues(p.JobID, "failure").Inc()
			r.metrics.ScheduledRunDuration.WithLabelValues(p.JobID).Observe(p.Duration.Seconds())
		}
	case events.CriticalJobFailed:
		if p, ok := e.Payload.(events.ScheduledJobPayload); ok {
			r.metrics.CriticalFailures.WithLabelValues(p.JobID).Inc()
		}
	case events.StuckExecutionsDetected:
		if p, ok := e.Payload.(events.StuckExecutionsPayload); ok {
			r.metrics.StuckExecutions.Set(float64(len(p.Executions)))
		}

	case events.CycleStarted:
		r.metrics.CyclesRunning.Inc()
	case events.CycleCompleted, events.CycleFailed, events.CycleCancelled:
		r.metrics.CyclesRunning.Dec()
		if p, ok := e.Payload.(events.CyclePayload); ok {
			r.metrics.CycleExecutions.WithLabelValues(p.CycleID, p.Status).Inc()
		}
	case events.QueryCollected:
		r.metrics.QueriesCollected.Inc()
		if p, ok := e.Payload.(events.QueryPayload); ok {
			r.metrics.ResultsCollected.Add(float64(p.ResultCount))
		}
	case events.QueryFailed:
		r.metrics.QueryFailures.Inc()
	}
}
