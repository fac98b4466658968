package bootstrap

import (
	"sync"

	"github.com/cicconel11/TruthLayer-sub001/internal/events"
	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
)

// signalLogger is the engine's escalation hook. Components log their own
// outcomes; this subscriber watches the bus for the signals a deployment
// would page on, critical job failures and stuck executions, and emits one
// structured line per signal for alerting pipelines keyed on log level.
type signalLogger struct {
	bus    *events.Bus
	logger logger.Logger
	buffer int

	sub *events.Subscription
	wg  sync.WaitGroup
}

func newSignalLogger(bus *events.Bus, log logger.Logger, buffer int) *signalLogger {
	return &signalLogger{bus: bus, logger: log, buffer: buffer}
}

// Start subscribes and begins consuming. Call once, before producers start.
func (s *signalLogger) Start() {
	s.sub = s.bus.Subscribe(s.buffer,
		events.CriticalJobFailed,
		events.StuckExecutionsDetected,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for e := range s.sub.Events() {
			s.record(e)
		}
	}()
}

// Stop closes the subscription and waits for the consumer to drain.
func (s *signalLogger) Stop() {
	if s.sub == nil {
		return
	}
	s.sub.Close()
	s.wg.Wait()
}

func (s *signalLogger) record(e events.Event) {
	switch e.Type {
	case events.CriticalJobFailed:
		p, ok := e.Payload.(events.ScheduledJobPayload)
		if !ok {
			return
		}
		s.logger.Error("critical job failure signal",
			logger.String("job_id", p.JobID),
			logger.String("execution_id", p.ExecutionID),
			logger.String("error", e.Error))
	case events.StuckExecutionsDetected:
		p, ok := e.Payload.(events.StuckExecutionsPayload)
		if !ok {
			return
		}
		s.logger.Warn("stuck executions signal",
			logger.Int("count", len(p.Executions)),
			logger.Duration("threshold", p.Threshold))
	}
}
