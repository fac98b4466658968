package bootstrap

import (
	"context"
	"fmt"

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

// Annotator drains pending annotation work on the annotation service.
type Annotator interface {
	DrainPending(ctx context.Context) error
}

// MetricsComputer computes daily bias metrics on the metrics service.
type MetricsComputer interface {
	ComputeDaily(ctx context.Context) error
}

// Collaborators are optional platform services driven by default scheduled
// jobs. A nil collaborator leaves its job registered but disabled.
type Collaborators struct {
	Annotator       Annotator
	MetricsComputer MetricsComputer
}

// Engine bundles one assembled orchestration engine.
type Engine struct {
	Config       *config.Config
	Logger       logger.Logger
	Bus          *events.Bus
	Queue        *queue.Queue
	Scheduler    *scheduler.Scheduler
	Orchestrator *orchestrator.Orchestrator
	Provider     *queries.FileProvider
	Collector    collector.Collector
	Recorder     *metrics.Recorder

	signals *signalLogger
}

// SetupEngine builds every engine component and wires them together: the
// collection handler on the queue, the configured cycles on the orchestrator,
// and the default job set on the scheduler. Nothing is started; call Start on
// the returned engine.
func SetupEngine(cfg *config.Config, log logger.Logger, collab Collaborators) (*Engine, error) {
	bus := events.NewBus(log)

	q := queue.New(cfg.Queue, log, bus)
	sched := scheduler.New(cfg.Scheduler, log, bus)
	provider := queries.NewFileProvider(cfg.Queries.File, log)
	col := buildCollector(cfg.Collector, log)
	orch := orchestrator.New(cfg.Orchestrator, q, provider, col, log, bus)

	q.RegisterHandler(orchestrator.JobTypeCollection, orch.Handler())

	if err := registerCycles(orch, cfg.Orchestrator.Cycles); err != nil {
		return nil, err
	}

	e := &Engine{
		Config:       cfg,
		Logger:       log,
		Bus:          bus,
		Queue:        q,
		Scheduler:    sched,
		Orchestrator: orch,
		Provider:     provider,
		Collector:    col,
		Recorder:     metrics.NewRecorder(nil, bus, log),
		signals:      newSignalLogger(bus, log, cfg.Events.BufferSize),
	}

	if err := bindDefaultJobs(e, collab); err != nil {
		return nil, err
	}
	return e, nil
}

// Start loads the query sets and starts every component. Subscribers start
// before producers so the first job's signals are not missed.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Provider.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize query provider: %w", err)
	}

	if err := e.Recorder.Start(); err != nil {
		return fmt.Errorf("start metrics recorder: %w", err)
	}
	e.signals.Start()

	e.Queue.Start(ctx)
	if err := e.Scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := e.Orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}

	e.Logger.Info("engine started",
		logger.Int("cycles", len(e.Orchestrator.Cycles())),
		logger.Int("scheduled_jobs", e.Scheduler.GetStats().TotalJobs))
	return nil
}

// Stop shuts the engine down in dependency order: stop producing scheduled
// work, wind down orchestration, drain the queue, then stop the observers.
func (e *Engine) Stop(ctx context.Context) {
	if err := e.Scheduler.Stop(ctx); err != nil {
		e.Logger.Error("scheduler stop", logger.Error(err))
	}
	e.Orchestrator.Stop()
	e.Queue.Stop(e.Config.Queue.GraceTimeout)
	e.Recorder.Stop()
	e.signals.Stop()
	e.Bus.Close()
	e.Logger.Info("engine stopped")
}

// buildCollector assembles the rate-limited collector service client.
func buildCollector(cfg config.CollectorConfig, log logger.Logger) collector.Collector {
	opts := []collector.Option{
		collector.WithTimeout(cfg.Timeout),
		collector.WithLogger(log),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, collector.WithBaseURL(cfg.BaseURL))
	}
	if cfg.JWTSecret != "" {
		opts = append(opts, collector.WithJWTSecret(cfg.JWTSecret))
	}

	return collector.RateLimited(collector.NewHTTPCollector(opts...), cfg.RateLimit, cfg.Burst, log)
}

// CycleFromConfig converts a declared cycle into the orchestrator's form.
// It fails on an unparseable priority; structural validation happens when the
// cycle is registered.
func CycleFromConfig(c config.CycleConfig) (orchestrator.CycleConfig, error) {
	priority, err := queue.ParsePriority(c.Priority)
	if err != nil {
		return orchestrator.CycleConfig{}, fmt.Errorf("cycle %s: %w", c.ID, err)
	}

	return orchestrator.CycleConfig{
		ID:               c.ID,
		Name:             c.Name,
		Description:      c.Description,
		QuerySet:         c.QuerySet,
		Engines:          c.Engines,
		QueryCount:       c.QueryCount,
		RotationStrategy: c.RotationStrategy,
		Priority:         priority,
		RetryAttempts:    c.RetryAttempts,
		RetryDelay:       c.RetryDelay,
		Timeout:          c.Timeout,
		MaxResults:       c.MaxResults,
	}, nil
}

// registerCycles registers the configured collection cycles.
func registerCycles(orch *orchestrator.Orchestrator, cycles []config.CycleConfig) error {
	for _, c := range cycles {
		cycle, err := CycleFromConfig(c)
		if err != nil {
			return err
		}
		if err := orch.RegisterCycle(cycle); err != nil {
			return fmt.Errorf("register cycle %s: %w", c.ID, err)
		}
	}
	return nil
}
