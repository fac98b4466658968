package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
	"github.com/cicconel11/TruthLayer-sub001/internal/orchestrator"
	"github.com/cicconel11/TruthLayer-sub001/internal/scheduler"
)

// bindDefaultJobs registers the platform's default recurring jobs with their
// handlers. Collection jobs target the cycle sharing their id. A job whose
// cycle or collaborator is absent is registered disabled, so operators can
// see it and enable it once the dependency exists.
func bindDefaultJobs(e *Engine, collab Collaborators) error {
	specs := scheduler.ApplyOverrides(scheduler.DefaultJobs(), e.Config.Scheduler.Jobs)

	for _, spec := range specs {
		handler, ok := jobHandler(e, collab, spec.ID)
		if !ok {
			e.Logger.Warn("default job has no backing dependency, registering disabled",
				logger.String("job_id", spec.ID))
		}

		var opts []scheduler.JobOption
		if !spec.Enabled || !ok {
			opts = append(opts, scheduler.WithDisabled())
		}
		if spec.Critical {
			opts = append(opts, scheduler.WithCritical())
		}

		if err := e.Scheduler.AddJob(spec.ID, spec.Name, spec.Description, spec.Cron, handler, opts...); err != nil {
			return fmt.Errorf("add default job %s: %w", spec.ID, err)
		}
	}
	return nil
}

// jobHandler picks the handler for one default job id. ok is false when the
// job's backing dependency is not configured.
func jobHandler(e *Engine, collab Collaborators, jobID string) (scheduler.HandlerFunc, bool) {
	switch jobID {
	case scheduler.JobDailyCollection, scheduler.JobExtendedCollection:
		return cycleHandler(e, jobID)
	case scheduler.JobAnnotationDrain:
		if collab.Annotator == nil {
			return missingDependency("annotation service not configured"), false
		}
		return collab.Annotator.DrainPending, true
	case scheduler.JobMetricsComputation:
		if collab.MetricsComputer == nil {
			return missingDependency("metrics service not configured"), false
		}
		return collab.MetricsComputer.ComputeDaily, true
	case scheduler.JobCleanup:
		return cleanupHandler(e), true
	case scheduler.JobHealthCheck:
		return func(context.Context) error {
			e.Scheduler.CheckStuckExecutions()
			return nil
		}, true
	default:
		return missingDependency("no handler for job " + jobID), false
	}
}

// cycleHandler executes the collection cycle sharing the job's id and waits
// for the outcome, so the scheduled run reports the cycle's real result and
// the critical signal fires on collection failures.
func cycleHandler(e *Engine, cycleID string) (scheduler.HandlerFunc, bool) {
	if _, ok := e.Orchestrator.GetCycle(cycleID); !ok {
		return missingDependency("no cycle registered with id " + cycleID), false
	}

	return func(ctx context.Context) error {
		executionID, err := e.Orchestrator.ExecuteCycle(cycleID)
		if err != nil {
			return fmt.Errorf("execute cycle %s: %w", cycleID, err)
		}
		return e.awaitExecution(ctx, executionID)
	}, true
}

// awaitExecution blocks until the execution reaches a terminal status.
func (e *Engine) awaitExecution(ctx context.Context, executionID string) error {
	ticker := time.NewTicker(e.Config.Orchestrator.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			exec := e.Orchestrator.GetExecutionStatus(executionID)
			if exec == nil {
				return fmt.Errorf("execution %s disappeared", executionID)
			}
			switch exec.Status {
			case orchestrator.StatusCompleted:
				return nil
			case orchestrator.StatusFailed:
				return fmt.Errorf("execution %s failed: %d of %d queries failed",
					executionID, exec.Progress.FailedQueries, exec.Progress.TotalQueries)
			case orchestrator.StatusCancelled:
				return fmt.Errorf("execution %s was cancelled", executionID)
			}
		}
	}
}

// cleanupHandler removes terminal queue jobs and cycle executions older than
// the configured retention.
func cleanupHandler(e *Engine) scheduler.HandlerFunc {
	return func(context.Context) error {
		days := e.Config.Orchestrator.CleanupDays
		jobs := e.Queue.Cleanup(time.Duration(days) * 24 * time.Hour)
		executions := e.Orchestrator.CleanupOldExecutions(days)
		e.Logger.Info("cleanup finished",
			logger.Int("jobs_removed", jobs),
			logger.Int("executions_removed", executions))
		return nil
	}
}

// missingDependency is bound to jobs whose backing service or cycle is not
// configured, so enabling one by mistake fails with a clear message.
func missingDependency(reason string) scheduler.HandlerFunc {
	return func(context.Context) error {
		return errors.New(reason)
	}
}
