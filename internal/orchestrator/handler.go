package orchestrator

import (
	"context"
	"fmt"

	"github.com/cicconel11/TruthLayer-sub001/internal/collector"
	"github.com/cicconel11/TruthLayer-sub001/internal/events"
	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
	"github.com/cicconel11/TruthLayer-sub001/internal/queue"
)

// Handler returns the queue handler for collection jobs. Register it under
// JobTypeCollection before starting the queue.
func (o *Orchestrator) Handler() queue.Handler {
	return queue.Typed(o.collectOne)
}

// collectOne runs one collection attempt for one query. The request may have
// been reshaped by a recovery strategy on an earlier attempt; the execution
// tracks the live request per job, falling back to the payload's original.
func (o *Orchestrator) collectOne(ctx context.Context, p CollectionPayload, job *queue.Job) (any, error) {
	o.mu.RLock()
	exec, ok := o.executions[p.ExecutionID]
	live := ok && !exec.Status.IsTerminal()
	var req collector.Request
	if live {
		req, ok = exec.requests[job.ID]
		if !ok {
			req = p.request()
		}
	}
	o.mu.RUnlock()

	if !live {
		o.logger.Debug("collection job skipped, execution no longer live",
			logger.String("job_id", job.ID),
			logger.String("execution_id", p.ExecutionID))
		return nil, nil
	}

	result, err := o.collector.Collect(ctx, req)
	if err != nil {
		return nil, o.recordFailure(p, job, req, err)
	}
	o.recordSuccess(p, job, result)
	return result, nil
}

// recordSuccess accounts a collected query on its execution. A query that
// failed earlier attempts moves from the failed to the completed count.
// Executions already terminal discard the result.
func (o *Orchestrator) recordSuccess(p CollectionPayload, job *queue.Job, result *collector.Result) {
	o.mu.Lock()
	exec, ok := o.executions[p.ExecutionID]
	if !ok || exec.Status.IsTerminal() {
		o.mu.Unlock()
		o.logger.Debug("late collection result discarded",
			logger.String("job_id", job.ID),
			logger.String("execution_id", p.ExecutionID))
		return
	}

	prev := exec.outcomes[p.QueryID]
	if prev == outcomeCompleted {
		// Duplicate attempt for a query already collected; keep the first.
		o.mu.Unlock()
		o.logger.Debug("duplicate collection result discarded",
			logger.String("job_id", job.ID),
			logger.String("query_id", p.QueryID))
		return
	}
	if prev == outcomeFailed {
		exec.Progress.FailedQueries--
	}
	exec.Progress.CompletedQueries++
	exec.outcomes[p.QueryID] = outcomeCompleted
	exec.Progress.TotalResults += len(result.Results)
	for _, e := range result.Metadata.SuccessfulEngines {
		exec.Progress.SuccessfulEngines[e]++
	}
	for _, e := range result.Metadata.FailedEngines {
		exec.Progress.FailedEngines[e]++
	}
	delete(exec.requests, job.ID)
	o.mu.Unlock()

	o.logger.Debug("query collected",
		logger.String("execution_id", p.ExecutionID),
		logger.String("query", p.Query),
		logger.Int("results", len(result.Results)),
		logger.Int("attempt", job.Attempts))
	o.publish(events.New(events.QueryCollected, events.QueryPayload{
		ExecutionID: p.ExecutionID,
		QueryID:     p.QueryID,
		Query:       p.Query,
		Engines:     result.Metadata.SuccessfulEngines,
		ResultCount: len(result.Results),
		Attempt:     job.Attempts,
	}))
}

// recordFailure accounts a failed attempt, consults the recovery chain, and
// returns the error the queue should see. A matching strategy supplies the
// next attempt's delay and may reshape the request; otherwise the queue's
// own retry policy applies unchanged.
func (o *Orchestrator) recordFailure(p CollectionPayload, job *queue.Job, req collector.Request, cause error) error {
	o.mu.Lock()
	exec, ok := o.executions[p.ExecutionID]
	if !ok || exec.Status.IsTerminal() {
		o.mu.Unlock()
		o.logger.Debug("late collection failure discarded",
			logger.String("job_id", job.ID),
			logger.String("execution_id", p.ExecutionID))
		return queue.Permanent(cause)
	}

	switch exec.outcomes[p.QueryID] {
	case outcomeCompleted:
		// A duplicate attempt cannot fail a query already collected.
		o.mu.Unlock()
		o.logger.Debug("late failure for collected query discarded",
			logger.String("job_id", job.ID),
			logger.String("query_id", p.QueryID))
		return queue.Permanent(cause)
	case outcomePending:
		exec.outcomes[p.QueryID] = outcomeFailed
		exec.Progress.FailedQueries++
	}
	exec.Errors = append(exec.Errors, fmt.Sprintf("query %q failed (attempt %d/%d): %v", p.Query, job.Attempts, job.MaxAttempts, cause))

	var chosen RecoveryStrategy
	if job.Attempts < job.MaxAttempts {
		for _, s := range o.strategies {
			if s.ShouldRecover(cause, job.Attempts) {
				chosen = s
				break
			}
		}
	}
	if chosen != nil {
		if modified, changed := chosen.ModifyRequest(req, job.Attempts); changed {
			exec.requests[job.ID] = modified
			req = modified
		}
	}
	o.mu.Unlock()

	o.publish(events.NewError(events.QueryFailed, events.QueryPayload{
		ExecutionID: p.ExecutionID,
		QueryID:     p.QueryID,
		Query:       p.Query,
		Engines:     req.Engines,
		Attempt:     job.Attempts,
	}, cause))

	if chosen == nil {
		o.logger.Warn("collection attempt failed",
			logger.String("execution_id", p.ExecutionID),
			logger.String("query", p.Query),
			logger.Int("attempt", job.Attempts),
			logger.Int("max_attempts", job.MaxAttempts),
			logger.Error(cause))
		return cause
	}

	delay := chosen.RecoveryDelay(job.Attempts)
	o.logger.Warn("collection attempt failed, recovery scheduled",
		logger.String("execution_id", p.ExecutionID),
		logger.String("query", p.Query),
		logger.String("strategy", chosen.Name()),
		logger.Duration("retry_in", delay),
		logger.Int("attempt", job.Attempts),
		logger.Error(cause))
	return queue.RetryAfter(cause, delay)
}
