package collector

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
)

const (
	// DefaultRateLimit is the default collect calls per second.
	DefaultRateLimit = 1.0
	// DefaultBurst is the default burst size.
	DefaultBurst = 1
)

// RateLimitedCollector paces collect calls through a token bucket so the
// collector service is never hammered by a wide dispatch tick.
type RateLimitedCollector struct {
	inner   Collector
	limiter *rate.Limiter
	logger  logger.Logger
}

// RateLimited wraps a collector with rate limiting.
// rps: collect calls per second. burst: maximum burst size.
func RateLimited(inner Collector, rps float64, burst int, log logger.Logger) *RateLimitedCollector {
	if rps <= 0 {
		rps = DefaultRateLimit
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &RateLimitedCollector{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  log,
	}
}

// Collect waits for the rate limit, then delegates.
func (r *RateLimitedCollector) Collect(ctx context.Context, req Request) (*Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		r.logger.Warn("rate limiter wait failed",
			logger.String("query", req.Query),
			logger.Error(err))
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.inner.Collect(ctx, req)
}

// CollectBatch paces every request in the batch individually, preserving the
// partial-results contract.
func (r *RateLimitedCollector) CollectBatch(ctx context.Context, reqs []Request) ([]*Result, error) {
	results := make([]*Result, len(reqs))
	var errs []error

	for i, req := range reqs {
		result, err := r.Collect(ctx, req)
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		results[i] = result
	}

	return results, errors.Join(errs...)
}
