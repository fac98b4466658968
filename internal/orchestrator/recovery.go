package orchestrator

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/cicconel11/TruthLayer-sub001/internal/collector"
)

// Backoff and rotation defaults applied when a constructor argument is zero.
const (
	defaultBackoffBase   = 5 * time.Second
	defaultBackoffMax    = 5 * time.Minute
	defaultBackoffJitter = 0.25
	defaultRotationDelay = 10 * time.Second
)

// RecoveryStrategy is an advisory policy consulted after a collection attempt
// fails. The first strategy that claims an error supplies the delay before
// the next attempt and may reshape the request; the caller decides whether to
// apply either. Implementations must be safe for concurrent use.
type RecoveryStrategy interface {
	// Name identifies the strategy in logs.
	Name() string

	// ShouldRecover reports whether this strategy applies to the failure.
	ShouldRecover(err error, attempt int) bool

	// RecoveryDelay returns the wait before the next attempt.
	RecoveryDelay(attempt int) time.Duration

	// ModifyRequest optionally reshapes the request for the next attempt.
	// It returns the request unchanged and false when it has nothing to do.
	ModifyRequest(req collector.Request, attempt int) (collector.Request, bool)
}

// transientPatterns match failures that tend to clear on their own.
var transientPatterns = []string{
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"temporary failure",
	"i/o timeout",
	"rate limit",
	"too many requests",
}

// blockedPatterns match engine-side denials that retrying the same engine
// will not clear.
var blockedPatterns = []string{
	"captcha",
	"blocked",
	"access denied",
	"forbidden",
}

// IsTransient reports whether the error looks like a passing network or
// rate-limit failure.
func IsTransient(err error) bool {
	return matchesAny(err, transientPatterns)
}

// IsBlocked reports whether the error looks like an engine refusing to serve
// the request.
func IsBlocked(err error) bool {
	return matchesAny(err, blockedPatterns)
}

func matchesAny(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// ExponentialBackoff waits base * 2^(attempt-1) before the next attempt,
// capped at max, with multiplicative jitter to spread retries out.
type ExponentialBackoff struct {
	base   time.Duration
	max    time.Duration
	jitter float64
}

// NewExponentialBackoff creates the backoff strategy. Zero arguments take
// the package defaults.
func NewExponentialBackoff(base, max time.Duration) *ExponentialBackoff {
	if base <= 0 {
		base = defaultBackoffBase
	}
	if max <= 0 {
		max = defaultBackoffMax
	}
	return &ExponentialBackoff{base: base, max: max, jitter: defaultBackoffJitter}
}

func (b *ExponentialBackoff) Name() string { return "exponential_backoff" }

func (b *ExponentialBackoff) ShouldRecover(err error, _ int) bool {
	return IsTransient(err)
}

func (b *ExponentialBackoff) RecoveryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(b.base) * math.Pow(2, float64(attempt-1)))
	if delay <= 0 || delay > b.max {
		delay = b.max
	}
	factor := 1 + ((rand.Float64()*2 - 1) * b.jitter)
	return time.Duration(float64(delay) * factor)
}

func (b *ExponentialBackoff) ModifyRequest(req collector.Request, _ int) (collector.Request, bool) {
	return req, false
}

// EngineRotation retargets a blocked request at the pool engines it is not
// already using. Substitution is stateless over the current request, so a
// long retry chain can revisit an engine; the job attempt cap bounds that.
type EngineRotation struct {
	pool  []string
	delay time.Duration
}

// NewEngineRotation creates the rotation strategy over the given engine pool.
func NewEngineRotation(pool []string) *EngineRotation {
	return &EngineRotation{
		pool:  append([]string(nil), pool...),
		delay: defaultRotationDelay,
	}
}

func (r *EngineRotation) Name() string { return "engine_rotation" }

func (r *EngineRotation) ShouldRecover(err error, _ int) bool {
	return len(r.pool) > 0 && IsBlocked(err)
}

func (r *EngineRotation) RecoveryDelay(_ int) time.Duration {
	return r.delay
}

func (r *EngineRotation) ModifyRequest(req collector.Request, _ int) (collector.Request, bool) {
	used := make(map[string]bool, len(req.Engines))
	for _, e := range req.Engines {
		used[e] = true
	}
	var unused []string
	for _, e := range r.pool {
		if !used[e] {
			unused = append(unused, e)
		}
	}
	if len(unused) == 0 {
		return req, false
	}
	req.Engines = unused
	return req, true
}

// DefaultStrategies returns the standard recovery chain: engine rotation for
// blocked errors first, exponential backoff for transient ones after. Order
// matters because callers take the first match.
func DefaultStrategies(enginePool []string) []RecoveryStrategy {
	return []RecoveryStrategy{
		NewEngineRotation(enginePool),
		NewExponentialBackoff(0, 0),
	}
}
