package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// standardParser accepts standard 5-field cron expressions
// (minute hour day-of-month month day-of-week).
var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateExpr reports whether expr parses as a standard cron expression.
func ValidateExpr(expr string) error {
	if _, err := standardParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// NextRuns computes the next count fire times for a cron expression after
// from. Used by operator tooling to preview schedules.
func NextRuns(expr string, from time.Time, count int) ([]time.Time, error) {
	sched, err := standardParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	times := make([]time.Time, 0, count)
	next := from
	for i := 0; i < count; i++ {
		next = sched.Next(next)
		if next.IsZero() {
			break
		}
		times = append(times, next)
	}
	return times, nil
}
