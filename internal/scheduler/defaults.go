package scheduler

import (
	"github.com/cicconel11/TruthLayer-sub001/internal/config"
)

// Job ids of the default recurring set.
const (
	JobDailyCollection    = "daily_collection"
	JobExtendedCollection = "extended_collection"
	JobAnnotationDrain    = "annotation_drain"
	JobMetricsComputation = "metrics_computation"
	JobCleanup            = "cleanup"
	JobHealthCheck        = "health_check"
)

// defaultCriticalJobs applies when the configuration names no critical jobs.
var defaultCriticalJobs = []string{JobDailyCollection, JobMetricsComputation}

// JobSpec describes one default recurring job before a handler is bound.
// Handlers are attached at assembly time, not here.
type JobSpec struct {
	ID          string
	Name        string
	Description string
	Cron        string
	Enabled     bool
	Critical    bool
}

// DefaultJobs returns the platform's standard recurring job set.
func DefaultJobs() []JobSpec {
	return []JobSpec{
		{
			ID:          JobDailyCollection,
			Name:        "Daily Core Collection",
			Description: "Runs the core collection cycle across all configured engines",
			Cron:        "0 6 * * *",
			Enabled:     true,
			Critical:    true,
		},
		{
			ID:          JobExtendedCollection,
			Name:        "Weekly Extended Collection",
			Description: "Runs the extended collection cycle with the larger query set",
			Cron:        "0 8 * * 0",
			Enabled:     true,
		},
		{
			ID:          JobAnnotationDrain,
			Name:        "Annotation Queue Drain",
			Description: "Drains pending annotation work to the annotation service",
			Cron:        "*/30 * * * *",
			Enabled:     true,
		},
		{
			ID:          JobMetricsComputation,
			Name:        "Daily Metrics Computation",
			Description: "Computes daily bias metrics over collected results",
			Cron:        "0 7 * * *",
			Enabled:     true,
			Critical:    true,
		},
		{
			ID:          JobCleanup,
			Name:        "Weekly Cleanup",
			Description: "Removes old terminal queue jobs and cycle executions",
			Cron:        "0 3 * * 0",
			Enabled:     true,
		},
		{
			ID:          JobHealthCheck,
			Name:        "Health Check",
			Description: "Scans for executions running past the stuck threshold",
			Cron:        "*/10 * * * *",
			Enabled:     true,
		},
	}
}

// ApplyOverrides adjusts specs with the per-id configuration overrides.
// Unknown override ids are ignored.
func ApplyOverrides(specs []JobSpec, overrides []config.ScheduledJobOverride) []JobSpec {
	if len(overrides) == 0 {
		return specs
	}

	byID := make(map[string]config.ScheduledJobOverride, len(overrides))
	for _, o := range overrides {
		byID[o.ID] = o
	}

	out := make([]JobSpec, len(specs))
	copy(out, specs)
	for i := range out {
		o, ok := byID[out[i].ID]
		if !ok {
			continue
		}
		if o.Cron != "" {
			out[i].Cron = o.Cron
		}
		if o.Enabled != nil {
			out[i].Enabled = *o.Enabled
		}
	}
	return out
}
