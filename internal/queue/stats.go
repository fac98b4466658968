package queue

import (
	"time"
)

const (
	// throughputWindow is the trailing window for the completions-per-minute rate.
	throughputWindow = time.Minute

	// processingTimeWindow is the number of recent completions in the rolling
	// average processing time.
	processingTimeWindow = 100
)

// Stats is a point-in-time snapshot of queue state.
type Stats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`

	// ThroughputPerMinute counts completions in the trailing 60 seconds.
	ThroughputPerMinute int `json:"throughput_per_minute"`

	// AvgProcessingTimeMs is the mean processing time over the most recent
	// completions.
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
}

// statsTracker accumulates completion timing. All methods must be called with
// the queue mutex held.
type statsTracker struct {
	completedAt []time.Time
	durations   []time.Duration
	next        int
}

func newStatsTracker() *statsTracker {
	return &statsTracker{
		durations: make([]time.Duration, 0, processingTimeWindow),
	}
}

// recordCompletion notes one successful completion and its processing time.
func (t *statsTracker) recordCompletion(at time.Time, d time.Duration) {
	t.prune(at)
	t.completedAt = append(t.completedAt, at)

	if len(t.durations) < processingTimeWindow {
		t.durations = append(t.durations, d)
		return
	}
	t.durations[t.next] = d
	t.next = (t.next + 1) % processingTimeWindow
}

// throughput returns the number of completions within the trailing window.
func (t *statsTracker) throughput(now time.Time) int {
	t.prune(now)
	return len(t.completedAt)
}

// avgProcessingMs returns the rolling mean processing time in milliseconds.
func (t *statsTracker) avgProcessingMs() float64 {
	if len(t.durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range t.durations {
		total += d
	}
	return float64(total) / float64(time.Millisecond) / float64(len(t.durations))
}

func (t *statsTracker) prune(now time.Time) {
	cutoff := now.Add(-throughputWindow)
	i := 0
	for i < len(t.completedAt) && t.completedAt[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		t.completedAt = t.completedAt[i:]
	}
}
