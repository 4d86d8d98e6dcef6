package scheduler

import (
	"sync"
	"time"
)

// Performance summarizes finished attempts.
type Performance struct {
	Attempts             int           // Finished attempts, successful or not
	Successes            int           // Attempts that completed their task
	SuccessRate          float64       // Successes / Attempts, in [0,1]; 0 with no attempts
	MeanExecutionTime    time.Duration // Mean duration of successful attempts
	RealizedDesirability float64       // Mean admission score of completed tasks
	RetriesScheduled     int
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Total       int
	Pending     int
	Running     int
	Completed   int
	Failed      int // Permanently failed tasks
	Cancelled   int
	Stalled     int // Pending tasks blocked by a failed or cancelled dependency
	QueueSizes  map[Priority]int
	Performance Performance
	Utilization map[string]float64 // Percent of each ceiling currently reserved
	Rounds      uint64
}

// StatusReporter accumulates performance counters from executor outcomes.
// It has no influence on scheduling decisions.
type StatusReporter struct {
	mu            sync.Mutex
	attempts      int
	successes     int
	successTime   time.Duration
	completedScrs float64
	retries       int
}

// NewStatusReporter creates an empty reporter.
func NewStatusReporter() *StatusReporter {
	return &StatusReporter{}
}

// RecordSuccess counts a successful attempt of a task admitted with score.
func (r *StatusReporter) RecordSuccess(d time.Duration, score float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	r.successes++
	r.successTime += d
	r.completedScrs += score
}

// RecordFailure counts a failed attempt; retried reports whether it was re-enqueued.
func (r *StatusReporter) RecordFailure(retried bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if retried {
		r.retries++
	}
}

// Performance returns the current summary.
func (r *StatusReporter) Performance() Performance {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := Performance{
		Attempts:         r.attempts,
		Successes:        r.successes,
		RetriesScheduled: r.retries,
	}
	if r.attempts > 0 {
		p.SuccessRate = float64(r.successes) / float64(r.attempts)
	}
	if r.successes > 0 {
		p.MeanExecutionTime = r.successTime / time.Duration(r.successes)
		p.RealizedDesirability = r.completedScrs / float64(r.successes)
	}
	return p
}
