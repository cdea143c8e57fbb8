// Package metrics provides in-process counters for crawl activity.
package metrics

import (
	"sync"
	"time"
)

// Metrics holds crawl counters. All methods are safe for concurrent use.
type Metrics struct {
	mu sync.Mutex

	startTime time.Time

	runsStarted   int64
	runsCompleted int64
	runsFailed    int64

	jobsSaved      int64
	jobsDuplicated int64
	jobsErrored    int64

	fetchSuccesses map[string]int64
	fetchFailures  map[string]int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	UptimeSeconds  int64            `json:"uptime_seconds"`
	RunsStarted    int64            `json:"runs_started"`
	RunsCompleted  int64            `json:"runs_completed"`
	RunsFailed     int64            `json:"runs_failed"`
	JobsSaved      int64            `json:"jobs_saved"`
	JobsDuplicated int64            `json:"jobs_duplicated"`
	JobsErrored    int64            `json:"jobs_errored"`
	FetchSuccesses map[string]int64 `json:"fetch_successes"`
	FetchFailures  map[string]int64 `json:"fetch_failures"`
}

// New creates a new Metrics instance.
func New() *Metrics {
	return &Metrics{
		startTime:      time.Now(),
		fetchSuccesses: make(map[string]int64),
		fetchFailures:  make(map[string]int64),
	}
}

// RunStarted records the start of a crawl run.
func (m *Metrics) RunStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runsStarted++
}

// RunFinished records the outcome of a crawl run and its tally.
func (m *Metrics) RunFinished(failed bool, saved, duplicates, errored int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if failed {
		m.runsFailed++
	} else {
		m.runsCompleted++
	}
	m.jobsSaved += int64(saved)
	m.jobsDuplicated += int64(duplicates)
	m.jobsErrored += int64(errored)
}

// FetchResult records a per-source fetch success or failure.
func (m *Metrics) FetchResult(source string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if success {
		m.fetchSuccesses[source]++
	} else {
		m.fetchFailures[source]++
	}
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	successes := make(map[string]int64, len(m.fetchSuccesses))
	for k, v := range m.fetchSuccesses {
		successes[k] = v
	}
	failures := make(map[string]int64, len(m.fetchFailures))
	for k, v := range m.fetchFailures {
		failures[k] = v
	}

	return Snapshot{
		UptimeSeconds:  int64(time.Since(m.startTime).Seconds()),
		RunsStarted:    m.runsStarted,
		RunsCompleted:  m.runsCompleted,
		RunsFailed:     m.runsFailed,
		JobsSaved:      m.jobsSaved,
		JobsDuplicated: m.jobsDuplicated,
		JobsErrored:    m.jobsErrored,
		FetchSuccesses: successes,
		FetchFailures:  failures,
	}
}
