package state

import (
	"sync/atomic"
	"time"
)

// State holds the process-wide request counters. Counters are mutated by
// every concurrent request, so increments go through atomics.
type State struct {
	startTime     time.Time
	totalRequests atomic.Int64
	errorCount    atomic.Int64
}

// Snapshot is a point-in-time view of the counters for health reporting.
type Snapshot struct {
	UptimeSeconds float64
	TotalRequests int64
	ErrorCount    int64
	ErrorRate     float64
}

// New creates the server state, capturing the process start time.
func New() *State {
	return &State{startTime: time.Now()}
}

// StartTime returns when the process came up.
func (s *State) StartTime() time.Time {
	return s.startTime
}

// RecordRequest counts one accepted request.
func (s *State) RecordRequest() {
	s.totalRequests.Add(1)
}

// RecordError counts one failed request.
func (s *State) RecordError() {
	s.errorCount.Add(1)
}

// Snapshot reads the counters. ErrorRate is 0.0 when no requests have been
// served yet.
func (s *State) Snapshot() Snapshot {
	total := s.totalRequests.Load()
	errs := s.errorCount.Load()

	rate := 0.0
	if total > 0 {
		rate = float64(errs) / float64(total)
	}

	return Snapshot{
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		TotalRequests: total,
		ErrorCount:    errs,
		ErrorRate:     rate,
	}
}
