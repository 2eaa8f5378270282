package statusapi

import (
	"sync"
	"time"
)

// Status is a point-in-time view of run health
type Status struct {
	LastRunID           string    `json:"last_run_id,omitempty"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	FailingSince        time.Time `json:"failing_since,omitempty"`
}

// Healthy reports whether the latest run succeeded
func (s Status) Healthy() bool {
	return s.ConsecutiveFailures == 0
}

// Tracker records run outcomes. It is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	status Status
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{}
}

// Success records a saved run and returns the failure streak it ended, if any
func (t *Tracker) Success(runID string, at time.Time) (recovered int, since time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	recovered, since = t.status.ConsecutiveFailures, t.status.FailingSince
	t.status.LastRunID = runID
	t.status.LastSuccess = at
	t.status.ConsecutiveFailures = 0
	t.status.FailingSince = time.Time{}
	return recovered, since
}

// Failure records a failed run and returns the current streak length and its start
func (t *Tracker) Failure(err error, at time.Time) (failures int, since time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.ConsecutiveFailures == 0 {
		t.status.FailingSince = at
	}
	t.status.ConsecutiveFailures++
	t.status.LastFailure = at
	if err != nil {
		t.status.LastError = err.Error()
	}
	return t.status.ConsecutiveFailures, t.status.FailingSince
}

// Status returns a copy of the current state
func (t *Tracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}
