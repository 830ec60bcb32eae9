package circuitbreaker

import "time"

// counters are guarded by CircuitBreaker.mu.
type counters struct {
	total                int64
	successful           int64
	failed               int64
	rejected             int64
	stateChanges         int64
	consecutiveFailures  int
	consecutiveSuccesses int
	lastFailure          time.Time
	lastSuccess          time.Time
}

// Metrics is a point-in-time snapshot of a breaker's counters.
// FailureRate and SuccessRate are percentages of TotalRequests.
type Metrics struct {
	Name                 string    `json:"name"`
	State                State     `json:"state"`
	TotalRequests        int64     `json:"total_requests"`
	SuccessfulRequests   int64     `json:"successful_requests"`
	FailedRequests       int64     `json:"failed_requests"`
	RejectedRequests     int64     `json:"rejected_requests"`
	StateChanges         int64     `json:"state_changes"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	FailureRate          float64   `json:"failure_rate"`
	SuccessRate          float64   `json:"success_rate"`
	OpenedAt             time.Time `json:"opened_at,omitzero"`
	LastFailureTime      time.Time `json:"last_failure_time,omitzero"`
	LastSuccessTime      time.Time `json:"last_success_time,omitzero"`
}

// Metrics returns a snapshot of the breaker's counters and current state.
func (cb *CircuitBreaker) Metrics() Metrics {
	cb.mu.Lock()
	defer cb.unlockAndNotify()

	state := cb.currentState()
	m := cb.metrics
	snap := Metrics{
		Name:                 cb.cfg.Name,
		State:                state,
		TotalRequests:        m.total,
		SuccessfulRequests:   m.successful,
		FailedRequests:       m.failed,
		RejectedRequests:     m.rejected,
		StateChanges:         m.stateChanges,
		ConsecutiveFailures:  m.consecutiveFailures,
		ConsecutiveSuccesses: m.consecutiveSuccesses,
		OpenedAt:             cb.openedAt,
		LastFailureTime:      m.lastFailure,
		LastSuccessTime:      m.lastSuccess,
	}
	if m.total > 0 {
		snap.FailureRate = float64(m.failed) / float64(m.total) * 100
		snap.SuccessRate = float64(m.successful) / float64(m.total) * 100
	}
	return snap
}
