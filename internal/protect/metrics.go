package protect

import (
	"sync/atomic"
	"time"
)

// Metrics is a snapshot of the protector's counters. Counters are read one
// by one, so a snapshot taken while calls are in flight may mix values from
// slightly different moments.
type Metrics struct {
	TotalAttempts            int64      `json:"totalAttempts"`
	SuccessfulExecutions     int64      `json:"successfulExecutions"`
	FailedExecutions         int64      `json:"failedExecutions"`
	RateLimitedAttempts      int64      `json:"rateLimitedAttempts"`
	CircuitBreakerRejections int64      `json:"circuitBreakerRejections"`
	LastAttemptTime          *time.Time `json:"lastAttemptTime,omitempty"`
	SuccessRate              float64    `json:"successRate"`
}

// Aggregator accumulates attempt and outcome counters for the process lifetime.
type Aggregator struct {
	total       atomic.Int64
	succeeded   atomic.Int64
	failed      atomic.Int64
	rateLimited atomic.Int64
	rejected    atomic.Int64
	lastAttempt atomic.Pointer[time.Time]
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

func (a *Aggregator) recordAttempt(at time.Time) {
	a.total.Add(1)
	a.lastAttempt.Store(&at)
}

func (a *Aggregator) record(o Outcome) {
	switch o {
	case OutcomeSuccess:
		a.succeeded.Add(1)
	case OutcomeFailed:
		a.failed.Add(1)
	case OutcomeRateLimited:
		a.rateLimited.Add(1)
	case OutcomeCircuitOpen:
		a.rejected.Add(1)
	}
}

// Snapshot returns the current counters. SuccessRate is 0 before the first attempt.
func (a *Aggregator) Snapshot() Metrics {
	m := Metrics{
		TotalAttempts:            a.total.Load(),
		SuccessfulExecutions:     a.succeeded.Load(),
		FailedExecutions:         a.failed.Load(),
		RateLimitedAttempts:      a.rateLimited.Load(),
		CircuitBreakerRejections: a.rejected.Load(),
	}
	if last := a.lastAttempt.Load(); last != nil {
		t := *last
		m.LastAttemptTime = &t
	}
	if m.TotalAttempts > 0 {
		m.SuccessRate = float64(m.SuccessfulExecutions) / float64(m.TotalAttempts)
	}
	return m
}
