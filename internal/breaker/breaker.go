package breaker

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/AlexKimmel/tamperguard/internal/action"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means actions run normally.
	StateClosed State = iota
	// StateOpen means actions are rejected until the timeout elapses.
	StateOpen
	// StateHalfOpen means trial actions probe whether the failure cleared.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Settings configures one kind's breaker.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Default: 5
	FailureThreshold int

	// SuccessThreshold is the number of consecutive trial successes that
	// closes a half-open circuit. Default: 1
	SuccessThreshold int

	// Timeout is how long the circuit stays open before a trial is allowed.
	Timeout time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = 1
	}
	if s.Timeout < 0 {
		s.Timeout = 0
	}
	return s
}

// StateChangeFunc is called after a breaker changed state, outside its lock.
// Calls for one breaker are serialized and never go back in time; the hook
// must not cause a transition of the same breaker.
type StateChangeFunc func(kind action.Kind, from, to State)

// Ticket is the permission returned by TryAcquire. Its outcome must be
// reported exactly once through RecordOutcome. A denied TryAcquire still
// returns a Ticket so callers can see the state that rejected them.
type Ticket struct {
	Kind       action.Kind
	Generation uint64
	// State is the breaker state at acquire time.
	State State
	// Trial is set for the single half-open probe.
	Trial bool
}

// Stats is a point-in-time view of a breaker.
type Stats struct {
	State                State
	Generation           uint64
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	TrialInFlight        bool
	LastTransition       time.Time
}

type transition struct {
	from, to   State
	generation uint64
	changed    bool
}

// Breaker is the circuit breaker for a single action kind.
type Breaker struct {
	kind          action.Kind
	settings      Settings
	clock         clock.Clock
	onStateChange StateChangeFunc

	// emitMu orders hook calls; emitted is the generation last reported.
	emitMu  sync.Mutex
	emitted uint64

	mu             sync.Mutex
	state          State
	generation     uint64
	failures       int
	successes      int
	trialInFlight  bool
	lastTransition time.Time
}

// NewBreaker creates a closed breaker for kind.
func NewBreaker(kind action.Kind, settings Settings, clk clock.Clock, onStateChange StateChangeFunc) *Breaker {
	if clk == nil {
		clk = clock.New()
	}
	return &Breaker{
		kind:           kind,
		settings:       settings.withDefaults(),
		clock:          clk,
		onStateChange:  onStateChange,
		state:          StateClosed,
		lastTransition: clk.Now(),
	}
}

// TryAcquire reports whether an action may run now. It never blocks.
func (b *Breaker) TryAcquire() (Ticket, bool) {
	b.mu.Lock()
	tr := b.advanceLocked()

	t := Ticket{Kind: b.kind, Generation: b.generation, State: b.state}
	ok := false
	switch b.state {
	case StateClosed:
		ok = true
	case StateHalfOpen:
		if !b.trialInFlight {
			b.trialInFlight = true
			b.generation++
			t.Generation, t.Trial, ok = b.generation, true, true
		}
	}
	b.mu.Unlock()

	b.emit(tr)
	return t, ok
}

// RecordOutcome applies the result of the action run under t. It returns
// false when the ticket is stale and the outcome was discarded.
func (b *Breaker) RecordOutcome(t Ticket, success bool) bool {
	b.mu.Lock()
	if t.Kind != b.kind || t.Generation != b.generation {
		b.mu.Unlock()
		return false
	}

	var tr transition
	applied := true
	switch b.state {
	case StateClosed:
		if success {
			b.failures = 0
			break
		}
		b.failures++
		if b.failures >= b.settings.FailureThreshold {
			tr = b.setStateLocked(StateOpen)
		}

	case StateHalfOpen:
		if !t.Trial || !b.trialInFlight {
			applied = false
			break
		}
		b.trialInFlight = false
		if !success {
			tr = b.setStateLocked(StateOpen)
			break
		}
		b.successes++
		if b.successes >= b.settings.SuccessThreshold {
			tr = b.setStateLocked(StateClosed)
		}

	default:
		// no ticket is ever granted while open
		applied = false
	}
	b.mu.Unlock()

	b.emit(tr)
	return applied
}

// State returns the current state, applying a pending open to half-open move.
func (b *Breaker) State() State {
	b.mu.Lock()
	tr := b.advanceLocked()
	s := b.state
	b.mu.Unlock()

	b.emit(tr)
	return s
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	tr := b.advanceLocked()
	s := Stats{
		State:                b.state,
		Generation:           b.generation,
		ConsecutiveFailures:  b.failures,
		ConsecutiveSuccesses: b.successes,
		TrialInFlight:        b.trialInFlight,
		LastTransition:       b.lastTransition,
	}
	b.mu.Unlock()

	b.emit(tr)
	return s
}

// Reset closes the breaker. Outstanding tickets become stale.
func (b *Breaker) Reset() {
	b.mu.Lock()
	tr := b.setStateLocked(StateClosed)
	b.mu.Unlock()

	b.emit(tr)
}

func (b *Breaker) Settings() Settings {
	return b.settings
}

func (b *Breaker) advanceLocked() transition {
	if b.state == StateOpen && b.clock.Since(b.lastTransition) >= b.settings.Timeout {
		return b.setStateLocked(StateHalfOpen)
	}
	return transition{}
}

func (b *Breaker) setStateLocked(to State) transition {
	from := b.state
	b.state = to
	b.generation++
	b.failures = 0
	b.successes = 0
	b.trialInFlight = false
	b.lastTransition = b.clock.Now()
	return transition{from: from, to: to, generation: b.generation, changed: from != to}
}

// emit runs the hook outside mu. A transition that lost the race to a newer
// one is dropped, so the last reported state is always the current one.
func (b *Breaker) emit(tr transition) {
	if !tr.changed || b.onStateChange == nil {
		return
	}
	b.emitMu.Lock()
	defer b.emitMu.Unlock()
	if tr.generation <= b.emitted {
		return
	}
	b.emitted = tr.generation
	b.onStateChange(b.kind, tr.from, tr.to)
}
