package protect

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AlexKimmel/tamperguard/internal/action"
	"github.com/AlexKimmel/tamperguard/internal/breaker"
	"github.com/AlexKimmel/tamperguard/internal/ratelimit"
	"github.com/AlexKimmel/tamperguard/internal/ratelimit/memory"
)

// Executor performs the real effect of an action.
type Executor interface {
	Execute(ctx context.Context) error
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(ctx context.Context) error

func (f ExecutorFunc) Execute(ctx context.Context) error { return f(ctx) }

// Outcome classifies the result of one Execute call.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailed
	OutcomeRateLimited
	OutcomeCircuitOpen
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Recorder receives protector events for external telemetry. Calls must not block.
type Recorder interface {
	ObserveOutcome(kind action.Kind, outcome Outcome)
	ObserveStateChange(kind action.Kind, from, to breaker.State)
}

type Option func(*Protector)

// WithLogger sets the logger used when Config.EnableLogging is on.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Protector) {
		p.log = l
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(p *Protector) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithRecorder forwards outcomes and breaker transitions to r when
// Config.EnableMetrics is on.
func WithRecorder(r Recorder) Option {
	return func(p *Protector) {
		p.recorder = r
	}
}

// Protector runs actions only when both the kind's rate limiter and its
// circuit breaker allow it.
type Protector struct {
	cfg      Config
	clock    clock.Clock
	log      zerolog.Logger
	recorder Recorder

	limiter  ratelimit.Limiter
	breakers *breaker.Set
	metrics  *Aggregator
}

// New validates cfg and builds a Protector owning fresh limiter, breaker
// and metrics state.
func New(cfg Config, opts ...Option) (*Protector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Protector{
		cfg:     cfg.Clone(),
		clock:   clock.New(),
		log:     zerolog.Nop(),
		metrics: NewAggregator(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if !p.cfg.EnableLogging {
		p.log = zerolog.Nop()
	}

	p.limiter = memory.New(p.clock, p.cfg.RateLimiter)
	p.breakers = breaker.NewSet(p.clock, p.cfg.CircuitBreaker, p.onStateChange)
	return p, nil
}

// Execute runs exec for kind if the rate limiter and then the circuit breaker
// allow it. The returned error is nil on success, or an *Error whose Reason
// is ErrRateLimited, ErrCircuitOpen or ErrExecutionFailed.
//
// exec runs outside every lock. Its outcome is always reported to the
// breaker, including when it panics or ctx is cancelled.
func (p *Protector) Execute(ctx context.Context, kind action.Kind, exec Executor) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %d", action.ErrUnknownKind, int(kind))
	}
	if exec == nil {
		return ErrNilExecutor
	}

	log := p.log.With().
		Str("action", kind.String()).
		Str("attempt_id", uuid.NewString()).
		Logger()

	if p.cfg.EnableMetrics {
		p.metrics.recordAttempt(p.clock.Now())
	}

	dec := p.limiter.TryConsume(kind)
	if !dec.Allowed {
		p.observe(kind, OutcomeRateLimited)
		log.Warn().
			Int("capacity", dec.Capacity).
			Float64("tokens", dec.Remaining).
			Msg("action rate limited")
		return &Error{Kind: kind, Reason: ErrRateLimited}
	}

	ticket, ok := p.breakers.TryAcquire(kind)
	if !ok {
		p.observe(kind, OutcomeCircuitOpen)
		log.Warn().
			Str("state", ticket.State.String()).
			Msg("action rejected by circuit breaker")
		return &Error{Kind: kind, Reason: ErrCircuitOpen}
	}

	if ticket.Trial {
		log.Info().Uint64("generation", ticket.Generation).Msg("running half-open trial")
	}

	err := p.run(ctx, ticket, exec, log)
	if err != nil {
		p.observe(kind, OutcomeFailed)
		log.Error().Err(err).Msg("action failed")
		return &Error{Kind: kind, Reason: ErrExecutionFailed, Cause: err}
	}

	p.observe(kind, OutcomeSuccess)
	log.Info().Msg("action executed")
	return nil
}

func (p *Protector) run(ctx context.Context, ticket breaker.Ticket, exec Executor, log zerolog.Logger) (err error) {
	reported := false
	defer func() {
		if reported {
			return
		}
		// exec panicked; the breaker still has to see a failure
		p.record(ticket, false, log)
		p.observe(ticket.Kind, OutcomeFailed)
		log.Error().Msg("action panicked")
	}()

	err = exec.Execute(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	reported = true
	p.record(ticket, err == nil, log)
	return err
}

func (p *Protector) record(ticket breaker.Ticket, success bool, log zerolog.Logger) {
	if !p.breakers.RecordOutcome(ticket, success) {
		log.Debug().
			Uint64("generation", ticket.Generation).
			Bool("success", success).
			Msg("stale outcome discarded")
	}
}

func (p *Protector) observe(kind action.Kind, o Outcome) {
	if !p.cfg.EnableMetrics {
		return
	}
	p.metrics.record(o)
	if p.recorder != nil {
		p.recorder.ObserveOutcome(kind, o)
	}
}

func (p *Protector) onStateChange(kind action.Kind, from, to breaker.State) {
	p.log.Warn().
		Str("action", kind.String()).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("circuit breaker state changed")
	if p.cfg.EnableMetrics && p.recorder != nil {
		p.recorder.ObserveStateChange(kind, from, to)
	}
}

// Snapshot returns the current metrics. All counters are zero when metrics
// are disabled.
func (p *Protector) Snapshot() Metrics {
	return p.metrics.Snapshot()
}

func (p *Protector) BreakerState(kind action.Kind) breaker.State {
	return p.breakers.State(kind)
}

func (p *Protector) BreakerStats(kind action.Kind) (breaker.Stats, bool) {
	b, ok := p.breakers.Get(kind)
	if !ok {
		return breaker.Stats{}, false
	}
	return b.Stats(), true
}

// Tokens reports the kind's current token balance.
func (p *Protector) Tokens(kind action.Kind) float64 {
	return p.limiter.Tokens(kind)
}

// Reset refills the kind's bucket and closes its breaker. Outcomes of calls
// still in flight are discarded.
func (p *Protector) Reset(kind action.Kind) {
	p.limiter.Reset(kind)
	p.breakers.Reset(kind)
	p.log.Info().Str("action", kind.String()).Msg("protection state reset")
}

// Config returns a copy of the configuration the Protector runs with.
func (p *Protector) Config() Config {
	return p.cfg.Clone()
}
