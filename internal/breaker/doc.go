// Package breaker implements a per-action circuit breaker.
//
// Each action kind owns an independent three-state machine:
//
//   - Closed: every acquisition is allowed. Consecutive failures are counted
//     and the breaker opens once FailureThreshold is reached. A success resets
//     the count.
//   - Open: acquisitions are denied until Timeout has elapsed since the breaker
//     opened. The first acquisition after that moves it to half-open and is
//     granted as a trial.
//   - HalfOpen: one trial at a time is allowed. SuccessThreshold consecutive
//     trial successes close the breaker; any trial failure reopens it.
//
// The open to half-open move is evaluated lazily on access; there is no
// background timer.
//
// Every state change, and every half-open trial grant, bumps a generation counter. TryAcquire hands out a Ticket
// stamped with the generation it was granted in, and RecordOutcome ignores
// tickets from an older generation. An outcome that arrives after the breaker
// already moved on (for example after a manual Reset, or a closed-state call
// that finishes after the breaker tripped) can therefore never corrupt the
// current state.
package breaker
