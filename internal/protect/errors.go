package protect

import (
	"errors"
	"fmt"

	"github.com/AlexKimmel/tamperguard/internal/action"
)

var (
	// ErrRateLimited is returned when the kind's token bucket is empty.
	ErrRateLimited = errors.New("protect: rate limited")

	// ErrCircuitOpen is returned when the kind's circuit breaker rejects the call.
	ErrCircuitOpen = errors.New("protect: circuit open")

	// ErrExecutionFailed is returned when the executor reported a failure.
	ErrExecutionFailed = errors.New("protect: execution failed")

	ErrInvalidConfig = errors.New("protect: invalid config")
	ErrNilExecutor   = errors.New("protect: nil executor")
)

// Error annotates a rejection or failure with the action kind. Reason is one
// of ErrRateLimited, ErrCircuitOpen or ErrExecutionFailed; Cause is the
// executor's error, passed through untouched.
type Error struct {
	Kind   action.Kind
	Reason error
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Reason)
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Cause}
}

func IsRateLimited(err error) bool     { return errors.Is(err, ErrRateLimited) }
func IsCircuitOpen(err error) bool     { return errors.Is(err, ErrCircuitOpen) }
func IsExecutionFailed(err error) bool { return errors.Is(err, ErrExecutionFailed) }

// KindOf extracts the action kind from an error returned by Execute.
func KindOf(err error) (action.Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}
