// Package protect gates irreversible security-response actions behind a
// per-kind token bucket and a per-kind circuit breaker.
//
// A Protector is built from a Config (usually one of the presets) and is
// safe for concurrent use:
//
//	p, err := protect.New(protect.Default(), protect.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	err = p.Execute(ctx, action.LockScreen, protect.ExecutorFunc(lockScreen))
//	switch {
//	case protect.IsRateLimited(err):
//	case protect.IsCircuitOpen(err):
//	case protect.IsExecutionFailed(err):
//	}
//
// Execute never retries. Rejections and failures are returned to the caller,
// which owns retry policy.
package protect
