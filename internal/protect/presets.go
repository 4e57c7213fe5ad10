package protect

import (
	"fmt"
	"strings"

	"github.com/AlexKimmel/tamperguard/internal/action"
	"github.com/AlexKimmel/tamperguard/internal/breaker"
)

// Preset names accepted by Preset.
const (
	PresetDefault   = "default"
	PresetStrict    = "strict"
	PresetResilient = "resilient"
	PresetTest      = "test"
)

func DefaultRateLimiter() RateLimiterConfig {
	return RateLimiterConfig{
		action.LockScreen:    {Capacity: 5, RefillRate: 2.0},
		action.PlayAlarm:     {Capacity: 3, RefillRate: 5.0},
		action.ForceLogout:   {Capacity: 2, RefillRate: 30.0},
		action.Shutdown:      {Capacity: 1, RefillRate: 60.0},
		action.ExecuteScript: {Capacity: 3, RefillRate: 10.0},
	}
}

func StrictRateLimiter() RateLimiterConfig {
	return RateLimiterConfig{
		action.LockScreen:    {Capacity: 3, RefillRate: 5.0},
		action.PlayAlarm:     {Capacity: 2, RefillRate: 10.0},
		action.ForceLogout:   {Capacity: 1, RefillRate: 60.0},
		action.Shutdown:      {Capacity: 1, RefillRate: 300.0},
		action.ExecuteScript: {Capacity: 1, RefillRate: 30.0},
	}
}

func TestRateLimiter() RateLimiterConfig {
	return RateLimiterConfig{
		action.LockScreen:    {Capacity: 2, RefillRate: 0.1},
		action.PlayAlarm:     {Capacity: 2, RefillRate: 0.1},
		action.ForceLogout:   {Capacity: 1, RefillRate: 0.1},
		action.Shutdown:      {Capacity: 1, RefillRate: 0.1},
		action.ExecuteScript: {Capacity: 2, RefillRate: 0.1},
	}
}

func DefaultCircuitBreaker() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		action.LockScreen:    settings(3, 2, 30.0),
		action.PlayAlarm:     settings(3, 2, 30.0),
		action.ForceLogout:   settings(2, 1, 60.0),
		action.Shutdown:      settings(2, 1, 120.0),
		action.ExecuteScript: settings(2, 2, 60.0),
	}
}

func ResilientCircuitBreaker() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		action.LockScreen:    settings(5, 3, 20.0),
		action.PlayAlarm:     settings(5, 3, 20.0),
		action.ForceLogout:   settings(3, 2, 45.0),
		action.Shutdown:      settings(3, 2, 90.0),
		action.ExecuteScript: settings(3, 2, 45.0),
	}
}

func TestCircuitBreaker() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		action.LockScreen:    settings(2, 1, 0.2),
		action.PlayAlarm:     settings(2, 1, 0.2),
		action.ForceLogout:   settings(1, 1, 0.2),
		action.Shutdown:      settings(1, 1, 0.2),
		action.ExecuteScript: settings(2, 1, 0.2),
	}
}

func Default() Config {
	return Config{
		RateLimiter:    DefaultRateLimiter(),
		CircuitBreaker: DefaultCircuitBreaker(),
		EnableMetrics:  true,
		EnableLogging:  true,
	}
}

func Strict() Config {
	return Config{
		RateLimiter:    StrictRateLimiter(),
		CircuitBreaker: ResilientCircuitBreaker(),
		EnableMetrics:  true,
		EnableLogging:  true,
	}
}

func Resilient() Config {
	return Config{
		RateLimiter:    DefaultRateLimiter(),
		CircuitBreaker: ResilientCircuitBreaker(),
		EnableMetrics:  true,
		EnableLogging:  true,
	}
}

// Test has small buckets that barely refill and 200ms breaker timeouts.
func Test() Config {
	return Config{
		RateLimiter:    TestRateLimiter(),
		CircuitBreaker: TestCircuitBreaker(),
		EnableMetrics:  true,
		EnableLogging:  false,
	}
}

// Preset returns the named configuration.
func Preset(name string) (Config, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PresetDefault:
		return Default(), nil
	case PresetStrict:
		return Strict(), nil
	case PresetResilient:
		return Resilient(), nil
	case PresetTest:
		return Test(), nil
	default:
		return Config{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, name)
	}
}

func settings(failures, successes int, timeout float64) breaker.Settings {
	return breaker.Settings{
		FailureThreshold: failures,
		SuccessThreshold: successes,
		Timeout:          seconds(timeout),
	}
}
