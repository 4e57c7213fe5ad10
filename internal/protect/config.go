package protect

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/AlexKimmel/tamperguard/internal/action"
	"github.com/AlexKimmel/tamperguard/internal/breaker"
	"github.com/AlexKimmel/tamperguard/internal/ratelimit"
)

// RateLimiterConfig holds one token bucket policy per kind.
type RateLimiterConfig map[action.Kind]ratelimit.Policy

// CircuitBreakerConfig holds one breaker configuration per kind.
type CircuitBreakerConfig map[action.Kind]breaker.Settings

// Config parameterizes a Protector. New copies it, so later changes to the
// maps do not reach a running Protector.
type Config struct {
	RateLimiter    RateLimiterConfig
	CircuitBreaker CircuitBreakerConfig
	EnableMetrics  bool
	EnableLogging  bool
}

// Validate checks that every kind has a sane limiter and breaker entry.
func (c Config) Validate() error {
	var problems []string
	for _, k := range action.All() {
		p, ok := c.RateLimiter[k]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("%s: missing rate limiter policy", k))
		case p.Capacity < 0:
			problems = append(problems, fmt.Sprintf("%s: capacity %d < 0", k, p.Capacity))
		case p.RefillRate < 0 || math.IsNaN(p.RefillRate) || math.IsInf(p.RefillRate, 0):
			problems = append(problems, fmt.Sprintf("%s: invalid refill rate %v", k, p.RefillRate))
		}

		s, ok := c.CircuitBreaker[k]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("%s: missing circuit breaker settings", k))
		case s.FailureThreshold < 1:
			problems = append(problems, fmt.Sprintf("%s: failure threshold %d < 1", k, s.FailureThreshold))
		case s.SuccessThreshold < 1:
			problems = append(problems, fmt.Sprintf("%s: success threshold %d < 1", k, s.SuccessThreshold))
		case s.Timeout < 0:
			problems = append(problems, fmt.Sprintf("%s: timeout %v < 0", k, s.Timeout))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	out.RateLimiter = make(RateLimiterConfig, len(c.RateLimiter))
	for k, v := range c.RateLimiter {
		out.RateLimiter[k] = v
	}
	out.CircuitBreaker = make(CircuitBreakerConfig, len(c.CircuitBreaker))
	for k, v := range c.CircuitBreaker {
		out.CircuitBreaker[k] = v
	}
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
