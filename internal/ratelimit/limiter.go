package ratelimit

import (
	"github.com/AlexKimmel/tamperguard/internal/action"
)

// Policy parameterizes one token bucket.
type Policy struct {
	Capacity   int     `yaml:"capacity"`    // bucket size; 0 rejects everything
	RefillRate float64 `yaml:"refill_rate"` // tokens per second; 0 never refills
}

type Decision struct {
	Allowed   bool
	Remaining float64 // tokens left after this attempt
	Capacity  int
}

// Limiter decides whether one more attempt for a kind fits its budget.
// TryConsume never blocks.
type Limiter interface {
	TryConsume(kind action.Kind) Decision
	Tokens(kind action.Kind) float64
	Reset(kind action.Kind)
}
