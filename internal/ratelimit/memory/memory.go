package memory

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/AlexKimmel/tamperguard/internal/action"
	"github.com/AlexKimmel/tamperguard/internal/ratelimit"
)

type bucket struct {
	mu         sync.Mutex
	policy     ratelimit.Policy
	tokens     float64
	lastRefill time.Time
}

// Limiter is an in-process token bucket limiter with one bucket per kind.
// The bucket map is fixed at construction, so lookups need no lock and
// kinds never contend with each other.
type Limiter struct {
	clock   clock.Clock
	buckets map[action.Kind]*bucket
}

// New builds a bucket for every kind. Kinds missing from policies get a
// zero-capacity bucket and are always rejected.
func New(clk clock.Clock, policies map[action.Kind]ratelimit.Policy) *Limiter {
	if clk == nil {
		clk = clock.New()
	}
	now := clk.Now()
	l := &Limiter{
		clock:   clk,
		buckets: make(map[action.Kind]*bucket, len(action.All())),
	}
	for _, k := range action.All() {
		p := policies[k]
		l.buckets[k] = &bucket{
			policy:     p,
			tokens:     float64(max(p.Capacity, 0)),
			lastRefill: now,
		}
	}
	return l
}

func (l *Limiter) TryConsume(kind action.Kind) ratelimit.Decision {
	b, ok := l.buckets[kind]
	if !ok {
		return ratelimit.Decision{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(l.clock.Now())

	allow := b.tokens >= 1.0
	if allow {
		b.tokens -= 1.0
	}

	return ratelimit.Decision{
		Allowed:   allow,
		Remaining: b.tokens,
		Capacity:  b.policy.Capacity,
	}
}

// Tokens reports the current balance after applying any pending refill.
func (l *Limiter) Tokens(kind action.Kind) float64 {
	b, ok := l.buckets[kind]
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(l.clock.Now())
	return b.tokens
}

// Reset refills the kind's bucket to capacity.
func (l *Limiter) Reset(kind action.Kind) {
	b, ok := l.buckets[kind]
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = float64(max(b.policy.Capacity, 0))
	b.lastRefill = l.clock.Now()
}

func (b *bucket) refillLocked(now time.Time) {
	capacity := float64(max(b.policy.Capacity, 0))

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed < 0 {
		// clock stepped backwards: keep the old mark so the interval is not credited twice
		return
	}
	if b.policy.RefillRate > 0 {
		b.tokens += elapsed * b.policy.RefillRate
	}
	if b.tokens > capacity {
		b.tokens = capacity
	}
	if b.tokens < 0 {
		b.tokens = 0
	}
	b.lastRefill = now
}
