package breaker

import (
	"github.com/benbjohnson/clock"

	"github.com/AlexKimmel/tamperguard/internal/action"
)

// Set holds one Breaker per action kind. The map is built once, so kinds
// never share a lock.
type Set struct {
	breakers map[action.Kind]*Breaker
}

// NewSet builds a breaker for every kind. Kinds missing from settings get
// the Settings defaults.
func NewSet(clk clock.Clock, settings map[action.Kind]Settings, onStateChange StateChangeFunc) *Set {
	s := &Set{breakers: make(map[action.Kind]*Breaker, len(action.All()))}
	for _, k := range action.All() {
		s.breakers[k] = NewBreaker(k, settings[k], clk, onStateChange)
	}
	return s
}

func (s *Set) Get(kind action.Kind) (*Breaker, bool) {
	b, ok := s.breakers[kind]
	return b, ok
}

func (s *Set) TryAcquire(kind action.Kind) (Ticket, bool) {
	b, ok := s.breakers[kind]
	if !ok {
		return Ticket{Kind: kind, State: StateOpen}, false
	}
	return b.TryAcquire()
}

func (s *Set) RecordOutcome(t Ticket, success bool) bool {
	b, ok := s.breakers[t.Kind]
	if !ok {
		return false
	}
	return b.RecordOutcome(t, success)
}

func (s *Set) State(kind action.Kind) State {
	b, ok := s.breakers[kind]
	if !ok {
		return StateOpen
	}
	return b.State()
}

func (s *Set) Reset(kind action.Kind) {
	if b, ok := s.breakers[kind]; ok {
		b.Reset()
	}
}
