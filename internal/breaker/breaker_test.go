package breaker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexKimmel/tamperguard/internal/action"
)

func newTestBreaker(s Settings) (*Breaker, *clock.Mock) {
	clk := clock.NewMock()
	return NewBreaker(action.ForceLogout, s, clk, nil), clk
}

func trip(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		tk, ok := b.TryAcquire()
		require.True(t, ok, "acquire %d", i+1)
		require.True(t, b.RecordOutcome(tk, false))
	}
}

func TestNewBreaker_Defaults(t *testing.T) {
	b, _ := newTestBreaker(Settings{Timeout: -time.Second})

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 5, b.Settings().FailureThreshold)
	assert.Equal(t, 1, b.Settings().SuccessThreshold)
	assert.Equal(t, time.Duration(0), b.Settings().Timeout)
}

func TestBreaker_ClosedNeverDenies(t *testing.T) {
	b, _ := newTestBreaker(Settings{FailureThreshold: 3, SuccessThreshold: 2, Timeout: time.Minute})

	for i := 0; i < 20; i++ {
		tk, ok := b.TryAcquire()
		require.True(t, ok)
		b.RecordOutcome(tk, true)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpensAtFailureThreshold(t *testing.T) {
	b, _ := newTestBreaker(Settings{FailureThreshold: 3, SuccessThreshold: 2, Timeout: 30 * time.Second})

	trip(t, b, 2)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 2, b.Stats().ConsecutiveFailures)

	trip(t, b, 1)
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, 0, b.Stats().ConsecutiveFailures)

	_, ok := b.TryAcquire()
	assert.False(t, ok)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(Settings{FailureThreshold: 3, Timeout: time.Hour})

	trip(t, b, 2)
	tk, _ := b.TryAcquire()
	b.RecordOutcome(tk, true)
	trip(t, b, 2)

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpenUntilExactlyTimeout(t *testing.T) {
	b, clk := newTestBreaker(Settings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 200 * time.Millisecond})
	trip(t, b, 1)

	clk.Add(199 * time.Millisecond)
	_, ok := b.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, StateOpen, b.State())

	clk.Add(time.Millisecond)
	tk, ok := b.TryAcquire()
	require.True(t, ok)
	assert.True(t, tk.Trial)
	assert.Equal(t, StateHalfOpen, b.State())

	// only one trial at a time
	_, ok = b.TryAcquire()
	assert.False(t, ok)
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b, clk := newTestBreaker(Settings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Second})
	trip(t, b, 1)
	clk.Add(time.Second)

	tk, ok := b.TryAcquire()
	require.True(t, ok)
	assert.True(t, b.RecordOutcome(tk, true))

	assert.Equal(t, StateClosed, b.State())
	_, ok = b.TryAcquire()
	assert.True(t, ok)
}

func TestBreaker_HalfOpenNeedsConsecutiveSuccesses(t *testing.T) {
	b, clk := newTestBreaker(Settings{FailureThreshold: 2, SuccessThreshold: 3, Timeout: time.Second})
	trip(t, b, 2)
	clk.Add(time.Second)

	for i := 0; i < 2; i++ {
		tk, ok := b.TryAcquire()
		require.True(t, ok)
		b.RecordOutcome(tk, true)
		assert.Equal(t, StateHalfOpen, b.State())
	}
	assert.Equal(t, 2, b.Stats().ConsecutiveSuccesses)

	tk, ok := b.TryAcquire()
	require.True(t, ok)
	b.RecordOutcome(tk, true)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Stats().ConsecutiveSuccesses)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(Settings{FailureThreshold: 2, SuccessThreshold: 2, Timeout: time.Second})
	trip(t, b, 2)
	clk.Add(time.Second)

	tk, _ := b.TryAcquire()
	b.RecordOutcome(tk, true)
	tk, ok := b.TryAcquire()
	require.True(t, ok)
	b.RecordOutcome(tk, false)

	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, clk.Now(), b.Stats().LastTransition)

	clk.Add(999 * time.Millisecond)
	_, ok = b.TryAcquire()
	assert.False(t, ok, "timeout restarts from the reopen")
}

func TestBreaker_StaleOutcomeIgnored(t *testing.T) {
	b, clk := newTestBreaker(Settings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Second})

	// a slow closed-state call still running when another call trips the breaker
	slow, ok := b.TryAcquire()
	require.True(t, ok)
	trip(t, b, 1)
	require.Equal(t, StateOpen, b.State())

	clk.Add(time.Second)
	trial, ok := b.TryAcquire()
	require.True(t, ok)

	assert.False(t, b.RecordOutcome(slow, true), "outcome from the closed generation")
	assert.Equal(t, StateHalfOpen, b.State())
	assert.True(t, b.Stats().TrialInFlight)

	assert.True(t, b.RecordOutcome(trial, true))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_TrialOutcomeAfterResetIgnored(t *testing.T) {
	b, clk := newTestBreaker(Settings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Second})
	trip(t, b, 1)
	clk.Add(time.Second)
	trial, ok := b.TryAcquire()
	require.True(t, ok)

	b.Reset()
	assert.False(t, b.RecordOutcome(trial, false))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_RecordOutcomeTwiceIsNoop(t *testing.T) {
	b, clk := newTestBreaker(Settings{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Second})
	trip(t, b, 1)
	clk.Add(time.Second)

	trial, _ := b.TryAcquire()
	require.True(t, b.RecordOutcome(trial, true))
	assert.False(t, b.RecordOutcome(trial, true), "trial already reported")
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_RejectionReportsState(t *testing.T) {
	b, clk := newTestBreaker(Settings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Second})

	trip(t, b, 1)
	tk, ok := b.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, StateOpen, tk.State)

	clk.Add(time.Second)
	trial, ok := b.TryAcquire()
	require.True(t, ok)
	assert.Equal(t, StateHalfOpen, trial.State)

	tk, ok = b.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, StateHalfOpen, tk.State)
}

func TestBreaker_EmitDropsOlderTransition(t *testing.T) {
	var got [][2]State
	b := NewBreaker(action.Shutdown, Settings{}, clock.NewMock(), func(_ action.Kind, from, to State) {
		got = append(got, [2]State{from, to})
	})

	b.emit(transition{from: StateOpen, to: StateClosed, generation: 5, changed: true})
	b.emit(transition{from: StateClosed, to: StateOpen, generation: 3, changed: true})
	b.emit(transition{from: StateOpen, to: StateOpen, generation: 6})

	assert.Equal(t, [][2]State{{StateOpen, StateClosed}}, got)
}

func TestBreaker_LastReportedStateIsCurrent(t *testing.T) {
	clk := clock.NewMock()
	var (
		mu   sync.Mutex
		last State
	)
	b := NewBreaker(action.Shutdown, Settings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Second}, clk,
		func(_ action.Kind, _, to State) {
			mu.Lock()
			last = to
			mu.Unlock()
		})

	for i := 0; i < 200; i++ {
		trip(t, b, 1)
		clk.Add(time.Second)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.Reset()
		}()
		go func() {
			defer wg.Done()
			b.TryAcquire()
		}()
		wg.Wait()

		mu.Lock()
		got := last
		mu.Unlock()
		require.Equal(t, b.State(), got, "iteration %d", i)
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions [][2]State
	)
	clk := clock.NewMock()
	var b *Breaker
	b = NewBreaker(action.Shutdown, Settings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Second}, clk,
		func(kind action.Kind, from, to State) {
			assert.Equal(t, action.Shutdown, kind)
			// callbacks run outside the lock
			_ = b.State()
			mu.Lock()
			transitions = append(transitions, [2]State{from, to})
			mu.Unlock()
		})

	trip(t, b, 1)
	clk.Add(time.Second)
	tk, _ := b.TryAcquire()
	b.RecordOutcome(tk, true)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][2]State{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, transitions)
}

func TestBreaker_ConcurrentHalfOpenGrantsOneTrial(t *testing.T) {
	t.Parallel()

	b, clk := newTestBreaker(Settings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Second})
	trip(t, b, 1)
	clk.Add(time.Second)

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := b.TryAcquire(); ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), granted.Load())
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}
