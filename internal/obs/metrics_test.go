package obs

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexKimmel/tamperguard/internal/action"
	"github.com/AlexKimmel/tamperguard/internal/breaker"
	"github.com/AlexKimmel/tamperguard/internal/protect"
)

func TestMetrics_Recorder(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveOutcome(action.Shutdown, protect.OutcomeFailed)
	m.ObserveOutcome(action.Shutdown, protect.OutcomeFailed)
	m.ObserveOutcome(action.LockScreen, protect.OutcomeRateLimited)
	m.ObserveStateChange(action.Shutdown, breaker.StateClosed, breaker.StateOpen)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("shutdown", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("lockScreen", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("shutdown")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("playAlarm")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerTransition.WithLabelValues("shutdown", "closed", "open")))
}

func TestMetrics_Middleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.Middleware(map[string]struct{}{"/health": {}}))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {})
	r.Post("/v1/actions/{kind}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/actions/shutdown", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/v1/actions/{kind}", "POST", "202")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal))
}

type fixedSnapshot protect.Metrics

func (f fixedSnapshot) Snapshot() protect.Metrics { return protect.Metrics(f) }

func TestSnapshotCollector(t *testing.T) {
	last := time.Unix(1700000000, 0)
	c := NewSnapshotCollector(fixedSnapshot{
		TotalAttempts:        10,
		SuccessfulExecutions: 7,
		FailedExecutions:     1,
		RateLimitedAttempts:  2,
		LastAttemptTime:      &last,
		SuccessRate:          0.7,
	})

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	expected := `
# HELP tamperguard_protection_attempts_total Execute calls seen by the protector
# TYPE tamperguard_protection_attempts_total counter
tamperguard_protection_attempts_total 10
# HELP tamperguard_protection_success_ratio Successful executions divided by attempts
# TYPE tamperguard_protection_success_ratio gauge
tamperguard_protection_success_ratio 0.7
# HELP tamperguard_protection_last_attempt_timestamp_seconds Unix time of the last attempt
# TYPE tamperguard_protection_last_attempt_timestamp_seconds gauge
tamperguard_protection_last_attempt_timestamp_seconds 1.7e+09
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"tamperguard_protection_attempts_total",
		"tamperguard_protection_success_ratio",
		"tamperguard_protection_last_attempt_timestamp_seconds",
	)
	assert.NoError(t, err)
	assert.Equal(t, 7, testutil.CollectAndCount(c))
}
