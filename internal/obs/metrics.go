package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AlexKimmel/tamperguard/internal/action"
	"github.com/AlexKimmel/tamperguard/internal/breaker"
	"github.com/AlexKimmel/tamperguard/internal/protect"
)

// Metrics exports protector events and ops HTTP traffic to Prometheus.
// It implements protect.Recorder.
type Metrics struct {
	Outcomes          *prometheus.CounterVec
	BreakerState      *prometheus.GaugeVec
	BreakerTransition *prometheus.CounterVec
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tamperguard_action_outcomes_total",
				Help: "Protected action attempts by outcome",
			},
			[]string{"action", "outcome"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tamperguard_breaker_state",
				Help: "Circuit breaker state per action (0 closed, 1 open, 2 half-open)",
			},
			[]string{"action"},
		),
		BreakerTransition: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tamperguard_breaker_transitions_total",
				Help: "Circuit breaker state transitions",
			},
			[]string{"action", "from", "to"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tamperguard_http_requests_total",
				Help: "Total HTTP requests served by the ops endpoint",
			},
			[]string{"route", "method", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tamperguard_http_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}

	reg.MustRegister(m.Outcomes, m.BreakerState, m.BreakerTransition, m.RequestsTotal, m.RequestDuration)

	for _, k := range action.All() {
		m.BreakerState.WithLabelValues(k.String()).Set(float64(breaker.StateClosed))
	}
	return m
}

func (m *Metrics) ObserveOutcome(kind action.Kind, o protect.Outcome) {
	m.Outcomes.WithLabelValues(kind.String(), o.String()).Inc()
}

func (m *Metrics) ObserveStateChange(kind action.Kind, from, to breaker.State) {
	m.BreakerState.WithLabelValues(kind.String()).Set(float64(to))
	m.BreakerTransition.WithLabelValues(kind.String(), from.String(), to.String()).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the connection.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Middleware records per-request metrics labelled with the chi route pattern.
func (m *Metrics) Middleware(skip map[string]struct{}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			route := routePattern(r)
			code := rec.status
			if code == 0 {
				code = http.StatusOK
			}

			m.RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
			m.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(code)).Inc()
		})
	}
}
