// Package gateway serves the ops HTTP surface of the daemon: triggering
// protected actions, inspecting protector state and exposing metrics.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/AlexKimmel/tamperguard/internal/action"
	"github.com/AlexKimmel/tamperguard/internal/breaker"
	"github.com/AlexKimmel/tamperguard/internal/obs"
	"github.com/AlexKimmel/tamperguard/internal/protect"
)

// Protector is the subset of *protect.Protector the handlers use.
type Protector interface {
	Execute(ctx context.Context, kind action.Kind, exec protect.Executor) error
	Snapshot() protect.Metrics
	BreakerStats(kind action.Kind) (breaker.Stats, bool)
	Tokens(kind action.Kind) float64
	Reset(kind action.Kind)
	Config() protect.Config
}

// Executors resolves the executor for a kind. Timeout bounds how long that
// executor may run; 0 means it is not known.
type Executors interface {
	Executor(kind action.Kind) protect.Executor
	Timeout(kind action.Kind) time.Duration
}

type Options struct {
	Protector Protector
	Executors Executors
	// Auth guards the mutating endpoints.
	Auth           func(http.Handler) http.Handler
	Logger         zerolog.Logger
	Metrics        *obs.Metrics
	MetricsPath    string
	MetricsHandler http.Handler
	MaxBodyBytes   int64
	Version        string
}

// NewRouter builds the ops HTTP handler.
func NewRouter(o Options) http.Handler {
	skip := map[string]struct{}{
		"/health":  {},
		"/version": {},
	}
	if o.MetricsPath != "" {
		skip[o.MetricsPath] = struct{}{}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(obs.Logger(o.Logger))
	if o.Metrics != nil {
		r.Use(o.Metrics.Middleware(skip))
	}
	r.Use(BodyLimit(o.MaxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(o.Version))
	})
	if o.MetricsPath != "" && o.MetricsHandler != nil {
		r.Method(http.MethodGet, o.MetricsPath, o.MetricsHandler)
	}

	h := &handlers{p: o.Protector, execs: o.Executors}
	r.Get("/v1/metrics/snapshot", h.snapshot)
	r.Get("/v1/breakers", h.breakers)

	r.Group(func(r chi.Router) {
		if o.Auth != nil {
			r.Use(o.Auth)
		}
		r.Post("/v1/actions/{kind}", h.trigger)
		r.Post("/v1/actions/{kind}/reset", h.reset)
	})

	return r
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	var b errorBody
	b.Error.Code = code
	b.Error.Message = msg
	writeJSON(w, status, b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
