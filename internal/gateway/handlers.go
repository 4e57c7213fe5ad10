package gateway

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/AlexKimmel/tamperguard/internal/action"
	"github.com/AlexKimmel/tamperguard/internal/auth"
	"github.com/AlexKimmel/tamperguard/internal/protect"
)

// writeGrace is the time left to write the response once an action hit its timeout.
const writeGrace = 5 * time.Second

type handlers struct {
	p     Protector
	execs Executors
}

type triggerResponse struct {
	Action string `json:"action"`
	Status string `json:"status"`
}

type breakerView struct {
	Action               string    `json:"action"`
	State                string    `json:"state"`
	Generation           uint64    `json:"generation"`
	ConsecutiveFailures  int       `json:"consecutiveFailures"`
	ConsecutiveSuccesses int       `json:"consecutiveSuccesses"`
	TrialInFlight        bool      `json:"trialInFlight"`
	LastTransition       time.Time `json:"lastTransition"`
	Tokens               float64   `json:"tokens"`
	Capacity             int       `json:"capacity"`
}

func kindParam(w http.ResponseWriter, r *http.Request) (action.Kind, bool) {
	kind, err := action.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_action", err.Error())
		return 0, false
	}
	return kind, true
}

// trigger runs the kind's executor through the protector. The action is
// detached from the request context: a client hanging up must not abort a
// lock or shutdown halfway.
func (h *handlers) trigger(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	caller, _ := auth.CallerFrom(r.Context())
	hlog.FromRequest(r).Info().Str("action", kind.String()).Str("caller", caller).Msg("trigger")

	// the server's write timeout must not cut off the verdict of a slow action
	if d := h.execs.Timeout(kind); d > 0 {
		err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(d + writeGrace))
		if err != nil {
			hlog.FromRequest(r).Debug().Err(err).Msg("cannot extend write deadline")
		}
	}

	err := h.p.Execute(context.WithoutCancel(r.Context()), kind, h.execs.Executor(kind))
	h.setLimitHeaders(w, kind)

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, triggerResponse{Action: kind.String(), Status: "executed"})
	case protect.IsRateLimited(err):
		if s, ok := h.retryAfter(kind); ok {
			w.Header().Set("Retry-After", strconv.Itoa(s))
		}
		writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	case protect.IsCircuitOpen(err):
		writeError(w, http.StatusServiceUnavailable, "circuit_open", err.Error())
	case protect.IsExecutionFailed(err):
		writeError(w, http.StatusBadGateway, "execution_failed", err.Error())
	case errors.Is(err, action.ErrUnknownKind):
		writeError(w, http.StatusNotFound, "unknown_action", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	h.p.Reset(kind)
	writeJSON(w, http.StatusOK, triggerResponse{Action: kind.String(), Status: "reset"})
}

func (h *handlers) snapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.p.Snapshot())
}

func (h *handlers) breakers(w http.ResponseWriter, _ *http.Request) {
	cfg := h.p.Config()
	out := make([]breakerView, 0, len(action.All()))
	for _, k := range action.All() {
		st, ok := h.p.BreakerStats(k)
		if !ok {
			continue
		}
		out = append(out, breakerView{
			Action:               k.String(),
			State:                st.State.String(),
			Generation:           st.Generation,
			ConsecutiveFailures:  st.ConsecutiveFailures,
			ConsecutiveSuccesses: st.ConsecutiveSuccesses,
			TrialInFlight:        st.TrialInFlight,
			LastTransition:       st.LastTransition,
			Tokens:               h.p.Tokens(k),
			Capacity:             cfg.RateLimiter[k].Capacity,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// headers for good DX
func (h *handlers) setLimitHeaders(w http.ResponseWriter, kind action.Kind) {
	pol := h.p.Config().RateLimiter[kind]
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(pol.Capacity))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(math.Floor(h.p.Tokens(kind)))))
}

// retryAfter estimates whole seconds until one token is available.
func (h *handlers) retryAfter(kind action.Kind) (int, bool) {
	pol := h.p.Config().RateLimiter[kind]
	if pol.RefillRate <= 0 || pol.Capacity < 1 {
		return 0, false
	}
	need := 1 - h.p.Tokens(kind)
	if need <= 0 {
		return 0, true
	}
	return int(math.Ceil(need / pol.RefillRate)), true
}
