// Package auth guards the trigger endpoint with static API keys.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"
)

type ctxKey int

const keyCaller ctxKey = 0

type credential struct {
	id     string
	secret []byte
}

// Store is a static in-memory key store. An empty store rejects every request.
type Store struct {
	header string
	creds  []credential
}

// NewStatic creates a key store reading keys from header (default "X-API-Key").
// pairs maps secret to caller ID.
func NewStatic(header string, pairs map[string]string) *Store {
	h := header
	if h == "" {
		h = "X-API-Key"
	}
	s := &Store{header: h}
	for secret, id := range pairs {
		if secret == "" || id == "" {
			continue
		}
		s.creds = append(s.creds, credential{id: id, secret: []byte(secret)})
	}
	return s
}

// callerFor compares against every key so timing does not reveal which one matched.
func (s *Store) callerFor(secret string) (string, bool) {
	var found string
	for _, c := range s.creds {
		if subtle.ConstantTimeCompare(c.secret, []byte(secret)) == 1 {
			found = c.id
		}
	}
	return found, found != ""
}

func WithCaller(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyCaller, id)
}

// CallerFrom returns the authenticated caller ID, if any.
func CallerFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(keyCaller).(string)
	return id, ok && id != ""
}

// Middleware validates the API key and writes JSON errors on failure.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := strings.TrimSpace(r.Header.Get(s.header))
		if secret == "" {
			writeJSON(w, http.StatusUnauthorized, "missing_api_key", "Provide API key in "+s.header)
			return
		}
		id, ok := s.callerFor(secret)
		if !ok {
			hlog.FromRequest(r).Warn().Str("remote", r.RemoteAddr).Msg("rejected api key")
			writeJSON(w, http.StatusUnauthorized, "invalid_api_key", "API key not recognized")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), id)))
	})
}

func writeJSON(w http.ResponseWriter, code int, errCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":{"code":"` + errCode + `","message":"` + msg + `"}}`))
}
