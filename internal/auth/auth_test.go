package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serve(s *Store, key string) (*httptest.ResponseRecorder, string) {
	var caller string
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ = CallerFrom(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/actions/lockScreen", nil)
	if key != "" {
		req.Header.Set("X-Trigger-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, caller
}

func TestMiddleware(t *testing.T) {
	s := NewStatic("X-Trigger-Key", map[string]string{"s3cret": "detector", "": "ignored"})

	rec, caller := serve(s, "s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "detector", caller)

	rec, _ = serve(s, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_api_key")

	rec, _ = serve(s, "guess")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_api_key")
}

func TestEmptyStoreRejects(t *testing.T) {
	rec, _ := serve(NewStatic("X-Trigger-Key", nil), "anything")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallerFrom_Missing(t *testing.T) {
	_, ok := CallerFrom(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
