package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mnemosyne-api/internal/metrics"
	"mnemosyne-api/internal/model"
	"mnemosyne-api/internal/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAuth map[string]model.Identity

func (s stubAuth) Authenticate(_ context.Context, token string) (model.Identity, error) {
	id, ok := s[token]
	if !ok {
		return model.Identity{}, session.ErrInvalidToken
	}
	return id, nil
}

// whoami echoes the caller's user id, or "anonymous".
var whoami = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, ok := session.IdentityFromContext(r.Context())
	if !ok {
		w.Write([]byte("anonymous"))
		return
	}
	w.Write([]byte(id.UserID + ":" + session.TokenFromContext(r.Context())))
})

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"bearer", "Authorization", "Bearer abc", "abc"},
		{"lowercase scheme", "Authorization", "bearer abc", "abc"},
		{"other scheme", "Authorization", "Basic abc", ""},
		{"x-token", "X-Token", " abc ", "abc"},
		{"none", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			assert.Equal(t, tt.want, BearerToken(r))
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	auth := stubAuth{"good": {UserID: "u1", Email: "u1@example.com"}}
	h := NewAuthMiddleware(AuthConfig{Authenticator: auth})(whoami)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "anonymous", w.Body.String())

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer good")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "u1:good", w.Body.String())

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer bad")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth(t *testing.T) {
	h := RequireAuth(whoami)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(session.WithIdentity(r.Context(), model.Identity{UserID: "u1"}, "tok"))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	w := httptest.NewRecorder()
	NewAdminMiddleware("")(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	h := NewAdminMiddleware("secret")(ok)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Admin-Key", "wrong")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r.Header.Set("X-Admin-Key", "secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	limiter := NewRateLimiter(RateLimitConfig{
		RPS:       0.001,
		Burst:     2,
		IdleTTL:   time.Minute,
		Metrics:   reg,
		Whitelist: []string{"10.0.0.9"},
	})
	h := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	call := func(addr string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1002"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000"), "buckets are per client")

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, call("10.0.0.9:1000"))
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.RateLimitedTotal))
}

func TestRecovery(t *testing.T) {
	h := NewRecovery(zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("kaboom"))
	}))

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "abc")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "abc", seen)
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "/api/v1/posts/{id}/like", NormalizeEndpoint("/api/v1/posts/7c9e6679-7425-40de-944b-e07fc1f66e52/like"))
	assert.Equal(t, "/api/v1/users/{id}/posts", NormalizeEndpoint("/api/v1/users/42/posts"))
	assert.Equal(t, "/api/v1/posts", NormalizeEndpoint("/api/v1/posts"))
}
