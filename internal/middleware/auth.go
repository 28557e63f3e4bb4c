package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"mnemosyne-api/internal/model"
	"mnemosyne-api/internal/session"
	"mnemosyne-api/pkg/apierror"

	"go.uber.org/zap"
)

// Authenticator resolves a bearer token to the caller behind it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.Identity, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Authenticator Authenticator
	Logger        *zap.SugaredLogger
}

// BearerToken extracts the session token from Authorization or X-Token.
func BearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
			return strings.TrimSpace(auth[7:])
		}
		return ""
	}
	return strings.TrimSpace(r.Header.Get("X-Token"))
}

// NewAuthMiddleware attaches the caller to the request context when a
// token is presented. Anonymous requests pass through; a token that
// fails validation is rejected outright.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := cfg.Authenticator.Authenticate(r.Context(), token)
			if err != nil {
				log.Debugw("rejected session token", "error", err, "path", r.URL.Path)
				writeError(w, apierror.Unauthorized("Invalid or expired token"))
				return
			}

			ctx := session.WithIdentity(r.Context(), id, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that reached it without a caller.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := session.IdentityFromContext(r.Context()); !ok {
			writeError(w, apierror.Unauthorized("Authentication required. Use the Authorization header."))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewAdminMiddleware guards admin routes with a shared key sent as
// X-Admin-Key. An empty key disables the routes.
func NewAdminMiddleware(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" {
				writeError(w, apierror.Forbidden("admin endpoints are disabled"))
				return
			}

			key := r.Header.Get("X-Admin-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
				writeError(w, apierror.Unauthorized("Invalid admin key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}
