package middleware

import (
	"net/http"
	"time"

	"mnemosyne-api/internal/logging"
	"mnemosyne-api/internal/session"

	"go.uber.org/zap"
)

// NewLogging returns a middleware that writes one access log line per request.
func NewLogging(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			var userID string
			if id, ok := session.IdentityFromContext(r.Context()); ok {
				userID = id.UserID
			}

			reqLog := logging.WithRequest(log, GetRequestID(r.Context()), userID, routePattern(r))
			fields := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"status_code", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
			}

			switch {
			case wrapped.statusCode >= 500:
				reqLog.Errorw("request failed", fields...)
			case wrapped.statusCode >= 400:
				reqLog.Warnw("request rejected", fields...)
			default:
				reqLog.Infow("request completed", fields...)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.written = true
	return rw.ResponseWriter.Write(b)
}
