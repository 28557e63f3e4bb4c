package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"mnemosyne-api/internal/metrics"
	"mnemosyne-api/pkg/apierror"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds per-client token bucket settings.
type RateLimitConfig struct {
	RPS     float64
	Burst   int
	IdleTTL time.Duration
	Metrics *metrics.Registry

	// Whitelist is a set of client IPs that are never limited.
	Whitelist []string
}

// RateLimiter hands out one token bucket per client IP. Buckets that see
// no traffic for IdleTTL are dropped.
type RateLimiter struct {
	cfg       RateLimitConfig
	mu        sync.Mutex
	limiters  *gocache.Cache
	whitelist map[string]bool
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	whitelist := make(map[string]bool, len(cfg.Whitelist))
	for _, ip := range cfg.Whitelist {
		whitelist[ip] = true
	}

	return &RateLimiter{
		cfg:       cfg,
		limiters:  gocache.New(cfg.IdleTTL, cfg.IdleTTL),
		whitelist: whitelist,
	}
}

func (l *RateLimiter) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.limiters.Get(ip); ok {
		lim := v.(*rate.Limiter)
		// Touch to push the idle expiry out.
		l.limiters.SetDefault(ip, lim)
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)
	l.limiters.SetDefault(ip, lim)
	return lim
}

// Handler is the middleware.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if l.whitelist[ip] {
			next.ServeHTTP(w, r)
			return
		}

		if !l.limiter(ip).Allow() {
			if l.cfg.Metrics != nil {
				l.cfg.Metrics.RateLimitedTotal.Inc()
			}
			w.Header().Set("Retry-After", "1")
			writeError(w, apierror.TooManyRequests("Too many requests"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
