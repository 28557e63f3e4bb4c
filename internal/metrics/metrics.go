package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all Prometheus metrics for the API.
type Registry struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	// Cache Metrics
	CacheLookupsTotal *prometheus.CounterVec
	CacheEvictions    *prometheus.CounterVec
	CacheEntries      prometheus.Gauge

	// Data service Metrics
	RevalidationsTotal *prometheus.CounterVec
	RemoteErrorsTotal  *prometheus.CounterVec

	// RateLimitedTotal counts requests rejected with 429.
	RateLimitedTotal prometheus.Counter
}

// NewRegistry registers every metric with reg. Pass
// prometheus.DefaultRegisterer in production and prometheus.NewRegistry()
// in tests.
func NewRegistry(reg prometheus.Registerer) *Registry {
	f := promauto.With(reg)

	return &Registry{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mnemosyne_http_requests_total",
				Help: "Total HTTP requests processed by endpoint, method, and status code",
			},
			[]string{"endpoint", "method", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mnemosyne_http_request_duration_seconds",
				Help:    "HTTP request latency distribution in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "method"},
		),
		HTTPRequestsInFlight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mnemosyne_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"endpoint"},
		),

		CacheLookupsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mnemosyne_cache_lookups_total",
				Help: "Cache lookups by key namespace and result (hit, stale, miss)",
			},
			[]string{"namespace", "result"},
		),
		CacheEvictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mnemosyne_cache_evictions_total",
				Help: "Entries lazily evicted on read after their TTL elapsed",
			},
			[]string{"namespace"},
		),
		CacheEntries: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "mnemosyne_cache_entries",
				Help: "Entries currently held by the cache, including expired ones not yet read",
			},
		),

		RevalidationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mnemosyne_revalidations_total",
				Help: "Background refreshes by namespace and outcome",
			},
			[]string{"namespace", "outcome"},
		),
		RemoteErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mnemosyne_remote_errors_total",
				Help: "Failed calls to the backing store by operation",
			},
			[]string{"operation"},
		),

		RateLimitedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "mnemosyne_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
		),
	}
}

// Namespace maps a cache key to its bounded label value.
func Namespace(key string) string {
	switch {
	case strings.HasPrefix(key, "profile_"):
		return "profile"
	case strings.HasPrefix(key, "user_posts_"):
		return "user_posts"
	case key == "all_posts":
		return "all_posts"
	default:
		return "other"
	}
}

// CacheObserver feeds cache events into the registry.
type CacheObserver struct {
	reg *Registry
}

// NewCacheObserver returns an observer bound to reg.
func NewCacheObserver(reg *Registry) *CacheObserver {
	return &CacheObserver{reg: reg}
}

func (o *CacheObserver) Hit(key string) {
	o.reg.CacheLookupsTotal.WithLabelValues(Namespace(key), "hit").Inc()
}

func (o *CacheObserver) StaleHit(key string) {
	o.reg.CacheLookupsTotal.WithLabelValues(Namespace(key), "stale").Inc()
}

func (o *CacheObserver) Miss(key string) {
	o.reg.CacheLookupsTotal.WithLabelValues(Namespace(key), "miss").Inc()
}

func (o *CacheObserver) Expired(key string) {
	o.reg.CacheEvictions.WithLabelValues(Namespace(key)).Inc()
}
