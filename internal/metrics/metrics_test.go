package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNamespace(t *testing.T) {
	tests := map[string]string{
		"profile_42":    "profile",
		"user_posts_u1": "user_posts",
		"all_posts":     "all_posts",
		"something":     "other",
	}
	for key, want := range tests {
		assert.Equal(t, want, Namespace(key), key)
	}
}

func TestCacheObserver_CountsByNamespace(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())
	obs := NewCacheObserver(reg)

	obs.Hit("profile_1")
	obs.Hit("profile_2")
	obs.StaleHit("all_posts")
	obs.Miss("user_posts_u1")
	obs.Expired("profile_1")

	assert.Equal(t, 2.0, testutil.ToFloat64(reg.CacheLookupsTotal.WithLabelValues("profile", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.CacheLookupsTotal.WithLabelValues("all_posts", "stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.CacheLookupsTotal.WithLabelValues("user_posts", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.CacheEvictions.WithLabelValues("profile")))
}
