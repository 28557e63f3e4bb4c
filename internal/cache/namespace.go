package cache

import (
	"strings"
	"time"
)

// Namespace is a typed view over the keys of a Store that share a prefix.
// Values written through a namespace are read back as V; a value of any
// other type found under the prefix is treated as a miss.
type Namespace[V any] struct {
	store  *Store
	prefix string
}

// NewNamespace declares the value type stored under prefix.
func NewNamespace[V any](store *Store, prefix string) Namespace[V] {
	return Namespace[V]{store: store, prefix: prefix}
}

// Key returns the store key for id.
func (n Namespace[V]) Key(id string) string {
	return n.prefix + id
}

// Set stores value under id with the default ttl.
func (n Namespace[V]) Set(id string, value V) {
	n.store.Set(n.Key(id), value)
}

// SetWithTTL stores value under id with ttl.
func (n Namespace[V]) SetWithTTL(id string, value V, ttl time.Duration) {
	n.store.SetWithTTL(n.Key(id), value, ttl)
}

// Get returns the unexpired value under id.
func (n Namespace[V]) Get(id string) (V, bool) {
	raw, ok := n.store.Get(n.Key(id))
	if !ok {
		var zero V
		return zero, false
	}
	v, ok := raw.(V)
	return v, ok
}

// GetStaleWhileRevalidate is the typed form of Store.GetStaleWhileRevalidate.
func (n Namespace[V]) GetStaleWhileRevalidate(id string) (value V, found, stale bool) {
	lookup := n.store.GetStaleWhileRevalidate(n.Key(id))
	if !lookup.Found {
		return value, false, true
	}
	v, ok := lookup.Value.(V)
	if !ok {
		return value, false, true
	}
	return v, true, lookup.Stale
}

// Has reports whether id holds an unexpired value.
func (n Namespace[V]) Has(id string) bool {
	return n.store.Has(n.Key(id))
}

// IsStale reports whether id is absent or past the freshness window.
func (n Namespace[V]) IsStale(id string) bool {
	return n.store.IsStale(n.Key(id))
}

// Invalidate removes id.
func (n Namespace[V]) Invalidate(id string) {
	n.store.Invalidate(n.Key(id))
}

// IDs returns the ids currently held under the prefix.
func (n Namespace[V]) IDs() []string {
	keys := n.store.Keys(n.prefix)
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, n.prefix))
	}
	return ids
}
