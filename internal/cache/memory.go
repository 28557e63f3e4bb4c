package cache

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// cacheEntry represents a cached value and when it was written.
type cacheEntry struct {
	value    any
	storedAt time.Time
	ttl      time.Duration
}

// age returns how long ago the entry was written.
func (e *cacheEntry) age(now time.Time) time.Duration {
	return now.Sub(e.storedAt)
}

// isExpired checks if the entry has outlived its ttl.
func (e *cacheEntry) isExpired(now time.Time) bool {
	return e.age(now) > e.ttl
}

// isStale checks if the entry is past its freshness window. The window
// never exceeds the entry's ttl, so an entry cannot expire while fresh.
func (e *cacheEntry) isStale(now time.Time, staleWindow time.Duration) bool {
	if e.ttl < staleWindow {
		staleWindow = e.ttl
	}
	return e.age(now) > staleWindow
}

// Store is an in-memory key/value store with per-entry expiry and a
// stale-while-revalidate read. Expired entries are removed lazily when
// they are next read; there is no background sweep.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry

	defaultTTL  time.Duration
	staleWindow time.Duration
	clock       Clock
	observer    Observer
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultTTL sets the ttl used by Set.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// WithStaleWindow sets the freshness window.
func WithStaleWindow(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.staleWindow = d
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithObserver attaches an event observer (metrics).
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries:     make(map[string]*cacheEntry),
		defaultTTL:  DefaultTTL,
		staleWindow: DefaultStaleWindow,
		clock:       SystemClock{},
		observer:    NopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set stores a value with the default ttl, replacing any existing entry.
func (s *Store) Set(key string, value any) {
	s.SetWithTTL(key, value, 0)
}

// SetWithTTL stores a value with the given ttl. A ttl <= 0 means the
// default ttl.
func (s *Store) SetWithTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &cacheEntry{
		value:    value,
		storedAt: s.clock.Now(),
		ttl:      ttl,
	}
}

// Get retrieves a value that has not expired. An expired entry is
// deleted before the miss is reported.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveEntry(key)
	if !ok {
		s.observer.Miss(key)
		return nil, false
	}
	s.observer.Hit(key)
	return entry.value, true
}

// Has reports whether key holds an unexpired value, with the same lazy
// eviction as Get.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.liveEntry(key)
	return ok
}

// IsStale reports whether key is absent or past the freshness window.
// It never evicts.
func (s *Store) IsStale(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return true
	}
	now := s.clock.Now()
	return entry.isExpired(now) || entry.isStale(now, s.staleWindow)
}

// GetStaleWhileRevalidate returns the value together with whether it has
// crossed the freshness window. Absent and expired keys both report
// Found=false, Stale=true; an expired entry is evicted.
func (s *Store) GetStaleWhileRevalidate(key string) Lookup {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveEntry(key)
	if !ok {
		s.observer.Miss(key)
		return Lookup{Stale: true}
	}

	stale := entry.isStale(s.clock.Now(), s.staleWindow)
	if stale {
		s.observer.StaleHit(key)
	} else {
		s.observer.Hit(key)
	}
	return Lookup{Value: entry.value, Found: true, Stale: stale}
}

// Invalidate removes key. Absent keys are ignored.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*cacheEntry)
}

// Keys returns the sorted keys starting with prefix, expired entries
// included. Callers read through Get, which handles expiry.
func (s *Store) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries currently held, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats describes the store configuration and occupancy.
type Stats struct {
	Entries     int           `json:"entries"`
	Stale       int           `json:"stale"`
	DefaultTTL  time.Duration `json:"default_ttl"`
	StaleWindow time.Duration `json:"stale_window"`
}

// Stats returns a point-in-time snapshot. It does not evict.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	stats := Stats{
		Entries:     len(s.entries),
		DefaultTTL:  s.defaultTTL,
		StaleWindow: s.staleWindow,
	}
	for _, entry := range s.entries {
		if entry.isExpired(now) || entry.isStale(now, s.staleWindow) {
			stats.Stale++
		}
	}
	return stats
}

// liveEntry returns the entry for key unless it is missing or expired.
// Expired entries are deleted. Caller must hold the write lock.
func (s *Store) liveEntry(key string) (*cacheEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if entry.isExpired(s.clock.Now()) {
		delete(s.entries, key)
		s.observer.Expired(key)
		return nil, false
	}
	return entry, true
}
