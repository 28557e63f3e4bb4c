package cache

import "time"

// Default lifetimes applied when the caller does not supply one.
const (
	// DefaultTTL is how long an entry stays usable after it is written.
	DefaultTTL = 5 * time.Minute

	// DefaultStaleWindow is how long an entry is considered fresh.
	// Past this point reads still succeed but callers should refresh.
	DefaultStaleWindow = 30 * time.Second
)

// Lookup is the result of a stale-while-revalidate read.
type Lookup struct {
	Value any
	Found bool
	Stale bool
}

// Observer receives cache events. Implementations must be safe for
// concurrent use and must not call back into the store.
type Observer interface {
	Hit(key string)
	Miss(key string)
	StaleHit(key string)
	Expired(key string)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) Hit(string)      {}
func (NopObserver) Miss(string)     {}
func (NopObserver) StaleHit(string) {}
func (NopObserver) Expired(string)  {}
