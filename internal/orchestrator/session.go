package orchestrator

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// sessionCache is a size-bounded in-process cache of session markers, used
// to run per-session work (user order prewarming) at most once per session
// without a backend round trip.
type sessionCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

type sessionItem struct {
	expiresAt time.Time
}

func newSessionCache(maxEntries int64, ttl time.Duration) (*sessionCache, error) {
	numCounters := maxEntries * 10
	if numCounters < 1000 {
		numCounters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &sessionCache{cache: c, ttl: ttl}, nil
}

// Seen reports whether the session marker is present and unexpired.
func (s *sessionCache) Seen(key string) bool {
	val, found := s.cache.Get(key)
	if !found {
		return false
	}
	item, ok := val.(*sessionItem)
	if !ok || time.Now().After(item.expiresAt) {
		s.cache.Del(key)
		return false
	}
	return true
}

// Mark records the session marker.
func (s *sessionCache) Mark(key string) {
	_ = s.cache.Set(key, &sessionItem{expiresAt: time.Now().Add(s.ttl)}, 1)
	// Wait for the value to pass through ristretto's buffers so an
	// immediately following Seen observes it.
	s.cache.Wait()
}

func (s *sessionCache) Close() {
	s.cache.Close()
}
