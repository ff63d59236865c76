// Package cache provides the generic read-through cache abstraction over
// the remote key-value backend. Values are stored as UTF-8 JSON strings.
// Every operation degrades to cache-miss behavior on backend failure; the
// document store remains the source of truth, so no error ever propagates
// to callers from this package.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/partsflow/storefront/backend/internal/circuitbreaker"
	"github.com/partsflow/storefront/backend/internal/kvstore"
	"github.com/partsflow/storefront/backend/internal/logger"
	"github.com/partsflow/storefront/backend/internal/metrics"
)

// Options controls a single cache operation.
type Options struct {
	// TTL expires the entry after this duration; zero stores without expiry.
	TTL time.Duration
	// Prefix is prepended to the key as "prefix:key" when non-empty.
	Prefix string
}

// KeyObserver is notified about writes and deletes so an external component
// (the orchestrator) can track live keys; the backend itself has no scan.
type KeyObserver interface {
	ObserveSet(fullKey string, ttl time.Duration)
	ObserveDelete(fullKey string)
}

// Service is the cache abstraction. Its health gate is a circuit breaker:
// a failed backend ping opens the breaker and all operations short-circuit
// to their miss/failure values; after the breaker timeout a half-open probe
// re-enables caching if the backend has recovered.
type Service struct {
	store    kvstore.Store
	breaker  *circuitbreaker.CircuitBreaker
	log      *slog.Logger
	observer KeyObserver
	obsMu    sync.RWMutex
}

// New creates a cache service over the given backend store.
func New(store kvstore.Store, breaker *circuitbreaker.CircuitBreaker) *Service {
	return &Service{
		store:   store,
		breaker: breaker,
		log:     logger.WithComponent("cache"),
	}
}

// SetObserver registers the key observer. Passing nil detaches it.
func (s *Service) SetObserver(o KeyObserver) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observer = o
}

func (s *Service) notifySet(fullKey string, ttl time.Duration) {
	s.obsMu.RLock()
	o := s.observer
	s.obsMu.RUnlock()
	if o != nil {
		o.ObserveSet(fullKey, ttl)
	}
}

func (s *Service) notifyDelete(fullKey string) {
	s.obsMu.RLock()
	o := s.observer
	s.obsMu.RUnlock()
	if o != nil {
		o.ObserveDelete(fullKey)
	}
}

// Enabled reports whether the health gate currently allows cache traffic.
func (s *Service) Enabled() bool {
	return s.breaker.GetState() != circuitbreaker.StateOpen
}

// BreakerState exposes the health gate's current breaker state.
func (s *Service) BreakerState() circuitbreaker.State {
	return s.breaker.GetState()
}

// checkHealth pings the backend through the breaker. When the breaker is
// open the ping is skipped entirely and the operation short-circuits.
func (s *Service) checkHealth(ctx context.Context) bool {
	if !s.breaker.Allow() {
		return false
	}
	if err := s.store.Ping(ctx); err != nil {
		s.breaker.RecordFailure()
		s.log.Warn("cache backend ping failed, degrading to miss behavior", "error", err)
		return false
	}
	s.breaker.RecordSuccess()
	return true
}

func fullKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}

// Get retrieves and JSON-decodes the value at key into T. It returns the
// zero value and false on a miss, on any backend error, or when the stored
// value cannot be decoded into T — with one exception: when T is string and
// the raw value is not valid JSON, the raw value is returned verbatim
// (defensive deserialization; primitives were historically stored raw).
func Get[T any](ctx context.Context, s *Service, key string, opts Options) (T, bool) {
	var zero T
	fk := fullKey(opts.Prefix, key)
	ns := Namespace(key)

	if !s.checkHealth(ctx) {
		metrics.CacheMisses.WithLabelValues(ns).Inc()
		return zero, false
	}

	raw, ok, err := s.store.Get(ctx, fk)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("get").Inc()
		metrics.CacheMisses.WithLabelValues(ns).Inc()
		return zero, false
	}
	if !ok {
		metrics.CacheMisses.WithLabelValues(ns).Inc()
		return zero, false
	}

	metrics.CacheHits.WithLabelValues(ns).Inc()
	v, ok := decode[T](raw)
	if !ok {
		return zero, false
	}
	return v, true
}

func decode[T any](raw string) (T, bool) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		// Not JSON. A string target still gets the raw value.
		if rv, ok := any(raw).(T); ok {
			return rv, true
		}
		var zero T
		return zero, false
	}
	return v, true
}

// Set JSON-encodes value and stores it at key, with SETEX when opts.TTL is
// positive. Returns true on success; all failures are swallowed to false.
func (s *Service) Set(ctx context.Context, key string, value any, opts Options) bool {
	if !s.checkHealth(ctx) {
		return false
	}
	payload, err := json.Marshal(value)
	if err != nil {
		s.log.Warn("cache set skipped, value not serializable", "key", key, "error", err)
		return false
	}
	fk := fullKey(opts.Prefix, key)
	if opts.TTL > 0 {
		err = s.store.SetEx(ctx, fk, string(payload), opts.TTL)
	} else {
		err = s.store.Set(ctx, fk, string(payload))
	}
	if err != nil {
		metrics.CacheErrors.WithLabelValues("set").Inc()
		return false
	}
	s.notifySet(fk, opts.TTL)
	return true
}

// GetOrSet implements cache-aside: a hit returns the cached value without
// invoking fetcher; a miss invokes fetcher exactly once, caches a non-nil
// result, and returns it regardless of caching success. With the backend
// down the fetcher is called directly, so functional behavior survives a
// fully degraded cache. Concurrent callers racing on the same key each run
// their own fetcher; there is deliberately no in-flight de-duplication.
func GetOrSet[T any](ctx context.Context, s *Service, key string, fetcher func(context.Context) (T, error), opts Options) (T, error) {
	if v, ok := Get[T](ctx, s, key, opts); ok {
		return v, nil
	}

	v, err := fetcher(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if !isNil(v) {
		s.Set(ctx, key, v, opts)
	}
	return v, nil
}

// isNil reports whether v is a nil pointer/map/slice/interface. Empty
// slices are not nil: an empty category list must still be cached.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

// Delete removes the entry at key. Returns true when a key was removed.
func (s *Service) Delete(ctx context.Context, key string, prefix string) bool {
	if !s.checkHealth(ctx) {
		return false
	}
	fk := fullKey(prefix, key)
	n, err := s.store.Del(ctx, fk)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("delete").Inc()
		return false
	}
	s.notifyDelete(fk)
	return n > 0
}

// Exists reports whether key is present. False on any failure.
func (s *Service) Exists(ctx context.Context, key string, prefix string) bool {
	if !s.checkHealth(ctx) {
		return false
	}
	ok, err := s.store.Exists(ctx, fullKey(prefix, key))
	if err != nil {
		metrics.CacheErrors.WithLabelValues("exists").Inc()
		return false
	}
	return ok
}

// Increment adds delta to the counter at key and returns the new value,
// or 0 on any failure.
func (s *Service) Increment(ctx context.Context, key string, delta int64, prefix string) int64 {
	if !s.checkHealth(ctx) {
		return 0
	}
	n, err := s.store.IncrBy(ctx, fullKey(prefix, key), delta)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("increment").Inc()
		return 0
	}
	return n
}

// Expire sets a ttl on an existing key. False on any failure.
func (s *Service) Expire(ctx context.Context, key string, ttl time.Duration, prefix string) bool {
	if !s.checkHealth(ctx) {
		return false
	}
	fk := fullKey(prefix, key)
	ok, err := s.store.Expire(ctx, fk, ttl)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("expire").Inc()
		return false
	}
	if ok {
		s.notifySet(fk, ttl)
	}
	return ok
}

// MGet fetches many keys in one backend call, decoding each value into T.
// Absent keys and values that fail to decode yield nil (best-effort skip).
func MGet[T any](ctx context.Context, s *Service, keys []string, prefix string) []*T {
	out := make([]*T, len(keys))
	if len(keys) == 0 || !s.checkHealth(ctx) {
		return out
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = fullKey(prefix, k)
	}
	values, err := s.store.MGet(ctx, full...)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("mget").Inc()
		return out
	}
	for i, raw := range values {
		if raw == nil {
			continue
		}
		if v, ok := decode[T](*raw); ok {
			out[i] = &v
		}
	}
	return out
}

// Pair is one key/value for MSet.
type Pair struct {
	Key   string
	Value any
}

// MSet stores many pairs concurrently. The backend has no multi-set
// command, so this is per-key and best-effort, not atomic. Returns the
// number of pairs stored.
func (s *Service) MSet(ctx context.Context, pairs []Pair, opts Options) int {
	if len(pairs) == 0 || !s.checkHealth(ctx) {
		return 0
	}
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		count int
	)
	for _, p := range pairs {
		wg.Add(1)
		go func(p Pair) {
			defer wg.Done()
			payload, err := json.Marshal(p.Value)
			if err != nil {
				return
			}
			fk := fullKey(opts.Prefix, p.Key)
			if opts.TTL > 0 {
				err = s.store.SetEx(ctx, fk, string(payload), opts.TTL)
			} else {
				err = s.store.Set(ctx, fk, string(payload))
			}
			if err != nil {
				metrics.CacheErrors.WithLabelValues("mset").Inc()
				return
			}
			s.notifySet(fk, opts.TTL)
			mu.Lock()
			count++
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return count
}

// DeletePattern would remove all keys matching a glob pattern, but the
// backend protocol has no server-side key scan, so there is nothing to
// enumerate. It is a documented no-op: callers needing pattern
// invalidation must track and delete explicit key sets (the orchestrator's
// cleanup sweep does exactly that). Returns 0 always.
func (s *Service) DeletePattern(ctx context.Context, pattern string) int {
	s.log.Warn("DeletePattern is unsupported by the cache backend protocol; no keys deleted", "pattern", pattern)
	return 0
}
