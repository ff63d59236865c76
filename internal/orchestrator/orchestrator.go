// Package orchestrator coordinates the caching subsystem: it prewarms
// entries around user activity, tracks live cache keys (the backend has no
// key scan, so enumeration happens client-side), sweeps expired and excess
// keys, and answers health queries about the whole subsystem.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/partsflow/storefront/backend/internal/cache"
	"github.com/partsflow/storefront/backend/internal/config"
	"github.com/partsflow/storefront/backend/internal/documentstore"
	"github.com/partsflow/storefront/backend/internal/logger"
	"github.com/partsflow/storefront/backend/internal/metrics"
	"github.com/partsflow/storefront/backend/internal/repository"
	"github.com/partsflow/storefront/backend/internal/tracing"
	"github.com/partsflow/storefront/backend/internal/warmer"
)

const (
	sessionCacheEntries = 10000
	sessionTTL          = 30 * time.Minute
)

type trackedKey struct {
	addedAt   time.Time
	expiresAt time.Time // zero means no expiry
}

// Orchestrator glues the cache, repository and warmer together and owns
// the client-side key registry.
type Orchestrator struct {
	cache  *cache.Service
	repo   *repository.Repository
	warmer *warmer.Warmer
	cfg    *config.Config
	log    *slog.Logger

	sessions *sessionCache

	mu   sync.Mutex
	keys map[string]trackedKey
	now  func() time.Time
}

// New creates an orchestrator and registers it as the cache's key
// observer, so every cache write and delete lands in the registry.
func New(c *cache.Service, repo *repository.Repository, w *warmer.Warmer, cfg *config.Config) (*Orchestrator, error) {
	sessions, err := newSessionCache(sessionCacheEntries, sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: session cache: %w", err)
	}
	o := &Orchestrator{
		cache:    c,
		repo:     repo,
		warmer:   w,
		cfg:      cfg,
		log:      logger.WithComponent("orchestrator"),
		sessions: sessions,
		keys:     make(map[string]trackedKey),
		now:      time.Now,
	}
	c.SetObserver(o)
	return o, nil
}

// Close releases the orchestrator's resources and detaches it from the
// cache service.
func (o *Orchestrator) Close() {
	o.cache.SetObserver(nil)
	o.sessions.Close()
}

// SetClock overrides the orchestrator's clock. Test hook.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = now
}

// ObserveSet records a cache write in the key registry.
func (o *Orchestrator) ObserveSet(fullKey string, ttl time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	tk := trackedKey{addedAt: o.now()}
	if ttl > 0 {
		tk.expiresAt = tk.addedAt.Add(ttl)
	}
	o.keys[fullKey] = tk
}

// ObserveDelete drops a cache key from the registry.
func (o *Orchestrator) ObserveDelete(fullKey string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.keys, fullKey)
}

// TrackedKeys returns the current number of registry entries, expired
// entries included.
func (o *Orchestrator) TrackedKeys() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.keys)
}

// KeysByNamespace counts unexpired registry entries per key namespace.
func (o *Orchestrator) KeysByNamespace() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	out := make(map[string]int)
	for k, tk := range o.keys {
		if !tk.expiresAt.IsZero() && now.After(tk.expiresAt) {
			continue
		}
		out[cache.Namespace(k)]++
	}
	return out
}

// recordEvent bumps a daily analytics counter in the cache backend.
// Best-effort: a degraded backend drops the count.
func (o *Orchestrator) recordEvent(ctx context.Context, name string) {
	key := cache.AnalyticsKey(name, o.now().UTC().Format("2006-01-02"))
	if o.cache.Increment(ctx, key, 1, "") == 1 {
		o.cache.Expire(ctx, key, 48*time.Hour, "")
	}
}

// PrewarmProduct loads a product and its category into the cache ahead of
// an expected read, typically when a product page is opened. Best-effort:
// failures are logged, never returned.
func (o *Orchestrator) PrewarmProduct(ctx context.Context, productID string) {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.PrewarmProduct")
	defer span.End()

	o.recordEvent(ctx, "prewarm_product")
	p, err := o.repo.GetProduct(ctx, productID)
	if err != nil {
		o.log.Warn("product prewarm failed", "product_id", productID, "error", err)
		return
	}
	if p == nil || p.CategoryID == "" {
		return
	}
	if _, err := o.repo.GetCategory(ctx, p.CategoryID); err != nil {
		o.log.Warn("category prewarm failed", "category_id", p.CategoryID, "error", err)
	}
}

// PrewarmUserOrders loads a user's order history into the cache once per
// session. Repeat calls within the same session are no-ops.
func (o *Orchestrator) PrewarmUserOrders(ctx context.Context, userID, sessionID string) {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.PrewarmUserOrders")
	defer span.End()

	marker := cache.SessionKey(userID, sessionID)
	if o.sessions.Seen(marker) {
		return
	}
	o.sessions.Mark(marker)
	o.recordEvent(ctx, "prewarm_user_orders")

	if _, err := o.repo.GetUserOrders(ctx, userID); err != nil {
		o.log.Warn("user orders prewarm failed", "user_id", userID, "error", err)
	}
}

// SmartInvalidate dispatches an invalidation by entity type. For orders,
// id may carry the owning user as "orderID/userID" so the user's history
// key is dropped too.
func (o *Orchestrator) SmartInvalidate(ctx context.Context, entityType, id string) error {
	switch entityType {
	case "product":
		o.repo.InvalidateProduct(ctx, id)
	case "category":
		o.repo.InvalidateCategory(ctx, id)
	case "order":
		orderID, userID, _ := strings.Cut(id, "/")
		o.repo.InvalidateOrder(ctx, orderID, userID)
	case "user-orders":
		o.repo.InvalidateUserOrders(ctx, id)
	case "cart":
		o.cache.Delete(ctx, cache.CartKey(id), "")
	case "pricing":
		userID, productID, ok := strings.Cut(id, "/")
		if !ok {
			return fmt.Errorf("pricing invalidation id must be userID/productID, got %q", id)
		}
		o.repo.InvalidatePricing(ctx, userID, productID)
	default:
		return fmt.Errorf("unknown entity type %q", entityType)
	}
	return nil
}

// CleanupResult summarizes one cleanup sweep.
type CleanupResult struct {
	Expired   int `json:"expired"`
	Deleted   int `json:"deleted"`
	Remaining int `json:"remaining"`
}

// Cleanup prunes expired entries from the key registry and, when the live
// key count still exceeds the configured ceiling, deletes the older half
// of the search-result keys from the backend. Search entries are the
// highest-churn, lowest-cost-to-lose namespace, which makes them the
// natural eviction target.
func (o *Orchestrator) Cleanup(ctx context.Context) CleanupResult {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.Cleanup")
	defer span.End()

	o.mu.Lock()
	now := o.now()
	var res CleanupResult
	for k, tk := range o.keys {
		if !tk.expiresAt.IsZero() && now.After(tk.expiresAt) {
			delete(o.keys, k)
			res.Expired++
		}
	}

	var searchKeys []string
	if len(o.keys) > o.cfg.CleanupMaxKeys {
		for k := range o.keys {
			if cache.Namespace(k) == "search" {
				searchKeys = append(searchKeys, k)
			}
		}
		sort.Slice(searchKeys, func(i, j int) bool {
			return o.keys[searchKeys[i]].addedAt.Before(o.keys[searchKeys[j]].addedAt)
		})
		searchKeys = searchKeys[:len(searchKeys)/2]
	}
	o.mu.Unlock()

	for _, k := range searchKeys {
		// Delete notifies ObserveDelete, which drops k from the registry.
		if o.cache.Delete(ctx, k, "") {
			res.Deleted++
		} else {
			o.ObserveDelete(k)
		}
	}
	if res.Deleted > 0 {
		metrics.CacheCleanupDeleted.Add(float64(res.Deleted))
	}

	res.Remaining = o.TrackedKeys()
	if res.Expired > 0 || res.Deleted > 0 {
		o.log.Info("cache cleanup sweep finished",
			"expired", res.Expired,
			"deleted", res.Deleted,
			"remaining", res.Remaining,
		)
	}
	return res
}

// HealthStatus is the orchestrator's view of the caching subsystem.
type HealthStatus struct {
	Healthy         bool           `json:"healthy"`
	CacheEnabled    bool           `json:"cacheEnabled"`
	BreakerState    string         `json:"breakerState"`
	TrackedKeys     int            `json:"trackedKeys"`
	KeysByNamespace map[string]int `json:"keysByNamespace"`
	DocstoreOK      bool           `json:"docstoreOk"`
	Warmer          warmer.Status  `json:"warmer"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

// HealthCheck probes the subsystem and derives operator recommendations.
func (o *Orchestrator) HealthCheck(ctx context.Context) HealthStatus {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.HealthCheck")
	defer span.End()

	st := HealthStatus{
		CacheEnabled:    o.cache.Enabled(),
		BreakerState:    o.cache.BreakerState().String(),
		TrackedKeys:     o.TrackedKeys(),
		KeysByNamespace: o.KeysByNamespace(),
		Warmer:          o.warmer.Status(),
	}

	if _, err := o.repo.Store().Count(ctx, documentstore.CollectionProducts); err != nil {
		st.DocstoreOK = false
		st.Recommendations = append(st.Recommendations, "document store unreachable; check DATABASE_URL and connectivity")
	} else {
		st.DocstoreOK = true
	}

	if !st.CacheEnabled {
		st.Recommendations = append(st.Recommendations, "cache backend circuit is open; reads fall through to the document store")
	}
	if st.TrackedKeys > o.cfg.CleanupMaxKeys {
		st.Recommendations = append(st.Recommendations, fmt.Sprintf("tracked key count %d exceeds ceiling %d; trigger a cleanup sweep", st.TrackedKeys, o.cfg.CleanupMaxKeys))
	}
	if st.Warmer.LastWarmed.IsZero() {
		st.Recommendations = append(st.Recommendations, "cache has never been warmed; trigger a warm pass")
	}

	st.Healthy = st.DocstoreOK && st.CacheEnabled
	return st
}

// Run sweeps the registry on a fixed interval until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Cleanup(ctx)
		}
	}
}
