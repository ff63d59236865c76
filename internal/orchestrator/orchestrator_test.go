package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/partsflow/storefront/backend/internal/cache"
	"github.com/partsflow/storefront/backend/internal/circuitbreaker"
	"github.com/partsflow/storefront/backend/internal/config"
	"github.com/partsflow/storefront/backend/internal/documentstore"
	"github.com/partsflow/storefront/backend/internal/kvstore"
	"github.com/partsflow/storefront/backend/internal/repository"
	"github.com/partsflow/storefront/backend/internal/warmer"
)

func newTestOrchestrator(t *testing.T, cfg *config.Config) (*Orchestrator, *repository.Repository, *documentstore.Memory, *kvstore.Memory) {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{
			WarmInterval:      5 * time.Minute,
			WarmProductLimit:  200,
			WarmCategoryLimit: 50,
			WarmSearchTerms:   []string{"brake"},
			CleanupMaxKeys:    10000,
			CleanupInterval:   10 * time.Minute,
		}
	}
	docs := documentstore.NewMemory()
	kv := kvstore.NewMemory()
	cb := circuitbreaker.New(circuitbreaker.Config{
		Name:             "orch-test-" + t.Name(),
		FailureThreshold: 1,
		Timeout:          time.Hour,
	})
	c := cache.New(kv, cb)
	repo := repository.New(c, docs, nil)
	o, err := New(c, repo, warmer.New(repo, cfg), cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Close)
	return o, repo, docs, kv
}

func seedProduct(t *testing.T, docs *documentstore.Memory, id, name, categoryID string) {
	t.Helper()
	doc := documentstore.Document{"id": id, "name": name, "active": true}
	if categoryID != "" {
		doc["categoryId"] = categoryID
	}
	if err := docs.Insert(context.Background(), documentstore.CollectionProducts, id, doc); err != nil {
		t.Fatal(err)
	}
}

func TestObserveSet_TracksKeys(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t, nil)
	ctx := context.Background()

	o.cache.Set(ctx, "product:P-1", map[string]any{"id": "P-1"}, cache.Options{TTL: time.Minute})
	o.cache.Set(ctx, "search:products:oil", []string{}, cache.Options{TTL: time.Minute})

	if got := o.TrackedKeys(); got != 2 {
		t.Fatalf("tracked %d keys, want 2", got)
	}
	byNS := o.KeysByNamespace()
	if byNS["product"] != 1 || byNS["search"] != 1 {
		t.Errorf("namespace counts: %v", byNS)
	}

	o.cache.Delete(ctx, "product:P-1", "")
	if got := o.TrackedKeys(); got != 1 {
		t.Errorf("tracked %d keys after delete, want 1", got)
	}
}

func TestPrewarmProduct_WarmsProductAndCategory(t *testing.T) {
	o, _, docs, kv := newTestOrchestrator(t, nil)
	ctx := context.Background()

	seedProduct(t, docs, "P-1", "Brake Pad", "C-1")
	catDoc := documentstore.Document{"id": "C-1", "name": "Brakes", "active": true}
	if err := docs.Insert(ctx, documentstore.CollectionCategories, "C-1", catDoc); err != nil {
		t.Fatal(err)
	}

	o.PrewarmProduct(ctx, "P-1")

	for _, want := range []string{cache.ProductKey("P-1"), cache.CategoryKey("C-1")} {
		found := false
		for _, k := range kv.Keys() {
			if k == want {
				found = true
			}
		}
		if !found {
			t.Errorf("key %q not prewarmed; have %v", want, kv.Keys())
		}
	}
}

func TestPrewarmProduct_MissingProductIsNoop(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t, nil)
	o.PrewarmProduct(context.Background(), "no-such")
	// Nothing to assert beyond "did not panic"; the miss is logged only.
}

func TestPrewarmUserOrders_OncePerSession(t *testing.T) {
	o, _, docs, _ := newTestOrchestrator(t, nil)
	ctx := context.Background()

	orderDoc := documentstore.Document{"id": "O-1", "userId": "U-1", "status": "pending"}
	if err := docs.Insert(ctx, documentstore.CollectionOrders, "O-1", orderDoc); err != nil {
		t.Fatal(err)
	}

	o.PrewarmUserOrders(ctx, "U-1", "S-1")
	readsAfterFirst := docs.Reads(documentstore.CollectionOrders)
	if readsAfterFirst == 0 {
		t.Fatal("first prewarm did not touch the document store")
	}

	// Same session: gated, no further store reads.
	o.PrewarmUserOrders(ctx, "U-1", "S-1")
	if got := docs.Reads(documentstore.CollectionOrders); got != readsAfterFirst {
		t.Errorf("repeat prewarm hit the store: %d reads, want %d", got, readsAfterFirst)
	}
}

func TestSmartInvalidate(t *testing.T) {
	o, _, docs, kv := newTestOrchestrator(t, nil)
	ctx := context.Background()

	seedProduct(t, docs, "P-1", "Brake Pad", "")
	if _, err := o.repo.GetProduct(ctx, "P-1"); err != nil {
		t.Fatal(err)
	}
	if len(kv.Keys()) == 0 {
		t.Fatal("product read did not populate the cache")
	}

	if err := o.SmartInvalidate(ctx, "product", "P-1"); err != nil {
		t.Fatal(err)
	}
	for _, k := range kv.Keys() {
		if k == cache.ProductKey("P-1") {
			t.Error("product key survived invalidation")
		}
	}

	if err := o.SmartInvalidate(ctx, "pricing", "U-1/P-1"); err != nil {
		t.Errorf("pricing invalidation: %v", err)
	}
	if err := o.SmartInvalidate(ctx, "pricing", "missing-slash"); err == nil {
		t.Error("malformed pricing id accepted")
	}
	if err := o.SmartInvalidate(ctx, "widget", "X"); err == nil {
		t.Error("unknown entity type accepted")
	}
}

func TestCleanup_PrunesExpiredRegistryEntries(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t, nil)
	ctx := context.Background()

	base := time.Now()
	o.SetClock(func() time.Time { return base })
	o.cache.Set(ctx, "product:P-1", "x", cache.Options{TTL: time.Minute})
	o.cache.Set(ctx, "product:P-2", "x", cache.Options{TTL: time.Hour})

	o.SetClock(func() time.Time { return base.Add(10 * time.Minute) })
	res := o.Cleanup(ctx)
	if res.Expired != 1 {
		t.Errorf("expired %d registry entries, want 1", res.Expired)
	}
	if res.Remaining != 1 {
		t.Errorf("%d entries remaining, want 1", res.Remaining)
	}
}

func TestCleanup_TrimsOlderSearchKeysOverCeiling(t *testing.T) {
	cfg := &config.Config{
		WarmInterval:    5 * time.Minute,
		WarmSearchTerms: []string{"brake"},
		CleanupMaxKeys:  10,
		CleanupInterval: 10 * time.Minute,
	}
	o, _, _, kv := newTestOrchestrator(t, cfg)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 20; i++ {
		o.SetClock(func() time.Time { return base.Add(time.Duration(i) * time.Second) })
		o.cache.Set(ctx, fmt.Sprintf("search:products:term%02d", i), "x", cache.Options{TTL: time.Hour})
	}
	o.SetClock(func() time.Time { return base.Add(time.Minute) })

	res := o.Cleanup(ctx)
	if res.Deleted != 10 {
		t.Fatalf("deleted %d keys, want 10 (older half)", res.Deleted)
	}
	if res.Remaining != 10 {
		t.Errorf("%d entries remaining, want 10", res.Remaining)
	}

	// The survivors must be the newer half.
	for _, k := range kv.Keys() {
		var i int
		if _, err := fmt.Sscanf(k, "search:products:term%02d", &i); err != nil {
			t.Fatalf("unexpected key %q", k)
		}
		if i < 10 {
			t.Errorf("older key %q survived the trim", k)
		}
	}
}

func TestCleanup_UnderCeilingDeletesNothing(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t, nil)
	ctx := context.Background()

	o.cache.Set(ctx, "search:products:oil", "x", cache.Options{TTL: time.Hour})
	if res := o.Cleanup(ctx); res.Deleted != 0 {
		t.Errorf("deleted %d keys under the ceiling", res.Deleted)
	}
}

func TestHealthCheck(t *testing.T) {
	o, _, _, kv := newTestOrchestrator(t, nil)
	ctx := context.Background()

	st := o.HealthCheck(ctx)
	if !st.DocstoreOK {
		t.Error("document store should be healthy")
	}
	if !st.CacheEnabled {
		t.Error("cache should be enabled")
	}
	if !st.Healthy {
		t.Error("subsystem should be healthy")
	}
	// Never warmed: that recommendation must be present.
	if len(st.Recommendations) == 0 {
		t.Error("expected a never-warmed recommendation")
	}

	// Knock the backend over; the breaker opens on the next ping and the
	// health report degrades.
	kv.FailBackend(true)
	o.cache.Exists(ctx, "probe", "")
	st = o.HealthCheck(ctx)
	if st.CacheEnabled {
		t.Error("cache should be disabled with the breaker open")
	}
	if st.Healthy {
		t.Error("subsystem should be unhealthy with the breaker open")
	}
}
