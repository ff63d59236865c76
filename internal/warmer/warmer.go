// Package warmer proactively populates the cache with the entries the
// storefront hits hardest: the product list, individual products, common
// search results and the category list. Warm passes are throttled and
// mutually exclusive; concurrent triggers are skipped, not queued.
package warmer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/partsflow/storefront/backend/internal/cache"
	"github.com/partsflow/storefront/backend/internal/config"
	"github.com/partsflow/storefront/backend/internal/logger"
	"github.com/partsflow/storefront/backend/internal/metrics"
	"github.com/partsflow/storefront/backend/internal/repository"
	"github.com/partsflow/storefront/backend/internal/tracing"
)

// Result summarizes one warm pass.
type Result struct {
	Skipped    bool          `json:"skipped"`
	SkipReason string        `json:"skipReason,omitempty"`
	Products   int           `json:"products"`
	Searches   int           `json:"searches"`
	Categories int           `json:"categories"`
	Duration   time.Duration `json:"duration"`
	Errors     []string      `json:"errors,omitempty"`
}

// Status is the warmer's externally visible state.
type Status struct {
	IsWarming  bool      `json:"isWarming"`
	LastWarmed time.Time `json:"lastWarmed"`
	LastResult *Result   `json:"lastResult,omitempty"`
}

// Warmer runs warm passes against the repository's cache.
type Warmer struct {
	repo *repository.Repository
	cfg  *config.Config
	log  *slog.Logger

	mu         sync.Mutex
	isWarming  bool
	lastWarmed time.Time
	lastResult *Result

	now func() time.Time
}

// New creates a warmer over the given repository.
func New(repo *repository.Repository, cfg *config.Config) *Warmer {
	return &Warmer{
		repo: repo,
		cfg:  cfg,
		log:  logger.WithComponent("warmer"),
		now:  time.Now,
	}
}

// SetClock overrides the warmer's clock. Test hook.
func (w *Warmer) SetClock(now func() time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = now
}

// Status returns a snapshot of the warmer's state.
func (w *Warmer) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{IsWarming: w.isWarming, LastWarmed: w.lastWarmed, LastResult: w.lastResult}
}

// WarmCache runs one warm pass. A pass already in progress, or one
// finished less than WarmInterval ago, is skipped; force bypasses the
// recency guard but never the in-progress one.
func (w *Warmer) WarmCache(ctx context.Context, force bool) Result {
	w.mu.Lock()
	if w.isWarming {
		w.mu.Unlock()
		metrics.WarmerSkips.WithLabelValues("in_progress").Inc()
		return Result{Skipped: true, SkipReason: "warming already in progress"}
	}
	if !force && !w.lastWarmed.IsZero() && w.now().Sub(w.lastWarmed) < w.cfg.WarmInterval {
		w.mu.Unlock()
		metrics.WarmerSkips.WithLabelValues("recently_warmed").Inc()
		return Result{Skipped: true, SkipReason: "recently warmed"}
	}
	w.isWarming = true
	w.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "warmer.WarmCache")
	defer span.End()

	start := w.now()
	res := w.warm(ctx)
	res.Duration = w.now().Sub(start)

	w.mu.Lock()
	w.isWarming = false
	w.lastWarmed = w.now()
	w.lastResult = &res
	w.mu.Unlock()

	metrics.WarmerDuration.Observe(res.Duration.Seconds())
	switch {
	case len(res.Errors) == 0:
		metrics.WarmerRuns.WithLabelValues("success").Inc()
	case res.Products > 0 || res.Categories > 0:
		metrics.WarmerRuns.WithLabelValues("partial").Inc()
	default:
		metrics.WarmerRuns.WithLabelValues("failed").Inc()
	}

	w.log.Info("cache warm pass finished",
		"products", res.Products,
		"searches", res.Searches,
		"categories", res.Categories,
		"errors", len(res.Errors),
		"duration", res.Duration,
	)
	return res
}

func (w *Warmer) warm(ctx context.Context) Result {
	var (
		res   Result
		errMu sync.Mutex
	)
	fail := func(err error) {
		errMu.Lock()
		res.Errors = append(res.Errors, err.Error())
		errMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	// Products first, then common searches derived from the same fetch. A
	// failed product fetch skips the searches; there is nothing to derive
	// them from.
	g.Go(func() error {
		products, err := w.repo.FetchActiveProducts(gctx, w.cfg.WarmProductLimit)
		if err != nil {
			fail(err)
			w.log.Warn("product warm failed", "error", err)
			return nil
		}
		c := w.repo.Cache()
		c.Set(gctx, cache.WarmProductsKey(), products, cache.Options{TTL: cache.TTLWarmProducts})

		pairs := make([]cache.Pair, 0, len(products))
		for _, p := range products {
			pairs = append(pairs, cache.Pair{Key: cache.ProductKey(p.ID), Value: &p})
		}
		c.MSet(gctx, pairs, cache.Options{TTL: cache.TTLProduct})
		res.Products = len(products)

		for _, term := range w.cfg.WarmSearchTerms {
			matched := repository.MatchProducts(products, term)
			if c.Set(gctx, cache.SearchProductsKey(term, nil), matched, cache.Options{TTL: cache.TTLWarmSearch}) {
				res.Searches++
			}
		}
		return nil
	})

	g.Go(func() error {
		cats, err := w.repo.FetchActiveCategories(gctx, w.cfg.WarmCategoryLimit)
		if err != nil {
			fail(err)
			w.log.Warn("category warm failed", "error", err)
			return nil
		}
		// An empty catalog is cached explicitly so it doesn't hammer the
		// document store, but with a short tier: a freshly populated
		// catalog must surface without waiting out the full list TTL.
		ttl := cache.TTLCategoriesList
		if len(cats) == 0 {
			ttl = cache.TTLMedium
		}
		w.repo.Cache().Set(gctx, cache.CategoriesKey(), cats, cache.Options{TTL: ttl})
		res.Categories = len(cats)
		return nil
	})

	g.Wait()
	return res
}

// Run warms on a fixed interval until ctx is cancelled. An immediate first
// pass primes the cache at startup.
func (w *Warmer) Run(ctx context.Context) {
	w.WarmCache(ctx, false)

	ticker := time.NewTicker(w.cfg.WarmLoopInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.WarmCache(ctx, false)
		}
	}
}
