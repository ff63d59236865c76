// Package repository provides the domain-cached accessors: every read goes
// through the cache abstraction with a per-entity TTL tier, and every
// mutation invalidates the matching entity key after the document store
// write succeeds. Derived caches (lists, search results) are not
// invalidated on mutation — the backend cannot delete by pattern — so they
// may serve stale data for up to their TTL. That staleness window is a
// deliberate consistency/latency tradeoff, not an oversight.
package repository

import (
	"log/slog"

	"github.com/partsflow/storefront/backend/internal/batchlog"
	"github.com/partsflow/storefront/backend/internal/cache"
	"github.com/partsflow/storefront/backend/internal/documentstore"
	"github.com/partsflow/storefront/backend/internal/logger"
)

// Repository wraps the document store with cache-aside accessors.
type Repository struct {
	cache  *cache.Service
	store  documentstore.Store
	events *batchlog.Logger // optional; nil disables event logging
	log    *slog.Logger
}

// New creates a repository. events may be nil.
func New(c *cache.Service, store documentstore.Store, events *batchlog.Logger) *Repository {
	return &Repository{
		cache:  c,
		store:  store,
		events: events,
		log:    logger.WithComponent("repository"),
	}
}

// Store exposes the underlying document store to collaborators that need
// uncached access (the warmer does).
func (r *Repository) Store() documentstore.Store { return r.store }

// Cache exposes the cache service.
func (r *Repository) Cache() *cache.Service { return r.cache }

func (r *Repository) logCacheOp(op, key string, hit bool) {
	if r.events != nil {
		r.events.LogCacheOperation(op, key, hit)
	}
}
