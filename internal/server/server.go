// Package server assembles the caching subsystem: document store, cache
// backend, repository, batch logger, warmer and orchestrator, plus the
// background loops that keep them running.
package server

import (
	"context"
	"io"
	"net/http"

	"github.com/partsflow/storefront/backend/internal/api"
	"github.com/partsflow/storefront/backend/internal/batchlog"
	"github.com/partsflow/storefront/backend/internal/cache"
	"github.com/partsflow/storefront/backend/internal/circuitbreaker"
	"github.com/partsflow/storefront/backend/internal/config"
	"github.com/partsflow/storefront/backend/internal/documentstore"
	"github.com/partsflow/storefront/backend/internal/kvstore"
	"github.com/partsflow/storefront/backend/internal/logger"
	"github.com/partsflow/storefront/backend/internal/metrics"
	"github.com/partsflow/storefront/backend/internal/orchestrator"
	"github.com/partsflow/storefront/backend/internal/repository"
	"github.com/partsflow/storefront/backend/internal/warmer"
)

// Server owns the subsystem's services and background loops.
type Server struct {
	cfg *config.Config

	docstore  documentstore.Store
	cache     *cache.Service
	repo      *repository.Repository
	events    *batchlog.Logger
	warmer    *warmer.Warmer
	orch      *orchestrator.Orchestrator
	collector *metrics.Collector
	router    http.Handler
}

// New builds the full service graph. Without DATABASE_URL the document
// store runs in-memory, and without KV_REST_API_URL the cache backend
// does too; both fallbacks are meant for local development only.
func New(cfg *config.Config) (*Server, error) {
	log := logger.WithComponent("server")

	var docs documentstore.Store
	if cfg.DatabaseURL != "" {
		pg, err := documentstore.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		docs = pg
	} else {
		log.Warn("DATABASE_URL not set, using in-memory document store")
		docs = documentstore.NewMemory()
	}

	var kv kvstore.Store
	if cfg.KVRestURL != "" {
		kv = kvstore.NewClient(cfg)
	} else {
		log.Warn("KV_REST_API_URL not set, using in-memory cache backend")
		kv = kvstore.NewMemory()
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:             "cache-backend",
		FailureThreshold: cfg.HealthFailureThreshold,
		SuccessThreshold: cfg.HealthSuccessThreshold,
		Timeout:          cfg.HealthRetryTimeout,
	})

	c := cache.New(kv, breaker)
	events := batchlog.New(docs, cfg)
	repo := repository.New(c, docs, events)
	w := warmer.New(repo, cfg)
	orch, err := orchestrator.New(c, repo, w, cfg)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:       cfg,
		docstore:  docs,
		cache:     c,
		repo:      repo,
		events:    events,
		warmer:    w,
		orch:      orch,
		collector: metrics.NewCollector(orch, 0),
		router:    api.NewRouter(orch, w),
	}, nil
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler { return s.router }

// Repository returns the cached repository, for embedding callers.
func (s *Server) Repository() *repository.Repository { return s.repo }

// Events returns the batch logger.
func (s *Server) Events() *batchlog.Logger { return s.events }

// Start launches the background loops. They all stop when ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) {
	go s.events.Run(ctx)
	go s.warmer.Run(ctx)
	go s.orch.Run(ctx)
	go s.collector.Run(ctx)
}

// Shutdown flushes buffered log entries and releases resources.
func (s *Server) Shutdown(ctx context.Context) {
	s.events.ForceFlush(ctx)
	s.orch.Close()
	if closer, ok := s.docstore.(io.Closer); ok {
		_ = closer.Close()
	}
}
