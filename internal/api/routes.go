// Package api wires the HTTP surface: public health and prewarm triggers,
// Bearer-gated cache administration, and the Prometheus metrics endpoint.
package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/partsflow/storefront/backend/internal/api/handlers"
	"github.com/partsflow/storefront/backend/internal/orchestrator"
	"github.com/partsflow/storefront/backend/internal/warmer"
)

// NewRouter builds the application router.
func NewRouter(o *orchestrator.Orchestrator, w *warmer.Warmer) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoveryMiddleware)

	// Health
	r.HandleFunc("/api/health", handlers.Health).Methods("GET")

	// Metrics
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Prewarm triggers (storefront-facing)
	prewarm := handlers.NewPrewarmHandler(o)
	r.HandleFunc("/api/prewarm/product/{id}", prewarm.PrewarmProduct).Methods("POST")
	r.HandleFunc("/api/prewarm/orders", prewarm.PrewarmUserOrders).Methods("POST")

	// Cache administration (Bearer-gated)
	cacheAdmin := handlers.NewCacheAdminHandler(o, w)
	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(adminAuthMiddleware)
	admin.HandleFunc("/cache/stats", cacheAdmin.GetCacheStats).Methods("GET")
	admin.HandleFunc("/cache/health", cacheAdmin.GetCacheHealth).Methods("GET")
	admin.HandleFunc("/cache/invalidate", cacheAdmin.InvalidateCache).Methods("POST")
	admin.HandleFunc("/cache/cleanup", cacheAdmin.CleanupCache).Methods("POST")
	admin.HandleFunc("/cache/warm", cacheAdmin.WarmCache).Methods("POST")

	return r
}
