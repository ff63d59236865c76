package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/partsflow/storefront/backend/internal/orchestrator"
	"github.com/partsflow/storefront/backend/internal/warmer"
)

// CacheAdminHandler handles cache administration endpoints.
type CacheAdminHandler struct {
	orch   *orchestrator.Orchestrator
	warmer *warmer.Warmer
}

// NewCacheAdminHandler creates a new cache admin handler.
func NewCacheAdminHandler(o *orchestrator.Orchestrator, w *warmer.Warmer) *CacheAdminHandler {
	return &CacheAdminHandler{orch: o, warmer: w}
}

// GetCacheStats returns key registry and warmer statistics.
// GET /api/admin/cache/stats
func (h *CacheAdminHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"trackedKeys":     h.orch.TrackedKeys(),
		"keysByNamespace": h.orch.KeysByNamespace(),
		"warmer":          h.warmer.Status(),
	})
}

// GetCacheHealth runs a full subsystem health check.
// GET /api/admin/cache/health
func (h *CacheAdminHandler) GetCacheHealth(w http.ResponseWriter, r *http.Request) {
	st := h.orch.HealthCheck(r.Context())
	code := http.StatusOK
	if !st.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

type invalidateRequest struct {
	EntityType string `json:"entityType"`
	ID         string `json:"id"`
}

// InvalidateCache invalidates the cache entries for one entity.
// POST /api/admin/cache/invalidate
func (h *CacheAdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.EntityType == "" || req.ID == "" {
		http.Error(w, "entityType and id are required", http.StatusBadRequest)
		return
	}
	if err := h.orch.SmartInvalidate(r.Context(), req.EntityType, req.ID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "cache invalidated for " + req.EntityType + " " + req.ID,
	})
}

// CleanupCache runs a cleanup sweep immediately.
// POST /api/admin/cache/cleanup
func (h *CacheAdminHandler) CleanupCache(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.Cleanup(r.Context()))
}

// WarmCache runs a warm pass immediately. ?force=true bypasses the
// recency guard.
// POST /api/admin/cache/warm
func (h *CacheAdminHandler) WarmCache(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	res := h.warmer.WarmCache(r.Context(), force)
	code := http.StatusOK
	if res.Skipped {
		code = http.StatusConflict
	}
	writeJSON(w, code, res)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
