package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/partsflow/storefront/backend/internal/orchestrator"
)

// PrewarmHandler handles storefront-facing prewarm triggers.
type PrewarmHandler struct {
	orch *orchestrator.Orchestrator
}

// NewPrewarmHandler creates a new prewarm handler.
func NewPrewarmHandler(o *orchestrator.Orchestrator) *PrewarmHandler {
	return &PrewarmHandler{orch: o}
}

// PrewarmProduct warms a product and its category, typically fired when a
// product page opens.
// POST /api/prewarm/product/{id}
func (h *PrewarmHandler) PrewarmProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, "product id is required", http.StatusBadRequest)
		return
	}
	h.orch.PrewarmProduct(r.Context(), id)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

type prewarmOrdersRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// PrewarmUserOrders warms a user's order history once per session,
// typically fired at login.
// POST /api/prewarm/orders
func (h *PrewarmHandler) PrewarmUserOrders(w http.ResponseWriter, r *http.Request) {
	var req prewarmOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.SessionID == "" {
		http.Error(w, "userId and sessionId are required", http.StatusBadRequest)
		return
	}
	h.orch.PrewarmUserOrders(r.Context(), req.UserID, req.SessionID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}
