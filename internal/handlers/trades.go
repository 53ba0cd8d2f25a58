package handlers

import (
	"encoding/json"
	"net/http"

	"agromart/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// LockUnit is the pay-to-lock endpoint. The service runs the full
// precondition chain and capital debit atomically; the handler only
// translates the outcome.
func (h *Handler) LockUnit(w http.ResponseWriter, r *http.Request) {
	traderID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	result, err := h.trades.LockUnit(r.Context(), traderID, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) GetExposure(w http.ResponseWriter, r *http.Request) {
	traderID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	exposure, err := h.exposure.Compute(r.Context(), traderID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, exposure)
}

type buildBlockRequest struct {
	UnitIDs []string `json:"unit_ids"`
}

func (h *Handler) BuildBlock(w http.ResponseWriter, r *http.Request) {
	traderID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req buildBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(req.UnitIDs) == 0 {
		respondError(w, http.StatusBadRequest, "unit_ids is required")
		return
	}
	inventory, err := h.trades.BuildBlock(r.Context(), traderID, req.UnitIDs)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, inventory)
}
