package handlers

import (
	"encoding/json"
	"net/http"

	"agromart/internal/middleware"
)

type purchaseRequest struct {
	InventoryID string `json:"inventory_id"`
}

func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.InventoryID == "" {
		respondError(w, http.StatusBadRequest, "inventory_id is required")
		return
	}
	purchase, err := h.purchases.Purchase(r.Context(), buyerID, req.InventoryID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, purchase)
}

func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	purchases, err := h.purchases.ListForBuyer(r.Context(), buyerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list purchases")
		return
	}
	respondJSON(w, http.StatusOK, purchases)
}

func (h *Handler) WindowStatus(w http.ResponseWriter, r *http.Request) {
	open, err := h.window.IsOpen(r.Context(), h.q)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to read window state")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"is_open": open})
}
