package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"agromart/internal/middleware"

	"github.com/go-chi/chi/v5"
)

type openUnitOfferRequest struct {
	UnitID          string     `json:"unit_id"`
	OfferPriceMinor int64      `json:"offer_price_minor"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) OpenUnitOffer(w http.ResponseWriter, r *http.Request) {
	traderID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req openUnitOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	negotiation, err := h.offers.OpenUnitOffer(r.Context(), traderID, req.UnitID, req.OfferPriceMinor, req.ExpiresAt)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, negotiation)
}

type offerActionRequest struct {
	CounterPriceMinor int64 `json:"counter_price_minor,omitempty"`
}

// unitOfferAction dispatches accept, reject, counter, and cancel on a
// farmer<->trader negotiation. The service enforces whose move it is.
func (h *Handler) unitOfferAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		var req offerActionRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "invalid payload")
				return
			}
		}
		negotiation, err := h.offers.ActOnUnitOffer(r.Context(), callerID, chi.URLParam(r, "id"), action, req.CounterPriceMinor)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, negotiation)
	}
}

func (h *Handler) ListNegotiations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	negotiations, err := h.negotiations.ListForUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list negotiations")
		return
	}
	respondJSON(w, http.StatusOK, negotiations)
}

type openBlockOfferRequest struct {
	InventoryID     string     `json:"inventory_id"`
	OfferPriceMinor int64      `json:"offer_price_minor"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) OpenBlockOffer(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req openBlockOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	negotiation, err := h.offers.OpenBlockOffer(r.Context(), buyerID, req.InventoryID, req.OfferPriceMinor, req.ExpiresAt)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, negotiation)
}

func (h *Handler) blockOfferAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		var req offerActionRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "invalid payload")
				return
			}
		}
		negotiation, err := h.offers.ActOnBlockOffer(r.Context(), callerID, chi.URLParam(r, "id"), action, req.CounterPriceMinor)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, negotiation)
	}
}

func (h *Handler) ListBuyerNegotiations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	negotiations, err := h.buyerNegs.ListForUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list negotiations")
		return
	}
	respondJSON(w, http.StatusOK, negotiations)
}
