package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"agromart/internal/middleware"

	"github.com/go-chi/chi/v5"
)

type reasonRequest struct {
	Reason string `json:"reason"`
}

type verifyDeliveryRequest struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason"`
}

func (h *Handler) VerifyDelivery(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req verifyDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.admin.VerifyDelivery(r.Context(), adminID, chi.URLParam(r, "id"), req.Outcome, req.Reason); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (h *Handler) ReverseDeliveryFailure(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.admin.ReverseDeliveryFailure(r.Context(), adminID, chi.URLParam(r, "id"), req.Reason); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "reversed"})
}

func (h *Handler) OpenWindow(w http.ResponseWriter, r *http.Request) {
	h.windowToggle(w, r, true)
}

func (h *Handler) CloseWindow(w http.ResponseWriter, r *http.Request) {
	h.windowToggle(w, r, false)
}

func (h *Handler) windowToggle(w http.ResponseWriter, r *http.Request, open bool) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	var err error
	if open {
		err = h.admin.OpenWindow(r.Context(), adminID, req.Reason)
	} else {
		err = h.admin.CloseWindow(r.Context(), adminID, req.Reason)
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"is_open": open})
}

func (h *Handler) WindowHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := parsePagination(r)
	history, err := h.window.History(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to read window history")
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to read settings")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

type updateSettingRequest struct {
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

func (h *Handler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req updateSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.admin.UpdateSetting(r.Context(), adminID, chi.URLParam(r, "key"), req.Value, req.Reason); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type setTraderCapRequest struct {
	SpendCapMinor *int64 `json:"spend_cap_minor"`
	Reason        string `json:"reason"`
}

func (h *Handler) SetTraderCap(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req setTraderCapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.admin.SetTraderCap(r.Context(), adminID, chi.URLParam(r, "id"), req.SpendCapMinor, req.Reason); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) RedFlags(w http.ResponseWriter, r *http.Request) {
	flags, err := h.admin.ScanRedFlags(r.Context(), time.Now().UTC())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, flags)
}

func (h *Handler) ResetAllTransactions(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	summary, err := h.admin.ResetAllTransactions(r.Context(), adminID, req.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	status := http.StatusOK
	if len(summary.Errors) > 0 {
		status = http.StatusMultiStatus
	}
	respondJSON(w, status, summary)
}

type batchInventoriesRequest struct {
	LockUTIDs []string `json:"lock_utids"`
	Reason    string   `json:"reason"`
}

func (h *Handler) BatchCreateInventories(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req batchInventoriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	summary, err := h.admin.BatchCreateInventories(r.Context(), adminID, req.LockUTIDs, req.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if len(summary.Errors) > 0 {
		status = http.StatusMultiStatus
	}
	respondJSON(w, status, summary)
}

func (h *Handler) ListAdminActions(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	actions, err := h.actions.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to read audit log")
		return
	}
	respondJSON(w, http.StatusOK, actions)
}

// Reconcile runs the ledger replay check for an arbitrary user.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	mismatches, err := h.wallet.VerifyReplay(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":    userID,
		"consistent": len(mismatches) == 0,
		"mismatches": mismatches,
	})
}
