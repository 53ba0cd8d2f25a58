package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"agromart/internal/middleware"
	"agromart/internal/money"
)

// amountRequest carries a decimal amount string ("500.00"); amounts cross the
// API as strings and live as int64 minor units everywhere else.
type amountRequest struct {
	Amount string `json:"amount"`
}

func decodeAmount(r *http.Request) (int64, error) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, errors.New("invalid payload")
	}
	return money.ParseMinor(req.Amount)
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	amountMinor, err := decodeAmount(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	entry, err := h.wallet.Deposit(r.Context(), userID, amountMinor)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (h *Handler) WithdrawProfit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	amountMinor, err := decodeAmount(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	entry, err := h.wallet.WithdrawProfit(r.Context(), userID, amountMinor)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (h *Handler) Balances(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	balances, err := h.wallet.Balances(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"capital_minor": balances.CapitalMinor,
		"profit_minor":  balances.ProfitMinor,
		"capital":       money.FormatMinor(balances.CapitalMinor),
		"profit":        money.FormatMinor(balances.ProfitMinor),
	})
}

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := parsePagination(r)
	entries, err := h.wallet.Entries(r.Context(), userID, limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// VerifyLedger replays the caller's full ledger history and reports any
// entry whose stored running balance disagrees with the replay.
func (h *Handler) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	mismatches, err := h.wallet.VerifyReplay(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"consistent": len(mismatches) == 0,
		"mismatches": mismatches,
	})
}
