package handlers

import (
	"net/http"
	"time"

	"agromart/internal/middleware"
	"agromart/internal/models"
	"agromart/internal/services"
	"agromart/internal/storagefee"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// inventoryView decorates a stored inventory with its decay figures as of
// the request instant. The stored row never changes; the figures do.
type inventoryView struct {
	models.TraderInventory
	KilosLost      decimal.Decimal `json:"kilos_lost"`
	EffectiveKilos decimal.Decimal `json:"effective_kilos"`
}

// ListInventories shows a trader their own blocks; everyone else sees the
// in-storage blocks on offer.
func (h *Handler) ListInventories(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	role, err := h.users.GetRole(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify role")
		return
	}
	var rows []models.TraderInventory
	if role == models.RoleTrader {
		rows, err = h.inventories.ListByTrader(r.Context(), userID)
	} else {
		rows, err = h.inventories.ListInStorage(r.Context())
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list inventories")
		return
	}
	rate := h.decayRate(r)
	now := time.Now().UTC()
	views := make([]inventoryView, 0, len(rows))
	for _, inv := range rows {
		views = append(views, h.viewOf(inv, rate, now))
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *Handler) GetInventory(w http.ResponseWriter, r *http.Request) {
	inventoryID := chi.URLParam(r, "id")
	inv, err := h.inventories.Get(r.Context(), inventoryID)
	if err != nil {
		respondServiceError(w, services.NotFoundError{Entity: "inventory", ID: inventoryID})
		return
	}
	respondJSON(w, http.StatusOK, h.viewOf(inv, h.decayRate(r), time.Now().UTC()))
}

func (h *Handler) viewOf(inv models.TraderInventory, rate decimal.Decimal, now time.Time) inventoryView {
	return inventoryView{
		TraderInventory: inv,
		KilosLost:       storagefee.KilosLost(inv.TotalKilos, rate, inv.StorageStartTime, now),
		EffectiveKilos:  storagefee.EffectiveKilos(inv.TotalKilos, rate, inv.StorageStartTime, now),
	}
}

func (h *Handler) decayRate(r *http.Request) decimal.Decimal {
	raw, err := h.settings.Get(r.Context(), models.SettingStorageFeeRate)
	if err != nil {
		return storagefee.DefaultRatePerDay
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return storagefee.DefaultRatePerDay
	}
	return rate
}
