package handlers

import (
	"encoding/json"
	"net/http"

	"agromart/internal/middleware"
	"agromart/internal/models"
	"agromart/internal/services"
	"agromart/internal/utid"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type createListingRequest struct {
	ProduceType  string `json:"produce_type"`
	TotalKilos   string `json:"total_kilos"`
	PricePerKilo int64  `json:"price_per_kilo_minor"`
}

// CreateListing posts a farmer's harvest and splits it into fixed-size
// units, the atomic tradeable object. Total kilos must divide evenly into
// units.
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	farmerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	role, err := h.users.GetRole(r.Context(), farmerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify role")
		return
	}
	if role != models.RoleFarmer {
		respondServiceError(w, services.AuthorizationError{UserID: farmerID, Role: role, Need: models.RoleFarmer})
		return
	}
	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.ProduceType == "" {
		respondError(w, http.StatusBadRequest, "produce_type is required")
		return
	}
	if req.PricePerKilo <= 0 {
		respondError(w, http.StatusBadRequest, "price_per_kilo_minor must be positive")
		return
	}
	totalKilos, err := decimal.NewFromString(req.TotalKilos)
	if err != nil || !totalKilos.IsPositive() {
		respondError(w, http.StatusBadRequest, "total_kilos must be a positive number")
		return
	}
	unitSize := decimal.NewFromInt(h.cfg.UnitSizeKilos)
	if !totalKilos.Mod(unitSize).IsZero() {
		respondError(w, http.StatusBadRequest, "total_kilos must be a multiple of the unit size")
		return
	}
	totalUnits := int(totalKilos.Div(unitSize).IntPart())

	listing := models.Listing{
		ID:           uuid.NewString(),
		FarmerID:     farmerID,
		UTID:         utid.New(utid.ActorFarmer),
		ProduceType:  req.ProduceType,
		TotalKilos:   totalKilos,
		PricePerKilo: req.PricePerKilo,
		UnitSize:     unitSize,
		TotalUnits:   totalUnits,
		Status:       models.ListingActive,
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.listings.CreateListing(r.Context(), tx, listing); err != nil {
			return err
		}
		for i := 0; i < totalUnits; i++ {
			unit := models.ListingUnit{
				ID:             uuid.NewString(),
				ListingID:      listing.ID,
				UnitIndex:      i,
				Status:         models.UnitAvailable,
				DeliveryStatus: models.DeliveryPending,
			}
			if err := h.listings.CreateUnit(r.Context(), tx, unit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create listing")
		return
	}
	respondJSON(w, http.StatusCreated, listing)
}

func (h *Handler) ListListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.listings.ListListings(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list listings")
		return
	}
	respondJSON(w, http.StatusOK, listings)
}

func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "id")
	listing, err := h.listings.GetListing(r.Context(), listingID)
	if err != nil {
		respondServiceError(w, services.NotFoundError{Entity: "listing", ID: listingID})
		return
	}
	respondJSON(w, http.StatusOK, listing)
}

func (h *Handler) ListListingUnits(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "id")
	units, err := h.listings.ListUnits(r.Context(), listingID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list units")
		return
	}
	respondJSON(w, http.StatusOK, units)
}
