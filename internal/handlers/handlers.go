package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"agromart/internal/services"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
// Anything outside the taxonomy is a 500 with no detail leaked.
func respondServiceError(w http.ResponseWriter, err error) {
	var (
		validation services.ValidationError
		notFound   services.NotFoundError
		conflict   services.StateConflictError
		capErr     services.CapExceededError
		authz      services.AuthorizationError
	)
	switch {
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &notFound):
		respondError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &capErr):
		respondError(w, http.StatusConflict, capErr.Error())
	case errors.As(err, &conflict):
		respondError(w, http.StatusConflict, conflict.Error())
	case errors.As(err, &authz):
		respondError(w, http.StatusForbidden, authz.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func parsePagination(r *http.Request) (int, int) {
	limit, offset := 50, 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
