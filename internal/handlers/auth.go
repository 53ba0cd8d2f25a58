package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"agromart/internal/auth"
	"agromart/internal/middleware"
	"agromart/internal/models"
	"agromart/internal/services"
	"agromart/internal/utid"
	"agromart/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Register creates a user with a role chosen at signup. The first registered
// user becomes the admin regardless of the requested role. Traders start
// with an opening capital deposit equal to the default spend cap, written in
// the same transaction as the user row.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validator.ValidateUsername(req.Username); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidateEmail(req.Email); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidatePassword(req.Password); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidateSignupRole(req.Role); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to secure password")
		return
	}
	userID := uuid.NewString()
	role := req.Role
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		admins, err := h.users.CountAdmins(r.Context(), tx)
		if err != nil {
			return err
		}
		if admins == 0 {
			role = models.RoleAdmin
		}
		user := models.User{
			ID:           userID,
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: passwordHash,
			Role:         role,
			Alias:        aliasFor(role),
		}
		if err := h.users.Create(r.Context(), tx, user); err != nil {
			return err
		}
		if role == models.RoleTrader {
			metadata, _ := json.Marshal(map[string]string{"source": "signup"})
			if _, err := h.ledger.Append(r.Context(), tx, userID, models.EntryCapitalDeposit, h.cfg.DefaultSpendCapMinor, utid.New(utid.ActorSystem), string(metadata)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			respondError(w, http.StatusConflict, "username or email already exists")
			return
		}
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, userID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"token": token,
		"role":  role,
	})
}

// aliasFor builds the public pseudonymous handle shown in place of a user's
// identity on listings and offers.
func aliasFor(role string) string {
	return utid.RolePrefix(role) + "-" + strings.ToUpper(uuid.NewString()[:8])
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"token": token,
		"role":  user.Role,
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		respondServiceError(w, services.NotFoundError{Entity: "user", ID: userID})
		return
	}
	respondJSON(w, http.StatusOK, user)
}
