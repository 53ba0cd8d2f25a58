package middleware

import (
	"context"
	"net/http"
)

// RoleStore reads the caller's stored role. Roles are never trusted from the
// token; each gated request re-reads the users table.
type RoleStore interface {
	GetRole(ctx context.Context, userID string) (string, error)
}

func RequireRole(roles RoleStore, want string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			role, err := roles.GetRole(r.Context(), userID)
			if err != nil {
				http.Error(w, "unable to verify role", http.StatusInternalServerError)
				return
			}
			if role != want {
				http.Error(w, "insufficient role", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
