// Package middleware carries the HTTP gates every marketplace route runs
// behind: token authentication and role checks against the users table.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"agromart/internal/auth"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext returns the caller id that Auth stored for this request.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}

// Auth verifies the Bearer token and stores the caller's id on the request
// context. It establishes identity only; roles are checked downstream against
// the users table, never read from token claims.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				http.Error(w, "missing or malformed bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseToken(secret, raw)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}
