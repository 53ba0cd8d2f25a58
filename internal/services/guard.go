package services

import (
	"context"
	"database/sql"
	"errors"
)

// RoleReader looks up a caller's stored role. Every operation re-verifies
// the caller against this before doing anything else; a role claim arriving
// with the request is never trusted.
type RoleReader interface {
	GetRole(ctx context.Context, userID string) (string, error)
}

func requireRole(ctx context.Context, roles RoleReader, userID, want string) error {
	role, err := roles.GetRole(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotFoundError{Entity: "user", ID: userID}
		}
		return err
	}
	if role != want {
		return AuthorizationError{UserID: userID, Role: role, Need: want}
	}
	return nil
}
