package services

import "fmt"

// Business-rule failures surface as typed errors carrying enough context
// (entity kind, id, current state) for the caller to act on. None are
// swallowed; handlers map each type to an HTTP status.

// ValidationError marks malformed or missing required input.
type ValidationError struct {
	Field  string
	Detail string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

// NotFoundError marks a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// StateConflictError marks a precondition violation on an entity's current
// status: unit not available, negotiation not accepted, window not open.
type StateConflictError struct {
	Entity string
	ID     string
	State  string
	Want   string
}

func (e StateConflictError) Error() string {
	return fmt.Sprintf("%s %s is %s, want %s", e.Entity, e.ID, e.State, e.Want)
}

// CapExceededError marks a lock attempt that would push a trader's exposure
// above the spend cap.
type CapExceededError struct {
	TraderID string
	Exposure int64
	Attempt  int64
	Cap      int64
}

func (e CapExceededError) Error() string {
	return fmt.Sprintf("trader %s exposure %d + %d exceeds cap %d", e.TraderID, e.Exposure, e.Attempt, e.Cap)
}

// AuthorizationError marks a caller whose stored role does not permit the
// operation.
type AuthorizationError struct {
	UserID string
	Role   string
	Need   string
}

func (e AuthorizationError) Error() string {
	return fmt.Sprintf("user %s has role %s, operation requires %s", e.UserID, e.Role, e.Need)
}
