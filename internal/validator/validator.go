package validator

import (
	"errors"
	"regexp"
)

var (
	ErrInvalidEmail    = errors.New("invalid email")
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidRole     = errors.New("invalid role")
	ErrEmptyReason     = errors.New("reason must not be empty")
)

var (
	emailRegex    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
)

// signupRoles are the roles a user may pick at registration. Admins are not
// self-service; the first registered user is promoted, the rest are created
// by an existing admin.
var signupRoles = map[string]struct{}{
	"farmer": {},
	"trader": {},
	"buyer":  {},
}

func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}
	return nil
}

func ValidateSignupRole(role string) error {
	if _, ok := signupRoles[role]; !ok {
		return ErrInvalidRole
	}
	return nil
}

// ValidateReason enforces the mandatory non-empty reason on admin actions.
func ValidateReason(reason string) error {
	if len(reason) == 0 {
		return ErrEmptyReason
	}
	return nil
}
