package errors

import (
	"errors"
	"fmt"
)

// Common error types for the gateway
var (
	// Identity provider errors
	ErrNotConfigured       = errors.New("identity provider not configured")
	ErrNoAccount           = errors.New("no signed-in account")
	ErrInteractionRequired = errors.New("interaction required")
	ErrNoRefreshToken      = errors.New("no refresh token")
	ErrInvalidNonce        = errors.New("invalid nonce")
	ErrNoIDToken           = errors.New("no ID token in response")

	// Backend errors
	ErrFetchAuthInfo      = errors.New("failed to fetch auth info")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrBackend            = errors.New("backend request failed")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrInvalidState    = errors.New("invalid state")

	// General errors
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternal       = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
