package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session client
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSession          = errors.New("no session")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionIdle        = errors.New("session expired due to inactivity")

	// Token errors
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrRefreshFailed  = errors.New("refresh token exchange failed")
	ErrTokenMalformed = errors.New("malformed token")

	// Transport errors
	ErrRequestFailed = errors.New("request failed")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
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
