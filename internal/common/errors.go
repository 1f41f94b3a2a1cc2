package common

import (
	"errors"
	"fmt"
)

// Callers match these with errors.Is; concrete failures wrap them with %w.
var (
	// ErrValidation marks malformed input rejected before it reaches the core.
	ErrValidation = errors.New("validation error")

	// ErrConflict is returned when registering an email that already exists.
	ErrConflict = errors.New("conflict")

	// ErrUnauthenticated covers bad credentials and invalid, expired or revoked
	// refresh tokens.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned when an authenticated caller lacks a role.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned for unknown principals on direct lookup.
	ErrNotFound = errors.New("not found")

	// ErrConfiguration marks missing or invalid signing material and settings.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransientStore marks retryable persistence failures.
	ErrTransientStore = errors.New("transient store error")

	// ErrorInternal is returned when an unexpected failure is hidden from the caller.
	ErrorInternal = errors.New("internal error")
)

// InvalidCredentialsMessage is the only text returned for failed logins.
const InvalidCredentialsMessage = "invalid email or password"

// Transient tags err as a retryable store failure while keeping the cause
// reachable through errors.Is / errors.As.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransientStore) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransientStore, err)
}
