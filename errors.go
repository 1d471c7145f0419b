package identity

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ErrNoEmptyString is returned when a required string argument is empty
var ErrNoEmptyString = errors.New("value should not be an empty string")

// ErrNotAuthenticated is returned when an operation requires a signed-in principal
var ErrNotAuthenticated = errors.New("no authenticated principal")

// ErrAuthInFlight is returned when a credential exchange is already pending
var ErrAuthInFlight = errors.New("authentication already in flight")

// ErrBackendSessionMissing is returned when the backend accepted credentials
// but returned no live session (e.g. confirmation gate enabled)
var ErrBackendSessionMissing = errors.New("backend returned no live session")

const (
	textCodeSessionNotFound   = "SESSION_NOT_FOUND"
	textCodeInvalidTransition = "INVALID_IDENTITY_TRANSITION"
	textCodeSessionCreate     = "SESSION_CREATE_FAILED"
)

// ErrSessionNotFound covers both a missing session row and a row owned by a
// different principal; callers cannot distinguish the two on purpose.
var ErrSessionNotFound = goerrors.New("session not found for principal", goerrors.CategoryNotFound).
	WithTextCode(textCodeSessionNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidTransition is returned when an identity state change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid identity state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrSessionCreateFailed wraps a failed session insert during sign-in.
var ErrSessionCreateFailed = goerrors.New("unable to persist device session", goerrors.CategoryInternal).
	WithTextCode(textCodeSessionCreate).
	WithCode(goerrors.CodeInternal)

// IsNotAuthenticated will check for the missing-principal outcome
func IsNotAuthenticated(err error) bool {
	return errors.Is(err, ErrNotAuthenticated)
}

// IsSessionNotFound will check for the session not-found/forbidden outcome
func IsSessionNotFound(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == textCodeSessionNotFound
	}
	return false
}

// IsSessionCreateFailed will check for the failed session persistence outcome
func IsSessionCreateFailed(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == textCodeSessionCreate
	}
	return false
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
