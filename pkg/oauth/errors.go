package oauth

import (
	"errors"
	"fmt"
)

// Sentinel errors for local state failures. Protocol errors reported by
// the authorization server are surfaced as *ServerError instead.
var (
	// ErrInvalidState is returned when a code exchange presents a state
	// parameter with no matching session. This is the CSRF defense: an
	// attacker-injected callback cannot name a state this process created.
	ErrInvalidState = errors.New("invalid state parameter")

	// ErrTokenNotFound is returned when no token exists under the
	// requested key.
	ErrTokenNotFound = errors.New("token not found")

	// ErrNoRefreshToken is returned when a refresh is required but the
	// stored token carries no refresh token.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrAuthorizationDenied is returned when the user declined the
	// device authorization request.
	ErrAuthorizationDenied = errors.New("authorization denied by user")

	// ErrDeviceCodeExpired is returned when the device code expired
	// before the user approved the request.
	ErrDeviceCodeExpired = errors.New("device code expired")
)

// ServerError is an OAuth error response from the authorization server
// (RFC 6749 section 5.2), surfaced verbatim.
type ServerError struct {
	// Code is the machine-readable error code, e.g. "invalid_grant".
	Code string

	// Description is the optional human-readable error_description.
	Description string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("oauth server error: %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("oauth server error: %s", e.Code)
}

// MissingFieldError indicates a required field was absent from a callback
// or server response.
type MissingFieldError struct {
	Field string
}

// Error implements the error interface.
func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// AsServerError unwraps err into a *ServerError if it is one.
func AsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
