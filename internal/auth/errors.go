package auth

import "errors"

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrEmailInUse is returned when registering or renaming onto an existing email.
	ErrEmailInUse = errors.New("auth: email already in use")
	// ErrAuthenticationRequired means no usable bearer token was presented.
	ErrAuthenticationRequired = errors.New("auth: authentication required")
	// ErrInvalidToken is returned for every token that fails verification.
	ErrInvalidToken = errors.New("auth: invalid or expired token")
	// ErrInternal wraps unexpected faults (store unreachable, entropy failure).
	ErrInternal = errors.New("auth: internal failure")

	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrForbidden    = errors.New("auth: forbidden")
)
