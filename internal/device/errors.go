package device

import "errors"

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrDeviceExists   = errors.New("device already exists")
	ErrInvalidState   = errors.New("operation not allowed in current device state")
	ErrValidation     = errors.New("invalid input")

	// ErrTokenNotFound means the presented token hashes to nothing we know.
	// ErrTokenNotActive means the token is known but its device is not
	// currently approved, or the token has expired. Callers must not leak
	// the distinction to unauthenticated clients.
	ErrTokenNotFound  = errors.New("token not recognized")
	ErrTokenNotActive = errors.New("token not active")
)
