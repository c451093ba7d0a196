package netsim

import "errors"

var (
	// ErrValidation indicates rejected condition parameters.
	ErrValidation = errors.New("invalid network condition")

	// ErrConditionNotFound indicates an unknown or already cleared handle.
	ErrConditionNotFound = errors.New("network condition not found")

	// ErrForcedDisconnect is returned by Apply while a disconnect window
	// is open. The connection manager closes the socket in response.
	ErrForcedDisconnect = errors.New("forced disconnect active")
)
