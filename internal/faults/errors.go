package faults

import "errors"

// Domain errors for the faults package.
var (
	// ErrInvalidCondition is returned when a condition fails validation.
	ErrInvalidCondition = errors.New("faults: invalid condition")

	// ErrConditionNotFound is returned when removing an unknown handle.
	ErrConditionNotFound = errors.New("faults: condition not found")
)
