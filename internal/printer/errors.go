package printer

import "errors"

// Domain errors for the printer package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, printer.ErrBufferFull) {
//	    // close the offending connection
//	}
var (
	// ErrBufferFull is returned when reserving receive-buffer space would
	// exceed the configured capacity.
	ErrBufferFull = errors.New("printer: receive buffer full")

	// ErrUnknownErrorKind is returned when an error kind is not recognised.
	ErrUnknownErrorKind = errors.New("printer: unknown error kind")
)
