package emulator

import "errors"

var (
	// ErrAlreadyRunning indicates Start was called on a running emulator.
	ErrAlreadyRunning = errors.New("emulator already running")

	// ErrBind indicates the TCP listener could not be opened.
	ErrBind = errors.New("bind failed")

	// ErrConnectionTimeout indicates a client went idle past the
	// configured timeout and was disconnected.
	ErrConnectionTimeout = errors.New("connection idle timeout")
)

// Failure reasons recorded in the history log.
const (
	failureRejectedOffline = "connection_rejected_offline"
	failureForcedDrop      = "forced_disconnect"
	failureBufferFull      = "buffer_full"
	failureIdleTimeout     = "connection_timeout"
)
