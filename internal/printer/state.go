package printer

import "time"

// Status is the top-level device status.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// ErrorKind identifies a simulated device error condition.
type ErrorKind string

const (
	ErrorOffline    ErrorKind = "offline"
	ErrorPaperOut   ErrorKind = "paper_out"
	ErrorCritical   ErrorKind = "critical_error"
	ErrorTimeout    ErrorKind = "timeout"
	ErrorBufferFull ErrorKind = "buffer_full"
)

// ValidErrorKind reports whether k names a known error kind.
func ValidErrorKind(k ErrorKind) bool {
	switch k {
	case ErrorOffline, ErrorPaperOut, ErrorCritical, ErrorTimeout, ErrorBufferFull:
		return true
	}
	return false
}

// PaperStatus is the paper supply state.
type PaperStatus string

const (
	PaperOK    PaperStatus = "ok"
	PaperLow   PaperStatus = "low"
	PaperEmpty PaperStatus = "empty"
)

// BufferUsage describes receive-buffer occupancy. Used never exceeds
// Capacity; an increment past capacity is rejected before it happens.
type BufferUsage struct {
	Capacity int `json:"capacity"`
	Used     int `json:"used"`
}

// ErrorEvent records one error transition for LastError reporting.
type ErrorEvent struct {
	Kind ErrorKind `json:"kind"`
	At   time.Time `json:"at"`
}

// State is a point-in-time snapshot of the device. Snapshots are copies;
// holders never observe later mutations.
type State struct {
	Status    Status      `json:"status"`
	Error     ErrorKind   `json:"error,omitempty"` // set when Status == StatusError
	Paper     PaperStatus `json:"paper"`
	Buffer    BufferUsage `json:"buffer"`
	LastError *ErrorEvent `json:"last_error,omitempty"`
}

// Online reports whether the device accepts command processing.
func (s State) Online() bool {
	return s.Status == StatusOnline
}
