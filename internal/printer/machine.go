package printer

import (
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Machine.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Machine is the device-level state machine.
//
// It tracks online/offline/error status, paper supply, and receive-buffer
// occupancy. All transitions go through Machine methods under a single
// mutex; no two callers can apply a transition simultaneously. Reads take
// copy-on-read snapshots and never block writers for long.
//
// Transition events are delivered to subscribers in transition order,
// at most once per event, outside the state lock (see events.go).
type Machine struct {
	mu    sync.Mutex
	state State

	dispatch dispatcher
	logger   Logger
}

// NewMachine creates a machine in the Online state with the given
// receive-buffer capacity.
func NewMachine(bufferCapacity int) *Machine {
	return &Machine{
		state: State{
			Status: StatusOnline,
			Paper:  PaperOK,
			Buffer: BufferUsage{Capacity: bufferCapacity},
		},
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the machine.
func (m *Machine) SetLogger(logger Logger) {
	m.logger = logger
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	if m.state.LastError != nil {
		le := *m.state.LastError
		s.LastError = &le
	}
	return s
}

// Online reports whether the device is currently processing commands.
func (m *Machine) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Online()
}

// SimulateError forces the machine into the given error condition.
// ErrorOffline moves the device to Offline; every other kind moves it to
// Error(kind). Paper errors also empty the paper supply.
func (m *Machine) SimulateError(kind ErrorKind) error {
	if !ValidErrorKind(kind) {
		return fmt.Errorf("%w: %q", ErrUnknownErrorKind, kind)
	}

	m.mu.Lock()
	prev := m.state.Status
	now := time.Now()
	if kind == ErrorOffline {
		m.state.Status = StatusOffline
		m.state.Error = ""
	} else {
		m.state.Status = StatusError
		m.state.Error = kind
	}
	if kind == ErrorPaperOut {
		m.state.Paper = PaperEmpty
	}
	m.state.LastError = &ErrorEvent{Kind: kind, At: now}
	ev := Event{Type: EventError, Previous: prev, Current: m.state.Status, Kind: kind, At: now}
	m.publishLocked(ev)

	m.logger.Info("printer error simulated", "kind", kind, "previous", prev)
	return nil
}

// Reset returns the machine to Online. Resetting an already-online machine
// is a no-op: status, paper and last_error are all left untouched.
func (m *Machine) Reset() {
	m.mu.Lock()
	if m.state.Status == StatusOnline {
		m.mu.Unlock()
		return
	}
	prev := m.state.Status
	kind := m.currentErrorKindLocked()
	m.state.Status = StatusOnline
	m.state.Error = ""
	m.state.Paper = PaperOK
	ev := Event{Type: EventRecovery, Previous: prev, Current: StatusOnline, Kind: kind, At: time.Now()}
	m.publishLocked(ev)

	m.logger.Info("printer reset", "previous", prev)
}

// Recover returns the machine to Online only if it is currently failed
// with the given kind. Timed fault conditions use this on expiry so that
// an unrelated later error is not clobbered by a stale timer.
func (m *Machine) Recover(kind ErrorKind) {
	m.mu.Lock()
	if m.currentErrorKindLocked() != kind || m.state.Status == StatusOnline {
		m.mu.Unlock()
		return
	}
	prev := m.state.Status
	m.state.Status = StatusOnline
	m.state.Error = ""
	if kind == ErrorPaperOut {
		m.state.Paper = PaperOK
	}
	ev := Event{Type: EventRecovery, Previous: prev, Current: StatusOnline, Kind: kind, At: time.Now()}
	m.publishLocked(ev)

	m.logger.Info("printer recovered", "kind", kind)
}

// currentErrorKindLocked derives the error kind implied by the current
// status. Callers must hold mu.
func (m *Machine) currentErrorKindLocked() ErrorKind {
	switch m.state.Status {
	case StatusOffline:
		return ErrorOffline
	case StatusError:
		return m.state.Error
	default:
		return ""
	}
}

// CurrentErrorKind returns the error kind implied by the current status,
// or "" when the device is online.
func (m *Machine) CurrentErrorKind() ErrorKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentErrorKindLocked()
}

// SetPaper updates the paper supply state without changing status.
func (m *Machine) SetPaper(p PaperStatus) {
	m.mu.Lock()
	m.state.Paper = p
	m.mu.Unlock()
}

// ReserveBuffer accounts n incoming bytes against the receive buffer.
// It fails with ErrBufferFull if the reservation would exceed capacity,
// leaving occupancy unchanged.
func (m *Machine) ReserveBuffer(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Buffer.Used+n > m.state.Buffer.Capacity {
		return fmt.Errorf("%w: %d+%d exceeds capacity %d",
			ErrBufferFull, m.state.Buffer.Used, n, m.state.Buffer.Capacity)
	}
	m.state.Buffer.Used += n
	return nil
}

// ReleaseBuffer returns n consumed bytes to the receive buffer.
func (m *Machine) ReleaseBuffer(n int) {
	m.mu.Lock()
	m.state.Buffer.Used -= n
	if m.state.Buffer.Used < 0 {
		m.state.Buffer.Used = 0
	}
	m.mu.Unlock()
}
