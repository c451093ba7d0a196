package emulator

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/escpos-sim/internal/escpos"
	"github.com/nerrad567/escpos-sim/internal/faults"
	"github.com/nerrad567/escpos-sim/internal/history"
	"github.com/nerrad567/escpos-sim/internal/netsim"
	"github.com/nerrad567/escpos-sim/internal/printer"
)

// Logger defines the logging interface used by the emulator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// OfflinePolicy selects how an offline printer treats client traffic.
type OfflinePolicy string

const (
	// OfflineReject refuses new connections while the printer is offline.
	// Established connections keep buffering and drain on recovery.
	OfflineReject OfflinePolicy = "reject"

	// OfflineBuffer accepts connections while offline and buffers their
	// bytes until the printer recovers.
	OfflineBuffer OfflinePolicy = "buffer"
)

// Defaults for optional Config fields.
const (
	DefaultBufferCapacity = 64 * 1024
	DefaultIdleTimeout    = 30 * time.Second

	// connPollInterval bounds how long a connection goroutine blocks in a
	// single read, so it can notice shutdown, idle timeouts and printer
	// recovery between reads.
	connPollInterval = 100 * time.Millisecond

	readBufSize = 4096
)

// Config holds emulator settings.
type Config struct {
	// ListenAddr is the TCP address to bind, e.g. "127.0.0.1:0".
	ListenAddr string

	// BufferCapacity is the receive buffer limit in bytes, shared across
	// connections. Exceeding it trips a buffer_full error.
	BufferCapacity int

	// IdleTimeout disconnects clients that send nothing for this long.
	// Zero disables the timeout.
	IdleTimeout time.Duration

	// OfflinePolicy selects reject or buffer behaviour while offline.
	OfflinePolicy OfflinePolicy
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:0"
	}
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = DefaultBufferCapacity
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.OfflinePolicy == "" {
		c.OfflinePolicy = OfflineReject
	}
}

// Option configures an Emulator.
type Option func(*Emulator)

// WithLogger sets the logger for the emulator and its subsystems.
func WithLogger(logger Logger) Option {
	return func(e *Emulator) { e.logger = logger }
}

// WithRecorder persists every history entry through the given recorder.
func WithRecorder(r history.Recorder) Option {
	return func(e *Emulator) { e.log.SetRecorder(r) }
}

// WithSeed makes the fault simulator and network pipeline deterministic.
func WithSeed(seed uint64) Option {
	return func(e *Emulator) { e.seed = &seed }
}

// Emulator is a virtual receipt printer: a TCP listener that decodes the
// inbound byte stream, tracks printer state, records everything it sees
// and injects programmable printer and network faults. One Emulator
// instance serves many concurrent client connections.
type Emulator struct {
	cfg     Config
	machine *printer.Machine
	decoder *escpos.Decoder
	log     *history.Log
	faults  *faults.Simulator
	network *netsim.Pipeline
	logger  Logger
	seed    *uint64

	commandDelay atomic.Int64 // nanoseconds

	mu      sync.Mutex
	ln      net.Listener
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	conns   map[string]net.Conn
	running bool
}

// New creates an emulator. Start must be called before clients can connect.
func New(cfg Config, opts ...Option) *Emulator {
	cfg.applyDefaults()
	e := &Emulator{
		cfg:     cfg,
		machine: printer.NewMachine(cfg.BufferCapacity),
		decoder: escpos.NewDecoder(),
		log:     history.NewLog(),
		logger:  noopLogger{},
		conns:   make(map[string]net.Conn),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.seed != nil {
		e.faults = faults.NewSimulator(e.machine, faults.WithSeed(*e.seed))
		e.network = netsim.NewPipeline(netsim.WithSeed(*e.seed))
	} else {
		e.faults = faults.NewSimulator(e.machine)
		e.network = netsim.NewPipeline()
	}

	e.machine.SetLogger(e.logger)
	e.log.SetLogger(e.logger)
	e.faults.SetLogger(e.logger)
	e.network.SetLogger(e.logger)

	// A forced-disconnect window takes the printer offline and drops every
	// open connection; when the window clears the machine comes back online
	// unless some other error has claimed it in the meantime.
	e.network.OnDisconnect(func(active bool) {
		if active {
			e.machine.SimulateError(printer.ErrorOffline) //nolint:errcheck // ErrorOffline is a known kind
			e.dropConnections(failureForcedDrop, "network disconnect window opened")
			return
		}
		e.machine.Recover(printer.ErrorOffline)
	})
	return e
}

// Start binds the listener and begins accepting clients. Idempotent
// failure: a second Start returns ErrAlreadyRunning.
func (e *Emulator) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}

	ln, err := net.Listen("tcp", e.cfg.ListenAddr)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s: %v", ErrBind, e.cfg.ListenAddr, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	e.ln = ln
	e.cancel = cancel
	e.running = true
	e.mu.Unlock()

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.faults.Run(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.acceptLoop(ctx, ln)
	}()

	e.logger.Info("emulator listening", "addr", ln.Addr().String())
	return nil
}

// Stop closes the listener and all client connections and waits for the
// connection goroutines to finish. Safe to call more than once.
func (e *Emulator) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel, ln := e.cancel, e.ln
	e.cancel, e.ln = nil, nil
	conns := make([]net.Conn, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	cancel()
	ln.Close()
	for _, c := range conns {
		c.Close()
	}
	e.wg.Wait()
	e.logger.Info("emulator stopped")
}

// Addr returns the bound listener address, or empty before Start.
func (e *Emulator) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ln == nil {
		return ""
	}
	return e.ln.Addr().String()
}

// Running reports whether the listener is accepting clients.
func (e *Emulator) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// ClientCount returns the number of open client connections.
func (e *Emulator) ClientCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.conns)
}

// GetStatus returns a snapshot of printer state.
func (e *Emulator) GetStatus() printer.State {
	return e.machine.Snapshot()
}

// GetCommandLog returns the full ordered history, failures included.
func (e *Emulator) GetCommandLog() []history.Entry {
	return e.log.Entries()
}

// GetPrintHistory reconstructs logical print jobs from the command log.
func (e *Emulator) GetPrintHistory() []history.PrintJob {
	return e.log.PrintHistory()
}

// GetErrorHistory returns the fault simulator's fired-error record.
func (e *Emulator) GetErrorHistory() []faults.FiredError {
	return e.faults.History()
}

// SimulateError immediately injects the given error kind.
func (e *Emulator) SimulateError(kind printer.ErrorKind) error {
	return e.faults.SimulateError(kind)
}

// Reset returns the printer to the online state; the command log is kept.
func (e *Emulator) Reset() {
	e.machine.Reset()
}

// ClearHistory discards the command log. Printer state is untouched.
func (e *Emulator) ClearHistory() {
	e.log.Clear()
}

// SetCommandDelay inserts a fixed pause before each decoded command is
// recorded, emulating a slow printer. Zero disables the delay.
func (e *Emulator) SetCommandDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	e.commandDelay.Store(int64(d))
}

// CommandDelay returns the configured per-command delay.
func (e *Emulator) CommandDelay() time.Duration {
	return time.Duration(e.commandDelay.Load())
}

// Events registers an observer for printer state transitions. Events
// arrive in transition order, at most once each; cancel the subscription
// when done.
func (e *Emulator) Events(buffer int) *printer.Subscription {
	return e.machine.Subscribe(buffer)
}

// Machine exposes the printer state machine, for event subscriptions.
func (e *Emulator) Machine() *printer.Machine { return e.machine }

// History exposes the underlying history log, for notify hooks.
func (e *Emulator) History() *history.Log { return e.log }

// Faults exposes the error simulator for condition management.
func (e *Emulator) Faults() *faults.Simulator { return e.faults }

// Network exposes the network condition pipeline.
func (e *Emulator) Network() *netsim.Pipeline { return e.network }

// acceptLoop accepts clients until the listener closes. Connections are
// refused while a disconnect window is open, and while the printer status
// is offline under the reject policy. Other error states still accept:
// clients connect and see the error via DLE EOT or dropped data.
func (e *Emulator) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn("accept failed", "error", err)
			return
		}

		if e.network.DisconnectActive() {
			e.log.AppendFailure("", failureForcedDrop, "connection refused during disconnect window")
			conn.Close()
			continue
		}
		if e.cfg.OfflinePolicy == OfflineReject && e.machine.Snapshot().Status == printer.StatusOffline {
			kind := e.machine.CurrentErrorKind()
			e.log.AppendFailure("", failureRejectedOffline, fmt.Sprintf("%s: %s", conn.RemoteAddr(), kind))
			e.logger.Info("rejecting connection while offline", "remote", conn.RemoteAddr().String(), "kind", kind)
			conn.Close()
			continue
		}

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.handleConn(ctx, conn)
		}()
	}
}

// dropConnections closes every open connection and records one failure
// marker per connection.
func (e *Emulator) dropConnections(reason, detail string) {
	e.mu.Lock()
	conns := make(map[string]net.Conn, len(e.conns))
	for id, c := range e.conns {
		conns[id] = c
	}
	e.mu.Unlock()

	for id, c := range conns {
		e.log.AppendFailure(id, reason, detail)
		c.Close()
	}
}

func (e *Emulator) trackConn(id string, conn net.Conn) {
	e.mu.Lock()
	e.conns[id] = conn
	e.mu.Unlock()
}

func (e *Emulator) untrackConn(id string) {
	e.mu.Lock()
	delete(e.conns, id)
	e.mu.Unlock()
}
