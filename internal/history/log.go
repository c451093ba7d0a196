package history

import (
	"sync"
	"time"

	"github.com/nerrad567/escpos-sim/internal/escpos"
)

// Logger defines the logging interface used by the Log.
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

// Entry is one record in the history log: either a decoded command or a
// connection-level failure marker. Entries are immutable once appended.
type Entry struct {
	Seq     int64           `json:"seq"`
	ConnID  string          `json:"conn_id"`
	Command *escpos.Command `json:"command,omitempty"`
	Failure *Failure        `json:"failure,omitempty"`
	At      time.Time       `json:"at"`
}

// Failure describes why a connection-level record was appended.
type Failure struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Recorder receives a copy of every appended entry. The SQLite recorder
// implements this; recording failures are logged, never fatal.
type Recorder interface {
	Record(Entry) error
}

// Log is the append-only command and failure record for one emulator.
//
// Entries are never mutated or reordered after insertion. Writers are
// serialised; readers take copies under a read lock and never block an
// in-progress append for longer than the copy.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	seq     int64

	recorder Recorder
	notify   []func(Entry)
	logger   Logger
}

// NewLog creates an empty history log.
func NewLog() *Log {
	return &Log{logger: noopLogger{}}
}

// SetLogger sets the logger for the log.
func (l *Log) SetLogger(logger Logger) {
	l.logger = logger
}

// SetRecorder attaches a recorder that receives every appended entry.
func (l *Log) SetRecorder(r Recorder) {
	l.mu.Lock()
	l.recorder = r
	l.mu.Unlock()
}

// AddNotify attaches a callback invoked after every append, outside the
// write lock. The API event stream and the MQTT bridge both register one;
// callbacks live for the life of the log.
func (l *Log) AddNotify(fn func(Entry)) {
	l.mu.Lock()
	l.notify = append(l.notify, fn)
	l.mu.Unlock()
}

// AppendCommand records a decoded command for the given connection.
func (l *Log) AppendCommand(connID string, cmd escpos.Command) Entry {
	return l.append(Entry{ConnID: connID, Command: &cmd, At: cmd.ReceivedAt})
}

// AppendFailure records a connection-level failure marker.
func (l *Log) AppendFailure(connID, reason, detail string) Entry {
	return l.append(Entry{
		ConnID:  connID,
		Failure: &Failure{Reason: reason, Detail: detail},
		At:      time.Now(),
	})
}

func (l *Log) append(e Entry) Entry {
	l.mu.Lock()
	l.seq++
	e.Seq = l.seq
	l.entries = append(l.entries, e)
	recorder, notify := l.recorder, l.notify
	l.mu.Unlock()

	if recorder != nil {
		if err := recorder.Record(e); err != nil {
			l.logger.Warn("history recorder failed", "seq", e.Seq, "error", err)
		}
	}
	for _, fn := range notify {
		fn(e)
	}
	return e
}

// Entries returns a copy of the full ordered record, failures included.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

// Commands returns the ordered decoded commands, excluding failure markers.
func (l *Log) Commands() []escpos.Command {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cmds := make([]escpos.Command, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Command != nil {
			cmds = append(cmds, *e.Command)
		}
	}
	return cmds
}

// Len returns the number of entries appended so far.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear discards all entries. The sequence counter keeps counting so that
// recorded rows from before the clear stay distinguishable.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}
