package faults

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/escpos-sim/internal/printer"
)

// Logger defines the logging interface used by the Simulator.
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

// Trigger selects when a programmed error condition fires.
type Trigger string

const (
	// TriggerManual conditions fire only via SimulateError.
	TriggerManual Trigger = "manual"

	// TriggerAfterCommands fires once N commands have been processed.
	TriggerAfterCommands Trigger = "after_commands"

	// TriggerRandom fires each processed command with probability P.
	TriggerRandom Trigger = "random"

	// TriggerScheduled fires at a wall-clock time.
	TriggerScheduled Trigger = "scheduled"
)

// Condition is one programmable fault.
type Condition struct {
	// Kind is the printer error to force when the condition fires.
	Kind printer.ErrorKind `json:"kind"`

	// Trigger selects the firing rule; the matching field below applies.
	Trigger Trigger `json:"trigger"`

	// AfterCommands is the command-count threshold for TriggerAfterCommands.
	AfterCommands int `json:"after_commands,omitempty"`

	// Probability is the per-command firing chance (0..1) for TriggerRandom.
	Probability float64 `json:"probability,omitempty"`

	// At is the firing time for TriggerScheduled.
	At time.Time `json:"at,omitempty"`

	// Repeat re-arms the condition after it fires and recovers instead of
	// consuming it.
	Repeat bool `json:"repeat,omitempty"`

	// RecoverAfter, when positive, returns the printer to Online that long
	// after firing. Zero means recovery is manual (Reset).
	RecoverAfter time.Duration `json:"recover_after,omitempty"`
}

// ConditionInfo pairs a registered condition with its handle.
type ConditionInfo struct {
	ID        string    `json:"id"`
	Condition Condition `json:"condition"`
	Fired     bool      `json:"fired"`
}

// FiredError is one entry in the fired-error history.
type FiredError struct {
	Kind    printer.ErrorKind `json:"kind"`
	Trigger Trigger           `json:"trigger"`
	Action  string            `json:"action"` // "activated" or "recovered"
	At      time.Time         `json:"at"`
}

// armed is a registered condition plus its firing state.
type armed struct {
	id      string
	cond    Condition
	fired   bool
	firedAt time.Time
	// nextThreshold is the command count an after_commands condition is
	// waiting for; advanced on re-arm for repeating conditions.
	nextThreshold int
}

// tickInterval is how often the background scheduler evaluates scheduled
// triggers and auto-recovery windows.
const tickInterval = 25 * time.Millisecond

// Simulator is the programmable fault controller. It forces printer state
// machine transitions on manual calls, command-count thresholds, random
// draws and scheduled times, and keeps an append-only history of every
// fired and recovered error.
//
// All methods are safe for concurrent use.
type Simulator struct {
	mu         sync.Mutex
	conditions []*armed
	history    []FiredError
	count      int
	rng        *rand.Rand

	machine *printer.Machine
	logger  Logger
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithSeed makes random triggers deterministic for reproducible tests.
func WithSeed(seed uint64) Option {
	return func(s *Simulator) {
		s.rng = rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	}
}

// NewSimulator creates a fault controller bound to the given machine.
func NewSimulator(machine *printer.Machine, opts ...Option) *Simulator {
	s := &Simulator{
		machine: machine,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLogger sets the logger for the simulator.
func (s *Simulator) SetLogger(logger Logger) {
	s.logger = logger
}

// AddCondition registers a programmable condition and returns its handle.
func (s *Simulator) AddCondition(c Condition) (string, error) {
	if err := validate(c); err != nil {
		return "", err
	}
	a := &armed{id: uuid.NewString(), cond: c}

	s.mu.Lock()
	if c.Trigger == TriggerAfterCommands {
		a.nextThreshold = s.count + c.AfterCommands
	}
	s.conditions = append(s.conditions, a)
	s.mu.Unlock()

	s.logger.Info("error condition added",
		"id", a.id, "kind", c.Kind, "trigger", c.Trigger)
	return a.id, nil
}

// RemoveCondition deregisters a condition by handle.
func (s *Simulator) RemoveCondition(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.conditions {
		if a.id == id {
			s.conditions = append(s.conditions[:i], s.conditions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrConditionNotFound, id)
}

// Clear removes all registered conditions. Fired-error history is kept.
func (s *Simulator) Clear() {
	s.mu.Lock()
	s.conditions = nil
	s.mu.Unlock()
}

// SimulateError fires an error immediately, bypassing the condition set.
func (s *Simulator) SimulateError(kind printer.ErrorKind) error {
	if err := s.machine.SimulateError(kind); err != nil {
		return err
	}
	s.mu.Lock()
	s.history = append(s.history, FiredError{
		Kind: kind, Trigger: TriggerManual, Action: "activated", At: time.Now(),
	})
	s.mu.Unlock()
	return nil
}

// CommandProcessed informs the simulator that one command completed
// decoding. The connection manager calls this per command; it evaluates
// after_commands and random triggers.
func (s *Simulator) CommandProcessed() {
	s.mu.Lock()
	s.count++
	now := time.Now()
	var fired []*armed
	for _, a := range s.conditions {
		if a.fired {
			continue
		}
		switch a.cond.Trigger {
		case TriggerAfterCommands:
			if s.count >= a.nextThreshold {
				fired = append(fired, a)
			}
		case TriggerRandom:
			if s.rng.Float64() < a.cond.Probability {
				fired = append(fired, a)
			}
		}
	}
	s.fireLocked(fired, now)
	s.mu.Unlock()
}

// Run evaluates scheduled triggers and auto-recovery windows until the
// context is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

// tick fires due scheduled conditions and recovers expired ones.
func (s *Simulator) tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fired []*armed
	for _, a := range s.conditions {
		if !a.fired && a.cond.Trigger == TriggerScheduled && !now.Before(a.cond.At) {
			fired = append(fired, a)
		}
	}
	s.fireLocked(fired, now)

	// Auto-recovery pass.
	kept := s.conditions[:0]
	for _, a := range s.conditions {
		if a.fired && a.cond.RecoverAfter > 0 && now.Sub(a.firedAt) >= a.cond.RecoverAfter {
			s.machine.Recover(a.cond.Kind)
			s.history = append(s.history, FiredError{
				Kind: a.cond.Kind, Trigger: a.cond.Trigger, Action: "recovered", At: now,
			})
			s.logger.Info("error condition recovered", "id", a.id, "kind", a.cond.Kind)
			if a.cond.Repeat {
				a.fired = false
				if a.cond.Trigger == TriggerAfterCommands {
					a.nextThreshold = s.count + a.cond.AfterCommands
				}
				if a.cond.Trigger == TriggerScheduled {
					// Intermittent fault: fire again one recovery window
					// after coming back.
					a.cond.At = now.Add(a.cond.RecoverAfter)
				}
				kept = append(kept, a)
			}
			continue
		}
		kept = append(kept, a)
	}
	s.conditions = kept
}

// fireLocked activates the given conditions. Callers hold s.mu.
func (s *Simulator) fireLocked(fired []*armed, now time.Time) {
	for _, a := range fired {
		if err := s.machine.SimulateError(a.cond.Kind); err != nil {
			s.logger.Error("firing error condition", "id", a.id, "error", err)
			continue
		}
		a.fired = true
		a.firedAt = now
		s.history = append(s.history, FiredError{
			Kind: a.cond.Kind, Trigger: a.cond.Trigger, Action: "activated", At: now,
		})
		s.logger.Info("error condition fired", "id", a.id, "kind", a.cond.Kind)
	}

	// One-shot conditions without auto-recovery are consumed on firing.
	kept := s.conditions[:0]
	for _, a := range s.conditions {
		if a.fired && !a.cond.Repeat && a.cond.RecoverAfter == 0 {
			continue
		}
		kept = append(kept, a)
	}
	s.conditions = kept
}

// History returns a copy of all fired and recovered errors, in order.
func (s *Simulator) History() []FiredError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FiredError(nil), s.history...)
}

// ActiveConditions returns the handles of currently registered conditions.
func (s *Simulator) ActiveConditions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.conditions))
	for i, a := range s.conditions {
		ids[i] = a.id
	}
	return ids
}

// Conditions returns a snapshot of registered conditions with handles.
func (s *Simulator) Conditions() []ConditionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]ConditionInfo, len(s.conditions))
	for i, a := range s.conditions {
		infos[i] = ConditionInfo{ID: a.id, Condition: a.cond, Fired: a.fired}
	}
	return infos
}

// CommandCount returns the number of commands reported so far.
func (s *Simulator) CommandCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// validate rejects malformed conditions before they are armed.
func validate(c Condition) error {
	if !printer.ValidErrorKind(c.Kind) {
		return fmt.Errorf("%w: unknown error kind %q", ErrInvalidCondition, c.Kind)
	}
	switch c.Trigger {
	case TriggerAfterCommands:
		if c.AfterCommands < 1 {
			return fmt.Errorf("%w: after_commands threshold must be >= 1", ErrInvalidCondition)
		}
	case TriggerRandom:
		if c.Probability < 0 || c.Probability > 1 {
			return fmt.Errorf("%w: probability %v outside 0..1", ErrInvalidCondition, c.Probability)
		}
	case TriggerScheduled:
		if c.At.IsZero() {
			return fmt.Errorf("%w: scheduled condition needs a time", ErrInvalidCondition)
		}
	case TriggerManual:
		// Armed manual conditions fire only via SimulateError; nothing to check.
	default:
		return fmt.Errorf("%w: unknown trigger %q", ErrInvalidCondition, c.Trigger)
	}
	if c.RecoverAfter < 0 {
		return fmt.Errorf("%w: negative recovery duration", ErrInvalidCondition)
	}
	if c.Repeat && c.RecoverAfter == 0 {
		return fmt.Errorf("%w: repeating condition needs a recovery duration", ErrInvalidCondition)
	}
	return nil
}
