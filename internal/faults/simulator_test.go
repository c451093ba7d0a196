package faults

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/escpos-sim/internal/printer"
)

func TestSimulator_ManualTrigger(t *testing.T) {
	m := printer.NewMachine(1024)
	s := NewSimulator(m)

	if err := s.SimulateError(printer.ErrorPaperOut); err != nil {
		t.Fatalf("SimulateError() error = %v", err)
	}
	if st := m.Snapshot(); st.Status != printer.StatusError || st.Error != printer.ErrorPaperOut {
		t.Errorf("machine state = %+v, want error/paper_out", st)
	}

	hist := s.History()
	if len(hist) != 1 {
		t.Fatalf("History() length = %d, want 1", len(hist))
	}
	if hist[0].Trigger != TriggerManual || hist[0].Action != "activated" {
		t.Errorf("history entry = %+v, want manual activation", hist[0])
	}
}

func TestSimulator_AfterCommands(t *testing.T) {
	m := printer.NewMachine(1024)
	s := NewSimulator(m)

	if _, err := s.AddCondition(Condition{
		Kind:          printer.ErrorTimeout,
		Trigger:       TriggerAfterCommands,
		AfterCommands: 3,
	}); err != nil {
		t.Fatalf("AddCondition() error = %v", err)
	}

	s.CommandProcessed()
	s.CommandProcessed()
	if !m.Online() {
		t.Fatal("machine went offline before the threshold")
	}
	s.CommandProcessed()
	if st := m.Snapshot(); st.Error != printer.ErrorTimeout {
		t.Errorf("machine error = %q, want timeout after 3 commands", st.Error)
	}

	// One-shot: condition consumed.
	if got := len(s.ActiveConditions()); got != 0 {
		t.Errorf("ActiveConditions() length = %d, want 0", got)
	}
}

func TestSimulator_RandomDeterministicWithSeed(t *testing.T) {
	run := func() int {
		m := printer.NewMachine(1024)
		s := NewSimulator(m, WithSeed(42))
		if _, err := s.AddCondition(Condition{
			Kind:        printer.ErrorCritical,
			Trigger:     TriggerRandom,
			Probability: 0.5,
		}); err != nil {
			t.Fatalf("AddCondition() error = %v", err)
		}
		fires := 0
		for i := 0; i < 100; i++ {
			s.CommandProcessed()
			if !m.Online() {
				fires++
				m.Reset()
				// Re-arm for the next draw.
				if _, err := s.AddCondition(Condition{
					Kind:        printer.ErrorCritical,
					Trigger:     TriggerRandom,
					Probability: 0.5,
				}); err != nil {
					t.Fatal(err)
				}
			}
		}
		return fires
	}

	first, second := run(), run()
	if first != second {
		t.Errorf("seeded runs fired %d and %d times, want identical", first, second)
	}
	if first == 0 {
		t.Error("p=0.5 over 100 commands never fired; RNG not being consulted")
	}
}

func TestSimulator_RandomZeroProbabilityNeverFires(t *testing.T) {
	m := printer.NewMachine(1024)
	s := NewSimulator(m, WithSeed(7))
	if _, err := s.AddCondition(Condition{
		Kind:        printer.ErrorCritical,
		Trigger:     TriggerRandom,
		Probability: 0,
	}); err != nil {
		t.Fatalf("AddCondition() error = %v", err)
	}
	for i := 0; i < 500; i++ {
		s.CommandProcessed()
	}
	if !m.Online() {
		t.Error("p=0 fired")
	}
}

func TestSimulator_ScheduledTriggerAndAutoRecovery(t *testing.T) {
	m := printer.NewMachine(1024)
	s := NewSimulator(m)

	if _, err := s.AddCondition(Condition{
		Kind:         printer.ErrorOffline,
		Trigger:      TriggerScheduled,
		At:           time.Now().Add(30 * time.Millisecond),
		RecoverAfter: 60 * time.Millisecond,
	}); err != nil {
		t.Fatalf("AddCondition() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for m.Online() {
		if time.Now().After(deadline) {
			t.Fatal("scheduled condition never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if st := m.Snapshot(); st.Status != printer.StatusOffline {
		t.Fatalf("machine status = %q, want offline", st.Status)
	}

	deadline = time.Now().Add(time.Second)
	for !m.Online() {
		if time.Now().After(deadline) {
			t.Fatal("condition never auto-recovered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hist := s.History()
	if len(hist) != 2 {
		t.Fatalf("History() length = %d, want activation + recovery", len(hist))
	}
	if hist[0].Action != "activated" || hist[1].Action != "recovered" {
		t.Errorf("history = %+v, want activated then recovered", hist)
	}
}

func TestSimulator_Validation(t *testing.T) {
	m := printer.NewMachine(1024)
	s := NewSimulator(m)

	tests := []struct {
		name string
		cond Condition
	}{
		{"unknown_kind", Condition{Kind: "nonsense", Trigger: TriggerManual}},
		{"bad_probability", Condition{Kind: printer.ErrorTimeout, Trigger: TriggerRandom, Probability: 1.5}},
		{"zero_threshold", Condition{Kind: printer.ErrorTimeout, Trigger: TriggerAfterCommands}},
		{"unscheduled", Condition{Kind: printer.ErrorTimeout, Trigger: TriggerScheduled}},
		{"unknown_trigger", Condition{Kind: printer.ErrorTimeout, Trigger: "sometimes"}},
		{"repeat_without_recovery", Condition{Kind: printer.ErrorTimeout, Trigger: TriggerManual, Repeat: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.AddCondition(tt.cond); !errors.Is(err, ErrInvalidCondition) {
				t.Errorf("AddCondition() error = %v, want ErrInvalidCondition", err)
			}
		})
	}
}

func TestSimulator_RemoveCondition(t *testing.T) {
	m := printer.NewMachine(1024)
	s := NewSimulator(m)

	id, err := s.AddCondition(Condition{
		Kind: printer.ErrorTimeout, Trigger: TriggerAfterCommands, AfterCommands: 1,
	})
	if err != nil {
		t.Fatalf("AddCondition() error = %v", err)
	}
	if err := s.RemoveCondition(id); err != nil {
		t.Fatalf("RemoveCondition() error = %v", err)
	}
	if err := s.RemoveCondition(id); !errors.Is(err, ErrConditionNotFound) {
		t.Errorf("second RemoveCondition() error = %v, want ErrConditionNotFound", err)
	}

	s.CommandProcessed()
	if !m.Online() {
		t.Error("removed condition still fired")
	}
}
