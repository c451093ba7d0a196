// Package faults is the programmable error controller for the emulator.
//
// A Simulator holds a set of armed Conditions and forces printer state
// machine transitions when they fire: immediately (SimulateError), after a
// number of processed commands, on a random per-command draw, or at a
// scheduled time. Conditions are consumed once fired unless declared
// repeating, and may auto-recover after a duration, returning the device
// to Online without a manual Reset.
//
// Random draws use an injectable, seedable source so loss-of-service
// trials are reproducible. Every activation and recovery is recorded in
// an append-only fired-error history for harness assertions.
package faults
