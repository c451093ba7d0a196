// Package emulator assembles the virtual printer: a TCP listener, the
// command decoder, the printer state machine, the history log, the fault
// simulator and the network condition pipeline, wired into one facade.
//
// Test harnesses drive it two ways at once: clients connect over TCP and
// send raw printer bytes, while the harness inspects and manipulates the
// emulator through the facade (or the HTTP API built on top of it). The
// facade methods are safe for concurrent use alongside live connections.
package emulator
