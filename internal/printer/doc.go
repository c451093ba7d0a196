// Package printer models the device-level state of the virtual printer.
//
// The Machine tracks status (online, offline, error), paper supply and
// receive-buffer occupancy. It is the single authority for state
// transitions: the error simulator, the connection manager (buffer
// overflow) and the network pipeline (disconnect windows) all mutate
// device state exclusively through Machine methods, serialised by one
// mutex. Reads return copy-on-read snapshots.
//
// # Transitions
//
//   - Online -> Offline on a disconnect condition or SimulateError(offline)
//   - Online -> Error(kind) on SimulateError for other kinds
//   - Offline/Error -> Online via Reset(), or Recover(kind) when a timed
//     condition expires on its own
//
// Reset is idempotent: resetting an online machine changes nothing,
// including last_error.
//
// # Observers
//
// Subscribe registers an observer channel receiving transition events in
// transition order, at most once each, decoupled from the state lock.
package printer
