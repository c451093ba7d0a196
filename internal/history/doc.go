// Package history keeps the append-only record of everything the emulator
// decoded, plus connection-level failure markers.
//
// The Log is the authoritative source for test assertions: commands from a
// single connection appear in the order their bytes were fully decoded,
// and entries are never mutated or reordered after insertion. Reads are
// concurrent with writes.
//
// PrintHistory reconstructs renderable content (text runs, barcodes, QR
// codes, images) from the raw command sequence. An optional SQLiteRecorder
// mirrors entries into a SQL table for ad-hoc inspection; it is a sink,
// not a source, and defaults to an in-memory database so nothing survives
// the process.
package history
