// Package database provides SQLite connectivity for the optional
// command-history recorder.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Connection pooling and lifecycle management
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Performance Characteristics:
//   - WAL mode allows concurrent reads during writes
//   - Busy timeout prevents lock contention errors
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "./data/escpos-sim.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
// The history recorder creates its own schema on first use; there is no
// separate migration step.
package database
