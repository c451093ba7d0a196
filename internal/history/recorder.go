package history

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// schema is the command_log table backing the SQLite recorder. One row per
// history entry; failure markers store the reason in kind/detail with no
// raw bytes.
const schema = `
CREATE TABLE IF NOT EXISTS command_log (
	seq         INTEGER PRIMARY KEY,
	conn_id     TEXT NOT NULL,
	kind        TEXT NOT NULL,
	raw_hex     TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	received_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_command_log_kind ON command_log(kind);
`

// SQLiteRecorder mirrors every history entry into a SQLite table so that a
// test harness can inspect a run with plain SQL. The database is typically
// in-memory (:memory:); the emulator itself never reads it back.
type SQLiteRecorder struct {
	db   *sql.DB
	stmt *sql.Stmt
}

// NewSQLiteRecorder prepares the command_log table on the given database.
// The caller retains ownership of db.
func NewSQLiteRecorder(db *sql.DB) (*SQLiteRecorder, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating command_log schema: %w", err)
	}
	stmt, err := db.Prepare(
		`INSERT INTO command_log (seq, conn_id, kind, raw_hex, detail, received_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("preparing command_log insert: %w", err)
	}
	return &SQLiteRecorder{db: db, stmt: stmt}, nil
}

// Record inserts one entry. Implements Recorder.
func (r *SQLiteRecorder) Record(e Entry) error {
	var kind, rawHex, detail string
	switch {
	case e.Command != nil:
		kind = string(e.Command.Kind)
		rawHex = hex.EncodeToString(e.Command.Raw)
	case e.Failure != nil:
		kind = "failure:" + e.Failure.Reason
		detail = e.Failure.Detail
	}
	_, err := r.stmt.Exec(e.Seq, e.ConnID, kind, rawHex, detail, e.At.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording entry %d: %w", e.Seq, err)
	}
	return nil
}

// Close releases the prepared statement. The underlying database is left
// open for its owner to close.
func (r *SQLiteRecorder) Close() error {
	if err := r.stmt.Close(); err != nil {
		return fmt.Errorf("closing recorder statement: %w", err)
	}
	return nil
}
