package telemetry

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// AuditSink persists structured event records to a local sqlite
// database, a separate durability concern from the per-session replay
// log in the collab package: this trail is cross-session, queryable,
// and safe to lose without affecting scene state, so a failed write
// here never fails command processing. Each Record call is a
// synchronous insert on the caller's goroutine.
type AuditSink struct {
	db *sql.DB
}

// OpenAuditSink opens (creating if absent) a sqlite database at path
// and ensures the event_records table exists.
func OpenAuditSink(path string) (*AuditSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: opening audit db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline
	const ddl = `
	CREATE TABLE IF NOT EXISTS event_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		occurred_at INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		object_id TEXT NOT NULL,
		duration_ms REAL NOT NULL
	);`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry: creating audit schema: %w", err)
	}
	return &AuditSink{db: db}, nil
}

// Record inserts one event record. Errors are swallowed by design: the
// audit trail is diagnostic, never load-bearing for correctness.
func (a *AuditSink) Record(rec EventRecord) {
	_, _ = a.db.Exec(
		`INSERT INTO event_records (occurred_at, event_type, session_id, user_id, object_id, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.OccurredAt.UnixMilli(), rec.EventType, rec.SessionID, rec.UserID, rec.ObjectID, rec.DurationMs,
	)
}

// Close closes the underlying database handle.
func (a *AuditSink) Close() error {
	return a.db.Close()
}

// PruneOlderThan deletes audit rows older than the given age, keeping
// the audit database from growing unbounded on a long-lived process.
func (a *AuditSink) PruneOlderThan(age time.Duration) error {
	cutoff := time.Now().Add(-age).UnixMilli()
	_, err := a.db.Exec(`DELETE FROM event_records WHERE occurred_at < ?`, cutoff)
	return err
}
