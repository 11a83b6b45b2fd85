package telemetry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditSink_RecordPersistsRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	sink, err := OpenAuditSink(path)
	require.NoError(t, err)
	defer sink.Close()

	sink.Record(EventRecord{
		EventType:  "CREATE_OBJECT",
		SessionID:  "sess-1",
		UserID:     "u1",
		ObjectID:   "obj-1",
		DurationMs: 1.5,
		OccurredAt: time.Now(),
	})

	var count int
	require.NoError(t, sink.db.QueryRow(`SELECT COUNT(*) FROM event_records WHERE session_id = ?`, "sess-1").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestAuditSink_PruneOlderThanDeletesOldRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	sink, err := OpenAuditSink(path)
	require.NoError(t, err)
	defer sink.Close()

	old := time.Now().Add(-48 * time.Hour)
	_, err = sink.db.Exec(
		`INSERT INTO event_records (occurred_at, event_type, session_id, user_id, object_id, duration_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		old.UnixMilli(), "CREATE_OBJECT", "sess-1", "u1", "obj-1", 1.0,
	)
	require.NoError(t, err)

	require.NoError(t, sink.PruneOlderThan(24*time.Hour))

	var count int
	require.NoError(t, sink.db.QueryRow(`SELECT COUNT(*) FROM event_records`).Scan(&count))
	assert.Equal(t, 0, count)
}
