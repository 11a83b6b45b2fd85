package collab

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"github.com/collabgraph/server/internal/models"
)

// CommandKind is the tag on a mutating command, both in the mailbox and
// in the durable log.
type CommandKind string

const (
	KindCreateObject     CommandKind = "CREATE_OBJECT"
	KindDeleteObject     CommandKind = "DELETE_OBJECT"
	KindUpdateTransform  CommandKind = "UPDATE_TRANSFORM"
	KindUpdateProperties CommandKind = "UPDATE_PROPERTIES"
	KindUpdateName       CommandKind = "UPDATE_NAME"
)

// LogEntry is one self-describing, newline-delimited record in a
// session's append-only log file.
type LogEntry struct {
	Seq          uint64          `json:"seq"`
	EntryID      string          `json:"entry_id"`
	TimestampMs  int64           `json:"timestamp_ms"`
	Kind         CommandKind     `json:"kind"`
	SourceUserID string          `json:"source_user_id"`
	Payload      json.RawMessage `json:"payload"`
}

// compactionThreshold is the number of appended entries after which a
// snapshot + truncate is triggered, per spec.
const compactionThreshold = 1000

// snapshotFile is the on-disk shape written by Store.Snapshot, gzip
// compressed and stored under a temp name until the atomic rename.
type snapshotFile struct {
	Seq     uint64                    `json:"seq"`
	Objects map[string]*models.Object `json:"objects"`
}

// Store is the append-only log plus snapshot sidecar for a single
// session. Only its owning Session Actor may touch it.
type Store struct {
	dir           string
	sessionID     string
	logPath       string
	snapshotPath  string
	log           *os.File
	writer        *bufio.Writer
	seq           uint64
	sinceSnapshot int
	logger        *zap.Logger
}

// Open opens (creating if absent) the log file for sessionID under dir.
// It does not replay; callers call Replay separately during Recovery
// Boot or session creation.
func Open(dir, sessionID string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("collab: creating data dir: %w", err)
	}
	s := &Store{
		dir:          dir,
		sessionID:    sessionID,
		logPath:      filepath.Join(dir, sessionID+".log"),
		snapshotPath: filepath.Join(dir, sessionID+".snapshot.json.gz"),
		logger:       logger,
	}
	f, err := os.OpenFile(s.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("collab: opening log %s: %w", s.logPath, err)
	}
	s.log = f
	s.writer = bufio.NewWriter(f)
	return s, nil
}

// Append persists entry durably before returning: buffered write,
// flush, then fsync, so a power loss after return cannot lose it.
// A write or fsync failure is returned as a *DurabilityError; a payload
// that cannot be marshaled is returned as a plain error. The caller
// (the Session Actor) logs either and continues serving.
func (s *Store) Append(kind CommandKind, timestampMs int64, sourceUserID string, payload any) (LogEntry, error) {
	s.seq++
	raw, err := json.Marshal(payload)
	if err != nil {
		s.seq--
		return LogEntry{}, fmt.Errorf("collab: marshaling log payload: %w", err)
	}
	entry := LogEntry{
		Seq:          s.seq,
		EntryID:      uuid.NewString(),
		TimestampMs:  timestampMs,
		Kind:         kind,
		SourceUserID: sourceUserID,
		Payload:      raw,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		s.seq--
		return LogEntry{}, fmt.Errorf("collab: marshaling log entry: %w", err)
	}
	if err := s.writeLine(line); err != nil {
		s.seq--
		return LogEntry{}, &DurabilityError{Op: "append", Err: err}
	}
	s.sinceSnapshot++
	return entry, nil
}

func (s *Store) writeLine(line []byte) error {
	if _, err := s.writer.Write(line); err != nil {
		return err
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return err
	}
	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.log.Sync()
}

// ShouldCompact reports whether the compaction policy (every 1,000
// appended entries) has been reached since the last snapshot.
func (s *Store) ShouldCompact() bool {
	return s.sinceSnapshot >= compactionThreshold
}

// Snapshot writes a full serialized copy of state at the current seq,
// then truncates the log to entries with seq > snapshot.seq.
//
// Crash-safety: write to a temp path, fsync, atomic rename over the
// snapshot path, only then truncate the log. If the process dies
// before the rename, the old snapshot (or none) is what Replay sees
// and the full log is still intact; a half-written temp file is
// simply ignored on recovery.
func (s *Store) Snapshot(objects map[string]*models.Object) error {
	tmpPath := s.snapshotPath + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return &DurabilityError{Op: "snapshot", Err: err}
	}
	gz := gzip.NewWriter(tmp)
	enc := json.NewEncoder(gz)
	if err := enc.Encode(snapshotFile{Seq: s.seq, Objects: objects}); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &DurabilityError{Op: "snapshot", Err: err}
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &DurabilityError{Op: "snapshot", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &DurabilityError{Op: "snapshot", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &DurabilityError{Op: "snapshot", Err: err}
	}
	if err := os.Rename(tmpPath, s.snapshotPath); err != nil {
		return &DurabilityError{Op: "snapshot", Err: err}
	}

	if err := s.truncateLog(); err != nil {
		return &DurabilityError{Op: "snapshot-truncate", Err: err}
	}
	if info, statErr := os.Stat(s.snapshotPath); statErr == nil && s.logger != nil {
		s.logger.Info("session snapshot written",
			zap.String("session_id", s.sessionID),
			zap.Uint64("seq", s.seq),
			zap.String("size", humanize.Bytes(uint64(info.Size()))),
		)
	}
	s.sinceSnapshot = 0
	return nil
}

// truncateLog reopens the log file empty: everything up to the just
// written snapshot's seq has been superseded.
func (s *Store) truncateLog() error {
	if err := s.log.Close(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.logPath, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	s.log = f
	s.writer = bufio.NewWriter(f)
	return nil
}

// Replay loads the latest valid snapshot, if any, then returns the log
// entries with seq > snapshot.seq in order. A partial/corrupt trailing
// log line (a crash mid-write) is detected and dropped rather than
// failing the whole replay, since the log format is newline-delimited
// and self-delimiting per entry.
func (s *Store) Replay() (map[string]*models.Object, uint64, []LogEntry, error) {
	objects, snapSeq := s.loadSnapshot()

	f, err := os.Open(s.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return objects, snapSeq, nil, nil
		}
		return nil, 0, nil, fmt.Errorf("collab: opening log for replay: %w", err)
	}
	defer f.Close()

	var entries []LogEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	maxSeq := snapSeq
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			// Partial trailing write from a crash mid-append: stop
			// here, this is the last well-formed record we have.
			break
		}
		if e.Seq <= snapSeq {
			continue
		}
		entries = append(entries, e)
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
	}
	s.seq = maxSeq
	return objects, snapSeq, entries, nil
}

func (s *Store) loadSnapshot() (map[string]*models.Object, uint64) {
	f, err := os.Open(s.snapshotPath)
	if err != nil {
		return map[string]*models.Object{}, 0
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		// Partial snapshot from a crash mid-write: ignored on recovery.
		return map[string]*models.Object{}, 0
	}
	defer gz.Close()
	var snap snapshotFile
	if err := json.NewDecoder(gz).Decode(&snap); err != nil {
		return map[string]*models.Object{}, 0
	}
	if snap.Objects == nil {
		snap.Objects = map[string]*models.Object{}
	}
	return snap.Objects, snap.Seq
}

// NextSeq returns the sequence number the next Append call will use.
func (s *Store) NextSeq() uint64 { return s.seq + 1 }

// Close flushes and closes the underlying log file. Called during
// session actor shutdown after a final snapshot.
func (s *Store) Close() error {
	if err := s.writer.Flush(); err != nil {
		s.log.Close()
		return err
	}
	return s.log.Close()
}

// RemoveFiles deletes the log and snapshot files for a session. Used
// only by explicit operator action, never by normal session lifecycle
// (invariant 6: a session's log outlives all users disconnecting).
func RemoveFiles(dir, sessionID string) error {
	logPath := filepath.Join(dir, sessionID+".log")
	snapPath := filepath.Join(dir, sessionID+".snapshot.json.gz")
	if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(snapPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DiscoverSessions lists the session ids with a persisted log file
// under dir, for Recovery Boot to enumerate.
func DiscoverSessions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const suffix = ".log"
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			ids = append(ids, name[:len(name)-len(suffix)])
		}
	}
	return ids, nil
}
