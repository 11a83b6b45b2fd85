package collab

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"github.com/collabgraph/server/internal/models"
)

// Boot enumerates persisted session logs under dataDir, replays each
// one to reconstruct its Session State, and registers the resulting
// actor in reg. Users are never restored: the user map starts empty
// for every recovered session, and selection state is not restored,
// per §4.H.
func Boot(reg *Registry, dataDir string, logger *zap.Logger) error {
	sessionIDs, err := DiscoverSessions(dataDir)
	if err != nil {
		return fmt.Errorf("collab: discovering persisted sessions: %w", err)
	}
	if len(sessionIDs) == 0 {
		logger.Info("recovery boot found no persisted sessions", zap.String("data_dir", dataDir))
		return nil
	}

	for _, sessionID := range sessionIDs {
		if err := recoverSession(reg, dataDir, sessionID, logger); err != nil {
			// A single corrupt session must not prevent the rest of
			// the fleet from booting; log and move on.
			logger.Error("failed to recover session, skipping",
				zap.String("session_id", sessionID), zap.Error(err))
			continue
		}
	}
	return nil
}

func recoverSession(reg *Registry, dataDir, sessionID string, logger *zap.Logger) error {
	store, err := Open(dataDir, sessionID, logger)
	if err != nil {
		return err
	}

	objects, snapSeq, entries, err := store.Replay()
	if err != nil {
		store.Close()
		return err
	}

	state := NewState()
	state.Objects = objects
	applied := 0
	for _, entry := range entries {
		if err := applyEntry(state, entry); err != nil {
			logger.Warn("dropping unreplayable log entry",
				zap.String("session_id", sessionID), zap.Uint64("seq", entry.Seq), zap.Error(err))
			continue
		}
		applied++
	}

	actor := NewActor(sessionID, state, store, reg.perSessionUserCap, reg.metrics, logger)
	reg.Register(sessionID, actor)

	logger.Info("recovered session",
		zap.String("session_id", sessionID),
		zap.Uint64("snapshot_seq", snapSeq),
		zap.Int("entries_replayed", applied),
		zap.Int("objects", len(state.Objects)),
		zap.String("mem", humanize.Bytes(uint64(len(state.Objects)*256))),
	)
	return nil
}

// applyEntry replays one durable log entry through the same pure State
// transitions used at command time, so invariant 5 (replay is
// bit-identical to the live state that produced the log) holds by
// construction: no arithmetic is performed here, only field assignment
// identical to the original transition, including the acting user id
// carried on the entry itself.
func applyEntry(state *State, entry LogEntry) error {
	switch entry.Kind {
	case KindCreateObject:
		var p models.CreateObjectPayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return err
		}
		_, err := state.CreateObject(p, entry.SourceUserID, entry.TimestampMs)
		return ignoreRejection(err)
	case KindDeleteObject:
		var p models.DeleteObjectPayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return err
		}
		_, err := state.DeleteObject(p, entry.SourceUserID)
		return ignoreRejection(err)
	case KindUpdateTransform:
		var p models.UpdateTransformPayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return err
		}
		_, err := state.UpdateTransform(p, entry.SourceUserID, entry.TimestampMs)
		return ignoreRejection(err)
	case KindUpdateProperties:
		var p models.UpdatePropertiesPayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return err
		}
		_, err := state.UpdateProperties(p, entry.SourceUserID, entry.TimestampMs)
		return ignoreRejection(err)
	case KindUpdateName:
		var p models.UpdateNamePayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return err
		}
		_, err := state.UpdateName(p, entry.SourceUserID, entry.TimestampMs)
		return ignoreRejection(err)
	default:
		return fmt.Errorf("collab: unknown log entry kind %q", entry.Kind)
	}
}

// ignoreRejection swallows a rejection replaying a logged entry:
// every logged entry was, by construction, accepted at the time it was
// appended, so a rejection here would mean log corruption rather than
// a real conflict. It is not treated as fatal; the caller already logs
// entry-level replay failures.
func ignoreRejection(err error) error {
	if _, ok := AsRejection(err); ok {
		return nil
	}
	return err
}
