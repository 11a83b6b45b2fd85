package collab

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/collabgraph/server/internal/models"
	"github.com/collabgraph/server/internal/telemetry"
)

// DefaultGlobalSessionCap and DefaultPerSessionUserCap are the §4.E
// defaults: at most 20 concurrently live sessions process-wide, and at
// most 10 joined users per session.
const (
	DefaultGlobalSessionCap  = 20
	DefaultPerSessionUserCap = 10
)

// Registry is the process-wide session_id -> actor directory. It is
// the only cross-session shared structure in the system (§5); reads
// are concurrent, inserts are exclusive.
type Registry struct {
	mu                sync.RWMutex
	sessions          map[string]*Actor
	dataDir           string
	globalSessionCap  int
	perSessionUserCap int
	metrics           *telemetry.Metrics
	logger            *zap.Logger
}

// NewRegistry constructs an empty Registry rooted at dataDir, where
// each session's log and snapshot files live.
func NewRegistry(dataDir string, globalSessionCap, perSessionUserCap int, metrics *telemetry.Metrics, logger *zap.Logger) *Registry {
	if globalSessionCap <= 0 {
		globalSessionCap = DefaultGlobalSessionCap
	}
	if perSessionUserCap <= 0 {
		perSessionUserCap = DefaultPerSessionUserCap
	}
	return &Registry{
		sessions:          make(map[string]*Actor),
		dataDir:           dataDir,
		globalSessionCap:  globalSessionCap,
		perSessionUserCap: perSessionUserCap,
		metrics:           metrics,
		logger:            logger,
	}
}

// Lookup returns the actor for sessionID, if any.
func (r *Registry) Lookup(sessionID string) (*Actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.sessions[sessionID]
	return a, ok
}

// Register inserts an already-constructed actor, used by Recovery Boot
// to prime the registry with rehydrated sessions before any client
// has connected.
func (r *Registry) Register(sessionID string, actor *Actor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = actor
	r.metrics.SessionCreated()
}

// JoinOrCreate resolves sessionID to a live actor, creating a fresh one
// if none exists yet and the global session cap allows it, then
// submits a JOIN_SESSION command to it. The per-session user cap is
// enforced inside the actor's own JOIN handling per §4.E, since only
// the actor's serialized mailbox can safely read its own user count at
// the instant of the join.
func (r *Registry) JoinOrCreate(sessionID, userID, displayName string, from Recipient, timestampMs int64) error {
	actor, err := r.getOrCreate(sessionID)
	if err != nil {
		return err
	}

	// A join that cannot be answered in 2s (a blocked mailbox) is
	// retried once before failing, per §5's timeout policy.
	const joinTimeout = 2 * time.Second
	for attempt := 0; attempt < 2; attempt++ {
		reply := make(chan error, 1)
		actor.Submit(Command{
			Kind:         models.EventJoinSession,
			SourceUserID: userID,
			TimestampMs:  timestampMs,
			Payload:      models.JoinSessionPayload{SessionID: sessionID, DisplayName: displayName},
			From:         from,
			ReceivedAt:   time.Now(),
			JoinReply:    reply,
		})
		select {
		case err := <-reply:
			return err
		case <-time.After(joinTimeout):
			continue
		}
	}
	return reject(models.ErrOverloaded, "session %q did not answer join in time", sessionID)
}

func (r *Registry) getOrCreate(sessionID string) (*Actor, error) {
	r.mu.RLock()
	if actor, ok := r.sessions[sessionID]; ok {
		r.mu.RUnlock()
		return actor, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if actor, ok := r.sessions[sessionID]; ok {
		return actor, nil
	}
	if len(r.sessions) >= r.globalSessionCap {
		return nil, reject(models.ErrGlobalSessionLimit, "global session limit of %d reached", r.globalSessionCap)
	}

	store, err := Open(r.dataDir, sessionID, r.logger)
	if err != nil {
		return nil, err
	}
	actor := NewActor(sessionID, NewState(), store, r.perSessionUserCap, r.metrics, r.logger)
	r.sessions[sessionID] = actor
	r.metrics.SessionCreated()
	return actor, nil
}

// Sessions returns a stable snapshot of session ids and their current
// object/user counts, for the read-only admin listing endpoint.
type SessionSummary struct {
	SessionID   string `json:"session_id"`
	ObjectCount int    `json:"object_count"`
	UserCount   int    `json:"user_count"`
}

func (r *Registry) Sessions() []SessionSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionSummary, 0, len(r.sessions))
	for id, actor := range r.sessions {
		out = append(out, SessionSummary{
			SessionID:   id,
			ObjectCount: actor.ObjectCount(),
			UserCount:   actor.ActiveUserCount(),
		})
	}
	return out
}

// ShutdownAll drains and snapshots every live session actor, called on
// process shutdown.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var wg sync.WaitGroup
	for _, actor := range r.sessions {
		wg.Add(1)
		go func(a *Actor) {
			defer wg.Done()
			a.Shutdown()
		}(actor)
	}
	wg.Wait()
}
