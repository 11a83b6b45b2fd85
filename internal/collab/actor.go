package collab

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/collabgraph/server/internal/models"
	"github.com/collabgraph/server/internal/telemetry"
)

// Recipient is the Session Actor's view of a live connection: enough
// to fan out frames and to drop the connection on backpressure or
// protocol violation. Implemented by the Connection Handler (D).
type Recipient interface {
	UserID() string
	// Send enqueues frame for delivery and returns false if the
	// recipient's bounded egress queue was full or closed. A broadcast
	// that gets false drops this recipient's connection with
	// OVERLOADED; a direct reply (sendTo) that gets false is discarded.
	Send(frame OutFrame) bool
	// Close terminates the underlying connection with the given
	// error code, used for OVERLOADED drops.
	Close(code models.ErrorCode)
}

// OutFrame is one outbound envelope plus the coalescing key a
// recipient's egress queue needs to implement the optional
// UPDATE_TRANSFORM coalescing described in §4.C: a queue may replace
// an already-queued, unsent frame with the same (ObjectID,
// SourceUserID) pair rather than growing.
type OutFrame struct {
	Envelope     models.Envelope
	Coalesce     bool
	ObjectID     string
	SourceUserID string
}

// Command is one item in a Session Actor's mailbox: a parsed,
// rate-checked, routed instruction from a Connection Handler.
type Command struct {
	Kind         models.EventType
	SourceUserID string
	TimestampMs  int64
	Payload      any
	From         Recipient
	ReceivedAt   time.Time

	// JoinReply, set only for EventJoinSession, lets the submitting
	// Connection Handler learn synchronously whether the join was
	// accepted before it starts treating itself as joined — a plain
	// fire-and-forget Submit would let a connection believe it had
	// joined a session that the actor was about to reject with
	// DUPLICATE_USER or SESSION_FULL.
	JoinReply chan error
}

// Actor owns exactly one Session State and one Event Log Store, and
// serializes all mutation through a single-consumer mailbox: this is
// the ordering anchor described in §5, since every recipient of one
// session sees broadcasts derived from the same sequence of accepted
// mutations processed here.
type Actor struct {
	SessionID string

	state             *State
	log               *Store
	perSessionUserCap int

	mailbox    chan Command
	quit       chan struct{}
	done       chan struct{}
	recipients map[string]Recipient

	metrics *telemetry.Metrics
	logger  *zap.Logger

	// userCount and objectCount mirror len(state.Users)/len(state.Objects)
	// as atomics so the Registry can read them for admin listing
	// without touching State outside the actor's own goroutine,
	// preserving the lock-free single-writer design of §5.
	userCount   atomic.Int64
	objectCount atomic.Int64
}

// clockSkewToleranceMs bounds how far into the future a client-supplied
// timestamp_ms is allowed to push an LWW comparison, per §8's recommended
// clock-skew mitigation: a client whose clock runs ahead cannot win every
// future comparison indefinitely.
const clockSkewToleranceMs = 5000

// NewActor constructs an actor around an already-recovered (or fresh)
// state and log store, and starts its mailbox loop.
func NewActor(sessionID string, state *State, log *Store, perSessionUserCap int, metrics *telemetry.Metrics, logger *zap.Logger) *Actor {
	a := &Actor{
		SessionID:         sessionID,
		state:             state,
		log:               log,
		perSessionUserCap: perSessionUserCap,
		mailbox:           make(chan Command, 256),
		quit:              make(chan struct{}),
		done:              make(chan struct{}),
		recipients:        make(map[string]Recipient),
		metrics:           metrics,
		logger:            logger,
	}
	a.objectCount.Store(int64(len(state.Objects)))
	a.userCount.Store(int64(len(state.Users)))
	go a.run()
	return a
}

// Submit places a command in the actor's mailbox. It never blocks
// forever on a healthy actor; the mailbox buffer absorbs bursts and
// the actor drains it strictly in arrival order.
func (a *Actor) Submit(cmd Command) {
	select {
	case a.mailbox <- cmd:
	case <-a.done:
	}
}

// Shutdown drains the remaining mailbox, writes a final snapshot, and
// closes the log, per the §5 session actor shutdown contract.
func (a *Actor) Shutdown() {
	close(a.quit)
	<-a.done
}

// ActiveUserCount reports the number of currently joined users. It
// reads an atomic, so the Registry's admin listing (Registry.Sessions)
// can call it from any goroutine. The per-session user cap itself is
// enforced in handleJoin from the actor's own State.
func (a *Actor) ActiveUserCount() int {
	return int(a.userCount.Load())
}

// ObjectCount reports the number of live objects, for admin listing.
func (a *Actor) ObjectCount() int {
	return int(a.objectCount.Load())
}

func (a *Actor) run() {
	defer close(a.done)
	for {
		select {
		case cmd := <-a.mailbox:
			a.handle(cmd)
		case <-a.quit:
			a.drainAndStop()
			return
		}
	}
}

func (a *Actor) drainAndStop() {
	for {
		select {
		case cmd := <-a.mailbox:
			a.handle(cmd)
		default:
			if err := a.log.Snapshot(a.state.SnapshotObjects()); err != nil {
				a.logger.Warn("final snapshot failed", zap.String("session_id", a.SessionID), zap.Error(err))
			}
			if err := a.log.Close(); err != nil {
				a.logger.Warn("closing log failed", zap.String("session_id", a.SessionID), zap.Error(err))
			}
			return
		}
	}
}

func (a *Actor) handle(cmd Command) {
	span := telemetry.StartCommandSpan(string(cmd.Kind), a.SessionID)
	defer span.Finish()

	a.metrics.MessageIn()

	// A badly skewed client clock could otherwise "win" every LWW
	// comparison indefinitely; clamp to the recommended mitigation
	// before the timestamp reaches any State transition.
	if maxTs := time.Now().UnixMilli() + clockSkewToleranceMs; cmd.TimestampMs > maxTs {
		cmd.TimestampMs = maxTs
	}

	switch cmd.Kind {
	case models.EventJoinSession:
		a.handleJoin(cmd)
	case models.EventLeaveSession:
		a.handleLeave(cmd)
	case models.EventCreateObject:
		a.handleMutation(cmd, KindCreateObject, func() (Outcome, error) {
			p := cmd.Payload.(models.CreateObjectPayload)
			return a.state.CreateObject(p, cmd.SourceUserID, cmd.TimestampMs)
		})
	case models.EventDeleteObject:
		a.handleMutation(cmd, KindDeleteObject, func() (Outcome, error) {
			p := cmd.Payload.(models.DeleteObjectPayload)
			return a.state.DeleteObject(p, cmd.SourceUserID)
		})
	case models.EventUpdateTransform:
		a.handleMutation(cmd, KindUpdateTransform, func() (Outcome, error) {
			p := cmd.Payload.(models.UpdateTransformPayload)
			return a.state.UpdateTransform(p, cmd.SourceUserID, cmd.TimestampMs)
		})
	case models.EventUpdateProperties:
		a.handleMutation(cmd, KindUpdateProperties, func() (Outcome, error) {
			p := cmd.Payload.(models.UpdatePropertiesPayload)
			return a.state.UpdateProperties(p, cmd.SourceUserID, cmd.TimestampMs)
		})
	case models.EventUpdateName:
		a.handleMutation(cmd, KindUpdateName, func() (Outcome, error) {
			p := cmd.Payload.(models.UpdateNamePayload)
			return a.state.UpdateName(p, cmd.SourceUserID, cmd.TimestampMs)
		})
	case models.EventSelectObject:
		a.handleSelect(cmd)
	}

	a.recordEvent(cmd)
}

func (a *Actor) recordEvent(cmd Command) {
	objectID := ""
	switch p := cmd.Payload.(type) {
	case models.CreateObjectPayload:
		objectID = p.ObjectID
	case models.DeleteObjectPayload:
		objectID = p.ObjectID
	case models.UpdateTransformPayload:
		objectID = p.ObjectID
	case models.UpdatePropertiesPayload:
		objectID = p.ObjectID
	case models.UpdateNamePayload:
		objectID = p.ObjectID
	}
	a.metrics.RecordEvent(telemetry.EventRecord{
		EventType:  string(cmd.Kind),
		SessionID:  a.SessionID,
		UserID:     cmd.SourceUserID,
		ObjectID:   objectID,
		DurationMs: float64(time.Since(cmd.ReceivedAt)) / float64(time.Millisecond),
		OccurredAt: time.Now(),
	})
}

// handleJoin is the presence subsystem's entry point (§4.F).
func (a *Actor) handleJoin(cmd Command) {
	p := cmd.Payload.(models.JoinSessionPayload)
	if len(a.state.Users) >= a.perSessionUserCap {
		a.replyJoin(cmd, ErrSessionFull)
		return
	}
	user, err := a.state.Join(cmd.SourceUserID, p.DisplayName, cmd.TimestampMs)
	if err != nil {
		a.replyJoin(cmd, err)
		return
	}
	a.replyJoin(cmd, nil)
	a.recipients[cmd.SourceUserID] = cmd.From
	a.userCount.Add(1)

	objects, users := a.state.FullSync()
	a.sendTo(cmd.From, models.EventFullStateSync, models.FullStateSyncPayload{
		SessionID: a.SessionID, Objects: objects, Users: users,
	}, "", "")

	a.broadcastExcept(cmd.SourceUserID, models.EventUserJoined, models.UserJoinedPayload{
		UserID: user.UserID, DisplayName: user.DisplayName, Color: user.ColorRGB,
	}, "", "", cmd.ReceivedAt)
}

// replyJoin reports the accept/reject decision back to the submitting
// Connection Handler, which owns turning a non-nil error into the
// ERROR frame — the same single path every other rejected command
// goes through, so a rejected joiner never gets a doubled frame.
func (a *Actor) replyJoin(cmd Command, err error) {
	if cmd.JoinReply == nil {
		return
	}
	select {
	case cmd.JoinReply <- err:
	default:
	}
}

func (a *Actor) handleLeave(cmd Command) {
	if _, ok := a.state.Users[cmd.SourceUserID]; ok {
		a.userCount.Add(-1)
	}
	a.state.Leave(cmd.SourceUserID)
	delete(a.recipients, cmd.SourceUserID)
	a.broadcastExcept(cmd.SourceUserID, models.EventUserLeft, models.UserLeftPayload{
		UserID: cmd.SourceUserID,
	}, "", "", cmd.ReceivedAt)
}

func (a *Actor) handleSelect(cmd Command) {
	p := cmd.Payload.(models.SelectObjectPayload)
	if err := a.state.Select(cmd.SourceUserID, p.ObjectID); err != nil {
		a.sendError(cmd.From, err)
		return
	}
	a.broadcastExcept(cmd.SourceUserID, models.EventUserSelected, models.UserSelectedPayload{
		UserID: cmd.SourceUserID, ObjectID: p.ObjectID,
	}, "", "", cmd.ReceivedAt)
}

// handleMutation runs one of the five mutating transitions, appends to
// the durable log if accepted and state actually changed, then fans
// out the broadcast (if any) to every recipient but the originator.
func (a *Actor) handleMutation(cmd Command, kind CommandKind, transition func() (Outcome, error)) {
	outcome, err := transition()
	if err != nil {
		a.sendError(cmd.From, err)
		return
	}
	if outcome.Broadcast == nil {
		// Stale LWW update or idempotent no-op delete: not an error,
		// no broadcast, nothing to persist.
		return
	}
	switch kind {
	case KindCreateObject:
		a.objectCount.Add(1)
	case KindDeleteObject:
		a.objectCount.Add(-1)
	}

	if _, err := a.log.Append(kind, cmd.TimestampMs, cmd.SourceUserID, cmd.Payload); err != nil {
		a.logger.Warn("log append failed, durability degraded",
			zap.String("session_id", a.SessionID), zap.Error(err))
	} else if a.log.ShouldCompact() {
		if err := a.log.Snapshot(a.state.SnapshotObjects()); err != nil {
			a.logger.Warn("compaction snapshot failed",
				zap.String("session_id", a.SessionID), zap.Error(err))
		}
	}

	objectID := ""
	if oid, ok := objectIDOf(cmd.Payload); ok {
		objectID = oid
	}
	if kind == KindUpdateTransform {
		a.metrics.TransformUpdate()
	}
	a.broadcastExcept(cmd.SourceUserID, outcome.EventType, outcome.Broadcast, objectID, cmd.SourceUserID, cmd.ReceivedAt)
}

func objectIDOf(payload any) (string, bool) {
	switch p := payload.(type) {
	case models.CreateObjectPayload:
		return p.ObjectID, true
	case models.DeleteObjectPayload:
		return p.ObjectID, true
	case models.UpdateTransformPayload:
		return p.ObjectID, true
	case models.UpdatePropertiesPayload:
		return p.ObjectID, true
	case models.UpdateNamePayload:
		return p.ObjectID, true
	}
	return "", false
}

// broadcastExcept fans a payload out to every recipient except
// excludeUserID, in the actor's mailbox order — the fan-out ordering
// guarantee of §4.C: any two accepted mutations processed in order by
// this actor reach every recipient in that order, because sends happen
// synchronously inside this single-goroutine handler.
func (a *Actor) broadcastExcept(excludeUserID string, eventType models.EventType, payload any, coalesceObjectID, coalesceSourceUserID string, receivedAt time.Time) {
	var dropped []string
	enqueueTime := time.Now()
	for userID, recipient := range a.recipients {
		if userID == excludeUserID {
			continue
		}
		frame := OutFrame{
			Envelope: models.Envelope{
				EventType:    eventType,
				Timestamp:    time.Now().UnixMilli(),
				SourceUserID: coalesceSourceUserID,
				Payload:      payload,
			},
			Coalesce:     coalesceObjectID != "" && eventType == models.EventTransformUpdate,
			ObjectID:     coalesceObjectID,
			SourceUserID: coalesceSourceUserID,
		}
		if !recipient.Send(frame) {
			dropped = append(dropped, userID)
			continue
		}
		a.metrics.MessageOut()
	}
	a.metrics.ObserveFanoutLatency(enqueueTime.Sub(receivedAt))

	for _, userID := range dropped {
		a.dropOverloaded(userID)
	}
}

// dropOverloaded implements the backpressure policy of §4.C: the
// slowest recipient's connection is dropped with OVERLOADED so it can
// never stall the actor's forward progress. Other recipients are
// unaffected.
func (a *Actor) dropOverloaded(userID string) {
	recipient, ok := a.recipients[userID]
	if !ok {
		return
	}
	delete(a.recipients, userID)
	if _, ok := a.state.Users[userID]; ok {
		a.userCount.Add(-1)
	}
	a.state.Leave(userID)
	recipient.Close(models.ErrOverloaded)
	a.logger.Warn("dropped overloaded recipient",
		zap.String("session_id", a.SessionID), zap.String("user_id", userID))

	a.broadcastExcept(userID, models.EventUserLeft, models.UserLeftPayload{UserID: userID}, "", "", time.Now())
}

func (a *Actor) sendTo(r Recipient, eventType models.EventType, payload any, objectID, sourceUserID string) {
	r.Send(OutFrame{
		Envelope: models.Envelope{
			EventType:    eventType,
			Timestamp:    time.Now().UnixMilli(),
			SourceUserID: sourceUserID,
			Payload:      payload,
		},
		ObjectID:     objectID,
		SourceUserID: sourceUserID,
	})
	a.metrics.MessageOut()
}

func (a *Actor) sendError(r Recipient, err error) {
	rej, ok := AsRejection(err)
	if !ok {
		rej = reject(models.ErrMalformed, "%v", err)
	}
	if r == nil {
		a.logger.Warn("rejection with no recipient to notify",
			zap.String("session_id", a.SessionID), zap.String("code", string(rej.Code)))
		return
	}
	a.sendTo(r, models.EventError, models.ErrorPayload{Code: rej.Code, Message: rej.Message}, "", "")
}
