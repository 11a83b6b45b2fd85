package ws

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/collabgraph/server/internal/collab"
	"github.com/collabgraph/server/internal/models"
	"github.com/collabgraph/server/internal/telemetry"
)

const (
	// pingInterval and pongWait implement the §5 idle-connection
	// timeout policy: a ping is sent every 120s, whether or not other
	// traffic is flowing, and the read deadline (reset only by a pong)
	// closes the connection when no pong has arrived within 150s.
	pingInterval = 120 * time.Second
	pongWait     = 30 * time.Second

	// messageRatePerSecond is the §4.D token bucket rate; burst equals
	// one second's worth so a client can legitimately send a full
	// second's allotment back to back after being idle.
	messageRatePerSecond = 100
)

// Connection is one Connection Handler task (§4.D): it owns exactly
// one websocket, resolves identity at JOIN time, parses and
// rate-limits inbound frames, routes them to the owning Session Actor,
// and drains its own egress queue into the socket. It implements
// collab.Recipient so the actor can address it directly.
type Connection struct {
	id       string
	conn     *websocket.Conn
	registry *collab.Registry
	metrics  *telemetry.Metrics
	logger   *zap.Logger

	limiter *rate.Limiter
	egress  *egressQueue

	joined    bool
	sessionID string
	userID    string
	actor     *collab.Actor

	closeOnce chan struct{}
}

// NewConnection wraps an already-upgraded websocket connection.
func NewConnection(conn *websocket.Conn, registry *collab.Registry, metrics *telemetry.Metrics, logger *zap.Logger) *Connection {
	return &Connection{
		id:        uuid.NewString(),
		conn:      conn,
		registry:  registry,
		metrics:   metrics,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(messageRatePerSecond), messageRatePerSecond),
		egress:    newEgressQueue(),
		closeOnce: make(chan struct{}),
	}
}

// UserID implements collab.Recipient.
func (c *Connection) UserID() string { return c.userID }

// Send implements collab.Recipient: enqueues frame for the write pump,
// returning false if the bounded queue was saturated.
func (c *Connection) Send(frame collab.OutFrame) bool {
	return c.egress.push(frame)
}

// Close implements collab.Recipient: sends a final ERROR frame with
// code, then tears down the connection. Safe to call more than once
// and safe to call concurrently with the connection's own goroutines.
func (c *Connection) Close(code models.ErrorCode) {
	select {
	case <-c.closeOnce:
		return
	default:
	}
	frame, err := encodeFrame(models.Envelope{
		EventType: models.EventError,
		Timestamp: time.Now().UnixMilli(),
		Payload:   models.ErrorPayload{Code: code, Message: string(code)},
	})
	if err == nil {
		_ = c.conn.WriteMessage(websocket.TextMessage, frame)
	}
	c.teardown()
}

func (c *Connection) teardown() {
	select {
	case <-c.closeOnce:
		return
	default:
		close(c.closeOnce)
	}
	c.egress.close()
	_ = c.conn.Close()
}

// Serve runs the connection's read pump and write pump until the
// socket closes, then issues a synthetic LEAVE to its Session Actor so
// presence is cleaned up (§4.D). Panics inside either pump are
// recovered and converted into a closed connection rather than a
// crashed process, per §7.
func (c *Connection) Serve() {
	defer c.onDisconnect()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer c.recoverPanic("write pump")
		c.writePump()
	}()

	func() {
		defer c.recoverPanic("read pump")
		c.readPump()
	}()

	c.teardown()
	<-writerDone
}

func (c *Connection) recoverPanic(where string) {
	if r := recover(); r != nil {
		c.logger.Error("recovered panic in connection handler",
			zap.String("where", where), zap.Any("panic", r), zap.String("connection_id", c.id), zap.Stack("stack"))
		c.teardown()
	}
}

func (c *Connection) onDisconnect() {
	if c.joined && c.actor != nil {
		c.actor.Submit(collab.Command{
			Kind:         models.EventLeaveSession,
			SourceUserID: c.userID,
			TimestampMs:  time.Now().UnixMilli(),
			From:         c,
			ReceivedAt:   time.Now(),
		})
	}
	c.metrics.ConnectionClosed()
}

func (c *Connection) readPump() {
	c.metrics.ConnectionOpened()
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err), zap.String("connection_id", c.id))
			}
			return
		}

		if !c.limiter.Allow() {
			c.sendErrorFrame(models.ErrRateLimited, "message rate exceeded")
			c.Close(models.ErrRateLimited)
			return
		}

		if err := c.handleFrame(raw); err != nil {
			var rej *collab.RejectionError
			if errors.As(err, &rej) {
				c.sendErrorFrame(rej.Code, rej.Message)
				continue
			}
			c.sendErrorFrame(models.ErrMalformed, err.Error())
		}
	}
}

func (c *Connection) handleFrame(raw []byte) error {
	frame, err := decodeFrame(raw)
	if err != nil {
		return &collab.RejectionError{Code: models.ErrMalformed, Message: err.Error()}
	}

	if frame.EventType == models.EventJoinSession {
		return c.handleJoin(frame)
	}

	if !c.joined {
		return collab.ErrNotJoined
	}
	if frame.SourceUserID != "" && frame.SourceUserID != c.userID {
		return collab.ErrIdentityMismatch
	}

	c.actor.Submit(collab.Command{
		Kind:         frame.EventType,
		SourceUserID: c.userID,
		TimestampMs:  frame.Timestamp,
		Payload:      frame.Payload,
		From:         c,
		ReceivedAt:   time.Now(),
	})
	return nil
}

func (c *Connection) handleJoin(frame decoded) error {
	if c.joined {
		return &collab.RejectionError{Code: models.ErrIdentityMismatch, Message: "already joined on this connection"}
	}
	p := frame.Payload.(models.JoinSessionPayload)
	if frame.SourceUserID == "" {
		return &collab.RejectionError{Code: models.ErrMalformed, Message: "source_user_id is required to join"}
	}

	err := c.registry.JoinOrCreate(p.SessionID, frame.SourceUserID, p.DisplayName, c, frame.Timestamp)
	if err != nil {
		return err
	}
	actor, _ := c.registry.Lookup(p.SessionID)
	c.actor = actor
	c.sessionID = p.SessionID
	c.userID = frame.SourceUserID
	c.joined = true
	return nil
}

func (c *Connection) sendErrorFrame(code models.ErrorCode, message string) {
	frame, err := encodeFrame(models.Envelope{
		EventType: models.EventError,
		Timestamp: time.Now().UnixMilli(),
		Payload:   models.ErrorPayload{Code: code, Message: message},
	})
	if err != nil {
		return
	}
	_ = c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeOnce:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-c.egress.notify:
			for {
				frame, ok := c.egress.pop()
				if !ok {
					break
				}
				raw, err := encodeFrame(frame.Envelope)
				if err != nil {
					continue
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
					return
				}
				c.metrics.MessageOut()
			}
		}
	}
}
