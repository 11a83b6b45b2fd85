package ws

import (
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/collabgraph/server/internal/models"
)

// rawEnvelope mirrors the wire Envelope but keeps payload undecoded
// until event_type tells us which concrete payload type to decode
// into next.
type rawEnvelope struct {
	EventType    models.EventType `json:"event_type"`
	Timestamp    int64            `json:"timestamp"`
	SourceUserID string           `json:"source_user_id"`
	Payload      json.RawMessage  `json:"payload"`
}

// decoded is one fully-typed inbound frame.
type decoded struct {
	EventType    models.EventType
	Timestamp    int64
	SourceUserID string
	Payload      any
}

// decodeFrame parses one wire frame into a typed command. Any failure
// (bad JSON, unknown event type, payload shape mismatch) is reported
// uniformly as ErrMalformed, matching the protocol-error kind of §7.
func decodeFrame(raw []byte) (decoded, error) {
	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return decoded{}, fmt.Errorf("malformed envelope: %w", err)
	}

	out := decoded{EventType: env.EventType, Timestamp: env.Timestamp, SourceUserID: env.SourceUserID}

	switch env.EventType {
	case models.EventJoinSession:
		var p models.JoinSessionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return decoded{}, fmt.Errorf("malformed JOIN_SESSION payload: %w", err)
		}
		out.Payload = p
	case models.EventLeaveSession:
		out.Payload = struct{}{}
	case models.EventCreateObject:
		var p models.CreateObjectPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return decoded{}, fmt.Errorf("malformed CREATE_OBJECT payload: %w", err)
		}
		out.Payload = p
	case models.EventDeleteObject:
		var p models.DeleteObjectPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return decoded{}, fmt.Errorf("malformed DELETE_OBJECT payload: %w", err)
		}
		out.Payload = p
	case models.EventUpdateTransform:
		var p models.UpdateTransformPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return decoded{}, fmt.Errorf("malformed UPDATE_TRANSFORM payload: %w", err)
		}
		out.Payload = p
	case models.EventUpdateProperties:
		var p models.UpdatePropertiesPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return decoded{}, fmt.Errorf("malformed UPDATE_PROPERTIES payload: %w", err)
		}
		out.Payload = p
	case models.EventUpdateName:
		var p models.UpdateNamePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return decoded{}, fmt.Errorf("malformed UPDATE_NAME payload: %w", err)
		}
		out.Payload = p
	case models.EventSelectObject:
		var p models.SelectObjectPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return decoded{}, fmt.Errorf("malformed SELECT_OBJECT payload: %w", err)
		}
		out.Payload = p
	default:
		return decoded{}, fmt.Errorf("unknown event_type %q", env.EventType)
	}
	return out, nil
}

// encodeFrame serializes an outbound envelope.
func encodeFrame(env models.Envelope) ([]byte, error) {
	return json.Marshal(env)
}
