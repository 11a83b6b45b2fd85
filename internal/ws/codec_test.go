package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabgraph/server/internal/models"
)

func TestDecodeFrame_CreateObjectRoundTrips(t *testing.T) {
	raw := []byte(`{
		"event_type": "CREATE_OBJECT",
		"timestamp": 1000,
		"source_user_id": "u1",
		"payload": {
			"object_id": "obj-1",
			"name": "cube",
			"type": "cube",
			"transform": {"position": {"x":1,"y":2,"z":3}, "rotation": {"x":0,"y":0,"z":0}, "scale": {"x":1,"y":1,"z":1}},
			"properties": {}
		}
	}`)

	decoded, err := decodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, models.EventCreateObject, decoded.EventType)
	assert.Equal(t, "u1", decoded.SourceUserID)
	payload, ok := decoded.Payload.(models.CreateObjectPayload)
	require.True(t, ok)
	assert.Equal(t, "obj-1", payload.ObjectID)
	assert.Equal(t, models.KindCube, payload.Type)
	assert.Equal(t, 3.0, payload.Transform.Position.Z)
}

func TestDecodeFrame_UnknownEventTypeIsMalformed(t *testing.T) {
	raw := []byte(`{"event_type": "NOT_A_REAL_EVENT", "payload": {}}`)
	_, err := decodeFrame(raw)
	assert.Error(t, err)
}

func TestDecodeFrame_InvalidJSONIsMalformed(t *testing.T) {
	_, err := decodeFrame([]byte(`{not json`))
	assert.Error(t, err)
}

func TestEncodeFrame_ProducesValidJSON(t *testing.T) {
	raw, err := encodeFrame(models.Envelope{
		EventType: models.EventError,
		Timestamp: 42,
		Payload:   models.ErrorPayload{Code: models.ErrMalformed, Message: "bad frame"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"event_type":"ERROR"`)
	assert.Contains(t, string(raw), "bad frame")
}
