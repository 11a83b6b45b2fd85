package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabgraph/server/internal/collab"
	"github.com/collabgraph/server/internal/models"
)

func transformFrame(objectID, sourceUserID string, x float64) collab.OutFrame {
	return collab.OutFrame{
		Envelope: models.Envelope{
			EventType: models.EventTransformUpdate,
			Payload:   models.TransformUpdatedPayload{ObjectID: objectID, Transform: models.Transform{Position: models.Vec3{X: x}}},
		},
		Coalesce:     true,
		ObjectID:     objectID,
		SourceUserID: sourceUserID,
	}
}

func TestEgressQueue_CoalescesSameObjectAndSourceTransform(t *testing.T) {
	q := newEgressQueue()
	require.True(t, q.push(transformFrame("obj-1", "u1", 1)))
	require.True(t, q.push(transformFrame("obj-1", "u1", 2)))
	require.True(t, q.push(transformFrame("obj-1", "u1", 3)))

	frame, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, 3.0, frame.Envelope.Payload.(models.TransformUpdatedPayload).Transform.Position.X,
		"only the latest queued transform for this (object, source) pair should remain")

	_, ok = q.pop()
	assert.False(t, ok, "coalescing must not grow the queue")
}

func TestEgressQueue_DoesNotCoalesceAcrossDifferentObjects(t *testing.T) {
	q := newEgressQueue()
	require.True(t, q.push(transformFrame("obj-1", "u1", 1)))
	require.True(t, q.push(transformFrame("obj-2", "u1", 2)))

	first, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "obj-1", first.ObjectID)

	second, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "obj-2", second.ObjectID)
}

func TestEgressQueue_FullQueueRejectsPush(t *testing.T) {
	q := newEgressQueue()
	for i := 0; i < egressCapacity; i++ {
		frame := collab.OutFrame{Envelope: models.Envelope{EventType: models.EventObjectCreated}}
		require.True(t, q.push(frame))
	}
	overflow := collab.OutFrame{Envelope: models.Envelope{EventType: models.EventObjectCreated}}
	assert.False(t, q.push(overflow))
}

func TestEgressQueue_ClosedQueueRejectsPush(t *testing.T) {
	q := newEgressQueue()
	q.close()
	assert.False(t, q.push(collab.OutFrame{}))
}
