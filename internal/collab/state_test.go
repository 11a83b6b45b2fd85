package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabgraph/server/internal/models"
)

func newTestObject(id string) models.CreateObjectPayload {
	return models.CreateObjectPayload{
		ObjectID: id,
		Name:     "cube-1",
		Type:     models.KindCube,
		Transform: models.Transform{
			Position: models.Vec3{X: 1, Y: 2, Z: 3},
			Scale:    models.Vec3{X: 1, Y: 1, Z: 1},
		},
	}
}

func TestCreateObject_DuplicateRejected(t *testing.T) {
	s := NewState()
	_, err := s.CreateObject(newTestObject("obj-1"), "u1", 100)
	require.NoError(t, err)

	_, err = s.CreateObject(newTestObject("obj-1"), "u2", 200)
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrDuplicateObject, rej.Code)
}

func TestCreateObject_UnrecognizedKindRejected(t *testing.T) {
	s := NewState()
	p := newTestObject("obj-1")
	p.Type = models.Kind("not_a_kind")

	_, err := s.CreateObject(p, "u1", 100)
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrMalformed, rej.Code)
	assert.Empty(t, s.Objects)
}

func TestCreateObject_AssetIDWithoutAssetRefKindRejected(t *testing.T) {
	s := NewState()
	p := newTestObject("obj-1")
	assetID := "asset-1"
	p.AssetID = &assetID

	_, err := s.CreateObject(p, "u1", 100)
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrMalformed, rej.Code)
	assert.Empty(t, s.Objects)
}

func TestCreateObject_AssetRefKindWithoutAssetIDRejected(t *testing.T) {
	s := NewState()
	p := newTestObject("obj-1")
	p.Type = models.KindAssetRef

	_, err := s.CreateObject(p, "u1", 100)
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrMalformed, rej.Code)
	assert.Empty(t, s.Objects)
}

func TestCreateObject_AssetRefKindWithAssetIDAccepted(t *testing.T) {
	s := NewState()
	p := newTestObject("obj-1")
	p.Type = models.KindAssetRef
	assetID := "asset-1"
	p.AssetID = &assetID

	_, err := s.CreateObject(p, "u1", 100)
	require.NoError(t, err)
	assert.Equal(t, "asset-1", *s.Objects["obj-1"].AssetID)
}

func TestDeleteObject_MissingIsIdempotentNoBroadcast(t *testing.T) {
	s := NewState()
	outcome, err := s.DeleteObject(models.DeleteObjectPayload{ObjectID: "ghost"}, "u1")
	require.NoError(t, err)
	assert.Nil(t, outcome.Broadcast)
}

func TestUpdateTransform_UnknownObjectRejected(t *testing.T) {
	s := NewState()
	_, err := s.UpdateTransform(models.UpdateTransformPayload{ObjectID: "ghost"}, "u1", 100)
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrUnknownObject, rej.Code)
}

func TestUpdateTransform_LastWriteWins(t *testing.T) {
	s := NewState()
	_, err := s.CreateObject(newTestObject("obj-1"), "u1", 100)
	require.NoError(t, err)

	newer := models.Transform{Position: models.Vec3{X: 9, Y: 9, Z: 9}}
	outcome, err := s.UpdateTransform(models.UpdateTransformPayload{ObjectID: "obj-1", Transform: newer}, "u2", 500)
	require.NoError(t, err)
	require.NotNil(t, outcome.Broadcast)
	assert.Equal(t, models.EventTransformUpdate, outcome.EventType)
	assert.Equal(t, newer, s.Objects["obj-1"].Transform)
	assert.EqualValues(t, 500, s.Objects["obj-1"].LastUpdatedAt)
}

func TestUpdateTransform_StaleTimestampDiscardedSilently(t *testing.T) {
	s := NewState()
	_, err := s.CreateObject(newTestObject("obj-1"), "u1", 500)
	require.NoError(t, err)

	stale := models.Transform{Position: models.Vec3{X: 42, Y: 42, Z: 42}}
	outcome, err := s.UpdateTransform(models.UpdateTransformPayload{ObjectID: "obj-1", Transform: stale}, "u2", 100)
	require.NoError(t, err)
	assert.Nil(t, outcome.Broadcast)
	// state is untouched: the stale write never applied.
	assert.NotEqual(t, stale, s.Objects["obj-1"].Transform)
}

func TestUpdateTransform_EqualTimestampFavorsEarlierApplied(t *testing.T) {
	s := NewState()
	_, err := s.CreateObject(newTestObject("obj-1"), "u1", 500)
	require.NoError(t, err)

	first := models.Transform{Position: models.Vec3{X: 1, Y: 1, Z: 1}}
	outcome, err := s.UpdateTransform(models.UpdateTransformPayload{ObjectID: "obj-1", Transform: first}, "u2", 700)
	require.NoError(t, err)
	require.NotNil(t, outcome.Broadcast)

	tie := models.Transform{Position: models.Vec3{X: 2, Y: 2, Z: 2}}
	outcome, err = s.UpdateTransform(models.UpdateTransformPayload{ObjectID: "obj-1", Transform: tie}, "u3", 700)
	require.NoError(t, err)
	assert.Nil(t, outcome.Broadcast, "equal timestamp must lose to the already-applied value")
	assert.Equal(t, first, s.Objects["obj-1"].Transform)
}

func TestJoin_DuplicateUserRejected(t *testing.T) {
	s := NewState()
	_, err := s.Join("u1", "Ada", 100)
	require.NoError(t, err)

	_, err = s.Join("u1", "Ada again", 200)
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrDuplicateUser, rej.Code)
}

func TestJoin_ColorAssignedFromPaletteBySeat(t *testing.T) {
	s := NewState()
	u1, err := s.Join("u1", "Ada", 100)
	require.NoError(t, err)
	u2, err := s.Join("u2", "Bea", 200)
	require.NoError(t, err)

	assert.Equal(t, models.Palette[0], u1.ColorRGB)
	assert.Equal(t, models.Palette[1], u2.ColorRGB)
}

func TestLeave_ThenSelectRejectsNotJoined(t *testing.T) {
	s := NewState()
	_, err := s.Join("u1", "Ada", 100)
	require.NoError(t, err)
	s.Leave("u1")

	oid := "obj-1"
	err = s.Select("u1", &oid)
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.ErrNotJoined, rej.Code)
}

func TestFullSync_ReturnsDeepCopies(t *testing.T) {
	s := NewState()
	_, err := s.CreateObject(newTestObject("obj-1"), "u1", 100)
	require.NoError(t, err)
	_, err = s.Join("u1", "Ada", 100)
	require.NoError(t, err)

	objs, users := s.FullSync()
	objs["obj-1"].Name = "mutated"
	users["u1"].DisplayName = "mutated"

	assert.Equal(t, "cube-1", s.Objects["obj-1"].Name)
	assert.Equal(t, "Ada", s.Users["u1"].DisplayName)
}
