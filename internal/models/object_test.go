package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectClone_IsIndependentOfSource(t *testing.T) {
	radius := 2.5
	assetID := "asset-1"
	original := &Object{
		ID:      "obj-1",
		Kind:    KindPointLight,
		AssetID: &assetID,
		Properties: Properties{
			Radius:   &radius,
			ColorRGB: &Vec3{X: 1, Y: 1, Z: 1},
		},
	}

	clone := original.Clone()
	*clone.AssetID = "mutated"
	*clone.Properties.Radius = 99
	clone.Properties.ColorRGB.X = 0

	assert.Equal(t, "asset-1", *original.AssetID)
	assert.Equal(t, 2.5, *original.Properties.Radius)
	assert.Equal(t, 1.0, original.Properties.ColorRGB.X)
}

func TestObjectClone_NilReceiverReturnsNil(t *testing.T) {
	var o *Object
	assert.Nil(t, o.Clone())
}

func TestKindValid(t *testing.T) {
	assert.True(t, KindCube.Valid())
	assert.False(t, Kind("not_a_kind").Valid())
}
