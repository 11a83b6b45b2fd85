// Package models defines the wire-visible and canonical data types shared
// across the collaboration engine: scene objects, users, transforms, and
// the kind-specific property records.
package models

// Kind identifies the type-specific shape of an Object's Properties.
type Kind string

const (
	KindCube       Kind = "cube"
	KindSphere     Kind = "sphere"
	KindCylinder   Kind = "cylinder"
	KindCamera     Kind = "camera"
	KindPointLight Kind = "point_light"
	KindSunLight   Kind = "sun_light"
	KindAssetRef   Kind = "asset_ref"
)

// Valid reports whether k is one of the fixed set of object kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCube, KindSphere, KindCylinder, KindCamera, KindPointLight, KindSunLight, KindAssetRef:
		return true
	}
	return false
}

// Vec3 is a triple of double-precision floats: a position, an Euler
// rotation in radians, or a scale, depending on context.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Transform is the spatial pose of an Object.
type Transform struct {
	Position Vec3 `json:"position"`
	Rotation Vec3 `json:"rotation"`
	Scale    Vec3 `json:"scale"`
}

// Properties is the tagged, kind-specific record attached to an Object.
// Only the fields relevant to the Object's Kind are populated; the rest
// stay at their zero value and are omitted on the wire.
type Properties struct {
	// camera
	FocalLengthMM *float64 `json:"focal_length_mm,omitempty"`
	SensorWidthMM *float64 `json:"sensor_width_mm,omitempty"`
	ClipStart     *float64 `json:"clip_start,omitempty"`
	ClipEnd       *float64 `json:"clip_end,omitempty"`

	// point_light and sun_light
	ColorRGB *Vec3 `json:"color_rgb,omitempty"`

	// point_light
	PowerWatts *float64 `json:"power_watts,omitempty"`
	Radius     *float64 `json:"radius,omitempty"`

	// sun_light
	Intensity *float64 `json:"intensity,omitempty"`
	AngleRad  *float64 `json:"angle_rad,omitempty"`
}

// Object is a single node of the shared scene graph. ID is a stable
// 128-bit identifier minted by the creating client; the server never
// generates one and never reuses one after deletion.
type Object struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Kind          Kind       `json:"type"`
	AssetID       *string    `json:"asset_id,omitempty"`
	AssetLibrary  *string    `json:"asset_library,omitempty"`
	Transform     Transform  `json:"transform"`
	Properties    Properties `json:"properties"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     int64      `json:"created_at"`
	LastUpdatedBy string     `json:"last_updated_by"`
	LastUpdatedAt int64      `json:"last_updated_at"`
}

// Clone returns a deep copy of the Object so callers holding a reference
// into Session State cannot mutate canonical state through it.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	cp := *o
	if o.AssetID != nil {
		id := *o.AssetID
		cp.AssetID = &id
	}
	if o.AssetLibrary != nil {
		lib := *o.AssetLibrary
		cp.AssetLibrary = &lib
	}
	cp.Properties = o.Properties.clone()
	return &cp
}

func (p Properties) clone() Properties {
	cp := p
	cloneF := func(f *float64) *float64 {
		if f == nil {
			return nil
		}
		v := *f
		return &v
	}
	cp.FocalLengthMM = cloneF(p.FocalLengthMM)
	cp.SensorWidthMM = cloneF(p.SensorWidthMM)
	cp.ClipStart = cloneF(p.ClipStart)
	cp.ClipEnd = cloneF(p.ClipEnd)
	cp.PowerWatts = cloneF(p.PowerWatts)
	cp.Radius = cloneF(p.Radius)
	cp.Intensity = cloneF(p.Intensity)
	cp.AngleRad = cloneF(p.AngleRad)
	if p.ColorRGB != nil {
		c := *p.ColorRGB
		cp.ColorRGB = &c
	}
	return cp
}
