package document

import (
	"encoding/json"
	"fmt"
)

// Object type tags.
const (
	TypeMesh               = "Mesh"
	TypeSkinnedMesh        = "SkinnedMesh"
	TypeBone               = "Bone"
	TypePerspectiveCamera  = "PerspectiveCamera"
	TypeOrthographicCamera = "OrthographicCamera"
	TypeDirectionalLight   = "DirectionalLight"
	TypePointLight         = "PointLight"
	TypeGroup              = "Group"
	TypeObject3D           = "Object3D"
)

// Object is a node of the serialized object tree.
type Object struct {
	UUID          string          `json:"uuid"`
	Type          string          `json:"type"`
	Name          string          `json:"name"`
	Matrix        []float64       `json:"matrix"`
	Visible       *bool           `json:"visible,omitempty"`
	FrustumCulled *bool           `json:"fustrumCulled,omitempty"`
	CastShadow    *bool           `json:"castShadow,omitempty"`
	ReceiveShadow *bool           `json:"receiveShadow,omitempty"`
	UserData      map[string]any  `json:"userData,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Children      []Object        `json:"children"`
}

// Flag resolves an optional flag; absent means on.
func Flag(p *bool) bool {
	return p == nil || *p
}

// Bool returns a pointer to v, for building objects.
func Bool(v bool) *bool {
	return &v
}

// DecodeData unmarshals the type-specific payload into v.
func (o *Object) DecodeData(v any) error {
	if len(o.Data) == 0 {
		return fmt.Errorf("%w: %s %q has no data", ErrInvalidData, o.Type, o.UUID)
	}
	if err := json.Unmarshal(o.Data, v); err != nil {
		return fmt.Errorf("%w: %s %q: %v", ErrInvalidData, o.Type, o.UUID, err)
	}
	return nil
}

// SetData marshals v as the type-specific payload.
func (o *Object) SetData(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s data: %w", o.Type, err)
	}
	o.Data = raw
	return nil
}

// Walk visits o and its descendants depth-first, parent first.
func (o *Object) Walk(fn func(obj *Object)) {
	fn(o)
	for i := range o.Children {
		o.Children[i].Walk(fn)
	}
}

// MeshData is the payload of Mesh objects.
type MeshData struct {
	Material string `json:"material"`
	Geometry string `json:"geometry"`
}

// SkinnedMeshData is the payload of SkinnedMesh objects.
type SkinnedMeshData struct {
	MeshData
	BindMode   string    `json:"bindMode"`
	BindMatrix []float64 `json:"bindMatrix"`
	Skeleton   string    `json:"skeleton"`
}

// PerspectiveCameraData is the payload of PerspectiveCamera objects.
type PerspectiveCameraData struct {
	Fov    float64 `json:"fov"`
	Aspect float64 `json:"aspect"`
	Near   float64 `json:"near"`
	Far    float64 `json:"far"`
}

// OrthographicCameraData is the payload of OrthographicCamera objects.
type OrthographicCameraData struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Near   float64 `json:"near"`
	Far    float64 `json:"far"`
}

// DirectionalLightData is the payload of DirectionalLight objects.
type DirectionalLightData struct {
	Color     string  `json:"color"`
	Intensity float64 `json:"intensity"`
}

// PointLightData is the payload of PointLight objects.
type PointLightData struct {
	Color     string  `json:"color"`
	Intensity float64 `json:"intensity"`
	Distance  float64 `json:"distance"`
	Decay     float64 `json:"decay"`
}
