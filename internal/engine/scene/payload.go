package scene

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/scenekit/internal/engine/geometry"
	"github.com/Faultbox/scenekit/internal/engine/material"
	"github.com/Faultbox/scenekit/pkg/math"
)

// Camera holds perspective or orthographic projection parameters. Fov is
// the vertical field of view in degrees.
type Camera struct {
	Fov    float32
	Aspect float32

	Left, Right, Top, Bottom float32

	Near, Far float32
}

// DefaultPerspective matches the defaults of common web engines.
func DefaultPerspective() *Camera {
	return &Camera{Fov: 50, Aspect: 1, Near: 0.1, Far: 2000}
}

// DefaultOrthographic is a unit box camera.
func DefaultOrthographic() *Camera {
	return &Camera{Left: -1, Right: 1, Top: 1, Bottom: -1, Near: 0.1, Far: 2000}
}

// Projection returns the projection matrix for the given kind.
func (c *Camera) Projection(kind Kind) math.Mat4 {
	if kind == KindOrthographicCamera {
		return math.Ortho(c.Left, c.Right, c.Bottom, c.Top, c.Near, c.Far)
	}
	return math.Perspective(c.Fov*math32.Pi/180, c.Aspect, c.Near, c.Far)
}

// DefaultShadowMapSize is the shadow map edge length of new lights.
const DefaultShadowMapSize = 512

// Light holds directional or point light parameters. Distance and Decay
// only apply to point lights.
type Light struct {
	Color         math.Color
	Intensity     float32
	Distance      float32
	Decay         float32
	ShadowMapSize int
}

// Bind modes of skinned meshes.
const (
	BindAttached = "attached"
	BindDetached = "detached"
)

// Mesh references a shared geometry and material. Skinned meshes also carry
// a skeleton and their bind pose.
type Mesh struct {
	Geometry *geometry.Geometry
	Material material.Material

	Skeleton          *Skeleton
	BindMode          string
	BindMatrix        math.Mat4
	BindMatrixInverse math.Mat4
}

// Bind attaches sk using bindMatrix as the bind pose.
func (m *Mesh) Bind(sk *Skeleton, bindMatrix math.Mat4) {
	m.Skeleton = sk
	m.BindMatrix = bindMatrix
	m.BindMatrixInverse = bindMatrix.Inverse()
}

// Skeleton is an ordered bone list with one inverse bind matrix per bone.
// Until it is bound, only UUID is set.
type Skeleton struct {
	UUID         string
	Bones        []*Node
	BoneInverses []math.Mat4
	// BoneMatrices holds one column-major matrix per bone after Update.
	BoneMatrices []float32
}

// NewSkeleton creates an unbound skeleton placeholder.
func NewSkeleton(id string) *Skeleton {
	return &Skeleton{UUID: id}
}

// Init sizes the bone matrix storage. Missing inverses are computed from
// the current bone world matrices.
func (s *Skeleton) Init() {
	s.BoneMatrices = make([]float32, len(s.Bones)*16)
	if len(s.BoneInverses) == len(s.Bones) {
		return
	}
	s.BoneInverses = make([]math.Mat4, len(s.Bones))
	for i, b := range s.Bones {
		s.BoneInverses[i] = b.MatrixWorld.Inverse()
	}
}

// Update recomputes BoneMatrices from the bone world matrices.
func (s *Skeleton) Update() {
	if len(s.BoneMatrices) != len(s.Bones)*16 || len(s.BoneInverses) != len(s.Bones) {
		s.Init()
	}
	for i, b := range s.Bones {
		m := b.MatrixWorld.Mul(s.BoneInverses[i])
		copy(s.BoneMatrices[i*16:(i+1)*16], m[:])
	}
}

// Bone returns the bone with the given id or nil.
func (s *Skeleton) Bone(id string) *Node {
	for _, b := range s.Bones {
		if b.UUID == id {
			return b
		}
	}
	return nil
}
