package scene

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/scenekit/internal/engine/geometry"
	"github.com/Faultbox/scenekit/internal/engine/material"
	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/document"
	"github.com/Faultbox/scenekit/pkg/math"
)

// ErrUnknownType is reported for descriptors whose type tag has no
// constructor. Such descriptors and their children are not built.
var ErrUnknownType = errors.New("unknown object type")

// GeometrySource looks up assembled geometries.
type GeometrySource interface {
	Get(id string) *geometry.Geometry
}

// MaterialSource looks up registered materials. Get never returns nil.
type MaterialSource interface {
	Get(id string) material.Material
	Has(id string) bool
}

type constructor func(b *Builder, obj *document.Object) *Node

var constructors = map[Kind]constructor{
	KindObject3D:           plain(KindObject3D),
	KindGroup:              plain(KindGroup),
	KindBone:               plain(KindBone),
	KindMesh:               newMesh,
	KindSkinnedMesh:        newSkinnedMesh,
	KindPerspectiveCamera:  newPerspectiveCamera,
	KindOrthographicCamera: newOrthographicCamera,
	KindDirectionalLight:   newLight(KindDirectionalLight),
	KindPointLight:         newLight(KindPointLight),
}

// Builder turns object descriptors into live nodes. Geometries and
// materials must be fully available before Build runs.
type Builder struct {
	geometries GeometrySource
	materials  MaterialSource

	placeholders map[string]*geometry.Geometry
	errs         error
}

// NewBuilder creates a builder resolving meshes against the given sources.
func NewBuilder(geometries GeometrySource, materials MaterialSource) *Builder {
	return &Builder{geometries: geometries, materials: materials}
}

// Build constructs the node tree depth-first, parent first, and returns
// the top-level nodes with their world matrices refreshed. Problems with
// individual descriptors are logged and returned together; they never stop
// the rest of the tree from being built. Skeletons are left unbound, see
// BindSkeletons.
func (b *Builder) Build(objects []document.Object) ([]*Node, error) {
	b.errs = nil
	b.placeholders = map[string]*geometry.Geometry{}

	roots := b.build(objects, nil)
	for _, r := range roots {
		r.UpdateMatrixWorld()
	}
	return roots, b.errs
}

func (b *Builder) build(objects []document.Object, parent *Node) []*Node {
	var roots []*Node
	for i := range objects {
		obj := &objects[i]

		kind, ok := KindOf(obj.Type)
		if !ok {
			b.fail(obj, fmt.Errorf("%w: %q", ErrUnknownType, obj.Type))
			continue
		}
		n := constructors[kind](b, obj)
		applyBasics(obj, n)

		if parent != nil {
			parent.Add(n)
		} else {
			roots = append(roots, n)
		}
		b.build(obj.Children, n)
	}
	return roots
}

func (b *Builder) fail(obj *document.Object, err error) {
	logger.Warn("object not fully built",
		zap.String("object", obj.UUID), zap.String("type", obj.Type), zap.Error(err))
	b.errs = multierr.Append(b.errs, err)
}

func applyBasics(obj *document.Object, n *Node) {
	n.ApplyMatrix(math.FromArray(obj.Matrix))
	n.UUID = obj.UUID
	n.Name = obj.Name
	n.Visible = document.Flag(obj.Visible)
	n.FrustumCulled = document.Flag(obj.FrustumCulled)
	n.CastShadow = document.Flag(obj.CastShadow)
	n.ReceiveShadow = document.Flag(obj.ReceiveShadow)
	for k, v := range obj.UserData {
		n.UserData[k] = v
	}
	n.UserData["selectable"] = true
	n.UpdateMatrixWorld()
}

func plain(kind Kind) constructor {
	return func(*Builder, *document.Object) *Node {
		return NewNode(kind)
	}
}

func (b *Builder) mesh(obj *document.Object, data document.MeshData) *Mesh {
	g := b.geometries.Get(data.Geometry)
	if g == nil {
		b.fail(obj, fmt.Errorf("%w: geometry %q", document.ErrDanglingReference, data.Geometry))
		g = b.placeholders[data.Geometry]
		if g == nil {
			g = geometry.New(data.Geometry)
			b.placeholders[data.Geometry] = g
		}
	}
	if !b.materials.Has(data.Material) {
		b.fail(obj, fmt.Errorf("%w: material %q", document.ErrDanglingReference, data.Material))
	}
	return &Mesh{
		Geometry:          g,
		Material:          b.materials.Get(data.Material),
		BindMatrix:        math.Identity(),
		BindMatrixInverse: math.Identity(),
	}
}

func newMesh(b *Builder, obj *document.Object) *Node {
	var data document.MeshData
	if err := obj.DecodeData(&data); err != nil {
		b.fail(obj, err)
	}
	n := NewNode(KindMesh)
	n.Mesh = b.mesh(obj, data)
	return n
}

func newSkinnedMesh(b *Builder, obj *document.Object) *Node {
	var data document.SkinnedMeshData
	if err := obj.DecodeData(&data); err != nil {
		b.fail(obj, err)
	}
	n := NewNode(KindSkinnedMesh)
	n.Mesh = b.mesh(obj, data.MeshData)
	n.Mesh.Skeleton = NewSkeleton(data.Skeleton)
	n.Mesh.BindMode = data.BindMode
	if n.Mesh.BindMode == "" {
		n.Mesh.BindMode = BindAttached
	}
	n.Mesh.BindMatrix = math.FromArray(data.BindMatrix)
	n.Mesh.BindMatrixInverse = n.Mesh.BindMatrix.Inverse()
	return n
}

func newPerspectiveCamera(b *Builder, obj *document.Object) *Node {
	n := NewNode(KindPerspectiveCamera)
	n.Camera = DefaultPerspective()
	data := document.PerspectiveCameraData{Fov: 50, Aspect: 1, Near: 0.1, Far: 2000}
	if err := obj.DecodeData(&data); err != nil {
		b.fail(obj, err)
		return n
	}
	n.Camera.Fov = float32(data.Fov)
	n.Camera.Aspect = float32(data.Aspect)
	n.Camera.Near = float32(data.Near)
	n.Camera.Far = float32(data.Far)
	return n
}

func newOrthographicCamera(b *Builder, obj *document.Object) *Node {
	n := NewNode(KindOrthographicCamera)
	n.Camera = DefaultOrthographic()
	data := document.OrthographicCameraData{Left: -1, Right: 1, Top: 1, Bottom: -1, Near: 0.1, Far: 2000}
	if err := obj.DecodeData(&data); err != nil {
		b.fail(obj, err)
		return n
	}
	n.Camera.Left = float32(data.Left)
	n.Camera.Right = float32(data.Right)
	n.Camera.Top = float32(data.Top)
	n.Camera.Bottom = float32(data.Bottom)
	n.Camera.Near = float32(data.Near)
	n.Camera.Far = float32(data.Far)
	return n
}

func newLight(kind Kind) constructor {
	return func(b *Builder, obj *document.Object) *Node {
		n := NewNode(kind)
		n.Light = &Light{Color: math.Color{R: 1, G: 1, B: 1}, Intensity: 1, Decay: 2, ShadowMapSize: DefaultShadowMapSize}

		data := document.PointLightData{Color: "ffffff", Intensity: 1, Decay: 2}
		if err := obj.DecodeData(&data); err != nil {
			b.fail(obj, err)
			return n
		}
		if c, err := math.ColorFromHex(data.Color); err != nil {
			b.fail(obj, err)
		} else {
			n.Light.Color = c
		}
		n.Light.Intensity = float32(data.Intensity)
		if kind == KindPointLight {
			n.Light.Distance = float32(data.Distance)
			n.Light.Decay = float32(data.Decay)
		}
		return n
	}
}
