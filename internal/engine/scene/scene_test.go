package scene

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/scenekit/internal/engine/geometry"
	"github.com/Faultbox/scenekit/internal/engine/material"
	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/buffer"
	"github.com/Faultbox/scenekit/pkg/document"
	"github.com/Faultbox/scenekit/pkg/math"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	t.Cleanup(logger.Set(zap.New(core)))
	return logs
}

func object(t *testing.T, id, typ string, data any, children ...document.Object) document.Object {
	t.Helper()
	obj := document.Object{
		UUID:     id,
		Type:     typ,
		Name:     id,
		Matrix:   math.Identity().ToArray(),
		Children: children,
	}
	if data != nil {
		require.NoError(t, obj.SetData(data))
	}
	return obj
}

func libraries(t *testing.T) (*geometry.Library, *material.Library) {
	t.Helper()
	geoms := geometry.NewLibrary()
	require.NoError(t, geoms.Build(map[string]document.GeometryData{
		"tri": {
			Attributes: map[string]document.AttributeData{
				"position": {ItemSize: 3, Type: buffer.TypeFloat32, Data: document.AttributeSource{Values: []float64{0, 0, 0, 1, 0, 0, 0, 1, 0}}},
			},
			Index: document.IndexData{Type: buffer.TypeUint16, Data: []float64{0, 1, 2}},
		},
	}))
	mats := material.NewLibrary()
	mats.Register("red", document.MaterialDefinition{Type: material.TagStandard, Data: map[string]any{"color": "ff0000"}}, nil)
	return geoms, mats
}

func TestBuildSharesGeometryAndMaterial(t *testing.T) {
	geoms, mats := libraries(t)
	mesh := document.MeshData{Geometry: "tri", Material: "red"}

	roots, err := NewBuilder(geoms, mats).Build([]document.Object{
		object(t, "a", document.TypeMesh, mesh),
		object(t, "b", document.TypeMesh, mesh),
	})
	require.NoError(t, err)
	require.Len(t, roots, 2)

	assert.Same(t, roots[0].Mesh.Geometry, roots[1].Mesh.Geometry)
	assert.Same(t, geoms.Get("tri"), roots[0].Mesh.Geometry)
	assert.Same(t, roots[0].Mesh.Material, roots[1].Mesh.Material)
	assert.Same(t, mats.Get("red"), roots[0].Mesh.Material)
}

func TestBuildTransformsAndFlags(t *testing.T) {
	geoms, mats := libraries(t)

	child := object(t, "child", document.TypeObject3D, nil)
	child.Matrix = math.Translate(0, 2, 0).ToArray()
	child.Visible = document.Bool(false)
	child.CastShadow = document.Bool(false)
	child.UserData = map[string]any{"tag": "x"}

	root := object(t, "root", document.TypeGroup, nil, child)
	root.Matrix = math.Translate(1, 0, 0).ToArray()

	roots, err := NewBuilder(geoms, mats).Build([]document.Object{root})
	require.NoError(t, err)
	require.Len(t, roots, 1)

	r := roots[0]
	assert.Equal(t, KindGroup, r.Kind)
	assert.Equal(t, "root", r.UUID)
	assert.True(t, r.Visible)
	assert.True(t, r.FrustumCulled)
	assert.True(t, r.CastShadow)
	assert.True(t, r.ReceiveShadow)
	assert.Equal(t, math.Vec3{X: 1}, r.Position)

	require.Len(t, r.Children, 1)
	c := r.Children[0]
	assert.Same(t, r, c.Parent)
	assert.False(t, c.Visible)
	assert.False(t, c.CastShadow)
	assert.True(t, c.ReceiveShadow)
	assert.Equal(t, "x", c.UserData["tag"])
	assert.Equal(t, true, c.UserData["selectable"])
	assert.Equal(t, math.Vec3{X: 1, Y: 2}, c.WorldPosition())
	assert.True(t, c.MatrixAutoUpdate)
}

func TestBuildSkipsUnknownType(t *testing.T) {
	logs := observe(t)
	geoms, mats := libraries(t)

	roots, err := NewBuilder(geoms, mats).Build([]document.Object{
		object(t, "ok", document.TypeGroup, nil),
		object(t, "alien", "Sprite", nil, object(t, "orphan", document.TypeGroup, nil)),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownType))
	require.Len(t, roots, 1)
	assert.Nil(t, roots[0].FindByID("orphan"))
	assert.Equal(t, 1, logs.FilterMessage("object not fully built").Len())
}

func TestBuildDanglingReferences(t *testing.T) {
	observe(t)
	geoms, mats := libraries(t)

	roots, err := NewBuilder(geoms, mats).Build([]document.Object{
		object(t, "a", document.TypeMesh, document.MeshData{Geometry: "nope", Material: "missing"}),
		object(t, "b", document.TypeMesh, document.MeshData{Geometry: "nope", Material: "red"}),
	})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)
	assert.True(t, errors.Is(err, document.ErrDanglingReference))

	require.Len(t, roots, 2)
	assert.Same(t, material.Fallback(), roots[0].Mesh.Material)
	assert.Equal(t, "nope", roots[0].Mesh.Geometry.UUID)
	assert.Same(t, roots[0].Mesh.Geometry, roots[1].Mesh.Geometry)
}

func TestBuildCamerasAndLights(t *testing.T) {
	geoms, mats := libraries(t)

	roots, err := NewBuilder(geoms, mats).Build([]document.Object{
		object(t, "persp", document.TypePerspectiveCamera, document.PerspectiveCameraData{Fov: 75, Aspect: 2, Near: 0.5, Far: 100}),
		object(t, "ortho", document.TypeOrthographicCamera, document.OrthographicCameraData{Left: -5, Right: 5, Top: 3, Bottom: -3, Near: 1, Far: 10}),
		object(t, "sun", document.TypeDirectionalLight, document.DirectionalLightData{Color: "ffcc00", Intensity: 2}),
		object(t, "bulb", document.TypePointLight, map[string]any{"color": "00ff00", "intensity": 3, "distance": 20}),
	})
	require.NoError(t, err)
	require.Len(t, roots, 4)

	assert.Equal(t, float32(75), roots[0].Camera.Fov)
	assert.Equal(t, float32(2), roots[0].Camera.Aspect)
	assert.Equal(t, float32(-5), roots[1].Camera.Left)
	assert.Equal(t, float32(10), roots[1].Camera.Far)
	assert.InDelta(t, 0.2, roots[1].Camera.Projection(KindOrthographicCamera)[0], 1e-6)

	assert.Equal(t, "ffcc00", roots[2].Light.Color.Hex())
	assert.Equal(t, float32(2), roots[2].Light.Intensity)

	assert.Equal(t, "00ff00", roots[3].Light.Color.Hex())
	assert.Equal(t, float32(20), roots[3].Light.Distance)
	assert.Equal(t, float32(2), roots[3].Light.Decay)
}

func TestBindSkeletons(t *testing.T) {
	logs := observe(t)
	geoms, mats := libraries(t)

	skinned := object(t, "skin", document.TypeSkinnedMesh, document.SkinnedMeshData{
		MeshData:   document.MeshData{Geometry: "tri", Material: "red"},
		Skeleton:   "sk",
		BindMode:   BindAttached,
		BindMatrix: math.Translate(0, 1, 0).ToArray(),
	})
	// The mesh comes first; its bones are built later in the traversal.
	hip := object(t, "hip", document.TypeBone, nil, object(t, "knee", document.TypeBone, nil))

	roots, err := NewBuilder(geoms, mats).Build([]document.Object{skinned, hip})
	require.NoError(t, err)

	mesh := roots[0].Mesh
	require.NotNil(t, mesh.Skeleton)
	assert.Equal(t, "sk", mesh.Skeleton.UUID)
	assert.Empty(t, mesh.Skeleton.Bones)

	inv := math.Translate(0, -1, 0).ToArray()
	err = BindSkeletons(roots, map[string]document.SkeletonData{
		"sk": {
			Bones:        []string{"hip", "ghost", "knee"},
			BoneInverses: [][]float64{inv, inv, inv},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, document.ErrDanglingReference))

	sk := mesh.Skeleton
	require.Len(t, sk.Bones, 3)
	require.Len(t, sk.BoneInverses, 3)
	assert.Same(t, roots[1], sk.Bones[0])
	assert.Same(t, roots[1].Children[0], sk.Bones[2])
	assert.Equal(t, "ghost", sk.Bones[1].UUID)
	assert.Equal(t, KindBone, sk.Bones[1].Kind)
	assert.Nil(t, sk.Bones[1].Parent)
	assert.Equal(t, math.Translate(0, -1, 0), sk.BoneInverses[1])
	assert.Len(t, sk.BoneMatrices, 48)

	assert.Equal(t, math.Translate(0, 1, 0), mesh.BindMatrix)
	assert.True(t, mesh.BindMatrixInverse.ApproxEqual(math.Translate(0, -1, 0), 1e-6))
	assert.Equal(t, 1, logs.FilterMessage("skeleton repaired").Len())
}

func TestBindSkeletonsLengthMismatch(t *testing.T) {
	observe(t)
	geoms, mats := libraries(t)
	roots, err := NewBuilder(geoms, mats).Build([]document.Object{
		object(t, "skin", document.TypeSkinnedMesh, document.SkinnedMeshData{
			MeshData: document.MeshData{Geometry: "tri", Material: "red"},
			Skeleton: "sk",
		}),
		object(t, "a", document.TypeBone, nil),
		object(t, "b", document.TypeBone, nil),
	})
	require.NoError(t, err)

	err = BindSkeletons(roots, map[string]document.SkeletonData{
		"sk": {Bones: []string{"a", "b"}, BoneInverses: [][]float64{math.Scale(2, 2, 2).ToArray()}},
	})
	assert.True(t, errors.Is(err, document.ErrSkeletonMismatch))

	sk := roots[0].Mesh.Skeleton
	require.Len(t, sk.Bones, 2)
	require.Len(t, sk.BoneInverses, 2)
	assert.Equal(t, math.Scale(2, 2, 2), sk.BoneInverses[0])
	assert.Equal(t, math.Identity(), sk.BoneInverses[1])
}

func TestBindSkeletonsMissingDescriptor(t *testing.T) {
	observe(t)
	geoms, mats := libraries(t)
	roots, err := NewBuilder(geoms, mats).Build([]document.Object{
		object(t, "skin", document.TypeSkinnedMesh, document.SkinnedMeshData{
			MeshData: document.MeshData{Geometry: "tri", Material: "red"},
			Skeleton: "absent",
		}),
	})
	require.NoError(t, err)

	err = BindSkeletons(roots, nil)
	assert.True(t, errors.Is(err, document.ErrDanglingReference))
	assert.Empty(t, roots[0].Mesh.Skeleton.Bones)
}

func TestSkeletonUpdate(t *testing.T) {
	bone := NewNode(KindBone)
	bone.Position = math.Vec3{X: 3}
	bone.UpdateMatrixWorld()

	sk := NewSkeleton("s")
	sk.Bones = []*Node{bone}
	sk.Init()
	assert.True(t, sk.BoneInverses[0].ApproxEqual(math.Translate(-3, 0, 0), 1e-6))

	bone.Position = math.Vec3{X: 5}
	bone.UpdateMatrixWorld()
	sk.Update()
	assert.InDelta(t, 2, sk.BoneMatrices[12], 1e-6)
}

func TestNodeHierarchy(t *testing.T) {
	s := New()
	a := NewNode(KindGroup)
	a.UUID = "a"
	b := NewNode(KindGroup)
	b.UUID = "b"
	b.Name = "bee"
	a.Add(b)
	s.Add(a)

	assert.Same(t, b, s.FindByID("b"))
	assert.Same(t, b, a.FindByName("bee"))
	assert.Nil(t, s.FindByID("c"))

	other := NewNode(KindGroup)
	other.Add(b)
	assert.Empty(t, a.Children)
	assert.Same(t, other, b.Parent)

	count := 0
	s.Traverse(func(*Node) { count++ })
	assert.Equal(t, 2, count)

	s.Remove(a)
	assert.Empty(t, s.Children())
	assert.Nil(t, a.Parent)
}

func TestKindOf(t *testing.T) {
	for k, tag := range kindTags {
		got, ok := KindOf(tag)
		assert.True(t, ok)
		assert.Equal(t, k, got)
		assert.Equal(t, tag, k.String())
	}
	_, ok := KindOf("Line")
	assert.False(t, ok)
}
