package gltfexport

import (
	"bytes"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/scenekit/internal/engine/geometry"
	"github.com/Faultbox/scenekit/internal/engine/material"
	"github.com/Faultbox/scenekit/internal/engine/scene"
	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/buffer"
	"github.com/Faultbox/scenekit/pkg/document"
	"github.com/Faultbox/scenekit/pkg/math"
)

func observe(t *testing.T) {
	t.Helper()
	core, _ := observer.New(zap.WarnLevel)
	t.Cleanup(logger.Set(zap.New(core)))
}

func triangle(t *testing.T) *geometry.Geometry {
	t.Helper()
	g, err := geometry.Assemble("tri", document.GeometryData{
		Attributes: map[string]document.AttributeData{
			"position": {ItemSize: 3, Type: buffer.TypeFloat32, Data: document.AttributeSource{Values: []float64{0, 0, 0, 2, 0, 0, 0, 3, 0}}},
			"uv":       {ItemSize: 2, Type: buffer.TypeFloat32, Data: document.AttributeSource{Values: []float64{0, 0, 1, 0, 0, 1}}},
		},
		Index: document.IndexData{Type: buffer.TypeUint16, Data: []float64{0, 1, 2}},
	})
	require.NoError(t, err)
	return g
}

func decode(t *testing.T, w *Writer) *gltf.Document {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, w.Encode(&out))
	assert.Equal(t, []byte("glTF"), out.Bytes()[:4])

	doc := &gltf.Document{}
	require.NoError(t, gltf.NewDecoder(bytes.NewReader(out.Bytes())).Decode(doc))
	return doc
}

func TestSceneSharesMeshes(t *testing.T) {
	observe(t)
	g := triangle(t)
	red := material.New(material.KindStandard).(*material.Standard)
	red.UUID = "red"
	red.Color = math.Color{R: 1}
	red.Roughness = 0.5

	root := scene.NewNode(scene.KindGroup)
	root.Name = "root"
	root.ApplyMatrix(math.Translate(1, 0, 0))
	for _, name := range []string{"a", "b"} {
		n := scene.NewNode(scene.KindMesh)
		n.Name = name
		n.Mesh = &scene.Mesh{Geometry: g, Material: red}
		root.Add(n)
	}
	lamp := scene.NewNode(scene.KindPointLight)
	lamp.UUID = "lamp"
	root.Add(lamp)

	w := NewWriter()
	w.AddScene([]*scene.Node{root})
	doc := decode(t, w)

	assert.Equal(t, Version, doc.Asset.Version)
	require.Len(t, doc.Nodes, 4)
	assert.Equal(t, []uint32{0}, doc.Scenes[0].Nodes)
	assert.Equal(t, []uint32{1, 2, 3}, doc.Nodes[0].Children)
	assert.Equal(t, float32(1), doc.Nodes[0].Matrix[12])
	assert.Equal(t, "lamp", doc.Nodes[3].Name)
	assert.Nil(t, doc.Nodes[3].Mesh)

	require.Len(t, doc.Meshes, 1, "shared geometry and material are written once")
	require.NotNil(t, doc.Nodes[1].Mesh)
	require.NotNil(t, doc.Nodes[2].Mesh)
	assert.Equal(t, *doc.Nodes[1].Mesh, *doc.Nodes[2].Mesh)

	prim := doc.Meshes[0].Primitives[0]
	assert.Contains(t, prim.Attributes, "POSITION")
	assert.Contains(t, prim.Attributes, "TEXCOORD_0")
	assert.NotContains(t, prim.Attributes, "NORMAL")
	pos := doc.Accessors[prim.Attributes["POSITION"]]
	assert.Equal(t, uint32(3), pos.Count)
	assert.Equal(t, []float32{2, 3, 0}, pos.Max)
	require.NotNil(t, prim.Indices)
	assert.Equal(t, gltf.ComponentUint, doc.Accessors[*prim.Indices].ComponentType)

	require.Len(t, doc.Materials, 1)
	pbr := doc.Materials[0].PBRMetallicRoughness
	require.NotNil(t, pbr)
	assert.Equal(t, [4]float32{1, 0, 0, 1}, *pbr.BaseColorFactor)
	assert.Equal(t, float32(0.5), *pbr.RoughnessFactor)
}

func TestAddGeometry(t *testing.T) {
	observe(t)
	merged := geometry.MergePositions("collider", []geometry.Placed{
		{Geometry: triangle(t), Matrix: math.Identity()},
		{Geometry: triangle(t), Matrix: math.Translate(0, 0, 5)},
	})

	w := NewWriter()
	require.NoError(t, w.AddGeometry("collider", merged, math.Identity()))
	doc := decode(t, w)

	require.Len(t, doc.Meshes, 1)
	prim := doc.Meshes[0].Primitives[0]
	assert.Nil(t, prim.Material)
	assert.Equal(t, uint32(6), doc.Accessors[prim.Attributes["POSITION"]].Count)
	assert.Equal(t, uint32(6), doc.Accessors[*prim.Indices].Count)
}

func TestEmpty(t *testing.T) {
	observe(t)
	w := NewWriter()
	assert.ErrorIs(t, w.AddGeometry("none", geometry.New("none"), math.Identity()), geometry.ErrNoPosition)
	w.AddScene([]*scene.Node{scene.NewNode(scene.KindGroup)})
	var out bytes.Buffer
	assert.ErrorIs(t, w.Encode(&out), ErrEmpty)
}
