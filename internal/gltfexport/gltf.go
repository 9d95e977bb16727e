// Package gltfexport writes live scenes and collider geometry as binary
// glTF 2.0.
package gltfexport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/qmuntal/gltf"
	"go.uber.org/zap"

	"github.com/Faultbox/scenekit/internal/engine/geometry"
	"github.com/Faultbox/scenekit/internal/engine/material"
	"github.com/Faultbox/scenekit/internal/engine/scene"
	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/buffer"
	"github.com/Faultbox/scenekit/pkg/math"
)

// Version is the glTF version written.
const Version = "2.0"

// ErrEmpty is returned when there is no geometry to write.
var ErrEmpty = errors.New("nothing to export")

type meshKey struct {
	geometry *geometry.Geometry
	material material.Material
}

// Writer accumulates one glTF document. Geometries and materials shared by
// several nodes are written once.
type Writer struct {
	doc       *gltf.Document
	bin       *bytes.Buffer
	meshes    map[meshKey]uint32
	materials map[material.Material]uint32
}

// NewWriter creates a writer with one empty scene and one binary buffer.
func NewWriter() *Writer {
	doc := &gltf.Document{}
	doc.Asset.Version = Version
	doc.Asset.Generator = "scenekit"
	sceneIndex := uint32(0)
	doc.Scene = &sceneIndex
	doc.Scenes = append(doc.Scenes, &gltf.Scene{})
	doc.Buffers = append(doc.Buffers, &gltf.Buffer{})
	return &Writer{
		doc:       doc,
		bin:       &bytes.Buffer{},
		meshes:    map[meshKey]uint32{},
		materials: map[material.Material]uint32{},
	}
}

// AddScene mirrors the node trees under roots. Meshes keep their material
// base color; cameras, lights and bones become plain transform nodes.
// Skinned meshes are written in their bind pose without skin data.
func (w *Writer) AddScene(roots []*scene.Node) {
	for _, r := range roots {
		idx := w.node(r)
		w.doc.Scenes[0].Nodes = append(w.doc.Scenes[0].Nodes, idx)
	}
}

// AddGeometry adds g as a single node with transform m.
func (w *Writer) AddGeometry(name string, g *geometry.Geometry, m math.Mat4) error {
	mesh, ok := w.mesh(g, nil)
	if !ok {
		return fmt.Errorf("geometry %s: %w", g.UUID, geometry.ErrNoPosition)
	}
	idx := uint32(len(w.doc.Nodes))
	w.doc.Nodes = append(w.doc.Nodes, &gltf.Node{Name: name, Mesh: &mesh, Matrix: m})
	w.doc.Scenes[0].Nodes = append(w.doc.Scenes[0].Nodes, idx)
	return nil
}

// Document finalizes the binary buffer and returns the document.
func (w *Writer) Document() (*gltf.Document, error) {
	if len(w.doc.Meshes) == 0 {
		return nil, ErrEmpty
	}
	buf := w.doc.Buffers[0]
	buf.Data = w.bin.Bytes()
	buf.ByteLength = uint32(len(buf.Data))
	return w.doc, nil
}

// Encode writes the document as .glb.
func (w *Writer) Encode(out io.Writer) error {
	doc, err := w.Document()
	if err != nil {
		return err
	}
	enc := gltf.NewEncoder(out)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding glb: %w", err)
	}
	return nil
}

// Save writes the document to path as .glb.
func (w *Writer) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := w.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (w *Writer) node(n *scene.Node) uint32 {
	gn := &gltf.Node{Name: n.Name, Matrix: localMatrix(n)}
	if gn.Name == "" {
		gn.Name = n.UUID
	}
	if n.Mesh != nil && n.Mesh.Geometry != nil {
		if mesh, ok := w.mesh(n.Mesh.Geometry, n.Mesh.Material); ok {
			gn.Mesh = &mesh
		} else {
			logger.Debug("mesh without positions skipped", zap.String("node", n.UUID))
		}
	}

	idx := uint32(len(w.doc.Nodes))
	w.doc.Nodes = append(w.doc.Nodes, gn)
	for _, c := range n.Children {
		child := w.node(c)
		gn.Children = append(gn.Children, child)
	}
	return idx
}

func localMatrix(n *scene.Node) [16]float32 {
	if n.MatrixAutoUpdate {
		return math.Compose(n.Position, n.Quaternion, n.Scale)
	}
	return n.Matrix
}

func (w *Writer) mesh(g *geometry.Geometry, m material.Material) (uint32, bool) {
	key := meshKey{g, m}
	if idx, ok := w.meshes[key]; ok {
		return idx, true
	}
	pos := g.Attribute(geometry.Position)
	if pos == nil || pos.Count() == 0 {
		return 0, false
	}

	prim := &gltf.Primitive{Attributes: gltf.Attribute{}, Mode: gltf.PrimitiveTriangles}
	bounds := g.BoundingBox()
	prim.Attributes["POSITION"] = w.vectors(pos, 3, gltf.AccessorVec3, &bounds)
	if a := g.Attribute("normal"); a != nil && a.Count() == pos.Count() {
		prim.Attributes["NORMAL"] = w.vectors(a, 3, gltf.AccessorVec3, nil)
	}
	if a := g.Attribute("uv"); a != nil && a.Count() == pos.Count() {
		prim.Attributes["TEXCOORD_0"] = w.vectors(a, 2, gltf.AccessorVec2, nil)
	}
	if g.Index != nil && g.Index.Count() > 0 {
		indices := w.indices(g)
		prim.Indices = &indices
	}
	if m != nil {
		mat := w.material(m)
		prim.Material = &mat
	}

	idx := uint32(len(w.doc.Meshes))
	w.doc.Meshes = append(w.doc.Meshes, &gltf.Mesh{Name: g.UUID, Primitives: []*gltf.Primitive{prim}})
	w.meshes[key] = idx
	return idx, true
}

// view appends data to the binary buffer and returns its buffer view.
func (w *Writer) view(data any, target gltf.Target) uint32 {
	offset := uint32(w.bin.Len())
	_ = binary.Write(w.bin, binary.LittleEndian, data)
	bv := &gltf.BufferView{
		Buffer:     0,
		ByteOffset: offset,
		ByteLength: uint32(w.bin.Len()) - offset,
		Target:     target,
	}
	idx := uint32(len(w.doc.BufferViews))
	w.doc.BufferViews = append(w.doc.BufferViews, bv)
	return idx
}

func (w *Writer) vectors(a buffer.Attribute, size int, typ gltf.AccessorType, bounds *geometry.Bounds) uint32 {
	count := a.Count()
	data := make([]float32, count*size)
	for i := 0; i < count; i++ {
		for c := 0; c < size && c < a.ItemSize(); c++ {
			data[i*size+c] = float32(a.Component(i, c))
		}
	}
	bv := w.view(data, gltf.TargetArrayBuffer)
	acc := &gltf.Accessor{
		BufferView:    &bv,
		ComponentType: gltf.ComponentFloat,
		Type:          typ,
		Count:         uint32(count),
	}
	if bounds != nil && !bounds.Empty() {
		acc.Min = bounds.Min[:]
		acc.Max = bounds.Max[:]
	}
	idx := uint32(len(w.doc.Accessors))
	w.doc.Accessors = append(w.doc.Accessors, acc)
	return idx
}

func (w *Writer) indices(g *geometry.Geometry) uint32 {
	count := g.Index.Count()
	data := make([]uint32, count)
	for i := range data {
		data[i] = uint32(g.Index.Component(i, 0))
	}
	bv := w.view(data, gltf.TargetElementArrayBuffer)
	idx := uint32(len(w.doc.Accessors))
	w.doc.Accessors = append(w.doc.Accessors, &gltf.Accessor{
		BufferView:    &bv,
		ComponentType: gltf.ComponentUint,
		Type:          gltf.AccessorScalar,
		Count:         uint32(count),
	})
	return idx
}

func (w *Writer) material(m material.Material) uint32 {
	if idx, ok := w.materials[m]; ok {
		return idx
	}
	base := m.Common()
	color, emissive := math.Color{R: 1, G: 1, B: 1}, math.Color{}
	metallic, roughness := float32(0), float32(1)
	switch mat := m.(type) {
	case *material.Unlit:
		color, emissive = mat.Color, mat.Emissive
	case *material.Phong:
		color, emissive = mat.Color, mat.Emissive
	case *material.Standard:
		color, emissive = mat.Color, mat.Emissive
		metallic, roughness = mat.Metalness, mat.Roughness
	}

	gm := &gltf.Material{
		Name:           base.Name,
		DoubleSided:    base.Side == material.DoubleSide,
		AlphaMode:      gltf.AlphaOpaque,
		EmissiveFactor: [3]float32{emissive.R, emissive.G, emissive.B},
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float32{color.R, color.G, color.B, base.Opacity},
			MetallicFactor:  &metallic,
			RoughnessFactor: &roughness,
		},
	}
	if gm.Name == "" {
		gm.Name = base.UUID
	}
	if base.Transparent {
		gm.AlphaMode = gltf.AlphaBlend
	}

	idx := uint32(len(w.doc.Materials))
	w.doc.Materials = append(w.doc.Materials, gm)
	w.materials[m] = idx
	return idx
}
