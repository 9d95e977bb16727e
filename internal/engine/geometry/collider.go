package geometry

import (
	"github.com/Faultbox/scenekit/pkg/buffer"
	"github.com/Faultbox/scenekit/pkg/math"
)

// Deinterleave returns a copy of g whose attributes are all standalone.
// Attributes that are already standalone are shared, not copied.
func Deinterleave(g *Geometry) *Geometry {
	out := New(g.UUID)
	for name, attr := range g.Attributes {
		if attr.Interleaved() {
			out.Attributes[name] = buffer.Flatten(attr)
			continue
		}
		out.Attributes[name] = attr
	}
	out.Index = g.Index
	return out
}

// ColliderInput reduces g to its position attribute and index, the only
// data a collision mesh needs. Interleaved positions are flattened first;
// a standalone position attribute is used as is. Every other attribute is
// dropped.
func ColliderInput(g *Geometry) (*Geometry, error) {
	pos := g.Attributes[Position]
	if pos == nil {
		return nil, ErrNoPosition
	}
	out := New(g.UUID)
	if pos.Interleaved() {
		out.Attributes[Position] = buffer.Flatten(pos)
	} else {
		out.Attributes[Position] = pos
	}
	out.Index = g.Index
	return out, nil
}

// Placed is a geometry with the world matrix of the node showing it.
type Placed struct {
	Geometry *Geometry
	Matrix   math.Mat4
}

// MergePositions bakes every placed geometry into one world-space geometry
// with Float32 positions and a Uint32 index. Non-indexed inputs are indexed
// sequentially. Geometries without positions are skipped.
func MergePositions(id string, parts []Placed) *Geometry {
	var positions buffer.Float32Array
	var indices buffer.Uint32Array

	for _, p := range parts {
		in, err := ColliderInput(p.Geometry)
		if err != nil {
			continue
		}
		pos := in.Attributes[Position]
		if pos.ItemSize() < 3 {
			continue
		}
		base := uint32(len(positions) / 3)
		for i := 0; i < pos.Count(); i++ {
			w := p.Matrix.TransformPoint([3]float32{
				float32(pos.Component(i, 0)),
				float32(pos.Component(i, 1)),
				float32(pos.Component(i, 2)),
			})
			positions = append(positions, w[0], w[1], w[2])
		}
		if in.Index != nil {
			for i := 0; i < in.Index.Array.Len(); i++ {
				indices = append(indices, base+uint32(in.Index.Array.At(i)))
			}
			continue
		}
		for i := 0; i < pos.Count(); i++ {
			indices = append(indices, base+uint32(i))
		}
	}

	out := New(id)
	out.Attributes[Position] = &buffer.BufferAttribute{Array: positions, Size: 3}
	out.Index = &buffer.BufferAttribute{Array: indices, Size: 1}
	return out
}
