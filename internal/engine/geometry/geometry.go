// Package geometry assembles indexed buffer geometries from documents and
// prepares them for export and collision use.
package geometry

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/buffer"
	"github.com/Faultbox/scenekit/pkg/document"
)

// Assembly errors. They are reported together and never stop the
// remaining attributes from being built.
var (
	ErrMissingArray  = errors.New("interleaved buffer references an undeclared array")
	ErrMissingBuffer = errors.New("attribute references an undeclared interleaved buffer")
	ErrNoPosition    = errors.New("geometry has no position attribute")
)

// Position is the attribute name used for vertex positions.
const Position = "position"

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// Empty reports whether no point was ever added.
func (b Bounds) Empty() bool {
	return b.Min[0] > b.Max[0]
}

// Center returns the midpoint of the box.
func (b Bounds) Center() [3]float32 {
	return [3]float32{
		(b.Min[0] + b.Max[0]) / 2,
		(b.Min[1] + b.Max[1]) / 2,
		(b.Min[2] + b.Max[2]) / 2,
	}
}

func emptyBounds() Bounds {
	return Bounds{
		Min: [3]float32{1e10, 1e10, 1e10},
		Max: [3]float32{-1e10, -1e10, -1e10},
	}
}

func (b *Bounds) extend(p [3]float32) {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}

// Geometry is an indexed buffer geometry. Interleaved buffers are shared by
// every attribute that views them.
type Geometry struct {
	UUID       string
	Attributes map[string]buffer.Attribute
	// Index is nil for non-indexed geometry.
	Index *buffer.BufferAttribute
	// Buffers holds each interleaved buffer under its declared id.
	Buffers map[string]*buffer.InterleavedBuffer

	bounds *Bounds
}

// New creates an empty geometry.
func New(id string) *Geometry {
	return &Geometry{
		UUID:       id,
		Attributes: map[string]buffer.Attribute{},
		Buffers:    map[string]*buffer.InterleavedBuffer{},
	}
}

// Assemble builds a geometry from its descriptor: interleaved buffers
// first, each once under its own id, then the attributes, then the index.
// Broken references are logged, skipped and returned together; the
// geometry is always returned.
func Assemble(id string, data document.GeometryData) (*Geometry, error) {
	g := New(id)
	var errs error
	fail := func(err error) {
		logger.Warn("geometry data skipped", zap.String("geometry", id), zap.Error(err))
		errs = multierr.Append(errs, err)
	}

	for _, bid := range sortedKeys(data.InterleavedBuffers) {
		ib := data.InterleavedBuffers[bid]
		raw, ok := data.ArrayBuffers[ib.Buffer]
		if !ok {
			fail(fmt.Errorf("%w: %s -> %s", ErrMissingArray, bid, ib.Buffer))
			continue
		}
		buf, err := buffer.NewInterleavedBuffer(ib.Type, raw, ib.Stride)
		if err != nil {
			fail(fmt.Errorf("interleaved buffer %s: %w", bid, err))
			continue
		}
		buf.ID = bid
		g.Buffers[bid] = buf
	}

	for _, name := range sortedKeys(data.Attributes) {
		attr, err := g.buildAttribute(data.Attributes[name])
		if err != nil {
			fail(fmt.Errorf("attribute %s: %w", name, err))
			continue
		}
		g.Attributes[name] = attr
	}

	if len(data.Index.Data) > 0 {
		t := data.Index.Type
		if t == "" {
			t = IndexType(data.Index.Data)
		}
		arr, err := buffer.New(t, data.Index.Data)
		if err != nil {
			fail(fmt.Errorf("index: %w", err))
		} else {
			g.Index = &buffer.BufferAttribute{Array: arr, Size: 1}
		}
	}

	return g, errs
}

func (g *Geometry) buildAttribute(a document.AttributeData) (buffer.Attribute, error) {
	if a.Data.IsRef() {
		buf, ok := g.Buffers[a.Data.Ref]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingBuffer, a.Data.Ref)
		}
		return buffer.NewInterleavedAttribute(buf, a.ItemSize, a.Offset)
	}
	arr, err := buffer.New(a.Type, a.Data.Values)
	if err != nil {
		return nil, err
	}
	return buffer.NewBufferAttribute(arr, a.ItemSize)
}

// IndexType picks the narrowest unsigned type able to hold every index.
func IndexType(indices []float64) buffer.ArrayType {
	for _, v := range indices {
		if v > 65535 {
			return buffer.TypeUint32
		}
	}
	return buffer.TypeUint16
}

// Attribute returns the named attribute or nil.
func (g *Geometry) Attribute(name string) buffer.Attribute {
	return g.Attributes[name]
}

// VertexCount returns the number of position items.
func (g *Geometry) VertexCount() int {
	if pos := g.Attributes[Position]; pos != nil {
		return pos.Count()
	}
	return 0
}

// BoundingBox returns the cached bounds, computing them on first use.
func (g *Geometry) BoundingBox() Bounds {
	if g.bounds == nil {
		b := g.ComputeBoundingBox()
		g.bounds = &b
	}
	return *g.bounds
}

// ComputeBoundingBox recomputes the bounds from the position attribute.
func (g *Geometry) ComputeBoundingBox() Bounds {
	b := emptyBounds()
	pos := g.Attributes[Position]
	if pos == nil || pos.ItemSize() < 3 {
		return b
	}
	for i := 0; i < pos.Count(); i++ {
		b.extend([3]float32{
			float32(pos.Component(i, 0)),
			float32(pos.Component(i, 1)),
			float32(pos.Component(i, 2)),
		})
	}
	g.bounds = &b
	return b
}

// Dispose drops every buffer reference.
func (g *Geometry) Dispose() {
	g.Attributes = map[string]buffer.Attribute{}
	g.Buffers = map[string]*buffer.InterleavedBuffer{}
	g.Index = nil
	g.bounds = nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
