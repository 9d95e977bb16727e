package geometry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/Faultbox/scenekit/pkg/buffer"
	"github.com/Faultbox/scenekit/pkg/document"
)

// Library owns the geometries of a document, keyed by id. Nodes share the
// instances it returns.
type Library struct {
	mu         sync.RWMutex
	geometries map[string]*Geometry
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{geometries: map[string]*Geometry{}}
}

// Build assembles every descriptor that is not present yet. Diagnostics from
// individual geometries are returned together.
func (l *Library) Build(defs map[string]document.GeometryData) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs error
	for _, id := range sortedKeys(defs) {
		if _, ok := l.geometries[id]; ok {
			continue
		}
		g, err := Assemble(id, defs[id])
		errs = multierr.Append(errs, err)
		l.geometries[id] = g
	}
	return errs
}

// Add stores a live geometry under its id, first writer wins.
func (l *Library) Add(g *Geometry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.geometries[g.UUID]; ok {
		return false
	}
	l.geometries[g.UUID] = g
	return true
}

// Get returns the geometry or nil.
func (l *Library) Get(id string) *Geometry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.geometries[id]
}

// IDs returns the geometry ids in sorted order.
func (l *Library) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.geometries))
	for id := range l.geometries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dispose releases every geometry.
func (l *Library) Dispose() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, g := range l.geometries {
		g.Dispose()
	}
	l.geometries = map[string]*Geometry{}
}

// Encode converts g back into a descriptor. Each interleaved buffer is
// written once, however many attributes view it; float data is rounded as
// by buffer.ToSlice.
func Encode(g *Geometry) document.GeometryData {
	out := document.GeometryData{
		Attributes:         map[string]document.AttributeData{},
		InterleavedBuffers: map[string]document.InterleavedBufferData{},
		ArrayBuffers:       map[string][]float64{},
	}

	ids := map[*buffer.InterleavedBuffer]string{}
	bufferID := func(b *buffer.InterleavedBuffer) string {
		if id, ok := ids[b]; ok {
			return id
		}
		id := b.ID
		if id == "" {
			id = fmt.Sprintf("%s-ib%d", g.UUID, len(ids))
		}
		ids[b] = id
		out.InterleavedBuffers[id] = document.InterleavedBufferData{
			Buffer: id,
			Type:   buffer.TypeOf(b.Array),
			Stride: b.Stride,
		}
		out.ArrayBuffers[id] = buffer.ToSlice(b.Array)
		return id
	}

	for _, name := range sortedKeys(g.Attributes) {
		switch a := g.Attributes[name].(type) {
		case *buffer.InterleavedAttribute:
			out.Attributes[name] = document.AttributeData{
				ItemSize: a.Size,
				Offset:   a.Offset,
				Type:     buffer.TypeOf(a.Data.Array),
				Data:     document.AttributeSource{Ref: bufferID(a.Data)},
			}
		default:
			flat := buffer.Flatten(a)
			out.Attributes[name] = document.AttributeData{
				ItemSize: flat.Size,
				Type:     buffer.TypeOf(flat.Array),
				Data:     document.AttributeSource{Values: buffer.ToSlice(flat.Array)},
			}
		}
	}

	if g.Index != nil {
		out.Index = document.IndexData{
			Type: buffer.TypeOf(g.Index.Array),
			Data: buffer.ToSlice(g.Index.Array),
		}
	}
	return out
}
