package buffer

import "fmt"

// Attribute is a per-vertex data view, either standalone or a slice of a
// shared interleaved buffer.
type Attribute interface {
	// Count returns the number of items.
	Count() int
	// ItemSize returns the number of components per item.
	ItemSize() int
	// Component returns component c of item i.
	Component(i, c int) float64
	// SetComponent assigns component c of item i.
	SetComponent(i, c int, v float64)
	// Interleaved reports whether the attribute reads from a shared buffer.
	Interleaved() bool
}

// BufferAttribute owns its array.
type BufferAttribute struct {
	Array      Array
	Size       int
	Normalized bool
}

// NewBufferAttribute wraps a with the given item size.
func NewBufferAttribute(a Array, itemSize int) (*BufferAttribute, error) {
	if itemSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidItemSize, itemSize)
	}
	return &BufferAttribute{Array: a, Size: itemSize}, nil
}

func (b *BufferAttribute) Count() int {
	return b.Array.Len() / b.Size
}

func (b *BufferAttribute) ItemSize() int { return b.Size }

func (b *BufferAttribute) Component(i, c int) float64 {
	return b.Array.At(i*b.Size + c)
}

func (b *BufferAttribute) SetComponent(i, c int, v float64) {
	b.Array.Set(i*b.Size+c, v)
}

func (b *BufferAttribute) Interleaved() bool { return false }

// InterleavedBuffer is a raw array read by several attributes with a shared
// stride. ID is the identifier the buffer was declared under, if any.
type InterleavedBuffer struct {
	ID     string
	Array  Array
	Stride int
}

// NewInterleavedBuffer converts raw into an array of type t and wraps it.
func NewInterleavedBuffer(t ArrayType, raw []float64, stride int) (*InterleavedBuffer, error) {
	if stride <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStride, stride)
	}
	a, err := New(t, raw)
	if err != nil {
		return nil, err
	}
	return &InterleavedBuffer{Array: a, Stride: stride}, nil
}

// Count returns the number of strides in the buffer.
func (b *InterleavedBuffer) Count() int {
	return b.Array.Len() / b.Stride
}

// InterleavedAttribute reads Size components starting at Offset within each
// stride of Data.
type InterleavedAttribute struct {
	Data   *InterleavedBuffer
	Size   int
	Offset int
}

// NewInterleavedAttribute creates a view into data.
func NewInterleavedAttribute(data *InterleavedBuffer, itemSize, offset int) (*InterleavedAttribute, error) {
	if itemSize <= 0 || offset < 0 || offset+itemSize > data.Stride {
		return nil, fmt.Errorf("%w: size %d offset %d stride %d", ErrInvalidItemSize, itemSize, offset, data.Stride)
	}
	return &InterleavedAttribute{Data: data, Size: itemSize, Offset: offset}, nil
}

func (a *InterleavedAttribute) Count() int { return a.Data.Count() }

func (a *InterleavedAttribute) ItemSize() int { return a.Size }

func (a *InterleavedAttribute) Component(i, c int) float64 {
	return a.Data.Array.At(i*a.Data.Stride + a.Offset + c)
}

func (a *InterleavedAttribute) SetComponent(i, c int, v float64) {
	a.Data.Array.Set(i*a.Data.Stride+a.Offset+c, v)
}

func (a *InterleavedAttribute) Interleaved() bool { return true }

// Flatten copies any attribute into a standalone attribute of the same
// element type.
func Flatten(attr Attribute) *BufferAttribute {
	switch a := attr.(type) {
	case *BufferAttribute:
		return &BufferAttribute{Array: Clone(a.Array), Size: a.Size, Normalized: a.Normalized}
	case *InterleavedAttribute:
		out, _ := Make(a.Data.Array.Type(), a.Count()*a.Size)
		flat := &BufferAttribute{Array: out, Size: a.Size}
		for i := 0; i < a.Count(); i++ {
			for c := 0; c < a.Size; c++ {
				flat.SetComponent(i, c, a.Component(i, c))
			}
		}
		return flat
	}
	out := make(Float32Array, attr.Count()*attr.ItemSize())
	flat := &BufferAttribute{Array: out, Size: attr.ItemSize()}
	for i := 0; i < attr.Count(); i++ {
		for c := 0; c < attr.ItemSize(); c++ {
			flat.SetComponent(i, c, attr.Component(i, c))
		}
	}
	return flat
}
