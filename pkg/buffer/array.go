// Package buffer provides typed numeric arrays and the attribute views
// geometries are built from.
package buffer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ArrayType is the element type tag stored in documents.
type ArrayType string

// Supported array types.
const (
	TypeInt8         ArrayType = "Int8Array"
	TypeUint8        ArrayType = "Uint8Array"
	TypeUint8Clamped ArrayType = "Uint8ClampedArray"
	TypeInt16        ArrayType = "Int16Array"
	TypeUint16       ArrayType = "Uint16Array"
	TypeInt32        ArrayType = "Int32Array"
	TypeUint32       ArrayType = "Uint32Array"
	TypeFloat32      ArrayType = "Float32Array"
	TypeFloat64      ArrayType = "Float64Array"
)

// Buffer errors.
var (
	ErrUnknownArrayType = errors.New("unknown array type")
	ErrInvalidStride    = errors.New("invalid stride")
	ErrInvalidItemSize  = errors.New("invalid item size")
)

// Types lists every supported tag.
var Types = []ArrayType{
	TypeInt8, TypeUint8, TypeUint8Clamped,
	TypeInt16, TypeUint16,
	TypeInt32, TypeUint32,
	TypeFloat32, TypeFloat64,
}

// Valid reports whether t is one of the supported tags.
func (t ArrayType) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// IsFloat reports whether t stores floating point values.
func (t ArrayType) IsFloat() bool {
	return t == TypeFloat32 || t == TypeFloat64
}

// BytesPerElement returns the element width in bytes.
func (t ArrayType) BytesPerElement() int {
	switch t {
	case TypeInt8, TypeUint8, TypeUint8Clamped:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32:
		return 4
	case TypeFloat64:
		return 8
	}
	return 0
}

// Array is a typed numeric sequence.
type Array interface {
	Len() int
	At(i int) float64
	Set(i int, v float64)
	Type() ArrayType
}

// Typed array kinds. Each stores values with its own width and
// conversion rules.
type (
	Int8Array         []int8
	Uint8Array        []uint8
	Uint8ClampedArray []uint8
	Int16Array        []int16
	Uint16Array       []uint16
	Int32Array        []int32
	Uint32Array       []uint32
	Float32Array      []float32
	Float64Array      []float64
)

func (a Int8Array) Len() int             { return len(a) }
func (a Int8Array) At(i int) float64     { return float64(a[i]) }
func (a Int8Array) Set(i int, v float64) { a[i] = int8(modulo(v, 8)) }
func (a Int8Array) Type() ArrayType      { return TypeInt8 }

func (a Uint8Array) Len() int             { return len(a) }
func (a Uint8Array) At(i int) float64     { return float64(a[i]) }
func (a Uint8Array) Set(i int, v float64) { a[i] = uint8(modulo(v, 8)) }
func (a Uint8Array) Type() ArrayType      { return TypeUint8 }

func (a Uint8ClampedArray) Len() int             { return len(a) }
func (a Uint8ClampedArray) At(i int) float64     { return float64(a[i]) }
func (a Uint8ClampedArray) Set(i int, v float64) { a[i] = clamp8(v) }
func (a Uint8ClampedArray) Type() ArrayType      { return TypeUint8Clamped }

func (a Int16Array) Len() int             { return len(a) }
func (a Int16Array) At(i int) float64     { return float64(a[i]) }
func (a Int16Array) Set(i int, v float64) { a[i] = int16(modulo(v, 16)) }
func (a Int16Array) Type() ArrayType      { return TypeInt16 }

func (a Uint16Array) Len() int             { return len(a) }
func (a Uint16Array) At(i int) float64     { return float64(a[i]) }
func (a Uint16Array) Set(i int, v float64) { a[i] = uint16(modulo(v, 16)) }
func (a Uint16Array) Type() ArrayType      { return TypeUint16 }

func (a Int32Array) Len() int             { return len(a) }
func (a Int32Array) At(i int) float64     { return float64(a[i]) }
func (a Int32Array) Set(i int, v float64) { a[i] = int32(modulo(v, 32)) }
func (a Int32Array) Type() ArrayType      { return TypeInt32 }

func (a Uint32Array) Len() int             { return len(a) }
func (a Uint32Array) At(i int) float64     { return float64(a[i]) }
func (a Uint32Array) Set(i int, v float64) { a[i] = uint32(modulo(v, 32)) }
func (a Uint32Array) Type() ArrayType      { return TypeUint32 }

func (a Float32Array) Len() int             { return len(a) }
func (a Float32Array) At(i int) float64     { return float64(a[i]) }
func (a Float32Array) Set(i int, v float64) { a[i] = float32(v) }
func (a Float32Array) Type() ArrayType      { return TypeFloat32 }

func (a Float64Array) Len() int             { return len(a) }
func (a Float64Array) At(i int) float64     { return a[i] }
func (a Float64Array) Set(i int, v float64) { a[i] = v }
func (a Float64Array) Type() ArrayType      { return TypeFloat64 }

// Make allocates a zeroed array of the given type and length.
func Make(t ArrayType, n int) (Array, error) {
	switch t {
	case TypeInt8:
		return make(Int8Array, n), nil
	case TypeUint8:
		return make(Uint8Array, n), nil
	case TypeUint8Clamped:
		return make(Uint8ClampedArray, n), nil
	case TypeInt16:
		return make(Int16Array, n), nil
	case TypeUint16:
		return make(Uint16Array, n), nil
	case TypeInt32:
		return make(Int32Array, n), nil
	case TypeUint32:
		return make(Uint32Array, n), nil
	case TypeFloat32:
		return make(Float32Array, n), nil
	case TypeFloat64:
		return make(Float64Array, n), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownArrayType, string(t))
}

// New converts raw numbers into an array of type t. Integer kinds wrap
// out-of-range values modulo their width, the clamped kind saturates to
// [0, 255] rounding half to even, and NaN becomes 0 for every integer kind.
func New(t ArrayType, raw []float64) (Array, error) {
	a, err := Make(t, len(raw))
	if err != nil {
		return nil, err
	}
	for i, v := range raw {
		a.Set(i, v)
	}
	return a, nil
}

// TypeOf returns the tag of an array from its storage kind.
func TypeOf(a Array) ArrayType {
	return a.Type()
}

// ToSlice serializes an array for a document. Float32 values are rounded to
// 5 decimals and Float64 values to 10; integers are exact.
func ToSlice(a Array) []float64 {
	out := make([]float64, a.Len())
	decimals := -1
	switch a.Type() {
	case TypeFloat32:
		decimals = 5
	case TypeFloat64:
		decimals = 10
	}
	for i := range out {
		v := a.At(i)
		if decimals >= 0 {
			v = Round(v, decimals)
		}
		out[i] = v
	}
	return out
}

// Round rounds v to a fixed number of decimals using its exact decimal
// expansion.
func Round(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', decimals, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// Clone returns a copy of a with the same type.
func Clone(a Array) Array {
	c, _ := Make(a.Type(), a.Len())
	for i := 0; i < a.Len(); i++ {
		c.Set(i, a.At(i))
	}
	return c
}

func modulo(v float64, bits uint) uint64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	size := float64(uint64(1) << bits)
	m := math.Mod(math.Trunc(v), size)
	if m < 0 {
		m += size
	}
	return uint64(m)
}

func clamp8(v float64) uint8 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(math.RoundToEven(v))
}
