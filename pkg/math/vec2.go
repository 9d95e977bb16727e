package math

import "github.com/chewxy/math32"

// Vec2 is a 2D vector. Texture offsets, repeats and normal scales use it.
type Vec2 struct {
	X, Y float32
}

// Add returns v + other.
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{v.X + other.X, v.Y + other.Y}
}

// Sub returns v - other.
func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{v.X - other.X, v.Y - other.Y}
}

// Length returns the magnitude.
func (v Vec2) Length() float32 {
	return math32.Sqrt(v.X*v.X + v.Y*v.Y)
}

// Components returns the vector as x, y.
func (v Vec2) Components() []float64 {
	return []float64{float64(v.X), float64(v.Y)}
}

// SetComponents assigns components positionally; missing ones are kept.
func (v *Vec2) SetComponents(c []float64) {
	if len(c) > 0 {
		v.X = float32(c[0])
	}
	if len(c) > 1 {
		v.Y = float32(c[1])
	}
}
