package math

import (
	"fmt"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Color is a linear RGB color with components in [0, 1].
type Color struct {
	R, G, B float32
}

// ColorFromHex parses "rrggbb", "#rrggbb" or the short "#rgb" form.
func ColorFromHex(s string) (Color, error) {
	var c Color
	err := c.SetHex(s)
	return c, err
}

// MustColor parses a hex color and panics on malformed input.
// Only meant for package-level defaults.
func MustColor(s string) Color {
	c, err := ColorFromHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// SetHex assigns the color from a hex string, with or without a leading '#'.
func (c *Color) SetHex(s string) error {
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	parsed, err := colorful.Hex(s)
	if err != nil {
		return fmt.Errorf("parsing color %q: %w", s, err)
	}
	c.R, c.G, c.B = float32(parsed.R), float32(parsed.G), float32(parsed.B)
	return nil
}

// Hex returns the lowercase six digit hex form without '#'.
func (c Color) Hex() string {
	col := colorful.Color{R: float64(c.R), G: float64(c.G), B: float64(c.B)}.Clamped()
	return strings.TrimPrefix(col.Hex(), "#")
}

// Components returns r, g, b.
func (c Color) Components() []float64 {
	return []float64{float64(c.R), float64(c.G), float64(c.B)}
}

// Equal compares component-wise.
func (c Color) Equal(other Color) bool {
	return c == other
}
