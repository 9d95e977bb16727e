// Package animation parses keyframe clips and plays them on scene nodes.
package animation

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/Faultbox/scenekit/pkg/buffer"
	"github.com/Faultbox/scenekit/pkg/document"
)

// Clip and track errors.
var (
	ErrBadTrack        = errors.New("malformed track")
	ErrIndexOutOfRange = errors.New("animation index out of range")
	ErrRootNotFound    = errors.New("animation root not found")
)

// ValueType is the kind of value a track animates.
type ValueType string

// Track value types.
const (
	TypeVector     ValueType = "vector"
	TypeQuaternion ValueType = "quaternion"
	TypeNumber     ValueType = "number"
	TypeBool       ValueType = "bool"
	TypeColor      ValueType = "color"
	TypeString     ValueType = "string"
)

// Interpolation modes.
const (
	InterpolateDiscrete = 2300
	InterpolateLinear   = 2301
	InterpolateSmooth   = 2302
)

// NormalBlending is the default clip blend mode.
const NormalBlending = 2500

// Track is one keyframe channel. Values holds ValueSize numbers per key;
// string tracks hold ValueSize entries per key in Strings instead.
type Track struct {
	Name          string
	Node          string
	Property      string
	Type          ValueType
	Interpolation int
	Times         []float32
	Values        []float32
	Strings       []string
	ValueSize     int
}

// ParseTrack validates data and splits its name into node and property.
// "hip.quaternion" targets node "hip"; ".position" targets the root.
func ParseTrack(data document.TrackData) (*Track, error) {
	dot := strings.LastIndex(data.Name, ".")
	if dot < 0 || dot == len(data.Name)-1 {
		return nil, fmt.Errorf("%w: name %q has no property", ErrBadTrack, data.Name)
	}
	if len(data.Times) == 0 {
		return nil, fmt.Errorf("%w: %s has no keys", ErrBadTrack, data.Name)
	}
	typ := ValueType(data.Type)
	count := len(data.Values)
	switch typ {
	case TypeVector, TypeQuaternion, TypeNumber, TypeBool, TypeColor:
	case TypeString:
		count = len(data.Strings)
	default:
		return nil, fmt.Errorf("%w: %s has unsupported type %q", ErrBadTrack, data.Name, data.Type)
	}
	if count == 0 || count%len(data.Times) != 0 {
		return nil, fmt.Errorf("%w: %s has %d values for %d keys", ErrBadTrack, data.Name, count, len(data.Times))
	}

	prop := data.Name[dot+1:]
	if i := strings.IndexByte(prop, '['); i >= 0 {
		prop = prop[:i]
	}

	t := &Track{
		Name:          data.Name,
		Node:          data.Name[:dot],
		Property:      prop,
		Type:          typ,
		Interpolation: defaultInterpolation(typ),
		Times:         toFloat32(data.Times),
		Values:        toFloat32(data.Values),
		ValueSize:     count / len(data.Times),
	}
	if typ == TypeString {
		t.Strings = append([]string(nil), data.Strings...)
	}
	if data.Interpolation != nil && typ != TypeBool && typ != TypeString {
		t.Interpolation = *data.Interpolation
	}
	return t, nil
}

func defaultInterpolation(t ValueType) int {
	if t == TypeBool || t == TypeString {
		return InterpolateDiscrete
	}
	return InterpolateLinear
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// End returns the time of the last key.
func (t *Track) End() float32 {
	return t.Times[len(t.Times)-1]
}

// Sample writes the interpolated value at time into out, which must hold
// ValueSize numbers. Times before the first key or after the last clamp to
// that key.
func (t *Track) Sample(time float32, out []float32) {
	n := len(t.Times)
	size := t.ValueSize
	if time <= t.Times[0] || n == 1 {
		copy(out, t.Values[:size])
		return
	}
	if time >= t.Times[n-1] {
		copy(out, t.Values[(n-1)*size:n*size])
		return
	}

	next := 1
	for next < n-1 && t.Times[next] <= time {
		next++
	}
	prev := next - 1
	a := t.Values[prev*size : (prev+1)*size]
	b := t.Values[next*size : (next+1)*size]

	if t.Interpolation == InterpolateDiscrete {
		copy(out, a)
		return
	}

	span := t.Times[next] - t.Times[prev]
	alpha := float32(0)
	if span > 0 {
		alpha = (time - t.Times[prev]) / span
	}
	if t.Type == TypeQuaternion && size == 4 {
		q := quat(a).Slerp(quat(b), alpha)
		out[0], out[1], out[2], out[3] = q.X, q.Y, q.Z, q.W
		return
	}
	for i := range out[:size] {
		out[i] = a[i] + alpha*(b[i]-a[i])
	}
}

// SampleString returns the first string of the key active at time. String
// tracks never interpolate.
func (t *Track) SampleString(time float32) string {
	if len(t.Strings) == 0 {
		return ""
	}
	key := 0
	for key < len(t.Times)-1 && t.Times[key+1] <= time {
		key++
	}
	return t.Strings[key*t.ValueSize]
}

// Encode converts t back into its document form, rounded like a Float32
// buffer.
func (t *Track) Encode() document.TrackData {
	interp := t.Interpolation
	out := document.TrackData{
		Name:          t.Name,
		Times:         buffer.ToSlice(buffer.Float32Array(t.Times)),
		Type:          string(t.Type),
		Interpolation: &interp,
	}
	if t.Type == TypeString {
		out.Strings = append([]string(nil), t.Strings...)
	} else {
		out.Values = buffer.ToSlice(buffer.Float32Array(t.Values))
	}
	return out
}

// Clip is a named set of tracks played together.
type Clip struct {
	Name      string
	Duration  float32
	BlendMode int
	Tracks    []*Track
}

// ParseClip builds a clip from its descriptor. Malformed tracks are
// dropped and reported; the clip is still returned. A negative duration is
// recomputed from the tracks.
func ParseClip(data document.AnimationData) (*Clip, error) {
	c := &Clip{
		Name:      data.Name,
		Duration:  float32(data.Duration),
		BlendMode: data.BlendMode,
	}
	if c.BlendMode == 0 {
		c.BlendMode = NormalBlending
	}
	var errs []error
	for _, td := range data.Tracks {
		tr, err := ParseTrack(td)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.Tracks = append(c.Tracks, tr)
	}
	if c.Duration < 0 {
		c.ResetDuration()
	}
	return c, multierr.Combine(errs...)
}

// ResetDuration sets Duration to the end of the longest track.
func (c *Clip) ResetDuration() {
	c.Duration = 0
	for _, t := range c.Tracks {
		if end := t.End(); end > c.Duration {
			c.Duration = end
		}
	}
}

// Encode converts c back into its document form.
func (c *Clip) Encode() document.AnimationData {
	out := document.AnimationData{
		Name:      c.Name,
		Duration:  buffer.Round(float64(c.Duration), 5),
		BlendMode: c.BlendMode,
		Tracks:    make([]document.TrackData, 0, len(c.Tracks)),
	}
	for _, t := range c.Tracks {
		out.Tracks = append(out.Tracks, t.Encode())
	}
	return out
}
