package diff

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/math"
)

type handle struct{ id string }

func (h *handle) ResourceID() string { return h.id }

type side int

type base struct {
	UUID    string  `prop:"uuid"`
	Name    string  `prop:"name"`
	Opacity float32 `prop:"opacity"`
	Visible bool    `prop:"visible"`
}

type sample struct {
	base
	Color    math.Color `prop:"color"`
	Scale    math.Vec2  `prop:"normalScale"`
	Map      *handle    `prop:"map"`
	Side     side       `prop:"side"`
	Count    uint8      `prop:"count"`
	Internal int
}

func defaults() *sample {
	return &sample{
		base:  base{Opacity: 1, Visible: true},
		Color: math.Color{R: 1, G: 1, B: 1},
		Scale: math.Vec2{X: 1, Y: 1},
	}
}

func TestEncodeOnlyDifferences(t *testing.T) {
	c := New("uuid")
	tex := &handle{id: "tex-1"}

	s := defaults()
	s.UUID = "ignored"
	s.Name = "Floor"
	s.Opacity = 0.1
	s.Color = math.Color{R: 1, G: 0, B: 0}
	s.Scale = math.Vec2{X: 0.5, Y: 1}
	s.Map = tex
	s.Side = 2
	s.Internal = 9

	got, err := c.Encode(s, defaults())
	require.NoError(t, err)

	assert.Equal(t, Properties{
		"name":        "Floor",
		"opacity":     0.1,
		"color":       "ff0000",
		"normalScale": map[string]any{"x": 0.5, "y": 1.0},
		"map":         "tex-1",
		"side":        2.0,
	}, got)
}

func TestEncodeDefaultIsEmpty(t *testing.T) {
	got, err := New().Encode(defaults(), defaults())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEncodeResourceIdentity(t *testing.T) {
	def := defaults()
	def.Map = &handle{id: "same"}

	s := defaults()
	s.Map = &handle{id: "same"}

	got, err := New().Encode(s, def)
	require.NoError(t, err)
	assert.Equal(t, "same", got["map"], "distinct handles with equal ids still differ")

	s.Map = def.Map
	got, err = New().Encode(s, def)
	require.NoError(t, err)
	assert.NotContains(t, got, "map")

	s.Map = nil
	got, err = New().Encode(s, def)
	require.NoError(t, err)
	assert.Contains(t, got, "map")
	assert.Nil(t, got["map"])
}

func TestEncodeKindMismatch(t *testing.T) {
	_, err := New().Encode(defaults(), &base{})
	assert.ErrorIs(t, err, ErrKindMismatch)

	_, err = New().Encode(sample{}, defaults())
	assert.ErrorIs(t, err, ErrNotStruct)
}

func TestRoundTripThroughJSON(t *testing.T) {
	c := New("uuid")
	tex := &handle{id: "tex-1"}
	resolve := func(id string) (any, bool) {
		if id == tex.id {
			return tex, true
		}
		return nil, false
	}

	s := defaults()
	s.Name = "Wall"
	s.Opacity = 0.33333334
	s.Visible = false
	s.Color = math.MustColor("336699")
	s.Scale = math.Vec2{X: -1, Y: 2}
	s.Map = tex
	s.Side = 1
	s.Count = 7

	props, err := c.Encode(s, defaults())
	require.NoError(t, err)

	raw, err := json.Marshal(props)
	require.NoError(t, err)
	var decoded Properties
	require.NoError(t, json.Unmarshal(raw, &decoded))

	out := defaults()
	require.NoError(t, c.Decode(out, decoded, resolve))

	assert.Equal(t, s.Name, out.Name)
	assert.InDelta(t, s.Opacity, out.Opacity, 1e-5)
	assert.False(t, out.Visible)
	assert.Equal(t, "336699", out.Color.Hex())
	assert.Equal(t, s.Scale, out.Scale)
	assert.Same(t, tex, out.Map)
	assert.Equal(t, side(1), out.Side)
	assert.Equal(t, uint8(7), out.Count)
}

func TestDecodeVectorFromArray(t *testing.T) {
	out := defaults()
	require.NoError(t, New().Decode(out, Properties{"normalScale": []any{3.0, 4.0}}, nil))
	assert.Equal(t, math.Vec2{X: 3, Y: 4}, out.Scale)
}

func TestDecodeUnresolvedLeavesFieldAndContinues(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	defer logger.Set(zap.New(core))()

	out := defaults()
	err := New().Decode(out, Properties{
		"map":     "tex-missing",
		"opacity": 0.5,
	}, func(string) (any, bool) { return nil, false })

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolved)
	assert.Nil(t, out.Map)
	assert.Equal(t, float32(0.5), out.Opacity, "other properties still apply")
	assert.Equal(t, 1, logs.Len())
}

func TestDecodeCollectsProblems(t *testing.T) {
	out := defaults()
	err := New("uuid").Decode(out, Properties{
		"uuid":    "skipped",
		"bogus":   1.0,
		"visible": "yes",
		"color":   12.0,
		"map":     5.0,
		"name":    "ok",
	}, nil)

	errs := multierr.Errors(err)
	assert.Len(t, errs, 4)
	assert.ErrorIs(t, err, ErrUnknownProperty)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.Equal(t, "ok", out.Name)
	assert.Empty(t, out.UUID, "excluded keys are never written")
	assert.True(t, out.Visible)
}

func TestDecodeNullResetsResource(t *testing.T) {
	out := defaults()
	out.Map = &handle{id: "x"}
	require.NoError(t, New().Decode(out, Properties{"map": nil}, nil))
	assert.Nil(t, out.Map)
}

func TestFields(t *testing.T) {
	names := New("uuid").Fields(defaults())
	assert.Equal(t, []string{"name", "opacity", "visible", "color", "normalScale", "map", "side", "count"}, names)
}
