package animation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/scenekit/internal/engine/scene"
	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/document"
	"github.com/Faultbox/scenekit/pkg/math"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	t.Cleanup(logger.Set(zap.New(core)))
	return logs
}

func rig() *scene.Node {
	root := scene.NewNode(scene.KindGroup)
	root.UUID = "root"
	arm := scene.NewNode(scene.KindBone)
	arm.UUID = "arm-id"
	arm.Name = "arm"
	root.Add(arm)
	return root
}

func slide() document.AnimationData {
	return document.AnimationData{
		Name:     "slide",
		Duration: 2,
		Tracks: []document.TrackData{
			{Name: "arm.position", Type: "vector", Times: []float64{0, 2}, Values: []float64{0, 0, 0, 4, 0, 0}},
		},
	}
}

func spin() document.AnimationData {
	return document.AnimationData{
		Name:     "spin",
		Duration: -1,
		Tracks: []document.TrackData{
			{Name: ".quaternion", Type: "quaternion", Times: []float64{0, 1}, Values: []float64{0, 0, 0, 1, 0, 1, 0, 0}},
			{Name: "arm-id.visible", Type: "bool", Times: []float64{0, 0.5}, Values: []float64{1, 0}},
		},
	}
}

func TestParseTrack(t *testing.T) {
	tr, err := ParseTrack(document.TrackData{Name: "hip.bones[3].position", Type: "vector", Times: []float64{0}, Values: []float64{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, "hip.bones[3]", tr.Node)
	assert.Equal(t, "position", tr.Property)
	assert.Equal(t, 3, tr.ValueSize)
	assert.Equal(t, InterpolateLinear, tr.Interpolation)

	bad := []document.TrackData{
		{Name: "noproperty", Type: "vector", Times: []float64{0}, Values: []float64{1, 2, 3}},
		{Name: "a.position", Type: "vector"},
		{Name: "a.position", Type: "vector", Times: []float64{0, 1}, Values: []float64{1, 2, 3}},
		{Name: "a.name", Type: "string", Times: []float64{0}, Values: []float64{0}},
	}
	for _, td := range bad {
		_, err := ParseTrack(td)
		assert.ErrorIs(t, err, ErrBadTrack, td.Name)
	}
}

func TestSample(t *testing.T) {
	tr, err := ParseTrack(document.TrackData{Name: ".position", Type: "vector", Times: []float64{1, 3}, Values: []float64{0, 0, 0, 2, 4, 6}})
	require.NoError(t, err)

	out := make([]float32, 3)
	tr.Sample(0, out)
	assert.Equal(t, []float32{0, 0, 0}, out)
	tr.Sample(2, out)
	assert.Equal(t, []float32{1, 2, 3}, out)
	tr.Sample(10, out)
	assert.Equal(t, []float32{2, 4, 6}, out)

	step := 2300
	discrete, err := ParseTrack(document.TrackData{Name: ".position", Type: "vector", Times: []float64{0, 1}, Values: []float64{0, 0, 0, 1, 1, 1}, Interpolation: &step})
	require.NoError(t, err)
	discrete.Sample(0.9, out)
	assert.Equal(t, []float32{0, 0, 0}, out)
}

func TestSampleQuaternionSlerp(t *testing.T) {
	tr, err := ParseTrack(spin().Tracks[0])
	require.NoError(t, err)
	out := make([]float32, 4)
	tr.Sample(0.5, out)
	assert.InDelta(t, 0.7071, out[1], 1e-3)
	assert.InDelta(t, 0.7071, out[3], 1e-3)
}

func TestParseClipDuration(t *testing.T) {
	c, err := ParseClip(spin())
	require.NoError(t, err)
	assert.Equal(t, float32(1), c.Duration)
	assert.Equal(t, NormalBlending, c.BlendMode)

	data := slide()
	data.Tracks = append(data.Tracks, document.TrackData{Name: "broken"})
	c, err = ParseClip(data)
	assert.ErrorIs(t, err, ErrBadTrack)
	assert.Len(t, c.Tracks, 1)
}

func TestClipEncodeRoundTrip(t *testing.T) {
	c, err := ParseClip(slide())
	require.NoError(t, err)
	again, err := ParseClip(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, c, again)
}

func TestAttach(t *testing.T) {
	logs := observe(t)
	root := rig()
	nested := scene.NewNode(scene.KindGroup)
	nested.UUID = "nested"
	root.Add(nested)

	players, err := Attach(map[string][]document.AnimationData{
		"root":    {slide(), spin()},
		"missing": {slide()},
		"nested":  {slide()},
	}, []*scene.Node{root})

	require.Len(t, players, 1)
	assert.Same(t, root, players[0].Root)
	assert.Len(t, players[0].Clips, 2)
	assert.Equal(t, Idle, players[0].State())
	assert.True(t, errors.Is(err, ErrRootNotFound))
	assert.Equal(t, 2, logs.FilterMessage("animations skipped").Len())
}

func TestPlayOnceFinishes(t *testing.T) {
	root := rig()
	c, err := ParseClip(slide())
	require.NoError(t, err)
	p := NewPlayer(root, []*Clip{c})

	var finished *Clip
	p.OnFinished(func(_ *Player, clip *Clip) { finished = clip })

	require.NoError(t, p.Play(0, false, 1))
	assert.True(t, p.Playing())

	p.Update(1)
	arm := root.Children[0]
	assert.Equal(t, math.Vec3{X: 2}, arm.Position)
	assert.InDelta(t, 2, arm.WorldPosition().X, 1e-6)
	assert.True(t, p.Playing())

	p.Update(5)
	assert.Equal(t, math.Vec3{X: 4}, arm.Position)
	assert.False(t, p.Playing())
	assert.Same(t, c, finished)
}

func TestPlayLoopAndSpeed(t *testing.T) {
	root := rig()
	c, err := ParseClip(slide())
	require.NoError(t, err)
	p := NewPlayer(root, []*Clip{c})

	require.NoError(t, p.Play(0, true, 2))
	p.Update(1.5)
	assert.InDelta(t, 1, p.Time(), 1e-6)
	assert.True(t, p.Playing())
	assert.Equal(t, math.Vec3{X: 2}, root.Children[0].Position)
}

func TestPlayOutOfRange(t *testing.T) {
	logs := observe(t)
	root := rig()
	a, _ := ParseClip(slide())
	b, _ := ParseClip(spin())
	p := NewPlayer(root, []*Clip{a, b})

	assert.ErrorIs(t, p.Play(5, false, 1), ErrIndexOutOfRange)
	assert.Equal(t, Idle, p.State())
	assert.Equal(t, -1, p.Active())

	require.NoError(t, p.Play(1, true, 1))
	assert.ErrorIs(t, p.Play(-1, false, 1), ErrIndexOutOfRange)
	assert.Equal(t, Playing, p.State())
	assert.Equal(t, 1, p.Active())
	assert.Equal(t, 2, logs.FilterMessage("animation not played").Len())
}

func TestPlayReplacesActiveClip(t *testing.T) {
	root := rig()
	a, _ := ParseClip(slide())
	b, _ := ParseClip(spin())
	p := NewPlayer(root, []*Clip{a, b})

	require.NoError(t, p.Play(0, true, 1))
	p.Update(1)
	require.NoError(t, p.Play(1, false, 1))
	assert.Equal(t, 1, p.Active())
	assert.Equal(t, float32(0), p.Time())

	p.Update(0.75)
	assert.False(t, root.Children[0].Visible)
	assert.InDelta(t, 0.9239, root.Quaternion.Y, 1e-3)
}

func TestStringTrackRenamesNode(t *testing.T) {
	root := rig()
	c, err := ParseClip(document.AnimationData{
		Name:     "rename",
		Duration: 2,
		Tracks: []document.TrackData{
			{Name: "arm-id.name", Type: "string", Times: []float64{0, 1}, Strings: []string{"left", "right"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, c.Tracks, 1)
	assert.Equal(t, InterpolateDiscrete, c.Tracks[0].Interpolation)
	assert.Equal(t, 1, c.Tracks[0].ValueSize)

	p := NewPlayer(root, []*Clip{c})
	require.NoError(t, p.Play(0, false, 1))
	assert.Equal(t, "left", root.Children[0].Name)
	p.Update(1.5)
	assert.Equal(t, "right", root.Children[0].Name)

	again, err := ParseClip(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, []string{"left", "right"}, again.Tracks[0].Strings)
}
