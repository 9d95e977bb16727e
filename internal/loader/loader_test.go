package loader

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/scenekit/internal/assets"
	"github.com/Faultbox/scenekit/internal/engine/animation"
	"github.com/Faultbox/scenekit/internal/engine/material"
	"github.com/Faultbox/scenekit/internal/engine/scene"
	"github.com/Faultbox/scenekit/internal/engine/texture"
	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/buffer"
	"github.com/Faultbox/scenekit/pkg/document"
	"github.com/Faultbox/scenekit/pkg/math"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	t.Cleanup(logger.Set(zap.New(core)))
	return logs
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func float(v float64) *float64 { return &v }

func intp(v int) *int { return &v }

func lobby(t *testing.T) *document.Document {
	t.Helper()
	doc := document.New()
	doc.Settings = document.Settings{
		OutputEncoding:      texture.SRGBEncoding,
		ToneMapping:         ACESFilmicToneMap,
		ToneMappingExposure: 1.5,
		Shadows:             true,
		ShadowMapSize:       intp(1024),
		Background:          document.Background{Color: "336699", Alpha: 0.5, Texture: "bg"},
		HDRI:                "bg",
		Fog: &document.Fog{
			Enabled: true,
			Type:    document.FogLinear,
			Color:   "ffffff",
			Params:  document.FogParams{Near: float(5), Far: float(50)},
		},
	}
	doc.Textures["bg"] = document.TextureDefinition{UUID: "bg", Format: "png", Data: map[string]any{}}
	doc.Materials["green"] = document.MaterialDefinition{
		UUID: "green",
		Type: material.TagStandard,
		Data: map[string]any{"color": "00ff00", "map": "bg"},
	}
	doc.Geometries["tri"] = document.GeometryData{
		Attributes: map[string]document.AttributeData{
			"position": {ItemSize: 3, Type: buffer.TypeFloat32, Data: document.AttributeSource{Values: []float64{0, 0, 0, 1, 0, 0, 0, 1, 0}}},
		},
		Index: document.IndexData{Type: buffer.TypeUint16, Data: []float64{0, 1, 2}},
	}

	mesh := document.Object{UUID: "mesh", Type: document.TypeMesh, Name: "Mesh", Matrix: math.Identity().ToArray()}
	require.NoError(t, mesh.SetData(document.MeshData{Geometry: "tri", Material: "green"}))
	light := document.Object{UUID: "lamp", Type: document.TypePointLight, Name: "Lamp", Matrix: math.Translate(0, 3, 0).ToArray()}
	require.NoError(t, light.SetData(document.PointLightData{Color: "ffcc00", Intensity: 2}))
	doc.Objects = []document.Object{{
		UUID:     "root",
		Type:     document.TypeGroup,
		Name:     "Root",
		Matrix:   math.Identity().ToArray(),
		Children: []document.Object{mesh, light},
	}}

	doc.Animations["root"] = []document.AnimationData{{
		Name:     "slide",
		Duration: 1,
		Tracks: []document.TrackData{{
			Name:   "Mesh.position",
			Type:   "vector",
			Times:  []float64{0, 1},
			Values: []float64{0, 0, 0, 2, 0, 0},
		}, {
			// Stored as [true,false].
			Name:   "Mesh.visible",
			Type:   "bool",
			Times:  []float64{0, 0.5},
			Values: []float64{1, 0},
		}},
	}}
	return doc
}

func sectionBytes(t *testing.T, id string, doc *document.Document) []byte {
	t.Helper()
	sd, err := document.NewSectionData(id, doc, map[string]document.AddonData{})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, document.EncodeSection(&buf, sd, true, false))
	return buf.Bytes()
}

func newLoader(t *testing.T, files fstest.MapFS) (*Loader, *HeadlessRenderer) {
	t.Helper()
	l := New(assets.NewManager(assets.FSSource{Label: "test", FS: files}), Options{FetchTimeout: time.Second, Validate: true})
	r := NewHeadlessRenderer()
	l.Init(r, "assets/")
	return l, r
}

func wait(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("load did not finish")
		return nil
	}
}

func TestLoadBeforeInit(t *testing.T) {
	logs := observe(t)
	l := New(assets.NewManager(), Options{})

	called := false
	err := wait(t, l.Load(context.Background(), "lobby", material.NewLibrary(), func([]*scene.Node, *document.Document, *texture.Library, map[string]document.AddonData, error) {
		called = true
	}, nil))

	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.False(t, called)
	assert.Equal(t, 1, logs.FilterMessage("loader used before Init").Len())
}

func TestPaths(t *testing.T) {
	l, _ := newLoader(t, fstest.MapFS{})
	assert.Equal(t, "assets/sections/lobby.json.gz", l.SectionPath("lobby"))
	assert.Equal(t, "assets/textures/", l.TexturePath())
	assert.Equal(t, "assets/", l.BasePath())
	assert.True(t, l.Initialized())
}

func TestWrapperLoadsScene(t *testing.T) {
	observe(t)
	l, r := newLoader(t, fstest.MapFS{
		"assets/sections/lobby.json.gz":   {Data: sectionBytes(t, "lobby", lobby(t))},
		"assets/textures/bg/original.png": {Data: pngBytes(t)},
	})

	var mu sync.Mutex
	var progress []float64
	loaded := false
	w := NewSceneWrapper("lobby", l, material.NewLibrary(), WrapperOptions{ApplyHDRI: true, ApplyBackgroundTexture: true, ApplyFog: true})
	err := wait(t, w.Load(context.Background(), func() { loaded = true }, func(p float64) {
		mu.Lock()
		progress = append(progress, p)
		mu.Unlock()
	}))
	require.NoError(t, err)
	require.True(t, loaded)
	require.True(t, w.Loaded())

	mu.Lock()
	require.Len(t, progress, 2)
	assert.InDelta(t, ParsedProgress, progress[0], 1e-9)
	assert.InDelta(t, 1, progress[1], 1e-9)
	mu.Unlock()

	require.Len(t, w.Scene.Children(), 1)
	root := w.Scene.Children()[0]
	assert.Equal(t, "root", root.UUID)

	mesh := w.Scene.FindByID("mesh")
	require.NotNil(t, mesh)
	require.NotNil(t, mesh.Mesh)
	bg := w.Textures().Get("bg")
	require.NotNil(t, bg)
	assert.Same(t, bg, material.Textures(mesh.Mesh.Material)["map"])

	assert.Same(t, bg, w.Scene.Background)
	require.NotNil(t, w.Scene.Environment)
	assert.Equal(t, "bg-env", w.Scene.Environment.UUID)
	require.NotNil(t, w.Scene.Fog)
	assert.Equal(t, float32(5), w.Scene.Fog.Near)
	assert.Equal(t, float32(50), w.Scene.Fog.Far)

	// Settings other than the scene-level ones are left to the caller.
	assert.Equal(t, texture.LinearEncoding, r.OutputEncoding)

	assert.ErrorIs(t, w.Play("nobody", 0, false, 1), ErrNoPlayer)
	p := w.Player("root")
	require.NotNil(t, p)
	require.NoError(t, w.Play("root", 0, false, 1))
	assert.True(t, mesh.Visible)
	w.Update(0.5)
	assert.InDelta(t, 1, mesh.Position.X, 1e-5)
	assert.False(t, mesh.Visible)
	w.Update(1)
	assert.Equal(t, animation.Idle, p.State())

	w.Dispose()
	assert.Nil(t, bg.Image)
	assert.False(t, w.Materials.Has("green"))
}

func TestWrapperCollectsDiagnostics(t *testing.T) {
	logs := observe(t)
	doc := lobby(t)
	doc.Objects[0].Children = append(doc.Objects[0].Children, document.Object{
		UUID: "odd", Type: "Sprite", Matrix: math.Identity().ToArray(),
	})
	clips := doc.Animations["root"]
	clips[0].Tracks = append(clips[0].Tracks, document.TrackData{Name: "Mesh.position", Type: "vector"})
	l, _ := newLoader(t, fstest.MapFS{
		"assets/sections/lobby.json.gz":   {Data: sectionBytes(t, "lobby", doc)},
		"assets/textures/bg/original.png": {Data: pngBytes(t)},
	})

	w := NewSceneWrapper("lobby", l, material.NewLibrary(), WrapperOptions{})
	require.NoError(t, wait(t, w.Load(context.Background(), nil, nil)))

	diag := w.Diagnostics()
	assert.ErrorIs(t, diag, scene.ErrUnknownType)
	assert.ErrorIs(t, diag, animation.ErrBadTrack)
	assert.NotNil(t, w.Scene.FindByID("mesh"), "the rest of the scene is built")
	assert.Equal(t, 1, logs.FilterMessage("object not fully built").Len())
}

func TestWrapperLoadsOnce(t *testing.T) {
	observe(t)
	l, _ := newLoader(t, fstest.MapFS{
		"assets/sections/lobby.json.gz":   {Data: sectionBytes(t, "lobby", lobby(t))},
		"assets/textures/bg/original.png": {Data: pngBytes(t)},
	})
	w := NewSceneWrapper("lobby", l, material.NewLibrary(), WrapperOptions{})

	first := w.Load(context.Background(), nil, nil)
	second := w.Load(context.Background(), nil, nil)
	assert.ErrorIs(t, wait(t, second), ErrAlreadyLoaded)
	require.NoError(t, wait(t, first))
	assert.ErrorIs(t, wait(t, w.Load(context.Background(), nil, nil)), ErrAlreadyLoaded)
	assert.Len(t, w.Scene.Children(), 1)
}

func TestLoadMissingSection(t *testing.T) {
	logs := observe(t)
	l, _ := newLoader(t, fstest.MapFS{})

	called := false
	err := wait(t, l.Load(context.Background(), "nowhere", material.NewLibrary(), func([]*scene.Node, *document.Document, *texture.Library, map[string]document.AddonData, error) {
		called = true
	}, nil))
	assert.ErrorIs(t, err, assets.ErrNotFound)
	assert.False(t, called)
	assert.Equal(t, 1, logs.FilterMessage("scene not loaded").Len())
}

func TestLoadWrongSectionID(t *testing.T) {
	observe(t)
	l, _ := newLoader(t, fstest.MapFS{
		"assets/sections/lobby.json.gz": {Data: sectionBytes(t, "attic", document.New())},
	})
	err := wait(t, l.Load(context.Background(), "lobby", material.NewLibrary(), nil, nil))
	assert.True(t, errors.Is(err, document.ErrWrongSection))
}

func TestLoadWithoutTextures(t *testing.T) {
	observe(t)
	doc := lobby(t)
	doc.Textures = map[string]document.TextureDefinition{}
	l, _ := newLoader(t, fstest.MapFS{
		"assets/sections/lobby.json.gz": {Data: sectionBytes(t, "lobby", doc)},
	})

	var nodes []*scene.Node
	err := wait(t, l.Load(context.Background(), "lobby", material.NewLibrary(), func(n []*scene.Node, _ *document.Document, _ *texture.Library, _ map[string]document.AddonData, diagnostics error) {
		nodes = n
		assert.NoError(t, diagnostics)
	}, nil))
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	mesh := nodes[0].FindByID("mesh")
	require.NotNil(t, mesh)
	assert.Nil(t, material.Textures(mesh.Mesh.Material)["map"], "unresolved texture leaves the slot empty")
}

func TestApplyRendererSettings(t *testing.T) {
	observe(t)
	l, r := newLoader(t, fstest.MapFS{})
	s := lobby(t).Settings

	l.ApplyToneMapping(s)
	assert.Equal(t, texture.SRGBEncoding, r.OutputEncoding)
	assert.Equal(t, ACESFilmicToneMap, r.ToneMapping)
	assert.Equal(t, float32(1.5), r.Exposure)
	assert.True(t, r.ShadowsEnabled)
	assert.Equal(t, PCFShadowMap, r.ShadowType)
	assert.Equal(t, "336699", r.ClearColor.Hex())
	assert.Equal(t, float32(0.5), r.ClearAlpha)

	sc := scene.New()
	lamp := scene.NewNode(scene.KindPointLight)
	lamp.Light = &scene.Light{ShadowMapSize: scene.DefaultShadowMapSize}
	sc.Add(lamp)
	s.ShadowType = intp(VSMShadowMap)
	l.ApplyShadowSettings(s, sc)
	assert.Equal(t, VSMShadowMap, r.ShadowType)
	assert.Equal(t, 1024, lamp.Light.ShadowMapSize)

	s.Background.Color = "000000"
	l.ApplyBackgroundColor(s)
	assert.Equal(t, "000000", r.ClearColor.Hex())
}

func TestApplyWithoutRenderer(t *testing.T) {
	logs := observe(t)
	l := New(assets.NewManager(), Options{})
	l.ApplyToneMapping(document.Settings{})
	l.ApplyBackgroundColor(document.Settings{})
	assert.Equal(t, 2, logs.FilterMessage("no renderer configured, settings not applied").Len())
}

func TestApplyHDRIMissingTexture(t *testing.T) {
	logs := observe(t)
	l, _ := newLoader(t, fstest.MapFS{})
	sc := scene.New()
	textures := texture.NewLibrary(nil, texture.Options{})

	l.ApplyHDRI(sc, document.Settings{HDRI: "sky"}, textures)
	assert.Nil(t, sc.Environment)
	assert.Equal(t, 1, logs.FilterMessage("HDRI texture not loaded").Len())
}

func TestApplyFog(t *testing.T) {
	observe(t)
	sc := scene.New()
	ApplyFog(sc, document.Settings{Fog: &document.Fog{Enabled: true, Type: document.FogExponential, Color: "ff0000", Params: document.FogParams{Density: float(0.01)}}})
	require.NotNil(t, sc.Fog)
	assert.Equal(t, document.FogExponential, sc.Fog.Type)
	assert.Equal(t, float32(0.01), sc.Fog.Density)
	assert.Equal(t, "ff0000", sc.Fog.Color.Hex())

	ApplyFog(sc, document.Settings{Fog: &document.Fog{Enabled: false}})
	assert.Nil(t, sc.Fog)
}
