package loader

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/scenekit/internal/engine/animation"
	"github.com/Faultbox/scenekit/internal/engine/material"
	"github.com/Faultbox/scenekit/internal/engine/scene"
	"github.com/Faultbox/scenekit/internal/engine/texture"
	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/document"
)

// WrapperOptions selects the settings applied after loading.
type WrapperOptions struct {
	ApplyHDRI              bool
	ApplyBackgroundTexture bool
	ApplyFog               bool
}

// SceneWrapper owns one loaded scene: its nodes, animation players and the
// libraries holding their resources. It loads at most once.
type SceneWrapper struct {
	ID        string
	Scene     *scene.Scene
	Materials *material.Library

	loader *Loader
	opts   WrapperOptions

	mu       sync.Mutex
	started  bool
	loaded   bool
	textures *texture.Library
	players  []*animation.Player
	doc      *document.Document
	addons   map[string]document.AddonData
	diag     error
}

// NewSceneWrapper creates an unloaded wrapper for sceneID.
func NewSceneWrapper(id string, l *Loader, materials *material.Library, opts WrapperOptions) *SceneWrapper {
	return &SceneWrapper{
		ID:        id,
		Scene:     scene.New(),
		Materials: materials,
		loader:    l,
		opts:      opts,
	}
}

// Load starts loading the scene. A second call, even while the first is
// still running, is rejected with ErrAlreadyLoaded and changes nothing.
// onLoaded runs after nodes, players and settings are in place.
func (w *SceneWrapper) Load(ctx context.Context, onLoaded func(), onProgress func(float64)) <-chan error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		logger.Debug("scene load ignored", zap.String("scene", w.ID))
		out := make(chan error, 1)
		out <- ErrAlreadyLoaded
		close(out)
		return out
	}
	w.started = true
	w.mu.Unlock()

	done := w.loader.Load(ctx, w.ID, w.Materials, func(nodes []*scene.Node, doc *document.Document, textures *texture.Library, addons map[string]document.AddonData, diagnostics error) {
		w.Scene.Add(nodes...)
		w.Scene.UpdateMatrixWorld()
		players, animErr := animation.Attach(doc.Animations, w.Scene.Children())

		w.mu.Lock()
		w.textures = textures
		w.players = players
		w.doc = doc
		w.addons = addons
		w.diag = multierr.Append(diagnostics, animErr)
		w.loaded = true
		w.mu.Unlock()

		w.applySettings(doc.Settings, textures)
		if onLoaded != nil {
			onLoaded()
		}
	}, onProgress)

	out := make(chan error, 1)
	go func() {
		defer close(out)
		err := <-done
		if err != nil {
			w.mu.Lock()
			w.started = false
			w.mu.Unlock()
		}
		out <- err
	}()
	return out
}

func (w *SceneWrapper) applySettings(s document.Settings, textures *texture.Library) {
	if w.opts.ApplyBackgroundTexture {
		ApplyBackgroundTexture(w.Scene, s, textures)
	}
	if w.opts.ApplyHDRI {
		w.loader.ApplyHDRI(w.Scene, s, textures)
	}
	if w.opts.ApplyFog {
		ApplyFog(w.Scene, s)
	}
}

// Loaded reports whether the scene finished loading.
func (w *SceneWrapper) Loaded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loaded
}

// Document returns the loaded document, or nil.
func (w *SceneWrapper) Document() *document.Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc
}

// Textures returns the texture library of the loaded scene, or nil.
func (w *SceneWrapper) Textures() *texture.Library {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.textures
}

// Addons returns the addon envelopes of the loaded section.
func (w *SceneWrapper) Addons() map[string]document.AddonData {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addons
}

// Diagnostics returns the non-fatal problems met while building the scene
// and attaching its animations, or nil.
func (w *SceneWrapper) Diagnostics() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.diag
}

// Players returns one animation player per animated root.
func (w *SceneWrapper) Players() []*animation.Player {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.players
}

// Player returns the player attached to root id, or nil.
func (w *SceneWrapper) Player(rootID string) *animation.Player {
	for _, p := range w.Players() {
		if p.Root.UUID == rootID {
			return p
		}
	}
	return nil
}

// Play starts clip index on the player attached to rootID.
func (w *SceneWrapper) Play(rootID string, index int, loop bool, speed float32) error {
	p := w.Player(rootID)
	if p == nil {
		logger.Warn("animation not played", zap.String("root", rootID), zap.Error(ErrNoPlayer))
		return fmt.Errorf("%w: %s", ErrNoPlayer, rootID)
	}
	return p.Play(index, loop, speed)
}

// Update advances every animation player by dt seconds.
func (w *SceneWrapper) Update(dt float32) {
	animation.Update(w.Players(), dt)
}

// Dispose releases materials, textures and geometries. No node may be
// used afterwards.
func (w *SceneWrapper) Dispose() {
	w.mu.Lock()
	textures := w.textures
	w.players = nil
	w.mu.Unlock()

	w.Scene.Traverse(func(n *scene.Node) {
		if n.Mesh != nil && n.Mesh.Geometry != nil {
			n.Mesh.Geometry.Dispose()
		}
	})
	w.Materials.Dispose()
	if textures != nil {
		textures.Dispose()
	}
}
