// Package loader fetches scene sections and turns them into live scene
// graphs. Loading is two-phase: every texture of the document is fetched
// concurrently, and only once all of them have settled are materials
// registered and the node tree built.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/scenekit/internal/engine/geometry"
	"github.com/Faultbox/scenekit/internal/engine/material"
	"github.com/Faultbox/scenekit/internal/engine/scene"
	"github.com/Faultbox/scenekit/internal/engine/texture"
	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/document"
)

// Loader errors.
var (
	ErrNotInitialized = errors.New("loader is not initialized")
	ErrAlreadyLoaded  = errors.New("scene already loaded")
	ErrNoPlayer       = errors.New("no animation player for root")
)

// ParsedProgress is the share of progress reported once the section is
// parsed; texture loading fills the rest.
const ParsedProgress = 0.4

// Fetcher reads asset bytes by path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Options configures a Loader.
type Options struct {
	// Compression lets textures load their KTX2 variant when one exists.
	Compression bool
	// TextureConcurrency bounds simultaneous texture loads.
	TextureConcurrency int
	// FetchTimeout bounds every single fetch; 0 disables it.
	FetchTimeout time.Duration
	// Validate logs dangling references before building.
	Validate bool
}

// OnLoaded receives the built top-level nodes, the document they came
// from, the texture library that now owns their textures and the addon
// envelopes of the section. diagnostics combines the non-fatal build
// problems and is nil for a clean document.
type OnLoaded func(nodes []*scene.Node, doc *document.Document, textures *texture.Library, addons map[string]document.AddonData, diagnostics error)

// Loader loads sections below a base path. It must be initialized with a
// renderer and a base path before use.
type Loader struct {
	fetcher Fetcher
	opts    Options

	mu       sync.RWMutex
	renderer Renderer
	basePath string
}

// New creates an uninitialized loader reading through f.
func New(f Fetcher, opts Options) *Loader {
	if opts.FetchTimeout > 0 {
		f = timeoutFetcher{inner: f, timeout: opts.FetchTimeout}
	}
	return &Loader{fetcher: f, opts: opts}
}

// Init sets the renderer and the asset base path. basePath is used as a
// plain prefix and should end with a slash when not empty.
func (l *Loader) Init(r Renderer, basePath string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.renderer = r
	l.basePath = basePath
}

// Initialized reports whether Init has been called with a renderer.
func (l *Loader) Initialized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.renderer != nil
}

// Renderer returns the configured renderer or nil.
func (l *Loader) Renderer() Renderer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.renderer
}

// BasePath returns the configured base path.
func (l *Loader) BasePath() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.basePath
}

// SectionPath returns where the section of sceneID is read from.
func (l *Loader) SectionPath(sceneID string) string {
	return fmt.Sprintf("%ssections/%s.json.gz", l.BasePath(), sceneID)
}

// TexturePath returns the base path of the texture library.
func (l *Loader) TexturePath() string {
	return l.BasePath() + "textures/"
}

// Load fetches and builds sceneID without blocking. onLoaded runs once the
// whole scene is built; onProgress receives the parse milestone and then
// texture progress. Either may be nil.
//
// The returned channel yields the outcome and is then closed. On any
// failure, including an uninitialized loader, onLoaded is not called and
// the failure is logged.
func (l *Loader) Load(ctx context.Context, sceneID string, materials *material.Library, onLoaded OnLoaded, onProgress func(float64)) <-chan error {
	out := make(chan error, 1)
	if !l.Initialized() {
		logger.Warn("loader used before Init", zap.String("scene", sceneID))
		out <- ErrNotInitialized
		close(out)
		return out
	}
	if onLoaded == nil {
		onLoaded = func([]*scene.Node, *document.Document, *texture.Library, map[string]document.AddonData, error) {}
	}
	if onProgress == nil {
		onProgress = func(float64) {}
	}

	go func() {
		defer close(out)
		err := l.load(ctx, sceneID, materials, onLoaded, onProgress)
		if err != nil {
			logger.Warn("scene not loaded", zap.String("scene", sceneID), zap.Error(err))
		}
		out <- err
	}()
	return out
}

func (l *Loader) load(ctx context.Context, sceneID string, materials *material.Library, onLoaded OnLoaded, onProgress func(float64)) error {
	raw, err := l.fetcher.Fetch(ctx, l.SectionPath(sceneID))
	if err != nil {
		return fmt.Errorf("fetching section %s: %w", sceneID, err)
	}
	sd, err := document.DecodeSection(raw)
	if err != nil {
		return err
	}

	section := document.NewSection(sceneID)
	if err := section.Import(sd); err != nil {
		return err
	}
	sd = section.Export()

	doc, err := sd.Document()
	if err != nil {
		return err
	}
	if l.opts.Validate {
		if err := doc.Validate(); err != nil {
			logger.Warn("document has broken references", zap.String("scene", sceneID), zap.Error(err))
		}
	}
	onProgress(ParsedProgress)

	textures := texture.NewLibrary(l.fetcher, texture.Options{
		BasePath:    l.TexturePath(),
		Concurrency: l.opts.TextureConcurrency,
		Compression: l.opts.Compression,
	})

	done := textures.Import(ctx, doc.Textures, func() {
		nodes, diagnostics := Build(doc, materials, textures)
		onLoaded(nodes, doc, textures, sd.Addons, diagnostics)
	}, func(p float64) {
		onProgress(ParsedProgress + (1-ParsedProgress)*p)
	})
	<-done
	return nil
}

// Build runs the second phase on an already parsed document: it registers
// the materials against textures, assembles the geometries, builds the node
// tree and binds skeletons. Each step logs its own diagnostics; they are
// also returned combined. The nodes are usable either way.
func Build(doc *document.Document, materials *material.Library, textures *texture.Library) ([]*scene.Node, error) {
	materials.RegisterAll(doc.Materials, textures.Resolve)

	geometries := geometry.NewLibrary()
	geoErr := geometries.Build(doc.Geometries)

	nodes, buildErr := scene.NewBuilder(geometries, materials).Build(doc.Objects)
	bindErr := scene.BindSkeletons(nodes, doc.Skeletons)
	return nodes, multierr.Combine(geoErr, buildErr, bindErr)
}

type timeoutFetcher struct {
	inner   Fetcher
	timeout time.Duration
}

func (f timeoutFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.inner.Fetch(ctx, path)
}
