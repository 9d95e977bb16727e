package texture

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/scenekit/internal/engine/diff"
	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/document"
)

// Codec diffs textures against Defaults. Geometric and runtime-owned
// properties are never serialized.
var Codec = diff.New("mipmaps", "matrix", "uuid", "image", "source", "userData", "format", "generateMipmaps")

// Fetcher reads asset bytes by path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Options configures a Library.
type Options struct {
	// BasePath is prepended to "<id>/original.<format>" and
	// "<id>/compressed.ktx2".
	BasePath string
	// Concurrency bounds simultaneous loads; 0 means 8.
	Concurrency int
	// Compression allows the KTX2 path for definitions that have one.
	Compression bool
}

// Library owns every texture of a document, keyed by id.
type Library struct {
	fetcher Fetcher
	opts    Options

	mu       sync.RWMutex
	textures map[string]*Texture
	defs     map[string]document.TextureDefinition
	// inflight is closed once the load of an id finishes, successful or not.
	inflight map[string]chan struct{}
}

// NewLibrary creates an empty library reading through f.
func NewLibrary(f Fetcher, opts Options) *Library {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Library{
		fetcher:  f,
		opts:     opts,
		textures: map[string]*Texture{},
		defs:     map[string]document.TextureDefinition{},
		inflight: map[string]chan struct{}{},
	}
}

// SetBasePath changes where subsequent imports load from.
func (l *Library) SetBasePath(base string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opts.BasePath = base
}

// Path returns the file a definition loads from.
func (l *Library) Path(def document.TextureDefinition) string {
	l.mu.RLock()
	base := l.opts.BasePath
	compression := l.opts.Compression
	l.mu.RUnlock()

	if compression && def.KTX.Enabled && def.KTX.Generated {
		return fmt.Sprintf("%s%s/compressed.ktx2", base, def.UUID)
	}
	return fmt.Sprintf("%s%s/original.%s", base, def.UUID, def.Format)
}

type loadResult struct {
	id     string
	tex    *Texture
	err    error
	shared bool
}

type waiter struct {
	id string
	ch chan struct{}
}

// Import starts loading every definition whose id is not resolved yet and
// returns immediately. onProgress receives completed/total after each
// texture and onAllLoaded fires exactly once when all are done. Both run on
// a single goroutine, never concurrently. Ids that are already resolved
// count as completed, as do loads that fail (they are logged and stay
// unresolved), so the batch always finishes. An id still loading for an
// earlier batch is not fetched again; it completes when that load does.
//
// An empty batch calls onAllLoaded before Import returns. The returned
// channel is closed after onAllLoaded has run.
func (l *Library) Import(ctx context.Context, defs map[string]document.TextureDefinition, onAllLoaded func(), onProgress func(float64)) <-chan struct{} {
	if onAllLoaded == nil {
		onAllLoaded = func() {}
	}
	if onProgress == nil {
		onProgress = func(float64) {}
	}
	done := make(chan struct{})

	total := len(defs)
	if total == 0 {
		onAllLoaded()
		close(done)
		return done
	}

	ids := make([]string, 0, total)
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	l.mu.Lock()
	var pending []document.TextureDefinition
	var waits []waiter
	resolved := 0
	for _, id := range ids {
		def := defs[id]
		if def.UUID == "" {
			def.UUID = id
		}
		if _, ok := l.textures[id]; ok {
			l.defs[id] = def
			resolved++
			continue
		}
		if ch, ok := l.inflight[id]; ok {
			waits = append(waits, waiter{id: id, ch: ch})
			continue
		}
		l.defs[id] = def
		l.inflight[id] = make(chan struct{})
		pending = append(pending, def)
	}
	l.mu.Unlock()

	results := make(chan loadResult, len(pending)+len(waits))
	go func() {
		var shared sync.WaitGroup
		for _, w := range waits {
			shared.Add(1)
			go func() {
				defer shared.Done()
				<-w.ch
				results <- loadResult{id: w.id, shared: true}
			}()
		}

		var g errgroup.Group
		g.SetLimit(l.opts.Concurrency)
		for _, def := range pending {
			g.Go(func() error {
				tex, err := l.load(ctx, def)
				results <- loadResult{id: def.UUID, tex: tex, err: err}
				return nil
			})
		}
		_ = g.Wait()
		shared.Wait()
		close(results)
	}()

	go func() {
		defer close(done)
		completed := 0
		step := func() {
			completed++
			onProgress(float64(completed) / float64(total))
			if completed == total {
				onAllLoaded()
			}
		}
		for i := 0; i < resolved; i++ {
			step()
		}
		for res := range results {
			if !res.shared {
				l.finish(res)
			}
			step()
		}
	}()

	return done
}

// finish stores a loaded texture and releases batches waiting on its id.
func (l *Library) finish(res loadResult) {
	if res.err != nil {
		logger.Warn("texture load failed", zap.String("texture", res.id), zap.Error(res.err))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if res.err == nil {
		l.textures[res.id] = res.tex
	}
	if ch, ok := l.inflight[res.id]; ok {
		close(ch)
		delete(l.inflight, res.id)
	}
}

// load fetches, decodes and configures one texture.
func (l *Library) load(ctx context.Context, def document.TextureDefinition) (*Texture, error) {
	path := l.Path(def)
	data, err := l.fetcher.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}

	tex := New()
	if strings.HasSuffix(path, ".ktx2") {
		k, err := ParseKTX2(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		tex.Compressed = k
		tex.Width, tex.Height = int(k.Width), int(k.Height)
		tex.SourceFormat = "ktx2"
	} else {
		img, format, err := DecodeImage(data, def.Format)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if format != normalizeFormat(def.Format) {
			logger.Debug("texture container differs from declared format",
				zap.String("texture", def.UUID), zap.String("declared", def.Format), zap.String("detected", format))
		}
		tex.Image = img
		b := img.Bounds()
		tex.Width, tex.Height = b.Dx(), b.Dy()
		tex.SourceFormat = format
	}

	applyDefinition(tex, def)
	return tex, nil
}

// applyDefinition overlays the definition and the fixed post-load policy:
// flipY stays on unless explicitly false, mipmaps are generated only for
// uncompressed textures.
func applyDefinition(tex *Texture, def document.TextureDefinition) {
	if err := Codec.Decode(tex, def.Data, nil); err != nil {
		logger.Warn("texture properties partially applied", zap.String("texture", def.UUID), zap.Error(err))
	}
	tex.UUID = def.UUID
	flip, isBool := def.Data["flipY"].(bool)
	tex.FlipY = !isBool || flip
	tex.GenerateMipmaps = !def.KTX.Enabled
	tex.NeedsUpdate = true
}

func normalizeFormat(f string) string {
	f = strings.ToLower(f)
	if f == "jpeg" {
		return "jpg"
	}
	return f
}

// Add registers a live texture under its id, replacing nothing: an
// existing id is kept and false is returned.
func (l *Library) Add(tex *Texture) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.textures[tex.UUID]; ok {
		logger.Warn("texture already defined", zap.String("texture", tex.UUID))
		return false
	}
	l.textures[tex.UUID] = tex
	return true
}

// Get returns the resolved texture or nil.
func (l *Library) Get(id string) *Texture {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.textures[id]
}

// Resolve adapts Get to diff.Resolver.
func (l *Library) Resolve(id string) (any, bool) {
	tex := l.Get(id)
	if tex == nil {
		return nil, false
	}
	return tex, true
}

// Definition returns the definition id was imported with.
func (l *Library) Definition(id string) (document.TextureDefinition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	def, ok := l.defs[id]
	return def, ok
}

// IDs returns the resolved texture ids in sorted order.
func (l *Library) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.textures))
	for id := range l.textures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Encode produces the definition that reconstructs tex.
func (l *Library) Encode(tex *Texture) (document.TextureDefinition, error) {
	data, err := Codec.Encode(tex, &Defaults)
	if err != nil {
		return document.TextureDefinition{}, fmt.Errorf("encoding texture %s: %w", tex.UUID, err)
	}
	def := document.TextureDefinition{UUID: tex.UUID, Data: data, Format: "png"}
	if prev, ok := l.Definition(tex.UUID); ok {
		def.Format = prev.Format
		def.KTX = prev.KTX
	} else if tex.SourceFormat != "" && tex.SourceFormat != "ktx2" {
		def.Format = tex.SourceFormat
	}
	return def, nil
}

// Dispose releases every texture. Callers must ensure no live node still
// references them.
func (l *Library) Dispose() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, tex := range l.textures {
		tex.Dispose()
	}
	l.textures = map[string]*Texture{}
	l.defs = map[string]document.TextureDefinition{}
}
