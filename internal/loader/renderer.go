package loader

import (
	"sync"

	"github.com/Faultbox/scenekit/internal/engine/texture"
	"github.com/Faultbox/scenekit/pkg/math"
)

// Tone mapping, encoding and shadow map constants as stored in documents.
const (
	NoToneMapping       = 0
	LinearToneMapping   = 1
	ReinhardToneMapping = 2
	CineonToneMapping   = 3
	ACESFilmicToneMap   = 4

	BasicShadowMap   = 0
	PCFShadowMap     = 1
	PCFSoftShadowMap = 2
	VSMShadowMap     = 3

	EquirectangularReflectionMapping = 303
	CubeUVReflectionMapping          = 306
)

// Renderer is the drawing backend the loader configures. Drawing itself
// happens outside this module.
type Renderer interface {
	SetOutputEncoding(encoding int)
	SetToneMapping(mode int, exposure float32)
	SetShadowMap(enabled bool, shadowType int)
	SetClearColor(c math.Color, alpha float32)
	// Environment prefilters an equirectangular texture for image based
	// lighting.
	Environment(equirect *texture.Texture) *texture.Texture
}

// HeadlessRenderer records the state it is given. It backs the command
// line tools and tests.
type HeadlessRenderer struct {
	mu sync.Mutex

	OutputEncoding int
	ToneMapping    int
	Exposure       float32
	ShadowsEnabled bool
	ShadowType     int
	ClearColor     math.Color
	ClearAlpha     float32
}

// NewHeadlessRenderer returns a renderer with an opaque black clear color.
func NewHeadlessRenderer() *HeadlessRenderer {
	return &HeadlessRenderer{
		OutputEncoding: texture.LinearEncoding,
		Exposure:       1,
		ShadowType:     PCFShadowMap,
		ClearAlpha:     1,
	}
}

func (r *HeadlessRenderer) SetOutputEncoding(encoding int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.OutputEncoding = encoding
}

func (r *HeadlessRenderer) SetToneMapping(mode int, exposure float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ToneMapping = mode
	r.Exposure = exposure
}

func (r *HeadlessRenderer) SetShadowMap(enabled bool, shadowType int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ShadowsEnabled = enabled
	r.ShadowType = shadowType
}

func (r *HeadlessRenderer) SetClearColor(c math.Color, alpha float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ClearColor = c
	r.ClearAlpha = alpha
}

// Environment returns a copy of equirect marked as a prefiltered map.
func (r *HeadlessRenderer) Environment(equirect *texture.Texture) *texture.Texture {
	env := *equirect
	env.UUID = equirect.UUID + "-env"
	env.Mapping = CubeUVReflectionMapping
	return &env
}
