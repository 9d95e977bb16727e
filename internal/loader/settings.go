package loader

import (
	"go.uber.org/zap"

	"github.com/Faultbox/scenekit/internal/engine/scene"
	"github.com/Faultbox/scenekit/internal/engine/texture"
	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/document"
	"github.com/Faultbox/scenekit/pkg/math"
)

func (l *Loader) requireRenderer() Renderer {
	r := l.Renderer()
	if r == nil {
		logger.Warn("no renderer configured, settings not applied")
	}
	return r
}

// ApplyToneMapping configures output encoding, tone mapping, shadows and
// the clear color.
func (l *Loader) ApplyToneMapping(s document.Settings) {
	r := l.requireRenderer()
	if r == nil {
		return
	}
	r.SetOutputEncoding(s.OutputEncoding)
	r.SetToneMapping(s.ToneMapping, float32(s.ToneMappingExposure))
	r.SetShadowMap(s.Shadows, shadowType(s))
	setClearColor(r, s.Background)
}

// ApplyShadowSettings enables shadow mapping on the renderer. When sc is
// given and the settings carry a shadow map size, every light of the scene
// is resized to it.
func (l *Loader) ApplyShadowSettings(s document.Settings, sc *scene.Scene) {
	r := l.requireRenderer()
	if r == nil {
		return
	}
	r.SetShadowMap(s.Shadows, shadowType(s))
	if sc == nil || s.ShadowMapSize == nil {
		return
	}
	sc.Traverse(func(n *scene.Node) {
		if n.Light != nil {
			n.Light.ShadowMapSize = *s.ShadowMapSize
		}
	})
}

// ApplyBackgroundColor sets the renderer clear color.
func (l *Loader) ApplyBackgroundColor(s document.Settings) {
	r := l.requireRenderer()
	if r == nil {
		return
	}
	setClearColor(r, s.Background)
}

// ApplyHDRI uses the settings' HDRI texture as scene environment.
func (l *Loader) ApplyHDRI(sc *scene.Scene, s document.Settings, textures *texture.Library) {
	r := l.requireRenderer()
	if r == nil {
		return
	}
	if s.HDRI == "" {
		logger.Debug("no HDRI defined, skipping")
		return
	}
	tex := textures.Get(s.HDRI)
	if tex == nil {
		logger.Warn("HDRI texture not loaded", zap.String("texture", s.HDRI))
		return
	}
	tex.Mapping = EquirectangularReflectionMapping
	sc.Environment = r.Environment(tex)
}

// ApplyBackgroundTexture sets the scene background from the settings.
func ApplyBackgroundTexture(sc *scene.Scene, s document.Settings, textures *texture.Library) {
	if s.Background.Texture == "" {
		logger.Debug("no background texture defined, skipping")
		return
	}
	tex := textures.Get(s.Background.Texture)
	if tex == nil {
		logger.Warn("background texture not loaded", zap.String("texture", s.Background.Texture))
		return
	}
	sc.Background = tex
}

// ApplyFog sets or clears the scene fog.
func ApplyFog(sc *scene.Scene, s document.Settings) {
	if s.Fog == nil || !s.Fog.Enabled {
		sc.Fog = nil
		return
	}
	fog := &scene.Fog{Type: s.Fog.Type, Near: 1, Far: 1000, Density: 0.00025}
	if c, err := math.ColorFromHex(s.Fog.Color); err == nil {
		fog.Color = c
	} else {
		logger.Warn("invalid fog color", zap.String("color", s.Fog.Color), zap.Error(err))
	}
	if p := s.Fog.Params.Near; p != nil {
		fog.Near = float32(*p)
	}
	if p := s.Fog.Params.Far; p != nil {
		fog.Far = float32(*p)
	}
	if p := s.Fog.Params.Density; p != nil {
		fog.Density = float32(*p)
	}
	sc.Fog = fog
}

func shadowType(s document.Settings) int {
	if s.ShadowType == nil {
		return PCFShadowMap
	}
	return *s.ShadowType
}

func setClearColor(r Renderer, bg document.Background) {
	c, err := math.ColorFromHex(bg.Color)
	if err != nil {
		logger.Warn("invalid background color", zap.String("color", bg.Color), zap.Error(err))
		return
	}
	r.SetClearColor(c, float32(bg.Alpha))
}
