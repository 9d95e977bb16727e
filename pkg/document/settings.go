package document

// Settings holds scene-wide rendering settings.
type Settings struct {
	OutputEncoding      int        `json:"outputEncoding"`
	ToneMapping         int        `json:"toneMapping"`
	ToneMappingExposure float64    `json:"toneMappingExposure"`
	Shadows             bool       `json:"shadows"`
	ShadowType          *int       `json:"shadowType,omitempty"`
	ShadowMapSize       *int       `json:"shadowMapSize,omitempty"`
	Background          Background `json:"background"`
	HDRI                string     `json:"hdri,omitempty"`
	Fog                 *Fog       `json:"fog,omitempty"`
}

// Background is the clear color and optional background texture id.
type Background struct {
	Color   string  `json:"color"`
	Alpha   float64 `json:"alpha"`
	Texture string  `json:"texture,omitempty"`
}

// FogType selects the fog falloff.
type FogType int

// Fog types.
const (
	FogLinear FogType = iota
	FogExponential
)

// Fog describes scene fog. Near/Far apply to linear fog, Density to
// exponential fog.
type Fog struct {
	Enabled bool      `json:"enabled"`
	Type    FogType   `json:"type"`
	Color   string    `json:"color"`
	Params  FogParams `json:"params"`
}

// FogParams is the union of linear and exponential fog parameters.
type FogParams struct {
	Near    *float64 `json:"near,omitempty"`
	Far     *float64 `json:"far,omitempty"`
	Density *float64 `json:"density,omitempty"`
}
