// Package material defines the supported material kinds and the library
// that reconstructs them from sparse definitions.
package material

import (
	"reflect"

	"github.com/jinzhu/copier"

	"github.com/Faultbox/scenekit/internal/engine/texture"
	"github.com/Faultbox/scenekit/pkg/math"
)

// Kind identifies a material type.
type Kind int

// Material kinds.
const (
	KindUnlit Kind = iota
	KindPhong
	KindStandard
)

// Type tags as stored in definitions.
const (
	TagUnlit    = "MeshBasicMaterial"
	TagPhong    = "MeshPhongMaterial"
	TagStandard = "MeshStandardMaterial"
)

// Blending, side and combine constants.
const (
	NoBlending     = 0
	NormalBlending = 1

	FrontSide  = 0
	BackSide   = 1
	DoubleSide = 2

	MultiplyOperation = 0

	LessEqualDepth = 3

	TangentSpaceNormalMap = 0
)

// Material is a live material instance.
type Material interface {
	ID() string
	Kind() Kind
	Common() *Base
}

// Base holds properties every kind shares.
type Base struct {
	UUID                string  `prop:"uuid"`
	Name                string  `prop:"name"`
	Blending            int     `prop:"blending"`
	Side                int     `prop:"side"`
	VertexColors        bool    `prop:"vertexColors"`
	Opacity             float32 `prop:"opacity"`
	Transparent         bool    `prop:"transparent"`
	AlphaTest           float32 `prop:"alphaTest"`
	DepthFunc           int     `prop:"depthFunc"`
	DepthTest           bool    `prop:"depthTest"`
	DepthWrite          bool    `prop:"depthWrite"`
	ColorWrite          bool    `prop:"colorWrite"`
	PolygonOffset       bool    `prop:"polygonOffset"`
	PolygonOffsetFactor float32 `prop:"polygonOffsetFactor"`
	PolygonOffsetUnits  float32 `prop:"polygonOffsetUnits"`
	Dithering           bool    `prop:"dithering"`
	PremultipliedAlpha  bool    `prop:"premultipliedAlpha"`
	AlphaToCoverage     bool    `prop:"alphaToCoverage"`
	ToneMapped          bool    `prop:"toneMapped"`
	Visible             bool    `prop:"visible"`
	Wireframe           bool    `prop:"wireframe"`
	WireframeLinewidth  float32 `prop:"wireframeLinewidth"`
	Fog                 bool    `prop:"fog"`
}

// Common returns the shared properties.
func (b *Base) Common() *Base { return b }

// ID returns the material id.
func (b *Base) ID() string { return b.UUID }

// Emission is the emissive term shared by unlit, phong and standard.
type Emission struct {
	Emissive          math.Color       `prop:"emissive"`
	EmissiveIntensity float32          `prop:"emissiveIntensity"`
	EmissiveMap       *texture.Texture `prop:"emissiveMap"`
}

// Maps shared by every kind.
type Maps struct {
	Map               *texture.Texture `prop:"map"`
	LightMap          *texture.Texture `prop:"lightMap"`
	LightMapIntensity float32          `prop:"lightMapIntensity"`
	AOMap             *texture.Texture `prop:"aoMap"`
	AOMapIntensity    float32          `prop:"aoMapIntensity"`
	AlphaMap          *texture.Texture `prop:"alphaMap"`
	EnvMap            *texture.Texture `prop:"envMap"`
}

// Surface holds bump, normal and displacement mapping.
type Surface struct {
	BumpMap           *texture.Texture `prop:"bumpMap"`
	BumpScale         float32          `prop:"bumpScale"`
	NormalMap         *texture.Texture `prop:"normalMap"`
	NormalMapType     int              `prop:"normalMapType"`
	NormalScale       math.Vec2        `prop:"normalScale"`
	DisplacementMap   *texture.Texture `prop:"displacementMap"`
	DisplacementScale float32          `prop:"displacementScale"`
	DisplacementBias  float32          `prop:"displacementBias"`
	FlatShading       bool             `prop:"flatShading"`
}

// Unlit is a basic material with an added emissive term.
type Unlit struct {
	Base
	Maps
	Emission
	Color           math.Color       `prop:"color"`
	SpecularMap     *texture.Texture `prop:"specularMap"`
	Combine         int              `prop:"combine"`
	Reflectivity    float32          `prop:"reflectivity"`
	RefractionRatio float32          `prop:"refractionRatio"`
}

// Kind returns KindUnlit.
func (*Unlit) Kind() Kind { return KindUnlit }

// Phong is a Blinn-Phong shaded material.
type Phong struct {
	Base
	Maps
	Emission
	Surface
	Color           math.Color       `prop:"color"`
	Specular        math.Color       `prop:"specular"`
	Shininess       float32          `prop:"shininess"`
	SpecularMap     *texture.Texture `prop:"specularMap"`
	Combine         int              `prop:"combine"`
	Reflectivity    float32          `prop:"reflectivity"`
	RefractionRatio float32          `prop:"refractionRatio"`
}

// Kind returns KindPhong.
func (*Phong) Kind() Kind { return KindPhong }

// Standard is a metallic/roughness PBR material.
type Standard struct {
	Base
	Maps
	Emission
	Surface
	Color           math.Color       `prop:"color"`
	Roughness       float32          `prop:"roughness"`
	Metalness       float32          `prop:"metalness"`
	RoughnessMap    *texture.Texture `prop:"roughnessMap"`
	MetalnessMap    *texture.Texture `prop:"metalnessMap"`
	EnvMapIntensity float32          `prop:"envMapIntensity"`
}

// Kind returns KindStandard.
func (*Standard) Kind() Kind { return KindStandard }

func baseDefaults() Base {
	return Base{
		Blending:           NormalBlending,
		Side:               FrontSide,
		Opacity:            1,
		DepthFunc:          LessEqualDepth,
		DepthTest:          true,
		DepthWrite:         true,
		ColorWrite:         true,
		ToneMapped:         true,
		Visible:            true,
		WireframeLinewidth: 1,
		Fog:                true,
	}
}

func mapsDefaults() Maps {
	return Maps{LightMapIntensity: 1, AOMapIntensity: 1}
}

func emissionDefaults() Emission {
	return Emission{Emissive: math.Color{}, EmissiveIntensity: 1}
}

func surfaceDefaults() Surface {
	return Surface{
		BumpScale:         1,
		NormalMapType:     TangentSpaceNormalMap,
		NormalScale:       math.Vec2{X: 1, Y: 1},
		DisplacementScale: 1,
	}
}

var white = math.Color{R: 1, G: 1, B: 1}

// kindInfo is the per-kind capability table entry.
type kindInfo struct {
	tag      string
	defaults Material
	alloc    func() Material
}

var kinds = map[Kind]kindInfo{
	KindUnlit: {
		tag: TagUnlit,
		defaults: &Unlit{
			Base:            baseDefaults(),
			Maps:            mapsDefaults(),
			Emission:        emissionDefaults(),
			Color:           white,
			Combine:         MultiplyOperation,
			Reflectivity:    1,
			RefractionRatio: 0.98,
		},
		alloc: func() Material { return &Unlit{} },
	},
	KindPhong: {
		tag: TagPhong,
		defaults: &Phong{
			Base:            baseDefaults(),
			Maps:            mapsDefaults(),
			Emission:        emissionDefaults(),
			Surface:         surfaceDefaults(),
			Color:           white,
			Specular:        math.MustColor("111111"),
			Shininess:       30,
			Combine:         MultiplyOperation,
			Reflectivity:    1,
			RefractionRatio: 0.98,
		},
		alloc: func() Material { return &Phong{} },
	},
	KindStandard: {
		tag: TagStandard,
		defaults: &Standard{
			Base:            baseDefaults(),
			Maps:            mapsDefaults(),
			Emission:        emissionDefaults(),
			Surface:         surfaceDefaults(),
			Color:           white,
			Roughness:       1,
			Metalness:       0,
			EnvMapIntensity: 1,
		},
		alloc: func() Material { return &Standard{} },
	},
}

// String returns the type tag.
func (k Kind) String() string {
	return kinds[k].tag
}

// KindOf maps a type tag to its kind. Unknown tags map to Standard.
func KindOf(tag string) (Kind, bool) {
	for k, info := range kinds {
		if info.tag == tag {
			return k, true
		}
	}
	return KindStandard, false
}

// Defaults returns the shared reference instance of a kind. It must not be
// modified.
func Defaults(k Kind) Material {
	return kinds[k].defaults
}

// New returns a fresh material of kind k with default values.
func New(k Kind) Material {
	info, ok := kinds[k]
	if !ok {
		info = kinds[KindStandard]
	}
	m := info.alloc()
	if err := copier.CopyWithOption(m, info.defaults, copier.Option{DeepCopy: true}); err != nil {
		reflect.ValueOf(m).Elem().Set(reflect.ValueOf(info.defaults).Elem())
	}
	return m
}

var textureType = reflect.TypeOf((*texture.Texture)(nil))

// Textures returns every non-nil texture slot of m keyed by property name.
func Textures(m Material) map[string]*texture.Texture {
	out := map[string]*texture.Texture{}
	collectTextures(reflect.ValueOf(m).Elem(), out)
	return out
}

func collectTextures(v reflect.Value, out map[string]*texture.Texture) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := v.Field(i)
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
			collectTextures(fv, out)
			continue
		}
		if sf.Type == textureType && !fv.IsNil() {
			out[sf.Tag.Get("prop")] = fv.Interface().(*texture.Texture)
		}
	}
}
