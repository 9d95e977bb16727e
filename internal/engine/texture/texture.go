// Package texture resolves texture definitions into decoded textures.
package texture

import (
	"image"

	"github.com/jinzhu/copier"

	"github.com/Faultbox/scenekit/pkg/math"
)

// Sampler and format constants, numerically compatible with WebGL scene
// documents.
const (
	UVMapping = 300

	RepeatWrapping         = 1000
	ClampToEdgeWrapping    = 1001
	MirroredRepeatWrapping = 1002

	NearestFilter            = 1003
	LinearFilter             = 1006
	LinearMipmapLinearFilter = 1008

	UnsignedByteType = 1009
	RGBAFormat       = 1023

	LinearEncoding = 3000
	SRGBEncoding   = 3001
)

// Texture is a decoded image plus its sampling parameters.
type Texture struct {
	UUID             string    `prop:"uuid"`
	Name             string    `prop:"name"`
	Mapping          int       `prop:"mapping"`
	WrapS            int       `prop:"wrapS"`
	WrapT            int       `prop:"wrapT"`
	MagFilter        int       `prop:"magFilter"`
	MinFilter        int       `prop:"minFilter"`
	Anisotropy       int       `prop:"anisotropy"`
	Format           int       `prop:"format"`
	Type             int       `prop:"type"`
	Offset           math.Vec2 `prop:"offset"`
	Repeat           math.Vec2 `prop:"repeat"`
	Center           math.Vec2 `prop:"center"`
	Rotation         float32   `prop:"rotation"`
	GenerateMipmaps  bool      `prop:"generateMipmaps"`
	PremultiplyAlpha bool      `prop:"premultiplyAlpha"`
	FlipY            bool      `prop:"flipY"`
	UnpackAlignment  int       `prop:"unpackAlignment"`
	Encoding         int       `prop:"encoding"`

	// Image is set for directly decoded textures, Compressed for KTX2 ones.
	Image      image.Image
	Compressed *KTX2
	Width      int
	Height     int

	// SourceFormat is the container the texture was loaded from
	// ("png", "jpg", "webp", "tga" or "ktx2").
	SourceFormat string
	NeedsUpdate  bool
}

// Defaults is the reference instance definitions are diffed against.
var Defaults = Texture{
	Mapping:          UVMapping,
	WrapS:            ClampToEdgeWrapping,
	WrapT:            ClampToEdgeWrapping,
	MagFilter:        LinearFilter,
	MinFilter:        LinearMipmapLinearFilter,
	Anisotropy:       1,
	Format:           RGBAFormat,
	Type:             UnsignedByteType,
	Offset:           math.Vec2{X: 0, Y: 0},
	Repeat:           math.Vec2{X: 1, Y: 1},
	Center:           math.Vec2{X: 0, Y: 0},
	Rotation:         0,
	GenerateMipmaps:  true,
	PremultiplyAlpha: false,
	FlipY:            true,
	UnpackAlignment:  4,
	Encoding:         LinearEncoding,
}

// New returns a texture initialized from Defaults.
func New() *Texture {
	t := &Texture{}
	if err := copier.CopyWithOption(t, &Defaults, copier.Option{DeepCopy: true}); err != nil {
		*t = Defaults
	}
	return t
}

// ResourceID returns the texture id; materials reference textures by it.
func (t *Texture) ResourceID() string {
	return t.UUID
}

// Dispose drops the pixel data.
func (t *Texture) Dispose() {
	t.Image = nil
	t.Compressed = nil
	t.NeedsUpdate = false
}
