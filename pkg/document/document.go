// Package document defines the serialized scene format: geometries,
// materials, textures, object trees, skeletons and animations, plus the
// section envelope documents travel in.
package document

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Faultbox/scenekit/pkg/buffer"
)

// Document errors.
var (
	ErrDanglingReference = errors.New("dangling reference")
	ErrSkeletonMismatch  = errors.New("skeleton bone/inverse count mismatch")
	ErrInvalidData       = errors.New("invalid object data")
)

// Document is a complete serialized scene.
type Document struct {
	Metadata   Metadata                      `json:"metadata"`
	Settings   Settings                      `json:"settings"`
	Geometries map[string]GeometryData       `json:"geometries"`
	Materials  map[string]MaterialDefinition `json:"materials"`
	Textures   map[string]TextureDefinition  `json:"textures"`
	Objects    []Object                      `json:"objects"`
	Skeletons  map[string]SkeletonData       `json:"skeletons"`
	// Animations are keyed by the id of the node their player attaches to.
	Animations map[string][]AnimationData `json:"animations"`
}

// New returns an empty document with every map allocated.
func New() *Document {
	return &Document{
		Metadata:   Metadata{Version: FormatVersion, Generator: Generator},
		Geometries: map[string]GeometryData{},
		Materials:  map[string]MaterialDefinition{},
		Textures:   map[string]TextureDefinition{},
		Skeletons:  map[string]SkeletonData{},
		Animations: map[string][]AnimationData{},
	}
}

// Format identification written by this package.
const (
	FormatVersion = "1.0"
	Generator     = "scenekit"
)

// Metadata identifies the producer of a document.
type Metadata struct {
	Version   string `json:"version"`
	Generator string `json:"generator"`
}

// GeometryData describes one indexed buffer geometry.
type GeometryData struct {
	Attributes         map[string]AttributeData         `json:"attributes"`
	Index              IndexData                        `json:"index"`
	InterleavedBuffers map[string]InterleavedBufferData `json:"interleavedBuffers"`
	ArrayBuffers       map[string][]float64             `json:"arrayBuffers"`
}

// IndexData is the geometry index sequence.
type IndexData struct {
	Type buffer.ArrayType `json:"type"`
	Data []float64        `json:"data"`
}

// InterleavedBufferData points an interleaved buffer at a raw array.
type InterleavedBufferData struct {
	Buffer string           `json:"buffer"`
	Type   buffer.ArrayType `json:"type"`
	Stride int              `json:"stride"`
}

// AttributeData is either inline or a view into an interleaved buffer.
type AttributeData struct {
	ItemSize int              `json:"itemSize"`
	Offset   int              `json:"offset,omitempty"`
	Type     buffer.ArrayType `json:"type"`
	Data     AttributeSource  `json:"data"`
}

// AttributeSource holds inline values, or the id of an interleaved buffer
// when Ref is set.
type AttributeSource struct {
	Ref    string
	Values []float64
}

// IsRef reports whether the attribute references an interleaved buffer.
func (s AttributeSource) IsRef() bool {
	return s.Ref != ""
}

// MarshalJSON writes a string for references and an array otherwise.
func (s AttributeSource) MarshalJSON() ([]byte, error) {
	if s.IsRef() {
		return json.Marshal(s.Ref)
	}
	if s.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Values)
}

// UnmarshalJSON accepts either a string or a number array.
func (s *AttributeSource) UnmarshalJSON(b []byte) error {
	var ref string
	if err := json.Unmarshal(b, &ref); err == nil {
		*s = AttributeSource{Ref: ref}
		return nil
	}
	var values []float64
	if err := json.Unmarshal(b, &values); err != nil {
		return fmt.Errorf("attribute data must be a buffer id or number array: %w", err)
	}
	*s = AttributeSource{Values: values}
	return nil
}

// MaterialDefinition is a sparse material description.
type MaterialDefinition struct {
	UUID string         `json:"uuid"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// TextureDefinition is a sparse texture description.
type TextureDefinition struct {
	UUID   string         `json:"uuid"`
	Data   map[string]any `json:"data"`
	Format string         `json:"format"`
	KTX    KTXData        `json:"ktx"`
}

// KTXData describes the compressed variant of a texture.
type KTXData struct {
	Enabled   bool `json:"enabled"`
	Generated bool `json:"generated"`
	CLevel    int  `json:"clevel"`
	QLevel    int  `json:"qlevel"`
}

// SkeletonData lists bone ids and their inverse bind matrices.
type SkeletonData struct {
	Bones        []string    `json:"bones"`
	BoneInverses [][]float64 `json:"boneInverses"`
}

// AnimationData is one animation clip.
type AnimationData struct {
	Name      string      `json:"name"`
	Duration  float64     `json:"duration"`
	BlendMode int         `json:"blendMode"`
	Tracks    []TrackData `json:"tracks"`
}

// TrackData is one keyframe track. Type is the value type name
// ("vector", "quaternion", "number", "bool", "string", "color").
//
// Values holds numeric keys, with booleans stored as 0 and 1. String keys
// go to Strings. Keys that are neither leave both empty so the track can be
// dropped on its own.
type TrackData struct {
	Name          string
	Times         []float64
	Values        []float64
	Strings       []string
	Type          string
	Interpolation *int
}

type trackJSON struct {
	Name          string            `json:"name"`
	Times         []float64         `json:"times"`
	Values        []json.RawMessage `json:"values"`
	Type          string            `json:"type"`
	Interpolation *int              `json:"interpolation,omitempty"`
}

// MarshalJSON writes bool tracks as booleans and string tracks as strings.
func (t TrackData) MarshalJSON() ([]byte, error) {
	var values any
	switch {
	case t.Strings != nil:
		values = t.Strings
	case t.Type == "bool":
		flags := make([]bool, len(t.Values))
		for i, v := range t.Values {
			flags[i] = v != 0
		}
		values = flags
	case t.Values != nil:
		values = t.Values
	default:
		values = []float64{}
	}
	times := t.Times
	if times == nil {
		times = []float64{}
	}
	return json.Marshal(struct {
		Name          string    `json:"name"`
		Times         []float64 `json:"times"`
		Values        any       `json:"values"`
		Type          string    `json:"type"`
		Interpolation *int      `json:"interpolation,omitempty"`
	}{t.Name, times, values, t.Type, t.Interpolation})
}

// UnmarshalJSON accepts number, boolean and string keys.
func (t *TrackData) UnmarshalJSON(b []byte) error {
	var raw trackJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*t = TrackData{
		Name:          raw.Name,
		Times:         raw.Times,
		Type:          raw.Type,
		Interpolation: raw.Interpolation,
	}
	t.Values, t.Strings = trackValues(raw.Values)
	return nil
}

func trackValues(raw []json.RawMessage) ([]float64, []string) {
	if len(raw) == 0 {
		return nil, nil
	}
	for _, r := range raw {
		if string(r) == "null" {
			return nil, nil
		}
	}
	var str string
	if json.Unmarshal(raw[0], &str) == nil {
		strs := make([]string, len(raw))
		for i, r := range raw {
			if json.Unmarshal(r, &strs[i]) != nil {
				return nil, nil
			}
		}
		return nil, strs
	}

	nums := make([]float64, len(raw))
	for i, r := range raw {
		var flag bool
		switch {
		case json.Unmarshal(r, &nums[i]) == nil:
		case json.Unmarshal(r, &flag) == nil:
			if flag {
				nums[i] = 1
			}
		default:
			return nil, nil
		}
	}
	return nums, nil
}
