// Package exporter serializes a live scene back into a section document.
// Loading the result reproduces the exported scene within the float
// precision of the document format.
package exporter

import (
	"fmt"
	"sort"

	"github.com/xtgo/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/scenekit/internal/engine/animation"
	"github.com/Faultbox/scenekit/internal/engine/geometry"
	"github.com/Faultbox/scenekit/internal/engine/material"
	"github.com/Faultbox/scenekit/internal/engine/scene"
	"github.com/Faultbox/scenekit/internal/engine/texture"
	"github.com/Faultbox/scenekit/internal/loader"
	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/buffer"
	"github.com/Faultbox/scenekit/pkg/document"
	"github.com/Faultbox/scenekit/pkg/math"
)

// Exporter collects the resources reachable from a set of roots.
type Exporter struct {
	// Textures supplies format and KTX metadata of loaded textures.
	Textures *texture.Library
	// Settings are copied into the document as is.
	Settings document.Settings

	doc       *document.Document
	materials map[material.Material]string
	textures  map[*texture.Texture]string
	ids       map[any]string
	errs      error
}

// New creates an exporter. A nil library is replaced by an empty one.
func New(textures *texture.Library, settings document.Settings) *Exporter {
	if textures == nil {
		textures = texture.NewLibrary(nil, texture.Options{})
	}
	return &Exporter{Textures: textures, Settings: settings}
}

// Document serializes roots and the clips of players. Resources that
// cannot be encoded are logged, left out and returned together; the
// document is always returned.
func (e *Exporter) Document(roots []*scene.Node, players []*animation.Player) (*document.Document, error) {
	e.doc = document.New()
	e.doc.Settings = e.Settings
	e.materials = map[material.Material]string{}
	e.textures = map[*texture.Texture]string{}
	e.ids = map[any]string{}
	e.errs = nil

	e.doc.Objects = make([]document.Object, 0, len(roots))
	for _, r := range roots {
		e.doc.Objects = append(e.doc.Objects, e.object(r))
	}
	e.settingsTextures()

	for _, p := range players {
		if p.Root == nil || len(p.Clips) == 0 {
			continue
		}
		clips := make([]document.AnimationData, 0, len(p.Clips))
		for _, c := range p.Clips {
			clips = append(clips, c.Encode())
		}
		e.doc.Animations[e.id(p.Root, p.Root.UUID)] = clips
	}
	return e.doc, e.errs
}

// Section serializes the scene and wraps it in a section envelope.
func (e *Exporter) Section(id string, roots []*scene.Node, players []*animation.Player, addons map[string]document.AddonData) (*document.SectionData, error) {
	doc, errs := e.Document(roots, players)
	sd, err := document.NewSectionData(id, doc, addons)
	if err != nil {
		return nil, multierr.Append(errs, err)
	}
	return sd, errs
}

// Wrapper exports a loaded scene together with its settings and addons.
func Wrapper(w *loader.SceneWrapper) (*document.SectionData, error) {
	var settings document.Settings
	if doc := w.Document(); doc != nil {
		settings = doc.Settings
	}
	e := New(w.Textures(), settings)
	return e.Section(w.ID, w.Scene.Children(), w.Players(), w.Addons())
}

// id returns current, or a generated id that stays stable for key during
// one export. Resources created in code often have no id yet.
func (e *Exporter) id(key any, current string) string {
	if current != "" {
		return current
	}
	if id, ok := e.ids[key]; ok {
		return id
	}
	id := uuid.NewRandom().String()
	e.ids[key] = id
	return id
}

func (e *Exporter) fail(what, id string, err error) {
	logger.Warn("resource not exported", zap.String(what, id), zap.Error(err))
	e.errs = multierr.Append(e.errs, err)
}

func (e *Exporter) object(n *scene.Node) document.Object {
	obj := document.Object{
		UUID:     e.id(n, n.UUID),
		Type:     n.Kind.String(),
		Name:     n.Name,
		Matrix:   matrix(localMatrix(n)),
		Children: make([]document.Object, 0, len(n.Children)),
	}
	if !n.Visible {
		obj.Visible = document.Bool(false)
	}
	if !n.FrustumCulled {
		obj.FrustumCulled = document.Bool(false)
	}
	if !n.CastShadow {
		obj.CastShadow = document.Bool(false)
	}
	if !n.ReceiveShadow {
		obj.ReceiveShadow = document.Bool(false)
	}
	for k, v := range n.UserData {
		if k == "selectable" {
			continue
		}
		if obj.UserData == nil {
			obj.UserData = map[string]any{}
		}
		obj.UserData[k] = v
	}

	if data := e.payload(n); data != nil {
		if err := obj.SetData(data); err != nil {
			e.fail("object", n.UUID, err)
		}
	}
	for _, c := range n.Children {
		obj.Children = append(obj.Children, e.object(c))
	}
	return obj
}

func localMatrix(n *scene.Node) math.Mat4 {
	if n.MatrixAutoUpdate {
		return math.Compose(n.Position, n.Quaternion, n.Scale)
	}
	return n.Matrix
}

func matrix(m math.Mat4) []float64 {
	return buffer.ToSlice(buffer.Float32Array(m[:]))
}

func (e *Exporter) payload(n *scene.Node) any {
	switch n.Kind {
	case scene.KindMesh:
		if n.Mesh == nil {
			return nil
		}
		return e.mesh(n.Mesh)
	case scene.KindSkinnedMesh:
		if n.Mesh == nil {
			return nil
		}
		data := document.SkinnedMeshData{
			MeshData:   e.mesh(n.Mesh),
			BindMode:   n.Mesh.BindMode,
			BindMatrix: matrix(n.Mesh.BindMatrix),
		}
		if sk := n.Mesh.Skeleton; sk != nil {
			data.Skeleton = e.skeleton(sk)
		}
		return data
	case scene.KindPerspectiveCamera:
		if n.Camera == nil {
			return nil
		}
		return document.PerspectiveCameraData{
			Fov:    round(n.Camera.Fov),
			Aspect: round(n.Camera.Aspect),
			Near:   round(n.Camera.Near),
			Far:    round(n.Camera.Far),
		}
	case scene.KindOrthographicCamera:
		if n.Camera == nil {
			return nil
		}
		return document.OrthographicCameraData{
			Left:   round(n.Camera.Left),
			Right:  round(n.Camera.Right),
			Top:    round(n.Camera.Top),
			Bottom: round(n.Camera.Bottom),
			Near:   round(n.Camera.Near),
			Far:    round(n.Camera.Far),
		}
	case scene.KindDirectionalLight:
		if n.Light == nil {
			return nil
		}
		return document.DirectionalLightData{Color: n.Light.Color.Hex(), Intensity: round(n.Light.Intensity)}
	case scene.KindPointLight:
		if n.Light == nil {
			return nil
		}
		return document.PointLightData{
			Color:     n.Light.Color.Hex(),
			Intensity: round(n.Light.Intensity),
			Distance:  round(n.Light.Distance),
			Decay:     round(n.Light.Decay),
		}
	}
	return nil
}

func round(v float32) float64 {
	return buffer.Round(float64(v), 5)
}

func (e *Exporter) mesh(m *scene.Mesh) document.MeshData {
	return document.MeshData{
		Geometry: e.geometry(m.Geometry),
		Material: e.material(m.Material),
	}
}

// geometry writes g once. Empty geometries stand in for missing ones and
// are referenced without being written, so the reference stays dangling.
func (e *Exporter) geometry(g *geometry.Geometry) string {
	if g == nil {
		return ""
	}
	id := e.id(g, g.UUID)
	if _, ok := e.doc.Geometries[id]; ok || len(g.Attributes) == 0 {
		return id
	}
	e.doc.Geometries[id] = geometry.Encode(g)
	return id
}

// material writes m and its textures once. The shared fallback is
// referenced by its reserved id and never written.
func (e *Exporter) material(m material.Material) string {
	if m == nil || m == material.Fallback() {
		return material.FallbackID
	}
	if id, ok := e.materials[m]; ok {
		return id
	}
	id := e.id(m, m.ID())
	e.materials[m] = id

	def, err := material.Encode(m)
	if err != nil {
		e.fail("material", id, err)
		return id
	}
	def.UUID = id

	slots := material.Textures(m)
	names := make([]string, 0, len(slots))
	for name := range slots {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if def.Data == nil {
			def.Data = map[string]any{}
		}
		def.Data[name] = e.texture(slots[name])
	}
	e.doc.Materials[id] = def
	return id
}

// texture writes tex once and returns the id materials reference it by.
func (e *Exporter) texture(tex *texture.Texture) string {
	if id, ok := e.textures[tex]; ok {
		return id
	}
	id := e.id(tex, tex.UUID)
	e.textures[tex] = id
	def, err := e.Textures.Encode(tex)
	if err != nil {
		e.fail("texture", id, err)
		return id
	}
	def.UUID = id
	e.doc.Textures[id] = def
	return id
}

// settingsTextures keeps the background and HDRI textures. Ids that never
// resolved keep their imported definition.
func (e *Exporter) settingsTextures() {
	for _, id := range []string{e.Settings.Background.Texture, e.Settings.HDRI} {
		if id == "" {
			continue
		}
		if _, ok := e.doc.Textures[id]; ok {
			continue
		}
		if tex := e.Textures.Get(id); tex != nil {
			e.texture(tex)
			continue
		}
		if def, ok := e.Textures.Definition(id); ok {
			e.doc.Textures[id] = def
			continue
		}
		e.fail("texture", id, fmt.Errorf("%w: settings texture %q", document.ErrDanglingReference, id))
	}
}

// skeleton writes sk once. Unbound skeletons are only referenced.
func (e *Exporter) skeleton(sk *scene.Skeleton) string {
	id := e.id(sk, sk.UUID)
	if _, ok := e.doc.Skeletons[id]; ok || len(sk.Bones) == 0 {
		return id
	}
	data := document.SkeletonData{
		Bones:        make([]string, len(sk.Bones)),
		BoneInverses: make([][]float64, len(sk.BoneInverses)),
	}
	for i, b := range sk.Bones {
		data.Bones[i] = e.id(b, b.UUID)
	}
	for i, m := range sk.BoneInverses {
		data.BoneInverses[i] = matrix(m)
	}
	e.doc.Skeletons[id] = data
	return id
}
