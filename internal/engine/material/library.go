package material

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/scenekit/internal/engine/diff"
	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/document"
	"github.com/Faultbox/scenekit/pkg/math"
)

// Codec diffs materials against the per-kind defaults.
var Codec = diff.New("uuid", "_listeners", "userData", "defines", "version", "onBeforeCompile", "shader")

// FallbackID is the id of the instance Get returns for unknown ids.
const FallbackID = "not-assigned"

var fallback = func() *Unlit {
	m := New(KindUnlit).(*Unlit)
	m.UUID = FallbackID
	m.Name = "Not assigned"
	m.Color = math.MustColor("ff00ff")
	return m
}()

// Fallback returns the shared instance used for unknown material ids.
func Fallback() Material {
	return fallback
}

// Library owns every material of a document, keyed by id.
type Library struct {
	mu        sync.RWMutex
	materials map[string]Material
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{materials: map[string]Material{}}
}

// Register builds a material from def and stores it under id. An id that is
// already registered is left untouched and false is returned. Properties
// that fail to decode (for example a texture that is not loaded) are logged
// and skipped; the material is still registered.
func (l *Library) Register(id string, def document.MaterialDefinition, textures diff.Resolver) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.materials[id]; ok {
		logger.Warn("material already defined", zap.String("material", id))
		return false
	}

	kind, known := KindOf(def.Type)
	if !known {
		logger.Warn("unknown material type, using standard",
			zap.String("material", id), zap.String("type", def.Type))
	}
	m := New(kind)
	m.Common().UUID = id
	if err := Codec.Decode(m, def.Data, textures); err != nil {
		logger.Warn("material properties partially applied", zap.String("material", id), zap.Error(err))
	}
	l.materials[id] = m
	return true
}

// RegisterAll registers every definition of a document in id order.
func (l *Library) RegisterAll(defs map[string]document.MaterialDefinition, textures diff.Resolver) {
	ids := make([]string, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		l.Register(id, defs[id], textures)
	}
}

// Add stores a live material under its own id, first writer wins.
func (l *Library) Add(m Material) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.materials[m.ID()]; ok {
		logger.Warn("material already defined", zap.String("material", m.ID()))
		return false
	}
	l.materials[m.ID()] = m
	return true
}

// Get returns the material registered under id, or the fallback.
func (l *Library) Get(id string) Material {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if m, ok := l.materials[id]; ok {
		return m
	}
	return fallback
}

// Has reports whether id is registered.
func (l *Library) Has(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.materials[id]
	return ok
}

// IDs returns the registered ids in sorted order.
func (l *Library) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.materials))
	for id := range l.materials {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Encode produces the sparse definition that reconstructs m.
func Encode(m Material) (document.MaterialDefinition, error) {
	data, err := Codec.Encode(m, Defaults(m.Kind()))
	if err != nil {
		return document.MaterialDefinition{}, fmt.Errorf("encoding material %s: %w", m.ID(), err)
	}
	return document.MaterialDefinition{UUID: m.ID(), Type: m.Kind().String(), Data: data}, nil
}

// Dispose drops every material. Textures are owned by the texture library
// and are not released here.
func (l *Library) Dispose() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.materials = map[string]Material{}
}
