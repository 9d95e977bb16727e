// Package scene holds the live scene graph and builds it from object
// descriptors in two phases: Builder.Build creates the node tree, then
// BindSkeletons connects skinned meshes to the bones of that tree.
package scene

import (
	"github.com/Faultbox/scenekit/internal/engine/texture"
	"github.com/Faultbox/scenekit/pkg/document"
	"github.com/Faultbox/scenekit/pkg/math"
)

// Fog is the applied scene fog.
type Fog struct {
	Type    document.FogType
	Color   math.Color
	Near    float32
	Far     float32
	Density float32
}

// Scene is the container the loaded roots are attached to.
type Scene struct {
	Root *Node

	Background  *texture.Texture
	Environment *texture.Texture
	Fog         *Fog
}

// New creates an empty scene.
func New() *Scene {
	root := NewNode(KindObject3D)
	root.Name = "Scene"
	return &Scene{Root: root}
}

// Add attaches nodes to the scene root.
func (s *Scene) Add(nodes ...*Node) {
	for _, n := range nodes {
		s.Root.Add(n)
	}
}

// Remove detaches nodes from the scene root.
func (s *Scene) Remove(nodes ...*Node) {
	for _, n := range nodes {
		s.Root.Remove(n)
	}
}

// Children returns the top-level nodes.
func (s *Scene) Children() []*Node {
	return s.Root.Children
}

// FindByID searches the whole scene.
func (s *Scene) FindByID(id string) *Node {
	return s.Root.FindByID(id)
}

// Traverse visits every node of the scene, the root included.
func (s *Scene) Traverse(fn func(*Node)) {
	s.Root.Traverse(fn)
}

// UpdateMatrixWorld refreshes every world matrix.
func (s *Scene) UpdateMatrixWorld() {
	s.Root.UpdateMatrixWorld()
}
