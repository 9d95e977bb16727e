package scene

import (
	"github.com/Faultbox/scenekit/pkg/document"
	"github.com/Faultbox/scenekit/pkg/math"
)

// Kind identifies the live node type.
type Kind int

// Node kinds.
const (
	KindObject3D Kind = iota
	KindGroup
	KindMesh
	KindSkinnedMesh
	KindBone
	KindPerspectiveCamera
	KindOrthographicCamera
	KindDirectionalLight
	KindPointLight
)

var kindTags = map[Kind]string{
	KindObject3D:           document.TypeObject3D,
	KindGroup:              document.TypeGroup,
	KindMesh:               document.TypeMesh,
	KindSkinnedMesh:        document.TypeSkinnedMesh,
	KindBone:               document.TypeBone,
	KindPerspectiveCamera:  document.TypePerspectiveCamera,
	KindOrthographicCamera: document.TypeOrthographicCamera,
	KindDirectionalLight:   document.TypeDirectionalLight,
	KindPointLight:         document.TypePointLight,
}

// String returns the document type tag.
func (k Kind) String() string {
	return kindTags[k]
}

// KindOf maps a document type tag to a kind.
func KindOf(tag string) (Kind, bool) {
	for k, t := range kindTags {
		if t == tag {
			return k, true
		}
	}
	return 0, false
}

// Node is a live scene graph node. Exactly one of Camera, Light and Mesh is
// set for the kinds that carry a payload.
type Node struct {
	UUID string
	Name string
	Kind Kind

	Position   math.Vec3
	Quaternion math.Quat
	Scale      math.Vec3

	// Matrix is the local transform. With MatrixAutoUpdate set it is
	// recomposed from Position, Quaternion and Scale on every world update.
	Matrix           math.Mat4
	MatrixWorld      math.Mat4
	MatrixAutoUpdate bool

	Visible       bool
	FrustumCulled bool
	CastShadow    bool
	ReceiveShadow bool

	UserData map[string]any

	Parent   *Node
	Children []*Node

	Camera *Camera
	Light  *Light
	Mesh   *Mesh
}

// NewNode returns a node at the origin with every flag on.
func NewNode(kind Kind) *Node {
	return &Node{
		Kind:             kind,
		Quaternion:       math.QuatIdentity(),
		Scale:            math.Vec3{X: 1, Y: 1, Z: 1},
		Matrix:           math.Identity(),
		MatrixWorld:      math.Identity(),
		MatrixAutoUpdate: true,
		Visible:          true,
		FrustumCulled:    true,
		CastShadow:       true,
		ReceiveShadow:    true,
		UserData:         map[string]any{},
	}
}

// Add attaches child, detaching it from its previous parent.
func (n *Node) Add(child *Node) {
	if child == nil || child == n {
		return
	}
	if child.Parent != nil {
		child.Parent.Remove(child)
	}
	child.Parent = n
	n.Children = append(n.Children, child)
}

// Remove detaches child if it is a direct child of n.
func (n *Node) Remove(child *Node) {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			child.Parent = nil
			return
		}
	}
}

// ApplyMatrix resets the local transform to identity and then applies m,
// leaving Position, Quaternion and Scale consistent with it.
func (n *Node) ApplyMatrix(m math.Mat4) {
	auto := n.MatrixAutoUpdate
	n.MatrixAutoUpdate = false
	n.Matrix = m.Mul(math.Identity())
	n.Position, n.Quaternion, n.Scale = n.Matrix.Decompose()
	n.MatrixAutoUpdate = auto
}

// UpdateMatrix recomposes Matrix from Position, Quaternion and Scale.
func (n *Node) UpdateMatrix() {
	n.Matrix = math.Compose(n.Position, n.Quaternion, n.Scale)
}

// UpdateMatrixWorld refreshes the world matrices of n and its descendants.
func (n *Node) UpdateMatrixWorld() {
	if n.MatrixAutoUpdate {
		n.UpdateMatrix()
	}
	if n.Parent == nil {
		n.MatrixWorld = n.Matrix
	} else {
		n.MatrixWorld = n.Parent.MatrixWorld.Mul(n.Matrix)
	}
	for _, c := range n.Children {
		c.UpdateMatrixWorld()
	}
}

// WorldPosition returns the translation part of MatrixWorld.
func (n *Node) WorldPosition() math.Vec3 {
	return math.Vec3{X: n.MatrixWorld[12], Y: n.MatrixWorld[13], Z: n.MatrixWorld[14]}
}

// Traverse visits n and its descendants depth-first, parent first.
func (n *Node) Traverse(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Traverse(fn)
	}
}

// FindByID returns the first node in the subtree with the given id.
func (n *Node) FindByID(id string) *Node {
	return n.find(func(x *Node) bool { return x.UUID == id })
}

// FindByName returns the first node in the subtree with the given name.
func (n *Node) FindByName(name string) *Node {
	return n.find(func(x *Node) bool { return x.Name == name })
}

func (n *Node) find(match func(*Node) bool) *Node {
	if match(n) {
		return n
	}
	for _, c := range n.Children {
		if found := c.find(match); found != nil {
			return found
		}
	}
	return nil
}

// Walk visits every node under the given roots.
func Walk(roots []*Node, fn func(*Node)) {
	for _, r := range roots {
		r.Traverse(fn)
	}
}
