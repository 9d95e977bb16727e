package scene

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/document"
	"github.com/Faultbox/scenekit/pkg/math"
)

// Bones collects every bone under roots keyed by id.
func Bones(roots []*Node) map[string]*Node {
	bones := map[string]*Node{}
	Walk(roots, func(n *Node) {
		if n.Kind == KindBone {
			bones[n.UUID] = n
		}
	})
	return bones
}

// BindSkeletons is the second build phase. It must run after Build has
// produced the complete tree, since skinned meshes may precede their bones.
//
// For every skinned mesh the pending skeleton descriptor is resolved bone by
// bone. A bone id missing from the tree is replaced by a placeholder bone
// carrying that id, and a missing inverse matrix by identity, so the
// skeleton always has one bone and one inverse per listed id. Every such
// repair is logged and returned; binding continues.
func BindSkeletons(roots []*Node, skeletons map[string]document.SkeletonData) error {
	bones := Bones(roots)
	var errs error
	warn := func(mesh *Node, err error) {
		logger.Warn("skeleton repaired", zap.String("mesh", mesh.UUID), zap.Error(err))
		errs = multierr.Append(errs, err)
	}

	Walk(roots, func(n *Node) {
		if n.Kind != KindSkinnedMesh || n.Mesh == nil || n.Mesh.Skeleton == nil {
			return
		}
		sk := n.Mesh.Skeleton
		data, ok := skeletons[sk.UUID]
		if !ok {
			warn(n, fmt.Errorf("%w: skeleton %q", document.ErrDanglingReference, sk.UUID))
			return
		}
		if len(data.Bones) != len(data.BoneInverses) {
			warn(n, fmt.Errorf("%w: skeleton %q has %d bones and %d inverses",
				document.ErrSkeletonMismatch, sk.UUID, len(data.Bones), len(data.BoneInverses)))
		}

		list := make([]*Node, len(data.Bones))
		inverses := make([]math.Mat4, len(data.Bones))
		for i, id := range data.Bones {
			bone, ok := bones[id]
			if !ok {
				warn(n, fmt.Errorf("%w: bone %q", document.ErrDanglingReference, id))
				bone = NewNode(KindBone)
				bone.UUID = id
			}
			list[i] = bone
			inverses[i] = math.Identity()
			if i < len(data.BoneInverses) {
				inverses[i] = math.FromArray(data.BoneInverses[i])
			}
		}

		sk.Bones = list
		sk.BoneInverses = inverses
		sk.Init()
		n.Mesh.Bind(sk, n.Mesh.BindMatrix)
	})
	return errs
}
