package document

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"
)

// Validate reports every dangling reference and skeleton length mismatch.
// Problems are collected, never fatal: loaders recover from each of them.
func (d *Document) Validate() error {
	var errs error

	for _, id := range sortedKeys(d.Geometries) {
		g := d.Geometries[id]
		for _, bid := range sortedKeys(g.InterleavedBuffers) {
			ib := g.InterleavedBuffers[bid]
			if _, ok := g.ArrayBuffers[ib.Buffer]; !ok {
				errs = multierr.Append(errs, fmt.Errorf("%w: geometry %s interleaved buffer %s -> array %s",
					ErrDanglingReference, id, bid, ib.Buffer))
			}
			if !ib.Type.Valid() {
				errs = multierr.Append(errs, fmt.Errorf("geometry %s interleaved buffer %s: unknown type %q", id, bid, ib.Type))
			}
		}
		for _, name := range sortedKeys(g.Attributes) {
			attr := g.Attributes[name]
			if attr.Data.IsRef() {
				if _, ok := g.InterleavedBuffers[attr.Data.Ref]; !ok {
					errs = multierr.Append(errs, fmt.Errorf("%w: geometry %s attribute %s -> interleaved buffer %s",
						ErrDanglingReference, id, name, attr.Data.Ref))
				}
			} else if !attr.Type.Valid() {
				errs = multierr.Append(errs, fmt.Errorf("geometry %s attribute %s: unknown type %q", id, name, attr.Type))
			}
		}
	}

	roots := make(map[string]bool, len(d.Objects))
	for i := range d.Objects {
		roots[d.Objects[i].UUID] = true
		d.Objects[i].Walk(func(obj *Object) {
			errs = multierr.Append(errs, d.validateObject(obj))
		})
	}

	for _, id := range sortedKeys(d.Skeletons) {
		sk := d.Skeletons[id]
		if len(sk.Bones) != len(sk.BoneInverses) {
			errs = multierr.Append(errs, fmt.Errorf("%w: skeleton %s has %d bones and %d inverses",
				ErrSkeletonMismatch, id, len(sk.Bones), len(sk.BoneInverses)))
		}
	}

	for _, id := range sortedKeys(d.Animations) {
		if !roots[id] {
			errs = multierr.Append(errs, fmt.Errorf("%w: animation root %s", ErrDanglingReference, id))
		}
	}

	if d.Settings.HDRI != "" {
		if _, ok := d.Textures[d.Settings.HDRI]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: hdri texture %s", ErrDanglingReference, d.Settings.HDRI))
		}
	}
	if tex := d.Settings.Background.Texture; tex != "" {
		if _, ok := d.Textures[tex]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: background texture %s", ErrDanglingReference, tex))
		}
	}

	return errs
}

func (d *Document) validateObject(obj *Object) error {
	switch obj.Type {
	case TypeMesh:
		var data MeshData
		if err := obj.DecodeData(&data); err != nil {
			return err
		}
		return d.validateMesh(obj.UUID, data)
	case TypeSkinnedMesh:
		var data SkinnedMeshData
		if err := obj.DecodeData(&data); err != nil {
			return err
		}
		err := d.validateMesh(obj.UUID, data.MeshData)
		if _, ok := d.Skeletons[data.Skeleton]; !ok {
			err = multierr.Append(err, fmt.Errorf("%w: object %s -> skeleton %s", ErrDanglingReference, obj.UUID, data.Skeleton))
		}
		return err
	}
	return nil
}

func (d *Document) validateMesh(id string, data MeshData) error {
	var errs error
	if _, ok := d.Geometries[data.Geometry]; !ok {
		errs = multierr.Append(errs, fmt.Errorf("%w: object %s -> geometry %s", ErrDanglingReference, id, data.Geometry))
	}
	if _, ok := d.Materials[data.Material]; !ok {
		errs = multierr.Append(errs, fmt.Errorf("%w: object %s -> material %s", ErrDanglingReference, id, data.Material))
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
