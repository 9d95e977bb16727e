// Package diff encodes objects as the sparse set of properties that differ
// from a default instance, and overlays such a set back onto an instance.
//
// Properties are struct fields tagged `prop:"name"`, including fields of
// embedded structs. Each field is handled by the first matching strategy:
//
//   - resource handles (implement Resource): compared by pointer identity,
//     encoded as their id, decoded through a Resolver
//   - colors (Hex/SetHex): compared component-wise, encoded as hex
//   - vectors (Components/SetComponents): compared component-wise,
//     encoded as {"x":..,"y":..}, decoded from an object or an array
//   - bools, numbers and strings: compared exactly
package diff

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/buffer"
)

// Codec errors.
var (
	ErrNotStruct       = errors.New("value is not a struct pointer")
	ErrKindMismatch    = errors.New("instance and default differ in type")
	ErrUnknownProperty = errors.New("unknown property")
	ErrTypeMismatch    = errors.New("property type mismatch")
	ErrUnresolved      = errors.New("unresolved resource")
)

// Properties is a sparse property map as stored in documents.
type Properties = map[string]any

// Resource is a shared handle referenced by id, such as a texture.
type Resource interface {
	ResourceID() string
}

// Resolver looks up a resource by id.
type Resolver func(id string) (any, bool)

type colorLike interface {
	Hex() string
}

type colorSetter interface {
	SetHex(s string) error
}

type vectorLike interface {
	Components() []float64
}

type vectorSetter interface {
	SetComponents(c []float64)
}

var (
	resourceType     = reflect.TypeOf((*Resource)(nil)).Elem()
	colorType        = reflect.TypeOf((*colorLike)(nil)).Elem()
	colorSetterType  = reflect.TypeOf((*colorSetter)(nil)).Elem()
	vectorType       = reflect.TypeOf((*vectorLike)(nil)).Elem()
	vectorSetterType = reflect.TypeOf((*vectorSetter)(nil)).Elem()
)

type strategy int

const (
	strategyScalar strategy = iota
	strategyResource
	strategyColor
	strategyVector
)

type field struct {
	name     string
	index    []int
	strategy strategy
}

// Codec is a diff encoder/decoder with a fixed exclusion list.
type Codec struct {
	exclude map[string]bool
	fields  sync.Map // reflect.Type -> []field
}

// New creates a codec that never reads or writes the excluded names.
func New(exclude ...string) *Codec {
	c := &Codec{exclude: make(map[string]bool, len(exclude))}
	for _, name := range exclude {
		c.exclude[name] = true
	}
	return c
}

// Excluded reports whether name is on the exclusion list.
func (c *Codec) Excluded(name string) bool {
	return c.exclude[name]
}

// Fields returns the property names of v's type in declaration order.
func (c *Codec) Fields(v any) []string {
	rv, err := structValue(v)
	if err != nil {
		return nil
	}
	var names []string
	for _, f := range c.fieldsOf(rv.Type()) {
		names = append(names, f.name)
	}
	return names
}

// Encode returns every property of instance that differs from def.
func (c *Codec) Encode(instance, def any) (Properties, error) {
	iv, err := structValue(instance)
	if err != nil {
		return nil, err
	}
	dv, err := structValue(def)
	if err != nil {
		return nil, err
	}
	if iv.Type() != dv.Type() {
		return nil, fmt.Errorf("%w: %s vs %s", ErrKindMismatch, iv.Type(), dv.Type())
	}

	out := Properties{}
	for _, f := range c.fieldsOf(iv.Type()) {
		a := iv.FieldByIndex(f.index)
		b := dv.FieldByIndex(f.index)
		if equal(f.strategy, a, b) {
			continue
		}
		out[f.name] = encodeValue(f.strategy, a)
	}
	return out, nil
}

// Decode overlays data onto instance. Problems with individual properties
// (unknown names, wrong types, resources the resolver cannot find) are
// logged and returned together; the remaining properties are still applied
// and the offending field keeps its current value.
func (c *Codec) Decode(instance any, data Properties, resolve Resolver) error {
	iv, err := structValue(instance)
	if err != nil {
		return err
	}

	byName := map[string]field{}
	for _, f := range c.fieldsOf(iv.Type()) {
		byName[f.name] = f
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs error
	for _, key := range keys {
		if c.exclude[key] {
			continue
		}
		f, ok := byName[key]
		if !ok {
			errs = multierr.Append(errs, warn(fmt.Errorf("%w: %s", ErrUnknownProperty, key)))
			continue
		}
		if err := decodeValue(f, iv.FieldByIndex(f.index), data[key], resolve); err != nil {
			errs = multierr.Append(errs, warn(err))
		}
	}
	return errs
}

func warn(err error) error {
	logger.Warn("property not applied", zap.Error(err))
	return err
}

func structValue(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: %T", ErrNotStruct, v)
	}
	return rv.Elem(), nil
}

func (c *Codec) fieldsOf(t reflect.Type) []field {
	if cached, ok := c.fields.Load(t); ok {
		return cached.([]field)
	}
	var out []field
	c.collect(t, nil, &out)
	c.fields.Store(t, out)
	return out
}

func (c *Codec) collect(t reflect.Type, prefix []int, out *[]field) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int(nil), prefix...), i)
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
			c.collect(sf.Type, index, out)
			continue
		}
		name := sf.Tag.Get("prop")
		if name == "" || name == "-" || !sf.IsExported() || c.exclude[name] {
			continue
		}
		*out = append(*out, field{name: name, index: index, strategy: classify(sf.Type)})
	}
}

func classify(t reflect.Type) strategy {
	switch {
	case t.Implements(resourceType) && (t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface):
		return strategyResource
	case t.Implements(colorType) && reflect.PointerTo(t).Implements(colorSetterType):
		return strategyColor
	case t.Implements(vectorType) && reflect.PointerTo(t).Implements(vectorSetterType):
		return strategyVector
	}
	return strategyScalar
}

func equal(s strategy, a, b reflect.Value) bool {
	switch s {
	case strategyResource:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() && b.IsNil()
		}
		if a.Kind() == reflect.Interface {
			a, b = a.Elem(), b.Elem()
			if a.Type() != b.Type() {
				return false
			}
			if a.Kind() != reflect.Pointer {
				return a.Interface() == b.Interface()
			}
		}
		return a.Pointer() == b.Pointer()
	case strategyVector:
		ca := a.Interface().(vectorLike).Components()
		cb := b.Interface().(vectorLike).Components()
		if len(ca) != len(cb) {
			return false
		}
		for i := range ca {
			if ca[i] != cb[i] {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a.Interface(), b.Interface())
}

var axes = []string{"x", "y", "z", "w"}

func encodeValue(s strategy, v reflect.Value) any {
	switch s {
	case strategyResource:
		if v.IsNil() {
			return nil
		}
		return v.Interface().(Resource).ResourceID()
	case strategyColor:
		return v.Interface().(colorLike).Hex()
	case strategyVector:
		comps := v.Interface().(vectorLike).Components()
		out := make(map[string]any, len(comps))
		for i, c := range comps {
			if i < len(axes) {
				out[axes[i]] = round32(v, c)
			}
		}
		return out
	}

	switch v.Kind() {
	case reflect.Float32:
		return buffer.Round(v.Float(), 5)
	case reflect.Float64:
		return v.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return v.Bool()
	}
	return v.Interface()
}

// round32 trims float32 noise from vector components.
func round32(v reflect.Value, c float64) float64 {
	t := v.Type()
	if t.Kind() == reflect.Struct && t.NumField() > 0 && t.Field(0).Type.Kind() == reflect.Float32 {
		return buffer.Round(c, 5)
	}
	return c
}

func decodeValue(f field, dst reflect.Value, raw any, resolve Resolver) error {
	switch f.strategy {
	case strategyResource:
		return decodeResource(f.name, dst, raw, resolve)
	case strategyColor:
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("%w: %s expects a hex string, got %T", ErrTypeMismatch, f.name, raw)
		}
		if err := dst.Addr().Interface().(colorSetter).SetHex(s); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrTypeMismatch, f.name, err)
		}
		return nil
	case strategyVector:
		comps, err := components(raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrTypeMismatch, f.name, err)
		}
		dst.Addr().Interface().(vectorSetter).SetComponents(comps)
		return nil
	}
	return decodeScalar(f.name, dst, raw)
}

func decodeResource(name string, dst reflect.Value, raw any, resolve Resolver) error {
	if raw == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	id, ok := raw.(string)
	if !ok {
		return fmt.Errorf("%w: %s expects a resource id, got %T", ErrTypeMismatch, name, raw)
	}
	if resolve == nil {
		return fmt.Errorf("%w: %s -> %s (no resolver)", ErrUnresolved, name, id)
	}
	res, ok := resolve(id)
	if !ok || res == nil {
		return fmt.Errorf("%w: %s -> %s", ErrUnresolved, name, id)
	}
	rv := reflect.ValueOf(res)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return fmt.Errorf("%w: %s -> %s", ErrUnresolved, name, id)
	}
	if !rv.Type().AssignableTo(dst.Type()) {
		return fmt.Errorf("%w: %s cannot hold %T", ErrTypeMismatch, name, res)
	}
	dst.Set(rv)
	return nil
}

func components(raw any) ([]float64, error) {
	switch v := raw.(type) {
	case []any:
		out := make([]float64, 0, len(v))
		for _, e := range v {
			n, ok := number(e)
			if !ok {
				return nil, fmt.Errorf("non-numeric component %v", e)
			}
			out = append(out, n)
		}
		return out, nil
	case []float64:
		return v, nil
	case map[string]any:
		var out []float64
		for _, axis := range axes {
			e, ok := v[axis]
			if !ok {
				break
			}
			n, ok := number(e)
			if !ok {
				return nil, fmt.Errorf("non-numeric component %s=%v", axis, e)
			}
			out = append(out, n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected object or array, got %T", raw)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func decodeScalar(name string, dst reflect.Value, raw any) error {
	mismatch := func() error {
		return fmt.Errorf("%w: %s is %s, got %T", ErrTypeMismatch, name, dst.Type(), raw)
	}
	switch dst.Kind() {
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return mismatch()
		}
		dst.SetBool(b)
	case reflect.String:
		s, ok := raw.(string)
		if !ok {
			return mismatch()
		}
		dst.SetString(s)
	case reflect.Float32, reflect.Float64:
		n, ok := number(raw)
		if !ok {
			return mismatch()
		}
		dst.SetFloat(n)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := number(raw)
		if !ok {
			return mismatch()
		}
		dst.SetInt(int64(n))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := number(raw)
		if !ok || n < 0 {
			return mismatch()
		}
		dst.SetUint(uint64(n))
	default:
		rv := reflect.ValueOf(raw)
		if raw == nil || !rv.Type().AssignableTo(dst.Type()) {
			return mismatch()
		}
		dst.Set(rv)
	}
	return nil
}
