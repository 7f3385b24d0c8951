package reflector

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/typemesh/wirepack/errors"
	"github.com/typemesh/wirepack/reflector/internal/layout"
)

// Member is one reflected member of an aggregate type: its wire kind, its
// element type with any fixed-array dimensions stripped, its byte offset
// from the start of the aggregate, and its block extent (1 for plain
// members, the flattened element count for fixed-size arrays).
type Member struct {
	Name   string
	Type   reflect.Type
	Kind   Kind
	Offset uintptr
	Extent int
}

// Layout is the derived member layout of an aggregate type. Immutable after
// derivation.
type Layout struct {
	Type     reflect.Type
	Size     uintptr
	Align    uintptr
	Members  []Member
	Explicit bool
}

// Describer is the explicit fallback route: a type lists the names of the
// fields that form its wire shape, in wire order. Types that implement
// Describer bypass structural reflection entirely, so an author keeps full
// control of the wire contract (including exposing only a subset of fields).
type Describer interface {
	WireMembers() []string
}

var describerType = reflect.TypeOf((*Describer)(nil)).Elem()

type result struct {
	layout *Layout
	err    error
}

var cache sync.Map // reflect.Type -> result

// Of reflects the aggregate type T.
func Of[T any]() (*Layout, error) {
	return Reflect(reflect.TypeOf((*T)(nil)).Elem())
}

// Reflect derives the ordered member layout of an aggregate type. The result
// is memoized: every call for the same type observes the identical Layout.
//
// A qualifying aggregate is a struct whose fields are builtin scalars,
// qualifying aggregates, or fixed-size arrays of either. The derived offsets
// are verified against a recomputed stand-in layout; any disagreement rejects
// the type instead of silently mis-offsetting a field on the wire.
func Reflect(t reflect.Type) (*Layout, error) {
	if t == nil {
		return nil, errors.NilPointer(errors.PhaseReflect, nil, "")
	}
	if cached, ok := cache.Load(t); ok {
		r := cached.(result)
		return r.layout, r.err
	}

	l, err := derive(t)
	actual, _ := cache.LoadOrStore(t, result{layout: l, err: err})
	r := actual.(result)
	return r.layout, r.err
}

// Validate reports whether values of t can transit the wire byte-for-byte:
// builtin scalars pass directly, aggregates must reflect successfully, and
// fixed-size arrays reduce to their element type.
func Validate(t reflect.Type) error {
	if t == nil {
		return errors.NilPointer(errors.PhaseReflect, nil, "")
	}
	for t.Kind() == reflect.Array {
		t = t.Elem()
	}
	if k := kindOf(t); k.Scalar() {
		return nil
	}
	if t.Kind() != reflect.Struct {
		return errors.NotTrivial(errors.PhaseReflect, nil, t.String(),
			fmt.Sprintf("values of kind %s cannot be copied byte-for-byte", t.Kind()))
	}
	_, err := Reflect(t)
	return err
}

func derive(t reflect.Type) (*Layout, error) {
	if t.Kind() != reflect.Struct {
		return nil, errors.New(errors.PhaseReflect, errors.KindUnsupported).
			GoType(t.String()).
			Detail("only struct types have a member layout").
			Build()
	}
	if t.NumField() == 0 {
		return nil, errors.New(errors.PhaseReflect, errors.KindUnsupported).
			GoType(t.String()).
			Detail("empty structs carry nothing to transmit").
			Build()
	}

	if reflect.PointerTo(t).Implements(describerType) {
		return deriveExplicit(t)
	}
	return deriveReflected(t)
}

// deriveReflected walks every field in declaration order and verifies the
// recomputed stand-in layout against the type's true layout.
func deriveReflected(t reflect.Type) (*Layout, error) {
	n := t.NumField()
	members := make([]Member, 0, n)
	fields := make([]layout.Field, 0, n)

	for i := 0; i < n; i++ {
		f := t.Field(i)
		m, size, align, err := classify(f, t.String())
		if err != nil {
			return nil, err
		}
		m.Offset = f.Offset
		members = append(members, m)
		fields = append(fields, layout.Field{Size: size, Align: align})
	}

	standin := layout.Compute(fields)
	for i, m := range members {
		if standin.Offsets[i] != m.Offset {
			return nil, errors.Misaligned(t.String(), fmt.Sprintf(
				"member %s: recomputed offset %d, actual %d",
				m.Name, standin.Offsets[i], m.Offset))
		}
	}
	if standin.Size != t.Size() || standin.Align != uintptr(t.Align()) {
		return nil, errors.Misaligned(t.String(), fmt.Sprintf(
			"recomputed size/align %d/%d, actual %d/%d",
			standin.Size, standin.Align, t.Size(), t.Align()))
	}

	return &Layout{
		Type:    t,
		Size:    t.Size(),
		Align:   uintptr(t.Align()),
		Members: members,
	}, nil
}

// deriveExplicit builds the layout from the author-supplied member name list.
// Offsets come straight from the named fields, so no stand-in verification is
// needed; the author may legitimately expose a subset of the struct.
func deriveExplicit(t reflect.Type) (*Layout, error) {
	names := reflect.New(t).Interface().(Describer).WireMembers()
	if len(names) == 0 {
		return nil, errors.New(errors.PhaseReflect, errors.KindInvalidInput).
			GoType(t.String()).
			Detail("WireMembers returned an empty member list").
			Build()
	}

	members := make([]Member, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, errors.New(errors.PhaseReflect, errors.KindInvalidInput).
				GoType(t.String()).
				Path(name).
				Detail("member listed twice").
				Build()
		}
		seen[name] = true

		f, ok := t.FieldByName(name)
		if !ok {
			return nil, errors.New(errors.PhaseReflect, errors.KindNotFound).
				GoType(t.String()).
				Path(name).
				Detail("no such field").
				Build()
		}
		if len(f.Index) != 1 {
			return nil, errors.New(errors.PhaseReflect, errors.KindUnsupported).
				GoType(t.String()).
				Path(name).
				Detail("promoted fields cannot be wire members").
				Build()
		}

		m, _, _, err := classify(f, t.String())
		if err != nil {
			return nil, err
		}
		m.Offset = f.Offset
		members = append(members, m)
	}

	return &Layout{
		Type:     t,
		Size:     t.Size(),
		Align:    uintptr(t.Align()),
		Members:  members,
		Explicit: true,
	}, nil
}

// classify resolves a struct field into a member, flattening nested
// fixed-array dimensions into one extent, and reports the field's storage
// size and alignment for the stand-in layout.
func classify(f reflect.StructField, owner string) (Member, uintptr, uintptr, error) {
	path := []string{owner, f.Name}

	ft := f.Type
	extent := 1
	for ft.Kind() == reflect.Array {
		if ft.Len() == 0 {
			return Member{}, 0, 0, errors.Unsupported(errors.PhaseReflect, path,
				"zero-length array members carry nothing to transmit")
		}
		extent *= ft.Len()
		ft = ft.Elem()
	}

	kind := kindOf(ft)
	switch kind {
	case KindInvalid:
		reason := fmt.Sprintf("members of kind %s cannot transit the wire", ft.Kind())
		switch ft.Kind() {
		case reflect.Int, reflect.Uint, reflect.Uintptr:
			reason = "platform-sized integers have no portable wire width; use a fixed-width type"
		case reflect.String, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func,
			reflect.Interface, reflect.Pointer, reflect.UnsafePointer:
			reason = fmt.Sprintf("members of kind %s reference memory outside the value", ft.Kind())
		}
		return Member{}, 0, 0, errors.NotTrivial(errors.PhaseReflect, path, ft.String(), reason)

	case KindStruct:
		// Nested aggregates must themselves reflect cleanly.
		if _, err := Reflect(ft); err != nil {
			return Member{}, 0, 0, errors.Wrap(errors.PhaseReflect, errors.KindUnsupported, err,
				fmt.Sprintf("member %s.%s", owner, f.Name))
		}
	}

	return Member{
		Name:   f.Name,
		Type:   ft,
		Kind:   kind,
		Extent: extent,
	}, ft.Size() * uintptr(extent), uintptr(ft.Align()), nil
}
