package payload

import (
	"reflect"
	"unsafe"

	"github.com/typemesh/wirepack"
	"github.com/typemesh/wirepack/datatype"
	"github.com/typemesh/wirepack/errors"
	"github.com/typemesh/wirepack/reflector"
)

// Mode distinguishes the two ownership variants of a payload.
type Mode uint8

const (
	// ModeBorrowed marks a non-owning view: the original owner must outlive
	// every operation using the payload.
	ModeBorrowed Mode = iota

	// ModeOwned marks a freshly allocated buffer. Copies alias the same
	// allocation; it lives until the last holder drops.
	ModeOwned
)

func (m Mode) String() string {
	if m == ModeOwned {
		return "owned"
	}
	return "borrowed"
}

// Payload is the canonical message triple: a buffer of count elements plus
// the wire descriptor of the element type. A payload value is cheap to copy;
// copying never copies the underlying bytes in either mode.
type Payload[T any] struct {
	ptr   *T
	own   []T // non-nil exactly when mode == ModeOwned; pins the allocation
	typ   wirepack.TypeHandle
	count int
	mode  Mode
}

// Of wraps a single value into a borrowed payload of count 1.
func Of[T any](tbl *datatype.Table, v *T) (Payload[T], error) {
	if v == nil {
		return Payload[T]{}, errors.NilPointer(errors.PhasePayload, nil, typeName[T]())
	}
	return FromPtr(tbl, v, 1)
}

// FromPtr wraps a raw pointer and an explicit element count into a borrowed
// payload. Pointer validity over count elements is the caller's contract and
// is not checked.
func FromPtr[T any](tbl *datatype.Table, ptr *T, count int) (Payload[T], error) {
	if ptr == nil && count > 0 {
		return Payload[T]{}, errors.NilPointer(errors.PhasePayload, nil, typeName[T]())
	}
	if count < 0 {
		return Payload[T]{}, errors.InvalidInput(errors.PhasePayload, "negative element count")
	}
	typ, err := resolve[T](tbl)
	if err != nil {
		return Payload[T]{}, err
	}
	return Payload[T]{ptr: ptr, typ: typ, count: count, mode: ModeBorrowed}, nil
}

// FromSlice wraps a slice's backing array into a borrowed payload covering
// the slice's current length.
func FromSlice[T any](tbl *datatype.Table, s []T) (Payload[T], error) {
	return FromSliceN(tbl, s, len(s))
}

// FromSliceN wraps the first count elements of a slice, letting a caller
// expose a logical sub-range of a larger buffer.
func FromSliceN[T any](tbl *datatype.Table, s []T, count int) (Payload[T], error) {
	if count < 0 || count > len(s) {
		return Payload[T]{}, errors.OutOfBounds(errors.PhasePayload, nil, count, len(s))
	}
	typ, err := resolve[T](tbl)
	if err != nil {
		return Payload[T]{}, err
	}
	var ptr *T
	if len(s) > 0 {
		ptr = &s[0]
	}
	return Payload[T]{ptr: ptr, typ: typ, count: count, mode: ModeBorrowed}, nil
}

// Allocate creates an owned payload of count uninitialized-equivalent (zero)
// elements, intended as the destination of a receiving operation.
func Allocate[T any](tbl *datatype.Table, count int) (Payload[T], error) {
	if count < 0 {
		return Payload[T]{}, errors.InvalidInput(errors.PhasePayload, "negative element count")
	}
	typ, err := resolve[T](tbl)
	if err != nil {
		return Payload[T]{}, err
	}
	buf := make([]T, count)
	var ptr *T
	if count > 0 {
		ptr = &buf[0]
	}
	return Payload[T]{ptr: ptr, own: buf, typ: typ, count: count, mode: ModeOwned}, nil
}

// Mode reports the payload's ownership variant.
func (p Payload[T]) Mode() Mode { return p.mode }

// Count reports the number of elements in the message.
func (p Payload[T]) Count() int { return p.count }

// Type returns the element type's wire descriptor handle.
func (p Payload[T]) Type() wirepack.TypeHandle { return p.typ }

// Ptr decays the payload to its raw buffer pointer for handing to a
// transmission primitive. The pointer's validity is bounded by the payload's
// own lifetime (borrowed: by the original owner's).
func (p Payload[T]) Ptr() unsafe.Pointer { return unsafe.Pointer(p.ptr) }

// At returns the i-th element without a bounds check, matching the
// zero-overhead contract of the wrapped substrate calls. Out-of-range access
// is undefined.
func (p Payload[T]) At(i int) *T {
	return (*T)(unsafe.Add(unsafe.Pointer(p.ptr), uintptr(i)*unsafe.Sizeof(*p.ptr)))
}

// Slice exposes the payload's elements for iteration. The slice borrows the
// payload's buffer regardless of mode.
func (p Payload[T]) Slice() []T {
	if p.count == 0 {
		return nil
	}
	return unsafe.Slice(p.ptr, p.count)
}

// Bytes exposes the payload's raw storage.
func (p Payload[T]) Bytes() []byte {
	if p.count == 0 {
		return nil
	}
	size := unsafe.Sizeof(*p.ptr)
	return unsafe.Slice((*byte)(unsafe.Pointer(p.ptr)), uintptr(p.count)*size)
}

// View reborrows the payload without copying, for use as a subsequent input.
func (p Payload[T]) View() Payload[T] {
	return Payload[T]{ptr: p.ptr, typ: p.typ, count: p.count, mode: ModeBorrowed}
}

// Clone deep-copies the payload's count elements into a new owned buffer.
func (p Payload[T]) Clone() Payload[T] {
	buf := make([]T, p.count)
	copy(buf, p.Slice())
	var ptr *T
	if p.count > 0 {
		ptr = &buf[0]
	}
	return Payload[T]{ptr: ptr, own: buf, typ: p.typ, count: p.count, mode: ModeOwned}
}

// resolve validates the element type and fetches its descriptor. Non-trivial
// element types fail here, at construction, before any buffer is wrapped.
func resolve[T any](tbl *datatype.Table) (wirepack.TypeHandle, error) {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	if err := reflector.Validate(rt); err != nil {
		return wirepack.TypeInvalid, errors.Wrap(errors.PhasePayload, errors.KindNotTrivial, err, rt.String())
	}
	return tbl.Describe(rt)
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
