package loopback

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/typemesh/wirepack"
)

// builtinSize maps the substrate's predeclared scalar handles to byte sizes.
// Alignment of a scalar equals its size.
var builtinSize = map[wirepack.TypeHandle]uintptr{
	wirepack.TypeBool:    1,
	wirepack.TypeInt8:    1,
	wirepack.TypeUint8:   1,
	wirepack.TypeInt16:   2,
	wirepack.TypeUint16:  2,
	wirepack.TypeInt32:   4,
	wirepack.TypeUint32:  4,
	wirepack.TypeInt64:   8,
	wirepack.TypeUint64:  8,
	wirepack.TypeFloat32: 4,
	wirepack.TypeFloat64: 8,
}

type structType struct {
	members []wirepack.StructMember
	size    uintptr
	align   uintptr
}

// typeStore holds every committed composite shape, shared by all ranks of a
// world. Element size and alignment are derived from the declared members at
// commit time using the usual align-and-pad rules, so the stride of an array
// of elements matches the describing Go type.
type typeStore struct {
	mu     sync.RWMutex
	next   wirepack.TypeHandle
	shapes map[wirepack.TypeHandle]*structType
}

func newTypeStore() *typeStore {
	return &typeStore{
		next:   1000,
		shapes: make(map[wirepack.TypeHandle]*structType),
	}
}

func (ts *typeStore) commit(members []wirepack.StructMember) (wirepack.TypeHandle, error) {
	if len(members) == 0 {
		return wirepack.TypeInvalid, fmt.Errorf("loopback: empty member list")
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	var end, maxAlign uintptr
	for _, m := range members {
		size, align, err := ts.extentLocked(m.Type)
		if err != nil {
			return wirepack.TypeInvalid, err
		}
		if m.Extent < 1 {
			return wirepack.TypeInvalid, fmt.Errorf("loopback: member extent %d", m.Extent)
		}
		if e := m.Offset + size*uintptr(m.Extent); e > end {
			end = e
		}
		if align > maxAlign {
			maxAlign = align
		}
	}
	if maxAlign > 1 {
		end = (end + maxAlign - 1) &^ (maxAlign - 1)
	}

	ts.next++
	h := ts.next
	ts.shapes[h] = &structType{
		members: append([]wirepack.StructMember(nil), members...),
		size:    end,
		align:   maxAlign,
	}
	return h, nil
}

func (ts *typeStore) dup(t wirepack.TypeHandle) (wirepack.TypeHandle, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	shape, ok := ts.shapes[t]
	if !ok {
		return wirepack.TypeInvalid, fmt.Errorf("loopback: unknown type %d", t)
	}
	ts.next++
	h := ts.next
	ts.shapes[h] = shape
	return h, nil
}

func (ts *typeStore) free(t wirepack.TypeHandle) error {
	if t.Builtin() {
		return fmt.Errorf("loopback: builtin type %d is substrate-owned", t)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if _, ok := ts.shapes[t]; !ok {
		return fmt.Errorf("loopback: unknown type %d", t)
	}
	delete(ts.shapes, t)
	return nil
}

func (ts *typeStore) size(t wirepack.TypeHandle) (uintptr, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	size, _, err := ts.extentLocked(t)
	return size, err
}

func (ts *typeStore) extentLocked(t wirepack.TypeHandle) (size, align uintptr, err error) {
	if s, ok := builtinSize[t]; ok {
		return s, s, nil
	}
	if shape, ok := ts.shapes[t]; ok {
		return shape.size, shape.align, nil
	}
	return 0, 0, fmt.Errorf("loopback: unknown type %d", t)
}

// copy moves count elements of type t from src to dst. Builtins move as one
// block; composites move member by member through the declared offsets, so a
// mis-declared descriptor shows up as corrupted fields rather than working
// by accident.
func (ts *typeStore) copy(t wirepack.TypeHandle, dst, src unsafe.Pointer, count int) error {
	if count == 0 {
		return nil
	}
	if src == nil || dst == nil {
		return fmt.Errorf("loopback: nil buffer")
	}

	if size, ok := builtinSize[t]; ok {
		memmove(dst, src, size*uintptr(count))
		return nil
	}

	ts.mu.RLock()
	shape, ok := ts.shapes[t]
	ts.mu.RUnlock()
	if !ok {
		return fmt.Errorf("loopback: unknown type %d", t)
	}

	for i := 0; i < count; i++ {
		base := uintptr(i) * shape.size
		for _, m := range shape.members {
			off := base + m.Offset
			if err := ts.copy(m.Type,
				unsafe.Add(dst, off),
				unsafe.Add(src, off),
				m.Extent,
			); err != nil {
				return err
			}
		}
	}
	return nil
}

func memmove(dst, src unsafe.Pointer, n uintptr) {
	copy(unsafe.Slice((*byte)(dst), n), unsafe.Slice((*byte)(src), n))
}
