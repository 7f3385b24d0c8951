package loopback

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/typemesh/wirepack"
)

// opStore holds custom reduction operators alongside the builtin ones.
type opStore struct {
	mu     sync.RWMutex
	next   wirepack.OpHandle
	custom map[wirepack.OpHandle]wirepack.ReduceFunc
}

func newOpStore() *opStore {
	return &opStore{
		next:   1000,
		custom: make(map[wirepack.OpHandle]wirepack.ReduceFunc),
	}
}

func (os *opStore) commit(fn wirepack.ReduceFunc) (wirepack.OpHandle, error) {
	if fn == nil {
		return wirepack.OpInvalid, fmt.Errorf("loopback: nil reduce function")
	}
	os.mu.Lock()
	defer os.mu.Unlock()
	os.next++
	os.custom[os.next] = fn
	return os.next, nil
}

func (os *opStore) free(op wirepack.OpHandle) error {
	if op.Builtin() {
		return fmt.Errorf("loopback: builtin operator %d is substrate-owned", op)
	}
	os.mu.Lock()
	defer os.mu.Unlock()
	if _, ok := os.custom[op]; !ok {
		return fmt.Errorf("loopback: unknown operator %d", op)
	}
	delete(os.custom, op)
	return nil
}

// apply folds count elements of a into b: b[i] = a[i] op b[i].
func (os *opStore) apply(op wirepack.OpHandle, t wirepack.TypeHandle, a, b unsafe.Pointer, count int) error {
	if count == 0 {
		return nil
	}

	if !op.Builtin() {
		os.mu.RLock()
		fn, ok := os.custom[op]
		os.mu.RUnlock()
		if !ok {
			return fmt.Errorf("loopback: unknown operator %d", op)
		}
		fn(a, b, count, t)
		return nil
	}

	switch t {
	case wirepack.TypeInt8:
		return foldInt(op, view[int8](a, count), view[int8](b, count))
	case wirepack.TypeUint8:
		return foldInt(op, view[uint8](a, count), view[uint8](b, count))
	case wirepack.TypeInt16:
		return foldInt(op, view[int16](a, count), view[int16](b, count))
	case wirepack.TypeUint16:
		return foldInt(op, view[uint16](a, count), view[uint16](b, count))
	case wirepack.TypeInt32:
		return foldInt(op, view[int32](a, count), view[int32](b, count))
	case wirepack.TypeUint32:
		return foldInt(op, view[uint32](a, count), view[uint32](b, count))
	case wirepack.TypeInt64:
		return foldInt(op, view[int64](a, count), view[int64](b, count))
	case wirepack.TypeUint64:
		return foldInt(op, view[uint64](a, count), view[uint64](b, count))
	case wirepack.TypeFloat32:
		return foldFloat(op, view[float32](a, count), view[float32](b, count))
	case wirepack.TypeFloat64:
		return foldFloat(op, view[float64](a, count), view[float64](b, count))
	case wirepack.TypeBool:
		return foldBool(op, view[bool](a, count), view[bool](b, count))
	default:
		return fmt.Errorf("loopback: builtin operator %d needs a scalar type, got %d", op, t)
	}
}

func view[T any](p unsafe.Pointer, count int) []T {
	return unsafe.Slice((*T)(p), count)
}

type integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

func foldInt[T integer](op wirepack.OpHandle, a, b []T) error {
	switch op {
	case wirepack.OpSum:
		for i := range b {
			b[i] += a[i]
		}
	case wirepack.OpProd:
		for i := range b {
			b[i] *= a[i]
		}
	case wirepack.OpMax:
		for i := range b {
			if a[i] > b[i] {
				b[i] = a[i]
			}
		}
	case wirepack.OpMin:
		for i := range b {
			if a[i] < b[i] {
				b[i] = a[i]
			}
		}
	case wirepack.OpBand:
		for i := range b {
			b[i] &= a[i]
		}
	case wirepack.OpBor:
		for i := range b {
			b[i] |= a[i]
		}
	default:
		return fmt.Errorf("loopback: unknown builtin operator %d", op)
	}
	return nil
}

func foldFloat[T ~float32 | ~float64](op wirepack.OpHandle, a, b []T) error {
	switch op {
	case wirepack.OpSum:
		for i := range b {
			b[i] += a[i]
		}
	case wirepack.OpProd:
		for i := range b {
			b[i] *= a[i]
		}
	case wirepack.OpMax:
		for i := range b {
			if a[i] > b[i] {
				b[i] = a[i]
			}
		}
	case wirepack.OpMin:
		for i := range b {
			if a[i] < b[i] {
				b[i] = a[i]
			}
		}
	default:
		return fmt.Errorf("loopback: operator %d undefined for floating point", op)
	}
	return nil
}

func foldBool(op wirepack.OpHandle, a, b []bool) error {
	switch op {
	case wirepack.OpBand:
		for i := range b {
			b[i] = b[i] && a[i]
		}
	case wirepack.OpBor:
		for i := range b {
			b[i] = b[i] || a[i]
		}
	default:
		return fmt.Errorf("loopback: operator %d undefined for bool", op)
	}
	return nil
}
