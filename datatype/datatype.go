package datatype

import (
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/typemesh/wirepack"
	"github.com/typemesh/wirepack/errors"
	"github.com/typemesh/wirepack/reflector"
	"github.com/typemesh/wirepack/registry"
)

// builtin maps scalar wire kinds onto the substrate's predeclared handles.
// These handles are owned by the substrate and never enter the registry.
var builtin = [...]wirepack.TypeHandle{
	reflector.KindBool:    wirepack.TypeBool,
	reflector.KindInt8:    wirepack.TypeInt8,
	reflector.KindUint8:   wirepack.TypeUint8,
	reflector.KindInt16:   wirepack.TypeInt16,
	reflector.KindUint16:  wirepack.TypeUint16,
	reflector.KindInt32:   wirepack.TypeInt32,
	reflector.KindUint32:  wirepack.TypeUint32,
	reflector.KindInt64:   wirepack.TypeInt64,
	reflector.KindUint64:  wirepack.TypeUint64,
	reflector.KindFloat32: wirepack.TypeFloat32,
	reflector.KindFloat64: wirepack.TypeFloat64,
}

// Builtin returns the substrate-native handle for a scalar kind, or
// TypeInvalid if the kind has none.
func Builtin(k reflector.Kind) wirepack.TypeHandle {
	if k.Scalar() {
		return builtin[k]
	}
	return wirepack.TypeInvalid
}

// Table resolves Go types to wire descriptors. Exactly one descriptor exists
// per distinct type for the table's lifetime: construction is lazy, happens
// once even under concurrent first use, and the resulting handle (or the
// construction failure) is memoized.
//
// Aggregate descriptors are registered for deferred destruction; DestroyAll
// runs the one-time sweep right before the substrate finalizes.
type Table struct {
	subst wirepack.Substrate
	reg   *registry.Registry
	log   *zap.Logger

	cache sync.Map // reflect.Type -> *entry

	mu      sync.Mutex
	tracked []wirepack.TypeHandle
	swept   bool
}

type entry struct {
	once   sync.Once
	handle wirepack.TypeHandle
	err    error
}

// Option configures a Table.
type Option func(*Table)

// WithLogger installs a logger for descriptor diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(t *Table) { t.log = log }
}

// NewTable creates a descriptor table over the given substrate, registering
// aggregate descriptors with reg for bulk teardown.
func NewTable(subst wirepack.Substrate, reg *registry.Registry, opts ...Option) *Table {
	t := &Table{
		subst: subst,
		reg:   reg,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Identify resolves the descriptor handle for the type T, constructing and
// committing it on first use.
func Identify[T any](t *Table) (wirepack.TypeHandle, error) {
	return t.Describe(reflect.TypeOf((*T)(nil)).Elem())
}

// Describe resolves the descriptor handle for a Go type. Builtin scalars map
// directly to substrate-native handles without reflection; aggregates are
// reflected, committed through the substrate's struct primitive, and tracked
// for the teardown sweep.
func (t *Table) Describe(rt reflect.Type) (wirepack.TypeHandle, error) {
	if rt == nil {
		return wirepack.TypeInvalid, errors.NilPointer(errors.PhaseDescribe, nil, "")
	}
	if h := Builtin(scalarKind(rt)); h.Valid() {
		return h, nil
	}

	cached, _ := t.cache.LoadOrStore(rt, &entry{})
	e := cached.(*entry)
	e.once.Do(func() {
		e.handle, e.err = t.build(rt)
	})
	return e.handle, e.err
}

// Commit registers an explicit member list as a new descriptor. Unlike
// Describe it is not memoized: every call commits a fresh descriptor, which
// is tracked for teardown like any reflected one.
func (t *Table) Commit(members []wirepack.StructMember) (wirepack.TypeHandle, error) {
	if len(members) == 0 {
		return wirepack.TypeInvalid, errors.InvalidInput(errors.PhaseDescribe, "empty member list")
	}
	h, err := t.subst.CommitStruct(members)
	if err != nil {
		return wirepack.TypeInvalid, errors.Registration(errors.PhaseDescribe, "struct descriptor", err)
	}
	t.track(h)
	return h, nil
}

// Duplicate clones a descriptor into an independently-owned handle, tracked
// for teardown. Builtins are substrate-owned and duplicate to themselves.
func (t *Table) Duplicate(h wirepack.TypeHandle) (wirepack.TypeHandle, error) {
	if h.Builtin() {
		return h, nil
	}
	dup, err := t.subst.DupType(h)
	if err != nil {
		return wirepack.TypeInvalid, errors.Registration(errors.PhaseDescribe, "duplicated descriptor", err)
	}
	t.track(dup)
	return dup, nil
}

// Size reports the byte size of one element of the described type.
func (t *Table) Size(h wirepack.TypeHandle) (int, error) {
	n, err := t.subst.TypeSize(h)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseDescribe, errors.KindNotFound, err, "type size")
	}
	return n, nil
}

// Tracked returns the number of aggregate descriptors awaiting teardown.
func (t *Table) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracked)
}

// DestroyAll releases every tracked aggregate descriptor through the
// substrate's type-free primitive. Builtins are never tracked and so are
// never touched. The sweep runs at most once; it must be called before
// substrate finalization, and if the substrate has already finalized the
// registry drops the entries without invoking anything.
func (t *Table) DestroyAll() error {
	t.mu.Lock()
	if t.swept {
		t.mu.Unlock()
		return nil
	}
	t.swept = true
	handles := t.tracked
	t.tracked = nil
	t.mu.Unlock()

	var failures []error
	for _, h := range handles {
		if _, err := t.reg.Remove(registry.Key(registry.NamespaceType, uint64(h))); err != nil {
			failures = append(failures, err)
		}
	}

	t.log.Debug("descriptor sweep complete",
		zap.Int("released", len(handles)),
		zap.Int("failed", len(failures)))

	if len(failures) > 0 {
		return &errors.SweepError{Failures: failures}
	}
	return nil
}

// build constructs and commits the composite descriptor for an aggregate
// type, resolving member descriptors recursively. Scalar members terminate
// the recursion on builtin handles.
func (t *Table) build(rt reflect.Type) (wirepack.TypeHandle, error) {
	if rt.Kind() == reflect.Array {
		return t.buildArray(rt)
	}

	l, err := reflector.Reflect(rt)
	if err != nil {
		return wirepack.TypeInvalid, err
	}

	members := make([]wirepack.StructMember, len(l.Members))
	for i, m := range l.Members {
		var mh wirepack.TypeHandle
		if m.Kind.Scalar() {
			mh = builtin[m.Kind]
		} else if mh, err = t.Describe(m.Type); err != nil {
			return wirepack.TypeInvalid, err
		}
		members[i] = wirepack.StructMember{
			Type:   mh,
			Offset: m.Offset,
			Extent: m.Extent,
		}
	}

	h, err := t.subst.CommitStruct(members)
	if err != nil {
		return wirepack.TypeInvalid, errors.Registration(errors.PhaseDescribe, rt.String(), err)
	}
	t.track(h)

	t.log.Debug("descriptor committed",
		zap.String("type", rt.String()),
		zap.Uint64("handle", uint64(h)),
		zap.Int("members", len(members)),
		zap.Bool("explicit", l.Explicit))

	return h, nil
}

// buildArray commits a fixed-size array as a single-member shape with the
// element descriptor and the flattened extent.
func (t *Table) buildArray(rt reflect.Type) (wirepack.TypeHandle, error) {
	extent := 1
	elem := rt
	for elem.Kind() == reflect.Array {
		if elem.Len() == 0 {
			return wirepack.TypeInvalid, errors.Unsupported(errors.PhaseDescribe,
				[]string{rt.String()}, "zero-length arrays carry nothing to transmit")
		}
		extent *= elem.Len()
		elem = elem.Elem()
	}

	eh, err := t.Describe(elem)
	if err != nil {
		return wirepack.TypeInvalid, err
	}

	h, err := t.subst.CommitStruct([]wirepack.StructMember{
		{Type: eh, Offset: 0, Extent: extent},
	})
	if err != nil {
		return wirepack.TypeInvalid, errors.Registration(errors.PhaseDescribe, rt.String(), err)
	}
	t.track(h)
	return h, nil
}

func (t *Table) track(h wirepack.TypeHandle) {
	t.reg.Add(registry.Key(registry.NamespaceType, uint64(h)), func() error {
		return t.subst.FreeType(h)
	})

	t.mu.Lock()
	t.tracked = append(t.tracked, h)
	t.mu.Unlock()
}

// scalarKind classifies rt as a builtin scalar, returning KindInvalid for
// aggregates and everything else.
func scalarKind(rt reflect.Type) reflector.Kind {
	switch rt.Kind() {
	case reflect.Bool:
		return reflector.KindBool
	case reflect.Int8:
		return reflector.KindInt8
	case reflect.Uint8:
		return reflector.KindUint8
	case reflect.Int16:
		return reflector.KindInt16
	case reflect.Uint16:
		return reflector.KindUint16
	case reflect.Int32:
		return reflector.KindInt32
	case reflect.Uint32:
		return reflector.KindUint32
	case reflect.Int64:
		return reflector.KindInt64
	case reflect.Uint64:
		return reflector.KindUint64
	case reflect.Float32:
		return reflector.KindFloat32
	case reflect.Float64:
		return reflector.KindFloat64
	default:
		return reflector.KindInvalid
	}
}
