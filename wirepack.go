package wirepack

import "unsafe"

// TypeHandle identifies a wire-format shape known to the substrate.
// Handle 0 is reserved and always invalid. The low handle range is
// preassigned to the substrate's builtin scalar types; every substrate
// implementation must honor those assignments.
type TypeHandle uint64

// Builtin scalar type handles. These are owned by the substrate and are
// never tracked for teardown.
const (
	TypeInvalid TypeHandle = iota
	TypeBool
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeInt64
	TypeUint64
	TypeFloat32
	TypeFloat64

	typeBuiltinEnd
)

// Builtin reports whether the handle refers to a substrate-owned scalar type.
func (h TypeHandle) Builtin() bool {
	return h > TypeInvalid && h < typeBuiltinEnd
}

// Valid reports whether the handle refers to any type at all.
func (h TypeHandle) Valid() bool {
	return h != TypeInvalid
}

// StructMember describes one member of a committed struct type: its element
// type, its byte offset from the start of the struct, and its block extent
// (1 for plain members, the array length for fixed-size array members).
type StructMember struct {
	Type   TypeHandle
	Offset uintptr
	Extent int
}

// OpHandle identifies a reduction operator known to the substrate.
// Handle 0 is reserved and always invalid.
type OpHandle uint64

// Builtin reduction operators.
const (
	OpInvalid OpHandle = iota
	OpSum
	OpProd
	OpMax
	OpMin
	OpBand
	OpBor

	opBuiltinEnd
)

// Builtin reports whether the handle refers to a substrate-owned operator.
func (op OpHandle) Builtin() bool {
	return op > OpInvalid && op < opBuiltinEnd
}

// ReduceFunc folds count elements of a into b in place. Both buffers hold
// elements of the committed type t.
type ReduceFunc func(a, b unsafe.Pointer, count int, t TypeHandle)

// CommHandle identifies a communication context within the substrate.
// Handle 0 is reserved and always invalid.
type CommHandle uint64

// CommWorld is the substrate's primordial context, spanning every rank.
const CommWorld CommHandle = 1

// Rank identifies a process within a communication context.
type Rank int32

// RankRoot is the conventional originator for rooted operations. RankAny
// matches any source in a receive or probe.
const (
	RankRoot Rank = 0
	RankAny  Rank = -1
)

// Tag labels a point-to-point message. TagAny matches any tag in a receive
// or probe.
type Tag int32

const TagAny Tag = -1

// Status reports the outcome of a receive or probe.
type Status struct {
	Source Rank
	Tag    Tag
	Count  int
}

// Substrate is the message-passing layer underneath the payload and
// descriptor machinery. Every call blocks until the underlying operation
// completes; there are no suspension points and no cancellation.
//
// Implementations must be safe for use from multiple goroutines: distinct
// ranks of an in-process substrate run on distinct goroutines by design.
type Substrate interface {
	// CommitStruct registers a composite wire shape and returns its handle.
	CommitStruct(members []StructMember) (TypeHandle, error)

	// DupType clones a committed type into an independently-owned handle.
	DupType(t TypeHandle) (TypeHandle, error)

	// FreeType releases a committed type. Builtin handles must be rejected.
	FreeType(t TypeHandle) error

	// TypeSize reports the byte size of one element of the given type.
	TypeSize(t TypeHandle) (int, error)

	// CommitOp registers a custom reduction operator.
	CommitOp(fn ReduceFunc, commutative bool) (OpHandle, error)

	// FreeOp releases a committed operator. Builtin handles must be rejected.
	FreeOp(op OpHandle) error

	// DupComm clones a communication context.
	DupComm(c CommHandle) (CommHandle, error)

	// FreeComm releases a duplicated context. CommWorld must be rejected.
	FreeComm(c CommHandle) error

	// CommRank reports the calling process' rank within the context.
	CommRank(c CommHandle) (Rank, error)

	// CommSize reports the number of ranks in the context.
	CommSize(c CommHandle) (int, error)

	Send(buf unsafe.Pointer, count int, t TypeHandle, dst Rank, tag Tag, c CommHandle) error
	Recv(buf unsafe.Pointer, count int, t TypeHandle, src Rank, tag Tag, c CommHandle) (Status, error)
	Probe(src Rank, tag Tag, c CommHandle) (Status, error)

	Bcast(buf unsafe.Pointer, count int, t TypeHandle, root Rank, c CommHandle) error
	Reduce(in, out unsafe.Pointer, count int, t TypeHandle, op OpHandle, root Rank, c CommHandle) error
	Allreduce(in, out unsafe.Pointer, count int, t TypeHandle, op OpHandle, c CommHandle) error
	Gather(in unsafe.Pointer, count int, t TypeHandle, out unsafe.Pointer, root Rank, c CommHandle) error
	Allgather(in unsafe.Pointer, count int, t TypeHandle, out unsafe.Pointer, c CommHandle) error
	Scatter(in unsafe.Pointer, out unsafe.Pointer, count int, t TypeHandle, root Rank, c CommHandle) error
	Barrier(c CommHandle) error

	// Finalized reports whether Finalize has completed. Once finalized, no
	// other method may be called; resource sweeps consult this flag to
	// decide between releasing and leaking.
	Finalized() bool

	// Finalize tears the substrate down. Idempotent.
	Finalize() error
}
