package collective

import (
	"unsafe"

	"github.com/typemesh/wirepack"
	"github.com/typemesh/wirepack/comm"
	"github.com/typemesh/wirepack/errors"
	"github.com/typemesh/wirepack/registry"
)

// NewOp commits a custom reduction operator built from a plain binary
// function. The wrapper folds element-wise, so fn never sees buffers or
// descriptors. Mark commutative operators as such; substrates may reorder
// their folds.
//
// The operator is announced to the teardown registry and released in the
// final sweep unless freed earlier with FreeOp.
func NewOp[T any](c *comm.Communicator, fn func(a, b T) T, commutative bool) (wirepack.OpHandle, error) {
	if fn == nil {
		return wirepack.OpInvalid, errors.NilPointer(errors.PhaseTransmit, nil, "reduction operator function")
	}

	wrapped := func(a, b unsafe.Pointer, count int, _ wirepack.TypeHandle) {
		av := unsafe.Slice((*T)(a), count)
		bv := unsafe.Slice((*T)(b), count)
		for i := range bv {
			bv[i] = fn(av[i], bv[i])
		}
	}

	op, err := c.Substrate().CommitOp(wrapped, commutative)
	if err != nil {
		return wirepack.OpInvalid, errors.Registration(errors.PhaseTransmit, "reduction operator", err)
	}

	c.Registry().Add(registry.Key(registry.NamespaceOp, uint64(op)), func() error {
		return c.Substrate().FreeOp(op)
	})
	return op, nil
}

// FreeOp releases a committed operator ahead of the teardown sweep. Builtin
// operators are substrate-owned and rejected.
func FreeOp(c *comm.Communicator, op wirepack.OpHandle) error {
	if removed, err := c.Registry().Remove(registry.Key(registry.NamespaceOp, uint64(op))); removed || err != nil {
		return err
	}
	return c.Substrate().FreeOp(op)
}
