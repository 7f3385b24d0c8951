package comm

import (
	"sync"

	"github.com/typemesh/wirepack"
	"github.com/typemesh/wirepack/datatype"
	"github.com/typemesh/wirepack/errors"
	"github.com/typemesh/wirepack/registry"
)

// Communicator is a communication context: a substrate handle plus the
// calling process' rank and the context's total size. Immutable after
// construction.
type Communicator struct {
	subst  wirepack.Substrate
	types  *datatype.Table
	reg    *registry.Registry
	handle wirepack.CommHandle
	rank   wirepack.Rank
	size   int

	parent *Communicator

	dupMu sync.Mutex
	dup   *Communicator
}

// New wraps an existing substrate context. Rank and size are resolved once,
// up front.
func New(subst wirepack.Substrate, types *datatype.Table, reg *registry.Registry, handle wirepack.CommHandle) (*Communicator, error) {
	rank, err := subst.CommRank(handle)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTransmit, errors.KindNotFound, err, "context rank")
	}
	size, err := subst.CommSize(handle)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTransmit, errors.KindNotFound, err, "context size")
	}
	return &Communicator{
		subst:  subst,
		types:  types,
		reg:    reg,
		handle: handle,
		rank:   rank,
		size:   size,
	}, nil
}

// Rank reports the calling process' rank within this context.
func (c *Communicator) Rank() wirepack.Rank { return c.rank }

// Size reports the number of ranks in this context.
func (c *Communicator) Size() int { return c.size }

// Handle exposes the raw substrate context handle.
func (c *Communicator) Handle() wirepack.CommHandle { return c.handle }

// Types returns the descriptor table transmission goes through.
func (c *Communicator) Types() *datatype.Table { return c.types }

// Substrate exposes the underlying substrate for the transmission adapters.
func (c *Communicator) Substrate() wirepack.Substrate { return c.subst }

// Registry returns the teardown registry resources created against this
// context are announced to.
func (c *Communicator) Registry() *registry.Registry { return c.reg }

// Root reports whether the calling process is the given root rank.
func (c *Communicator) Root(root wirepack.Rank) bool { return c.rank == root }

// Duplicate clones this context into an independently-owned one, memoized by
// the raw handle: repeated calls return the same duplicate. The duplicate's
// destructor registration is announced on every consultation; the registry's
// first-wins Add keeps it registered exactly once.
func (c *Communicator) Duplicate() (*Communicator, error) {
	c.dupMu.Lock()
	defer c.dupMu.Unlock()

	if c.dup == nil {
		h, err := c.subst.DupComm(c.handle)
		if err != nil {
			return nil, errors.Registration(errors.PhaseTransmit, "duplicated context", err)
		}
		dup, err := New(c.subst, c.types, c.reg, h)
		if err != nil {
			return nil, err
		}
		dup.parent = c
		c.dup = dup
	}

	dup := c.dup
	c.reg.Add(registry.Key(registry.NamespaceComm, uint64(dup.handle)), func() error {
		return c.subst.FreeComm(dup.handle)
	})
	return dup, nil
}

// Free releases a duplicated context ahead of the teardown sweep. The
// parent's memo is dropped, so a later Duplicate mints a fresh context
// instead of handing back the dead one. Freeing the world context is
// rejected by the substrate.
func (c *Communicator) Free() error {
	if p := c.parent; p != nil {
		p.dupMu.Lock()
		if p.dup == c {
			p.dup = nil
		}
		p.dupMu.Unlock()
	}

	if removed, err := c.reg.Remove(registry.Key(registry.NamespaceComm, uint64(c.handle))); removed || err != nil {
		return err
	}
	return c.subst.FreeComm(c.handle)
}
