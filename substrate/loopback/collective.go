package loopback

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/typemesh/wirepack"
)

// collArg is one rank's contribution to a collective round.
type collArg struct {
	rank  wirepack.Rank
	in    unsafe.Pointer
	out   unsafe.Pointer
	count int
	typ   wirepack.TypeHandle
	op    wirepack.OpHandle
	root  wirepack.Rank
}

type execFn func(w *World, args []*collArg) error

type round struct {
	args    []*collArg
	arrived int
	done    chan struct{}
	exec    execFn
	err     error
}

// hub synchronizes one communication context's collectives. Ranks issue the
// same sequence of collective calls, so a rank's n-th call joins round n;
// the last arriver executes the operation on behalf of everyone.
type hub struct {
	mu     sync.Mutex
	size   int
	rounds map[uint64]*round
}

func newHub(size int) *hub {
	return &hub{size: size, rounds: make(map[uint64]*round)}
}

func (h *hub) join(w *World, seq uint64, arg *collArg, exec execFn) error {
	h.mu.Lock()
	r, ok := h.rounds[seq]
	if !ok {
		r = &round{
			args: make([]*collArg, h.size),
			done: make(chan struct{}),
			exec: exec,
		}
		h.rounds[seq] = r
	}
	if r.args[arg.rank] != nil {
		h.mu.Unlock()
		return fmt.Errorf("loopback: rank %d joined round %d twice", arg.rank, seq)
	}
	r.args[arg.rank] = arg
	r.arrived++
	last := r.arrived == h.size
	if last {
		delete(h.rounds, seq)
	}
	h.mu.Unlock()

	if last {
		r.err = r.exec(w, r.args)
		close(r.done)
	} else {
		<-r.done
	}
	return r.err
}

func execBarrier(*World, []*collArg) error { return nil }

// rootArg resolves the round's root contribution, rejecting roots outside
// the context the same way Send rejects a bad destination.
func rootArg(args []*collArg) (*collArg, error) {
	root := args[0].root
	if int(root) < 0 || int(root) >= len(args) {
		return nil, fmt.Errorf("loopback: root rank %d out of range", root)
	}
	return args[int(root)], nil
}

func execBcast(w *World, args []*collArg) error {
	src, err := rootArg(args)
	if err != nil {
		return err
	}
	root := src.rank
	for _, a := range args {
		if a.rank == root {
			continue
		}
		if a.count != src.count {
			return fmt.Errorf("loopback: bcast count mismatch (rank %d has %d, root %d)",
				a.rank, a.count, src.count)
		}
		if err := w.types.copy(a.typ, a.out, src.in, a.count); err != nil {
			return err
		}
	}
	return nil
}

func execGather(w *World, args []*collArg) error {
	ra, err := rootArg(args)
	if err != nil {
		return err
	}
	dst := ra.out
	size, err := w.types.size(args[0].typ)
	if err != nil {
		return err
	}
	for _, a := range args {
		block := unsafe.Add(dst, uintptr(a.rank)*uintptr(a.count)*size)
		if err := w.types.copy(a.typ, block, a.in, a.count); err != nil {
			return err
		}
	}
	return nil
}

func execAllgather(w *World, args []*collArg) error {
	size, err := w.types.size(args[0].typ)
	if err != nil {
		return err
	}
	for _, dst := range args {
		for _, src := range args {
			block := unsafe.Add(dst.out, uintptr(src.rank)*uintptr(src.count)*size)
			if err := w.types.copy(src.typ, block, src.in, src.count); err != nil {
				return err
			}
		}
	}
	return nil
}

func execScatter(w *World, args []*collArg) error {
	ra, err := rootArg(args)
	if err != nil {
		return err
	}
	src := ra.in
	size, err := w.types.size(args[0].typ)
	if err != nil {
		return err
	}
	for _, a := range args {
		block := unsafe.Add(src, uintptr(a.rank)*uintptr(a.count)*size)
		if err := w.types.copy(a.typ, a.out, block, a.count); err != nil {
			return err
		}
	}
	return nil
}

// execReduce folds contributions in rank order into a scratch accumulator,
// then delivers it to the root (or to every rank for allreduce).
func execReduce(w *World, args []*collArg, all bool) error {
	first := args[0]
	size, err := w.types.size(first.typ)
	if err != nil {
		return err
	}

	acc := make([]byte, uintptr(first.count)*size)
	var accPtr unsafe.Pointer
	if len(acc) > 0 {
		accPtr = unsafe.Pointer(&acc[0])
	}
	if err := w.types.copy(first.typ, accPtr, first.in, first.count); err != nil {
		return err
	}

	for _, a := range args[1:] {
		if err := w.ops.apply(a.op, a.typ, a.in, accPtr, a.count); err != nil {
			return err
		}
	}

	for _, a := range args {
		if !all && a.rank != a.root {
			continue
		}
		if a.out == nil {
			continue
		}
		if err := w.types.copy(a.typ, a.out, accPtr, a.count); err != nil {
			return err
		}
	}
	return nil
}
