package loopback

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/typemesh/wirepack"
)

// commCtx is one communication context shared by every rank of a world.
type commCtx struct {
	size  int
	hub   *hub
	boxes []*mailbox
	refs  int
}

// World is an in-process substrate: size ranks wired together through shared
// memory. Each rank drives its own Endpoint, usually from its own goroutine.
type World struct {
	size  int
	types *typeStore
	ops   *opStore

	mu        sync.Mutex
	comms     map[wirepack.CommHandle]*commCtx
	nextComm  wirepack.CommHandle
	endpoints []*Endpoint
	finalized int
}

// NewWorld creates a world of size connected ranks.
func NewWorld(size int) (*World, error) {
	if size < 1 {
		return nil, fmt.Errorf("loopback: world size %d", size)
	}
	w := &World{
		size:     size,
		types:    newTypeStore(),
		ops:      newOpStore(),
		comms:    make(map[wirepack.CommHandle]*commCtx),
		nextComm: wirepack.CommWorld,
	}
	w.comms[wirepack.CommWorld] = w.newCtx()

	w.endpoints = make([]*Endpoint, size)
	for r := 0; r < size; r++ {
		w.endpoints[r] = &Endpoint{
			w:    w,
			rank: wirepack.Rank(r),
			seq:  make(map[wirepack.CommHandle]uint64),
		}
	}

	Logger().Debug("world created", zap.Int("size", size))
	return w, nil
}

func (w *World) newCtx() *commCtx {
	boxes := make([]*mailbox, w.size)
	for i := range boxes {
		boxes[i] = newMailbox()
	}
	return &commCtx{
		size:  w.size,
		hub:   newHub(w.size),
		boxes: boxes,
		refs:  w.size,
	}
}

// Size reports the number of ranks in the world.
func (w *World) Size() int { return w.size }

// Endpoint returns rank r's substrate.
func (w *World) Endpoint(r int) *Endpoint { return w.endpoints[r] }

// Spawn runs fn once per rank, each on its own goroutine, and waits for all
// of them. Errors from every rank are joined.
func (w *World) Spawn(fn func(rank int, s wirepack.Substrate) error) error {
	errs := make([]error, w.size)
	var wg sync.WaitGroup
	for r := 0; r < w.size; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			errs[r] = fn(r, w.endpoints[r])
		}(r)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (w *World) ctx(c wirepack.CommHandle) (*commCtx, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ctx, ok := w.comms[c]
	if !ok {
		return nil, fmt.Errorf("loopback: unknown context %d", c)
	}
	return ctx, nil
}

// Endpoint is one rank's view of a World. It implements wirepack.Substrate.
// An Endpoint is driven by a single goroutine at a time; distinct endpoints
// of one world may run fully concurrently.
type Endpoint struct {
	w    *World
	rank wirepack.Rank

	mu   sync.Mutex
	seq  map[wirepack.CommHandle]uint64
	done bool
}

var _ wirepack.Substrate = (*Endpoint)(nil)

func (e *Endpoint) guard() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return fmt.Errorf("loopback: endpoint %d finalized", e.rank)
	}
	return nil
}

func (e *Endpoint) nextSeq(c wirepack.CommHandle) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.seq[c]
	e.seq[c] = s + 1
	return s
}

func (e *Endpoint) CommitStruct(members []wirepack.StructMember) (wirepack.TypeHandle, error) {
	if err := e.guard(); err != nil {
		return wirepack.TypeInvalid, err
	}
	return e.w.types.commit(members)
}

func (e *Endpoint) DupType(t wirepack.TypeHandle) (wirepack.TypeHandle, error) {
	if err := e.guard(); err != nil {
		return wirepack.TypeInvalid, err
	}
	return e.w.types.dup(t)
}

func (e *Endpoint) FreeType(t wirepack.TypeHandle) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.w.types.free(t)
}

func (e *Endpoint) TypeSize(t wirepack.TypeHandle) (int, error) {
	if err := e.guard(); err != nil {
		return 0, err
	}
	size, err := e.w.types.size(t)
	return int(size), err
}

func (e *Endpoint) CommitOp(fn wirepack.ReduceFunc, _ bool) (wirepack.OpHandle, error) {
	if err := e.guard(); err != nil {
		return wirepack.OpInvalid, err
	}
	return e.w.ops.commit(fn)
}

func (e *Endpoint) FreeOp(op wirepack.OpHandle) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.w.ops.free(op)
}

// DupComm is collective: every rank of the context joins, and one fresh
// context serves them all.
func (e *Endpoint) DupComm(c wirepack.CommHandle) (wirepack.CommHandle, error) {
	ctx, err := e.ctxGuarded(c)
	if err != nil {
		return 0, err
	}

	var dup wirepack.CommHandle
	arg := &collArg{rank: e.rank, out: unsafe.Pointer(&dup)}
	err = ctx.hub.join(e.w, e.nextSeq(c), arg, func(w *World, args []*collArg) error {
		w.mu.Lock()
		w.nextComm++
		h := w.nextComm
		w.comms[h] = w.newCtx()
		w.mu.Unlock()
		for _, a := range args {
			*(*wirepack.CommHandle)(a.out) = h
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return dup, nil
}

func (e *Endpoint) FreeComm(c wirepack.CommHandle) error {
	if err := e.guard(); err != nil {
		return err
	}
	if c == wirepack.CommWorld {
		return fmt.Errorf("loopback: world context is substrate-owned")
	}

	e.w.mu.Lock()
	defer e.w.mu.Unlock()
	ctx, ok := e.w.comms[c]
	if !ok {
		return fmt.Errorf("loopback: unknown context %d", c)
	}
	ctx.refs--
	if ctx.refs <= 0 {
		for _, mb := range ctx.boxes {
			mb.close()
		}
		delete(e.w.comms, c)
	}
	return nil
}

func (e *Endpoint) CommRank(c wirepack.CommHandle) (wirepack.Rank, error) {
	if _, err := e.w.ctx(c); err != nil {
		return -1, err
	}
	return e.rank, nil
}

func (e *Endpoint) CommSize(c wirepack.CommHandle) (int, error) {
	ctx, err := e.w.ctx(c)
	if err != nil {
		return 0, err
	}
	return ctx.size, nil
}

func (e *Endpoint) Send(buf unsafe.Pointer, count int, t wirepack.TypeHandle, dst wirepack.Rank, tag wirepack.Tag, c wirepack.CommHandle) error {
	ctx, err := e.ctxGuarded(c)
	if err != nil {
		return err
	}
	if int(dst) < 0 || int(dst) >= ctx.size {
		return fmt.Errorf("loopback: destination rank %d out of range", dst)
	}

	size, err := e.w.types.size(t)
	if err != nil {
		return err
	}
	bp := getBuf(int(uintptr(count) * size))
	data := *bp
	var dp unsafe.Pointer
	if len(data) > 0 {
		dp = unsafe.Pointer(&data[0])
	}
	if err := e.w.types.copy(t, dp, buf, count); err != nil {
		putBuf(bp)
		return err
	}

	err = ctx.boxes[dst].deposit(&message{
		src:   e.rank,
		tag:   tag,
		typ:   t,
		count: count,
		data:  data,
		buf:   bp,
	})
	if err != nil {
		putBuf(bp)
	}
	return err
}

func (e *Endpoint) Recv(buf unsafe.Pointer, count int, t wirepack.TypeHandle, src wirepack.Rank, tag wirepack.Tag, c wirepack.CommHandle) (wirepack.Status, error) {
	ctx, err := e.ctxGuarded(c)
	if err != nil {
		return wirepack.Status{}, err
	}

	msg, err := ctx.boxes[e.rank].take(src, tag)
	if err != nil {
		return wirepack.Status{}, err
	}
	if msg.count > count {
		return wirepack.Status{}, fmt.Errorf("loopback: message of %d elements truncated by %d-element buffer",
			msg.count, count)
	}

	var sp unsafe.Pointer
	if len(msg.data) > 0 {
		sp = unsafe.Pointer(&msg.data[0])
	}
	if err := e.w.types.copy(msg.typ, buf, sp, msg.count); err != nil {
		return wirepack.Status{}, err
	}
	putBuf(msg.buf)

	return wirepack.Status{Source: msg.src, Tag: msg.tag, Count: msg.count}, nil
}

func (e *Endpoint) Probe(src wirepack.Rank, tag wirepack.Tag, c wirepack.CommHandle) (wirepack.Status, error) {
	ctx, err := e.ctxGuarded(c)
	if err != nil {
		return wirepack.Status{}, err
	}
	msg, err := ctx.boxes[e.rank].peek(src, tag)
	if err != nil {
		return wirepack.Status{}, err
	}
	return wirepack.Status{Source: msg.src, Tag: msg.tag, Count: msg.count}, nil
}

func (e *Endpoint) Bcast(buf unsafe.Pointer, count int, t wirepack.TypeHandle, root wirepack.Rank, c wirepack.CommHandle) error {
	return e.collective(c, &collArg{
		rank: e.rank, in: buf, out: buf, count: count, typ: t, root: root,
	}, execBcast)
}

func (e *Endpoint) Reduce(in, out unsafe.Pointer, count int, t wirepack.TypeHandle, op wirepack.OpHandle, root wirepack.Rank, c wirepack.CommHandle) error {
	return e.collective(c, &collArg{
		rank: e.rank, in: in, out: out, count: count, typ: t, op: op, root: root,
	}, func(w *World, args []*collArg) error {
		return execReduce(w, args, false)
	})
}

func (e *Endpoint) Allreduce(in, out unsafe.Pointer, count int, t wirepack.TypeHandle, op wirepack.OpHandle, c wirepack.CommHandle) error {
	return e.collective(c, &collArg{
		rank: e.rank, in: in, out: out, count: count, typ: t, op: op,
	}, func(w *World, args []*collArg) error {
		return execReduce(w, args, true)
	})
}

func (e *Endpoint) Gather(in unsafe.Pointer, count int, t wirepack.TypeHandle, out unsafe.Pointer, root wirepack.Rank, c wirepack.CommHandle) error {
	return e.collective(c, &collArg{
		rank: e.rank, in: in, out: out, count: count, typ: t, root: root,
	}, execGather)
}

func (e *Endpoint) Allgather(in unsafe.Pointer, count int, t wirepack.TypeHandle, out unsafe.Pointer, c wirepack.CommHandle) error {
	return e.collective(c, &collArg{
		rank: e.rank, in: in, out: out, count: count, typ: t,
	}, execAllgather)
}

func (e *Endpoint) Scatter(in, out unsafe.Pointer, count int, t wirepack.TypeHandle, root wirepack.Rank, c wirepack.CommHandle) error {
	return e.collective(c, &collArg{
		rank: e.rank, in: in, out: out, count: count, typ: t, root: root,
	}, execScatter)
}

func (e *Endpoint) Barrier(c wirepack.CommHandle) error {
	return e.collective(c, &collArg{rank: e.rank}, execBarrier)
}

func (e *Endpoint) Finalized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Finalize marks this rank done. When the last rank finalizes, every mailbox
// closes and blocked receivers are released with an error.
func (e *Endpoint) Finalize() error {
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return nil
	}
	e.done = true
	e.mu.Unlock()

	e.w.mu.Lock()
	e.w.finalized++
	last := e.w.finalized == e.w.size
	var ctxs []*commCtx
	if last {
		for _, ctx := range e.w.comms {
			ctxs = append(ctxs, ctx)
		}
	}
	e.w.mu.Unlock()

	for _, ctx := range ctxs {
		for _, mb := range ctx.boxes {
			mb.close()
		}
	}
	if last {
		Logger().Debug("world shut down", zap.Int("size", e.w.size))
	}
	return nil
}

func (e *Endpoint) collective(c wirepack.CommHandle, arg *collArg, exec execFn) error {
	ctx, err := e.ctxGuarded(c)
	if err != nil {
		return err
	}
	return ctx.hub.join(e.w, e.nextSeq(c), arg, exec)
}

func (e *Endpoint) ctxGuarded(c wirepack.CommHandle) (*commCtx, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	return e.w.ctx(c)
}
