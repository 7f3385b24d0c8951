// Package collective provides the typed communication operations: typed
// point-to-point transfers and the collective exchange patterns, expressed
// over payloads so descriptors and counts always travel together.
package collective

import (
	"unsafe"

	"github.com/typemesh/wirepack"
	"github.com/typemesh/wirepack/comm"
	"github.com/typemesh/wirepack/errors"
	"github.com/typemesh/wirepack/payload"
)

// Send transmits a payload to a destination rank.
func Send[T any](c *comm.Communicator, p payload.Payload[T], dst wirepack.Rank, tag wirepack.Tag) error {
	err := c.Substrate().Send(p.Ptr(), p.Count(), p.Type(), dst, tag, c.Handle())
	if err != nil {
		return errors.Wrap(errors.PhaseTransmit, errors.KindInvalidInput, err, "send")
	}
	return nil
}

// SendValue transmits a single value.
func SendValue[T any](c *comm.Communicator, v T, dst wirepack.Rank, tag wirepack.Tag) error {
	p, err := payload.Of(c.Types(), &v)
	if err != nil {
		return err
	}
	return Send(c, p, dst, tag)
}

// SendSlice transmits the contents of a slice.
func SendSlice[T any](c *comm.Communicator, s []T, dst wirepack.Rank, tag wirepack.Tag) error {
	p, err := payload.FromSlice(c.Types(), s)
	if err != nil {
		return err
	}
	return Send(c, p, dst, tag)
}

// Receive accepts an incoming message into a freshly-allocated owned payload,
// sized by probing the pending message. Source and tag accept the wirepack
// wildcards.
func Receive[T any](c *comm.Communicator, src wirepack.Rank, tag wirepack.Tag) (payload.Payload[T], wirepack.Status, error) {
	st, err := Probe(c, src, tag)
	if err != nil {
		return payload.Payload[T]{}, wirepack.Status{}, err
	}

	p, err := payload.Allocate[T](c.Types(), st.Count)
	if err != nil {
		return payload.Payload[T]{}, wirepack.Status{}, err
	}

	// Receive exactly the probed message, not a later wildcard match.
	st, err = ReceiveInto(c, p, st.Source, st.Tag)
	return p, st, err
}

// ReceiveInto accepts an incoming message into an existing payload's buffer.
func ReceiveInto[T any](c *comm.Communicator, p payload.Payload[T], src wirepack.Rank, tag wirepack.Tag) (wirepack.Status, error) {
	st, err := c.Substrate().Recv(p.Ptr(), p.Count(), p.Type(), src, tag, c.Handle())
	if err != nil {
		return wirepack.Status{}, errors.Wrap(errors.PhaseTransmit, errors.KindInvalidInput, err, "receive")
	}
	return st, nil
}

// Probe reports the envelope of the next matching message without consuming
// it. The returned count is in elements of the sender's descriptor.
func Probe(c *comm.Communicator, src wirepack.Rank, tag wirepack.Tag) (wirepack.Status, error) {
	st, err := c.Substrate().Probe(src, tag, c.Handle())
	if err != nil {
		return wirepack.Status{}, errors.Wrap(errors.PhaseTransmit, errors.KindNotFound, err, "probe")
	}
	return st, nil
}

// Broadcast distributes the root's payload to every rank. The element count
// travels first, so only the root's payload sizes the exchange; every rank
// receives an owned copy (the root gets its own payload back unchanged).
func Broadcast[T any](c *comm.Communicator, p payload.Payload[T], root wirepack.Rank) (payload.Payload[T], error) {
	count, err := shareCount(c, p.Count(), root)
	if err != nil {
		return payload.Payload[T]{}, err
	}

	out := p
	if !c.Root(root) {
		if out, err = payload.Allocate[T](c.Types(), count); err != nil {
			return payload.Payload[T]{}, err
		}
	}

	err = c.Substrate().Bcast(out.Ptr(), count, out.Type(), root, c.Handle())
	if err != nil {
		return payload.Payload[T]{}, errors.Wrap(errors.PhaseTransmit, errors.KindInvalidInput, err, "broadcast")
	}
	return out, nil
}

// BroadcastValue distributes a single value from the root.
func BroadcastValue[T any](c *comm.Communicator, v T, root wirepack.Rank) (T, error) {
	p, err := payload.Of(c.Types(), &v)
	if err != nil {
		return v, err
	}
	out, err := Broadcast(c, p, root)
	if err != nil {
		return v, err
	}
	return *out.At(0), nil
}

// Reduce folds every rank's payload element-wise with op and delivers the
// result to the root. Ranks other than the root get a zero payload back.
func Reduce[T any](c *comm.Communicator, p payload.Payload[T], op wirepack.OpHandle, root wirepack.Rank) (payload.Payload[T], error) {
	var out payload.Payload[T]
	var outPtr unsafe.Pointer
	if c.Root(root) {
		var err error
		if out, err = payload.Allocate[T](c.Types(), p.Count()); err != nil {
			return payload.Payload[T]{}, err
		}
		outPtr = out.Ptr()
	}

	err := c.Substrate().Reduce(p.Ptr(), outPtr, p.Count(), p.Type(), op, root, c.Handle())
	if err != nil {
		return payload.Payload[T]{}, errors.Wrap(errors.PhaseTransmit, errors.KindInvalidInput, err, "reduce")
	}
	return out, nil
}

// Allreduce folds every rank's payload element-wise with op and delivers the
// result to all ranks.
func Allreduce[T any](c *comm.Communicator, p payload.Payload[T], op wirepack.OpHandle) (payload.Payload[T], error) {
	out, err := payload.Allocate[T](c.Types(), p.Count())
	if err != nil {
		return payload.Payload[T]{}, err
	}

	err = c.Substrate().Allreduce(p.Ptr(), out.Ptr(), p.Count(), p.Type(), op, c.Handle())
	if err != nil {
		return payload.Payload[T]{}, errors.Wrap(errors.PhaseTransmit, errors.KindInvalidInput, err, "allreduce")
	}
	return out, nil
}

// Gather concentrates every rank's payload at the root, concatenated in rank
// order. All ranks must contribute the same element count. Ranks other than
// the root get a zero payload back.
func Gather[T any](c *comm.Communicator, p payload.Payload[T], root wirepack.Rank) (payload.Payload[T], error) {
	var out payload.Payload[T]
	var outPtr unsafe.Pointer
	if c.Root(root) {
		var err error
		if out, err = payload.Allocate[T](c.Types(), p.Count()*c.Size()); err != nil {
			return payload.Payload[T]{}, err
		}
		outPtr = out.Ptr()
	}

	err := c.Substrate().Gather(p.Ptr(), p.Count(), p.Type(), outPtr, root, c.Handle())
	if err != nil {
		return payload.Payload[T]{}, errors.Wrap(errors.PhaseTransmit, errors.KindInvalidInput, err, "gather")
	}
	return out, nil
}

// Allgather concentrates every rank's payload at every rank, concatenated in
// rank order.
func Allgather[T any](c *comm.Communicator, p payload.Payload[T]) (payload.Payload[T], error) {
	out, err := payload.Allocate[T](c.Types(), p.Count()*c.Size())
	if err != nil {
		return payload.Payload[T]{}, err
	}

	err = c.Substrate().Allgather(p.Ptr(), p.Count(), p.Type(), out.Ptr(), c.Handle())
	if err != nil {
		return payload.Payload[T]{}, errors.Wrap(errors.PhaseTransmit, errors.KindInvalidInput, err, "allgather")
	}
	return out, nil
}

// Scatter spreads the root's payload across the ranks in even rank-order
// blocks. The root's element count must divide by the context size; every
// rank gets an owned payload holding its block.
func Scatter[T any](c *comm.Communicator, p payload.Payload[T], root wirepack.Rank) (payload.Payload[T], error) {
	total, err := shareCount(c, p.Count(), root)
	if err != nil {
		return payload.Payload[T]{}, err
	}
	if total%c.Size() != 0 {
		return payload.Payload[T]{}, errors.InvalidInput(errors.PhaseTransmit,
			"scatter element count does not divide across the context")
	}
	block := total / c.Size()

	out, err := payload.Allocate[T](c.Types(), block)
	if err != nil {
		return payload.Payload[T]{}, err
	}

	err = c.Substrate().Scatter(p.Ptr(), out.Ptr(), block, out.Type(), root, c.Handle())
	if err != nil {
		return payload.Payload[T]{}, errors.Wrap(errors.PhaseTransmit, errors.KindInvalidInput, err, "scatter")
	}
	return out, nil
}

// Barrier blocks until every rank of the context has entered it.
func Barrier(c *comm.Communicator) error {
	if err := c.Substrate().Barrier(c.Handle()); err != nil {
		return errors.Wrap(errors.PhaseTransmit, errors.KindInvalidInput, err, "barrier")
	}
	return nil
}

// shareCount broadcasts the root's element count so non-root ranks can size
// their buffers before the data moves.
func shareCount(c *comm.Communicator, count int, root wirepack.Rank) (int, error) {
	n := int64(count)
	err := c.Substrate().Bcast(unsafe.Pointer(&n), 1, wirepack.TypeInt64, root, c.Handle())
	if err != nil {
		return 0, errors.Wrap(errors.PhaseTransmit, errors.KindInvalidInput, err, "count exchange")
	}
	return int(n), nil
}
