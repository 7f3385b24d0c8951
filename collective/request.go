package collective

import (
	"github.com/typemesh/wirepack"
	"github.com/typemesh/wirepack/comm"
	"github.com/typemesh/wirepack/payload"
)

// Request tracks an in-flight asynchronous transfer. A Request completes
// exactly once; Wait and Test may be called from any goroutine afterwards.
type Request struct {
	done   chan struct{}
	status wirepack.Status
	err    error
}

// Wait blocks until the transfer completes.
func (r *Request) Wait() (wirepack.Status, error) {
	<-r.done
	return r.status, r.err
}

// Test reports whether the transfer has completed without blocking.
func (r *Request) Test() (wirepack.Status, bool, error) {
	select {
	case <-r.done:
		return r.status, true, r.err
	default:
		return wirepack.Status{}, false, nil
	}
}

// WaitAll blocks until every request completes and returns the first error
// encountered, in argument order.
func WaitAll(reqs ...*Request) error {
	var first error
	for _, r := range reqs {
		if _, err := r.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func start(fn func() (wirepack.Status, error)) *Request {
	r := &Request{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		r.status, r.err = fn()
	}()
	return r
}

// SendAsync transmits a payload without blocking the caller. The payload's
// buffer must stay untouched until the request completes.
func SendAsync[T any](c *comm.Communicator, p payload.Payload[T], dst wirepack.Rank, tag wirepack.Tag) *Request {
	return start(func() (wirepack.Status, error) {
		return wirepack.Status{}, Send(c, p, dst, tag)
	})
}

// ReceiveIntoAsync accepts an incoming message into an existing payload
// without blocking the caller.
func ReceiveIntoAsync[T any](c *comm.Communicator, p payload.Payload[T], src wirepack.Rank, tag wirepack.Tag) *Request {
	return start(func() (wirepack.Status, error) {
		return ReceiveInto(c, p, src, tag)
	})
}
