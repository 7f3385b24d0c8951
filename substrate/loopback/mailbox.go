package loopback

import (
	"fmt"
	"sync"

	"github.com/typemesh/wirepack"
)

type message struct {
	src   wirepack.Rank
	tag   wirepack.Tag
	typ   wirepack.TypeHandle
	count int
	data  []byte
	buf   *[]byte // pool slot backing data, recycled on receive
}

func (m *message) matches(src wirepack.Rank, tag wirepack.Tag) bool {
	if src != wirepack.RankAny && src != m.src {
		return false
	}
	if tag != wirepack.TagAny && tag != m.tag {
		return false
	}
	return true
}

// mailbox queues messages for one destination rank. Receivers block on the
// condition variable until a matching message arrives or the world closes.
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*message
	closed bool
}

func newMailbox() *mailbox {
	mb := &mailbox{}
	mb.cond = sync.NewCond(&mb.mu)
	return mb
}

func (mb *mailbox) deposit(m *message) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.closed {
		return fmt.Errorf("loopback: mailbox closed")
	}
	mb.queue = append(mb.queue, m)
	mb.cond.Broadcast()
	return nil
}

// take blocks until a message matching (src, tag) is queued, then removes
// and returns it. Messages from the same source stay ordered.
func (mb *mailbox) take(src wirepack.Rank, tag wirepack.Tag) (*message, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	for {
		for i, m := range mb.queue {
			if m.matches(src, tag) {
				mb.queue = append(mb.queue[:i], mb.queue[i+1:]...)
				return m, nil
			}
		}
		if mb.closed {
			return nil, fmt.Errorf("loopback: world finalized while receiving")
		}
		mb.cond.Wait()
	}
}

// peek blocks like take but leaves the message queued.
func (mb *mailbox) peek(src wirepack.Rank, tag wirepack.Tag) (*message, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	for {
		for _, m := range mb.queue {
			if m.matches(src, tag) {
				return m, nil
			}
		}
		if mb.closed {
			return nil, fmt.Errorf("loopback: world finalized while probing")
		}
		mb.cond.Wait()
	}
}

func (mb *mailbox) close() {
	mb.mu.Lock()
	mb.closed = true
	mb.cond.Broadcast()
	mb.mu.Unlock()
}
