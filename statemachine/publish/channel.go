package publish

import (
	"context"
	"sync"

	"github.com/amp-labs/typestate/statemachine"
)

// Channel publishes changes to an unbounded in-process queue, read through
// Changes. Publish only waits for the queue goroutine, never for the reader.
type Channel struct {
	mu     sync.RWMutex
	closed bool
	in     chan statemachine.Change
	out    chan statemachine.Change
	length func() int
}

// NewChannel starts the queue goroutine. Call Close to stop it; Changes is
// closed once every queued change has been read.
func NewChannel() *Channel {
	c := &Channel{
		in:  make(chan statemachine.Change),
		out: make(chan statemachine.Change),
	}

	lengths := make(chan chan int)
	c.length = func() int {
		reply := make(chan int, 1)
		lengths <- reply

		return <-reply
	}

	go c.run(lengths)

	return c
}

func (c *Channel) run(lengths chan chan int) {
	var queue []statemachine.Change

	in := c.in

	// A nil out channel disables the send case while the queue is empty.
	next := func() (chan statemachine.Change, statemachine.Change) {
		if len(queue) == 0 {
			return nil, statemachine.Change{}
		}

		return c.out, queue[0]
	}

	for len(queue) > 0 || in != nil {
		out, head := next()

		select {
		case change, ok := <-in:
			if !ok {
				in = nil

				continue
			}

			queue = append(queue, change)
		case out <- head:
			queue[0] = statemachine.Change{}
			queue = queue[1:]
		case reply := <-lengths:
			reply <- len(queue)
		}
	}

	close(c.out)
}

// Publish queues change.
func (c *Channel) Publish(ctx context.Context, change statemachine.Change) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrPublisherClosed
	}

	select {
	case c.in <- change:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Changes returns the channel the queued changes are delivered on.
func (c *Channel) Changes() <-chan statemachine.Change {
	return c.out
}

// Len returns the number of changes queued but not yet read. It returns 0
// once the channel is closed.
func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0
	}

	return c.length()
}

// Close stops accepting changes. It is safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.in)
	}

	return nil
}
