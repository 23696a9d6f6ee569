package progress

import (
	"context"
	"sync"
)

// Channel is a single-producer, single-consumer mailbox holding only the
// latest undelivered event. A slow consumer may miss intermediate updates
// but always receives the terminal event. Percent never decreases.
type Channel struct {
	mu      sync.Mutex
	pending *Event
	last    Event
	started bool
	closed  bool
	wake    chan struct{}
}

// NewChannel creates an empty channel.
func NewChannel() *Channel {
	return &Channel{wake: make(chan struct{}, 1)}
}

// Emit stores e as the latest event. Events after the terminal one are dropped.
func (c *Channel) Emit(e Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if e.Percent < 0 {
		e.Percent = 0
	}
	if e.Percent > 100 {
		e.Percent = 100
	}
	if c.started && e.Percent < c.last.Percent {
		e.Percent = c.last.Percent
	}
	if e.Done && e.Status == StatusCompleted {
		e.Percent = 100
	}

	c.pending = &e
	c.last = e
	c.started = true
	c.closed = e.Done
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available. It returns false once the
// terminal event has been consumed or ctx is done.
func (c *Channel) Next(ctx context.Context) (Event, bool) {
	for {
		c.mu.Lock()
		if c.pending != nil {
			e := *c.pending
			c.pending = nil
			c.mu.Unlock()
			return e, true
		}
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return Event{}, false
		}

		select {
		case <-ctx.Done():
			return Event{}, false
		case <-c.wake:
		}
	}
}

// Snapshot returns the most recent event without consuming it.
func (c *Channel) Snapshot() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.started
}

// Done reports whether the terminal event has been emitted.
func (c *Channel) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
