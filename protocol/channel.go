package protocol

import (
	"sync"
)

const subscriptionBacklog = 255

// Channel fans incoming commands out to any number of subscribers. Every
// subscriber observes the commands that pass its filter in wire order, and
// a terminal stream error reaches each subscriber exactly once.
type Channel struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
	cause  error
}

func NewChannel() *Channel {
	return &Channel{subs: map[*Subscription]struct{}{}}
}

// Subscription is one subscriber's view of a Channel. C yields matching
// commands until the stream ends; Err then yields the terminal error.
type Subscription struct {
	C <-chan Command

	ch     chan Command
	err    chan error
	done   chan struct{}
	once   sync.Once
	filter func(Command) bool
}

// Err reports why the stream ended. It yields at most one error, after C is
// closed.
func (s *Subscription) Err() <-chan error {
	return s.err
}

// Cancel detaches the subscription. Safe to call more than once and safe to
// call concurrently with delivery.
func (s *Subscription) Cancel() {
	s.once.Do(func() { close(s.done) })
}

// Subscribe registers a new subscriber. A nil filter matches every command.
// Subscribing to an already-closed Channel yields a subscription whose C is
// closed and whose Err carries the terminal error.
func (c *Channel) Subscribe(filter func(Command) bool) *Subscription {
	sub := &Subscription{
		ch:     make(chan Command, subscriptionBacklog),
		err:    make(chan error, 1),
		done:   make(chan struct{}),
		filter: filter,
	}
	sub.C = sub.ch

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		sub.err <- c.cause
		close(sub.ch)

		return sub
	}

	c.subs[sub] = struct{}{}

	return sub
}

// Publish delivers one command to every matching subscriber, blocking on
// slow ones rather than dropping. A cancelled subscriber never blocks
// delivery.
func (c *Channel) Publish(cmd Command) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for sub := range c.subs {
		if sub.filter != nil && !sub.filter(cmd) {
			continue
		}

		select {
		case sub.ch <- cmd:
		case <-sub.done:
			delete(c.subs, sub)
		}
	}
}

// Close ends the stream. Every current subscriber receives cause on Err and
// sees C closed; later subscribers observe the same. Only the first call
// takes effect.
func (c *Channel) Close(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.cause = cause

	for sub := range c.subs {
		sub.err <- cause
		close(sub.ch)
		delete(c.subs, sub)
	}
}
