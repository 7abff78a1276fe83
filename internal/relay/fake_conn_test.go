package relay

import (
	"context"
	"errors"
	"sync"
)

type fakeConn struct {
	id string

	mu         sync.Mutex
	forwarded  []Payload
	closeCount int
	closeMsg   string
	forwardErr error

	// When set, Forward signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func newBlockingConn(id string) *fakeConn {
	return &fakeConn{
		id:      id,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Forward(ctx context.Context, payload Payload) error {
	if c.entered != nil {
		c.entered <- struct{}{}
		select {
		case <-c.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.forwardErr != nil {
		return c.forwardErr
	}
	if c.closeCount > 0 {
		return errors.New("connection closed")
	}
	c.forwarded = append(c.forwarded, payload)
	return nil
}

func (c *fakeConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	c.closeMsg = reason
	return nil
}

func (c *fakeConn) Forwarded() []Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Payload, len(c.forwarded))
	copy(out, c.forwarded)
	return out
}

func (c *fakeConn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}
