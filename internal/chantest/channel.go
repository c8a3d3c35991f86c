// Package chantest provides an in-memory ports.Channel for tests: inbound
// frames are pushed by the test, outbound frames are recorded, and both
// write failures and channel loss can be injected.
package chantest

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Read once the channel is gone.
var ErrClosed = errors.New("channel closed")

// Channel is an in-memory bidirectional test channel.
type Channel struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error

	in        chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

// New creates an open test channel.
func New() *Channel {
	return &Channel{
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

// Write records the frame, or fails with the injected error. Like the real
// transport adapters it fails once ctx is done.
func (c *Channel) Write(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrClosed
	default:
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	c.writes = append(c.writes, cp)
	return nil
}

// Read blocks until a pushed frame arrives or the channel closes.
func (c *Channel) Read(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-c.in:
		return frame, nil
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close tears the channel down, unblocking pending reads.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Push enqueues an inbound frame for Read.
func (c *Channel) Push(frame []byte) {
	c.in <- frame
}

// FailWrites makes every subsequent Write return err (nil restores success).
func (c *Channel) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Writes returns a copy of the recorded outbound frames.
func (c *Channel) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}
