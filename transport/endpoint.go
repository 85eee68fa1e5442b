package transport

import (
	"context"
	"sync"
	"sync/atomic"
)

// Frame is one encoded message delivered to an endpoint. ReplyTo is set for
// requests arriving on a control endpoint.
type Frame struct {
	Payload []byte
	ReplyTo chan<- []byte
}

// Reply sends payload back to the requester. Frames without a reply channel
// are ignored.
func (f Frame) Reply(ctx context.Context, payload []byte) error {
	if f.ReplyTo == nil {
		return nil
	}
	select {
	case f.ReplyTo <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Endpoint is a bound, named mailbox. Frames are consumed by exactly one
// goroutine, the owner of the endpoint.
type Endpoint struct {
	Address string

	inbox    chan Frame
	done     chan struct{}
	once     sync.Once
	registry *Context
	msgCount atomic.Int64
}

func newEndpoint(address string, capacity int, registry *Context) *Endpoint {
	return &Endpoint{
		Address:  address,
		inbox:    make(chan Frame, capacity),
		done:     make(chan struct{}),
		registry: registry,
	}
}

// Frames returns the channel the owner reads frames from
func (e *Endpoint) Frames() <-chan Frame {
	return e.inbox
}

// Delivered returns the number of frames accepted by the endpoint. The
// owner compares it with what it handled to know it is idle.
func (e *Endpoint) Delivered() int64 {
	return e.msgCount.Load()
}

// Close stops accepting frames and releases the address. Frames still
// buffered are dropped.
func (e *Endpoint) Close() {
	e.once.Do(func() {
		close(e.done)
		if e.registry != nil {
			e.registry.unbind(e)
		}
	})
}

// deliver blocks until the frame is queued, the endpoint closes or ctx ends
func (e *Endpoint) deliver(ctx context.Context, frame Frame) error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}
	// counted before queueing, so the owner never sees a queued frame
	// missing from the count
	e.msgCount.Add(1)
	select {
	case e.inbox <- frame:
		return nil
	case <-e.done:
		e.msgCount.Add(-1)
		return ErrClosed
	case <-ctx.Done():
		e.msgCount.Add(-1)
		return ctx.Err()
	}
}
