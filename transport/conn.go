package transport

import (
	"context"
	"sync/atomic"
	"time"
)

// PushConn sends frames to an endpoint without expecting replies
type PushConn struct {
	endpoint *Endpoint
	closed   atomic.Bool
}

// Address returns the address the connection was dialed to
func (p *PushConn) Address() string {
	return p.endpoint.Address
}

// Push queues payload on the remote endpoint
func (p *PushConn) Push(ctx context.Context, payload []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.endpoint.deliver(ctx, Frame{Payload: payload})
}

// Close releases the connection. The remote endpoint stays bound.
func (p *PushConn) Close() error {
	p.closed.Store(true)
	return nil
}

// ReqConn sends requests to an endpoint and collects the replies in order
type ReqConn struct {
	endpoint *Endpoint
	replies  chan []byte
	closed   atomic.Bool
}

// Address returns the address the connection was dialed to
func (r *ReqConn) Address() string {
	return r.endpoint.Address
}

// Request queues payload on the remote endpoint. Replies, if any, are read
// with Reply.
func (r *ReqConn) Request(ctx context.Context, payload []byte) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return r.endpoint.deliver(ctx, Frame{Payload: payload, ReplyTo: r.replies})
}

// Reply waits up to timeout for the next reply
func (r *ReqConn) Reply(timeout time.Duration) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	// replies already queued win over an expired timer
	select {
	case reply := <-r.replies:
		return reply, nil
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply := <-r.replies:
		return reply, nil
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Close releases the connection
func (r *ReqConn) Close() error {
	r.closed.Store(true)
	return nil
}
