// Package transport provides the in-process sockets actors talk through.
//
// An actor binds one endpoint per channel under a name such as
// "inproc://dispatcher.data". Other parties dial that name and get either a
// push connection (data channel, fire-and-forget) or a request connection
// (control channel, replies come back in request order). Frames are opaque
// bytes; encoding is left to the caller.
package transport

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrNotBound is returned when dialing an address nobody has bound
	ErrNotBound = errors.New("address not bound")
	// ErrAddressInUse is returned when binding an address twice
	ErrAddressInUse = errors.New("address already in use")
	// ErrClosed is returned when using a closed endpoint or connection
	ErrClosed = errors.New("connection closed")
	// ErrTimeout is returned when no reply arrives in time
	ErrTimeout = errors.New("timed out waiting for reply")
)

const defaultReplyBuffer = 16

// Context is a registry of bound endpoints. Actors that need to reach each
// other must share one Context.
type Context struct {
	endpoints map[string]*Endpoint
	mtx       sync.Mutex
}

// NewContext returns an empty Context
func NewContext() *Context {
	return &Context{
		endpoints: make(map[string]*Endpoint, 16),
	}
}

// Bind registers a new endpoint at address with room for capacity frames
func (c *Context) Bind(address string, capacity int) (*Endpoint, error) {
	if capacity < 0 {
		capacity = 0
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if _, exists := c.endpoints[address]; exists {
		return nil, errors.Wrap(ErrAddressInUse, address)
	}
	endpoint := newEndpoint(address, capacity, c)
	c.endpoints[address] = endpoint
	return endpoint, nil
}

// Dial opens a push connection to the endpoint bound at address
func (c *Context) Dial(address string) (*PushConn, error) {
	endpoint, err := c.lookup(address)
	if err != nil {
		return nil, err
	}
	return &PushConn{endpoint: endpoint}, nil
}

// DialRequest opens a request connection to the endpoint bound at address
func (c *Context) DialRequest(address string) (*ReqConn, error) {
	endpoint, err := c.lookup(address)
	if err != nil {
		return nil, err
	}
	return &ReqConn{
		endpoint: endpoint,
		replies:  make(chan []byte, defaultReplyBuffer),
	}, nil
}

// Bound reports whether an endpoint is registered at address
func (c *Context) Bound(address string) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	_, exists := c.endpoints[address]
	return exists
}

func (c *Context) lookup(address string) (*Endpoint, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	endpoint, exists := c.endpoints[address]
	if !exists {
		return nil, errors.Wrap(ErrNotBound, address)
	}
	return endpoint, nil
}

func (c *Context) unbind(endpoint *Endpoint) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if current, exists := c.endpoints[endpoint.Address]; exists && current == endpoint {
		delete(c.endpoints, endpoint.Address)
	}
}
