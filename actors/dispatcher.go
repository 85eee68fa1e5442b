package actors

import (
	"context"

	"github.com/super-flat/pipeline/message"
	"github.com/super-flat/pipeline/transport"
)

// Dispatcher forwards the data messages it receives to the targets its
// Filter picks
type Dispatcher struct {
	router *router
}

// NewDispatcher returns a dispatcher actor routing along filter
func NewDispatcher(name string, filter *Filter, net *transport.Context, opts ...ActorOpt) *ActorRef {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	dispatcher := &Dispatcher{
		router: newRouter(filter, o.logger.With("actor", name)),
	}
	return NewActorRef(name, dispatcher, net, opts...)
}

// Init connects to every target of the filter
func (d *Dispatcher) Init(context.Context) error {
	return d.router.connect()
}

// Receive forwards msg unchanged
func (d *Dispatcher) Receive(ctx context.Context, msg message.Message) error {
	return d.router.forward(ctx, msg)
}

// Close releases the target connections
func (d *Dispatcher) Close() error {
	d.router.close()
	return nil
}
