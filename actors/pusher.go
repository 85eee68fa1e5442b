package actors

import (
	"context"

	"github.com/pkg/errors"
	"github.com/super-flat/pipeline/database"
	"github.com/super-flat/pipeline/message"
	"github.com/super-flat/pipeline/transport"
)

// Pusher writes every record it receives to a sink. It is the usual last
// actor of a pipeline.
type Pusher struct {
	sink database.Sink
}

// NewPusher returns a pusher actor writing to sink
func NewPusher(name string, sink database.Sink, net *transport.Context, opts ...ActorOpt) *ActorRef {
	return NewActorRef(name, &Pusher{sink: sink}, net, opts...)
}

// Init loads the sink
func (p *Pusher) Init(ctx context.Context) error {
	return errors.Wrap(p.sink.Load(ctx), "load sink")
}

// Receive stores records and ignores anything else
func (p *Pusher) Receive(ctx context.Context, msg message.Message) error {
	record, ok := msg.(*message.RecordMessage)
	if !ok {
		return nil
	}
	return p.sink.Store(ctx, record)
}

// Close releases the sink
func (p *Pusher) Close() error {
	return p.sink.Close()
}
