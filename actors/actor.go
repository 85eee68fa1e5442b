package actors

import (
	"context"

	"github.com/super-flat/pipeline/message"
	"github.com/super-flat/pipeline/transport"
)

// Behavior is what an actor specialization plugs into the runtime. The
// runtime owns the control protocol; a Behavior only says what
// initialization means and how data is handled. All methods are called from
// the actor's own goroutine.
type Behavior interface {
	// Init runs on the first StartMessage. An error is reported to the
	// sender and ends the actor.
	Init(ctx context.Context) error
	// Receive handles one data message
	Receive(ctx context.Context, msg message.Message) error
	// Close releases what Init acquired. It runs once, when the actor stops.
	Close() error
}

// Feeder is implemented by behaviors producing messages on their own once
// initialized. Messages read from the feed are handed to Receive. Closing
// the feed ends the actor.
type Feeder interface {
	Feed(ctx context.Context) <-chan message.Message
	// Err returns why the feed closed, nil when it simply ran out. It is
	// read once the feed is closed.
	Err() error
}

// Target is a downstream actor a Filter can route to
type Target interface {
	// Name returns the actor name
	Name() string
	// DialData opens a data connection owned by the caller
	DialData() (*transport.PushConn, error)
}
