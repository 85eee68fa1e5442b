package actors

import (
	"time"

	"cosmossdk.io/log"
)

// ActorOpt helps defines custom options
type ActorOpt func(opts *options)

type options struct {
	mailboxSize      int
	terminateTimeout time.Duration
	logger           log.Logger
	streamMode       bool
}

func defaultOptions() *options {
	return &options{
		mailboxSize:      100,
		terminateTimeout: 5 * time.Second,
		logger:           log.NewNopLogger(),
		streamMode:       true,
	}
}

// WithMailboxSize sets how many frames each channel of the actor buffers
func WithMailboxSize(size int) ActorOpt {
	return func(opts *options) {
		opts.mailboxSize = size
	}
}

// WithTerminateTimeout sets how long Terminate waits for the actor to stop
func WithTerminateTimeout(timeout time.Duration) ActorOpt {
	return func(opts *options) {
		opts.terminateTimeout = timeout
	}
}

// WithLogger sets the logger. The actor name is added to every entry.
func WithLogger(logger log.Logger) ActorOpt {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithStreamMode sets whether a puller keeps polling an exhausted source
// (true, the default) or stops once the source has nothing left
func WithStreamMode(stream bool) ActorOpt {
	return func(opts *options) {
		opts.streamMode = stream
	}
}
