// Package database holds the stores a pipeline reads records from and
// writes records to.
//
// A Source is owned by exactly one Puller and a Sink by exactly one Pusher.
// Load is called once, when the owning actor initializes, and reports
// whether the store is reachable.
package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/super-flat/pipeline/message"
)

var (
	// ErrExhausted is returned by Pull when no record is available within
	// the timeout
	ErrExhausted = errors.New("data source exhausted")
	// ErrMalformedRecord is returned by Pull for a record that cannot be
	// decoded. The next Pull moves past it.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrDisconnected is returned once the peer of a source went away
	ErrDisconnected = errors.New("data source disconnected")
	// ErrNotLoaded is returned when a store is used before Load
	ErrNotLoaded = errors.New("store not loaded")
)

// Source is a store records are pulled from
type Source interface {
	// Load connects to the store
	Load(ctx context.Context) error
	// Pull waits up to timeout for the next record
	Pull(ctx context.Context, timeout time.Duration) (*message.RecordMessage, error)
	// Close releases the connection
	Close() error
}

// Sink is a store records are written to
type Sink interface {
	// Load connects to the store
	Load(ctx context.Context) error
	// Store writes one record
	Store(ctx context.Context, record *message.RecordMessage) error
	// Close releases the connection
	Close() error
}
