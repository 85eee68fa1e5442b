package actors

import (
	"context"
	"sync"
	"time"

	"cosmossdk.io/log"
	"github.com/pkg/errors"
	"github.com/super-flat/pipeline/database"
	"github.com/super-flat/pipeline/message"
	"github.com/super-flat/pipeline/transport"
)

// Puller injects the records of a data source into the pipeline.
//
// On StartMessage it loads the source and connects to the targets of its
// Filter. Then a feed goroutine pulls records, tags them with the puller key
// and hands them to the actor loop, which forwards them along the Filter.
type Puller struct {
	name       string
	source     database.Source
	key        string
	timeout    time.Duration
	streamMode bool
	router     *router
	logger     log.Logger
	wg         sync.WaitGroup
	err        error
}

// NewPuller returns a puller actor reading source. key tags every record
// pulled and timeout bounds each read.
func NewPuller(name string, source database.Source, filter *Filter, key string, timeout time.Duration, net *transport.Context, opts ...ActorOpt) *ActorRef {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger.With("actor", name)
	puller := &Puller{
		name:       name,
		source:     source,
		key:        key,
		timeout:    timeout,
		streamMode: o.streamMode,
		router:     newRouter(filter, logger),
		logger:     logger,
	}
	return NewActorRef(name, puller, net, opts...)
}

// Init loads the source then connects to the filter targets
func (p *Puller) Init(ctx context.Context) error {
	if err := p.source.Load(ctx); err != nil {
		return errors.Wrap(err, "load data source")
	}
	return p.router.connect()
}

// Feed starts pulling records
func (p *Puller) Feed(ctx context.Context) <-chan message.Message {
	out := make(chan message.Message)
	p.wg.Add(1)
	go p.pull(ctx, out)
	return out
}

// Err returns the pull error that ended the feed, if any
func (p *Puller) Err() error {
	return p.err
}

// Receive forwards msg along the filter
func (p *Puller) Receive(ctx context.Context, msg message.Message) error {
	return p.router.forward(ctx, msg)
}

// Close waits for the feed to stop then releases the source and the
// target connections
func (p *Puller) Close() error {
	p.wg.Wait()
	p.router.close()
	return errors.Wrap(p.source.Close(), "close data source")
}

func (p *Puller) pull(ctx context.Context, out chan<- message.Message) {
	defer p.wg.Done()
	defer close(out)
	for {
		record, err := p.source.Pull(ctx, p.timeout)
		switch {
		case err == nil:
			record.Key = p.key
			record.Sender = p.name
			select {
			case out <- record:
			case <-ctx.Done():
				return
			}
		case ctx.Err() != nil:
			return
		case errors.Is(err, database.ErrExhausted):
			if !p.streamMode {
				p.logger.Info("data source exhausted")
				return
			}
		case errors.Is(err, database.ErrMalformedRecord):
			p.logger.Warn("malformed record skipped", "err", err)
		default:
			p.logger.Error("cannot pull from data source", "err", err)
			p.err = errors.Wrap(err, "pull from data source")
			return
		}
	}
}
