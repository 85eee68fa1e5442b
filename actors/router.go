package actors

import (
	"context"

	"cosmossdk.io/log"
	"github.com/pkg/errors"
	"github.com/super-flat/pipeline/message"
	"github.com/super-flat/pipeline/transport"
)

// router forwards messages along a Filter over connections it owns
type router struct {
	filter *Filter
	conns  map[string]*transport.PushConn
	logger log.Logger
}

func newRouter(filter *Filter, logger log.Logger) *router {
	if filter == nil {
		filter = NewFilter()
	}
	return &router{filter: filter, logger: logger}
}

// connect dials every target of the filter. On failure no connection is
// kept.
func (r *router) connect() error {
	conns := make(map[string]*transport.PushConn, len(r.filter.rules))
	for _, target := range r.filter.Targets() {
		conn, err := target.DialData()
		if err != nil {
			for _, opened := range conns {
				_ = opened.Close()
			}
			return errors.Wrapf(err, "connect to %s", target.Name())
		}
		conns[target.Name()] = conn
	}
	r.conns = conns
	return nil
}

// forward sends msg to its target. Messages no rule accepts are dropped.
func (r *router) forward(ctx context.Context, msg message.Message) error {
	target := r.filter.Route(msg)
	if target == nil {
		r.logger.Debug("no route, message dropped", "kind", msg.Kind())
		return nil
	}
	conn, ok := r.conns[target.Name()]
	if !ok {
		return errors.Errorf("not connected to %s", target.Name())
	}
	payload, err := message.Encode(msg)
	if err != nil {
		return err
	}
	return errors.Wrapf(conn.Push(ctx, payload), "forward to %s", target.Name())
}

func (r *router) close() {
	for _, conn := range r.conns {
		_ = conn.Close()
	}
	r.conns = nil
}
