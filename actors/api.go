package actors

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/super-flat/pipeline/message"
)

// ErrStartFailed is returned by Spawn when the actor replied ErrorMessage
var ErrStartFailed = errors.New("actor failed to start")

// Spawn is a utility function that starts an actor, connects both of its
// channels and sends it a StartMessage, waiting up to timeout for the reply
func Spawn(ctx context.Context, ref *ActorRef, timeout time.Duration) error {
	// get the observability span
	spanCtx, span := getSpanContext(ctx, "Actor.Spawn", ref.Name())
	defer span.End()
	// bind the endpoints and run the actor
	if err := ref.Start(ctx); err != nil {
		return err
	}
	// connect both channels
	if err := ref.ConnectControl(); err != nil {
		ref.HardKill()
		return err
	}
	if err := ref.ConnectData(); err != nil {
		ref.HardKill()
		return err
	}
	// ask the actor to initialize and wait for its answer
	if err := ref.SendControl(spanCtx, &message.StartMessage{}); err != nil {
		ref.HardKill()
		return err
	}
	reply, err := ref.ReceiveControl(timeout)
	if err != nil {
		ref.HardKill()
		return err
	}
	switch m := reply.(type) {
	case *message.OKMessage:
		return nil
	case *message.ErrorMessage:
		// the actor stops on its own after a failed init
		ref.Join(timeout)
		return errors.Wrapf(ErrStartFailed, "%s: %s", ref.Name(), m.ErrorMessage)
	default:
		ref.HardKill()
		return errors.Errorf("unexpected reply %s from %s", reply.Kind(), ref.Name())
	}
}

// Stop sends a PoisonPillMessage and waits up to timeout for the actor to
// stop, killing it if it does not
func Stop(ctx context.Context, ref *ActorRef, timeout time.Duration) {
	// an actor we cannot reach is killed
	if err := ref.SendControl(ctx, &message.PoisonPillMessage{}); err != nil {
		ref.HardKill()
	}
	// wait for the actor to stop
	if !ref.Join(timeout) {
		ref.HardKill()
	}
	// release the client connections
	ref.Terminate()
}
