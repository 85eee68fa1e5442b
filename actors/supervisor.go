package actors

import (
	"context"
	"time"

	"cosmossdk.io/log"
	"github.com/cenkalti/backoff/v4"
)

// Default values for the restart policy
const (
	actorStartMaxRetries = 10
	actorStartMaxElapsed = 2 * time.Minute
)

// ActorFactory builds a fresh actor for each start attempt. attempt counts
// from 1.
type ActorFactory func(attempt int) *ActorRef

// DefaultRestartPolicy is an exponential backoff capped at maxRetries
// attempts. A negative maxRetries uses the default cap.
func DefaultRestartPolicy(maxRetries int) backoff.BackOff {
	if maxRetries < 0 {
		maxRetries = actorStartMaxRetries
	}
	expoBackoff := backoff.NewExponentialBackOff()
	expoBackoff.MaxElapsedTime = actorStartMaxElapsed
	return backoff.WithMaxRetries(expoBackoff, uint64(maxRetries))
}

// Supervise spawns actors from factory until one initializes, waiting
// between attempts as policy says. An actor that failed to start cannot be
// started again, hence the factory.
func Supervise(ctx context.Context, factory ActorFactory, policy backoff.BackOff, timeout time.Duration, logger log.Logger) (*ActorRef, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	var (
		attempt int
		current *ActorRef
	)
	operation := func() error {
		attempt++
		current = factory(attempt)
		err := Spawn(ctx, current, timeout)
		if err != nil {
			// release the actor name before the next attempt
			current.HardKill()
			current.Join(timeout)
			current.Terminate()
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("actor failed to start, retrying", "attempt", attempt, "wait", wait, "err", err)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		logger.Error("actor failed to start, giving up", "attempts", attempt, "err", err)
		return nil, err
	}
	return current, nil
}
