package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Resubscribe delays; a subscription that stayed up longer than the cap resets the backoff.
var (
	resubscribeMin = time.Second
	resubscribeMax = 30 * time.Second
)

// Follow delivers bridge events to handler until ctx is done. A failed or dropped
// subscription is retried with exponential backoff, so a Redis outage at startup
// does not leave the caller deaf for the life of the process.
func Follow(ctx context.Context, bridge Bridge, handler func(Event), logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	delay := resubscribeMin
	for {
		started := time.Now()
		err := bridge.Subscribe(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(started) > resubscribeMax {
			delay = resubscribeMin
		}
		logger.Warn("event subscription lost, retrying", zap.Error(err), zap.Duration("backoff", delay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > resubscribeMax {
			delay = resubscribeMax
		}
	}
}
