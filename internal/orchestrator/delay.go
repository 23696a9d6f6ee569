package orchestrator

import (
	"context"
	"time"
)

// Delay is the backoff between jobs of a batch.
type Delay interface {
	// Wait blocks for the delay or until ctx is done.
	Wait(ctx context.Context) error
}

// FixedDelay waits a constant duration. Zero returns immediately.
type FixedDelay time.Duration

// Wait implements Delay.
func (d FixedDelay) Wait(ctx context.Context) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(d))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
