package koubs

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var errNotReady = errors.New("condition not met yet")

// retryPolicy is a bounded retry schedule shared by the login loop and
// element readiness polling.
type retryPolicy struct {
	maxAttempts uint64
	interval    time.Duration
}

func (p retryPolicy) run(ctx context.Context, op func(ctx context.Context) error) error {
	schedule := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.interval), p.maxAttempts-1),
		ctx,
	)
	return backoff.Retry(func() error { return op(ctx) }, schedule)
}

// waitUntil polls cond every interval until it holds or limit elapses.
func waitUntil(ctx context.Context, limit, interval time.Duration, cond func(ctx context.Context) bool) error {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	schedule := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	return backoff.Retry(func() error {
		if cond(ctx) {
			return nil
		}
		return errNotReady
	}, schedule)
}

// sleep is a context-aware stabilization delay for asynchronous page
// updates after clicks and selections.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
