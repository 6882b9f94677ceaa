package consumer

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	retryBaseDelay = 200 * time.Millisecond
	retryMaxDelay  = 5 * time.Second
)

// retryHandle invokes fn until it returns nil. A non-nil return means a
// store was unreachable; the consumer must not advance past an
// unprocessed message, so it blocks here with capped backoff until the
// store recovers or ctx is cancelled. The dedup gate absorbs any replay
// of side effects that already happened.
func retryHandle(ctx context.Context, log *zap.Logger, stage string, fn func() error) error {
	delay := retryBaseDelay
	for {
		err := fn()
		if err == nil {
			return nil
		}
		log.Error(stage+" failed, retrying in place",
			zap.Duration("backoff", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
}
