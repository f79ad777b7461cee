package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is returned by Poll when its timeout elapses.
	ErrTimeout = errors.New("timed out")
	// ErrInvalidInterval is returned by Poll for a non-positive interval.
	ErrInvalidInterval = errors.New("poll interval must be positive")
)

// Condition reports whether a polled state has been reached. A non-fatal
// error counts as "not yet" and is kept as the last observed error.
type Condition func(ctx context.Context) (done bool, err error)

// Poll evaluates cond immediately and then every interval until it is
// done, it returns a Fatal error, or ctx ends. A zero timeout polls until
// ctx is cancelled.
func Poll(ctx context.Context, interval, timeout time.Duration, cond Condition) error {
	if interval <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidInterval, interval)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		done, err := cond(ctx)
		if err != nil {
			if IsFatal(err) {
				return err
			}
			lastErr = err
		} else if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return pollError(ctx.Err(), timeout, lastErr)
		case <-ticker.C:
		}
	}
}

func pollError(ctxErr error, timeout time.Duration, lastErr error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) && timeout > 0 {
		ctxErr = fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	if lastErr != nil {
		return fmt.Errorf("%w (last error: %v)", ctxErr, lastErr)
	}
	return ctxErr
}
