package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithExponentialBackoff_Success(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := WithExponentialBackoff(context.Background(), func(context.Context) error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithExponentialBackoff_SuccessAfterRetries(t *testing.T) {
	t.Parallel()
	attempts := 0
	var retried []int
	err := WithExponentialBackoff(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}, WithInitialDelay(time.Millisecond), WithOnRetry(func(attempt int, _ error) {
		retried = append(retried, attempt)
	}))

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestWithExponentialBackoff_MaxRetries(t *testing.T) {
	t.Parallel()
	attempts := 0
	persistent := errors.New("persistent error")
	err := WithExponentialBackoff(context.Background(), func(context.Context) error {
		attempts++
		return persistent
	}, WithMaxRetries(3), WithInitialDelay(time.Millisecond))

	require.Error(t, err)
	assert.ErrorIs(t, err, persistent)
	// total attempts = 1 + retries
	assert.Equal(t, 4, attempts)
}

func TestWithExponentialBackoff_ContextCancellation(t *testing.T) {
	t.Parallel()
	attempts := 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithExponentialBackoff(ctx, func(context.Context) error {
		attempts++
		return errors.New("error")
	}, WithInitialDelay(10*time.Millisecond))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestWithExponentialBackoff_FatalError(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := WithExponentialBackoff(context.Background(), func(context.Context) error {
		attempts++
		return Fatal(errors.New("fatal error"))
	}, WithInitialDelay(time.Millisecond))

	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, 1, attempts, "fatal errors are not retried")
}

func TestWithMaxDelay(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	WithMaxDelay(20 * time.Millisecond)(cfg)
	WithInitialDelay(5 * time.Millisecond)(cfg)
	WithMaxRetries(7)(cfg)

	assert.Equal(t, 20*time.Millisecond, cfg.MaxDelay)
	assert.Equal(t, 5*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 7, cfg.MaxRetries)
}

func TestFatal(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Fatal(nil))

	original := errors.New("test error")
	err := Fatal(original)
	assert.True(t, IsFatal(err))
	assert.Equal(t, original.Error(), err.Error())
	assert.Same(t, original, errors.Unwrap(err))
}

func TestIsFatal(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("sentinel error")

	assert.False(t, IsFatal(errors.New("regular error")))
	assert.True(t, IsFatal(errors.Join(Fatal(sentinel), errors.New("additional context"))))

	wrapped := fmt.Errorf("context: %w", Fatal(sentinel))
	assert.True(t, IsFatal(wrapped))
	assert.ErrorIs(t, wrapped, sentinel)
}
