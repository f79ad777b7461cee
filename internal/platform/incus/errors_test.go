package incus

import (
	"errors"
	"net/http"
	"testing"

	"github.com/lxc/incus/v6/shared/api"
	"github.com/stretchr/testify/assert"
)

func TestClassifyStateError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"already stopped", api.StatusErrorf(http.StatusBadRequest, "The instance is already stopped"), ErrAlreadyStopped},
		{"not running", errors.New("Instance is not running"), ErrNotRunning},
		{"isn't running", api.StatusErrorf(http.StatusBadRequest, "The instance isn't running"), ErrNotRunning},
		{"missing instance", api.StatusErrorf(http.StatusNotFound, "Instance not found"), ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := classifyStateError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err, "the original error stays in the chain")
		})
	}

	t.Run("other errors pass through", func(t *testing.T) {
		t.Parallel()
		err := errors.New("storage pool is full")
		got := classifyStateError(err)
		assert.Same(t, err, got)
		assert.NotErrorIs(t, got, ErrNotRunning)
		assert.NotErrorIs(t, got, ErrAlreadyStopped)
	})

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, classifyStateError(nil))
	})
}

func TestClassifyExecError(t *testing.T) {
	t.Parallel()
	retryable := []error{
		errors.New("Instance is not running"),
		errors.New("Instance is frozen"),
		errors.New("VM agent isn't currently running"),
		errors.New("Failed to connect to incus-agent"),
		api.StatusErrorf(http.StatusNotFound, "Instance not found"),
	}
	for _, err := range retryable {
		assert.True(t, IsGuestNotReady(classifyExecError(err)), err.Error())
	}

	fatal := errors.New("permission denied")
	assert.False(t, IsGuestNotReady(classifyExecError(fatal)))
	assert.ErrorIs(t, classifyExecError(errors.New("Instance is not running")), ErrNotRunning)
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()
	assert.True(t, IsNotFound(api.StatusErrorf(http.StatusNotFound, "nope")))
	assert.True(t, IsNotFound(ErrNotFound))
	assert.False(t, IsNotFound(api.StatusErrorf(http.StatusForbidden, "nope")))
	assert.False(t, IsNotFound(nil))
}
