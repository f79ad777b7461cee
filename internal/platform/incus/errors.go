package incus

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/lxc/incus/v6/shared/api"
)

// Sentinel errors returned by RealClient and MockClient.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyStopped  = errors.New("instance is already stopped")
	ErrNotRunning      = errors.New("instance is not running")
	ErrGuestNotReady   = errors.New("guest is not ready")
	ErrRemoteNotFound  = errors.New("remote not found")
	ErrProjectNotFound = errors.New("project not found")
)

// classifyStateError maps instance state change failures onto sentinels.
func classifyStateError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "already stopped"):
		return fmt.Errorf("%w: %w", ErrAlreadyStopped, err)
	case isNotRunningMessage(msg):
		return fmt.Errorf("%w: %w", ErrNotRunning, err)
	case isHTTPStatus(err, http.StatusNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

// classifyExecError maps exec failures caused by a guest that has not
// finished booting onto ErrGuestNotReady.
func classifyExecError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case isNotRunningMessage(msg):
		return fmt.Errorf("%w: %w: %w", ErrGuestNotReady, ErrNotRunning, err)
	case strings.Contains(msg, "frozen"),
		strings.Contains(msg, "paused"),
		strings.Contains(msg, "agent"),
		strings.Contains(msg, "failed to connect"),
		strings.Contains(msg, "exec failed"):
		return fmt.Errorf("%w: %w", ErrGuestNotReady, err)
	case isHTTPStatus(err, http.StatusNotFound):
		return fmt.Errorf("%w: %w: %w", ErrGuestNotReady, ErrNotFound, err)
	}
	return err
}

func isNotRunningMessage(msg string) bool {
	return strings.Contains(msg, "not running") || strings.Contains(msg, "isn't running")
}

// isHTTPStatus checks if the error is an Incus API error with one of the given status codes.
func isHTTPStatus(err error, codes ...int) bool {
	if err == nil {
		return false
	}
	return api.StatusErrorCheck(err, codes...)
}

// IsNotFound checks if an error indicates a resource was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || isHTTPStatus(err, http.StatusNotFound)
}

// IsGuestNotReady checks if an exec failure should be retried.
func IsGuestNotReady(err error) bool {
	return errors.Is(err, ErrGuestNotReady)
}
