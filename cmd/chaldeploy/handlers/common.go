package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/ringzer0/chaldeploy/internal/config"
	"github.com/ringzer0/chaldeploy/internal/logging"
	"github.com/ringzer0/chaldeploy/internal/platform/incus"
	"github.com/ringzer0/chaldeploy/internal/provisioning"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// ErrAborted is returned when the user declines a confirmation prompt.
var ErrAborted = errors.New("aborted by user")

// Shared factory variables - can be replaced in tests.
var (
	// newConnector resolves remotes from the incus CLI config.
	newConnector = func(path string, timeouts *config.Timeouts) (incus.Connector, error) {
		return incus.NewConnector(path, timeouts)
	}

	// loadTimeouts reads the timing knobs from the environment.
	loadTimeouts = config.LoadTimeouts

	// logOutput and summaryOutput are where logs and summaries go.
	logOutput     io.Writer = os.Stderr
	summaryOutput io.Writer = os.Stdout

	// stdoutIsTerminal and stdinIsTerminal pick styled output and prompts.
	stdoutIsTerminal = func() bool { return isTerminal(os.Stdout) }
	stdinIsTerminal  = func() bool { return isTerminal(os.Stdin) }
)

// LogOptions selects the log format shared by all handlers.
type LogOptions struct {
	Level slog.Level
	JSON  bool
}

func newObserver(opts LogOptions) provisioning.Observer {
	mode := logging.ModeCLI
	if opts.JSON {
		mode = logging.ModeJSON
	}
	logger := logging.New(logOutput, logging.Options{Mode: mode, Level: opts.Level})
	return provisioning.NewLogrObserver(logging.NewLogr(logger))
}

// ExitCode maps the error a command returned to the process exit status.
// Interruptions exit 130 whether they surfaced as an error or only as a
// cancelled root context.
func ExitCode(ctx context.Context, err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, context.Canceled) || (ctx != nil && ctx.Err() != nil) {
		return ExitInterrupted
	}
	return ExitFailure
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
