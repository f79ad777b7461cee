// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ringzer0/chaldeploy/cmd/chaldeploy/handlers"
	"github.com/ringzer0/chaldeploy/internal/logging"
)

// logFlags are the persistent logging flags of the root command.
type logFlags struct {
	level string
	json  bool
}

// options resolves the flags, with verbose forcing debug level.
func (f *logFlags) options(verbose bool) (handlers.LogOptions, error) {
	level, err := logging.ParseLevel(f.level)
	if err != nil {
		return handlers.LogOptions{}, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	return handlers.LogOptions{Level: level, JSON: f.json}, nil
}

// Root returns the root command for the chaldeploy CLI.
//
// The root command serves as the entry point and parent for all subcommands.
// It provides basic CLI metadata and the shared logging flags.
func Root() *cobra.Command {
	logs := &logFlags{}

	cmd := &cobra.Command{
		Use:           "chaldeploy",
		Short:         "Deploy CTF challenges onto Incus",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&logs.level, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&logs.json, "log-json", false, "Emit logs as JSON")

	cmd.AddCommand(Deploy(logs))
	cmd.AddCommand(Purge(logs))
	cmd.AddCommand(Example())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}

func requireOneArg(what string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("expected exactly one %s, got %d arguments", what, len(args))
		}
		return nil
	}
}
