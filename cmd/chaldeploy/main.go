// Package main is the entry point for the chaldeploy CLI.
//
// chaldeploy provisions the Incus instances a CTF challenge needs, runs the
// challenge playbook against them with ansible-runner, and then applies
// static addresses, network ACLs and port forwards. A failed playbook rolls
// the instances back.
//
// Commands: deploy, purge, example, version.
//
// For detailed usage information, run:
//
//	chaldeploy --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ringzer0/chaldeploy/cmd/chaldeploy/commands"
	"github.com/ringzer0/chaldeploy/cmd/chaldeploy/handlers"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Root().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(handlers.ExitCode(ctx, err))
}
