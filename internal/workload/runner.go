package workload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/ringzer0/chaldeploy/internal/provisioning"
)

// DefaultBinary is the workload runner executable looked up in PATH.
const DefaultBinary = "ansible-runner"

// Runner executes the workload playbook of a deployment directory.
type Runner interface {
	Run(ctx context.Context, dir, playbook string) error
}

// AnsibleRunner runs `ansible-runner run <dir> -p <playbook>`. The runner
// reads the inventory from the directory itself.
type AnsibleRunner struct {
	// Binary overrides DefaultBinary.
	Binary string
	// Stdout and Stderr receive the runner's output. They default to the
	// process streams so the playbook log reaches the terminal.
	Stdout io.Writer
	Stderr io.Writer
}

// NewAnsibleRunner creates a runner using binary, or DefaultBinary when
// binary is empty.
func NewAnsibleRunner(binary string) *AnsibleRunner {
	return &AnsibleRunner{Binary: binary}
}

// Run blocks until the playbook finishes. A non-zero exit is reported as
// provisioning.ErrWorkloadFailed.
func (r *AnsibleRunner) Run(ctx context.Context, dir, playbook string) error {
	bin := r.Binary
	if bin == "" {
		bin = DefaultBinary
	}

	// #nosec G204 - binary comes from the CLI flag, dir and playbook from the resolved layout
	cmd := exec.CommandContext(ctx, bin, "run", dir, "-p", playbook)
	cmd.Stdout = writerOr(r.Stdout, os.Stdout)
	cmd.Stderr = writerOr(r.Stderr, os.Stderr)

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s interrupted: %w", bin, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%s exited with status %d: %w", bin, exitErr.ExitCode(), provisioning.ErrWorkloadFailed)
	}
	return fmt.Errorf("failed to start %s: %w", bin, err)
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
