package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/ringzer0/chaldeploy/internal/orchestration"
	"github.com/ringzer0/chaldeploy/internal/platform/incus"
)

// PurgeOptions holds the purge command's flags.
type PurgeOptions struct {
	Instance    string
	Remote      string
	Project     string
	IncusConfig string
	// Yes skips the confirmation prompt.
	Yes bool
	Log LogOptions
}

// confirmPurge asks before destroying; replaced in tests.
var confirmPurge = func(ctx context.Context, scope incus.Scope, name string) (bool, error) {
	confirmed := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Destroy instance %s in %s?", name, scope)).
				Description("Its port forwards and the ACLs nothing else uses are removed too.").
				Affirmative("Destroy").
				Negative("Cancel").
				Value(&confirmed),
		),
	)
	err := form.RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return confirmed, err
}

// Purge handles the purge command.
//
// It destroys one instance together with the forwards targeting it and
// the ACLs only it used. Without --yes an interactive confirmation is
// required.
func Purge(ctx context.Context, opts PurgeOptions) error {
	scope := incus.Scope{Remote: opts.Remote, Project: opts.Project}

	if !opts.Yes {
		if !stdinIsTerminal() {
			return fmt.Errorf("refusing to purge %s without --yes on a non-interactive terminal", opts.Instance)
		}
		ok, err := confirmPurge(ctx, scope, opts.Instance)
		if err != nil {
			return fmt.Errorf("confirmation failed: %w", err)
		}
		if !ok {
			return ErrAborted
		}
	}

	timeouts := loadTimeouts()
	connector, err := newConnector(opts.IncusConfig, timeouts)
	if err != nil {
		return err
	}

	// Purge never runs a workload.
	orch := orchestration.New(connector, nil,
		orchestration.WithObserver(newObserver(opts.Log)),
		orchestration.WithTimeouts(timeouts),
	)
	res, err := orch.Purge(ctx, scope, opts.Instance)
	if err != nil {
		return err
	}

	fmt.Fprintf(summaryOutput, "Purged %s from %s: %d forwards removed, %d ACLs deleted\n",
		res.Instance, scope, res.ForwardsRemoved, len(res.ACLsDeleted))
	return nil
}
