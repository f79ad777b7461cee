package destroy

import (
	"errors"
	"fmt"

	"github.com/lxc/incus/v6/shared/api"

	"github.com/ringzer0/chaldeploy/internal/platform/incus"
	"github.com/ringzer0/chaldeploy/internal/provisioning"
	"github.com/ringzer0/chaldeploy/internal/provisioning/infrastructure"
)

const phase = "teardown"

// Result summarizes one teardown.
type Result struct {
	Instance        string
	ForwardsRemoved int
	ACLsDeleted     []string
}

// Provisioner handles instance destruction.
type Provisioner struct {
	infra *infrastructure.Provisioner
}

// NewProvisioner creates a new destroy provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{infra: infrastructure.NewProvisioner()}
}

// Teardown destroys inst and cleans up its forwards and exclusive ACLs.
// device is the NIC whose address the forwards target.
func (p *Provisioner) Teardown(ctx *provisioning.Context, infra incus.InfrastructureManager, inst *api.Instance, device string) (*Result, error) {
	res := &Result{Instance: inst.Name}
	obs := ctx.Observer.WithFields(map[string]string{"instance": inst.Name, "scope": infra.Scope().String()})
	provisioning.LogResourceDeleting(obs, phase, provisioning.KindInstance, inst.Name)

	acls, err := p.infra.ExclusiveACLs(ctx, infra, inst)
	if err != nil {
		return res, err
	}

	res.ForwardsRemoved, err = p.infra.RemoveForwards(ctx, infra, inst, device)
	if err != nil {
		return res, err
	}

	if err := infra.PauseInstance(ctx, inst.Name); err != nil {
		if !errors.Is(err, incus.ErrNotRunning) {
			return res, fmt.Errorf("failed to pause %s: %w", inst.Name, err)
		}
		provisioning.LogResourceSkipped(obs, phase, provisioning.KindInstance, inst.Name, err)
	}

	if err := infra.StopInstance(ctx, inst.Name); err != nil {
		if !errors.Is(err, incus.ErrAlreadyStopped) && !errors.Is(err, incus.ErrNotRunning) {
			return res, fmt.Errorf("failed to stop %s: %w", inst.Name, err)
		}
		provisioning.LogResourceSkipped(obs, phase, provisioning.KindInstance, inst.Name, err)
	}

	if err := infra.DeleteInstance(ctx, inst.Name); err != nil {
		return res, fmt.Errorf("failed to delete %s: %w", inst.Name, err)
	}
	provisioning.LogResourceDeleted(obs, phase, provisioning.KindInstance, inst.Name)

	res.ACLsDeleted, err = p.infra.DeleteOrphanedACLs(ctx, infra, acls)
	if err != nil {
		return res, err
	}

	if ctx.State != nil {
		ctx.State.Destroyed = append(ctx.State.Destroyed, infra.Scope().String()+"/"+inst.Name)
	}
	return res, nil
}

// TeardownTarget destroys a target's instance after re-reading it, so
// address discovery sees its current status. A target whose instance is
// already gone returns a nil Result.
func (p *Provisioner) TeardownTarget(ctx *provisioning.Context, t *provisioning.Target) (*Result, error) {
	inst, err := t.Infra.GetInstance(ctx, t.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to get instance %s: %w", t.Name(), err)
	}
	if inst == nil {
		t.Instance = nil
		return nil, nil
	}
	res, err := p.Teardown(ctx, t.Infra, inst, t.Device())
	if err == nil {
		t.Instance = nil
	}
	return res, err
}
