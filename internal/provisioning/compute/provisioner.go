package compute

import (
	"fmt"

	"github.com/ringzer0/chaldeploy/internal/config"
	"github.com/ringzer0/chaldeploy/internal/platform/incus"
	"github.com/ringzer0/chaldeploy/internal/provisioning"
	"github.com/ringzer0/chaldeploy/internal/provisioning/destroy"
	"github.com/ringzer0/chaldeploy/internal/util/labels"
)

const phase = "compute"

// Provisioner handles instance creation.
type Provisioner struct {
	destroyer *destroy.Provisioner
}

// NewProvisioner creates a new compute provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{destroyer: destroy.NewProvisioner()}
}

// Deploy creates the target's instance and starts it. An existing
// instance of the same name is an error unless force is set, in which case
// it is torn down first. On success t.Instance holds the fresh handle.
func (p *Provisioner) Deploy(ctx *provisioning.Context, t *provisioning.Target, force bool) error {
	existing, err := t.Infra.GetInstance(ctx, t.Name())
	if err != nil {
		return fmt.Errorf("failed to look up instance %s: %w", t.Name(), err)
	}
	if existing != nil {
		if !force {
			return fmt.Errorf("instance %s %w, use --force to redeploy", t.Name(), provisioning.ErrAlreadyExists)
		}
		ctx.Observer.Printf("[%s] Instance %s exists, recreating", phase, t.Name())
		if _, err := p.destroyer.Teardown(ctx, t.Infra, existing, t.Device()); err != nil {
			return fmt.Errorf("failed to tear down existing instance %s: %w", t.Name(), err)
		}
	}

	provisioning.LogResourceCreating(ctx.Observer, phase, provisioning.KindInstance, t.Name())
	stamp := labels.NewLabelBuilder(ctx.State.Deployment).WithRun(ctx.State.RunID)
	switch src := t.Spec.Source.(type) {
	case *config.LaunchSource:
		err = t.Infra.LaunchInstance(ctx, incus.LaunchOpts{
			Name:           t.Name(),
			ImageRemote:    src.Image.Remote,
			Image:          src.Image.Name,
			VirtualMachine: src.VirtualMachine,
			Config:         stamp.Apply(src.Config),
			Devices:        nicDevices(t),
		})
	case *config.CopySource:
		err = t.Infra.CopyInstance(ctx, incus.CopyOpts{
			Name:          t.Name(),
			SourceRemote:  src.Remote,
			SourceProject: src.Project,
			SourceName:    src.Name,
			Config:        stamp.Apply(src.Config),
			Devices:       nicDevices(t),
		})
	default:
		return fmt.Errorf("instance %s has no source: %w", t.Name(), provisioning.ErrInvalidConfig)
	}
	if err != nil {
		return fmt.Errorf("failed to create instance %s: %w", t.Name(), err)
	}

	if err := t.Infra.StartInstance(ctx, t.Name()); err != nil {
		return fmt.Errorf("failed to start instance %s: %w", t.Name(), err)
	}
	if err := t.Refresh(ctx); err != nil {
		return err
	}

	provisioning.LogResourceCreated(ctx.Observer, phase, provisioning.KindInstance, t.Name())
	ctx.State.Provisioned = append(ctx.State.Provisioned, t)
	return nil
}

// Fetch resolves an already deployed instance for apply-only runs.
func (p *Provisioner) Fetch(ctx *provisioning.Context, t *provisioning.Target) error {
	if err := t.Refresh(ctx); err != nil {
		return fmt.Errorf("apply requires a deployed instance: %w", err)
	}
	provisioning.LogResourceExists(ctx.Observer, phase, provisioning.KindInstance, t.Name())
	return nil
}

// nicDevices returns the NIC override attaching the instance to its
// network, or nil when it has none.
func nicDevices(t *provisioning.Target) map[string]map[string]string {
	name := ""
	switch {
	case t.Network != nil:
		name = t.Network.Name
	case t.Spec.Network != nil:
		name = t.Spec.Network.Name
	default:
		return nil
	}
	device := t.Device()
	return map[string]map[string]string{
		device: {
			"name":                        device,
			"type":                        "nic",
			provisioning.DeviceKeyNetwork: name,
		},
	}
}
