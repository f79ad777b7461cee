package infrastructure

import (
	"fmt"
	"net/netip"

	"github.com/lxc/incus/v6/shared/api"

	"github.com/ringzer0/chaldeploy/internal/platform/incus"
	"github.com/ringzer0/chaldeploy/internal/provisioning"
)

// AddForwards adds one port mapping per declared forward to the existing
// forward on the network's listen address, targeting the instance's live
// global address. Duplicates are left for the hypervisor to reject.
func (p *Provisioner) AddForwards(ctx *provisioning.Context, t *provisioning.Target) error {
	spec := t.Spec.Network
	if spec == nil || len(spec.Forwards) == 0 {
		return nil
	}

	state, err := t.Infra.GetInstanceState(ctx, t.Name())
	if err != nil {
		return fmt.Errorf("failed to read state of %s: %w", t.Name(), err)
	}
	target, ok := provisioning.GlobalAddresses(state, t.Device()).For(spec.ListenAddress)
	if !ok {
		return fmt.Errorf("instance %s: %w", t.Name(), provisioning.ErrNoAddress)
	}

	listen := spec.ListenAddress.String()
	forward, err := t.Infra.GetNetworkForward(ctx, spec.Name, listen)
	if err != nil {
		return fmt.Errorf("failed to get forward %s on %s: %w", listen, spec.Name, err)
	}
	if forward == nil {
		return fmt.Errorf("forward %s on network %s: %w", listen, spec.Name, provisioning.ErrNotFound)
	}

	for _, f := range spec.Forwards {
		port := api.NetworkForwardPort{
			Protocol:      string(f.Protocol),
			ListenPort:    f.ListenPorts,
			TargetAddress: target.String(),
			TargetPort:    f.TargetPorts,
		}
		if err := t.Infra.AddNetworkForwardPort(ctx, spec.Name, listen, port); err != nil {
			return fmt.Errorf("failed to forward %s/%s to %s: %w", listen, f.ListenPorts, t.Name(), err)
		}
		ctx.Observer.Event(provisioning.Event{
			Type:     provisioning.EventResourceCreated,
			Phase:    phase,
			Resource: t.Name(),
			Message:  fmt.Sprintf("forward %s %s:%s -> %s:%s", port.Protocol, listen, port.ListenPort, port.TargetAddress, port.TargetPort),
			Fields:   map[string]string{"kind": provisioning.KindForward, "network": spec.Name},
		})
	}
	return nil
}

// RemoveForwards removes every port mapping on the instance's network
// whose target is one of the instance's last known addresses, whatever
// forward it belongs to. It returns the number of mappings removed.
func (p *Provisioner) RemoveForwards(ctx *provisioning.Context, infra incus.InfrastructureManager, inst *api.Instance, device string) (int, error) {
	addrs, err := provisioning.DiscoverAddresses(ctx, infra, inst, device)
	if err != nil {
		return 0, err
	}
	if addrs.IsZero() {
		return 0, nil
	}
	network := provisioning.AttachedNetwork(inst, device)
	if network == "" {
		return 0, nil
	}

	forwards, err := infra.GetNetworkForwards(ctx, network)
	if err != nil {
		return 0, fmt.Errorf("failed to list forwards on %s: %w", network, err)
	}

	removed := 0
	for _, fwd := range forwards {
		for _, port := range fwd.Ports {
			target, err := netip.ParseAddr(port.TargetAddress)
			if err != nil || !addrs.Has(target) {
				continue
			}
			if err := infra.RemoveNetworkForwardPort(ctx, network, fwd.ListenAddress, port); err != nil {
				return removed, fmt.Errorf("failed to remove forward %s/%s: %w", fwd.ListenAddress, port.ListenPort, err)
			}
			removed++
			provisioning.LogResourceDeleted(ctx.Observer, phase, provisioning.KindForward,
				fmt.Sprintf("%s %s:%s", port.Protocol, fwd.ListenAddress, port.ListenPort))
		}
	}
	return removed, nil
}
