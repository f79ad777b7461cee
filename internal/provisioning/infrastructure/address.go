package infrastructure

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/lxc/incus/v6/shared/api"

	"github.com/ringzer0/chaldeploy/internal/config"
	"github.com/ringzer0/chaldeploy/internal/provisioning"
)

const keyDHCPv6Stateful = "ipv6.dhcp.stateful"

// PinAddresses persists the instance's addresses on its NIC device so
// they survive restarts. Each family uses the declared address when one
// is given and the current global address otherwise. IPv6 is only pinned
// on networks with stateful DHCPv6.
func (p *Provisioner) PinAddresses(ctx *provisioning.Context, t *provisioning.Target) error {
	spec := t.Spec.Network
	if spec == nil {
		return nil
	}
	device := t.Device()

	state, err := t.Infra.GetInstanceState(ctx, t.Name())
	if err != nil {
		return fmt.Errorf("failed to read state of %s: %w", t.Name(), err)
	}
	live := provisioning.GlobalAddresses(state, device)

	network, err := p.attachedNetwork(ctx, t)
	if err != nil {
		return err
	}

	devices, nic := provisioning.DevicesWithNIC(t.Instance, device)
	if addr := pick(spec.IPv4, live.IPv4); addr.IsValid() {
		nic[provisioning.DeviceKeyIPv4] = addr.String()
	}
	if network != nil && isTrue(network.Config[keyDHCPv6Stateful]) {
		if addr := pick(spec.IPv6, live.IPv6); addr.IsValid() {
			nic[provisioning.DeviceKeyIPv6] = addr.String()
		}
	}

	if err := t.Infra.UpdateInstanceDevices(ctx, t.Name(), devices); err != nil {
		return fmt.Errorf("failed to pin addresses of %s: %w", t.Name(), err)
	}
	pinned := provisioning.Addresses{}
	pinned.IPv4, _ = netip.ParseAddr(nic[provisioning.DeviceKeyIPv4])
	pinned.IPv6, _ = netip.ParseAddr(nic[provisioning.DeviceKeyIPv6])
	provisioning.LogResourceUpdated(ctx.Observer, phase, provisioning.KindAddress, t.Name(), "pinned "+pinned.String())
	return t.Refresh(ctx)
}

// attachedNetwork returns the reconciled network, or the one the NIC is
// attached to when the target declared none.
func (p *Provisioner) attachedNetwork(ctx *provisioning.Context, t *provisioning.Target) (*api.Network, error) {
	if t.Network != nil {
		return t.Network, nil
	}
	name := provisioning.AttachedNetwork(t.Instance, t.Device())
	if name == "" {
		return nil, nil
	}
	network, err := t.Infra.GetNetwork(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get network %s: %w", name, err)
	}
	return network, nil
}

func pick(override config.AddressOverride, live netip.Addr) netip.Addr {
	if override.Explicit() {
		return override.Address
	}
	return live
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
