package provisioning

import (
	"context"
	"fmt"
	"maps"
	"net/netip"

	"github.com/lxc/incus/v6/shared/api"

	"github.com/ringzer0/chaldeploy/internal/platform/incus"
)

// Device config keys used for address pinning and ACL attachment.
const (
	DeviceKeyIPv4    = "ipv4.address"
	DeviceKeyIPv6    = "ipv6.address"
	DeviceKeyACLs    = "security.acls"
	DeviceKeyNetwork = "network"
)

// Addresses holds at most one address per family for a NIC.
type Addresses struct {
	IPv4 netip.Addr
	IPv6 netip.Addr
}

// IsZero reports whether neither family has an address.
func (a Addresses) IsZero() bool {
	return !a.IPv4.IsValid() && !a.IPv6.IsValid()
}

// Has reports whether addr is one of the held addresses.
func (a Addresses) Has(addr netip.Addr) bool {
	addr = addr.Unmap()
	return (a.IPv4.IsValid() && a.IPv4 == addr) || (a.IPv6.IsValid() && a.IPv6 == addr)
}

// For returns the address of the same family as listen, falling back to
// the other family.
func (a Addresses) For(listen netip.Addr) (netip.Addr, bool) {
	first, second := a.IPv4, a.IPv6
	if listen.Is6() && !listen.Is4In6() {
		first, second = second, first
	}
	if first.IsValid() {
		return first, true
	}
	return second, second.IsValid()
}

func (a Addresses) String() string {
	switch {
	case a.IPv4.IsValid() && a.IPv6.IsValid():
		return a.IPv4.String() + "," + a.IPv6.String()
	case a.IPv4.IsValid():
		return a.IPv4.String()
	case a.IPv6.IsValid():
		return a.IPv6.String()
	}
	return "none"
}

// GlobalAddressList returns every global-scope address of device in live
// state, in the order the hypervisor reports them.
func GlobalAddressList(state *api.InstanceState, device string) []netip.Addr {
	if state == nil {
		return nil
	}
	nic, ok := state.Network[device]
	if !ok {
		return nil
	}
	var out []netip.Addr
	for _, a := range nic.Addresses {
		if a.Scope != "global" {
			continue
		}
		addr, err := netip.ParseAddr(a.Address)
		if err != nil {
			continue
		}
		out = append(out, addr.Unmap())
	}
	return out
}

// GlobalAddresses returns the first global-scope address per family.
func GlobalAddresses(state *api.InstanceState, device string) Addresses {
	var out Addresses
	for _, addr := range GlobalAddressList(state, device) {
		switch {
		case addr.Is4() && !out.IPv4.IsValid():
			out.IPv4 = addr
		case addr.Is6() && !out.IPv6.IsValid():
			out.IPv6 = addr
		}
	}
	return out
}

// StaticAddresses returns the addresses pinned on the instance's local
// device override.
func StaticAddresses(inst *api.Instance, device string) Addresses {
	var out Addresses
	if inst == nil {
		return out
	}
	dev := inst.Devices[device]
	if v, err := netip.ParseAddr(dev[DeviceKeyIPv4]); err == nil && v.Is4() {
		out.IPv4 = v
	}
	if v, err := netip.ParseAddr(dev[DeviceKeyIPv6]); err == nil && v.Is6() {
		out.IPv6 = v
	}
	return out
}

// DiscoverAddresses returns the instance's last known addresses: from live
// state when it is running, else from its pinned device overrides.
func DiscoverAddresses(ctx context.Context, infra incus.InstanceManager, inst *api.Instance, device string) (Addresses, error) {
	if !incus.IsRunning(inst) {
		return StaticAddresses(inst, device), nil
	}
	state, err := infra.GetInstanceState(ctx, inst.Name)
	if err != nil {
		return Addresses{}, fmt.Errorf("failed to read state of %s: %w", inst.Name, err)
	}
	return GlobalAddresses(state, device), nil
}

// DevicesWithNIC returns a copy of the instance's local devices in which
// device exists, seeded from the expanded device when there is no local
// override yet. The returned NIC map is the one inside the copy.
func DevicesWithNIC(inst *api.Instance, device string) (map[string]map[string]string, map[string]string) {
	devices := make(map[string]map[string]string, len(inst.Devices)+1)
	for name, dev := range inst.Devices {
		devices[name] = maps.Clone(dev)
	}
	nic, ok := devices[device]
	if !ok || nic == nil {
		nic = maps.Clone(inst.ExpandedDevices[device])
		if nic == nil {
			nic = map[string]string{}
		}
		devices[device] = nic
	}
	return devices, nic
}

// AttachedNetwork returns the network the device is attached to, looking
// at the expanded configuration first.
func AttachedNetwork(inst *api.Instance, device string) string {
	if inst == nil {
		return ""
	}
	if n := inst.ExpandedDevices[device][DeviceKeyNetwork]; n != "" {
		return n
	}
	return inst.Devices[device][DeviceKeyNetwork]
}
