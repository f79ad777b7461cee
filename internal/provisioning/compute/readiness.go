package compute

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/lxc/incus/v6/shared/api"

	"github.com/ringzer0/chaldeploy/internal/config"
	"github.com/ringzer0/chaldeploy/internal/platform/incus"
	"github.com/ringzer0/chaldeploy/internal/provisioning"
	"github.com/ringzer0/chaldeploy/internal/util/retry"
)

// bootCommand is run in the guest to detect a finished boot.
var bootCommand = []string{"whoami"}

// Readiness waits for instances to become reachable.
type Readiness struct{}

// NewReadiness creates a readiness waiter.
func NewReadiness() *Readiness {
	return &Readiness{}
}

// AddressFamilies is the set of address families a wait requires, each
// with the subnet the address must fall in.
type AddressFamilies struct {
	IPv4 netip.Prefix
	IPv6 netip.Prefix
}

// None reports whether no family is required.
func (f AddressFamilies) None() bool {
	return !f.IPv4.IsValid() && !f.IPv6.IsValid()
}

// Satisfied reports whether addrs holds an address of every required
// family inside that family's subnet.
func (f AddressFamilies) Satisfied(addrs []netip.Addr) bool {
	have4, have6 := !f.IPv4.IsValid(), !f.IPv6.IsValid()
	for _, a := range addrs {
		if a.Is4() && f.IPv4.IsValid() && f.IPv4.Contains(a) {
			have4 = true
		}
		if a.Is6() && f.IPv6.IsValid() && f.IPv6.Contains(a) {
			have6 = true
		}
	}
	return have4 && have6
}

// EnabledFamilies returns the families the network declares a subnet for,
// minus the ones the instance suppresses.
func EnabledFamilies(network *api.Network, spec *config.Network) AddressFamilies {
	var f AddressFamilies
	if network == nil {
		return f
	}
	suppress4 := spec != nil && spec.IPv4.Suppressed
	suppress6 := spec != nil && spec.IPv6.Suppressed
	if p, ok := config.SubnetOf(network.Config["ipv4.address"]); ok && p.Addr().Is4() && !suppress4 {
		f.IPv4 = p
	}
	if p, ok := config.SubnetOf(network.Config["ipv6.address"]); ok && p.Addr().Is6() && !suppress6 {
		f.IPv6 = p
	}
	return f
}

// WaitForAddresses blocks until the instance has a global address inside
// the subnet of every enabled family of its network. The instance must be
// running when the wait starts.
func (r *Readiness) WaitForAddresses(ctx *provisioning.Context, t *provisioning.Target) error {
	if err := requireRunning(ctx, t); err != nil {
		return err
	}

	network := t.Network
	if network == nil {
		name := provisioning.AttachedNetwork(t.Instance, t.Device())
		if name != "" {
			var err error
			if network, err = t.Infra.GetNetwork(ctx, name); err != nil {
				return fmt.Errorf("failed to get network %s: %w", name, err)
			}
		}
	}
	families := EnabledFamilies(network, t.Spec.Network)
	if families.None() {
		ctx.Observer.Printf("[%s] %s: no address family to wait for", phase, t.Name())
		return nil
	}

	device := t.Device()
	var last []netip.Addr
	err := retry.Poll(ctx, ctx.Timeouts.PollInterval, ctx.Timeouts.AddressWait, func(pctx context.Context) (bool, error) {
		state, err := t.Infra.GetInstanceState(pctx, t.Name())
		if err != nil {
			return false, retry.Fatal(fmt.Errorf("failed to read state of %s: %w", t.Name(), err))
		}
		last = provisioning.GlobalAddressList(state, device)
		if families.Satisfied(last) {
			return true, nil
		}
		ctx.Observer.Event(provisioning.Event{
			Type:     provisioning.EventWaiting,
			Phase:    phase,
			Resource: t.Name(),
			Message:  fmt.Sprintf("waiting for addresses, have %v", last),
		})
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("waiting for addresses of %s: %w", t.Name(), err)
	}

	ctx.Observer.Event(provisioning.Event{
		Type:     provisioning.EventReady,
		Phase:    phase,
		Resource: t.Name(),
		Message:  fmt.Sprintf("addresses ready: %v", last),
		Fields:   map[string]string{"kind": provisioning.KindAddress},
	})
	return nil
}

// WaitForBoot blocks until a trivial command exits zero in the guest.
// A non-zero exit and failures from a guest that is still starting are
// retried; anything else aborts the wait.
func (r *Readiness) WaitForBoot(ctx *provisioning.Context, t *provisioning.Target) error {
	if err := requireRunning(ctx, t); err != nil {
		return err
	}

	err := retry.Poll(ctx, ctx.Timeouts.PollInterval, ctx.Timeouts.BootWait, func(pctx context.Context) (bool, error) {
		code, err := t.Infra.ExecInstance(pctx, t.Name(), bootCommand)
		if err == nil && code == 0 {
			return true, nil
		}
		if err == nil {
			err = fmt.Errorf("%w: %s exited with status %d", incus.ErrGuestNotReady, bootCommand[0], code)
		}
		if guestStarting(err) {
			ctx.Observer.Event(provisioning.Event{
				Type:     provisioning.EventWaiting,
				Phase:    phase,
				Resource: t.Name(),
				Message:  fmt.Sprintf("waiting for boot: %v", err),
			})
			return false, err
		}
		return false, retry.Fatal(err)
	})
	if err != nil {
		return fmt.Errorf("waiting for boot of %s: %w", t.Name(), err)
	}

	ctx.Observer.Event(provisioning.Event{
		Type:     provisioning.EventReady,
		Phase:    phase,
		Resource: t.Name(),
		Message:  "guest booted",
	})
	return nil
}

// IsVirtualMachine reports whether the target runs as a virtual machine,
// either per its live type or its launch source.
func IsVirtualMachine(t *provisioning.Target) bool {
	if t.Instance != nil && incus.IsVirtualMachine(t.Instance) {
		return true
	}
	launch, ok := t.Spec.Source.(*config.LaunchSource)
	return ok && launch.VirtualMachine
}

// guestStarting reports whether an exec failure means the guest has not
// finished booting: paused, not running, exec failed or not found.
func guestStarting(err error) bool {
	return incus.IsGuestNotReady(err) || errors.Is(err, incus.ErrNotRunning) || incus.IsNotFound(err)
}

func requireRunning(ctx *provisioning.Context, t *provisioning.Target) error {
	if err := t.Refresh(ctx); err != nil {
		return err
	}
	if !incus.IsRunning(t.Instance) {
		return fmt.Errorf("instance %s is %s: %w", t.Name(), t.Instance.Status, provisioning.ErrNotRunning)
	}
	return nil
}
