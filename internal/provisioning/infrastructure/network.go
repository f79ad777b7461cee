package infrastructure

import (
	"fmt"
	"maps"

	"github.com/lxc/incus/v6/shared/api"

	"github.com/ringzer0/chaldeploy/internal/config"
	"github.com/ringzer0/chaldeploy/internal/provisioning"
)

// ReconcileNetwork resolves the target's network according to its action
// and stores the result on the target. Targets without a network are left
// with a nil Network.
func (p *Provisioner) ReconcileNetwork(ctx *provisioning.Context, t *provisioning.Target) error {
	spec := t.Spec.Network
	if spec == nil {
		t.Network = nil
		return nil
	}

	existing, err := t.Infra.GetNetwork(ctx, spec.Name)
	if err != nil {
		return fmt.Errorf("failed to get network %s: %w", spec.Name, err)
	}

	switch spec.Action {
	case config.ActionCreate:
		if existing != nil {
			return fmt.Errorf("network %s: %w", spec.Name, provisioning.ErrAlreadyExists)
		}
		t.Network, err = p.createNetwork(ctx, t, spec)
	case config.ActionSkip:
		if existing != nil {
			provisioning.LogResourceExists(ctx.Observer, phase, provisioning.KindNetwork, spec.Name)
			t.Network = existing
			return nil
		}
		t.Network, err = p.createNetwork(ctx, t, spec)
	case config.ActionUpdate:
		if existing != nil {
			t.Network, err = p.updateNetwork(ctx, t, existing, spec)
		} else {
			t.Network, err = p.createNetwork(ctx, t, spec)
		}
	default:
		if existing == nil {
			return fmt.Errorf("network %s: %w", spec.Name, provisioning.ErrNotFound)
		}
		t.Network = existing
	}
	return err
}

func (p *Provisioner) createNetwork(ctx *provisioning.Context, t *provisioning.Target, spec *config.Network) (*api.Network, error) {
	if spec.Type == "" {
		return nil, fmt.Errorf("network %s: type must be specified when creating a network: %w", spec.Name, provisioning.ErrInvalidConfig)
	}

	provisioning.LogResourceCreating(ctx.Observer, phase, provisioning.KindNetwork, spec.Name)
	req := api.NetworksPost{
		Name: spec.Name,
		Type: spec.Type,
		NetworkPut: api.NetworkPut{
			Config:      maps.Clone(spec.Config),
			Description: spec.Description,
		},
	}
	if req.Config == nil {
		req.Config = map[string]string{}
	}
	if err := t.Infra.CreateNetwork(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create network %s: %w", spec.Name, err)
	}

	created, err := t.Infra.GetNetwork(ctx, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get network %s: %w", spec.Name, err)
	}
	if created == nil {
		return nil, fmt.Errorf("network %s vanished after creation: %w", spec.Name, provisioning.ErrNotFound)
	}
	provisioning.LogResourceCreated(ctx.Observer, phase, provisioning.KindNetwork, spec.Name)
	return created, nil
}

// updateNetwork merges the declared config over the existing one. Keys
// missing from the declaration are preserved.
func (p *Provisioner) updateNetwork(ctx *provisioning.Context, t *provisioning.Target, existing *api.Network, spec *config.Network) (*api.Network, error) {
	put, changed := MergeNetwork(existing.NetworkPut, spec)
	if !changed {
		provisioning.LogResourceExists(ctx.Observer, phase, provisioning.KindNetwork, spec.Name)
		return existing, nil
	}

	if err := t.Infra.UpdateNetwork(ctx, spec.Name, put); err != nil {
		return nil, fmt.Errorf("failed to update network %s: %w", spec.Name, err)
	}
	provisioning.LogResourceUpdated(ctx.Observer, phase, provisioning.KindNetwork, spec.Name, "config merged")

	updated := *existing
	updated.NetworkPut = put
	return &updated, nil
}

// MergeNetwork returns current with the declared config shallow-merged in
// and the description replaced when it differs, plus whether anything
// changed.
func MergeNetwork(current api.NetworkPut, spec *config.Network) (api.NetworkPut, bool) {
	out := api.NetworkPut{
		Config:      make(map[string]string, len(current.Config)+len(spec.Config)),
		Description: current.Description,
	}
	maps.Copy(out.Config, current.Config)

	changed := false
	for k, v := range spec.Config {
		if old, ok := out.Config[k]; !ok || old != v {
			out.Config[k] = v
			changed = true
		}
	}
	if out.Description != spec.Description {
		out.Description = spec.Description
		changed = true
	}
	return out, changed
}
