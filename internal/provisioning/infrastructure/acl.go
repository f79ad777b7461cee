package infrastructure

import (
	"context"
	"fmt"
	"strings"

	"github.com/lxc/incus/v6/shared/api"

	"github.com/ringzer0/chaldeploy/internal/config"
	"github.com/ringzer0/chaldeploy/internal/platform/incus"
	"github.com/ringzer0/chaldeploy/internal/provisioning"
)

// AttachACLs gets or creates every declared ACL and appends its name to
// the NIC's security.acls list. Names already in the list are appended
// again; the list is never deduplicated.
func (p *Provisioner) AttachACLs(ctx *provisioning.Context, t *provisioning.Target) error {
	if t.Spec.Network == nil || len(t.Spec.Network.ACLs) == 0 {
		return nil
	}
	device := t.Device()
	devices, nic := provisioning.DevicesWithNIC(t.Instance, device)

	var names []string
	if current := nic[provisioning.DeviceKeyACLs]; current != "" {
		names = strings.Split(current, ",")
	}

	for _, acl := range t.Spec.Network.ACLs {
		if err := p.ensureACL(ctx, t.Infra, acl); err != nil {
			return err
		}
		names = append(names, acl.Name)
	}
	nic[provisioning.DeviceKeyACLs] = strings.Join(names, ",")

	if err := t.Infra.UpdateInstanceDevices(ctx, t.Name(), devices); err != nil {
		return fmt.Errorf("failed to attach ACLs to %s: %w", t.Name(), err)
	}
	provisioning.LogResourceUpdated(ctx.Observer, phase, provisioning.KindInstance, t.Name(), "acls "+nic[provisioning.DeviceKeyACLs])
	return t.Refresh(ctx)
}

// ensureACL creates the ACL when missing. An existing ACL is used as is.
func (p *Provisioner) ensureACL(ctx *provisioning.Context, infra incus.ACLManager, acl config.ACL) error {
	existing, err := infra.GetNetworkACL(ctx, acl.Name)
	if err != nil {
		return fmt.Errorf("failed to get ACL %s: %w", acl.Name, err)
	}
	if existing != nil {
		provisioning.LogResourceExists(ctx.Observer, phase, provisioning.KindACL, acl.Name)
		return nil
	}

	provisioning.LogResourceCreating(ctx.Observer, phase, provisioning.KindACL, acl.Name)
	if err := infra.CreateNetworkACL(ctx, ACLRequest(acl)); err != nil {
		return fmt.Errorf("failed to create ACL %s: %w", acl.Name, err)
	}
	provisioning.LogResourceCreated(ctx.Observer, phase, provisioning.KindACL, acl.Name)
	return nil
}

// ACLRequest converts a declared ACL into a creation request.
func ACLRequest(acl config.ACL) api.NetworkACLsPost {
	return api.NetworkACLsPost{
		NetworkACLPost: api.NetworkACLPost{Name: acl.Name},
		NetworkACLPut: api.NetworkACLPut{
			Description: acl.Description,
			Egress:      aclRules(acl.Egress),
			Ingress:     aclRules(acl.Ingress),
		},
	}
}

func aclRules(rules []config.ACLRule) []api.NetworkACLRule {
	out := make([]api.NetworkACLRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, api.NetworkACLRule{
			Action:          r.Action,
			State:           r.State,
			Description:     r.Description,
			Source:          r.Source,
			Destination:     r.Destination,
			SourcePort:      r.SourcePort,
			DestinationPort: r.DestinationPort,
			Protocol:        r.Protocol,
		})
	}
	return out
}

// ExclusiveACLs returns the ACLs whose only user is the given instance.
// These are the candidates for deletion once the instance is gone.
func (p *Provisioner) ExclusiveACLs(ctx context.Context, infra incus.InfrastructureManager, inst *api.Instance) ([]string, error) {
	acls, err := infra.GetNetworkACLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ACLs: %w", err)
	}
	project := infra.Scope().Project

	var names []string
	for _, acl := range acls {
		if len(acl.UsedBy) == 1 && incus.UsedByInstance(acl.UsedBy[0], project, inst.Name) {
			names = append(names, acl.Name)
		}
	}
	return names, nil
}

// DeleteOrphanedACLs deletes each named ACL that nothing uses anymore.
// ACLs still in use, or already gone, are left alone.
func (p *Provisioner) DeleteOrphanedACLs(ctx *provisioning.Context, infra incus.ACLManager, names []string) ([]string, error) {
	var deleted []string
	for _, name := range names {
		acl, err := infra.GetNetworkACL(ctx, name)
		if err != nil {
			return deleted, fmt.Errorf("failed to get ACL %s: %w", name, err)
		}
		if acl == nil || len(acl.UsedBy) > 0 {
			continue
		}

		provisioning.LogResourceDeleting(ctx.Observer, phase, provisioning.KindACL, name)
		if err := infra.DeleteNetworkACL(ctx, name); err != nil {
			return deleted, fmt.Errorf("failed to delete ACL %s: %w", name, err)
		}
		provisioning.LogResourceDeleted(ctx.Observer, phase, provisioning.KindACL, name)
		deleted = append(deleted, name)
	}
	return deleted, nil
}
