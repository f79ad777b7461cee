package incus

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"github.com/lxc/incus/v6/shared/api"
)

// GetNetworkACLs lists the ACLs of the project.
func (c *RealClient) GetNetworkACLs(_ context.Context) ([]api.NetworkACL, error) {
	acls, err := c.server.GetNetworkACLs()
	if err != nil {
		return nil, fmt.Errorf("failed to list network ACLs: %w", err)
	}
	return acls, nil
}

// GetNetworkACL returns the ACL by name, or nil if not found.
func (c *RealClient) GetNetworkACL(_ context.Context, name string) (*api.NetworkACL, error) {
	acl, _, err := c.server.GetNetworkACL(name)
	if err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get network ACL %s: %w", name, err)
	}
	return acl, nil
}

// CreateNetworkACL creates an ACL.
func (c *RealClient) CreateNetworkACL(_ context.Context, req api.NetworkACLsPost) error {
	if err := c.server.CreateNetworkACL(req); err != nil {
		return fmt.Errorf("failed to create network ACL %s: %w", req.Name, err)
	}
	return nil
}

// DeleteNetworkACL deletes an ACL.
func (c *RealClient) DeleteNetworkACL(_ context.Context, name string) error {
	if err := c.server.DeleteNetworkACL(name); err != nil {
		return fmt.Errorf("failed to delete network ACL %s: %w", name, err)
	}
	return nil
}

// InstanceURL is the UsedBy entry Incus records for an instance.
func InstanceURL(project, name string) string {
	u := "/1.0/instances/" + url.PathEscape(name)
	if project != "" && project != api.ProjectDefaultName {
		u += "?project=" + url.QueryEscape(project)
	}
	return u
}

// UsedByInstance reports whether a UsedBy entry references the named
// instance in the given project.
func UsedByInstance(entry, project, name string) bool {
	u, err := url.Parse(entry)
	if err != nil {
		return false
	}
	dir, base := path.Split(u.Path)
	if dir != "/1.0/instances/" {
		return false
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	if base != name {
		return false
	}

	entryProject := u.Query().Get("project")
	if entryProject == "" {
		entryProject = api.ProjectDefaultName
	}
	if project == "" {
		project = api.ProjectDefaultName
	}
	return entryProject == project
}
