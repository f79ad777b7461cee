package incus

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lxc/incus/v6/shared/api"
)

// GetNetwork returns the network by name, or nil if not found.
func (c *RealClient) GetNetwork(_ context.Context, name string) (*api.Network, error) {
	n, _, err := c.server.GetNetwork(name)
	if err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get network %s: %w", name, err)
	}
	return n, nil
}

// CreateNetwork creates a managed network.
func (c *RealClient) CreateNetwork(_ context.Context, req api.NetworksPost) error {
	if err := c.server.CreateNetwork(req); err != nil {
		return fmt.Errorf("failed to create network %s: %w", req.Name, err)
	}
	return nil
}

// UpdateNetwork replaces the writable fields of a network.
func (c *RealClient) UpdateNetwork(_ context.Context, name string, put api.NetworkPut) error {
	_, etag, err := c.server.GetNetwork(name)
	if err != nil {
		return fmt.Errorf("failed to get network %s: %w", name, err)
	}
	if err := c.server.UpdateNetwork(name, put, etag); err != nil {
		return fmt.Errorf("failed to update network %s: %w", name, err)
	}
	return nil
}
