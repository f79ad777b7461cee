package incus

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lxc/incus/v6/shared/api"
)

// GetNetworkForwards lists every forward of a network.
func (c *RealClient) GetNetworkForwards(_ context.Context, network string) ([]api.NetworkForward, error) {
	forwards, err := c.server.GetNetworkForwards(network)
	if err != nil {
		return nil, fmt.Errorf("failed to list forwards of network %s: %w", network, err)
	}
	return forwards, nil
}

// GetNetworkForward returns the forward by listen address, or nil if not found.
func (c *RealClient) GetNetworkForward(_ context.Context, network, listenAddress string) (*api.NetworkForward, error) {
	fwd, _, err := c.server.GetNetworkForward(network, listenAddress)
	if err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get forward %s on network %s: %w", listenAddress, network, err)
	}
	return fwd, nil
}

// AddNetworkForwardPort appends a port mapping to an existing forward.
func (c *RealClient) AddNetworkForwardPort(_ context.Context, network, listenAddress string, port api.NetworkForwardPort) error {
	return c.updateForwardPorts(network, listenAddress, func(ports []api.NetworkForwardPort) []api.NetworkForwardPort {
		return append(ports, port)
	})
}

// RemoveNetworkForwardPort drops the mappings with the port's protocol and listen port.
func (c *RealClient) RemoveNetworkForwardPort(_ context.Context, network, listenAddress string, port api.NetworkForwardPort) error {
	return c.updateForwardPorts(network, listenAddress, func(ports []api.NetworkForwardPort) []api.NetworkForwardPort {
		return RemovePort(ports, port)
	})
}

func (c *RealClient) updateForwardPorts(network, listenAddress string, mutate func([]api.NetworkForwardPort) []api.NetworkForwardPort) error {
	fwd, etag, err := c.server.GetNetworkForward(network, listenAddress)
	if err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return fmt.Errorf("%w: forward %s on network %s", ErrNotFound, listenAddress, network)
		}
		return fmt.Errorf("failed to get forward %s on network %s: %w", listenAddress, network, err)
	}

	put := fwd.NetworkForwardPut
	put.Ports = mutate(put.Ports)

	if err := c.server.UpdateNetworkForward(network, listenAddress, put, etag); err != nil {
		return fmt.Errorf("failed to update forward %s on network %s: %w", listenAddress, network, err)
	}
	return nil
}

// RemovePort returns ports without the entries matching the protocol and
// listen port of target.
func RemovePort(ports []api.NetworkForwardPort, target api.NetworkForwardPort) []api.NetworkForwardPort {
	out := make([]api.NetworkForwardPort, 0, len(ports))
	for _, p := range ports {
		if p.Protocol == target.Protocol && p.ListenPort == target.ListenPort {
			continue
		}
		out = append(out, p)
	}
	return out
}
