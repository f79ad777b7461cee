package incus

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"strings"

	incusclient "github.com/lxc/incus/v6/client"
	"github.com/lxc/incus/v6/shared/api"
)

// Status values reported by Incus.
const (
	StatusRunning = "Running"
	StatusStopped = "Stopped"
	StatusFrozen  = "Frozen"
)

// IsRunning reports whether the instance status is Running.
func IsRunning(inst *api.Instance) bool {
	return inst != nil && strings.EqualFold(inst.Status, StatusRunning)
}

// IsVirtualMachine reports whether the instance is VM-backed.
func IsVirtualMachine(inst *api.Instance) bool {
	return inst != nil && inst.Type == string(api.InstanceTypeVM)
}

// GetInstance returns the instance by name, or nil if not found.
func (c *RealClient) GetInstance(_ context.Context, name string) (*api.Instance, error) {
	inst, _, err := c.server.GetInstance(name)
	if err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get instance %s: %w", name, err)
	}
	return inst, nil
}

// GetInstanceState returns the live state of the instance.
func (c *RealClient) GetInstanceState(_ context.Context, name string) (*api.InstanceState, error) {
	state, _, err := c.server.GetInstanceState(name)
	if err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("%w: instance %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to get state of instance %s: %w", name, err)
	}
	return state, nil
}

// LaunchInstance creates an instance from an image alias or fingerprint.
func (c *RealClient) LaunchInstance(ctx context.Context, opts LaunchOpts) error {
	images, err := c.sources.imageServer(opts.ImageRemote)
	if err != nil {
		return err
	}

	instType := api.InstanceTypeContainer
	if opts.VirtualMachine {
		instType = api.InstanceTypeVM
	}

	img, err := resolveImage(images, string(instType), opts.Image)
	if err != nil {
		return fmt.Errorf("failed to resolve image %s:%s: %w", opts.ImageRemote, opts.Image, err)
	}

	req := api.InstancesPost{
		Name: opts.Name,
		Type: instType,
		InstancePut: api.InstancePut{
			Config:  opts.Config,
			Devices: opts.Devices,
		},
	}

	op, err := c.server.CreateInstanceFromImage(images, *img, req)
	if err != nil {
		return fmt.Errorf("failed to create instance %s: %w", opts.Name, err)
	}
	if err := c.waitRemote(ctx, op); err != nil {
		return fmt.Errorf("failed to create instance %s: %w", opts.Name, err)
	}
	return nil
}

func resolveImage(images incusclient.ImageServer, instType, name string) (*api.Image, error) {
	fingerprint := name
	if alias, _, err := images.GetImageAliasType(instType, name); err == nil {
		fingerprint = alias.Target
	}

	img, _, err := images.GetImage(fingerprint)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// CopyInstance clones the source instance without its snapshots.
func (c *RealClient) CopyInstance(ctx context.Context, opts CopyOpts) error {
	source, err := c.sources.sourceServer(opts.SourceRemote, opts.SourceProject)
	if err != nil {
		return err
	}

	src, _, err := source.GetInstance(opts.SourceName)
	if err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return fmt.Errorf("%w: source instance %s:%s/%s", ErrNotFound, opts.SourceRemote, opts.SourceProject, opts.SourceName)
		}
		return fmt.Errorf("failed to get source instance %s: %w", opts.SourceName, err)
	}

	prepareCopy(src, opts)

	op, err := c.server.CopyInstance(source, *src, &incusclient.InstanceCopyArgs{
		Name:         opts.Name,
		InstanceOnly: true,
	})
	if err != nil {
		return fmt.Errorf("failed to copy instance %s to %s: %w", opts.SourceName, opts.Name, err)
	}
	if err := c.waitRemote(ctx, op); err != nil {
		return fmt.Errorf("failed to copy instance %s to %s: %w", opts.SourceName, opts.Name, err)
	}
	return nil
}

// prepareCopy drops per-instance volatile keys, the same way the incus
// CLI does for a copy under a new name, and applies the overrides.
func prepareCopy(src *api.Instance, opts CopyOpts) {
	config := make(map[string]string, len(src.Config)+len(opts.Config))
	for k, v := range src.Config {
		if strings.HasPrefix(k, "volatile.") && k != "volatile.base_image" {
			continue
		}
		config[k] = v
	}
	maps.Copy(config, opts.Config)
	src.Config = config

	devices := make(map[string]map[string]string, len(src.Devices)+len(opts.Devices))
	maps.Copy(devices, src.Devices)
	maps.Copy(devices, opts.Devices)
	src.Devices = devices
}

// StartInstance starts the instance.
func (c *RealClient) StartInstance(ctx context.Context, name string) error {
	return c.changeState(ctx, name, "start")
}

// PauseInstance freezes the instance.
func (c *RealClient) PauseInstance(ctx context.Context, name string) error {
	return c.changeState(ctx, name, "freeze")
}

// StopInstance stops the instance.
func (c *RealClient) StopInstance(ctx context.Context, name string) error {
	return c.changeState(ctx, name, "stop")
}

// RestartInstance restarts the instance.
func (c *RealClient) RestartInstance(ctx context.Context, name string) error {
	return c.changeState(ctx, name, "restart")
}

func (c *RealClient) changeState(ctx context.Context, name, action string) error {
	op, err := c.server.UpdateInstanceState(name, api.InstanceStatePut{
		Action:  action,
		Timeout: -1,
	}, "")
	if err != nil {
		return fmt.Errorf("failed to %s instance %s: %w", action, name, classifyStateError(err))
	}
	if err := c.wait(ctx, op); err != nil {
		return fmt.Errorf("failed to %s instance %s: %w", action, name, classifyStateError(err))
	}
	return nil
}

// DeleteInstance deletes the instance. It is not idempotent.
func (c *RealClient) DeleteInstance(ctx context.Context, name string) error {
	op, err := c.server.DeleteInstance(name)
	if err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", name, classifyStateError(err))
	}
	if err := c.wait(ctx, op); err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", name, err)
	}
	return nil
}

// UpdateInstanceDevices replaces the local devices of the instance.
func (c *RealClient) UpdateInstanceDevices(ctx context.Context, name string, devices map[string]map[string]string) error {
	inst, etag, err := c.server.GetInstance(name)
	if err != nil {
		return fmt.Errorf("failed to get instance %s: %w", name, classifyStateError(err))
	}

	put := inst.InstancePut
	put.Devices = devices

	op, err := c.server.UpdateInstance(name, put, etag)
	if err != nil {
		return fmt.Errorf("failed to update devices of instance %s: %w", name, err)
	}
	if err := c.wait(ctx, op); err != nil {
		return fmt.Errorf("failed to update devices of instance %s: %w", name, err)
	}
	return nil
}

// ExecInstance runs a non-interactive command and returns its exit code.
func (c *RealClient) ExecInstance(ctx context.Context, name string, command []string) (int, error) {
	op, err := c.server.ExecInstance(name, api.InstanceExecPost{
		Command:     command,
		WaitForWS:   false,
		Interactive: false,
	}, &incusclient.InstanceExecArgs{})
	if err != nil {
		return -1, fmt.Errorf("failed to exec in instance %s: %w", name, classifyExecError(err))
	}
	if err := c.wait(ctx, op); err != nil {
		return -1, fmt.Errorf("failed to exec in instance %s: %w", name, classifyExecError(err))
	}

	code, ok := op.Get().Metadata["return"].(float64)
	if !ok {
		return -1, fmt.Errorf("exec in instance %s returned no exit code", name)
	}
	return int(code), nil
}
