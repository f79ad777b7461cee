package incus

import (
	"context"
	"fmt"

	incusclient "github.com/lxc/incus/v6/client"

	"github.com/ringzer0/chaldeploy/internal/config"
)

// serverSource hands out connections to other remotes for image launches
// and cross-project copies.
type serverSource interface {
	imageServer(remote string) (incusclient.ImageServer, error)
	sourceServer(remote, project string) (incusclient.InstanceServer, error)
}

// RealClient implements InfrastructureManager for one remote and project.
type RealClient struct {
	server   incusclient.InstanceServer
	scope    Scope
	sources  serverSource
	timeouts *config.Timeouts
}

var _ InfrastructureManager = (*RealClient)(nil)

func newRealClient(scope Scope, server incusclient.InstanceServer, sources serverSource, timeouts *config.Timeouts) *RealClient {
	return &RealClient{
		server:   server,
		scope:    scope,
		sources:  sources,
		timeouts: timeouts,
	}
}

// Scope returns the remote and project the client is bound to.
func (c *RealClient) Scope() Scope {
	return c.scope
}

// InstanceServer returns the underlying project-scoped Incus connection.
func (c *RealClient) InstanceServer() incusclient.InstanceServer {
	return c.server
}

// wait blocks on a local operation, bounded by the operation timeout.
func (c *RealClient) wait(ctx context.Context, op incusclient.Operation) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Operation)
	defer cancel()
	return op.WaitContext(ctx)
}

// waitRemote blocks on a remote operation (image download or migration).
// Remote operations have no context-aware wait, so the target is
// cancelled when ctx ends first.
func (c *RealClient) waitRemote(ctx context.Context, op incusclient.RemoteOperation) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Operation)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = op.CancelTarget()
		return fmt.Errorf("operation cancelled: %w", ctx.Err())
	}
}
