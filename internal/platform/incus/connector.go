package incus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	incusclient "github.com/lxc/incus/v6/client"
	"github.com/lxc/incus/v6/shared/cliconfig"

	"github.com/ringzer0/chaldeploy/internal/config"
)

// DefaultConfigPath returns the incus CLI config location, honouring INCUS_CONF.
func DefaultConfigPath() string {
	if dir := os.Getenv("INCUS_CONF"); dir != "" {
		return filepath.Join(dir, "config.yml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "incus", "config.yml")
	}
	return filepath.Join(home, ".config", "incus", "config.yml")
}

// CLIConnector resolves scopes against the remotes of an incus CLI config.
// Connections are cached per remote.
type CLIConnector struct {
	conf     *cliconfig.Config
	timeouts *config.Timeouts

	mu      sync.Mutex
	servers map[string]incusclient.InstanceServer
	images  map[string]incusclient.ImageServer
}

// NewConnector loads the CLI config at path. A missing file yields the
// default remotes (local unix socket and the public image servers).
func NewConnector(path string, timeouts *config.Timeouts) (*CLIConnector, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	if timeouts == nil {
		timeouts = config.LoadTimeouts()
	}

	var conf *cliconfig.Config
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		conf = cliconfig.NewConfig(filepath.Dir(path), true)
	} else {
		conf, err = cliconfig.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load incus config %s: %w", path, err)
		}
	}

	return &CLIConnector{
		conf:     conf,
		timeouts: timeouts,
		servers:  make(map[string]incusclient.InstanceServer),
		images:   make(map[string]incusclient.ImageServer),
	}, nil
}

// Connect implements Connector.
func (c *CLIConnector) Connect(_ context.Context, scope Scope) (InfrastructureManager, error) {
	server, err := c.instanceServer(scope.Remote)
	if err != nil {
		return nil, err
	}

	if _, _, err := server.GetProject(scope.Project); err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("%w: %q on remote %q", ErrProjectNotFound, scope.Project, scope.Remote)
		}
		return nil, fmt.Errorf("failed to get project %s: %w", scope, err)
	}

	return newRealClient(scope, server.UseProject(scope.Project), c, c.timeouts), nil
}

func (c *CLIConnector) instanceServer(remote string) (incusclient.InstanceServer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.servers[remote]; ok {
		return s, nil
	}
	if _, ok := c.conf.Remotes[remote]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrRemoteNotFound, remote)
	}
	s, err := c.conf.GetInstanceServer(remote)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to remote %q: %w", remote, err)
	}
	c.servers[remote] = s
	return s, nil
}

func (c *CLIConnector) imageServer(remote string) (incusclient.ImageServer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.images[remote]; ok {
		return s, nil
	}
	if _, ok := c.conf.Remotes[remote]; !ok {
		return nil, fmt.Errorf("%w: image remote %q", ErrRemoteNotFound, remote)
	}
	s, err := c.conf.GetImageServer(remote)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to image remote %q: %w", remote, err)
	}
	c.images[remote] = s
	return s, nil
}

// sourceServer returns a connection to another remote and project, used as
// the origin of an instance copy.
func (c *CLIConnector) sourceServer(remote, project string) (incusclient.InstanceServer, error) {
	s, err := c.instanceServer(remote)
	if err != nil {
		return nil, err
	}
	return s.UseProject(project), nil
}
