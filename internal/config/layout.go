package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Deployment directory layout.
const (
	DefaultChallengesDir = "containers"
	ConfigFileName       = "config.yml"
	InventoryFileName    = "inventory"
	PlaybookFileName     = "challenge.yml"
	ArtifactsDirName     = "artifacts"
)

// ErrMissingArtifact is returned when a deployment directory lacks a
// required file.
var ErrMissingArtifact = errors.New("missing required file")

// Layout locates the files of one deployment directory.
type Layout struct {
	Dir string
}

// ResolveLayout accepts either a directory path or a bare name looked up
// under challengesDir, and checks the required files exist.
func ResolveLayout(pathOrName, challengesDir string) (Layout, error) {
	dir := pathOrName
	if !isDir(dir) {
		if challengesDir == "" {
			challengesDir = DefaultChallengesDir
		}
		candidate := filepath.Join(challengesDir, pathOrName)
		if !isDir(candidate) {
			return Layout{}, fmt.Errorf("%w: %q is not a directory and %q does not exist", ErrMissingArtifact, pathOrName, candidate)
		}
		dir = candidate
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to resolve %q: %w", dir, err)
	}

	l := Layout{Dir: abs}
	for _, f := range []string{l.ConfigPath(), l.InventoryPath(), l.PlaybookPath()} {
		if _, err := os.Stat(f); err != nil {
			return Layout{}, fmt.Errorf("%w: %s", ErrMissingArtifact, f)
		}
	}
	return l, nil
}

// Name is the deployment directory's base name.
func (l Layout) Name() string { return filepath.Base(l.Dir) }

// ConfigPath is the path of config.yml.
func (l Layout) ConfigPath() string { return filepath.Join(l.Dir, ConfigFileName) }

// InventoryPath is the path of the inventory file.
func (l Layout) InventoryPath() string { return filepath.Join(l.Dir, InventoryFileName) }

// PlaybookPath is the path of the workload playbook.
func (l Layout) PlaybookPath() string { return filepath.Join(l.Dir, PlaybookFileName) }

// ArtifactsPath is where the workload runner leaves its run artifacts.
func (l Layout) ArtifactsPath() string { return filepath.Join(l.Dir, ArtifactsDirName) }

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
