package workload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ringzer0/chaldeploy/internal/config"
	"github.com/ringzer0/chaldeploy/internal/provisioning"
)

// Archiver copies a directory tree somewhere durable under prefix and
// returns the number of files written.
type Archiver interface {
	Archive(ctx context.Context, dir, prefix string) (int, error)
}

// Artifacts removes the runner's artifacts directory after a run.
type Artifacts struct {
	archiver Archiver
}

// NewArtifacts creates an artifact cleaner. A nil archiver discards without
// uploading.
func NewArtifacts(archiver Archiver) *Artifacts {
	return &Artifacts{archiver: archiver}
}

// Discard archives (when configured) and deletes dir/artifacts. A missing
// artifacts directory is not an error. When archiving fails the directory
// is left in place.
func (a *Artifacts) Discard(ctx *provisioning.Context, dir, prefix string) error {
	path := filepath.Join(dir, config.ArtifactsDirName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to inspect %s: %w", path, err)
	}

	if a != nil && a.archiver != nil {
		n, err := a.archiver.Archive(ctx, path, prefix)
		if err != nil {
			return fmt.Errorf("failed to archive %s: %w", path, err)
		}
		ctx.Observer.Printf("[workload] Archived %d artifact files under %s", n, prefix)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	ctx.Observer.Printf("[workload] Discarded %s", path)
	return nil
}
