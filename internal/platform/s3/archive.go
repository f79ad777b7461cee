package s3

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/ringzer0/chaldeploy/internal/util/retry"
)

// Archive uploads every regular file below dir to prefix/<relative path>
// and returns the number of objects written. Each upload is retried with
// exponential backoff. A missing bucket or denied access stops at once.
func (c *Client) Archive(ctx context.Context, dir, prefix string) (int, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	written := 0
	for _, file := range files {
		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return written, err
		}
		key := ObjectKey(prefix, rel)

		data, err := os.ReadFile(file)
		if err != nil {
			return written, fmt.Errorf("failed to read %s: %w", file, err)
		}

		err = retry.WithExponentialBackoff(ctx, func(ctx context.Context) error {
			err := c.PutObject(ctx, key, data)
			if err != nil && (isNotFoundError(err) || isAccessDenied(err)) {
				return retry.Fatal(err)
			}
			return err
		}, c.retry...)
		if err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// ObjectKey joins prefix and a relative, OS-specific path into an object key.
func ObjectKey(prefix, rel string) string {
	return path.Join(prefix, filepath.ToSlash(rel))
}
