package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// LocalClient keeps each bucket as a directory under baseDir. It is meant for
// development together with a local transformer writing into the processed
// bucket directory. Links are file:// URLs without an expiry.
type LocalClient struct {
	baseDir string
}

// NewLocalClient creates a LocalClient rooted at baseDir. The directory is
// created if it does not already exist.
func NewLocalClient(baseDir string) (*LocalClient, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("storage: local base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: failed to create local base directory %q: %w", baseDir, err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to resolve absolute path for %q: %w", baseDir, err)
	}
	return &LocalClient{baseDir: abs}, nil
}

func (c *LocalClient) path(bucket, key string) (string, error) {
	if !filepath.IsLocal(bucket) || !filepath.IsLocal(key) {
		return "", fmt.Errorf("storage: invalid object path %q/%q", bucket, key)
	}
	return filepath.Join(c.baseDir, bucket, filepath.FromSlash(key)), nil
}

// Put writes content to baseDir/bucket/key, creating intermediate
// directories as needed. The content type is not persisted.
func (c *LocalClient) Put(_ context.Context, bucket, key string, reader io.Reader, _ int64, _ PutOptions) error {
	dest, err := c.path(bucket, key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("storage: failed to create directory for %q: %w", key, err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("storage: failed to create file %q: %w", dest, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("storage: failed to write file %q: %w", dest, err)
	}
	return f.Close()
}

func (c *LocalClient) Exists(_ context.Context, bucket, key string) Presence {
	p, err := c.path(bucket, key)
	if err != nil {
		return Failed(err)
	}

	fi, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return NotFound()
	}
	if err != nil {
		return Failed(err)
	}
	if fi.IsDir() {
		return Failed(fmt.Errorf("storage: %q is a directory", p))
	}

	return Found(ObjectInfo{
		Key:          key,
		Size:         fi.Size(),
		LastModified: fi.ModTime(),
		ContentType:  mime.TypeByExtension(filepath.Ext(key)),
	})
}

// SignedURL returns a file:// URL for the object. expiry is ignored.
func (c *LocalClient) SignedURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	p, err := c.path(bucket, key)
	if err != nil {
		return "", err
	}
	fileURL := &url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	return fileURL.String(), nil
}
