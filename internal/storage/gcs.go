package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSClient stores objects in Google Cloud Storage. Bucket names map one to
// one onto GCS buckets.
type GCSClient struct {
	client *gcs.Client
}

// NewGCSClient creates a GCSClient. Credentials come from cfg.CredentialsFile
// when set and from Application Default Credentials otherwise.
func NewGCSClient(ctx context.Context, cfg Config) (*GCSClient, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create GCS client: %w", err)
	}
	return &GCSClient{client: client}, nil
}

// Put writes content to bucket/key with the given content type.
func (c *GCSClient) Put(ctx context.Context, bucket, key string, reader io.Reader, _ int64, opts PutOptions) error {
	w := c.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = opts.ContentType

	if _, err := io.Copy(w, reader); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: upload write failed for %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: upload close failed for %q: %w", key, err)
	}
	return nil
}

func (c *GCSClient) Exists(ctx context.Context, bucket, key string) Presence {
	attrs, err := c.client.Bucket(bucket).Object(key).Attrs(ctx)
	if err != nil {
		return classifyGCSError(err)
	}

	return Found(ObjectInfo{
		Key:          attrs.Name,
		Size:         attrs.Size,
		ETag:         attrs.Etag,
		LastModified: attrs.Updated,
		ContentType:  attrs.ContentType,
	})
}

func (c *GCSClient) SignedURL(_ context.Context, bucket, key string, expiry time.Duration) (string, error) {
	signedURL, err := c.client.Bucket(bucket).SignedURL(key, &gcs.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(expiry),
	})
	if err != nil {
		return "", fmt.Errorf("storage: failed to sign URL for %q: %w", key, err)
	}
	return signedURL, nil
}

// Close releases the underlying GCS client.
func (c *GCSClient) Close() error {
	return c.client.Close()
}

func classifyGCSError(err error) Presence {
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return NotFound()
	}
	return Failed(err)
}
