package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultS3Endpoint = "s3.amazonaws.com"

// MinIOClient implements the Client interface using minio-go. It talks to
// AWS S3 as well as any other S3-compatible service.
type MinIOClient struct {
	client *minio.Client
}

// NewMinIOClient creates a new MinIO client
func NewMinIOClient(cfg Config) (*MinIOClient, error) {
	raw := cfg.Endpoint
	if raw == "" {
		raw = defaultS3Endpoint
	}

	// Clean and validate endpoint
	endpoint, err := cleanEndpoint(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  newCredentials(cfg),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	return &MinIOClient{client: client}, nil
}

// newCredentials prefers static keys and otherwise walks the usual AWS
// sources: environment, shared credentials file, instance role.
func newCredentials(cfg Config) *credentials.Credentials {
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		return credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}

	return credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.FileAWSCredentials{},
		&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
	})
}

// cleanEndpoint removes protocol and path from endpoint URL to get host:port format
func cleanEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}

	// If endpoint doesn't have protocol, add http:// for parsing
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		// Check if it's already in host:port format
		if strings.Contains(endpoint, "/") {
			return "", fmt.Errorf("endpoint contains path but no protocol")
		}
		return endpoint, nil
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint URL: %w", err)
	}

	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return "", fmt.Errorf("endpoint URL cannot have paths, only host:port is allowed (got path: %s)", parsedURL.Path)
	}

	return parsedURL.Host, nil
}

// Put uploads an object. A non-positive size streams the body with an
// unknown length.
func (c *MinIOClient) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts PutOptions) error {
	if size <= 0 {
		size = -1
	}

	putOpts := minio.PutObjectOptions{
		ContentType: opts.ContentType,
	}

	_, err := c.client.PutObject(ctx, bucket, key, reader, size, putOpts)
	return err
}

// Exists stats the object and folds S3 "not found" responses into StateNotFound
func (c *MinIOClient) Exists(ctx context.Context, bucket, key string) Presence {
	info, err := c.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return classifyMinIOError(err)
	}

	return Found(ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
	})
}

// SignedURL presigns a GET request for the object
func (c *MinIOClient) SignedURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	u, err := c.client.PresignedGetObject(ctx, bucket, key, expiry, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// classifyMinIOError maps the object-level not-found codes to StateNotFound.
// A missing bucket stays an error: waiting will not make it appear.
func classifyMinIOError(err error) Presence {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound", "404":
		return NotFound()
	case "NoSuchBucket":
		return Failed(err)
	}
	if resp.Code == "" && resp.StatusCode == http.StatusNotFound {
		return NotFound()
	}
	return Failed(err)
}
