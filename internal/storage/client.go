// Package storage defines the object storage collaborator used by the upload
// workflow and its backends: any S3-compatible service through minio-go,
// Google Cloud Storage, and a local directory tree for development.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Client defines the operations the upload workflow needs from a blob store
type Client interface {
	// Put writes the object under key, replacing any existing object.
	Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts PutOptions) error

	// Exists reports whether the object is present. Absence is a regular
	// result, never an error.
	Exists(ctx context.Context, bucket, key string) Presence

	// SignedURL issues a time-limited read link for the object.
	SignedURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

// ObjectInfo contains object metadata
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
}

// PutOptions contains options for put operations
type PutOptions struct {
	ContentType string
}

// State is the outcome class of an existence check.
type State int

const (
	StateNotFound State = iota
	StateFound
	StateError
)

func (s State) String() string {
	switch s {
	case StateNotFound:
		return "not_found"
	case StateFound:
		return "found"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Presence is the tri-state result of Client.Exists. Info is set only for
// StateFound and Err only for StateError.
type Presence struct {
	State State
	Info  ObjectInfo
	Err   error
}

func Found(info ObjectInfo) Presence {
	return Presence{State: StateFound, Info: info}
}

func NotFound() Presence {
	return Presence{State: StateNotFound}
}

func Failed(err error) Presence {
	return Presence{State: StateError, Err: err}
}

// Config contains client configuration
type Config struct {
	Backend   string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Secure    bool

	// LocalDir is the base directory of the local backend.
	LocalDir string

	// CredentialsFile is an optional service account key for the GCS backend.
	CredentialsFile string
}

const (
	BackendMinIO = "minio"
	BackendGCS   = "gcs"
	BackendLocal = "local"
)

// New builds the Client selected by cfg.Backend.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Backend {
	case BackendMinIO, "s3", "":
		return NewMinIOClient(cfg)
	case BackendGCS:
		return NewGCSClient(ctx, cfg)
	case BackendLocal:
		return NewLocalClient(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
