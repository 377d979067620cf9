// Package upload implements the upload-and-wait workflow: store the original
// in the upload bucket, wait for the external transformer to write a
// processed object with the same key, then sign links to both.
package upload

import (
	"context"
	"io"
	"time"

	"greyportal/internal/metrics"
	"greyportal/internal/poll"
	"greyportal/internal/storage"

	"go.uber.org/zap"
)

const DefaultLinkExpiry = time.Hour

// UploadRequest is one file taken from the upload form. Name is used
// unchanged as the object key in both buckets.
type UploadRequest struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// AccessLink is a time-limited read link for one object
type AccessLink struct {
	Bucket    string
	Key       string
	URL       string
	ExpiresAt time.Time
}

// Result is returned for an upload whose processed version appeared in time
type Result struct {
	Key       string
	Original  AccessLink
	Processed AccessLink
	Waited    time.Duration
	Attempts  int
}

// ProcessorConfig contains processor configuration
type ProcessorConfig struct {
	UploadBucket    string
	ProcessedBucket string
	LinkExpiry      time.Duration
	Policy          poll.Policy
}

// Processor runs the upload, wait and link workflow for a single request
type Processor struct {
	config  ProcessorConfig
	storage storage.Client
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewProcessor creates a Processor. The dependencies are shared read-only
// between requests.
func NewProcessor(cfg ProcessorConfig, client storage.Client, m *metrics.Collector, logger *zap.Logger) *Processor {
	if cfg.LinkExpiry <= 0 {
		cfg.LinkExpiry = DefaultLinkExpiry
	}
	if cfg.Policy.Clock == nil {
		cfg.Policy.Clock = poll.RealClock()
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Processor{
		config:  cfg,
		storage: client,
		metrics: m,
		logger:  logger,
	}
}

// Process stores the upload in the upload bucket, waits for the processed
// object with the same key and returns links to both. Failures are returned
// as one of ValidationError, StorageWriteError, StorageCheckError,
// TimeoutError or LinkError.
func (p *Processor) Process(ctx context.Context, req UploadRequest) (*Result, error) {
	if req.Content == nil || req.Name == "" {
		p.metrics.IncUpload(metrics.OutcomeInvalid)
		return nil, &ValidationError{Reason: "no file selected"}
	}

	key := req.Name
	logger := p.logger.With(zap.String("key", key))

	uploadedAt := p.config.Policy.Clock.Now()
	if err := p.upload(ctx, req); err != nil {
		p.metrics.IncUpload(metrics.OutcomeUploadFailed)
		logger.Error("Upload failed",
			zap.String("bucket", p.config.UploadBucket),
			zap.Error(err),
		)
		return nil, &StorageWriteError{Bucket: p.config.UploadBucket, Key: key, Err: err}
	}
	logger.Info("Original uploaded",
		zap.String("bucket", p.config.UploadBucket),
		zap.String("content_type", req.ContentType),
		zap.Int64("size", req.Size),
	)

	out := p.waitForProcessed(ctx, key)
	p.metrics.ObserveWait(out.Elapsed)

	switch out.State {
	case poll.StateFound:
		if stale(out.Presence.Info.LastModified, uploadedAt) {
			logger.Warn("Processed object predates the upload and may be stale",
				zap.Time("last_modified", out.Presence.Info.LastModified),
				zap.Time("uploaded_at", uploadedAt),
			)
		}
	case poll.StateTimedOut:
		p.metrics.IncUpload(metrics.OutcomeTimeout)
		logger.Warn("Timed out waiting for processed object",
			zap.Duration("waited", out.Elapsed),
			zap.Int("attempts", out.Attempts),
		)
		return nil, &TimeoutError{Key: key, Waited: out.Elapsed, Attempts: out.Attempts}
	default:
		p.metrics.IncUpload(metrics.OutcomeCheckFailed)
		logger.Error("Processed object check failed",
			zap.String("bucket", p.config.ProcessedBucket),
			zap.Int("attempts", out.Attempts),
			zap.Error(out.Err),
		)
		return nil, &StorageCheckError{Bucket: p.config.ProcessedBucket, Key: key, Err: out.Err}
	}

	original, err := p.link(ctx, p.config.UploadBucket, key)
	if err != nil {
		p.metrics.IncUpload(metrics.OutcomeLinkFailed)
		logger.Error("Signing failed", zap.String("bucket", p.config.UploadBucket), zap.Error(err))
		return nil, err
	}
	processed, err := p.link(ctx, p.config.ProcessedBucket, key)
	if err != nil {
		p.metrics.IncUpload(metrics.OutcomeLinkFailed)
		logger.Error("Signing failed", zap.String("bucket", p.config.ProcessedBucket), zap.Error(err))
		return nil, err
	}

	p.metrics.IncUpload(metrics.OutcomeSuccess)
	logger.Info("Processed object ready",
		zap.Duration("waited", out.Elapsed),
		zap.Int("attempts", out.Attempts),
	)

	return &Result{
		Key:       key,
		Original:  original,
		Processed: processed,
		Waited:    out.Elapsed,
		Attempts:  out.Attempts,
	}, nil
}

func (p *Processor) upload(ctx context.Context, req UploadRequest) error {
	opts := storage.PutOptions{
		ContentType: req.ContentType,
	}
	return p.storage.Put(ctx, p.config.UploadBucket, req.Name, req.Content, req.Size, opts)
}

func (p *Processor) waitForProcessed(ctx context.Context, key string) poll.Outcome {
	done := p.metrics.WaitStarted()
	defer done()

	return p.config.Policy.Wait(ctx, func(ctx context.Context) storage.Presence {
		presence := p.storage.Exists(ctx, p.config.ProcessedBucket, key)
		p.metrics.IncCheck(presence.State.String())
		p.logger.Debug("Checked processed object",
			zap.String("key", key),
			zap.Stringer("result", presence.State),
		)
		return presence
	})
}

func (p *Processor) link(ctx context.Context, bucket, key string) (AccessLink, error) {
	issuedAt := p.config.Policy.Clock.Now()
	u, err := p.storage.SignedURL(ctx, bucket, key, p.config.LinkExpiry)
	if err != nil {
		return AccessLink{}, &LinkError{Bucket: bucket, Key: key, Err: err}
	}

	return AccessLink{
		Bucket:    bucket,
		Key:       key,
		URL:       u,
		ExpiresAt: issuedAt.Add(p.config.LinkExpiry),
	}, nil
}

// stale reports whether an object modified at lastModified cannot be the
// result of an upload made at uploadedAt. Storage timestamps have second
// precision, hence the truncation.
func stale(lastModified, uploadedAt time.Time) bool {
	if lastModified.IsZero() {
		return false
	}
	return lastModified.Before(uploadedAt.Truncate(time.Second))
}
