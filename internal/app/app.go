package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"greyportal/internal/config"
	"greyportal/internal/flash"
	"greyportal/internal/metrics"
	"greyportal/internal/poll"
	"greyportal/internal/server"
	"greyportal/internal/storage"
	"greyportal/internal/upload"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// writeMargin is added to the poll budget for the upload itself and
	// rendering the result page.
	writeMargin = 30 * time.Second

	// shutdownGrace bounds how long in-flight uploads may keep waiting after
	// a shutdown signal.
	shutdownGrace = 25 * time.Second
)

// Portal represents the upload web application
type Portal struct {
	cfg     *config.Config
	logger  *zap.Logger
	storage storage.Client
	metrics *metrics.Collector
	server  *server.Server
}

// New creates a new portal instance
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Portal, error) {
	// Create storage client
	client, err := storage.New(ctx, storage.Config{
		Backend:         cfg.Storage.Backend,
		Endpoint:        cfg.Storage.Endpoint,
		Region:          cfg.Storage.Region,
		AccessKey:       cfg.Storage.AccessKey,
		SecretKey:       cfg.Storage.SecretKey,
		Secure:          cfg.Storage.Secure,
		LocalDir:        cfg.Storage.LocalDir,
		CredentialsFile: cfg.Storage.CredentialsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	// Create metrics collector
	metricsCollector := metrics.New()

	processor := upload.NewProcessor(upload.ProcessorConfig{
		UploadBucket:    cfg.Storage.UploadBucket,
		ProcessedBucket: cfg.Storage.ProcessedBucket,
		LinkExpiry:      cfg.LinkExpiry,
		Policy: poll.Policy{
			Interval: cfg.Poll.Interval,
			Timeout:  cfg.Poll.Timeout,
		},
	}, client, metricsCollector, logger)

	handler, err := server.NewHandler(processor, flash.New(cfg.SecretKey), logger)
	if err != nil {
		closeStorage(client)
		return nil, fmt.Errorf("failed to create handler: %w", err)
	}

	router := server.NewRouter(handler, metricsCollector.Handler(), logger)

	return &Portal{
		cfg:     cfg,
		logger:  logger,
		storage: client,
		metrics: metricsCollector,
		server:  server.New(cfg.ListenAddr, router, cfg.Poll.Timeout+writeMargin),
	}, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (p *Portal) Run(ctx context.Context) error {
	p.logger.Info("Starting server",
		zap.String("listen_addr", p.cfg.ListenAddr),
		zap.String("backend", p.cfg.Storage.Backend),
		zap.String("upload_bucket", p.cfg.Storage.UploadBucket),
		zap.String("processed_bucket", p.cfg.Storage.ProcessedBucket),
		zap.Duration("poll_interval", p.cfg.Poll.Interval),
		zap.Duration("poll_timeout", p.cfg.Poll.Timeout),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		p.logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		if err := p.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	p.logger.Info("Server stopped")
	return nil
}

// Close cleans up resources
func (p *Portal) Close() error {
	return closeStorage(p.storage)
}

func closeStorage(client storage.Client) error {
	if c, ok := client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
