package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"greyportal/internal/app"
	"greyportal/internal/config"
	"greyportal/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "greyportal",
	Short:         "Upload images and collect their greyscale versions",
	Long:          `A web front end that stores uploaded images in an upload bucket, waits for an external transformer to write the greyscale version to a processed bucket and returns time-limited links to both.`,
	RunE:          runServer,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file read before the environment")

	// Server flags
	rootCmd.Flags().String("listen", ":8080", "HTTP listen address")
	rootCmd.Flags().String("log-level", "info", "Log level (debug/info/warn/error)")
	rootCmd.Flags().String("secret-key", "", "Key signing the flash message cookie")
	rootCmd.Flags().Duration("link-expiry", config.Default().LinkExpiry, "Lifetime of the signed links")

	// Storage flags
	rootCmd.Flags().String("backend", "minio", "Storage backend (minio/s3/gcs/local)")
	rootCmd.Flags().String("region", "ca-central-1", "Storage region")
	rootCmd.Flags().String("endpoint", "s3.amazonaws.com", "S3 compatible endpoint")
	rootCmd.Flags().String("access-key", "", "S3 access key (default: AWS credential chain)")
	rootCmd.Flags().String("secret-access-key", "", "S3 secret key")
	rootCmd.Flags().Bool("secure", true, "Use HTTPS for the S3 endpoint")
	rootCmd.Flags().String("credentials-file", "", "GCS service account key file")
	rootCmd.Flags().String("local-dir", "./data", "Base directory of the local backend")
	rootCmd.Flags().String("upload-bucket", "", "Bucket receiving the original uploads (required)")
	rootCmd.Flags().String("processed-bucket", "", "Bucket the greyscale versions appear in (required)")

	// Poll flags
	rootCmd.Flags().Duration("poll-interval", config.Default().Poll.Interval, "Delay between checks for the processed image")
	rootCmd.Flags().Duration("poll-timeout", config.Default().Poll.Timeout, "Maximum wait for the processed image")
}

func runServer(cmd *cobra.Command, _ []string) error {
	// Load configuration
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	portal, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create portal: %w", err)
	}
	defer func() {
		if closeErr := portal.Close(); closeErr != nil {
			log.Error("Error closing portal", zap.Error(closeErr))
		}
	}()

	return portal.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
