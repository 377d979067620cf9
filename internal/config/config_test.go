package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, envFile string, args ...string) *pflag.FlagSet {
	t.Helper()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("env-file", envFile, "")
	fs.String("listen", "", "")
	fs.String("log-level", "", "")
	fs.String("secret-key", "", "")
	fs.String("backend", "", "")
	fs.String("region", "", "")
	fs.String("endpoint", "", "")
	fs.String("access-key", "", "")
	fs.String("secret-access-key", "", "")
	fs.String("local-dir", "", "")
	fs.String("credentials-file", "", "")
	fs.String("upload-bucket", "", "")
	fs.String("processed-bucket", "", "")
	fs.Duration("poll-interval", 0, "")
	fs.Duration("poll-timeout", 0, "")
	fs.Duration("link-expiry", 0, "")
	fs.Bool("secure", true, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LISTEN_ADDR", "LOG_LEVEL", "FLASK_SECRET_KEY", "SECRET_KEY", "STORAGE_BACKEND",
		"AWS_DEFAULT_REGION", "AWS_REGION", "S3_ENDPOINT", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
		"LOCAL_STORAGE_DIR", "GOOGLE_APPLICATION_CREDENTIALS", "UPLOAD_BUCKET", "PROCESSED_BUCKET",
		"S3_SECURE", "POLL_INTERVAL", "POLL_TIMEOUT", "LINK_EXPIRY",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("UPLOAD_BUCKET", "uploads")
	t.Setenv("PROCESSED_BUCKET", "processed")
	t.Setenv("FLASK_SECRET_KEY", "s3cret")
	t.Setenv("POLL_TIMEOUT", "30")

	cfg, err := Load("", newFlags(t, filepath.Join(t.TempDir(), "missing.env")))
	require.NoError(t, err)

	assert.Equal(t, "uploads", cfg.Storage.UploadBucket)
	assert.Equal(t, "processed", cfg.Storage.ProcessedBucket)
	assert.Equal(t, "s3cret", cfg.SecretKey)
	assert.Equal(t, "ca-central-1", cfg.Storage.Region)
	assert.Equal(t, time.Second, cfg.Poll.Interval)
	assert.Equal(t, 30*time.Second, cfg.Poll.Timeout)
	assert.Equal(t, time.Hour, cfg.LinkExpiry)
}

func TestLoad_DotEnvFileBelowEnvironment(t *testing.T) {
	clearEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"UPLOAD_BUCKET=file-uploads\nPROCESSED_BUCKET=file-processed\nFLASK_SECRET_KEY=from-file\n",
	), 0o600))
	t.Setenv("PROCESSED_BUCKET", "env-processed")

	cfg, err := Load("", newFlags(t, envFile))
	require.NoError(t, err)

	assert.Equal(t, "file-uploads", cfg.Storage.UploadBucket)
	assert.Equal(t, "env-processed", cfg.Storage.ProcessedBucket)
	assert.Equal(t, "from-file", cfg.SecretKey)
}

func TestLoad_YAMLThenFlags(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
listen_addr: ":9090"
secret_key: yaml-secret
storage:
  backend: local
  local_dir: /tmp/greyportal
  upload_bucket: yaml-uploads
  processed_bucket: yaml-processed
poll:
  interval: 500ms
  timeout: 10s
`), 0o600))

	flags := newFlags(t, filepath.Join(dir, "none.env"), "--processed-bucket", "flag-processed", "--poll-timeout", "15s")
	cfg, err := Load(configFile, flags)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/greyportal", cfg.Storage.LocalDir)
	assert.Equal(t, "yaml-uploads", cfg.Storage.UploadBucket)
	assert.Equal(t, "flag-processed", cfg.Storage.ProcessedBucket)
	assert.Equal(t, 500*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, 15*time.Second, cfg.Poll.Timeout)
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{
			name:  "upload bucket",
			env:   map[string]string{"PROCESSED_BUCKET": "p", "FLASK_SECRET_KEY": "k"},
			field: "upload bucket",
		},
		{
			name:  "processed bucket",
			env:   map[string]string{"UPLOAD_BUCKET": "u", "FLASK_SECRET_KEY": "k"},
			field: "processed bucket",
		},
		{
			name:  "secret key",
			env:   map[string]string{"UPLOAD_BUCKET": "u", "PROCESSED_BUCKET": "p"},
			field: "secret key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("", newFlags(t, filepath.Join(t.TempDir(), "none.env")))
			require.Error(t, err)

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestLoad_EmptyRegionFlag(t *testing.T) {
	clearEnv(t)
	t.Setenv("UPLOAD_BUCKET", "u")
	t.Setenv("PROCESSED_BUCKET", "p")
	t.Setenv("FLASK_SECRET_KEY", "k")

	_, err := Load("", newFlags(t, filepath.Join(t.TempDir(), "none.env"), "--region", ""))

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "region", cfgErr.Field)
}

func TestLoad_InvalidPoll(t *testing.T) {
	clearEnv(t)
	t.Setenv("UPLOAD_BUCKET", "u")
	t.Setenv("PROCESSED_BUCKET", "p")
	t.Setenv("FLASK_SECRET_KEY", "k")
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("POLL_TIMEOUT", "1s")

	_, err := Load("", newFlags(t, filepath.Join(t.TempDir(), "none.env")))

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "poll timeout", cfgErr.Field)
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("20")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, d)

	d, err = parseDuration("1m30s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = parseDuration("soon")
	assert.Error(t, err)
}
