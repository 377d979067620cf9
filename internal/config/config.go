package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	ListenAddr string        `yaml:"listen_addr"`
	LogLevel   string        `yaml:"log_level"`
	SecretKey  string        `yaml:"secret_key"`
	LinkExpiry time.Duration `yaml:"link_expiry"`
	Storage    Storage       `yaml:"storage"`
	Poll       Poll          `yaml:"poll"`
}

// Storage represents the object storage configuration
type Storage struct {
	Backend         string `yaml:"backend"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKey       string `yaml:"access_key"`
	SecretKey       string `yaml:"secret_key"`
	Secure          bool   `yaml:"secure"`
	LocalDir        string `yaml:"local_dir"`
	CredentialsFile string `yaml:"credentials_file"`
	UploadBucket    string `yaml:"upload_bucket"`
	ProcessedBucket string `yaml:"processed_bucket"`
}

// Poll controls the wait for the processed object
type Poll struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ConfigurationError reports a missing or invalid setting. It is fatal at
// startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func missing(field string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: "is required"}
}

// Default returns the configuration used before any source is applied
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		LinkExpiry: time.Hour,
		Storage: Storage{
			Backend:  "minio",
			Region:   "ca-central-1",
			Endpoint: "s3.amazonaws.com",
			Secure:   true,
			LocalDir: "./data",
		},
		Poll: Poll{
			Interval: time.Second,
			Timeout:  20 * time.Second,
		},
	}
}

// Load loads configuration from the YAML file, the environment (including an
// optional .env file) and command line flags, in increasing precedence.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided
	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	envFile := ".env"
	if flags != nil && flags.Lookup("env-file") != nil {
		envFile, _ = flags.GetString("env-file")
	}
	if err := loadFromEnv(cfg, envFile); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Override with command line flags
	if flags != nil {
		if err := loadFromFlags(cfg, flags); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// loadFromEnv reads process environment variables, falling back to values in
// envFile. Real environment variables always win over the file.
func loadFromEnv(cfg *Config, envFile string) error {
	v := viper.New()
	v.AutomaticEnv()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("read %s: %w", envFile, err)
			}
		}
	}

	str := func(target *string, keys ...string) {
		for _, key := range keys {
			if v.IsSet(key) {
				if val := v.GetString(key); val != "" {
					*target = val
					return
				}
			}
		}
	}

	str(&cfg.ListenAddr, "LISTEN_ADDR")
	str(&cfg.LogLevel, "LOG_LEVEL")
	str(&cfg.SecretKey, "FLASK_SECRET_KEY", "SECRET_KEY")
	str(&cfg.Storage.Backend, "STORAGE_BACKEND")
	str(&cfg.Storage.Region, "AWS_DEFAULT_REGION", "AWS_REGION")
	str(&cfg.Storage.Endpoint, "S3_ENDPOINT")
	str(&cfg.Storage.AccessKey, "AWS_ACCESS_KEY_ID")
	str(&cfg.Storage.SecretKey, "AWS_SECRET_ACCESS_KEY")
	str(&cfg.Storage.LocalDir, "LOCAL_STORAGE_DIR")
	str(&cfg.Storage.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	str(&cfg.Storage.UploadBucket, "UPLOAD_BUCKET")
	str(&cfg.Storage.ProcessedBucket, "PROCESSED_BUCKET")

	if v.IsSet("S3_SECURE") {
		secure, err := strconv.ParseBool(v.GetString("S3_SECURE"))
		if err != nil {
			return fmt.Errorf("S3_SECURE: %w", err)
		}
		cfg.Storage.Secure = secure
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"POLL_INTERVAL", &cfg.Poll.Interval},
		{"POLL_TIMEOUT", &cfg.Poll.Timeout},
		{"LINK_EXPIRY", &cfg.LinkExpiry},
	}
	for _, d := range durations {
		if !v.IsSet(d.key) {
			continue
		}
		parsed, err := parseDuration(v.GetString(d.key))
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.target = parsed
	}

	return nil
}

// parseDuration accepts Go duration strings and plain integers, which are
// taken as seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	var err error
	setString := func(name string, target *string) {
		if err == nil && flags.Changed(name) {
			*target, err = flags.GetString(name)
		}
	}
	setDuration := func(name string, target *time.Duration) {
		if err == nil && flags.Changed(name) {
			*target, err = flags.GetDuration(name)
		}
	}

	setString("listen", &cfg.ListenAddr)
	setString("log-level", &cfg.LogLevel)
	setString("secret-key", &cfg.SecretKey)
	setString("backend", &cfg.Storage.Backend)
	setString("region", &cfg.Storage.Region)
	setString("endpoint", &cfg.Storage.Endpoint)
	setString("access-key", &cfg.Storage.AccessKey)
	setString("secret-access-key", &cfg.Storage.SecretKey)
	setString("local-dir", &cfg.Storage.LocalDir)
	setString("credentials-file", &cfg.Storage.CredentialsFile)
	setString("upload-bucket", &cfg.Storage.UploadBucket)
	setString("processed-bucket", &cfg.Storage.ProcessedBucket)
	setDuration("poll-interval", &cfg.Poll.Interval)
	setDuration("poll-timeout", &cfg.Poll.Timeout)
	setDuration("link-expiry", &cfg.LinkExpiry)

	if err == nil && flags.Changed("secure") {
		cfg.Storage.Secure, err = flags.GetBool("secure")
	}

	return err
}

func (c *Config) validate() error {
	if c.Storage.Region == "" {
		return missing("region")
	}
	if c.Storage.UploadBucket == "" {
		return missing("upload bucket")
	}
	if c.Storage.ProcessedBucket == "" {
		return missing("processed bucket")
	}
	if c.SecretKey == "" {
		return missing("secret key")
	}

	switch c.Storage.Backend {
	case "minio", "s3", "gcs", "local":
	default:
		return &ConfigurationError{Field: "storage backend", Reason: fmt.Sprintf("unknown backend %q", c.Storage.Backend)}
	}

	if c.Poll.Interval <= 0 {
		return &ConfigurationError{Field: "poll interval", Reason: "must be positive"}
	}
	if c.Poll.Timeout < c.Poll.Interval {
		return &ConfigurationError{Field: "poll timeout", Reason: "must not be shorter than the poll interval"}
	}
	if c.LinkExpiry <= 0 {
		return &ConfigurationError{Field: "link expiry", Reason: "must be positive"}
	}

	return nil
}
