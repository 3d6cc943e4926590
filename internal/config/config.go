package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/imamik/lhctl/internal/longhorn"
	"github.com/imamik/lhctl/internal/manifest"
)

// DefaultConfigFilename is looked up in the working directory when no
// explicit config path is given.
const DefaultConfigFilename = "lhctl.yaml"

const (
	DefaultFieldManager = "lhctl"
	DefaultMetricsJob   = "lhctl"
)

// Config is the full lhctl configuration.
type Config struct {
	Namespace    string `yaml:"namespace"`
	Kubeconfig   string `yaml:"kubeconfig"`
	Context      string `yaml:"context"`
	FieldManager string `yaml:"fieldManager"`
	ManifestURL  string `yaml:"manifestURL"`
	BackupDir    string `yaml:"backupDir"`

	Wait    WaitConfig    `yaml:"wait"`
	S3      S3Config      `yaml:"s3"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// WaitConfig controls readiness polling.
type WaitConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

// S3Config configures off-cluster storage for backup bundles.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	PathStyle bool   `yaml:"pathStyle"`
}

// Enabled reports whether a bucket is configured. An empty endpoint targets
// AWS, and missing keys fall back to the default AWS credential chain.
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

// MetricsConfig configures the optional Prometheus Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgatewayURL"`
	Job            string `yaml:"job"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	return &Config{
		Namespace:    longhorn.DefaultNamespace,
		FieldManager: DefaultFieldManager,
		ManifestURL:  manifest.DefaultURLTemplate,
		BackupDir:    ".",
		Wait: WaitConfig{
			Timeout:      longhorn.DefaultWaitTimeout,
			PollInterval: longhorn.DefaultPollInterval,
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Metrics: MetricsConfig{
			Job: DefaultMetricsJob,
		},
	}
}

// Load builds the configuration from defaults, the file at path and the
// environment. An empty path falls back to lhctl.yaml in the working
// directory if it exists; a missing default file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultConfigFilename); err == nil {
			path = DefaultConfigFilename
		}
	}

	if path != "" {
		// #nosec G304
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	return cfg, nil
}

// applyEnv overrides fields from environment variables when they are set.
func (c *Config) applyEnv() {
	setString(&c.Kubeconfig, "KUBECONFIG")
	setString(&c.Namespace, "LHCTL_NAMESPACE")
	setString(&c.ManifestURL, "LHCTL_MANIFEST_URL")
	setString(&c.BackupDir, "LHCTL_BACKUP_DIR")
	setString(&c.S3.Endpoint, "S3_ENDPOINT")
	setString(&c.S3.Region, "S3_REGION")
	setString(&c.S3.AccessKey, "S3_ACCESS_KEY")
	setString(&c.S3.SecretKey, "S3_SECRET_KEY")
	setString(&c.Metrics.PushgatewayURL, "LHCTL_PUSHGATEWAY_URL")
}

func setString(dst *string, envVar string) {
	if v := os.Getenv(envVar); v != "" {
		*dst = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Namespace) == "" {
		return fmt.Errorf("namespace is required")
	}
	if c.FieldManager == "" {
		return fmt.Errorf("fieldManager is required")
	}
	if !strings.Contains(c.ManifestURL, manifest.VersionPlaceholder) {
		return fmt.Errorf("manifestURL must contain the %s placeholder", manifest.VersionPlaceholder)
	}
	if c.Wait.Timeout <= 0 {
		return fmt.Errorf("wait.timeout must be positive, got %s", c.Wait.Timeout)
	}
	if c.Wait.PollInterval <= 0 {
		return fmt.Errorf("wait.pollInterval must be positive, got %s", c.Wait.PollInterval)
	}
	if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
		return fmt.Errorf("s3.accessKey and s3.secretKey must be set together")
	}
	return nil
}
