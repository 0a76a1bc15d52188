package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultKeep is the number of snapshots retained per store
const DefaultKeep = 8

// Config holds all configuration for the IMDb snapshot pipeline
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Transform TransformConfig `yaml:"transform"`
	Reports   ReportsConfig   `yaml:"reports"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Server    ServerConfig    `yaml:"server"`
}

// ServiceConfig contains service-level settings
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// StorageConfig locates the bronze and silver snapshot stores
type StorageConfig struct {
	BronzeDir string `yaml:"bronze_dir"`
	SilverDir string `yaml:"silver_dir"`
	Keep      int    `yaml:"keep"`
}

// IngestConfig controls the raw download stage
type IngestConfig struct {
	BaseURL        string      `yaml:"base_url"`
	TimeoutSeconds int         `yaml:"timeout_seconds"`
	Retry          RetryConfig `yaml:"retry"`
}

// RetryConfig mirrors resilience.RetryPolicy in YAML form
type RetryConfig struct {
	MaxAttempts     int     `yaml:"max_attempts"`
	InitialDelayMS  int     `yaml:"initial_delay_ms"`
	MaxDelaySeconds int     `yaml:"max_delay_seconds"`
	BackoffFactor   float64 `yaml:"backoff_factor"`
	JitterFactor    float64 `yaml:"jitter_factor"`
}

// TransformConfig controls the bronze → silver stage
type TransformConfig struct {
	AllowedTitleTypes []string `yaml:"allowed_title_types"`
}

// ReportsConfig configures where derived reports are published
type ReportsConfig struct {
	OutputDir   string            `yaml:"output_dir"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
}

// PostgresConfig for the optional dashboard database sink
type PostgresConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	Table    string `yaml:"table"`
}

// ConnectionString returns a lib/pq key=value connection string
func (p PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		p.Host, p.Port, p.Database, p.User, p.Password, p.SSLMode)
}

// ObjectStoreConfig for the optional S3/MinIO sink
type ObjectStoreConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	UseSSL          bool   `yaml:"use_ssl"`
}

// MetricsConfig controls run metrics publication
type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// ServerConfig for the read-only report API
type ServerConfig struct {
	Port string `yaml:"port"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML file. A missing file yields defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "imdb-pipeline"
	}
	if c.Service.Version == "" {
		c.Service.Version = "dev"
	}
	if c.Storage.BronzeDir == "" {
		c.Storage.BronzeDir = "data/bronze"
	}
	if c.Storage.SilverDir == "" {
		c.Storage.SilverDir = "data/silver"
	}
	if c.Storage.Keep == 0 {
		c.Storage.Keep = DefaultKeep
	}
	if c.Ingest.BaseURL == "" {
		c.Ingest.BaseURL = "https://datasets.imdbws.com"
	}
	if c.Ingest.TimeoutSeconds == 0 {
		c.Ingest.TimeoutSeconds = 120
	}
	if c.Ingest.Retry.MaxAttempts == 0 {
		c.Ingest.Retry.MaxAttempts = 3
	}
	if c.Ingest.Retry.InitialDelayMS == 0 {
		c.Ingest.Retry.InitialDelayMS = 500
	}
	if c.Ingest.Retry.MaxDelaySeconds == 0 {
		c.Ingest.Retry.MaxDelaySeconds = 30
	}
	if c.Ingest.Retry.BackoffFactor == 0 {
		c.Ingest.Retry.BackoffFactor = 2.0
	}
	if len(c.Transform.AllowedTitleTypes) == 0 {
		c.Transform.AllowedTitleTypes = []string{"movie", "tvSeries", "tvMiniSeries", "tvEpisode"}
	}
	if c.Reports.OutputDir == "" {
		c.Reports.OutputDir = "dashboard/public/data"
	}
	if c.Reports.Postgres.Port == 0 {
		c.Reports.Postgres.Port = 5432
	}
	if c.Reports.Postgres.SSLMode == "" {
		c.Reports.Postgres.SSLMode = "disable"
	}
	if c.Reports.Postgres.Table == "" {
		c.Reports.Postgres.Table = "dashboard_reports"
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "imdb_pipeline"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8094"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Storage.BronzeDir == "" {
		return fmt.Errorf("storage.bronze_dir is required")
	}
	if c.Storage.SilverDir == "" {
		return fmt.Errorf("storage.silver_dir is required")
	}
	if c.Storage.Keep < 1 {
		return fmt.Errorf("storage.keep must be at least 1")
	}
	if c.Reports.OutputDir == "" {
		return fmt.Errorf("reports.output_dir is required")
	}
	if c.Ingest.Retry.MaxAttempts < 1 {
		return fmt.Errorf("ingest.retry.max_attempts must be at least 1")
	}
	if pg := c.Reports.Postgres; pg.Enabled {
		if pg.Host == "" || pg.Database == "" || pg.User == "" {
			return fmt.Errorf("reports.postgres requires host, database and user when enabled")
		}
	}
	if store := c.Reports.ObjectStore; store.Enabled {
		if store.Endpoint == "" || store.Bucket == "" {
			return fmt.Errorf("reports.object_store requires endpoint and bucket when enabled")
		}
		if store.AccessKeyID == "" || store.SecretAccessKey == "" {
			return fmt.Errorf("reports.object_store requires credentials when enabled")
		}
	}
	if u := c.Metrics.PushgatewayURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return fmt.Errorf("metrics.pushgateway_url must be an http(s) URL, got %q", u)
	}
	return nil
}

// Timeout returns the per-download response timeout as a Duration
func (c IngestConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
