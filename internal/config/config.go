// Package config provides the configuration of the segdict job.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/arkilian/segdict/internal/dict"
	dicterrors "github.com/arkilian/segdict/internal/errors"
	"github.com/arkilian/segdict/internal/logging"
	"github.com/arkilian/segdict/internal/storage"
)

// Config holds the configuration threaded into every component.
type Config struct {
	// DataDir is the base directory for local files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Dictionary build configuration
	Dictionary DictionaryConfig `json:"dictionary" yaml:"dictionary"`

	// Shard reader configuration
	Shard ShardConfig `json:"shard" yaml:"shard"`

	// Coordinator configuration
	Coordinator CoordinatorConfig `json:"coordinator" yaml:"coordinator"`

	// Catalog configuration
	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`

	// Log configuration
	Log logging.Config `json:"log" yaml:"log"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle forces path-style addressing (MinIO and similar)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DictionaryConfig controls dictionary construction and caching.
type DictionaryConfig struct {
	// MaxCardinality is the largest accepted distinct value count per column.
	// A negative value disables the limit.
	MaxCardinality int `json:"max_cardinality" yaml:"max_cardinality"`

	// NullSentinel reserves code 0 for null
	NullSentinel bool `json:"null_sentinel" yaml:"null_sentinel"`

	// Compression is the artifact body compression: none, snappy, lz4
	Compression string `json:"compression" yaml:"compression"`

	// CacheSize is the number of decoded dictionaries kept in memory (0 disables)
	CacheSize int `json:"cache_size" yaml:"cache_size"`
}

// ShardConfig controls how shard records are parsed.
type ShardConfig struct {
	// NullToken is the record that denotes null
	NullToken string `json:"null_token" yaml:"null_token"`
}

// CoordinatorConfig controls segment processing.
type CoordinatorConfig struct {
	// Concurrency is the number of columns processed at once
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// CatalogConfig locates the segment catalog.
type CatalogConfig struct {
	// Path is the SQLite catalog file; empty disables recording
	Path string `json:"path" yaml:"path"`
}

// DefaultConfig returns the default configuration for local runs.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/segdict",
		Storage: StorageConfig{
			Type: "local",
		},
		Dictionary: DictionaryConfig{
			MaxCardinality: dict.DefaultMaxCardinality,
			NullSentinel:   false,
			Compression:    "lz4",
			CacheSize:      64,
		},
		Shard: ShardConfig{
			NullToken: `\N`,
		},
		Coordinator: CoordinatorConfig{
			Concurrency: 4,
		},
		Log: logging.DefaultConfig(),
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/segdict"
	}

	// Resolve storage path
	if c.Storage.Type == "local" && c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return dicterrors.NewConfigError("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return dicterrors.NewConfigError(fmt.Sprintf("invalid storage type: %s (must be local or s3)", c.Storage.Type))
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return dicterrors.NewConfigError("s3.bucket is required when storage type is s3")
	}

	if c.Dictionary.MaxCardinality == 0 {
		return dicterrors.NewConfigError("dictionary.max_cardinality must be positive, or negative to disable the limit")
	}

	if _, err := dict.ParseMethod(c.Dictionary.Compression); err != nil {
		return dicterrors.NewConfigError(fmt.Sprintf("invalid dictionary.compression: %s (must be none, snappy, or lz4)", c.Dictionary.Compression))
	}

	if c.Dictionary.CacheSize < 0 {
		return dicterrors.NewConfigError(fmt.Sprintf("dictionary.cache_size must not be negative, got %d", c.Dictionary.CacheSize))
	}

	if c.Shard.NullToken == "" {
		return dicterrors.NewConfigError("shard.null_token must not be empty")
	}

	if c.Coordinator.Concurrency < 1 || c.Coordinator.Concurrency > 256 {
		return dicterrors.NewConfigError(fmt.Sprintf("coordinator.concurrency must be between 1 and 256, got %d", c.Coordinator.Concurrency))
	}

	switch c.Log.Format {
	case "", "json", "console":
	default:
		return dicterrors.NewConfigError(fmt.Sprintf("invalid log.format: %s (must be json or console)", c.Log.Format))
	}

	return nil
}

// StorageOptions converts the storage section into storage.Config.
func (c *Config) StorageOptions() storage.Config {
	s3cfg := storage.DefaultS3Config()
	if c.Storage.S3.Region != "" {
		s3cfg.Region = c.Storage.S3.Region
	}
	s3cfg.Endpoint = c.Storage.S3.Endpoint
	s3cfg.UsePathStyle = c.Storage.S3.UsePathStyle
	return storage.Config{
		Type:   c.Storage.Type,
		Path:   c.Storage.Path,
		Bucket: c.Storage.S3.Bucket,
		S3:     s3cfg,
	}
}

// BuildOptions converts the dictionary section into dict.Options.
// Validate must have accepted the configuration.
func (c *Config) BuildOptions() dict.Options {
	method, _ := dict.ParseMethod(c.Dictionary.Compression)
	return dict.Options{
		MaxCardinality: c.Dictionary.MaxCardinality,
		NullSentinel:   c.Dictionary.NullSentinel,
		Compression:    method,
	}
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the SEGDICT_ prefix.
func LoadFromEnv(cfg *Config) error {
	if v := os.Getenv("SEGDICT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Storage configuration
	if v := os.Getenv("SEGDICT_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("SEGDICT_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("SEGDICT_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("SEGDICT_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("SEGDICT_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("SEGDICT_S3_USE_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = v == "true" || v == "1"
	}

	// Dictionary configuration
	if err := envInt("SEGDICT_DICTIONARY_MAX_CARDINALITY", &cfg.Dictionary.MaxCardinality); err != nil {
		return err
	}
	if v := os.Getenv("SEGDICT_DICTIONARY_NULL_SENTINEL"); v != "" {
		cfg.Dictionary.NullSentinel = v == "true" || v == "1"
	}
	if v := os.Getenv("SEGDICT_DICTIONARY_COMPRESSION"); v != "" {
		cfg.Dictionary.Compression = v
	}
	if err := envInt("SEGDICT_DICTIONARY_CACHE_SIZE", &cfg.Dictionary.CacheSize); err != nil {
		return err
	}

	if v := os.Getenv("SEGDICT_SHARD_NULL_TOKEN"); v != "" {
		cfg.Shard.NullToken = v
	}
	if err := envInt("SEGDICT_COORDINATOR_CONCURRENCY", &cfg.Coordinator.Concurrency); err != nil {
		return err
	}
	if v := os.Getenv("SEGDICT_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}

	// Log configuration
	if v := os.Getenv("SEGDICT_LOG_PATH"); v != "" {
		cfg.Log.Path = v
	}
	if v := os.Getenv("SEGDICT_LOG_LEVEL"); v != "" {
		level, err := zapcore.ParseLevel(v)
		if err != nil {
			return dicterrors.NewConfigError(fmt.Sprintf("SEGDICT_LOG_LEVEL: %v", err))
		}
		cfg.Log.Level = level
	}
	if v := os.Getenv("SEGDICT_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return dicterrors.NewConfigError(fmt.Sprintf("%s must be an integer, got %q", name, v))
	}
	*dst = n
	return nil
}

// EnsureDirectories creates all required local directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}
	if c.Catalog.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Catalog.Path))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
