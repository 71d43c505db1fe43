package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/arkilian/segdict/internal/dict"
	dicterrors "github.com/arkilian/segdict/internal/errors"
	"github.com/arkilian/segdict/pkg/types"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Storage.Path != filepath.Join(cfg.DataDir, "storage") {
		t.Errorf("storage path not resolved: %s", cfg.Storage.Path)
	}
	opts := cfg.BuildOptions()
	if opts.Compression != dict.MethodLZ4 || opts.MaxCardinality != dict.DefaultMaxCardinality {
		t.Errorf("unexpected build options: %+v", opts)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"storage type", func(c *Config) { c.Storage.Type = "ftp" }},
		{"s3 bucket", func(c *Config) { c.Storage.Type = "s3" }},
		{"cardinality", func(c *Config) { c.Dictionary.MaxCardinality = 0 }},
		{"compression", func(c *Config) { c.Dictionary.Compression = "zstd" }},
		{"cache size", func(c *Config) { c.Dictionary.CacheSize = -1 }},
		{"null token", func(c *Config) { c.Shard.NullToken = "" }},
		{"concurrency", func(c *Config) { c.Coordinator.Concurrency = 0 }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Resolve()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if dicterrors.GetCategory(err) != dicterrors.ErrCategoryConfig {
				t.Errorf("expected config error, got %v", err)
			}
		})
	}
}

func TestValidate_NegativeCardinalityDisablesLimit(t *testing.T) {
	values := []types.Value{types.StringValue("a"), types.StringValue("b"), types.StringValue("c")}

	cfg := DefaultConfig()
	cfg.Resolve()
	cfg.Dictionary.MaxCardinality = 2
	if _, err := dict.BuildFromValues(types.TypeString, values, cfg.BuildOptions()); !errors.Is(err, dicterrors.ErrDomainTooLarge) {
		t.Fatalf("expected domain too large with a limit of 2, got %v", err)
	}

	cfg.Dictionary.MaxCardinality = -1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("negative max_cardinality should be valid: %v", err)
	}
	d, err := dict.BuildFromValues(types.TypeString, values, cfg.BuildOptions())
	if err != nil {
		t.Fatalf("unlimited build failed: %v", err)
	}
	if d.Len() != 3 {
		t.Errorf("expected 3 values, got %d", d.Len())
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segdict.yaml")
	content := `
data_dir: /var/lib/segdict
storage:
  type: s3
  s3:
    bucket: dicts
    endpoint: http://localhost:9000
    use_path_style: true
dictionary:
  max_cardinality: 1000
  null_sentinel: true
  compression: snappy
coordinator:
  concurrency: 8
log:
  level: debug
  format: console
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should be valid: %v", err)
	}
	if cfg.Storage.S3.Bucket != "dicts" || !cfg.Storage.S3.UsePathStyle {
		t.Errorf("s3 settings not loaded: %+v", cfg.Storage.S3)
	}
	if !cfg.Dictionary.NullSentinel || cfg.Dictionary.MaxCardinality != 1000 {
		t.Errorf("dictionary settings not loaded: %+v", cfg.Dictionary)
	}
	if cfg.Log.Level != zapcore.DebugLevel {
		t.Errorf("log level = %v, want debug", cfg.Log.Level)
	}
	// Unset keys keep their defaults.
	if cfg.Shard.NullToken != `\N` {
		t.Errorf("null token = %q, want default", cfg.Shard.NullToken)
	}

	so := cfg.StorageOptions()
	if so.Bucket != "dicts" || so.S3.Region != "us-east-1" || !so.S3.UsePathStyle {
		t.Errorf("unexpected storage options: %+v", so)
	}
	if cfg.BuildOptions().Compression != dict.MethodSnappy {
		t.Error("compression should be snappy")
	}
}

func TestLoadFromFile_JSONAndUnsupported(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "segdict.json")
	if err := os.WriteFile(jsonPath, []byte(`{"coordinator": {"concurrency": 2}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(jsonPath)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Coordinator.Concurrency != 2 {
		t.Errorf("concurrency = %d, want 2", cfg.Coordinator.Concurrency)
	}

	tomlPath := filepath.Join(dir, "segdict.toml")
	if err := os.WriteFile(tomlPath, []byte(""), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(tomlPath); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SEGDICT_STORAGE_TYPE", "s3")
	t.Setenv("SEGDICT_S3_BUCKET", "env-bucket")
	t.Setenv("SEGDICT_DICTIONARY_MAX_CARDINALITY", "42")
	t.Setenv("SEGDICT_DICTIONARY_NULL_SENTINEL", "true")
	t.Setenv("SEGDICT_COORDINATOR_CONCURRENCY", "3")
	t.Setenv("SEGDICT_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	if err := LoadFromEnv(cfg); err != nil {
		t.Fatalf("load from env failed: %v", err)
	}
	if cfg.Storage.Type != "s3" || cfg.Storage.S3.Bucket != "env-bucket" {
		t.Errorf("storage not overridden: %+v", cfg.Storage)
	}
	if cfg.Dictionary.MaxCardinality != 42 || !cfg.Dictionary.NullSentinel {
		t.Errorf("dictionary not overridden: %+v", cfg.Dictionary)
	}
	if cfg.Coordinator.Concurrency != 3 {
		t.Errorf("concurrency = %d, want 3", cfg.Coordinator.Concurrency)
	}
	if cfg.Log.Level != zapcore.WarnLevel {
		t.Errorf("log level = %v, want warn", cfg.Log.Level)
	}
}

func TestLoadFromEnv_BadInteger(t *testing.T) {
	t.Setenv("SEGDICT_COORDINATOR_CONCURRENCY", "many")
	err := LoadFromEnv(DefaultConfig())
	var de *dicterrors.DictError
	if !errors.As(err, &de) || de.Code != dicterrors.CodeInvalidConfig {
		t.Errorf("expected invalid config error, got %v", err)
	}
}
