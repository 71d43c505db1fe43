// Package app wires storage, the dictionary store, the shard reader, the
// coordinator and the segment catalog into one segdict job.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/arkilian/segdict/internal/config"
	"github.com/arkilian/segdict/internal/coordinator"
	"github.com/arkilian/segdict/internal/dict"
	"github.com/arkilian/segdict/internal/manifest"
	"github.com/arkilian/segdict/internal/shard"
	"github.com/arkilian/segdict/internal/storage"
	"github.com/arkilian/segdict/internal/store"
	"github.com/arkilian/segdict/pkg/types"
)

// App holds the shared resources of a segdict run.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	// Shared resources
	storage storage.ObjectStorage
	store   *store.Store
	catalog manifest.Catalog // nil when no catalog path is configured
	builder *dict.Builder
	metrics *coordinator.Metrics

	closeOnce sync.Once
}

// New resolves and validates cfg and initializes shared resources.
// A nil registerer disables metrics.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	// Resolve paths and validate
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}

	if err := a.initSharedResources(ctx, reg); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize shared resources: %w", err)
	}
	return a, nil
}

// initSharedResources initializes storage, the dictionary store and the catalog.
func (a *App) initSharedResources(ctx context.Context, reg prometheus.Registerer) error {
	var err error

	a.storage, err = storage.New(ctx, a.cfg.StorageOptions())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	fields := []zap.Field{zap.String("type", a.cfg.Storage.Type)}
	if a.cfg.Storage.Type == "s3" {
		fields = append(fields,
			zap.String("bucket", a.cfg.Storage.S3.Bucket),
			zap.String("region", a.cfg.Storage.S3.Region),
			zap.String("endpoint", a.cfg.Storage.S3.Endpoint),
		)
	} else {
		fields = append(fields, zap.String("path", a.cfg.Storage.Path))
	}
	a.logger.Info("storage initialized", fields...)

	a.store, err = store.New(a.storage, dict.NewRegistry(),
		store.Options{CacheSize: a.cfg.Dictionary.CacheSize}, a.logger.Named("store"))
	if err != nil {
		return err
	}
	a.builder = dict.NewBuilder(a.cfg.BuildOptions(), a.logger.Named("builder"))

	if a.cfg.Catalog.Path != "" {
		a.catalog, err = manifest.NewCatalog(a.cfg.Catalog.Path)
		if err != nil {
			return fmt.Errorf("failed to initialize segment catalog: %w", err)
		}
		a.logger.Info("segment catalog initialized", zap.String("path", a.cfg.Catalog.Path))
	}

	if reg != nil {
		a.metrics = coordinator.NewMetrics(reg)
	}
	return nil
}

// Job describes one segment's dictionary build.
type Job struct {
	Cube    string
	Segment string

	// BasePath is where the column shards live and where artifacts are published.
	BasePath string

	Columns []types.ColumnRef
}

// BuildSegment reuses or builds the dictionary of every column of job.
func (a *App) BuildSegment(ctx context.Context, job Job) (*coordinator.SegmentResult, error) {
	reader := shard.NewReader(a.storage, job.BasePath,
		shard.Options{NullToken: a.cfg.Shard.NullToken}, a.logger.Named("shard"))
	provider := store.NewProvider(a.store, job.BasePath)

	opts := coordinator.Options{
		Concurrency: a.cfg.Coordinator.Concurrency,
		Metrics:     a.metrics,
	}
	if a.catalog != nil {
		opts.Recorder = a.catalog
	}
	c := coordinator.New(reader, provider, provider, a.builder, opts, a.logger.Named("coordinator"))

	return c.ProcessSegment(ctx, coordinator.Segment{
		Cube:    job.Cube,
		Name:    job.Segment,
		Columns: job.Columns,
	})
}

// Reconcile compares the catalog against the artifacts stored under prefix.
func (a *App) Reconcile(ctx context.Context, prefix string) (*manifest.ReconciliationReport, error) {
	if a.catalog == nil {
		return nil, fmt.Errorf("reconcile requires a segment catalog (catalog.path)")
	}
	return manifest.Reconcile(ctx, a.catalog, a.storage, prefix)
}

// Catalog returns the segment catalog, or nil when none is configured.
func (a *App) Catalog() manifest.Catalog {
	return a.catalog
}

// Close releases all shared resources.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.catalog != nil {
			err = a.catalog.Close()
		}
		_ = a.logger.Sync()
	})
	return err
}

// LoadColumns reads a YAML list of column definitions.
func LoadColumns(path string) ([]types.ColumnRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns file: %w", err)
	}
	var defs []types.ColumnDef
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse columns file: %w", err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("columns file %s lists no column", path)
	}

	cols := make([]types.ColumnRef, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		col, err := def.Ref()
		if err != nil {
			return nil, err
		}
		if seen[col.Identity()] {
			return nil, fmt.Errorf("column %s listed twice", col.Identity())
		}
		seen[col.Identity()] = true
		cols = append(cols, col)
	}
	return cols, nil
}
