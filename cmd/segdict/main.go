// Package main implements the segdict binary.
// For one segment it reuses or builds the dictionary of every listed column
// and publishes new dictionaries next to the column shards.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/arkilian/segdict/internal/app"
	"github.com/arkilian/segdict/internal/config"
	"github.com/arkilian/segdict/internal/coordinator"
	"github.com/arkilian/segdict/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command line flags
	var (
		configFile  string
		dataDir     string
		cube        string
		segment     string
		input       string
		columnsFile string
		catalogPath string
		concurrency int
		logLevel    string
		metricsFile string
		reconcile   bool
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for local data files")
	flag.StringVar(&cube, "cube", "", "Cube the segment belongs to")
	flag.StringVar(&segment, "segment", "", "Segment name")
	flag.StringVar(&input, "input", "", "Base path of the column shards; artifacts are published here")
	flag.StringVar(&columnsFile, "columns", "", "YAML file listing the dictionary columns")
	flag.StringVar(&catalogPath, "catalog", "", "Path to the segment catalog database")
	flag.IntVar(&concurrency, "concurrency", 0, "Columns processed at once")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	flag.BoolVar(&reconcile, "reconcile", false, "Check the catalog against stored artifacts under --input instead of building")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "segdict - segment dictionary builder\n\n")
		fmt.Fprintf(os.Stderr, "Usage: segdict --cube C --segment S --input PATH --columns cols.yaml [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  segdict --cube sales --segment 20260101_20260102 --input cubes/sales/dict --columns cols.yaml\n")
		fmt.Fprintf(os.Stderr, "  segdict --config /etc/segdict/config.yaml --catalog /var/lib/segdict/segments.db --reconcile --input cubes\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  SEGDICT_DATA_DIR                    Base directory for local data files\n")
		fmt.Fprintf(os.Stderr, "  SEGDICT_STORAGE_TYPE                Storage type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  SEGDICT_S3_BUCKET                   S3 bucket\n")
		fmt.Fprintf(os.Stderr, "  SEGDICT_DICTIONARY_MAX_CARDINALITY  Distinct value limit per column\n")
		fmt.Fprintf(os.Stderr, "  SEGDICT_DICTIONARY_COMPRESSION      Artifact compression (none, snappy, lz4)\n")
		fmt.Fprintf(os.Stderr, "  SEGDICT_LOG_LEVEL                   Log level\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		return 0
	}

	if showVersion {
		fmt.Printf("segdict version %s (commit: %s)\n", version, commit)
		return 0
	}

	// Load configuration
	cfg, err := loadConfig(configFile, dataDir, catalogPath, concurrency, logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 2
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 2
	}
	logger = logger.With(zap.String("version", version))

	if input == "" {
		fmt.Fprintln(os.Stderr, "--input is required")
		flag.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	reg := prometheus.NewRegistry()
	application, err := app.New(ctx, cfg, logger, reg)
	if err != nil {
		logger.Error("failed to create application", zap.Error(err))
		return 2
	}
	defer application.Close()

	if reconcile {
		return runReconcile(ctx, application, input, logger)
	}

	if cube == "" || segment == "" || columnsFile == "" {
		fmt.Fprintln(os.Stderr, "--cube, --segment and --columns are required")
		flag.Usage()
		return 2
	}
	columns, err := app.LoadColumns(columnsFile)
	if err != nil {
		logger.Error("failed to load columns", zap.Error(err))
		return 2
	}

	res, err := application.BuildSegment(ctx, app.Job{
		Cube:     cube,
		Segment:  segment,
		BasePath: input,
		Columns:  columns,
	})
	printResults(res)

	if metricsFile != "" {
		if werr := prometheus.WriteToTextfile(metricsFile, reg); werr != nil {
			logger.Warn("failed to write metrics file", zap.String("path", metricsFile), zap.Error(werr))
		}
	}

	if err != nil {
		logger.Error("segment failed",
			zap.String("cube", cube),
			zap.String("segment", segment),
			zap.Int("failed_columns", len(multierr.Errors(err))),
			zap.Error(err),
		)
		return 1
	}
	return 0
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, catalogPath string, concurrency int, logLevel string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	// Apply command line flags (highest priority)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if catalogPath != "" {
		cfg.Catalog.Path = catalogPath
	}
	if concurrency > 0 {
		cfg.Coordinator.Concurrency = concurrency
	}
	if logLevel != "" {
		level, err := zapcore.ParseLevel(logLevel)
		if err != nil {
			return nil, err
		}
		cfg.Log.Level = level
	}

	return cfg, nil
}

func printResults(res *coordinator.SegmentResult) {
	if res == nil {
		return
	}
	for _, r := range res.Columns {
		if r.Err != nil {
			fmt.Printf("%-32s %-7s %v\n", r.Column.Identity(), r.Outcome, r.Err)
			continue
		}
		fmt.Printf("%-32s %-7s %10d  %s\n", r.Column.Identity(), r.Outcome, r.Cardinality, r.Location)
	}
}

func runReconcile(ctx context.Context, application *app.App, prefix string, logger *zap.Logger) int {
	report, err := application.Reconcile(ctx, prefix)
	if err != nil {
		logger.Error("reconcile failed", zap.Error(err))
		return 2
	}
	for _, d := range report.DanglingEntries {
		fmt.Printf("dangling   %s/%s %s -> %s\n", d.Cube, d.Segment, d.Column, d.Location)
	}
	for _, o := range report.OrphanedArtifacts {
		fmt.Printf("orphaned   %s\n", o)
	}
	for _, tmp := range report.LeftoverTemporaries {
		fmt.Printf("temporary  %s\n", tmp)
	}
	fmt.Printf("checked %d catalog entries, %d storage objects\n",
		report.TotalCatalogEntries, report.TotalStorageObjects)
	if report.HasIssues() {
		return 1
	}
	return 0
}
