// Package coordinator decides, per column of a segment, whether an existing
// dictionary is reused or a new one is built and published.
//
// Each column moves through PROBING, then REUSING or BUILDING, then DONE.
// A present artifact is always reused and its shards are never read. A
// present but unreadable artifact fails the column instead of being rebuilt.
package coordinator

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arkilian/segdict/internal/dict"
	dicterrors "github.com/arkilian/segdict/internal/errors"
	"github.com/arkilian/segdict/internal/manifest"
	"github.com/arkilian/segdict/pkg/types"
)

// DefaultConcurrency is the number of columns processed at once when unset.
const DefaultConcurrency = 4

// State is a step of a column's pipeline.
type State string

const (
	StateProbing  State = "PROBING"
	StateReusing  State = "REUSING"
	StateBuilding State = "BUILDING"
	StateDone     State = "DONE"
)

// Outcome is how a column's pipeline ended.
type Outcome string

const (
	OutcomeBuilt  Outcome = "built"
	OutcomeReused Outcome = "reused"
	OutcomeFailed Outcome = "failed"
)

// DistinctColumnValuesProvider returns a column's sorted value shards.
type DistinctColumnValuesProvider interface {
	DistinctValuesFor(ctx context.Context, col types.ColumnRef) ([]iter.Seq2[types.Value, error], error)
}

// DictionaryProvider returns a column's existing dictionary, if any.
type DictionaryProvider interface {
	DictionaryFor(ctx context.Context, col types.ColumnRef) (dict.Dictionary, bool, error)
}

// DictionaryPublisher stores a newly built dictionary for a column.
type DictionaryPublisher interface {
	Location(col types.ColumnRef) string
	Publish(ctx context.Context, col types.ColumnRef, d dict.Dictionary) (string, error)
}

// Recorder stores the outcome of a column in the segment catalog.
type Recorder interface {
	RecordDictionary(ctx context.Context, rec manifest.DictionaryRecord) error
}

// Segment names the columns to encode for one segment.
type Segment struct {
	Cube    string
	Name    string
	Columns []types.ColumnRef
}

// ColumnResult reports how one column was processed.
type ColumnResult struct {
	Column      types.ColumnRef
	Outcome     Outcome
	Location    string
	Tag         string
	Cardinality int
	Duration    time.Duration

	// States lists the states the column passed through, in order.
	States []State

	// Dictionary is the reused or built dictionary; nil on failure.
	Dictionary dict.Dictionary

	// Err is the failure, identifying column and stage; nil on success.
	Err error
}

// SegmentResult is the result of every column of a segment, in column order.
type SegmentResult struct {
	BuildID string
	Columns []*ColumnResult
}

// Options configures a Coordinator.
type Options struct {
	// Concurrency bounds how many columns run at once.
	Concurrency int

	// Recorder, when set, receives every successful column.
	Recorder Recorder

	// Metrics, when set, observes every column.
	Metrics *Metrics
}

// Coordinator runs the probe, build and publish pipeline for columns.
type Coordinator struct {
	values    DistinctColumnValuesProvider
	dicts     DictionaryProvider
	publisher DictionaryPublisher
	builder   *dict.Builder
	opts      Options
	logger    *zap.Logger
}

// New creates a coordinator.
func New(values DistinctColumnValuesProvider, dicts DictionaryProvider, publisher DictionaryPublisher,
	builder *dict.Builder, opts Options, logger *zap.Logger) *Coordinator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		values:    values,
		dicts:     dicts,
		publisher: publisher,
		builder:   builder,
		opts:      opts,
		logger:    logger,
	}
}

// ProcessColumn probes col's artifact and reuses it, or builds and publishes
// a new dictionary when none exists. The returned error equals result.Err.
func (c *Coordinator) ProcessColumn(ctx context.Context, col types.ColumnRef) (*ColumnResult, error) {
	result, err := c.processColumn(ctx, col)
	c.opts.Metrics.observe(result)
	return result, err
}

// processColumn runs the pipeline of one column. Callers observe metrics.
func (c *Coordinator) processColumn(ctx context.Context, col types.ColumnRef) (*ColumnResult, error) {
	start := time.Now()
	identity := col.Identity()
	result := &ColumnResult{Column: col, Location: c.publisher.Location(col)}
	logger := c.logger.With(zap.String("column", identity))

	fail := func(err error, stage dicterrors.Stage) (*ColumnResult, error) {
		result.Outcome = OutcomeFailed
		result.Err = dicterrors.AtStage(err, identity, stage)
		result.Duration = time.Since(start)
		logger.Error("column failed",
			zap.String("stage", string(dicterrors.GetStage(result.Err))),
			zap.Error(result.Err),
		)
		return result, result.Err
	}

	result.States = append(result.States, StateProbing)
	d, ok, err := c.dicts.DictionaryFor(ctx, col)
	if err != nil {
		return fail(err, dicterrors.StageProbe)
	}

	if ok {
		result.States = append(result.States, StateReusing)
		result.Outcome = OutcomeReused
	} else {
		result.States = append(result.States, StateBuilding)
		shards, err := c.values.DistinctValuesFor(ctx, col)
		if err != nil {
			return fail(err, dicterrors.StageRead)
		}
		if d, err = c.builder.Build(ctx, col, shards); err != nil {
			return fail(err, dicterrors.StageBuild)
		}
		if result.Location, err = c.publisher.Publish(ctx, col, d); err != nil {
			return fail(err, dicterrors.StagePersist)
		}
		result.Outcome = OutcomeBuilt
	}

	result.States = append(result.States, StateDone)
	result.Dictionary = d
	result.Tag = d.Tag()
	result.Cardinality = d.Len()
	result.Duration = time.Since(start)
	logger.Info("column done",
		zap.String("outcome", string(result.Outcome)),
		zap.String("location", result.Location),
		zap.String("tag", result.Tag),
		zap.Int("cardinality", result.Cardinality),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// ProcessSegment processes every column of seg with bounded concurrency.
// A failing column does not stop the others; the returned error combines
// every column failure and the result always holds one entry per column.
func (c *Coordinator) ProcessSegment(ctx context.Context, seg Segment) (*SegmentResult, error) {
	res := &SegmentResult{
		BuildID: uuid.NewString(),
		Columns: make([]*ColumnResult, len(seg.Columns)),
	}
	c.logger.Info("processing segment",
		zap.String("cube", seg.Cube),
		zap.String("segment", seg.Name),
		zap.String("build_id", res.BuildID),
		zap.Int("columns", len(seg.Columns)),
	)

	// A plain Group never cancels ctx, so every column runs to completion.
	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i, col := range seg.Columns {
		g.Go(func() error {
			r, err := c.processColumn(ctx, col)
			if err == nil && c.opts.Recorder != nil {
				c.record(ctx, seg, res.BuildID, r)
			}
			c.opts.Metrics.observe(r)
			res.Columns[i] = r
			return r.Err
		})
	}
	if err := g.Wait(); err == nil {
		return res, nil
	}

	var errs error
	for _, r := range res.Columns {
		errs = multierr.Append(errs, r.Err)
	}
	return res, errs
}

// record stores a successful column in the catalog. A catalog failure
// fails the column at the record stage.
func (c *Coordinator) record(ctx context.Context, seg Segment, buildID string, r *ColumnResult) {
	err := c.opts.Recorder.RecordDictionary(ctx, manifest.DictionaryRecord{
		Cube:        seg.Cube,
		Segment:     seg.Name,
		Column:      r.Column.Identity(),
		DataType:    r.Column.Type.Name(),
		Location:    r.Location,
		Tag:         r.Tag,
		Cardinality: r.Cardinality,
		Outcome:     string(r.Outcome),
		BuildID:     buildID,
		RecordedAt:  time.Now().UTC(),
	})
	if err != nil {
		r.Outcome = OutcomeFailed
		r.Err = dicterrors.AtStage(err, r.Column.Identity(), dicterrors.StageRecord)
		c.logger.Error("failed to record dictionary",
			zap.String("column", r.Column.Identity()),
			zap.Error(r.Err),
		)
	}
}
