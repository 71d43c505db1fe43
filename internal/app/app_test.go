package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/segdict/internal/config"
	"github.com/arkilian/segdict/internal/coordinator"
	"github.com/arkilian/segdict/pkg/types"
)

func writeShard(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func newTestApp(t *testing.T) (*App, *config.Config, *prometheus.Registry) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.Catalog.Path = filepath.Join(dir, "catalog", "segments.db")
	reg := prometheus.NewRegistry()

	a, err := New(context.Background(), cfg, nil, reg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, cfg, reg
}

func TestApp_BuildSegmentEndToEnd(t *testing.T) {
	a, cfg, reg := newTestApp(t)
	ctx := context.Background()

	writeShard(t, cfg.Storage.Path, "cube/seg1/SALES.REGION/part-0", "east\nnorth\n")
	writeShard(t, cfg.Storage.Path, "cube/seg1/SALES.REGION/part-1", "east\nwest\n")
	writeShard(t, cfg.Storage.Path, "cube/seg1/SALES.DAY/part-0", "2026-01-01\n2026-01-02\n")

	job := Job{
		Cube:     "sales",
		Segment:  "seg1",
		BasePath: "cube/seg1",
		Columns: []types.ColumnRef{
			{Table: "sales", Name: "region", Type: types.TypeString},
			{Table: "sales", Name: "day", Type: types.TypeDate},
		},
	}
	res, err := a.BuildSegment(ctx, job)
	require.NoError(t, err)
	require.Len(t, res.Columns, 2)
	assert.Equal(t, 3, res.Columns[0].Cardinality)
	assert.Equal(t, 2, res.Columns[1].Cardinality)

	records, err := a.Catalog().ListSegment(ctx, "sales", "seg1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "SALES.DAY", records[0].Column)
	assert.Equal(t, "cube/seg1/SALES.DAY.dict", records[0].Location)
	assert.Equal(t, "Date", records[0].DataType)

	// A second segment sharing the base path reuses both artifacts.
	job.Segment = "seg2"
	res, err = a.BuildSegment(ctx, job)
	require.NoError(t, err)
	for _, r := range res.Columns {
		assert.Equal(t, coordinator.OutcomeReused, r.Outcome)
	}

	users, err := a.Catalog().SegmentsUsing(ctx, "cube/seg1/SALES.REGION.dict")
	require.NoError(t, err)
	assert.Len(t, users, 2)

	count, err := testutil.GatherAndCount(reg, "segdict_columns_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count) // built and reused series

	report, err := a.Reconcile(ctx, "cube")
	require.NoError(t, err)
	assert.False(t, report.HasIssues())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Coordinator.Concurrency = 0
	_, err := New(context.Background(), cfg, nil, nil)
	assert.Error(t, err)
}

func TestLoadColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "columns.yaml")
	content := `
- table: sales
  name: region
  type: varchar(32)
  nullable: true
- table: sales
  name: qty
  type: bigint
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cols, err := LoadColumns(path)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, types.ColumnRef{Table: "sales", Name: "region", Type: types.TypeString, Nullable: true}, cols[0])
	assert.Equal(t, types.TypeInt64, cols[1].Type)

	dup := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte("- {name: a, type: int}\n- {name: A, type: int}\n"), 0644))
	_, err = LoadColumns(dup)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- {name: a, type: blob}\n"), 0644))
	_, err = LoadColumns(bad)
	assert.Error(t, err)
}
