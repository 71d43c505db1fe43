package manifest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arkilian/segdict/internal/storage"
	"github.com/arkilian/segdict/internal/store"
)

// ReconciliationReport contains the results of a catalog-storage reconciliation.
type ReconciliationReport struct {
	// DanglingEntries are catalog records whose artifact does not exist in storage.
	DanglingEntries []DanglingEntry
	// OrphanedArtifacts are artifacts no catalog record points at.
	OrphanedArtifacts []string
	// LeftoverTemporaries are temporary artifacts of interrupted publishes.
	LeftoverTemporaries []string
	// TotalCatalogEntries is the number of records checked.
	TotalCatalogEntries int
	// TotalStorageObjects is the number of storage objects scanned.
	TotalStorageObjects int
	// RunAt is when the reconciliation was performed.
	RunAt time.Time
}

// DanglingEntry represents a catalog record pointing to a missing artifact.
type DanglingEntry struct {
	Cube     string
	Segment  string
	Column   string
	Location string
}

// HasIssues returns true if the report contains any inconsistency.
func (r *ReconciliationReport) HasIssues() bool {
	return len(r.DanglingEntries) > 0 || len(r.OrphanedArtifacts) > 0 || len(r.LeftoverTemporaries) > 0
}

// Reconcile checks consistency between the catalog and object storage.
// Only artifacts are considered; shard objects under prefix are ignored.
func Reconcile(ctx context.Context, catalog CatalogReader, objects storage.ObjectStorage, storagePrefix string) (*ReconciliationReport, error) {
	report := &ReconciliationReport{
		RunAt: time.Now(),
	}

	// Step 1: Get all records from the catalog.
	records, err := catalog.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list catalog records: %w", err)
	}
	report.TotalCatalogEntries = len(records)

	// Several segments may share one artifact.
	tracked := make(map[string]bool)
	for _, rec := range records {
		tracked[rec.Location] = true
	}

	// Step 2: Check each referenced artifact for existence (dangling detection).
	checked := make(map[string]bool)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		exists, ok := checked[rec.Location]
		if !ok {
			exists, err = objects.Exists(ctx, rec.Location)
			if err != nil {
				return nil, fmt.Errorf("reconciliation: failed to check artifact %s: %w", rec.Location, err)
			}
			checked[rec.Location] = exists
		}
		if !exists {
			report.DanglingEntries = append(report.DanglingEntries, DanglingEntry{
				Cube:     rec.Cube,
				Segment:  rec.Segment,
				Column:   rec.Column,
				Location: rec.Location,
			})
		}
	}

	// Step 3: List all objects in storage and find orphans.
	paths, err := objects.ListObjects(ctx, storagePrefix)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list storage objects: %w", err)
	}
	report.TotalStorageObjects = len(paths)

	for _, objPath := range paths {
		switch {
		case store.IsTemporary(objPath):
			report.LeftoverTemporaries = append(report.LeftoverTemporaries, objPath)
		case strings.HasSuffix(objPath, store.ArtifactSuffix) && !tracked[objPath]:
			report.OrphanedArtifacts = append(report.OrphanedArtifacts, objPath)
		}
	}

	return report, nil
}
