package manifest

import "context"

// CatalogReader is the read-only view of the segment catalog.
// SQLiteCatalog implements this interface.
type CatalogReader interface {
	// GetDictionary returns the record of one column of a segment.
	GetDictionary(ctx context.Context, cube, segment, column string) (*DictionaryRecord, error)

	// ListSegment returns every recorded column of a segment.
	ListSegment(ctx context.Context, cube, segment string) ([]*DictionaryRecord, error)

	// SegmentsUsing returns every record that points at an artifact location.
	SegmentsUsing(ctx context.Context, location string) ([]*DictionaryRecord, error)

	// ListAll returns every record in the catalog.
	ListAll(ctx context.Context) ([]*DictionaryRecord, error)
}
