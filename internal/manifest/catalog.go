package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dicterrors "github.com/arkilian/segdict/internal/errors"
)

// ErrRecordNotFound is returned when no record matches a lookup.
var ErrRecordNotFound = errors.New("manifest: record not found")

// Catalog records dictionary outcomes per segment column.
type Catalog interface {
	CatalogReader

	// RecordDictionary inserts or replaces the record of a segment column.
	RecordDictionary(ctx context.Context, rec DictionaryRecord) error

	// DeleteSegment removes every record of a segment.
	DeleteSegment(ctx context.Context, cube, segment string) (int64, error)

	// Close closes the catalog database connection.
	Close() error
}

// DictionaryRecord describes the dictionary used by one column of one segment.
type DictionaryRecord struct {
	Cube        string
	Segment     string
	Column      string
	DataType    string
	Location    string
	Tag         string
	Cardinality int
	Outcome     string
	BuildID     string
	RecordedAt  time.Time
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)

	upsertStmt *sql.Stmt
}

const selectColumns = `cube, segment, column_identity, data_type, location, tag,
	cardinality, outcome, build_id, recorded_at`

// NewCatalog opens (creating if needed) the SQLite catalog at dbPath.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	catalog := &SQLiteCatalog{db: db, dbPath: dbPath}

	// The schema must exist before the read-only pool opens the file.
	if err := catalog.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to initialize schema: %w", err)
	}

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	catalog.readDB = readDB

	upsertStmt, err := db.Prepare(`
		INSERT INTO dictionaries (` + selectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cube, segment, column_identity) DO UPDATE SET
			data_type = excluded.data_type,
			location = excluded.location,
			tag = excluded.tag,
			cardinality = excluded.cardinality,
			outcome = excluded.outcome,
			build_id = excluded.build_id,
			recorded_at = excluded.recorded_at`)
	if err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("manifest: failed to prepare upsert statement: %w", err)
	}
	catalog.upsertStmt = upsertStmt

	return catalog, nil
}

// initSchema creates tables and indexes if they don't exist.
func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// RecordDictionary inserts or replaces the record of a segment column.
func (c *SQLiteCatalog) RecordDictionary(ctx context.Context, rec DictionaryRecord) error {
	if rec.Cube == "" || rec.Segment == "" || rec.Column == "" {
		return dicterrors.NewCatalogError("cube, segment and column are required", nil)
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.upsertStmt.ExecContext(ctx,
		rec.Cube, rec.Segment, rec.Column, rec.DataType, rec.Location, rec.Tag,
		rec.Cardinality, rec.Outcome, rec.BuildID, rec.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return dicterrors.NewCatalogError(
			fmt.Sprintf("record %s/%s/%s", rec.Cube, rec.Segment, rec.Column), err)
	}
	return nil
}

// GetDictionary returns the record of one column of a segment, or
// ErrRecordNotFound.
func (c *SQLiteCatalog) GetDictionary(ctx context.Context, cube, segment, column string) (*DictionaryRecord, error) {
	row := c.readDB.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM dictionaries WHERE cube = ? AND segment = ? AND column_identity = ?",
		cube, segment, column,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s/%s", ErrRecordNotFound, cube, segment, column)
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to get dictionary: %w", err)
	}
	return rec, nil
}

// ListSegment returns every recorded column of a segment ordered by column.
func (c *SQLiteCatalog) ListSegment(ctx context.Context, cube, segment string) ([]*DictionaryRecord, error) {
	return c.query(ctx,
		"SELECT "+selectColumns+" FROM dictionaries WHERE cube = ? AND segment = ? ORDER BY column_identity",
		cube, segment)
}

// SegmentsUsing returns every record pointing at location, ordered by
// cube and segment.
func (c *SQLiteCatalog) SegmentsUsing(ctx context.Context, location string) ([]*DictionaryRecord, error) {
	return c.query(ctx,
		"SELECT "+selectColumns+" FROM dictionaries WHERE location = ? ORDER BY cube, segment, column_identity",
		location)
}

// ListAll returns every record in the catalog.
func (c *SQLiteCatalog) ListAll(ctx context.Context) ([]*DictionaryRecord, error) {
	return c.query(ctx,
		"SELECT "+selectColumns+" FROM dictionaries ORDER BY cube, segment, column_identity")
}

// DeleteSegment removes every record of a segment and returns how many were removed.
func (c *SQLiteCatalog) DeleteSegment(ctx context.Context, cube, segment string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, "DELETE FROM dictionaries WHERE cube = ? AND segment = ?", cube, segment)
	if err != nil {
		return 0, dicterrors.NewCatalogError(fmt.Sprintf("delete %s/%s", cube, segment), err)
	}
	return res.RowsAffected()
}

// Close closes the catalog database connection.
func (c *SQLiteCatalog) Close() error {
	if c.upsertStmt != nil {
		c.upsertStmt.Close()
	}
	// Close read connection first, then write connection
	if err := c.readDB.Close(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}

func (c *SQLiteCatalog) query(ctx context.Context, query string, args ...interface{}) ([]*DictionaryRecord, error) {
	rows, err := c.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to query dictionaries: %w", err)
	}
	defer rows.Close()

	var records []*DictionaryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("manifest: failed to scan dictionary: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*DictionaryRecord, error) {
	var rec DictionaryRecord
	var recordedAt int64
	err := s.Scan(&rec.Cube, &rec.Segment, &rec.Column, &rec.DataType, &rec.Location, &rec.Tag,
		&rec.Cardinality, &rec.Outcome, &rec.BuildID, &recordedAt)
	if err != nil {
		return nil, err
	}
	rec.RecordedAt = time.UnixMilli(recordedAt).UTC()
	return &rec, nil
}
