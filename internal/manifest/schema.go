// Package manifest provides the segment catalog recording which dictionary
// each column of each segment uses.
package manifest

// Schema contains the SQL schema definitions for the segment catalog.
// The catalog is a SQLite database; every row describes one column of one
// segment and the artifact its dictionary lives in.

// CreateDictionariesTableSQL creates the core dictionaries table.
const CreateDictionariesTableSQL = `
CREATE TABLE IF NOT EXISTS dictionaries (
    cube TEXT NOT NULL,
    segment TEXT NOT NULL,
    column_identity TEXT NOT NULL,
    data_type TEXT NOT NULL,
    location TEXT NOT NULL,
    tag TEXT NOT NULL,
    cardinality INTEGER NOT NULL,
    outcome TEXT NOT NULL,
    build_id TEXT NOT NULL,
    recorded_at INTEGER NOT NULL,
    PRIMARY KEY (cube, segment, column_identity)
)`

// CreateDictionariesIndexesSQL creates indexes for artifact and build lookups.
var CreateDictionariesIndexesSQL = []string{
	// Segments sharing an artifact
	`CREATE INDEX IF NOT EXISTS idx_dictionaries_location ON dictionaries(location)`,

	`CREATE INDEX IF NOT EXISTS idx_dictionaries_build ON dictionaries(build_id)`,
}

// AllSchemaSQL returns all SQL statements needed to initialize the catalog.
func AllSchemaSQL() []string {
	statements := []string{CreateDictionariesTableSQL}
	return append(statements, CreateDictionariesIndexesSQL...)
}
