package types

import (
	"fmt"
	"strings"
)

// ColumnDef declares a column as it appears in a segment's column list.
type ColumnDef struct {
	// Table is the table the column belongs to
	Table string `json:"table" yaml:"table"`

	// Name is the column name
	Name string `json:"name" yaml:"name"`

	// Type is the declared SQL type name, e.g. varchar(256), bigint, date
	Type string `json:"type" yaml:"type"`

	// Nullable indicates whether the column can contain NULL values
	Nullable bool `json:"nullable" yaml:"nullable"`
}

// Ref resolves the declared type name and returns the column reference.
func (d ColumnDef) Ref() (ColumnRef, error) {
	if strings.TrimSpace(d.Name) == "" {
		return ColumnRef{}, fmt.Errorf("column name is required")
	}
	dt, err := ParseDataType(d.Type)
	if err != nil {
		return ColumnRef{}, fmt.Errorf("column %s: %w", d.Name, err)
	}
	return ColumnRef{Table: d.Table, Name: d.Name, Type: dt, Nullable: d.Nullable}, nil
}

// ColumnRef identifies a column within a segment together with its semantic type.
type ColumnRef struct {
	Table    string
	Name     string
	Type     DataType
	Nullable bool
}

// Identity returns the stable key used to derive shard and artifact paths.
// The same column always yields the same identity.
func (c ColumnRef) Identity() string {
	if c.Table == "" {
		return strings.ToUpper(c.Name)
	}
	return strings.ToUpper(c.Table + "." + c.Name)
}

func (c ColumnRef) String() string {
	return fmt.Sprintf("%s(%s)", c.Identity(), c.Type)
}
