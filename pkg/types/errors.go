package types

import "errors"

// Value-related errors
var (
	// ErrUnknownDataType is returned when a column type name has no semantic type
	ErrUnknownDataType = errors.New("unknown data type")

	// ErrInvalidValue is returned when a record cannot be parsed as the declared type
	ErrInvalidValue = errors.New("invalid value")
)
