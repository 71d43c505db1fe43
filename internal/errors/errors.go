// Package errors provides structured error types for segdict.
// All errors include a category, code, message, and retryable flag; errors
// raised for a column also carry the column identity and the failing stage so
// an external driver can report a precise cause.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryShard    ErrorCategory = "SHARD"
	ErrCategoryBuild    ErrorCategory = "BUILD"
	ErrCategoryCodec    ErrorCategory = "CODEC"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategoryCatalog  ErrorCategory = "CATALOG"
	ErrCategoryConfig   ErrorCategory = "CONFIG"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Shard codes
	CodeShardUnavailable = "SHARD_UNAVAILABLE"
	CodeMalformedShard   = "MALFORMED_SHARD"

	// Build codes
	CodeDomainTooLarge = "DOMAIN_TOO_LARGE"

	// Codec codes
	CodeUnknownDictionaryType = "UNKNOWN_DICTIONARY_TYPE"
	CodeCorruptArtifact       = "CORRUPT_ARTIFACT"

	// Storage codes
	CodeReadFailed    = "READ_FAILED"
	CodeWriteFailed   = "WRITE_FAILED"
	CodePublishFailed = "PUBLISH_FAILED"

	// Catalog codes
	CodeRecordFailed = "RECORD_FAILED"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Stage names the step of a column's pipeline that failed.
type Stage string

const (
	StageProbe   Stage = "probe"
	StageRead    Stage = "read"
	StageBuild   Stage = "build"
	StagePersist Stage = "persist"
	StageRecord  Stage = "record"
)

// Sentinels for errors.Is matching by category and code.
var (
	ErrShardUnavailable      = New(ErrCategoryShard, CodeShardUnavailable, "no shard for column")
	ErrMalformedShard        = New(ErrCategoryShard, CodeMalformedShard, "malformed shard record")
	ErrDomainTooLarge        = New(ErrCategoryBuild, CodeDomainTooLarge, "distinct value count exceeds limit")
	ErrUnknownDictionaryType = New(ErrCategoryCodec, CodeUnknownDictionaryType, "unknown dictionary type")
	ErrCorruptArtifact       = New(ErrCategoryCodec, CodeCorruptArtifact, "dictionary artifact is unreadable")
)

// DictError is the structured error type used throughout the system.
type DictError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Column    string
	Stage     Stage
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *DictError) Error() string {
	prefix := fmt.Sprintf("[%s:%s]", e.Category, e.Code)
	if e.Column != "" {
		prefix += fmt.Sprintf(" column %s", e.Column)
	}
	if e.Stage != "" {
		prefix += fmt.Sprintf(" (%s)", e.Stage)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *DictError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *DictError) Is(target error) bool {
	var t *DictError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new DictError.
func New(category ErrorCategory, code, message string) *DictError {
	return &DictError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new DictError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *DictError {
	return &DictError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DictError) WithDetails(details map[string]interface{}) *DictError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithColumn returns a copy of the error attributed to a column.
func (e *DictError) WithColumn(column string) *DictError {
	cp := *e
	cp.Column = column
	return &cp
}

// AtStage attributes err to a column and pipeline stage. A DictError keeps its
// category and code; anything else becomes an INTERNAL error. Column and stage
// already set deeper in the chain are preserved.
func AtStage(err error, column string, stage Stage) error {
	if err == nil {
		return nil
	}
	var de *DictError
	if !errors.As(err, &de) {
		de = Wrap(ErrCategoryInternal, CodeUnexpected, "unexpected failure", err)
		de.Column, de.Stage = column, stage
		return de
	}
	cp := *de
	if cp.Column == "" {
		cp.Column = column
	}
	if cp.Stage == "" {
		cp.Stage = stage
	}
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var de *DictError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a DictError.
func GetCategory(err error) ErrorCategory {
	var de *DictError
	if errors.As(err, &de) {
		return de.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a DictError.
func GetCode(err error) string {
	var de *DictError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// GetStage extracts the failing stage from an error chain.
func GetStage(err error) Stage {
	var de *DictError
	if errors.As(err, &de) {
		return de.Stage
	}
	return ""
}

// isRetryable marks storage I/O as transient. segdict never retries by
// itself; the flag is a hint for the orchestrator that re-invokes the job.
func isRetryable(category ErrorCategory, code string) bool {
	if category != ErrCategoryStorage {
		return false
	}
	switch code {
	case CodeReadFailed, CodeWriteFailed, CodePublishFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewShardUnavailable(column, path string) *DictError {
	e := New(ErrCategoryShard, CodeShardUnavailable, fmt.Sprintf("no shard found under %s", path))
	e.Column, e.Stage = column, StageRead
	return e
}

func NewMalformedShard(column, message string, cause error) *DictError {
	e := Wrap(ErrCategoryShard, CodeMalformedShard, message, cause)
	e.Column, e.Stage = column, StageRead
	return e
}

func NewDomainTooLarge(column string, limit int) *DictError {
	e := New(ErrCategoryBuild, CodeDomainTooLarge, fmt.Sprintf("more than %d distinct values", limit))
	e.Column, e.Stage = column, StageBuild
	return e
}

func NewUnknownDictionaryType(tag string) *DictError {
	return New(ErrCategoryCodec, CodeUnknownDictionaryType, fmt.Sprintf("no decoder registered for tag %q", tag))
}

func NewCorruptArtifact(location string, cause error) *DictError {
	e := Wrap(ErrCategoryCodec, CodeCorruptArtifact, fmt.Sprintf("artifact %s cannot be decoded", location), cause)
	e.Stage = StageProbe
	return e
}

func NewStorageError(code, message string, cause error) *DictError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewCatalogError(message string, cause error) *DictError {
	return Wrap(ErrCategoryCatalog, CodeRecordFailed, message, cause)
}

func NewConfigError(message string) *DictError {
	return New(ErrCategoryConfig, CodeInvalidConfig, message)
}

func NewInternalError(message string, cause error) *DictError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
