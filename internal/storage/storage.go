// Package storage provides the object storage abstraction segdict reads shards
// from and publishes dictionary artifacts to.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
	ErrRenameFailed   = errors.New("rename failed")
)

// ObjectStorage abstracts the distributed filesystem.
// Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Get opens an object for reading. Returns ErrObjectNotFound if it does not exist.
	Get(ctx context.Context, objectPath string) (io.ReadCloser, error)

	// Put writes the full content of r to objectPath, replacing any existing object.
	// Put makes no atomicity promise; publish through Rename.
	Put(ctx context.Context, objectPath string, r io.Reader) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// Rename atomically moves src onto dst. Readers of dst observe either the
	// previous object (or its absence) or the complete src content.
	Rename(ctx context.Context, src, dst string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// Config selects and configures an ObjectStorage implementation.
type Config struct {
	// Type is the storage type: local, s3
	Type string
	// Path is the root directory for local storage
	Path string
	// Bucket is the S3 bucket for s3 storage
	Bucket string
	// S3 holds the S3 client settings
	S3 S3Config
}

// New creates the ObjectStorage described by cfg.
func New(ctx context.Context, cfg Config) (ObjectStorage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(cfg.Path)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("storage: s3 bucket is required")
		}
		return NewS3Storage(ctx, cfg.Bucket, cfg.S3)
	default:
		return nil, fmt.Errorf("storage: unknown storage type %q", cfg.Type)
	}
}
