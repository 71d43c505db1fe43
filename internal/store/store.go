// Package store probes and publishes encoded dictionary artifacts.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/arkilian/segdict/internal/dict"
	dicterrors "github.com/arkilian/segdict/internal/errors"
	"github.com/arkilian/segdict/internal/storage"
	"github.com/arkilian/segdict/pkg/types"
)

// ArtifactSuffix is appended to a column identity to form its artifact name.
const ArtifactSuffix = ".dict"

// tempInfix separates a location from the random part of its unpublished copy.
const tempInfix = ".tmp-"

// IsTemporary reports whether objectPath is the unpublished copy of an
// artifact written by Persist.
func IsTemporary(objectPath string) bool {
	return strings.Contains(objectPath, ArtifactSuffix+tempInfix)
}

// Options configures a Store.
type Options struct {
	// CacheSize is the number of decoded dictionaries kept in memory.
	// Zero disables the cache.
	CacheSize int
}

// Store reads and writes dictionary artifacts. Writes are published with a
// rename so a concurrent Probe sees either the previous state or the
// complete new artifact.
type Store struct {
	storage  storage.ObjectStorage
	registry *dict.Registry
	cache    *lru.Cache[string, dict.Dictionary]
	logger   *zap.Logger
}

// New creates a store. A nil registry means dict.NewRegistry().
func New(objects storage.ObjectStorage, registry *dict.Registry, opts Options, logger *zap.Logger) (*Store, error) {
	if registry == nil {
		registry = dict.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{storage: objects, registry: registry, logger: logger}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, dict.Dictionary](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("store: create cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Probe loads the dictionary at location. It returns ok=false, without error,
// when nothing exists there. An artifact that exists but cannot be decoded is
// reported as CORRUPT_ARTIFACT, never as absent.
func (s *Store) Probe(ctx context.Context, location string) (dict.Dictionary, bool, error) {
	if s.cache != nil {
		if d, ok := s.cache.Get(location); ok {
			exists, err := s.storage.Exists(ctx, location)
			if err != nil {
				return nil, false, probeError(location, err)
			}
			if exists {
				return d, true, nil
			}
			s.cache.Remove(location)
			return nil, false, nil
		}
	}

	rc, err := s.storage.Get(ctx, location)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, probeError(location, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, probeError(location, err)
	}
	d, err := s.registry.Decode(data)
	if err != nil {
		s.logger.Warn("corrupt dictionary artifact",
			zap.String("location", location),
			zap.Int("bytes", len(data)),
			zap.Error(err),
		)
		return nil, false, dicterrors.NewCorruptArtifact(location, err)
	}

	if s.cache != nil {
		s.cache.Add(location, d)
	}
	return d, true, nil
}

// Persist encodes d and publishes it at location, replacing any existing
// artifact. On failure the temporary object is removed and location is left
// as it was.
func (s *Store) Persist(ctx context.Context, location string, d dict.Dictionary) (err error) {
	data, err := dict.Encode(d)
	if err != nil {
		e := dicterrors.NewInternalError("encode dictionary", err)
		e.Stage = dicterrors.StagePersist
		return e
	}

	tmp := location + tempInfix + uuid.NewString()
	defer func() {
		if err == nil {
			return
		}
		// Clean up even if ctx was cancelled.
		if derr := s.storage.Delete(context.WithoutCancel(ctx), tmp); derr != nil {
			s.logger.Warn("failed to remove temporary artifact",
				zap.String("location", tmp),
				zap.Error(derr),
			)
		}
	}()

	if err := s.storage.Put(ctx, tmp, bytes.NewReader(data)); err != nil {
		e := dicterrors.NewStorageError(dicterrors.CodeWriteFailed, fmt.Sprintf("write %s", tmp), err)
		e.Stage = dicterrors.StagePersist
		return e
	}
	if err := s.storage.Rename(ctx, tmp, location); err != nil {
		e := dicterrors.NewStorageError(dicterrors.CodePublishFailed, fmt.Sprintf("publish %s", location), err)
		e.Stage = dicterrors.StagePersist
		return e
	}

	if s.cache != nil {
		s.cache.Add(location, d)
	}
	s.logger.Debug("dictionary persisted",
		zap.String("location", location),
		zap.String("tag", d.Tag()),
		zap.Int("bytes", len(data)),
	)
	return nil
}

func probeError(location string, err error) error {
	e := dicterrors.NewStorageError(dicterrors.CodeReadFailed, fmt.Sprintf("probe %s", location), err)
	e.Stage = dicterrors.StageProbe
	return e
}

// Provider locates column artifacts under a base path.
type Provider struct {
	store    *Store
	basePath string
}

// NewProvider creates a provider for artifacts stored as {basePath}/{IDENTITY}.dict.
func NewProvider(store *Store, basePath string) *Provider {
	return &Provider{store: store, basePath: strings.TrimSuffix(basePath, "/")}
}

// Location returns the artifact path for col.
func (p *Provider) Location(col types.ColumnRef) string {
	return path.Join(p.basePath, col.Identity()+ArtifactSuffix)
}

// DictionaryFor probes the artifact of col.
func (p *Provider) DictionaryFor(ctx context.Context, col types.ColumnRef) (dict.Dictionary, bool, error) {
	d, ok, err := p.store.Probe(ctx, p.Location(col))
	if err != nil {
		return nil, false, dicterrors.AtStage(err, col.Identity(), dicterrors.StageProbe)
	}
	if ok && d.DataType() != col.Type {
		err := dicterrors.NewCorruptArtifact(p.Location(col),
			fmt.Errorf("artifact holds %s values, column is %s", d.DataType(), col.Type))
		return nil, false, err.WithColumn(col.Identity())
	}
	return d, ok, nil
}

// Publish persists d as the artifact of col and returns its location.
func (p *Provider) Publish(ctx context.Context, col types.ColumnRef, d dict.Dictionary) (string, error) {
	location := p.Location(col)
	if err := p.store.Persist(ctx, location, d); err != nil {
		return "", dicterrors.AtStage(err, col.Identity(), dicterrors.StagePersist)
	}
	return location, nil
}
