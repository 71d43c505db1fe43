// Package shard reads the sorted distinct-value shards an upstream job
// writes for each dictionary column.
//
// A column's shards live under {basePath}/{IDENTITY}/. Every object in that
// directory is one shard holding one value per line in ascending order.
// Objects ending in .snappy or .lz4 are decompressed while reading; objects
// whose name starts with "." or "_" (temp files, _SUCCESS markers) are skipped.
package shard

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"path"
	"strings"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
	"go.uber.org/zap"

	dicterrors "github.com/arkilian/segdict/internal/errors"
	"github.com/arkilian/segdict/internal/storage"
	"github.com/arkilian/segdict/pkg/types"
)

// DefaultNullToken is the record that denotes null.
const DefaultNullToken = `\N`

const (
	// maxRecordSize bounds a single line.
	maxRecordSize = 16 << 20

	ctxCheckInterval = 1024
)

// Options configures a Reader.
type Options struct {
	// NullToken is the record denoting null. Empty means DefaultNullToken.
	NullToken string
}

// Reader lists and parses shards through an ObjectStorage.
type Reader struct {
	storage   storage.ObjectStorage
	basePath  string
	nullToken string
	logger    *zap.Logger
}

// NewReader creates a reader for shards under basePath.
func NewReader(store storage.ObjectStorage, basePath string, opts Options, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	nullToken := opts.NullToken
	if nullToken == "" {
		nullToken = DefaultNullToken
	}
	return &Reader{
		storage:   store,
		basePath:  strings.TrimSuffix(basePath, "/"),
		nullToken: nullToken,
		logger:    logger,
	}
}

// Dir returns the directory holding col's shards.
func (r *Reader) Dir(col types.ColumnRef) string {
	return path.Join(r.basePath, col.Identity()) + "/"
}

// Open lists col's shards. It fails with SHARD_UNAVAILABLE when the column
// has no shard.
func (r *Reader) Open(ctx context.Context, col types.ColumnRef) (*ShardSet, error) {
	dir := r.Dir(col)
	objects, err := r.storage.ListObjects(ctx, dir)
	if err != nil {
		e := dicterrors.NewStorageError(dicterrors.CodeReadFailed, fmt.Sprintf("list shards under %s", dir), err)
		e.Column, e.Stage = col.Identity(), dicterrors.StageRead
		return nil, e
	}

	paths := make([]string, 0, len(objects))
	for _, obj := range objects {
		if isShard(obj) {
			paths = append(paths, obj)
		}
	}
	if len(paths) == 0 {
		return nil, dicterrors.NewShardUnavailable(col.Identity(), dir)
	}

	r.logger.Debug("shards listed",
		zap.String("column", col.Identity()),
		zap.String("dir", dir),
		zap.Int("shards", len(paths)),
	)
	return &ShardSet{reader: r, col: col, paths: paths}, nil
}

// DistinctValuesFor returns one ascending value sequence per shard of col.
func (r *Reader) DistinctValuesFor(ctx context.Context, col types.ColumnRef) ([]iter.Seq2[types.Value, error], error) {
	set, err := r.Open(ctx, col)
	if err != nil {
		return nil, err
	}
	return set.Shards(ctx), nil
}

func isShard(objectPath string) bool {
	base := path.Base(objectPath)
	return base != "" && !strings.HasPrefix(base, ".") && !strings.HasPrefix(base, "_")
}

// ShardSet is the listed shards of one column, in lexical path order.
type ShardSet struct {
	reader *Reader
	col    types.ColumnRef
	paths  []string
}

// Paths returns the shard object paths.
func (s *ShardSet) Paths() []string {
	return append([]string(nil), s.paths...)
}

// Shards returns one sequence per shard. Each sequence reopens its object
// every time it is ranged over.
func (s *ShardSet) Shards(ctx context.Context) []iter.Seq2[types.Value, error] {
	seqs := make([]iter.Seq2[types.Value, error], len(s.paths))
	for i, p := range s.paths {
		seqs[i] = s.reader.values(ctx, s.col, p)
	}
	return seqs
}

// All yields the records of every shard, one shard after the other.
func (s *ShardSet) All(ctx context.Context) iter.Seq2[types.Value, error] {
	return func(yield func(types.Value, error) bool) {
		for _, p := range s.paths {
			for v, err := range s.reader.values(ctx, s.col, p) {
				if !yield(v, err) || err != nil {
					return
				}
			}
		}
	}
}

// values parses one shard. The sequence ends after the first error.
func (r *Reader) values(ctx context.Context, col types.ColumnRef, objectPath string) iter.Seq2[types.Value, error] {
	return func(yield func(types.Value, error) bool) {
		rc, err := r.storage.Get(ctx, objectPath)
		if err != nil {
			yield(types.Value{}, r.readError(col, objectPath, err))
			return
		}
		defer rc.Close()

		scanner := bufio.NewScanner(decompress(objectPath, rc))
		scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

		line := 0
		for scanner.Scan() {
			line++
			if line%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					yield(types.Value{}, err)
					return
				}
			}

			record := strings.TrimSuffix(scanner.Text(), "\r")
			v, err := r.parse(col, record)
			if err != nil {
				yield(types.Value{}, dicterrors.NewMalformedShard(col.Identity(),
					fmt.Sprintf("%s line %d", objectPath, line), err).
					WithDetails(map[string]interface{}{"path": objectPath, "line": line, "value": record}))
				return
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(types.Value{}, r.readError(col, objectPath, err))
		}
	}
}

func (r *Reader) parse(col types.ColumnRef, record string) (types.Value, error) {
	if record == r.nullToken {
		if !col.Nullable {
			return types.Value{}, errors.New("null in a non-nullable column")
		}
		return types.NullValue(col.Type), nil
	}
	return types.Parse(col.Type, record)
}

func (r *Reader) readError(col types.ColumnRef, objectPath string, err error) error {
	e := dicterrors.NewStorageError(dicterrors.CodeReadFailed, fmt.Sprintf("read shard %s", objectPath), err)
	e.Column, e.Stage = col.Identity(), dicterrors.StageRead
	return e
}

func decompress(objectPath string, r io.Reader) io.Reader {
	switch {
	case strings.HasSuffix(objectPath, ".snappy"):
		return snappy.NewReader(r)
	case strings.HasSuffix(objectPath, ".lz4"):
		return lz4.NewReader(r)
	default:
		return r
	}
}
