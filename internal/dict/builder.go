package dict

import (
	"container/heap"
	"context"
	"fmt"
	"iter"
	"slices"

	dicterrors "github.com/arkilian/segdict/internal/errors"
	"github.com/arkilian/segdict/pkg/types"
	"go.uber.org/zap"
)

// DefaultMaxCardinality is the distinct value limit used when Options leaves it unset.
const DefaultMaxCardinality = 5_000_000

// ctxCheckInterval is how many merged values pass between context checks.
const ctxCheckInterval = 4096

// Options controls dictionary construction.
type Options struct {
	// MaxCardinality is the largest accepted distinct value count.
	// Zero means DefaultMaxCardinality; negative disables the limit.
	MaxCardinality int

	// NullSentinel reserves NullCode for null and starts value codes at 1.
	NullSentinel bool

	// Compression is applied to encoded bodies. Zero means MethodNone.
	Compression Method
}

func (o Options) limit() int {
	switch {
	case o.MaxCardinality == 0:
		return DefaultMaxCardinality
	case o.MaxCardinality < 0:
		return -1
	default:
		return o.MaxCardinality
	}
}

func (o Options) method() Method {
	if o.Compression == 0 {
		return MethodNone
	}
	return o.Compression
}

// Builder merges a column's sorted shards into a Dictionary.
type Builder struct {
	opts   Options
	logger *zap.Logger
}

// NewBuilder creates a builder. A nil logger disables logging.
func NewBuilder(opts Options, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{opts: opts, logger: logger}
}

// Build merges the shards of col into a dictionary. Each shard must be
// ascending; shards may overlap. Nulls are not part of the domain. The result
// depends only on the distinct set of values, never on how they are split
// across shards.
func (b *Builder) Build(ctx context.Context, col types.ColumnRef, shards []iter.Seq2[types.Value, error]) (Dictionary, error) {
	identity := col.Identity()
	limit := b.opts.limit()

	h := make(mergeHeap, 0, len(shards))
	defer func() {
		for _, c := range h {
			c.stop()
		}
	}()
	for i, shard := range shards {
		next, stop := iter.Pull2(shard)
		c := &cursor{shard: i, next: next, stop: stop}
		ok, err := c.advance(col)
		if err != nil {
			stop()
			return nil, err
		}
		if !ok {
			stop()
			continue
		}
		h = append(h, c)
	}
	heap.Init(&h)

	var values []types.Value
	merged := 0
	for h.Len() > 0 {
		if merged++; merged%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		c := h[0]
		v := c.head
		if n := len(values); n == 0 || types.Compare(values[n-1], v) < 0 {
			if limit >= 0 && len(values) == limit {
				return nil, dicterrors.NewDomainTooLarge(identity, limit)
			}
			values = append(values, v)
		}

		ok, err := c.advance(col)
		if err != nil {
			return nil, err
		}
		if ok {
			heap.Fix(&h, 0)
		} else {
			heap.Pop(&h)
			c.stop()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d := newDictionary(col.Type, b.opts.NullSentinel, b.opts.method(), values)
	b.logger.Debug("dictionary built",
		zap.String("column", identity),
		zap.String("tag", d.Tag()),
		zap.Int("shards", len(shards)),
		zap.Int("cardinality", d.Len()),
	)
	return d, nil
}

// BuildFromValues builds a dictionary of type dt from an in-memory,
// unordered collection. Nulls are ignored; values of another type are rejected.
func BuildFromValues(dt types.DataType, values []types.Value, opts Options) (Dictionary, error) {
	if !dt.Valid() {
		return nil, fmt.Errorf("%w: %d", types.ErrUnknownDataType, dt)
	}
	domain := make([]types.Value, 0, len(values))
	for _, v := range values {
		if v.Type() != dt {
			return nil, fmt.Errorf("dict: value %q has type %s, want %s", v.Text(), v.Type(), dt)
		}
		if !v.IsNull() {
			domain = append(domain, v)
		}
	}
	slices.SortFunc(domain, types.Compare)
	domain = slices.CompactFunc(domain, types.Equal)
	if limit := opts.limit(); limit >= 0 && len(domain) > limit {
		return nil, dicterrors.NewDomainTooLarge("", limit)
	}
	return newDictionary(dt, opts.NullSentinel, opts.method(), domain), nil
}

// newDictionary selects the representation for dt.
func newDictionary(dt types.DataType, nullSentinel bool, method Method, values []types.Value) Dictionary {
	if dt.IntegerBacked() {
		return newSortedInt64(dt, nullSentinel, method, values)
	}
	return newSortedText(dt, nullSentinel, method, values)
}

// cursor is the read position within one shard.
type cursor struct {
	shard  int
	next   func() (types.Value, error, bool)
	stop   func()
	head   types.Value
	has    bool
	record int
}

// advance moves to the next non-null value, validating type and order.
func (c *cursor) advance(col types.ColumnRef) (bool, error) {
	for {
		v, err, ok := c.next()
		if !ok {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		c.record++
		if v.Type() != col.Type {
			return false, dicterrors.NewMalformedShard(col.Identity(),
				fmt.Sprintf("shard %d record %d has type %s, want %s", c.shard, c.record, v.Type(), col.Type), nil)
		}
		if v.IsNull() {
			if !col.Nullable {
				return false, dicterrors.NewMalformedShard(col.Identity(),
					fmt.Sprintf("shard %d record %d is null in a non-nullable column", c.shard, c.record), nil)
			}
			continue
		}
		if c.has && types.Compare(c.head, v) > 0 {
			return false, dicterrors.NewMalformedShard(col.Identity(),
				fmt.Sprintf("shard %d record %d %q is out of order", c.shard, c.record, v.Text()), nil).
				WithDetails(map[string]interface{}{"shard": c.shard, "record": c.record, "value": v.Text()})
		}
		c.head, c.has = v, true
		return true, nil
	}
}

type mergeHeap []*cursor

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if c := types.Compare(h[i].head, h[j].head); c != 0 {
		return c < 0
	}
	return h[i].shard < h[j].shard
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(*cursor)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}
