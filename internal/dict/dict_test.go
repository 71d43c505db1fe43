package dict

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"

	dicterrors "github.com/arkilian/segdict/internal/errors"
	"github.com/arkilian/segdict/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqOf(values ...types.Value) iter.Seq2[types.Value, error] {
	return func(yield func(types.Value, error) bool) {
		for _, v := range values {
			if !yield(v, nil) {
				return
			}
		}
	}
}

func texts(raw ...string) []types.Value {
	out := make([]types.Value, len(raw))
	for i, s := range raw {
		out[i] = types.StringValue(s)
	}
	return out
}

func ints(ns ...int64) []types.Value {
	out := make([]types.Value, len(ns))
	for i, n := range ns {
		out[i], _ = types.IntegerValue(types.TypeInt64, n)
	}
	return out
}

var (
	regionCol = types.ColumnRef{Table: "sales", Name: "region", Type: types.TypeString, Nullable: true}
	qtyCol    = types.ColumnRef{Table: "sales", Name: "qty", Type: types.TypeInt64}
)

func TestBuild_MergesOverlappingShards(t *testing.T) {
	b := NewBuilder(Options{}, nil)
	d, err := b.Build(context.Background(), regionCol, []iter.Seq2[types.Value, error]{
		seqOf(texts("a", "c")...),
		seqOf(texts("b", "c")...),
	})
	require.NoError(t, err)

	assert.Equal(t, TagSortedText, d.Tag())
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, uint32(0), d.MinCode())
	assert.Equal(t, uint32(2), d.MaxCode())
	for code, want := range []string{"a", "b", "c"} {
		v, ok := d.ValueOf(uint32(code))
		require.True(t, ok)
		assert.Equal(t, want, v.Text())
	}
	_, ok := d.ValueOf(3)
	assert.False(t, ok)
}

func TestBuild_ShardSplitYieldsSameMapping(t *testing.T) {
	b := NewBuilder(Options{}, nil)
	whole, err := b.Build(context.Background(), regionCol, []iter.Seq2[types.Value, error]{
		seqOf(texts("a", "b", "c")...),
	})
	require.NoError(t, err)
	split, err := b.Build(context.Background(), regionCol, []iter.Seq2[types.Value, error]{
		seqOf(texts("b", "c")...),
		seqOf(texts("a")...),
	})
	require.NoError(t, err)

	assert.True(t, Equal(whole, split))
	for want, s := range []string{"a", "b", "c"} {
		code, ok := split.CodeOf(types.StringValue(s))
		require.True(t, ok)
		assert.Equal(t, uint32(want), code)
	}
}

func TestBuild_NullSentinel(t *testing.T) {
	b := NewBuilder(Options{NullSentinel: true}, nil)
	d, err := b.Build(context.Background(), regionCol, []iter.Seq2[types.Value, error]{
		seqOf(types.NullValue(types.TypeString), types.StringValue("a"), types.StringValue("c")),
		seqOf(texts("b", "c")...),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, d.Len())
	assert.Equal(t, uint32(1), d.BaseOffset())
	assert.Equal(t, uint32(3), d.MaxCode())

	code, ok := d.CodeOf(types.StringValue("a"))
	require.True(t, ok)
	assert.Equal(t, uint32(1), code)

	code, ok = d.CodeOf(types.NullValue(types.TypeString))
	require.True(t, ok)
	assert.Equal(t, NullCode, code)

	v, ok := d.ValueOf(NullCode)
	require.True(t, ok)
	assert.True(t, v.IsNull())
}

func TestBuild_NullWithoutSentinelHasNoCode(t *testing.T) {
	d, err := NewBuilder(Options{}, nil).Build(context.Background(), regionCol, []iter.Seq2[types.Value, error]{
		seqOf(types.NullValue(types.TypeString), types.StringValue("a")),
	})
	require.NoError(t, err)
	_, ok := d.CodeOf(types.NullValue(types.TypeString))
	assert.False(t, ok)
	assert.Equal(t, 1, d.Len())
}

func TestBuild_NullInNonNullableColumn(t *testing.T) {
	_, err := NewBuilder(Options{}, nil).Build(context.Background(), qtyCol, []iter.Seq2[types.Value, error]{
		seqOf(types.NullValue(types.TypeInt64)),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, dicterrors.ErrMalformedShard))
}

func TestBuild_OutOfOrderShard(t *testing.T) {
	_, err := NewBuilder(Options{}, nil).Build(context.Background(), regionCol, []iter.Seq2[types.Value, error]{
		seqOf(texts("b", "a")...),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, dicterrors.ErrMalformedShard))
	assert.Equal(t, dicterrors.StageRead, dicterrors.GetStage(err))
}

func TestBuild_ShardErrorIsPropagated(t *testing.T) {
	boom := dicterrors.NewMalformedShard("SALES.REGION", "bad record", nil)
	failing := func(yield func(types.Value, error) bool) {
		if !yield(types.StringValue("a"), nil) {
			return
		}
		yield(types.Value{}, boom)
	}
	_, err := NewBuilder(Options{}, nil).Build(context.Background(), regionCol, []iter.Seq2[types.Value, error]{failing})
	assert.ErrorIs(t, err, boom)
}

func TestBuild_DomainTooLarge(t *testing.T) {
	b := NewBuilder(Options{MaxCardinality: 2}, nil)
	_, err := b.Build(context.Background(), regionCol, []iter.Seq2[types.Value, error]{
		seqOf(texts("a", "b")...),
		seqOf(texts("b", "c")...),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, dicterrors.ErrDomainTooLarge))

	// Exactly at the limit is fine.
	d, err := b.Build(context.Background(), regionCol, []iter.Seq2[types.Value, error]{
		seqOf(texts("a", "b")...),
		seqOf(texts("a", "b")...),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())
}

func TestBuild_EmptyDomain(t *testing.T) {
	d, err := NewBuilder(Options{}, nil).Build(context.Background(), qtyCol, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Len())
	assert.Equal(t, NullCode, d.MaxCode())

	encoded, err := Encode(d)
	require.NoError(t, err)
	decoded, err := NewRegistry().Decode(encoded)
	require.NoError(t, err)
	assert.True(t, Equal(d, decoded))
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBuilder(Options{}, nil).Build(ctx, qtyCol, []iter.Seq2[types.Value, error]{seqOf(ints(1, 2, 3)...)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuild_IntegerBackedRepresentation(t *testing.T) {
	dateCol := types.ColumnRef{Name: "day", Type: types.TypeDate}
	d, err := NewBuilder(Options{}, nil).Build(context.Background(), dateCol, []iter.Seq2[types.Value, error]{
		seqOf(types.MustParse(types.TypeDate, "1969-12-31"), types.MustParse(types.TypeDate, "2024-02-29")),
	})
	require.NoError(t, err)
	assert.Equal(t, TagSortedInt64, d.Tag())

	code, ok := d.CodeOf(types.MustParse(types.TypeDate, "2024-02-29"))
	require.True(t, ok)
	assert.Equal(t, uint32(1), code)
}

func TestBuildFromValues(t *testing.T) {
	d, err := BuildFromValues(types.TypeInt64, ints(5, -3, 5, 9), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())

	var got []int64
	for _, v := range d.Values() {
		got = append(got, v.Int64())
	}
	assert.Equal(t, []int64{-3, 5, 9}, got)

	_, err = BuildFromValues(types.TypeString, ints(1), Options{})
	assert.Error(t, err)
}

func TestCodec_RoundTrip(t *testing.T) {
	registry := NewRegistry()
	floats := []types.Value{
		types.MustParse(types.TypeFloat64, "-1.5"),
		types.MustParse(types.TypeFloat64, "0"),
		types.MustParse(types.TypeFloat64, "2.25"),
		types.MustParse(types.TypeFloat64, "1e21"),
	}
	cases := []struct {
		dt     types.DataType
		values []types.Value
	}{
		{types.TypeString, texts("apple", "applesauce", "apply", "banana", "")},
		{types.TypeInt64, ints(-9223372036854775808, -1, 0, 1, 9223372036854775807)},
		{types.TypeFloat64, floats},
		{types.TypeBoolean, []types.Value{types.MustParse(types.TypeBoolean, "true"), types.MustParse(types.TypeBoolean, "0")}},
		{types.TypeTimestamp, []types.Value{
			types.MustParse(types.TypeTimestamp, "2024-01-01 00:00:00"),
			types.MustParse(types.TypeTimestamp, "1960-06-01T12:30:00Z"),
		}},
	}
	for _, tc := range cases {
		for _, method := range []Method{MethodNone, MethodSnappy, MethodLZ4} {
			t.Run(fmt.Sprintf("%s/%s", tc.dt, method), func(t *testing.T) {
				d, err := BuildFromValues(tc.dt, tc.values, Options{NullSentinel: true, Compression: method})
				require.NoError(t, err)

				encoded, err := Encode(d)
				require.NoError(t, err)
				decoded, err := registry.Decode(encoded)
				require.NoError(t, err)

				assert.Equal(t, d.Tag(), decoded.Tag())
				assert.True(t, Equal(d, decoded))
				assert.True(t, decoded.HasNullSentinel())

				reencoded, err := Encode(decoded)
				require.NoError(t, err)
				assert.Equal(t, encoded, reencoded)
			})
		}
	}
}

func TestCodec_DeterministicBytes(t *testing.T) {
	a, err := BuildFromValues(types.TypeString, texts("x", "y", "z"), Options{Compression: MethodLZ4})
	require.NoError(t, err)
	b, err := BuildFromValues(types.TypeString, texts("z", "x", "y", "x"), Options{Compression: MethodLZ4})
	require.NoError(t, err)

	ea, err := Encode(a)
	require.NoError(t, err)
	eb, err := Encode(b)
	require.NoError(t, err)
	assert.Equal(t, ea, eb)
}

func TestCodec_UnknownTag(t *testing.T) {
	artifact := []byte{0x00, 0x07}
	artifact = append(artifact, "trie/v9"...)
	artifact = append(artifact, 0x01, 0x02, 0x03)

	_, err := NewRegistry().Decode(artifact)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dicterrors.ErrUnknownDictionaryType))
}

func TestCodec_CorruptPayload(t *testing.T) {
	d, err := BuildFromValues(types.TypeString, texts("a", "b", "c"), Options{})
	require.NoError(t, err)
	encoded, err := Encode(d)
	require.NoError(t, err)
	registry := NewRegistry()

	flipped := append([]byte(nil), encoded...)
	flipped[len(flipped)-10] ^= 0xff
	_, err = registry.Decode(flipped)
	assert.Error(t, err)

	_, err = registry.Decode(encoded[:len(encoded)-3])
	assert.Error(t, err)

	_, err = registry.Decode(encoded[:1])
	assert.Error(t, err)

	_, err = registry.Decode(nil)
	assert.Error(t, err)
}

func TestCodec_DecoderRejectsWrongType(t *testing.T) {
	d, err := BuildFromValues(types.TypeString, texts("1", "2"), Options{})
	require.NoError(t, err)
	encoded, err := Encode(d)
	require.NoError(t, err)

	// Re-tag a text artifact as an integer one.
	tagLen := len(TagSortedText)
	retagged := []byte{0x00, byte(len(TagSortedInt64))}
	retagged = append(retagged, TagSortedInt64...)
	retagged = append(retagged, encoded[2+tagLen:]...)

	_, err = NewRegistry().Decode(retagged)
	assert.Error(t, err)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{TagSortedInt64, TagSortedText}, r.Tags())

	assert.Error(t, r.Register(TagSortedText, decodeSortedText))
	assert.Error(t, r.Register("", decodeSortedText))
	assert.Error(t, r.Register("custom/v1", nil))

	require.NoError(t, r.Register("custom/v1", decodeSortedText))
	d, err := BuildFromValues(types.TypeString, texts("q"), Options{})
	require.NoError(t, err)
	payload, err := d.MarshalBinary()
	require.NoError(t, err)

	artifact := []byte{0x00, byte(len("custom/v1"))}
	artifact = append(artifact, "custom/v1"...)
	artifact = append(artifact, payload...)
	decoded, err := r.Decode(artifact)
	require.NoError(t, err)
	assert.True(t, Equal(d, decoded))
}

func TestParseMethod(t *testing.T) {
	for name, want := range map[string]Method{"": MethodNone, "none": MethodNone, "Snappy": MethodSnappy, "lz4": MethodLZ4} {
		got, err := ParseMethod(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMethod("zstd")
	assert.Error(t, err)
}
