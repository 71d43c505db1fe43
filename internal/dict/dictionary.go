// Package dict builds, encodes and decodes immutable column dictionaries:
// bidirectional mappings between a column's distinct values and dense
// integer codes.
package dict

import (
	"encoding/binary"
	"fmt"
	"iter"
	"sort"

	"github.com/arkilian/segdict/pkg/types"
)

// NullCode is the code reserved for null when a dictionary has a null sentinel.
const NullCode uint32 = 0

// Dictionary is an immutable mapping between values and codes. Codes are
// assigned in the values' natural order starting at BaseOffset.
type Dictionary interface {
	// Tag identifies the concrete representation in encoded artifacts.
	Tag() string

	// DataType is the semantic type shared by every value.
	DataType() types.DataType

	// Len is the number of non-null values.
	Len() int

	// BaseOffset is the code of the smallest value: 1 with a null sentinel, else 0.
	BaseOffset() uint32

	// MinCode is the smallest code assigned to a value, the same as BaseOffset.
	MinCode() uint32

	// MaxCode is the largest assigned code, or NullCode when the
	// dictionary holds no value.
	MaxCode() uint32

	// HasNullSentinel reports whether NullCode is reserved for null.
	HasNullSentinel() bool

	// CodeOf returns the code of v.
	CodeOf(v types.Value) (uint32, bool)

	// ValueOf returns the value with the given code.
	ValueOf(code uint32) (types.Value, bool)

	// Values iterates codes and values in ascending order, excluding null.
	Values() iter.Seq2[uint32, types.Value]

	// MarshalBinary returns the representation's serialized state, without the tag.
	MarshalBinary() ([]byte, error)
}

// Equal reports whether a and b map the same values to the same codes.
// Representation and compression are not compared.
func Equal(a, b Dictionary) bool {
	if a.DataType() != b.DataType() || a.Len() != b.Len() ||
		a.BaseOffset() != b.BaseOffset() || a.HasNullSentinel() != b.HasNullSentinel() {
		return false
	}
	for code, v := range a.Values() {
		w, ok := b.ValueOf(code)
		if !ok || !types.Equal(v, w) {
			return false
		}
	}
	return true
}

// domain is the sorted, deduplicated value set shared by every representation.
type domain struct {
	dataType     types.DataType
	nullSentinel bool
	compression  Method
	values       []types.Value
}

func (d *domain) DataType() types.DataType { return d.dataType }
func (d *domain) Len() int                 { return len(d.values) }
func (d *domain) HasNullSentinel() bool    { return d.nullSentinel }

func (d *domain) BaseOffset() uint32 {
	if d.nullSentinel {
		return 1
	}
	return 0
}

func (d *domain) MinCode() uint32 { return d.BaseOffset() }

func (d *domain) MaxCode() uint32 {
	if len(d.values) == 0 {
		return NullCode
	}
	return d.BaseOffset() + uint32(len(d.values)-1)
}

func (d *domain) CodeOf(v types.Value) (uint32, bool) {
	if v.Type() != d.dataType {
		return 0, false
	}
	if v.IsNull() {
		return NullCode, d.nullSentinel
	}
	i := sort.Search(len(d.values), func(i int) bool {
		return types.Compare(d.values[i], v) >= 0
	})
	if i < len(d.values) && types.Equal(d.values[i], v) {
		return d.BaseOffset() + uint32(i), true
	}
	return 0, false
}

func (d *domain) ValueOf(code uint32) (types.Value, bool) {
	if d.nullSentinel && code == NullCode {
		return types.NullValue(d.dataType), true
	}
	base := d.BaseOffset()
	if code < base || int64(code-base) >= int64(len(d.values)) {
		return types.Value{}, false
	}
	return d.values[code-base], true
}

func (d *domain) Values() iter.Seq2[uint32, types.Value] {
	return func(yield func(uint32, types.Value) bool) {
		base := d.BaseOffset()
		for i, v := range d.values {
			if !yield(base+uint32(i), v) {
				return
			}
		}
	}
}

// flags byte of every built-in body.
const flagNullSentinel byte = 1 << 0

func (d *domain) flags() byte {
	if d.nullSentinel {
		return flagNullSentinel
	}
	return 0
}

// appendHeader writes the fields every built-in body starts with:
// data type, flags and value count.
func (d *domain) appendHeader(buf []byte) []byte {
	buf = append(buf, byte(d.dataType), d.flags())
	return binary.AppendUvarint(buf, uint64(len(d.values)))
}

// readHeader reads the common body header into a domain with an allocated
// (empty) value slice. method is the compression the payload was sealed
// with, kept so the decoded dictionary encodes to the same bytes. accept
// reports whether the representation can hold the decoded data type.
func readHeader(r *bodyReader, method Method, accept func(types.DataType) bool) (*domain, uint64, error) {
	dt, err := r.byte()
	if err != nil {
		return nil, 0, err
	}
	dataType := types.DataType(dt)
	if !dataType.Valid() || !accept(dataType) {
		return nil, 0, fmt.Errorf("dict: data type %d not valid for this representation", dt)
	}
	flags, err := r.byte()
	if err != nil {
		return nil, 0, err
	}
	if flags&^flagNullSentinel != 0 {
		return nil, 0, fmt.Errorf("dict: unknown flags 0x%02x", flags)
	}
	count, err := r.uvarint()
	if err != nil {
		return nil, 0, err
	}
	// Every value takes at least one byte.
	if count > uint64(len(r.buf)-r.off) {
		return nil, 0, errTruncated
	}
	return &domain{
		dataType:     dataType,
		nullSentinel: flags&flagNullSentinel != 0,
		compression:  method,
		values:       make([]types.Value, 0, count),
	}, count, nil
}

// appendAscending adds v after checking it is strictly greater than the
// previous value, which keeps decoded domains sorted and duplicate-free.
func (d *domain) appendAscending(v types.Value) error {
	if n := len(d.values); n > 0 && types.Compare(d.values[n-1], v) >= 0 {
		return fmt.Errorf("dict: value %q out of order", v.Text())
	}
	d.values = append(d.values, v)
	return nil
}
