package dict

import (
	"encoding/binary"
	"fmt"

	"github.com/arkilian/segdict/pkg/types"
)

// TagSortedInt64 identifies SortedInt64Dictionary artifacts.
const TagSortedInt64 = "sorted-int64/v1"

// SortedInt64Dictionary holds integer-backed domains (int64, date, timestamp).
// The first value is stored as a zigzag varint and every following value as
// the uvarint delta from its predecessor.
type SortedInt64Dictionary struct {
	domain
}

func newSortedInt64(dt types.DataType, nullSentinel bool, compression Method, values []types.Value) *SortedInt64Dictionary {
	return &SortedInt64Dictionary{domain{
		dataType:     dt,
		nullSentinel: nullSentinel,
		compression:  compression,
		values:       values,
	}}
}

func (d *SortedInt64Dictionary) Tag() string { return TagSortedInt64 }

func (d *SortedInt64Dictionary) MarshalBinary() ([]byte, error) {
	body := d.appendHeader(nil)
	for i, v := range d.values {
		if i == 0 {
			body = binary.AppendVarint(body, v.Int64())
			continue
		}
		// Unsigned subtraction wraps correctly across the full int64 range.
		delta := uint64(v.Int64()) - uint64(d.values[i-1].Int64())
		body = binary.AppendUvarint(body, delta)
	}
	return sealBody(d.compression, body)
}

func decodeSortedInt64(payload []byte) (Dictionary, error) {
	method, raw, err := openBody(payload)
	if err != nil {
		return nil, err
	}
	r := &bodyReader{buf: raw}
	d, count, err := readHeader(r, method, types.DataType.IntegerBacked)
	if err != nil {
		return nil, err
	}

	var prev int64
	for i := uint64(0); i < count; i++ {
		var n int64
		if i == 0 {
			if n, err = r.varint(); err != nil {
				return nil, err
			}
		} else {
			delta, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			// A zero or wrapping delta fails the ascending check below.
			n = int64(uint64(prev) + delta)
		}
		v, err := types.IntegerValue(d.dataType, n)
		if err != nil {
			return nil, fmt.Errorf("dict: entry %d: %w", i, err)
		}
		if err := d.appendAscending(v); err != nil {
			return nil, err
		}
		prev = n
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return &SortedInt64Dictionary{*d}, nil
}
