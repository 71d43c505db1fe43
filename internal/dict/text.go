package dict

import (
	"encoding/binary"
	"fmt"

	"github.com/arkilian/segdict/pkg/types"
)

// TagSortedText identifies SortedTextDictionary artifacts.
const TagSortedText = "sorted-text/v1"

// SortedTextDictionary holds string, float and boolean domains. Values are
// stored by canonical text, front-coded against their predecessor.
type SortedTextDictionary struct {
	domain
}

func newSortedText(dt types.DataType, nullSentinel bool, compression Method, values []types.Value) *SortedTextDictionary {
	return &SortedTextDictionary{domain{
		dataType:     dt,
		nullSentinel: nullSentinel,
		compression:  compression,
		values:       values,
	}}
}

func (d *SortedTextDictionary) Tag() string { return TagSortedText }

// MarshalBinary encodes the body as the common header followed by one
// entry per value: uvarint shared prefix length, uvarint suffix length, suffix.
func (d *SortedTextDictionary) MarshalBinary() ([]byte, error) {
	body := d.appendHeader(nil)
	prev := ""
	for _, v := range d.values {
		text := v.Text()
		shared := commonPrefix(prev, text)
		body = binary.AppendUvarint(body, uint64(shared))
		body = binary.AppendUvarint(body, uint64(len(text)-shared))
		body = append(body, text[shared:]...)
		prev = text
	}
	return sealBody(d.compression, body)
}

func decodeSortedText(payload []byte) (Dictionary, error) {
	method, raw, err := openBody(payload)
	if err != nil {
		return nil, err
	}
	r := &bodyReader{buf: raw}
	d, count, err := readHeader(r, method, func(dt types.DataType) bool { return !dt.IntegerBacked() })
	if err != nil {
		return nil, err
	}

	prev := ""
	for i := uint64(0); i < count; i++ {
		shared, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		if shared > uint64(len(prev)) {
			return nil, fmt.Errorf("dict: entry %d shares %d bytes of a %d byte predecessor", i, shared, len(prev))
		}
		suffixLen, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		suffix, err := r.bytes(suffixLen)
		if err != nil {
			return nil, err
		}
		text := prev[:shared] + string(suffix)

		v, err := types.Parse(d.dataType, text)
		if err != nil {
			return nil, fmt.Errorf("dict: entry %d: %w", i, err)
		}
		if v.Text() != text {
			return nil, fmt.Errorf("dict: entry %d %q is not in canonical form", i, text)
		}
		if err := d.appendAscending(v); err != nil {
			return nil, err
		}
		prev = text
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return &SortedTextDictionary{*d}, nil
}

func commonPrefix(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
