package dict

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
	"github.com/spaolacci/murmur3"
)

// Method identifies how a payload body is compressed.
type Method byte

// Method bytes. None and LZ4 follow the ClickHouse block format values.
const (
	MethodNone   Method = 0x02
	MethodLZ4    Method = 0x82
	MethodSnappy Method = 0x90
)

// maxBodySize bounds the declared raw size so a corrupt header cannot
// trigger a huge allocation.
const maxBodySize = 1 << 30

var (
	errTruncated        = errors.New("dict: payload truncated")
	errChecksumMismatch = errors.New("dict: payload checksum mismatch")
)

// ParseMethod converts a compression name (none, snappy, lz4) to a Method.
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return MethodNone, nil
	case "snappy":
		return MethodSnappy, nil
	case "lz4":
		return MethodLZ4, nil
	default:
		return 0, fmt.Errorf("dict: unknown compression %q", name)
	}
}

func (m Method) String() string {
	switch m {
	case MethodNone:
		return "none"
	case MethodSnappy:
		return "snappy"
	case MethodLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("method(0x%02x)", byte(m))
	}
}

// sealBody frames a raw body as a payload:
//   - 1 byte: compression method
//   - uvarint: raw body length
//   - compressed body
//   - 8 bytes: murmur3 64-bit hash of the raw body (big-endian)
func sealBody(method Method, raw []byte) ([]byte, error) {
	var compressed []byte
	switch method {
	case MethodNone:
		compressed = raw
	case MethodSnappy:
		compressed = snappy.Encode(nil, raw)
	case MethodLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 {
			// Incompressible, store as-is
			method, compressed = MethodNone, raw
		} else {
			compressed = dst[:n]
		}
	default:
		return nil, fmt.Errorf("dict: unsupported compression %s", method)
	}

	buf := make([]byte, 0, 1+binary.MaxVarintLen64+len(compressed)+8)
	buf = append(buf, byte(method))
	buf = binary.AppendUvarint(buf, uint64(len(raw)))
	buf = append(buf, compressed...)
	buf = binary.BigEndian.AppendUint64(buf, murmur3.Sum64(raw))
	return buf, nil
}

// openBody verifies and decompresses a payload produced by sealBody and
// returns the method it was sealed with.
func openBody(payload []byte) (Method, []byte, error) {
	if len(payload) < 1+1+8 {
		return 0, nil, errTruncated
	}
	method := Method(payload[0])
	rawLen, n := binary.Uvarint(payload[1:])
	if n <= 0 {
		return 0, nil, errTruncated
	}
	if rawLen > maxBodySize {
		return 0, nil, fmt.Errorf("dict: declared body size %d exceeds limit", rawLen)
	}
	start := 1 + n
	end := len(payload) - 8
	if end < start {
		return 0, nil, errTruncated
	}
	compressed := payload[start:end]
	sum := binary.BigEndian.Uint64(payload[end:])

	var raw []byte
	switch method {
	case MethodNone:
		raw = compressed
	case MethodSnappy:
		decoded, err := snappy.Decode(nil, compressed)
		if err != nil {
			return 0, nil, fmt.Errorf("dict: snappy decompress failed: %w", err)
		}
		raw = decoded
	case MethodLZ4:
		raw = make([]byte, rawLen)
		got, err := lz4.UncompressBlock(compressed, raw)
		if err != nil {
			return 0, nil, fmt.Errorf("dict: lz4 decompress failed: %w", err)
		}
		raw = raw[:got]
	default:
		return 0, nil, fmt.Errorf("dict: unknown compression method 0x%02x", byte(method))
	}

	if uint64(len(raw)) != rawLen {
		return 0, nil, fmt.Errorf("dict: body length %d, header says %d", len(raw), rawLen)
	}
	if murmur3.Sum64(raw) != sum {
		return 0, nil, errChecksumMismatch
	}
	return method, raw, nil
}

// bodyReader consumes a raw body.
type bodyReader struct {
	buf []byte
	off int
}

func (r *bodyReader) byte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, errTruncated
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *bodyReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		return 0, errTruncated
	}
	r.off += n
	return v, nil
}

func (r *bodyReader) varint() (int64, error) {
	v, n := binary.Varint(r.buf[r.off:])
	if n <= 0 {
		return 0, errTruncated
	}
	r.off += n
	return v, nil
}

func (r *bodyReader) bytes(n uint64) ([]byte, error) {
	if n > uint64(len(r.buf)-r.off) {
		return nil, errTruncated
	}
	b := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}

func (r *bodyReader) done() error {
	if r.off != len(r.buf) {
		return fmt.Errorf("dict: %d trailing bytes", len(r.buf)-r.off)
	}
	return nil
}
