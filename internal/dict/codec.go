package dict

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"

	dicterrors "github.com/arkilian/segdict/internal/errors"
)

// DecodeFunc reconstructs a dictionary from the payload that follows its tag.
type DecodeFunc func(payload []byte) (Dictionary, error)

// Registry maps representation tags to decoders.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]DecodeFunc
}

// NewRegistry returns a registry with every built-in representation registered.
func NewRegistry() *Registry {
	return &Registry{decoders: map[string]DecodeFunc{
		TagSortedText:  decodeSortedText,
		TagSortedInt64: decodeSortedInt64,
	}}
}

// Register adds a decoder for tag. Registering a tag twice is an error.
func (r *Registry) Register(tag string, fn DecodeFunc) error {
	if err := validTag(tag); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("dict: nil decoder for tag %q", tag)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.decoders[tag]; exists {
		return fmt.Errorf("dict: tag %q already registered", tag)
	}
	r.decoders[tag] = fn
	return nil
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.decoders))
	for tag := range r.decoders {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Encode serializes d as a self-describing artifact:
//   - 2 bytes: tag length (big-endian)
//   - tag bytes
//   - payload from d.MarshalBinary
func Encode(d Dictionary) ([]byte, error) {
	tag := d.Tag()
	if err := validTag(tag); err != nil {
		return nil, err
	}
	payload, err := d.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("dict: marshal %s: %w", tag, err)
	}
	buf := make([]byte, 0, 2+len(tag)+len(payload))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(tag)))
	buf = append(buf, tag...)
	return append(buf, payload...), nil
}

// Decode reads the tag of an encoded artifact and dispatches to its decoder.
// An unregistered tag yields an UNKNOWN_DICTIONARY_TYPE error.
func (r *Registry) Decode(b []byte) (Dictionary, error) {
	tag, payload, err := splitEnvelope(b)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	fn, ok := r.decoders[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, dicterrors.NewUnknownDictionaryType(tag)
	}
	d, err := fn(payload)
	if err != nil {
		return nil, fmt.Errorf("dict: decode %s: %w", tag, err)
	}
	return d, nil
}

func splitEnvelope(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, errTruncated
	}
	n := int(binary.BigEndian.Uint16(b))
	if n == 0 {
		return "", nil, fmt.Errorf("dict: empty tag")
	}
	if len(b) < 2+n {
		return "", nil, errTruncated
	}
	return string(b[2 : 2+n]), b[2+n:], nil
}

func validTag(tag string) error {
	if tag == "" || len(tag) > math.MaxUint16 {
		return fmt.Errorf("dict: tag length %d out of range", len(tag))
	}
	return nil
}
