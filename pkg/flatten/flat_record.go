package flatten

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FlatRecord is a single-level mapping from key to primitive value that
// remembers the order keys were first written in.
type FlatRecord struct {
	keys   []string
	values map[string]any
}

// NewFlatRecord returns an empty FlatRecord.
func NewFlatRecord() *FlatRecord {
	return &FlatRecord{values: make(map[string]any)}
}

// Set stores v under key. Overwriting keeps the key's original position.
func (r *FlatRecord) Set(key string, v any) {
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Get returns the value stored under key.
func (r *FlatRecord) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the keys in first-write order.
func (r *FlatRecord) Keys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Len returns the number of keys.
func (r *FlatRecord) Len() int {
	return len(r.keys)
}

// MarshalJSON encodes the record as a JSON object in key order.
// HTML characters are not escaped.
func (r *FlatRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeCompact(&buf, key); err != nil {
			return nil, fmt.Errorf("encode key %q: %w", key, err)
		}
		buf.WriteByte(':')
		if err := encodeCompact(&buf, r.values[key]); err != nil {
			return nil, fmt.Errorf("encode value of %q: %w", key, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeCompact(buf *bytes.Buffer, v any) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}
