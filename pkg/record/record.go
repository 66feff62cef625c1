// Package record models a source record as a tagged variant of primitive,
// mapping and sequence values, and decodes JSON into it without losing key order.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	// KindPrimitive is a string, json.Number, bool or nil.
	KindPrimitive Kind = iota

	// KindMapping is an ordered list of key/value fields.
	KindMapping

	// KindSequence is an ordered list of values.
	KindSequence
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	// ErrTrailingData is returned when a JSON document has content after its first value.
	ErrTrailingData = errors.New("trailing data after JSON value")

	// ErrNotSequence is returned by DecodeList when the document is not an array.
	ErrNotSequence = errors.New("JSON value is not an array")
)

// Field is one key/value pair of a mapping.
type Field struct {
	Key   string
	Value Value
}

// Value is an immutable node of a decoded record.
// The zero Value is a primitive null.
type Value struct {
	kind   Kind
	scalar any
	fields []Field
	items  []Value
}

// Primitive wraps a scalar (string, json.Number, bool or nil).
func Primitive(v any) Value {
	return Value{kind: KindPrimitive, scalar: v}
}

// Mapping builds a mapping from fields in the given order.
func Mapping(fields ...Field) Value {
	return Value{kind: KindMapping, fields: fields}
}

// Sequence builds a sequence from items in the given order.
func Sequence(items ...Value) Value {
	return Value{kind: KindSequence, items: items}
}

// F is shorthand for building a Field.
func F(key string, v Value) Field {
	return Field{Key: key, Value: v}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Scalar returns the primitive payload; nil for mappings and sequences.
func (v Value) Scalar() any { return v.scalar }

// Fields returns the mapping fields in source order.
func (v Value) Fields() []Field { return v.fields }

// Items returns the sequence items in source order.
func (v Value) Items() []Value { return v.items }

// Decode parses a single JSON document into a Value.
// Numbers are kept as json.Number so they round-trip without precision loss.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}

	if _, err := dec.Token(); err != io.EOF {
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrTrailingData, err)
		}
		return Value{}, ErrTrailingData
	}

	return v, nil
}

// DecodeList parses a JSON array into its items.
// A JSON null decodes to an empty list.
func DecodeList(data []byte) ([]Value, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}

	switch v.Kind() {
	case KindSequence:
		return v.Items(), nil
	case KindPrimitive:
		if v.Scalar() == nil {
			return nil, nil
		}
	}

	return nil, fmt.Errorf("%w: got %s", ErrNotSequence, v.Kind())
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("read token: %w", err)
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return Primitive(tok), nil
	}

	switch delim {
	case '{':
		var fields []Field
		index := make(map[string]int)
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return Value{}, fmt.Errorf("read key: %w", err)
			}
			key, ok := keyTok.(string)
			if !ok {
				return Value{}, fmt.Errorf("unexpected key token %v", keyTok)
			}
			val, err := decodeValue(dec)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", key, err)
			}
			// A repeated key keeps its first position and takes the later value
			if i, dup := index[key]; dup {
				fields[i].Value = val
				continue
			}
			index[key] = len(fields)
			fields = append(fields, Field{Key: key, Value: val})
		}
		if _, err := dec.Token(); err != nil {
			return Value{}, fmt.Errorf("close object: %w", err)
		}
		return Mapping(fields...), nil

	case '[':
		var items []Value
		for dec.More() {
			item, err := decodeValue(dec)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", len(items), err)
			}
			items = append(items, item)
		}
		if _, err := dec.Token(); err != nil {
			return Value{}, fmt.Errorf("close array: %w", err)
		}
		return Sequence(items...), nil

	default:
		return Value{}, fmt.Errorf("unexpected delimiter %q", delim)
	}
}
