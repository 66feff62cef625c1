// Package flatten collapses nested records into single-level key/value records.
//
// Nested mapping keys are joined with "_", sequence elements get their index
// as a path segment:
//
//	{"a": {"b": 1}, "c": [1, {"x": 3}]}  ->  {"a_b": 1, "c_0": 1, "c_1_x": 3}
//
// When two source paths produce the same flattened key, the later one in source
// order wins. The key keeps the position it was first written at.
package flatten

import (
	"strconv"

	"github.com/Sternrassler/paged-extract/pkg/record"
)

// Separator joins path segments in flattened keys.
const Separator = "_"

// Flatten converts one record into a FlatRecord. Every key is prefixed with
// keyPrefix verbatim. Flatten has no side effects and is safe for concurrent use.
func Flatten(r record.Value, keyPrefix string) *FlatRecord {
	out := NewFlatRecord()
	flattenMapping(out, r, keyPrefix)
	return out
}

func flattenMapping(out *FlatRecord, m record.Value, prefix string) {
	for _, f := range m.Fields() {
		key := prefix + f.Key
		switch f.Value.Kind() {
		case record.KindMapping:
			flattenMapping(out, f.Value, key+Separator)
		case record.KindSequence:
			flattenSequence(out, f.Value, key)
		default:
			out.Set(key, f.Value.Scalar())
		}
	}
}

// flattenSequence handles sequences nested directly in sequences as well,
// so no value in the output is ever a structure.
func flattenSequence(out *FlatRecord, seq record.Value, key string) {
	for i, item := range seq.Items() {
		indexed := key + Separator + strconv.Itoa(i)
		switch item.Kind() {
		case record.KindMapping:
			flattenMapping(out, item, indexed+Separator)
		case record.KindSequence:
			flattenSequence(out, item, indexed)
		default:
			out.Set(indexed, item.Scalar())
		}
	}
}
