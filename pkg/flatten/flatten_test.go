package flatten

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/Sternrassler/paged-extract/pkg/record"
)

func mustDecode(t *testing.T, s string) record.Value {
	t.Helper()
	v, err := record.Decode([]byte(s))
	if err != nil {
		t.Fatalf("record.Decode(%s) error = %v", s, err)
	}
	return v
}

func mustMarshal(t *testing.T, r *FlatRecord) string {
	t.Helper()
	data, err := r.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	return string(data)
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "nested mapping",
			input: `{"a": {"b": 1, "c": 2}}`,
			want:  `{"a_b":1,"a_c":2}`,
		},
		{
			name:  "sequence with mapping element",
			input: `{"a": [1, 2, {"x": 3}]}`,
			want:  `{"a_0":1,"a_1":2,"a_2_x":3}`,
		},
		{
			name:  "deep nesting",
			input: `{"a": {"b": {"c": {"d": "deep"}}}}`,
			want:  `{"a_b_c_d":"deep"}`,
		},
		{
			name:  "sequence of sequences",
			input: `{"m": [[1, 2], [3]]}`,
			want:  `{"m_0_0":1,"m_0_1":2,"m_1_0":3}`,
		},
		{
			name:  "empty containers vanish",
			input: `{"a": {}, "b": [], "c": 1}`,
			want:  `{"c":1}`,
		},
		{
			name:  "mapping inside sequence inside mapping",
			input: `{"cnae": {"secundarios": [{"codigo": "01", "desc": "x"}, {"codigo": "02"}]}}`,
			want:  `{"cnae_secundarios_0_codigo":"01","cnae_secundarios_0_desc":"x","cnae_secundarios_1_codigo":"02"}`,
		},
		{
			name:  "nulls and booleans kept",
			input: `{"a": null, "b": {"c": false}}`,
			want:  `{"a":null,"b_c":false}`,
		},
		{
			name:  "html characters not escaped",
			input: `{"name": "A & B <ltda>"}`,
			want:  `{"name":"A & B <ltda>"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustMarshal(t, Flatten(mustDecode(t, tt.input), ""))
			if got != tt.want {
				t.Errorf("Flatten() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFlatten_Prefix(t *testing.T) {
	got := mustMarshal(t, Flatten(mustDecode(t, `{"a": {"b": 1}, "c": [2]}`), "root_"))
	want := `{"root_a_b":1,"root_c_0":2}`
	if got != want {
		t.Errorf("Flatten() = %s, want %s", got, want)
	}
}

func TestFlatten_NoNestingIsIdentity(t *testing.T) {
	input := mustDecode(t, `{"id": 7, "name": "acme", "active": true, "score": 1.25, "note": null}`)
	got := Flatten(input, "")

	if got.Len() != len(input.Fields()) {
		t.Fatalf("Len() = %d, want %d", got.Len(), len(input.Fields()))
	}
	for i, f := range input.Fields() {
		if got.Keys()[i] != f.Key {
			t.Errorf("Keys()[%d] = %q, want %q", i, got.Keys()[i], f.Key)
		}
		v, ok := got.Get(f.Key)
		if !ok || v != f.Value.Scalar() {
			t.Errorf("Get(%q) = %v, want %v", f.Key, v, f.Value.Scalar())
		}
	}
}

func TestFlatten_CollisionLastWriteWins(t *testing.T) {
	got := Flatten(mustDecode(t, `{"a_b": 1, "a": {"b": 2}, "z": 0}`), "")

	if got.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", got.Len())
	}
	v, _ := got.Get("a_b")
	if v != json.Number("2") {
		t.Errorf("a_b = %v, want 2 (later path wins)", v)
	}
	if keys := got.Keys(); !reflect.DeepEqual(keys, []string{"a_b", "z"}) {
		t.Errorf("Keys() = %v, want [a_b z]", keys)
	}
}

func TestFlatten_DuplicateSourceKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"scalar replaces mapping", `{"a": {"b": 1}, "a": 2}`, `{"a":2}`},
		{"mapping replaces scalar", `{"a": 2, "x": 0, "a": {"b": 1}}`, `{"a_b":1,"x":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustMarshal(t, Flatten(mustDecode(t, tt.in), "")); got != tt.want {
				t.Errorf("Flatten(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestFlatten_NoStructuredValues(t *testing.T) {
	input := mustDecode(t, `{"a": [{"b": [[{"c": [1]}]]}], "d": {"e": {"f": []}}, "g": [[[]], {}]}`)
	got := Flatten(input, "")

	for _, key := range got.Keys() {
		v, _ := got.Get(key)
		switch v.(type) {
		case nil, string, bool, json.Number:
		default:
			t.Errorf("key %q holds non-primitive %T", key, v)
		}
	}
}

func TestFlatten_Deterministic(t *testing.T) {
	input := mustDecode(t, `{"x": {"y": [1, {"z": 2}]}, "x_y_1_z": 3, "w": "v"}`)

	first := mustMarshal(t, Flatten(input, ""))
	for i := 0; i < 50; i++ {
		if got := mustMarshal(t, Flatten(input, "")); got != first {
			t.Fatalf("run %d = %s, want %s", i, got, first)
		}
	}
}

func TestFlatten_DoesNotMutateInput(t *testing.T) {
	input := mustDecode(t, `{"a": {"b": 1}}`)
	_ = Flatten(input, "p_")

	if input.Fields()[0].Key != "a" || input.Fields()[0].Value.Fields()[0].Key != "b" {
		t.Error("Flatten modified its input")
	}
}

func TestFlatRecord_Set(t *testing.T) {
	r := NewFlatRecord()
	r.Set("b", 1)
	r.Set("a", 2)
	r.Set("b", 3)

	if !reflect.DeepEqual(r.Keys(), []string{"b", "a"}) {
		t.Errorf("Keys() = %v, want [b a]", r.Keys())
	}
	if v, _ := r.Get("b"); v != 3 {
		t.Errorf("Get(b) = %v, want 3", v)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) should report false")
	}
}

func TestFlatRecord_MarshalEmpty(t *testing.T) {
	if got := mustMarshal(t, NewFlatRecord()); got != `{}` {
		t.Errorf("empty record = %s, want {}", got)
	}
}
