package gridwire

import (
	"math"
	"testing"
)

// fuzzPrimitives is the struct every fuzz case round-trips, grounded on the
// teacher's FuzzPrimitiveTypesRoundtrip (glint_fuzz_test.go) seed-corpus
// style, adapted to gridwire's tagged wire form in place of glint's
// schema-hash document.
type fuzzPrimitives struct {
	Str     string
	Int64   int64
	Uint64  uint64
	Float64 float64
	Bool    bool
}

// FuzzPrimitivesRoundtrip round-trips arbitrary primitive combinations
// through Marshal/Unmarshal, matching the teacher's fuzz harness shape
// (seed corpus of edge cases, native go test -fuzz).
func FuzzPrimitivesRoundtrip(f *testing.F) {
	f.Add("greetings", int64(0), uint64(0), float64(0.0), true)
	f.Add("", int64(math.MinInt64), uint64(math.MaxUint64), float64(math.NaN()), false)
	f.Add("world", int64(math.MaxInt64), uint64(0), float64(math.Inf(1)), true)
	f.Add("data\x00null", int64(-1), uint64(1), float64(math.Inf(-1)), false)
	f.Add(string([]byte{0xFF, 0xFE, 0xFD}), int64(42), uint64(42), float64(3.14159), true)

	m := New()
	resolver := resolverFor(fuzzPrimitives{})

	f.Fuzz(func(t *testing.T, str string, i64 int64, u64 uint64, f64 float64, b bool) {
		original := fuzzPrimitives{Str: str, Int64: i64, Uint64: u64, Float64: f64, Bool: b}

		data, err := m.Marshal(original)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}

		out, err := m.Unmarshal(data, resolver)
		if err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		got, ok := out.(*fuzzPrimitives)
		if !ok {
			t.Fatalf("expected *fuzzPrimitives, got %T", out)
		}

		if got.Str != original.Str || got.Int64 != original.Int64 ||
			got.Uint64 != original.Uint64 || got.Bool != original.Bool {
			t.Fatalf("round-trip mismatch: got %+v want %+v", *got, original)
		}
		// NaN never equals itself, so Float64 is compared only for non-NaN inputs.
		if !math.IsNaN(original.Float64) && got.Float64 != original.Float64 {
			t.Fatalf("Float64 round-trip mismatch: got %v want %v", got.Float64, original.Float64)
		}
	})
}

// FuzzStringWireShape exercises the string codec directly against
// arbitrary UTF-8 and non-UTF-8 byte sequences, per spec.md §6's "Strings
// are UTF-8 with a 32-bit length prefix".
func FuzzStringWireShape(f *testing.F) {
	f.Add("")
	f.Add("hello")
	f.Add(string([]byte{0xFF, 0xFE}))

	f.Fuzz(func(t *testing.T, s string) {
		var out outputBuffer
		out.WriteString(s)
		in := &inputBuffer{bytes: out.Bytes()}
		got, err := in.ReadString()
		if err != nil {
			t.Fatalf("ReadString: %v", err)
		}
		if got != s {
			t.Fatalf("string round-trip mismatch: got %q want %q", got, s)
		}
	})
}
