package gridwire

import "testing"

// Benchmarks mirror the teacher's glint_bench_test.go convention of keeping
// throughput benchmarks in their own file, separate from correctness tests.

func BenchmarkMarshalSimpleStruct(b *testing.B) {
	m := New()
	p := Person{
		Name:    "Ada",
		Age:     36,
		Address: Address{City: "London", Zip: "W1"},
		Tags:    []string{"math", "computing"},
		Scores:  map[string]int64{"chess": 1200},
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Marshal(p); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkUnmarshalSimpleStruct(b *testing.B) {
	m := New()
	p := Person{
		Name:    "Ada",
		Age:     36,
		Address: Address{City: "London", Zip: "W1"},
		Tags:    []string{"math", "computing"},
		Scores:  map[string]int64{"chess": 1200},
	}
	data, err := m.Marshal(p)
	if err != nil {
		b.Fatal(err)
	}
	resolver := resolverFor(Person{}, Address{})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Unmarshal(data, resolver); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFieldIndexedReadField(b *testing.B) {
	m := New(WithIndexingHandler(alwaysIndex{}))
	doc := IndexedDoc{ID: 99, Name: "widget", Score: 4.5}
	data, err := m.Marshal(doc)
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.ReadField("Name", data, 0, len(data), nil); err != nil {
			b.Fatal(err)
		}
	}
}
