package gridwire

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Grounded on the teacher's decoder_race_test.go
// (TestDecoderConcurrentUnmarshalRace): many goroutines hammering the same
// decoded bytes concurrently, adapted from glint's single fixed-schema
// decoder to gridwire's per-call resolver, and scaled up to the 32 threads
// spec.md §8's Concurrency property names explicitly.
func TestConcurrentMarshalUnmarshalMatchesSequential(t *testing.T) {
	m := New()
	want := Person{
		Name:    "Ada",
		Age:     36,
		Address: Address{City: "London", Zip: "W1"},
		Tags:    []string{"math", "computing"},
		Scores:  map[string]int64{"chess": 1200},
	}

	sequential, err := m.Marshal(want)
	require.NoError(t, err)

	const threads = 32
	var wg sync.WaitGroup
	wg.Add(threads)
	results := make([][]byte, threads)
	errs := make([]error, threads)

	for i := 0; i < threads; i++ {
		go func(i int) {
			defer wg.Done()
			data, err := m.Marshal(want)
			if err != nil {
				errs[i] = err
				return
			}
			out, err := m.Unmarshal(data, resolverFor(Person{}, Address{}))
			if err != nil {
				errs[i] = err
				return
			}
			got := out.(*Person)
			if got.Name != want.Name || got.Age != want.Age || got.Address != want.Address {
				errs[i] = assertionFailure{}
				return
			}
			results[i] = data
		}(i)
	}
	wg.Wait()

	for i := 0; i < threads; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, sequential, results[i], "concurrent marshal %d must match the sequential baseline byte-for-byte", i)
	}
}

type assertionFailure struct{}

func (assertionFailure) Error() string { return "decoded value diverged from input" }

// Grounded on spec.md's Data Model invariant ("exactly one descriptor is
// installed per (class) key even under concurrent lookups") and §4.D's
// compare-and-set description: many goroutines racing to build the first
// descriptor for a type must all observe the same *ClassDescriptor.
func TestConcurrentDescriptorInstallIsSingleWinner(t *testing.T) {
	m := New()
	type RaceTarget struct {
		A int32
		B string
	}
	rt := reflect.TypeOf(RaceTarget{})

	const goroutines = 32
	var wg sync.WaitGroup
	wg.Add(goroutines)
	descriptors := make([]*ClassDescriptor, goroutines)

	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			d, err := m.cache.get(rt, func() (*ClassDescriptor, error) {
				return m.buildDescriptor(rt)
			})
			if err == nil {
				descriptors[i] = d
			}
		}(i)
	}
	wg.Wait()

	first := descriptors[0]
	require.NotNil(t, first)
	for i := 1; i < goroutines; i++ {
		assert.Same(t, first, descriptors[i], "every concurrent lookup must observe the single installed descriptor")
	}
}
