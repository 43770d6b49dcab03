package gridwire

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// typeMapResolver resolves class names to registered types, the simplest
// possible ClassResolver for tests.
type typeMapResolver map[string]reflect.Type

func (r typeMapResolver) Resolve(name string) (reflect.Type, error) {
	if t, ok := r[name]; ok {
		return t, nil
	}
	return nil, newError(ErrClassNotFound, "no type registered for %q", name)
}

func resolverFor(values ...any) typeMapResolver {
	r := make(typeMapResolver, len(values))
	for _, v := range values {
		t := reflect.TypeOf(v)
		r[qualifiedName(t)] = t
	}
	return r
}

type Address struct {
	City string
	Zip  string
}

type Person struct {
	Name    string
	Age     int32
	Address Address
	Tags    []string
	Scores  map[string]int64
}

func TestRoundTripSimpleStruct(t *testing.T) {
	m := New()
	p := Person{
		Name:    "Ada",
		Age:     36,
		Address: Address{City: "London", Zip: "W1"},
		Tags:    []string{"math", "computing"},
		Scores:  map[string]int64{"chess": 1200},
	}

	data, err := m.Marshal(p)
	require.NoError(t, err)

	out, err := m.Unmarshal(data, resolverFor(Person{}, Address{}))
	require.NoError(t, err)

	got, ok := out.(*Person)
	require.True(t, ok, "expected *Person, got %T", out)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.Age, got.Age)
	assert.Equal(t, p.Address, got.Address)
	assert.Equal(t, p.Tags, []string(got.Tags))
	assert.Equal(t, p.Scores["chess"], got.Scores["chess"])
}

func TestRoundTripIsDeterministic(t *testing.T) {
	m := New()
	p := Person{Name: "Grace", Age: 40}
	a, err := m.Marshal(p)
	require.NoError(t, err)
	b, err := m.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, a, b, "two marshals of the same value must produce identical bytes")
}

type Node struct {
	Value int32
	Next  *Node
}

func TestSelfCycleRoundTrips(t *testing.T) {
	m := New()
	n := &Node{Value: 7}
	n.Next = n

	data, err := m.Marshal(n)
	require.NoError(t, err)

	out, err := m.Unmarshal(data, resolverFor(Node{}))
	require.NoError(t, err)

	got, ok := out.(*Node)
	require.True(t, ok)
	assert.Equal(t, int32(7), got.Value)
	assert.Same(t, got, got.Next, "self-cycle must resolve to the same object, not a copy")
}

func TestSharedReferencePreservesIdentity(t *testing.T) {
	m := New()
	shared := &Address{City: "Paris"}
	type Pair struct {
		A *Address
		B *Address
	}
	pair := Pair{A: shared, B: shared}

	data, err := m.Marshal(pair)
	require.NoError(t, err)

	out, err := m.Unmarshal(data, resolverFor(Pair{}, Address{}))
	require.NoError(t, err)

	got := out.(*Pair)
	assert.Same(t, got.A, got.B, "two fields sharing one pointer on write must share one pointer on read")
}

type Versioned struct {
	A int32
	B int32
}

func TestChecksumMismatchRejected(t *testing.T) {
	m := New()
	v := Versioned{A: 1, B: 2}
	data, err := m.Marshal(v)
	require.NoError(t, err)

	// Corrupt the checksum bytes (they sit right after the 4-byte type id,
	// following the 1-byte tag).
	corrupted := append([]byte(nil), data...)
	corrupted[5] ^= 0xFF

	_, err = m.Unmarshal(corrupted, resolverFor(Versioned{}))
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrSchemaMismatch, kind)
}

type excludedField struct{ Secret string }

type WithExclusion struct {
	Name    string
	Skipped excludedField
}

func TestExcludedTypeAlwaysNull(t *testing.T) {
	m := New(WithExcluded(excludedField{}))
	v := WithExclusion{Name: "x", Skipped: excludedField{Secret: "shh"}}

	data, err := m.Marshal(v)
	require.NoError(t, err)

	out, err := m.Unmarshal(data, resolverFor(WithExclusion{}))
	require.NoError(t, err)

	got := out.(*WithExclusion)
	assert.Equal(t, "x", got.Name)
	assert.Equal(t, excludedField{}, got.Skipped)
}

func TestFieldOrderIndependentBytes(t *testing.T) {
	m := New()
	type Ordered1 struct {
		B int32
		A int32
	}
	type Ordered2 struct {
		A int32
		B int32
	}
	v1 := Ordered1{A: 1, B: 2}
	v2 := Ordered2{A: 1, B: 2}

	d1, err := m.Marshal(v1)
	require.NoError(t, err)
	d2, err := m.Marshal(v2)
	require.NoError(t, err)

	// Field declaration order differs, but descriptor fields sort by name,
	// so the wire bytes for the shared (A, B) fields land identically.
	assert.Equal(t, d1, d2)
}

type IndexedDoc struct {
	ID    int64
	Name  string
	Score float64
}

type alwaysIndex struct{}

func (alwaysIndex) EnableIndexingFor(t reflect.Type) bool   { return true }
func (alwaysIndex) MetadataHandler() MetadataPublisher { return ProcessSchemaRegistry{} }

func TestFieldIndexingRoundTrip(t *testing.T) {
	m := New(WithIndexingHandler(alwaysIndex{}))
	doc := IndexedDoc{ID: 99, Name: "widget", Score: 4.5}

	data, err := m.Marshal(doc)
	require.NoError(t, err)

	has, err := m.HasField("Name", data, 0, len(data))
	require.NoError(t, err)
	assert.True(t, has)

	has, err = m.HasField("NotAField", data, 0, len(data))
	require.NoError(t, err)
	assert.False(t, has)

	v, err := m.ReadField("Name", data, 0, len(data), resolverFor(IndexedDoc{}))
	require.NoError(t, err)
	assert.Equal(t, "widget", v)

	v, err = m.ReadField("ID", data, 0, len(data), resolverFor(IndexedDoc{}))
	require.NoError(t, err)
	assert.Equal(t, int64(99), v)
}

func TestDateRoundTrip(t *testing.T) {
	m := New()
	type WithDate struct {
		When time.Time
	}
	now := time.UnixMilli(1712345678000).UTC()
	data, err := m.Marshal(WithDate{When: now})
	require.NoError(t, err)

	out, err := m.Unmarshal(data, resolverFor(WithDate{}))
	require.NoError(t, err)
	got := out.(*WithDate)
	assert.True(t, now.Equal(got.When))
}

type EmbeddedBase struct {
	Created int64
}

type EmbeddedLeaf struct {
	EmbeddedBase
	Name string
}

func TestEmbeddedStructWritesBaseFirst(t *testing.T) {
	m := New()
	v := EmbeddedLeaf{EmbeddedBase: EmbeddedBase{Created: 5}, Name: "x"}
	data, err := m.Marshal(v)
	require.NoError(t, err)

	// The header is tag (1) + type id (4) + checksum (2); the base level's
	// Created int64 must come right after it, ahead of the leaf's Name.
	assert.Equal(t, []byte{5, 0, 0, 0, 0, 0, 0, 0}, data[7:15], "the embedded base level must be written before the leaf's own fields")

	out, err := m.Unmarshal(data, resolverFor(EmbeddedLeaf{}))
	require.NoError(t, err)
	got := out.(*EmbeddedLeaf)
	assert.Equal(t, int64(5), got.Created)
	assert.Equal(t, "x", got.Name)
}

// WithCallback has a field whose type declares no marshalling capability at
// all (not a struct, not Externalizable/MarshalAware/Enumer), exercising
// RequireSerializable's actual enforcement point.
type WithCallback struct {
	Name string
	Hook func()
}

func TestRequireSerializableRejectsUndeclaredType(t *testing.T) {
	m := New() // RequireSerializable defaults to true
	_, err := m.Marshal(WithCallback{Name: "x", Hook: func() {}})
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrNotSerializable, kind)
}

func TestRequireSerializableFalsePermitsUndeclaredType(t *testing.T) {
	m := New(WithRequireSerializable(false))
	_, err := m.Marshal(WithCallback{Name: "x", Hook: func() {}})
	assert.NoError(t, err, "WithRequireSerializable(false) must allow writing types with no declared capability")
}
