package gridwire

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Token struct {
	Raw string
}

func (t *Token) WriteExternal(w *OutputStream) error {
	return w.WriteField("raw", t.Raw)
}

func (t *Token) ReadExternal(r *InputStream) error {
	v, err := r.ReadField("raw")
	if err != nil {
		return err
	}
	t.Raw = v.(string)
	return nil
}

func TestExternalizableRoundTrip(t *testing.T) {
	m := New()
	data, err := m.Marshal(Token{Raw: "abc123"})
	require.NoError(t, err)

	out, err := m.Unmarshal(data, resolverFor(Token{}))
	require.NoError(t, err)

	got, ok := out.(*Token)
	require.True(t, ok, "expected *Token, got %T", out)
	assert.Equal(t, "abc123", got.Raw)
}

type Ledger struct {
	Entries []int64
}

func (l *Ledger) WriteFields(w FieldWriter) error {
	var sum int64
	for _, e := range l.Entries {
		sum += e
	}
	return w.WriteField("sum", sum)
}

func (l *Ledger) ReadFields(r FieldReader) error {
	v, err := r.ReadField("sum")
	if err != nil {
		return err
	}
	l.Entries = []int64{v.(int64)}
	return nil
}

func TestMarshalAwareRoundTrip(t *testing.T) {
	m := New(WithIndexingHandler(alwaysIndex{}))
	data, err := m.Marshal(Ledger{Entries: []int64{10, 20, 5}})
	require.NoError(t, err)

	out, err := m.Unmarshal(data, resolverFor(Ledger{}))
	require.NoError(t, err)

	got, ok := out.(*Ledger)
	require.True(t, ok, "expected *Ledger, got %T", out)
	assert.Equal(t, []int64{35}, got.Entries)

	schema, ok := SchemaOf(resolveTypeID(qualifiedName(reflect.TypeOf(Ledger{})), nil))
	require.True(t, ok, "a MarshalAware write must publish its schema via the configured MetadataHandler")
	assert.Equal(t, []string{"sum"}, schema)
}

// Money marshals itself as a MoneyProxy: a classic writeReplace/readResolve
// serialization-proxy pair, where the wire document never carries Money's
// own class at all.
type Money struct {
	Cents int64
}

func (m Money) WriteReplace() (any, error) {
	return MoneyProxy{Cents: m.Cents}, nil
}

type MoneyProxy struct {
	Cents int64
}

func (p MoneyProxy) ReadResolve() (any, error) {
	return &Money{Cents: p.Cents}, nil
}

func TestWriteReplaceReadResolveRoundTrip(t *testing.T) {
	m := New()
	data, err := m.Marshal(Money{Cents: 150})
	require.NoError(t, err)

	out, err := m.Unmarshal(data, resolverFor(MoneyProxy{}))
	require.NoError(t, err)

	got, ok := out.(*Money)
	require.True(t, ok, "ReadResolve must hand back *Money, not the wire-level MoneyProxy, got %T", out)
	assert.Equal(t, int64(150), got.Cents)
}

// RedactedSecret's WriteReplace returns a same-type copy with a field
// scrubbed, rather than a distinct proxy type — the replacement, not the
// original, must be what lands on the wire.
type RedactedSecret struct {
	Name   string
	Secret string
}

func (r RedactedSecret) WriteReplace() (any, error) {
	return RedactedSecret{Name: r.Name, Secret: "[redacted]"}, nil
}

func TestWriteReplaceSameTypeUsesReplacement(t *testing.T) {
	m := New()
	data, err := m.Marshal(RedactedSecret{Name: "alice", Secret: "hunter2"})
	require.NoError(t, err)

	out, err := m.Unmarshal(data, resolverFor(RedactedSecret{}))
	require.NoError(t, err)

	got, ok := out.(*RedactedSecret)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, "[redacted]", got.Secret, "the same-type WriteReplace result must be written, not the original value")
}

// CustomLevel takes full control of its own field representation via
// WriteObject/ReadObject, disabling field indexing for its descriptor.
type CustomLevel struct {
	A int32
	B int32
}

func (c *CustomLevel) WriteObject(w FieldWriter) error {
	return w.WriteField("sum", c.A+c.B)
}

func (c *CustomLevel) ReadObject(r FieldReader) error {
	v, err := r.ReadField("sum")
	if err != nil {
		return err
	}
	c.A = v.(int32)
	c.B = 0
	return nil
}

func TestLevelWriterReaderRoundTrip(t *testing.T) {
	m := New(WithIndexingHandler(alwaysIndex{}))
	data, err := m.Marshal(CustomLevel{A: 3, B: 4})
	require.NoError(t, err)

	out, err := m.Unmarshal(data, resolverFor(CustomLevel{}))
	require.NoError(t, err)

	got, ok := out.(*CustomLevel)
	require.True(t, ok, "expected *CustomLevel, got %T", out)
	assert.Equal(t, int32(7), got.A)
	assert.Equal(t, int32(0), got.B)

	_, err = m.HasField("sum", data, 0, len(data))
	require.Error(t, err, "a custom WriteObject/ReadObject level must disable field indexing")
}

type Color int32

const (
	ColorRed Color = iota
	ColorGreen
	ColorBlue
)

func (c Color) EnumOrdinal() int { return int(c) }

func (c Color) EnumName() string {
	switch c {
	case ColorRed:
		return "Red"
	case ColorGreen:
		return "Green"
	case ColorBlue:
		return "Blue"
	default:
		return "Unknown"
	}
}

func init() {
	RegisterEnum(ColorRed, ColorRed, ColorGreen, ColorBlue)
}

// LegacyAccount declares its own serialPersistentFields-style override: Name
// reads/writes through the real field, but the declared Balance entry has no
// backing struct field at all, exercising the phantom-field path.
type LegacyAccount struct {
	Name string
}

func (LegacyAccount) SerialPersistentFields() []PersistentField {
	return []PersistentField{
		{Name: "Name", Kind: PersistentFieldOther},
		{Name: "Balance", Kind: PersistentFieldLong},
	}
}

func TestPersistentFieldDeclarerRoundTrip(t *testing.T) {
	m := New(WithIndexingHandler(alwaysIndex{}))
	data, err := m.Marshal(LegacyAccount{Name: "ada"})
	require.NoError(t, err)

	out, err := m.Unmarshal(data, resolverFor(LegacyAccount{}))
	require.NoError(t, err)

	got, ok := out.(*LegacyAccount)
	require.True(t, ok, "expected *LegacyAccount, got %T", out)
	assert.Equal(t, "ada", got.Name)

	has, err := m.HasField("Balance", data, 0, len(data))
	require.NoError(t, err)
	assert.True(t, has, "a phantom field still occupies a footer slot")

	v, err := m.ReadField("Balance", data, 0, len(data), resolverFor(LegacyAccount{}))
	require.NoError(t, err)
	assert.Equal(t, int64(0), v, "a phantom field reads back as its kind's zero value")
}

func TestEnumRoundTrip(t *testing.T) {
	m := New()
	data, err := m.Marshal(ColorGreen)
	require.NoError(t, err)

	out, err := m.Unmarshal(data, resolverFor(ColorRed))
	require.NoError(t, err)

	got, ok := out.(Color)
	require.True(t, ok, "expected Color, got %T", out)
	assert.Equal(t, ColorGreen, got)
	assert.Equal(t, "Green", got.EnumName())
}
