// Package gridwire implements an optimized binary object marshaller for a
// distributed in-memory data grid: a self-describing tagged-union wire
// format with stable per-field identifiers that supports partial field
// extraction from a serialized blob without fully deserializing the
// object.
package gridwire

import (
	"bytes"
	"context"
	"io"
	"reflect"
)

// TypeRef is a class-literal value, the Go stand-in for "an instance of
// java.lang.Class itself" (wire tag CLASS): marshalling a TypeRef writes
// only its referenced type's id/name metadata, no field payload.
type TypeRef struct {
	T reflect.Type
}

// Marshaller is the top-level entry point: it owns the descriptor cache
// (component D) and the stream registry (component G) for one
// configuration. The zero value is not usable; construct with New.
type Marshaller struct {
	cfg      Config
	cache    *descriptorCache
	registry *streamRegistry
}

// New constructs a Marshaller with the given options applied over
// DefaultConfig.
func New(opts ...Option) *Marshaller {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Marshaller{
		cfg:      cfg,
		cache:    newDescriptorCache(),
		registry: newStreamRegistry(cfg.PoolSize),
	}
}

var defaultMarshaller = New()

// Marshal writes obj to a freshly allocated byte slice using the default
// Marshaller, per spec.md §6's `marshal(obj) -> bytes`.
func Marshal(obj any) ([]byte, error) { return defaultMarshaller.Marshal(obj) }

// MarshalTo writes obj to sink, per spec.md §6's `marshal(obj, sink)`.
func MarshalTo(obj any, sink io.Writer) error { return defaultMarshaller.MarshalTo(obj, sink) }

// Unmarshal reads one value from data, per spec.md §6's
// `unmarshal(bytes, resolver) -> obj`.
func Unmarshal(data []byte, resolver ClassResolver) (any, error) {
	return defaultMarshaller.Unmarshal(data, resolver)
}

// UnmarshalRange reads one value from data[off:off+length], per spec.md §6's
// `unmarshal(bytes, off, len, resolver) -> obj`.
func UnmarshalRange(data []byte, off, length int, resolver ClassResolver) (any, error) {
	return defaultMarshaller.UnmarshalRange(data, off, length, resolver)
}

// HasField reports whether name is present in v's footer, per spec.md §6's
// `has_field(name, bytes, off, len) -> bool`.
func HasField(name string, data []byte, off, length int) (bool, error) {
	return defaultMarshaller.HasField(name, data, off, length)
}

// ReadField decodes one field by name from a previously-written blob, per
// spec.md §6's `read_field(name, bytes, off, len, resolver, ctx) -> value`.
func ReadField(name string, data []byte, off, length int, resolver ClassResolver) (any, error) {
	return defaultMarshaller.ReadField(name, data, off, length, resolver)
}

// OnUndeploy evicts every descriptor registered under loader, per spec.md
// §4.D/§5's undeploy contract.
func OnUndeploy(loader Loader) { defaultMarshaller.OnUndeploy(loader) }

// Marshal writes obj to a freshly allocated byte slice.
func (m *Marshaller) Marshal(obj any) ([]byte, error) {
	var buf bytes.Buffer
	if err := m.MarshalTo(obj, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalTo writes obj to sink using a stream handle acquired from the
// registry, per spec.md §4.G.
func (m *Marshaller) MarshalTo(obj any, sink io.Writer) error {
	if sink == nil {
		return wrapError(ErrIO, errNilSink)
	}
	out, err := m.registry.acquireOutput(context.Background())
	if err != nil {
		return err
	}
	out.m = m
	defer m.registry.releaseOutput(out)

	if err := m.writeValue(reflect.ValueOf(obj), out); err != nil {
		return err
	}
	if _, err := sink.Write(out.Bytes()); err != nil {
		return wrapError(ErrIO, err)
	}
	return nil
}

// Unmarshal reads one value from data.
func (m *Marshaller) Unmarshal(data []byte, resolver ClassResolver) (any, error) {
	return m.UnmarshalRange(data, 0, len(data), resolver)
}

// UnmarshalRange reads one value from data[off:off+length].
func (m *Marshaller) UnmarshalRange(data []byte, off, length int, resolver ClassResolver) (any, error) {
	if off < 0 || length < 0 || off+length > len(data) {
		return nil, newError(ErrProtocolViolation, "range [%d:%d] out of bounds for %d-byte document", off, off+length, len(data))
	}
	in, err := m.registry.acquireInput(context.Background(), data[off:off+length])
	if err != nil {
		return nil, err
	}
	in.m = m
	defer m.registry.releaseInput(in)

	v, err := m.readValue(in, resolver)
	if err != nil {
		return nil, err
	}
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

// OnUndeploy evicts every descriptor registered under loader.
func (m *Marshaller) OnUndeploy(loader Loader) {
	m.cache.onUndeploy(loader)
}

// RegisterWithLoader associates every concrete type in values with loader,
// so a later OnUndeploy(loader) evicts their descriptors. Call this after
// at least one successful Marshal/Unmarshal of each type so its descriptor
// already exists in the cache.
func (m *Marshaller) RegisterWithLoader(loader Loader, values ...any) {
	for _, v := range values {
		m.cache.associate(reflect.TypeOf(v), loader)
	}
}
