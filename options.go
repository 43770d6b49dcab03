package gridwire

import "reflect"

// Config collects the options enumerated in spec.md §6, built with
// functional options matching glint's DecodeLimits/DefaultLimits
// plain-struct-with-defaults convention (glint.go).
type Config struct {
	RequireSerializable bool
	IDMapper            IdMapper
	ProtocolVersion      uint8
	PoolSize             uint32
	IndexingHandler      IndexingHandler
	Context              MarshallerContext

	excluded map[reflect.Type]bool
}

// DefaultConfig mirrors glint's DefaultLimits: the configuration a fresh
// Marshaller starts from absent any options.
func DefaultConfig() Config {
	return Config{
		RequireSerializable: true,
		ProtocolVersion:     ProtocolV1,
		PoolSize:            0,
		excluded:            make(map[reflect.Type]bool),
	}
}

func (c *Config) isExcluded(t reflect.Type) bool {
	return c.excluded[t]
}

// Option configures a Marshaller at construction time.
type Option func(*Config)

// WithIDMapper installs a custom name->id mapper (spec.md's IdMapper).
func WithIDMapper(m IdMapper) Option {
	return func(c *Config) { c.IDMapper = m }
}

// WithRequireSerializable toggles whether writing a type that declares no
// marshalling capability (Externalizable/MarshalAware/Enumer/struct-shaped
// SERIALIZABLE) is an error (default true). With false, such a value is
// still written, best-effort, as an empty SERIALIZABLE payload.
func WithRequireSerializable(require bool) Option {
	return func(c *Config) { c.RequireSerializable = require }
}

// WithPoolSize selects the stream registry's mode: 0 (default) is the
// per-goroutine cached fast path, >0 is a bounded bool shared pool.
func WithPoolSize(n uint32) Option {
	return func(c *Config) { c.PoolSize = n }
}

// WithIndexingHandler enables has_field/read_field support for the types
// it names, per spec.md §4.H.
func WithIndexingHandler(h IndexingHandler) Option {
	return func(c *Config) { c.IndexingHandler = h }
}

// WithContext installs a MarshallerContext for out-of-band type-id
// resolution during reads (spec.md's injected MarshallerContext).
func WithContext(ctx MarshallerContext) Option {
	return func(c *Config) { c.Context = ctx }
}

// WithExcluded marks types that always marshal as NULL, mirroring spec.md
// §4.C step 1's exclusion list: a top-level value of such a type unmarshals
// to nil, and a field of such a type is left at its zero value.
func WithExcluded(values ...any) Option {
	return func(c *Config) {
		if c.excluded == nil {
			c.excluded = make(map[reflect.Type]bool)
		}
		for _, v := range values {
			c.excluded[reflect.TypeOf(v)] = true
		}
	}
}

// IndexingHandler enables field-indexing for selected types and exposes a
// metadata publisher, per spec.md's injected IndexingHandler contract.
type IndexingHandler interface {
	EnableIndexingFor(t reflect.Type) bool
	MetadataHandler() MetadataPublisher
}

// MetadataPublisher receives a MARSHAL_AWARE type's field-name schema each
// time a value of that type is written; repeated writes of one type id
// publish again.
type MetadataPublisher interface {
	PublishSchema(typeID uint32, fields []string)
}

// MarshallerContext resolves unknown type ids to class names out-of-band,
// mirroring spec.md's injected MarshallerContext contract.
type MarshallerContext interface {
	ClassName(typeID uint32) (string, bool)
}

// ClassResolver resolves a class/type name to a reflect.Type, supplied per
// unmarshal call by the caller (spec.md's injected ClassResolver).
type ClassResolver interface {
	Resolve(name string) (reflect.Type, error)
}

// Loader models a class-loader-like undeploy boundary. Go has no runtime
// class loaders, so gridwire approximates the concept: types are
// associated with a Loader via RegisterWithLoader, and OnUndeploy evicts
// every descriptor registered under it.
type Loader interface {
	Name() string
}

// namedLoader is the simplest Loader: just a name.
type namedLoader string

func (n namedLoader) Name() string { return string(n) }

// NewLoader returns a trivial named Loader.
func NewLoader(name string) Loader { return namedLoader(name) }
