package gridwire

// Externalizable types take full control of their own wire representation,
// mirroring spec.md's "externalizable capability" (tag EXTERNALIZABLE).
// A type implementing this interface is reconstructed via its ordinary
// zero value (Go has no separate "no-arg constructor" to synthesize) and
// then handed the stream directly.
type Externalizable interface {
	WriteExternal(w *OutputStream) error
	ReadExternal(r *InputStream) error
}

// MarshalAware types participate the same way, but also publish the
// field names their WriteFields emitted, mirroring spec.md §4.E's
// MARSHAL_AWARE handling. The schema is published on every write of such a
// value; repeated writes of one type id are not deduplicated.
type MarshalAware interface {
	WriteFields(w FieldWriter) error
	ReadFields(r FieldReader) error
}

// WriteReplacer lets a value substitute another object for itself before
// marshalling, mirroring writeReplace.
type WriteReplacer interface {
	WriteReplace() (any, error)
}

// ReadResolver lets a freshly-decoded value resolve to a different final
// value, mirroring readResolve. The handle table entry is patched to the
// resolved value.
type ReadResolver interface {
	ReadResolve() (any, error)
}

// LevelWriter lets one embedding level (the closest Go analogue to a Java
// superclass level, since Go structs use anonymous embedding rather than
// inheritance) take full control of its own field representation, mirroring
// a per-class writeObject override. Presence disables field indexing for
// the owning descriptor, per spec.md §4.C step 5.
type LevelWriter interface {
	WriteObject(w FieldWriter) error
}

// LevelReader is LevelWriter's read-side counterpart, mirroring readObject.
type LevelReader interface {
	ReadObject(r FieldReader) error
}

// Enumer marks a closed set of named constants, the closest Go analogue to
// a Java enum. EnumOrdinal/EnumName let the descriptor capture a constant
// table without requiring real language-level enum support.
type Enumer interface {
	EnumOrdinal() int
	EnumName() string
}

// EnumValuer describes a provider of a type's full constant list. The
// marshaller does not consult it: a descriptor's constant table comes only
// from the values passed to RegisterEnum.
type EnumValuer interface {
	EnumValues() []Enumer
}

// FieldWriter is the per-stream view handed to LevelWriter.WriteObject and
// MarshalAware.WriteFields, mirroring ObjectOutputStream's GetField/
// PutField protocol in miniature.
type FieldWriter interface {
	WriteField(name string, v any) error
}

// FieldReader is FieldWriter's read-side counterpart.
type FieldReader interface {
	ReadField(name string) (any, error)
}

// PersistentFieldKind names a persisted field's primitive shape for a
// declared serialPersistentFields entry, mirroring spec.md §3's field-kind
// table. The ordering matches the internal fieldKind enum so a declared kind
// converts directly.
type PersistentFieldKind uint8

const (
	PersistentFieldOther PersistentFieldKind = iota
	PersistentFieldBool
	PersistentFieldByte
	PersistentFieldShort
	PersistentFieldInt
	PersistentFieldLong
	PersistentFieldFloat
	PersistentFieldDouble
	PersistentFieldChar
)

// PersistentField is one entry in a PersistentFieldDeclarer's field list.
type PersistentField struct {
	Name string
	Kind PersistentFieldKind
}

// PersistentFieldDeclarer lets a type override the default reflective field
// discovery for its own embedding level, mirroring Java's
// `static final ObjectStreamField[] serialPersistentFields` per spec.md §3
// and §4.C step 5. The declared list is authoritative for that level: it may
// name a field that exists on the struct (read from/written to normally) or
// one that does not physically exist (a phantom field, zero-valued on write
// and discarded on read).
type PersistentFieldDeclarer interface {
	SerialPersistentFields() []PersistentField
}

var enumRegistry = map[string][]Enumer{}

// RegisterEnum records the full constant table for an Enumer-implementing
// type, keyed by one sample value's concrete type name. Call once at
// package init for every enum-like type gridwire should marshal with tag
// ENUM. Without a registration the type can still be written, but reading
// it back fails with ErrClassNotFound, since there is no constant table to
// map the ordinal to, and the descriptor's constant table stays empty.
func RegisterEnum(sample Enumer, values ...Enumer) {
	enumRegistry[qualifiedNameOf(sample)] = values
}
