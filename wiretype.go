package gridwire

import "hash/fnv"

// tag is the single-byte wire discriminator, a closed enumeration that MUST
// NOT be renumbered since these values travel on the wire. Modeled on
// glint's WireType enum (glint.go) in shape, but closed rather than open:
// the source format is a fixed Java-style type union, not Go's reflect.Kind
// space, so gridwire enumerates exactly the tags the wire grammar names
// instead of deriving them from reflect.Kind.
type tag uint8

const (
	tagNull tag = iota
	tagHandle
	tagBool
	tagByte
	tagShort
	tagInt
	tagLong
	tagFloat
	tagDouble
	tagChar
	tagString
	tagUUID
	tagDate
	tagBoolArray
	tagByteArray
	tagShortArray
	tagIntArray
	tagLongArray
	tagFloatArray
	tagDoubleArray
	tagCharArray
	tagClass
	tagProperties
	tagArrayList
	tagLinkedList
	tagHashMap
	tagHashSet
	tagLinkedHashMap
	tagLinkedHashSet
	tagObjectArray
	tagEnum
	tagExternalizable
	tagMarshalAware
	tagSerializable
	tagMax
)

func (t tag) String() string {
	switch t {
	case tagNull:
		return "NULL"
	case tagHandle:
		return "HANDLE"
	case tagBool:
		return "BOOL"
	case tagByte:
		return "BYTE"
	case tagShort:
		return "SHORT"
	case tagInt:
		return "INT"
	case tagLong:
		return "LONG"
	case tagFloat:
		return "FLOAT"
	case tagDouble:
		return "DOUBLE"
	case tagChar:
		return "CHAR"
	case tagString:
		return "STRING"
	case tagUUID:
		return "UUID"
	case tagDate:
		return "DATE"
	case tagBoolArray:
		return "BOOL_ARRAY"
	case tagByteArray:
		return "BYTE_ARRAY"
	case tagShortArray:
		return "SHORT_ARRAY"
	case tagIntArray:
		return "INT_ARRAY"
	case tagLongArray:
		return "LONG_ARRAY"
	case tagFloatArray:
		return "FLOAT_ARRAY"
	case tagDoubleArray:
		return "DOUBLE_ARRAY"
	case tagCharArray:
		return "CHAR_ARRAY"
	case tagClass:
		return "CLASS"
	case tagProperties:
		return "PROPERTIES"
	case tagArrayList:
		return "ARRAY_LIST"
	case tagLinkedList:
		return "LINKED_LIST"
	case tagHashMap:
		return "HASH_MAP"
	case tagHashSet:
		return "HASH_SET"
	case tagLinkedHashMap:
		return "LINKED_HASH_MAP"
	case tagLinkedHashSet:
		return "LINKED_HASH_SET"
	case tagObjectArray:
		return "OBJECT_ARRAY"
	case tagEnum:
		return "ENUM"
	case tagExternalizable:
		return "EXTERNALIZABLE"
	case tagMarshalAware:
		return "MARSHAL_AWARE"
	case tagSerializable:
		return "SERIALIZABLE"
	default:
		return "UNKNOWN"
	}
}

// ProtocolV1 is the only defined protocol version. It is kept in
// Config.ProtocolVersion but never written to the wire: a document begins
// directly with its value's tag byte, with no preamble.
const ProtocolV1 uint8 = 1

// IdMapper resolves a fully-qualified type name to a stable 32-bit type id.
// Returning 0 means "no mapping, fall back to the name hash".
type IdMapper interface {
	TypeID(name string) uint32
}

// IdMapperFunc adapts a function to an IdMapper.
type IdMapperFunc func(name string) uint32

func (f IdMapperFunc) TypeID(name string) uint32 { return f(name) }

// resolveTypeID is the pure function spec.md §4.A describes: given a name
// and an optional mapper, return mapper.TypeID(name) if nonzero, else a
// deterministic hash of the name. Zero is reserved to mean "emit the name
// inline" and is never itself returned by the hash path (the hash is
// remapped off zero in the vanishingly unlikely event it lands there).
func resolveTypeID(name string, mapper IdMapper) uint32 {
	if mapper != nil {
		if id := mapper.TypeID(name); id != 0 {
			return id
		}
	}
	id := hashTypeName(name)
	if id == 0 {
		id = 1
	}
	return id
}

func hashTypeName(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}

// fieldIDHash resolves spec.md §9's open question on the field-id hash
// function: FNV-1a over the field name's UTF-8 bytes, salted by the owning
// type's 32-bit type id absorbed into the hash state first. See DESIGN.md
// "Open Question decisions" #1.
func fieldIDHash(typeID uint32, name string) uint32 {
	h := fnv.New32a()
	var salt [4]byte
	salt[0] = byte(typeID)
	salt[1] = byte(typeID >> 8)
	salt[2] = byte(typeID >> 16)
	salt[3] = byte(typeID >> 24)
	_, _ = h.Write(salt[:])
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}

// schemaChecksum resolves the 16-bit digest described in spec.md §3 over a
// class's own non-static, non-transient field names and kinds.
func schemaChecksum(fields []FieldDescriptor) uint16 {
	h := fnv.New32a()
	for _, f := range fields {
		_, _ = h.Write([]byte(f.Name))
		_, _ = h.Write([]byte{byte(f.Kind)})
	}
	sum := h.Sum32()
	return uint16(sum) ^ uint16(sum>>16)
}
