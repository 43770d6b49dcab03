package gridwire

import (
	"reflect"
	"sync"
)

// indexing.go implements the partial field-extraction operations: HasField
// and ReadField scan a SERIALIZABLE value's trailing footer to locate one
// field's bytes, then decode only that field, without touching the rest of
// the object.
//
// schemaRegistry is the process-wide type_id -> field-name table for
// MARSHAL_AWARE types, populated by ProcessSchemaRegistry.PublishSchema
// when wired as a configured IndexingHandler's MetadataHandler.
var schemaRegistry sync.Map // uint32 -> []string

// footerOf parses the (field-id u32, rel-offset u32)* table and the
// trailing footer-start u32 out of a SERIALIZABLE body, returning a map from
// each field id to the offset, relative to the body start, of that field's
// id prefix.
func footerOf(body []byte) (map[uint32]uint32, error) {
	if len(body) < 4 {
		return nil, newError(ErrProtocolViolation, "body too short to carry a footer")
	}
	footerStart := le32(body[len(body)-4:])
	if int(footerStart) > len(body)-4 {
		return nil, newError(ErrProtocolViolation, "footer-start %d beyond body", footerStart)
	}
	entries := body[footerStart : len(body)-4]
	if len(entries)%8 != 0 {
		return nil, newError(ErrProtocolViolation, "malformed footer table")
	}
	out := make(map[uint32]uint32, len(entries)/8)
	for i := 0; i < len(entries); i += 8 {
		id := le32(entries[i : i+4])
		off := le32(entries[i+4 : i+8])
		out[id] = off
	}
	return out, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// serializableBody locates the SERIALIZABLE payload within data[off:off+length]
// and returns (typeID, name, checksum, bodyBytes, bodyStartAbs).
func (m *Marshaller) serializableBody(data []byte, off, length int) (uint32, string, uint16, []byte, int, error) {
	in := &InputStream{buf: inputBuffer{bytes: data[off : off+length]}}
	tb, err := in.buf.ReadRaw()
	if err != nil {
		return 0, "", 0, nil, 0, err
	}
	if tag(tb) != tagSerializable {
		return 0, "", 0, nil, 0, newError(ErrFieldNotFound, "value at this range is not a field-indexed SERIALIZABLE object")
	}
	typeID, name, err := readTypeMeta(in)
	if err != nil {
		return 0, "", 0, nil, 0, err
	}
	checksum, err := in.buf.ReadUint16()
	if err != nil {
		return 0, "", 0, nil, 0, err
	}
	bodyStart := in.buf.Mark()
	return typeID, name, checksum, in.buf.bytes[bodyStart:], off + bodyStart, nil
}

// HasField reports whether name is present in the footer of the
// SERIALIZABLE value written at data[off:off+length].
func (m *Marshaller) HasField(name string, data []byte, off, length int) (bool, error) {
	if off < 0 || length < 0 || off+length > len(data) {
		return false, newError(ErrProtocolViolation, "range out of bounds")
	}
	typeID, className, _, body, _, err := m.serializableBody(data, off, length)
	if err != nil {
		return false, err
	}
	d, _, err := m.describeByID(typeID, className)
	if err != nil {
		return false, err
	}
	if !d.indexable {
		return false, newError(ErrFieldNotFound, "class %s does not support field indexing", d.Name)
	}
	footer, err := footerOf(body)
	if err != nil {
		return false, err
	}
	fid := fieldIDHash(typeID, name)
	_, ok := footer[fid]
	return ok, nil
}

// ReadField decodes exactly the named field from a previously-written
// SERIALIZABLE blob without decoding the rest of the object, per spec.md
// §4.H's partial-extraction contract.
func (m *Marshaller) ReadField(name string, data []byte, off, length int, resolver ClassResolver) (any, error) {
	if off < 0 || length < 0 || off+length > len(data) {
		return nil, newError(ErrProtocolViolation, "range out of bounds")
	}
	typeID, className, _, body, bodyStartAbs, err := m.serializableBody(data, off, length)
	if err != nil {
		return nil, err
	}
	d, _, err := m.describeByID(typeID, className)
	if err != nil {
		return nil, err
	}
	if !d.indexable {
		return nil, newError(ErrFieldNotFound, "class %s does not support field indexing", d.Name)
	}
	footer, err := footerOf(body)
	if err != nil {
		return nil, err
	}
	fid := fieldIDHash(typeID, name)
	rel, ok := footer[fid]
	if !ok {
		return nil, newError(ErrFieldNotFound, "field %q not present in this document", name)
	}

	var fd *FieldDescriptor
	for _, f := range d.allFields() {
		if f.FieldID == fid {
			fd = &f
			break
		}
	}
	if fd == nil {
		return nil, newError(ErrFieldNotFound, "field %q not present in the current class descriptor", name)
	}

	in := &InputStream{m: m, resolver: resolver}
	in.reset(data)
	in.buf.Seek(bodyStartAbs + int(rel))
	if _, err := in.buf.ReadUint32(); err != nil { // consume the field-id prefix written before every indexed field
		return nil, err
	}

	switch fd.Kind {
	case fieldBool:
		return in.buf.ReadBool()
	case fieldByte:
		return in.buf.ReadInt8()
	case fieldShort:
		return in.buf.ReadInt16()
	case fieldChar:
		r, err := in.buf.ReadRune()
		return Char(r), err
	case fieldInt:
		return in.buf.ReadInt32()
	case fieldLong:
		return in.buf.ReadInt64()
	case fieldFloat:
		return in.buf.ReadFloat32()
	case fieldDouble:
		return in.buf.ReadFloat64()
	default:
		v, err := m.readValue(in, resolver)
		if err != nil {
			return nil, err
		}
		if !v.IsValid() {
			return nil, nil
		}
		return v.Interface(), nil
	}
}

// describeByID resolves a type id to its descriptor and reflect.Type from
// the descriptor cache only, so the type must already have been marshalled
// or unmarshalled by this Marshaller. A type id the cache does not hold is
// reported as ErrFieldNotFound; the configured MarshallerContext, if any, is
// consulted only to name the type in that error.
func (m *Marshaller) describeByID(typeID uint32, name string) (*ClassDescriptor, reflect.Type, error) {
	if d, ok := m.cache.byTypeID(typeID); ok {
		return d, d.Type, nil
	}
	if name == "" && m.cfg.Context != nil {
		if n, ok := m.cfg.Context.ClassName(typeID); ok {
			name = n
		}
	}
	return nil, nil, newError(ErrFieldNotFound, "type id %d (name %q) has no descriptor in this process yet; marshal or unmarshal at least one instance first", typeID, name)
}

// ProcessSchemaRegistry is a MetadataPublisher backed by a single
// process-wide registry, the simplest IndexingHandler.MetadataHandler an
// embedding application can return when it has no schema store of its own.
type ProcessSchemaRegistry struct{}

func (ProcessSchemaRegistry) PublishSchema(typeID uint32, fields []string) {
	schemaRegistry.Store(typeID, fields)
}

// SchemaOf returns the field-name schema previously published for typeID,
// if any.
func SchemaOf(typeID uint32) ([]string, bool) {
	v, ok := schemaRegistry.Load(typeID)
	if !ok {
		return nil, false
	}
	return v.([]string), true
}
