package gridwire

import (
	"reflect"
	"time"
)

// OutputStream is the per-invocation write handle described in spec.md
// §4.E/§5: owned by exactly one goroutine for the duration of one Marshal
// call, carrying its own buffer and handle table. Grounded on glint's
// encoder.go Marshal dispatch (a flat switch over the wire tag, not
// virtual dispatch, per spec.md §9's "dynamic dispatch" note).
type OutputStream struct {
	buf      outputBuffer
	handles  *handleTable
	m        *Marshaller
	// fieldLogStack tracks the names passed to WriteField, one frame per
	// nested MarshalAware/LevelWriter call, so the innermost frame holds
	// exactly the field names a given call to WriteFields/WriteObject
	// emitted — used to publish the real schema for MARSHAL_AWARE types
	// (spec.md §4.H), since those names can't be recovered by reflecting
	// over the Go struct the way a SERIALIZABLE descriptor's fields can.
	fieldLogStack [][]string
}

func (s *OutputStream) reset() {
	s.buf.Reset()
	s.handles = newHandleTable()
	s.fieldLogStack = nil
}

// Bytes returns the document written so far.
func (s *OutputStream) Bytes() []byte { return s.buf.Bytes() }

// WriteField implements FieldWriter for LevelWriter/MarshalAware hooks: it
// writes one named value using the same dispatch the generic field walk
// uses, so a custom writeObject-style hook stays symmetric with the
// default path.
func (s *OutputStream) WriteField(name string, v any) error {
	if n := len(s.fieldLogStack); n > 0 {
		s.fieldLogStack[n-1] = append(s.fieldLogStack[n-1], name)
	}
	s.buf.WriteString(name)
	return s.m.writeValue(reflect.ValueOf(v), s)
}

// pushFieldLog opens a new frame for recording WriteField names, entered
// before invoking one object's WriteFields/WriteObject so its names are
// kept separate from an enclosing object's own frame.
func (s *OutputStream) pushFieldLog() {
	s.fieldLogStack = append(s.fieldLogStack, nil)
}

// popFieldLog closes the innermost frame and returns the field names
// recorded in it.
func (s *OutputStream) popFieldLog() []string {
	n := len(s.fieldLogStack)
	top := s.fieldLogStack[n-1]
	s.fieldLogStack = s.fieldLogStack[:n-1]
	return top
}

func writeTypeMeta(d *ClassDescriptor, out *OutputStream) {
	out.buf.WriteUint32(d.TypeID)
	if d.TypeID == 0 {
		out.buf.WriteString(d.Name)
	}
}

// writeValue is the recursive write algorithm of spec.md §4.E.
func (m *Marshaller) writeValue(v reflect.Value, out *OutputStream) error {
	if !v.IsValid() {
		out.buf.WriteRaw(byte(tagNull))
		return nil
	}
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			out.buf.WriteRaw(byte(tagNull))
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Ptr && v.IsNil() {
		out.buf.WriteRaw(byte(tagNull))
		return nil
	}

	if pos, ok := out.handles.lookup(v); ok {
		out.buf.WriteRaw(byte(tagHandle))
		out.buf.WriteUint32(pos)
		return nil
	}

	t := v.Type()
	d, err := m.cache.get(t, func() (*ClassDescriptor, error) { return m.buildDescriptor(t) })
	if err != nil {
		return err
	}

	if d.Excluded {
		out.buf.WriteRaw(byte(tagNull))
		return nil
	}

	if d.hasWriteReplace {
		if wr, ok := addressable(v).Interface().(WriteReplacer); ok {
			replaced, rerr := wr.WriteReplace()
			if rerr != nil {
				return wrapError(ErrIO, rerr)
			}
			if replaced != nil {
				rv := reflect.ValueOf(replaced)
				if rv.Type() != t {
					return m.writeValue(rv, out)
				}
				// Same type: the already-resolved descriptor d still
				// applies, but the replacement itself — not the original
				// v — is what must land on the wire from here on.
				v = rv
			}
		}
	}

	pos := uint32(out.buf.Len())
	out.handles.enter(v, pos)

	out.buf.WriteRaw(byte(d.Tag))

	switch d.Tag {
	case tagBool:
		out.buf.WriteBool(v.Bool())
	case tagByte:
		out.buf.WriteInt8(int8(intValueOf(v)))
	case tagShort:
		out.buf.WriteInt16(int16(intValueOf(v)))
	case tagChar:
		out.buf.WriteRune(rune(v.Int()))
	case tagInt:
		out.buf.WriteInt32(int32(intValueOf(v)))
	case tagLong:
		out.buf.WriteInt64(intValueOf(v))
	case tagFloat:
		out.buf.WriteFloat32(float32(v.Float()))
	case tagDouble:
		out.buf.WriteFloat64(v.Float())
	case tagString:
		out.buf.WriteString(v.String())
	case tagUUID:
		u := v.Interface().(UUID)
		out.buf.WriteUint64(u.Hi)
		out.buf.WriteUint64(u.Lo)
	case tagDate:
		out.buf.WriteTime(v.Interface().(time.Time))
	case tagBoolArray:
		n := v.Len()
		out.buf.WriteUint32(uint32(n))
		for i := 0; i < n; i++ {
			out.buf.WriteBool(v.Index(i).Bool())
		}
	case tagShortArray:
		n := v.Len()
		out.buf.WriteUint32(uint32(n))
		for i := 0; i < n; i++ {
			out.buf.WriteInt16(int16(v.Index(i).Int()))
		}
	case tagIntArray:
		n := v.Len()
		out.buf.WriteUint32(uint32(n))
		for i := 0; i < n; i++ {
			out.buf.WriteInt32(int32(v.Index(i).Int()))
		}
	case tagCharArray:
		n := v.Len()
		out.buf.WriteUint32(uint32(n))
		for i := 0; i < n; i++ {
			out.buf.WriteRune(rune(v.Index(i).Int()))
		}
	case tagLongArray:
		n := v.Len()
		out.buf.WriteUint32(uint32(n))
		for i := 0; i < n; i++ {
			out.buf.WriteInt64(v.Index(i).Int())
		}
	case tagFloatArray:
		n := v.Len()
		out.buf.WriteUint32(uint32(n))
		for i := 0; i < n; i++ {
			out.buf.WriteFloat32(float32(v.Index(i).Float()))
		}
	case tagDoubleArray:
		n := v.Len()
		out.buf.WriteUint32(uint32(n))
		for i := 0; i < n; i++ {
			out.buf.WriteFloat64(v.Index(i).Float())
		}
	case tagByteArray:
		out.buf.WriteBytes(v.Bytes())
	case tagClass:
		ref := v.Interface().(TypeRef)
		refName := qualifiedName(ref.T)
		refID := resolveTypeID(refName, m.cfg.IDMapper)
		out.buf.WriteUint32(refID)
		if refID == 0 {
			out.buf.WriteString(refName)
		}
	case tagProperties:
		if err := m.writeProperties(v.Interface().(*Properties), out); err != nil {
			return err
		}
	case tagArrayList:
		if err := m.writeArrayList(v, out); err != nil {
			return err
		}
	case tagLinkedList:
		if err := m.writeLinkedList(v.Interface().(*LinkedList), out); err != nil {
			return err
		}
	case tagHashMap:
		if err := m.writeHashMap(v, out); err != nil {
			return err
		}
	case tagHashSet:
		if err := m.writeSet(v.Interface().(Set), out); err != nil {
			return err
		}
	case tagLinkedHashMap:
		if err := m.writeOrderedMap(v.Interface().(*OrderedMap), out); err != nil {
			return err
		}
	case tagLinkedHashSet:
		if err := m.writeOrderedSet(v.Interface().(*OrderedSet), out); err != nil {
			return err
		}
	case tagObjectArray:
		if err := m.writeObjectArray(v, out); err != nil {
			return err
		}
	case tagEnum:
		writeTypeMeta(d, out)
		e := v.Interface().(Enumer)
		out.buf.WriteInt32(int32(e.EnumOrdinal()))
	case tagExternalizable:
		writeTypeMeta(d, out)
		out.buf.WriteUint16(d.Checksum)
		ext, ok := addressable(v).Interface().(Externalizable)
		if !ok {
			return newError(ErrProtocolViolation, "type %s lost its Externalizable implementation", d.Name)
		}
		if err := ext.WriteExternal(out); err != nil {
			return wrapError(ErrIO, err)
		}
	case tagMarshalAware:
		writeTypeMeta(d, out)
		ma, ok := addressable(v).Interface().(MarshalAware)
		if !ok {
			return newError(ErrProtocolViolation, "type %s lost its MarshalAware implementation", d.Name)
		}
		out.pushFieldLog()
		writeErr := ma.WriteFields(out)
		fields := out.popFieldLog()
		if writeErr != nil {
			return wrapError(ErrIO, writeErr)
		}
		if m.cfg.IndexingHandler != nil {
			if mp := m.cfg.IndexingHandler.MetadataHandler(); mp != nil {
				mp.PublishSchema(d.TypeID, fields)
			}
		}
	case tagSerializable:
		writeTypeMeta(d, out)
		out.buf.WriteUint16(d.Checksum)
		if err := m.writeSerializableBody(d, v, out); err != nil {
			return err
		}
	default:
		return newError(ErrProtocolViolation, "unresolvable tag for type %s", t)
	}

	return nil
}

func addressable(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Ptr {
		return v
	}
	if v.CanAddr() {
		return v.Addr()
	}
	p := reflect.New(v.Type())
	p.Elem().Set(v)
	return p
}

func intValueOf(v reflect.Value) int64 {
	switch v.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		return int64(v.Uint())
	default:
		return v.Int()
	}
}

// indexingEnabled reports whether footer emission is active for this
// descriptor under the current configuration, per spec.md §4.H: "field
// indexing is only emitted for classes whose descriptor reports
// fields_indexing_supported" and the caller opted in via an
// IndexingHandler.
func (m *Marshaller) indexingEnabled(d *ClassDescriptor) bool {
	if !d.indexable || m.cfg.IndexingHandler == nil {
		return false
	}
	return m.cfg.IndexingHandler.EnableIndexingFor(d.Type)
}

type footerEntry struct {
	fieldID   uint32
	relOffset uint32
}

// writeSerializableBody implements spec.md §4.E's SERIALIZABLE case: base
// class first, each level either invoking its custom writeObject hook or
// writing its own fields in sorted order, each optionally preceded by its
// field id, followed by an optional trailing footer.
func (m *Marshaller) writeSerializableBody(d *ClassDescriptor, v reflect.Value, out *OutputStream) error {
	indexed := m.indexingEnabled(d)
	bodyStart := out.buf.Len()
	var footer []footerEntry

	objPtr := addressable(v)

	for _, lvl := range d.levels {
		if lvl.writeObj {
			lw, ok := levelValue(objPtr, lvl).Interface().(LevelWriter)
			if !ok {
				return newError(ErrProtocolViolation, "level %s lost its LevelWriter implementation", lvl.levelType)
			}
			// Open an isolated log frame so this level's WriteField calls
			// can never leak into an enclosing MarshalAware's schema frame.
			out.pushFieldLog()
			writeErr := lw.WriteObject(out)
			out.popFieldLog()
			if writeErr != nil {
				return wrapError(ErrIO, writeErr)
			}
			continue
		}
		for _, f := range lvl.fields {
			rel := uint32(out.buf.Len() - bodyStart)
			if indexed {
				out.buf.WriteUint32(f.FieldID)
			}
			if err := m.writeFieldValue(f, objPtr, out); err != nil {
				return err
			}
			if indexed {
				footer = append(footer, footerEntry{f.FieldID, rel})
			}
		}
	}

	if indexed {
		footerStart := uint32(out.buf.Len() - bodyStart)
		for _, e := range footer {
			out.buf.WriteUint32(e.fieldID)
			out.buf.WriteUint32(e.relOffset)
		}
		out.buf.WriteUint32(footerStart)
	}
	return nil
}

// levelValue finds the reflect.Value of objPtr's embedded field matching
// lvl, or objPtr itself when lvl is the leaf level.
func levelValue(objPtr reflect.Value, lvl fieldLevel) reflect.Value {
	elem := objPtr.Elem()
	if elem.Type() == lvl.levelType {
		return objPtr
	}
	for i := 0; i < elem.NumField(); i++ {
		if elem.Type().Field(i).Anonymous && elem.Field(i).Type() == lvl.levelType {
			return addressable(elem.Field(i))
		}
	}
	return objPtr
}

func (m *Marshaller) writeFieldValue(f FieldDescriptor, objPtr reflect.Value, out *OutputStream) error {
	if f.Phantom {
		return writePhantomZero(f.Kind, out)
	}
	field := fieldValueAt(objPtr, f)
	switch f.Kind {
	case fieldBool:
		out.buf.WriteBool(field.Bool())
	case fieldByte:
		out.buf.WriteInt8(int8(intValueOf(field)))
	case fieldShort:
		out.buf.WriteInt16(int16(intValueOf(field)))
	case fieldChar:
		out.buf.WriteRune(rune(field.Int()))
	case fieldInt:
		out.buf.WriteInt32(int32(intValueOf(field)))
	case fieldLong:
		out.buf.WriteInt64(intValueOf(field))
	case fieldFloat:
		out.buf.WriteFloat32(float32(field.Float()))
	case fieldDouble:
		out.buf.WriteFloat64(field.Float())
	default:
		return m.writeValue(field, out)
	}
	return nil
}

// writePhantomZero writes a kind-appropriate zero for a declared
// serialPersistentFields entry with no backing struct field, per spec.md §3's
// "zero-valued on write" rule for phantom fields.
func writePhantomZero(kind fieldKind, out *OutputStream) error {
	switch kind {
	case fieldBool:
		out.buf.WriteBool(false)
	case fieldByte:
		out.buf.WriteInt8(0)
	case fieldShort:
		out.buf.WriteInt16(0)
	case fieldChar:
		out.buf.WriteRune(0)
	case fieldInt:
		out.buf.WriteInt32(0)
	case fieldLong:
		out.buf.WriteInt64(0)
	case fieldFloat:
		out.buf.WriteFloat32(0)
	case fieldDouble:
		out.buf.WriteFloat64(0)
	default:
		out.buf.WriteRaw(byte(tagNull))
	}
	return nil
}

// fieldValueAt locates the field by walking from the struct root using the
// raw byte offset recorded on the descriptor, mirroring glint's
// unsafe.Pointer-offset field access (encoder.go) but through
// reflect.NewAt so the resulting Value stays safe to recurse into.
func fieldValueAt(objPtr reflect.Value, f FieldDescriptor) reflect.Value {
	base := objPtr.Pointer()
	addr := unsafeAdd(base, f.Offset)
	return reflectNewAt(f.Type, addr).Elem()
}

func (m *Marshaller) writeArrayList(v reflect.Value, out *OutputStream) error {
	n := v.Len()
	out.buf.WriteUint32(uint32(n))
	for i := 0; i < n; i++ {
		if err := m.writeValue(v.Index(i), out); err != nil {
			return err
		}
	}
	return nil
}

func (m *Marshaller) writeObjectArray(v reflect.Value, out *OutputStream) error {
	n := v.Len()
	out.buf.WriteUint32(uint32(n))
	for i := 0; i < n; i++ {
		if err := m.writeValue(v.Index(i), out); err != nil {
			return err
		}
	}
	return nil
}

func (m *Marshaller) writeLinkedList(l *LinkedList, out *OutputStream) error {
	values := l.Values()
	out.buf.WriteUint32(uint32(len(values)))
	for _, val := range values {
		if err := m.writeValue(reflect.ValueOf(val), out); err != nil {
			return err
		}
	}
	return nil
}

func (m *Marshaller) writeHashMap(v reflect.Value, out *OutputStream) error {
	out.buf.WriteFloat32(0.75) // default load factor; Go maps expose none
	out.buf.WriteUint32(uint32(v.Len()))
	iter := v.MapRange()
	for iter.Next() {
		if err := m.writeValue(iter.Key(), out); err != nil {
			return err
		}
		if err := m.writeValue(iter.Value(), out); err != nil {
			return err
		}
	}
	return nil
}

func (m *Marshaller) writeSet(s Set, out *OutputStream) error {
	out.buf.WriteFloat32(0.75)
	out.buf.WriteUint32(uint32(len(s)))
	for _, e := range s {
		if err := m.writeValue(reflect.ValueOf(e), out); err != nil {
			return err
		}
	}
	return nil
}

func (m *Marshaller) writeOrderedMap(om *OrderedMap, out *OutputStream) error {
	out.buf.WriteFloat32(om.LoadFactor)
	out.buf.WriteBool(om.AccessOrder)
	out.buf.WriteUint32(uint32(om.Len()))
	for _, e := range om.Entries() {
		if err := m.writeValue(reflect.ValueOf(e.key), out); err != nil {
			return err
		}
		if err := m.writeValue(reflect.ValueOf(e.value), out); err != nil {
			return err
		}
	}
	return nil
}

func (m *Marshaller) writeOrderedSet(os *OrderedSet, out *OutputStream) error {
	out.buf.WriteFloat32(os.LoadFactor)
	out.buf.WriteUint32(uint32(os.Len()))
	for _, e := range os.Values() {
		if err := m.writeValue(reflect.ValueOf(e), out); err != nil {
			return err
		}
	}
	return nil
}

func (m *Marshaller) writeProperties(p *Properties, out *OutputStream) error {
	hasDefaults := p.Defaults != nil
	out.buf.WriteBool(hasDefaults)
	if hasDefaults {
		if err := m.writeProperties(p.Defaults, out); err != nil {
			return err
		}
	}
	keys := p.Keys()
	out.buf.WriteUint32(uint32(len(keys)))
	for _, k := range keys {
		v, _ := p.values[k]
		out.buf.WriteString(k)
		out.buf.WriteString(v)
	}
	return nil
}
