package gridwire

import "reflect"

// InputStream is the per-invocation read handle of spec.md §4.F/§5: owned
// by exactly one goroutine for the duration of one Unmarshal call.
// Grounded on glint's decoder.go Unmarshal/parseSchema/unmarshal
// structure, adapted from glint's fixed-schema-per-T model to per-call
// type resolution driven by the wire's own type-id metadata.
type InputStream struct {
	buf      inputBuffer
	handles  *handleTable
	resolver ClassResolver
	m        *Marshaller
}

func (s *InputStream) reset(data []byte) {
	s.buf = inputBuffer{bytes: data}
	s.handles = newHandleTable()
}

// ReadField implements FieldReader for LevelReader/MarshalAware hooks: it
// reads one named value written by the symmetric OutputStream.WriteField,
// failing with a protocol-violation if the wire's field name doesn't match
// what the hook expected (fields are read back in exactly the order they
// were written).
func (s *InputStream) ReadField(name string) (any, error) {
	got, err := s.buf.ReadString()
	if err != nil {
		return nil, err
	}
	if got != name {
		return nil, newError(ErrProtocolViolation, "field order mismatch: expected %q, got %q", name, got)
	}
	v, err := s.m.readValue(s, s.resolver)
	if err != nil {
		return nil, err
	}
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

func readTypeMeta(in *InputStream) (typeID uint32, name string, err error) {
	typeID, err = in.buf.ReadUint32()
	if err != nil {
		return 0, "", err
	}
	if typeID == 0 {
		name, err = in.buf.ReadString()
	}
	return typeID, name, err
}

// resolveClass turns type-id metadata read off the wire into a concrete
// reflect.Type, per spec.md §4.F step 4: the inline name is authoritative
// when present; otherwise the name of a descriptor this node has already
// built for that id (e.g. written earlier in the same process), falling back
// to the MarshallerContext's out-of-band id->name registry.
func (m *Marshaller) resolveClass(typeID uint32, name string, resolver ClassResolver) (reflect.Type, error) {
	if name == "" {
		if d, ok := m.cache.byTypeID(typeID); ok {
			name = d.Name
		} else if m.cfg.Context != nil {
			if n, ok := m.cfg.Context.ClassName(typeID); ok {
				name = n
			}
		}
	}
	if name == "" {
		return nil, newError(ErrClassNotFound, "no name available for type id %d; supply a MarshallerContext", typeID)
	}
	if resolver == nil {
		return nil, newError(ErrClassNotFound, "class %q requires a ClassResolver", name)
	}
	t, err := resolver.Resolve(name)
	if err != nil {
		return nil, newError(ErrClassNotFound, "resolving %q: %v", name, err)
	}
	return t, nil
}

// readValue is the recursive read algorithm of spec.md §4.F.
func (m *Marshaller) readValue(in *InputStream, resolver ClassResolver) (reflect.Value, error) {
	startPos := uint32(in.buf.Mark())
	tb, err := in.buf.ReadRaw()
	if err != nil {
		return reflect.Value{}, err
	}
	tg := tag(tb)

	switch tg {
	case tagNull:
		return reflect.Value{}, nil
	case tagHandle:
		pos, err := in.buf.ReadUint32()
		if err != nil {
			return reflect.Value{}, err
		}
		v, ok := in.handles.resolve(pos)
		if !ok {
			return reflect.Value{}, newError(ErrProtocolViolation, "handle refers to unwritten position %d", pos)
		}
		return v, nil
	}

	v, err := m.readTypedValue(tg, startPos, in, resolver)
	if err != nil {
		return reflect.Value{}, err
	}
	if v.IsValid() {
		in.handles.register(startPos, v)
	}
	return v, nil
}

func (m *Marshaller) readTypedValue(tg tag, startPos uint32, in *InputStream, resolver ClassResolver) (reflect.Value, error) {
	switch tg {
	case tagBool:
		x, err := in.buf.ReadBool()
		return reflect.ValueOf(x), err
	case tagByte:
		x, err := in.buf.ReadInt8()
		return reflect.ValueOf(x), err
	case tagShort:
		x, err := in.buf.ReadInt16()
		return reflect.ValueOf(x), err
	case tagChar:
		x, err := in.buf.ReadRune()
		return reflect.ValueOf(Char(x)), err
	case tagInt:
		x, err := in.buf.ReadInt32()
		return reflect.ValueOf(x), err
	case tagLong:
		x, err := in.buf.ReadInt64()
		return reflect.ValueOf(x), err
	case tagFloat:
		x, err := in.buf.ReadFloat32()
		return reflect.ValueOf(x), err
	case tagDouble:
		x, err := in.buf.ReadFloat64()
		return reflect.ValueOf(x), err
	case tagString:
		x, err := in.buf.ReadString()
		return reflect.ValueOf(x), err
	case tagUUID:
		hi, err := in.buf.ReadUint64()
		if err != nil {
			return reflect.Value{}, err
		}
		lo, err := in.buf.ReadUint64()
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(UUID{Hi: hi, Lo: lo}), nil
	case tagDate:
		t, err := in.buf.ReadTime()
		return reflect.ValueOf(t), err
	case tagByteArray:
		b, err := in.buf.ReadBytes()
		return reflect.ValueOf(b), err
	case tagBoolArray:
		return readPrimitiveArray(in, reflect.TypeOf(false), func() (any, error) { return in.buf.ReadBool() })
	case tagShortArray:
		return readPrimitiveArray(in, reflect.TypeOf(int16(0)), func() (any, error) { return in.buf.ReadInt16() })
	case tagIntArray:
		return readPrimitiveArray(in, reflect.TypeOf(int32(0)), func() (any, error) { return in.buf.ReadInt32() })
	case tagCharArray:
		return readPrimitiveArray(in, charType, func() (any, error) {
			r, err := in.buf.ReadRune()
			return Char(r), err
		})
	case tagLongArray:
		return readPrimitiveArray(in, reflect.TypeOf(int64(0)), func() (any, error) { return in.buf.ReadInt64() })
	case tagFloatArray:
		return readPrimitiveArray(in, reflect.TypeOf(float32(0)), func() (any, error) { return in.buf.ReadFloat32() })
	case tagDoubleArray:
		return readPrimitiveArray(in, reflect.TypeOf(float64(0)), func() (any, error) { return in.buf.ReadFloat64() })
	case tagClass:
		id, name, err := readTypeMeta(in)
		if err != nil {
			return reflect.Value{}, err
		}
		t, err := m.resolveClass(id, name, resolver)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(TypeRef{T: t}), nil
	case tagProperties:
		return m.readProperties(in, resolver)
	case tagArrayList:
		return m.readArrayList(in, resolver)
	case tagLinkedList:
		return m.readLinkedList(in, resolver)
	case tagHashMap:
		return m.readHashMap(in, resolver)
	case tagHashSet:
		return m.readSet(in, resolver)
	case tagLinkedHashMap:
		return m.readOrderedMap(in, resolver)
	case tagLinkedHashSet:
		return m.readOrderedSet(in, resolver)
	case tagObjectArray:
		return m.readObjectArray(in, resolver)
	case tagEnum:
		return m.readEnum(in, resolver)
	case tagExternalizable:
		return m.readExternalizable(startPos, in, resolver)
	case tagMarshalAware:
		return m.readMarshalAware(startPos, in, resolver)
	case tagSerializable:
		return m.readSerializable(startPos, in, resolver)
	default:
		return reflect.Value{}, newError(ErrProtocolViolation, "unknown wire tag %d", tg)
	}
}

func readPrimitiveArray(in *InputStream, elemType reflect.Type, read func() (any, error)) (reflect.Value, error) {
	n, err := in.buf.ReadUint32()
	if err != nil {
		return reflect.Value{}, err
	}
	slice := reflect.MakeSlice(reflect.SliceOf(elemType), int(n), int(n))
	for i := 0; i < int(n); i++ {
		x, err := read()
		if err != nil {
			return reflect.Value{}, err
		}
		slice.Index(i).Set(reflect.ValueOf(x))
	}
	return slice, nil
}

func (m *Marshaller) readEnum(in *InputStream, resolver ClassResolver) (reflect.Value, error) {
	id, name, err := readTypeMeta(in)
	if err != nil {
		return reflect.Value{}, err
	}
	ordinal, err := in.buf.ReadInt32()
	if err != nil {
		return reflect.Value{}, err
	}
	t, err := m.resolveClass(id, name, resolver)
	if err != nil {
		return reflect.Value{}, err
	}
	if values, ok := enumRegistry[qualifiedName(t)]; ok {
		for _, v := range values {
			if int32(v.EnumOrdinal()) == ordinal {
				return reflect.ValueOf(v), nil
			}
		}
	}
	return reflect.Value{}, newError(ErrClassNotFound, "no registered enum constant for %s ordinal %d", qualifiedName(t), ordinal)
}

func (m *Marshaller) readExternalizable(startPos uint32, in *InputStream, resolver ClassResolver) (reflect.Value, error) {
	id, name, err := readTypeMeta(in)
	if err != nil {
		return reflect.Value{}, err
	}
	if _, err := in.buf.ReadUint16(); err != nil {
		return reflect.Value{}, err
	}
	t, err := m.resolveClass(id, name, resolver)
	if err != nil {
		return reflect.Value{}, err
	}
	instance := reflect.New(t)
	ext, ok := instance.Interface().(Externalizable)
	if !ok {
		return reflect.Value{}, newError(ErrProtocolViolation, "%s does not implement Externalizable", qualifiedName(t))
	}
	// Enter the handle table before the callback runs so a self-referential
	// graph reached through ReadExternal resolves, per spec.md's Design Notes.
	in.handles.register(startPos, instance)
	if err := ext.ReadExternal(in); err != nil {
		return reflect.Value{}, wrapError(ErrIO, err)
	}
	return instance, nil
}

func (m *Marshaller) readMarshalAware(startPos uint32, in *InputStream, resolver ClassResolver) (reflect.Value, error) {
	id, name, err := readTypeMeta(in)
	if err != nil {
		return reflect.Value{}, err
	}
	t, err := m.resolveClass(id, name, resolver)
	if err != nil {
		return reflect.Value{}, err
	}
	instance := reflect.New(t)
	ma, ok := instance.Interface().(MarshalAware)
	if !ok {
		return reflect.Value{}, newError(ErrProtocolViolation, "%s does not implement MarshalAware", qualifiedName(t))
	}
	in.handles.register(startPos, instance)
	priorResolver := in.resolver
	in.resolver = resolver
	err = ma.ReadFields(in)
	in.resolver = priorResolver
	if err != nil {
		return reflect.Value{}, wrapError(ErrIO, err)
	}
	return instance, nil
}

func (m *Marshaller) readSerializable(startPos uint32, in *InputStream, resolver ClassResolver) (reflect.Value, error) {
	id, name, err := readTypeMeta(in)
	if err != nil {
		return reflect.Value{}, err
	}
	checksum, err := in.buf.ReadUint16()
	if err != nil {
		return reflect.Value{}, err
	}
	t, err := m.resolveClass(id, name, resolver)
	if err != nil {
		return reflect.Value{}, err
	}
	d, err := m.cache.get(t, func() (*ClassDescriptor, error) { return m.buildDescriptor(t) })
	if err != nil {
		return reflect.Value{}, err
	}
	if d.Checksum != checksum {
		return reflect.Value{}, newError(ErrSchemaMismatch, "class %s version differs across nodes", d.Name)
	}

	// Allocate without invoking any constructor: reflect.New already zeroes
	// memory, which is exactly the semantics spec.md §9 asks for.
	instance := reflect.New(t)

	// Enter the handle table before populating fields so cyclic references
	// resolve, per spec.md's Design Notes.
	in.handles.register(startPos, instance)

	indexed := m.indexingEnabled(d)
	priorResolver := in.resolver
	in.resolver = resolver

	var readErr error
	for _, lvl := range d.levels {
		if lvl.readObj {
			lr, ok := levelValue(instance, lvl).Interface().(LevelReader)
			if !ok {
				readErr = newError(ErrProtocolViolation, "level %s lost its LevelReader implementation", lvl.levelType)
				break
			}
			if err := lr.ReadObject(in); err != nil {
				readErr = wrapError(ErrIO, err)
				break
			}
			continue
		}
		for _, f := range lvl.fields {
			if indexed {
				if _, err := in.buf.ReadUint32(); err != nil { // consume field id
					readErr = err
					break
				}
			}
			if err := m.readFieldValue(f, instance, in, resolver); err != nil {
				readErr = err
				break
			}
		}
		if readErr != nil {
			break
		}
	}
	in.resolver = priorResolver
	if readErr != nil {
		return reflect.Value{}, readErr
	}

	if indexed {
		// Fields were read sequentially above, not via the footer, so the
		// footer table itself (one (field-id, rel-offset) pair per field)
		// still sits unread ahead of the trailing footer-start word; skip
		// it before consuming that word.
		footerEntries := len(d.allFields()) * 8
		if err := in.buf.Skip(footerEntries); err != nil {
			return reflect.Value{}, err
		}
		if _, err := in.buf.ReadUint32(); err != nil { // trailing footer-start word
			return reflect.Value{}, err
		}
	}

	if d.hasReadResolve {
		if rr, ok := instance.Interface().(ReadResolver); ok {
			resolved, err := rr.ReadResolve()
			if err != nil {
				return reflect.Value{}, wrapError(ErrIO, err)
			}
			rv := reflect.ValueOf(resolved)
			in.handles.register(startPos, rv)
			return rv, nil
		}
	}

	return instance, nil
}

func (m *Marshaller) readFieldValue(f FieldDescriptor, objPtr reflect.Value, in *InputStream, resolver ClassResolver) error {
	if f.Phantom {
		return m.discardPhantomField(f.Kind, in, resolver)
	}
	switch f.Kind {
	case fieldBool:
		x, err := in.buf.ReadBool()
		if err != nil {
			return err
		}
		fieldValueAt(objPtr, f).SetBool(x)
	case fieldByte:
		x, err := in.buf.ReadInt8()
		if err != nil {
			return err
		}
		setIntField(fieldValueAt(objPtr, f), int64(x))
	case fieldShort:
		x, err := in.buf.ReadInt16()
		if err != nil {
			return err
		}
		setIntField(fieldValueAt(objPtr, f), int64(x))
	case fieldChar:
		x, err := in.buf.ReadRune()
		if err != nil {
			return err
		}
		fieldValueAt(objPtr, f).SetInt(int64(x))
	case fieldInt:
		x, err := in.buf.ReadInt32()
		if err != nil {
			return err
		}
		setIntField(fieldValueAt(objPtr, f), int64(x))
	case fieldLong:
		x, err := in.buf.ReadInt64()
		if err != nil {
			return err
		}
		setIntField(fieldValueAt(objPtr, f), x)
	case fieldFloat:
		x, err := in.buf.ReadFloat32()
		if err != nil {
			return err
		}
		fieldValueAt(objPtr, f).SetFloat(float64(x))
	case fieldDouble:
		x, err := in.buf.ReadFloat64()
		if err != nil {
			return err
		}
		fieldValueAt(objPtr, f).SetFloat(x)
	default:
		v, err := m.readValue(in, resolver)
		if err != nil {
			return err
		}
		dst := fieldValueAt(objPtr, f)
		if !v.IsValid() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		dst.Set(coerce(v, dst.Type()))
	}
	return nil
}

// discardPhantomField consumes the bytes for a declared serialPersistentFields
// entry with no backing struct field, mirroring spec.md §3's "ignored on
// read" rule for phantom fields — there is no destination to write into, so
// the value is read and dropped.
func (m *Marshaller) discardPhantomField(kind fieldKind, in *InputStream, resolver ClassResolver) error {
	var err error
	switch kind {
	case fieldBool:
		_, err = in.buf.ReadBool()
	case fieldByte:
		_, err = in.buf.ReadInt8()
	case fieldShort:
		_, err = in.buf.ReadInt16()
	case fieldChar:
		_, err = in.buf.ReadRune()
	case fieldInt:
		_, err = in.buf.ReadInt32()
	case fieldLong:
		_, err = in.buf.ReadInt64()
	case fieldFloat:
		_, err = in.buf.ReadFloat32()
	case fieldDouble:
		_, err = in.buf.ReadFloat64()
	default:
		_, err = m.readValue(in, resolver)
	}
	return err
}

func setIntField(dst reflect.Value, x int64) {
	switch dst.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		dst.SetUint(uint64(x))
	default:
		dst.SetInt(x)
	}
}

// coerce adapts a decoded value to the destination field's concrete type.
// readValue's generic container readers hand back untyped shapes ([]any,
// map[any]any, a bare pointer from readSerializable) that need reconstructing
// into the field's actual slice/map/struct type before Set will accept them;
// this recurses through those shapes the same way Java's ObjectInputStream
// re-derives each element's static type from the field descriptor rather than
// trusting what's on the wire.
func coerce(v reflect.Value, want reflect.Type) reflect.Value {
	if !v.IsValid() {
		return reflect.Zero(want)
	}
	if v.Kind() == reflect.Interface {
		v = v.Elem()
		if !v.IsValid() {
			return reflect.Zero(want)
		}
	}
	if v.Type() == want {
		return v
	}
	if v.Kind() == reflect.Ptr && want.Kind() != reflect.Ptr {
		return coerce(v.Elem(), want)
	}
	if want.Kind() == reflect.Ptr && v.Kind() != reflect.Ptr {
		p := reflect.New(v.Type())
		p.Elem().Set(coerce(v, v.Type()))
		return coerce(p, want)
	}
	switch want.Kind() {
	case reflect.Slice:
		if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
			n := v.Len()
			out := reflect.MakeSlice(want, n, n)
			for i := 0; i < n; i++ {
				out.Index(i).Set(coerce(v.Index(i), want.Elem()))
			}
			return out
		}
	case reflect.Array:
		if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
			out := reflect.New(want).Elem()
			n := v.Len()
			if want.Len() < n {
				n = want.Len()
			}
			for i := 0; i < n; i++ {
				out.Index(i).Set(coerce(v.Index(i), want.Elem()))
			}
			return out
		}
	case reflect.Map:
		if v.Kind() == reflect.Map {
			keys := v.MapKeys()
			out := reflect.MakeMapWithSize(want, len(keys))
			for _, k := range keys {
				ck := coerce(k, want.Key())
				cv := coerce(v.MapIndex(k), want.Elem())
				out.SetMapIndex(ck, cv)
			}
			return out
		}
	}
	if v.Type().ConvertibleTo(want) {
		return v.Convert(want)
	}
	return v
}

func (m *Marshaller) readArrayList(in *InputStream, resolver ClassResolver) (reflect.Value, error) {
	n, err := in.buf.ReadUint32()
	if err != nil {
		return reflect.Value{}, err
	}
	out := make([]any, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := m.readValue(in, resolver)
		if err != nil {
			return reflect.Value{}, err
		}
		if v.IsValid() {
			out = append(out, v.Interface())
		} else {
			out = append(out, nil)
		}
	}
	return reflect.ValueOf(out), nil
}

func (m *Marshaller) readObjectArray(in *InputStream, resolver ClassResolver) (reflect.Value, error) {
	return m.readArrayList(in, resolver)
}

func (m *Marshaller) readLinkedList(in *InputStream, resolver ClassResolver) (reflect.Value, error) {
	n, err := in.buf.ReadUint32()
	if err != nil {
		return reflect.Value{}, err
	}
	l := NewLinkedList()
	for i := uint32(0); i < n; i++ {
		v, err := m.readValue(in, resolver)
		if err != nil {
			return reflect.Value{}, err
		}
		if v.IsValid() {
			l.PushBack(v.Interface())
		} else {
			l.PushBack(nil)
		}
	}
	return reflect.ValueOf(l), nil
}

func (m *Marshaller) readHashMap(in *InputStream, resolver ClassResolver) (reflect.Value, error) {
	if _, err := in.buf.ReadFloat32(); err != nil { // load factor, unused on read
		return reflect.Value{}, err
	}
	n, err := in.buf.ReadUint32()
	if err != nil {
		return reflect.Value{}, err
	}
	out := make(map[any]any, n)
	for i := uint32(0); i < n; i++ {
		k, err := m.readValue(in, resolver)
		if err != nil {
			return reflect.Value{}, err
		}
		v, err := m.readValue(in, resolver)
		if err != nil {
			return reflect.Value{}, err
		}
		out[k.Interface()] = valueOrNil(v)
	}
	return reflect.ValueOf(out), nil
}

func valueOrNil(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

func (m *Marshaller) readSet(in *InputStream, resolver ClassResolver) (reflect.Value, error) {
	if _, err := in.buf.ReadFloat32(); err != nil {
		return reflect.Value{}, err
	}
	n, err := in.buf.ReadUint32()
	if err != nil {
		return reflect.Value{}, err
	}
	s := make(Set, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := m.readValue(in, resolver)
		if err != nil {
			return reflect.Value{}, err
		}
		s = append(s, valueOrNil(v))
	}
	return reflect.ValueOf(s), nil
}

func (m *Marshaller) readOrderedMap(in *InputStream, resolver ClassResolver) (reflect.Value, error) {
	loadFactor, err := in.buf.ReadFloat32()
	if err != nil {
		return reflect.Value{}, err
	}
	accessOrder, err := in.buf.ReadBool()
	if err != nil {
		return reflect.Value{}, err
	}
	n, err := in.buf.ReadUint32()
	if err != nil {
		return reflect.Value{}, err
	}
	om := NewOrderedMap()
	om.LoadFactor = loadFactor
	om.AccessOrder = accessOrder
	for i := uint32(0); i < n; i++ {
		k, err := m.readValue(in, resolver)
		if err != nil {
			return reflect.Value{}, err
		}
		v, err := m.readValue(in, resolver)
		if err != nil {
			return reflect.Value{}, err
		}
		om.Put(valueOrNil(k), valueOrNil(v))
	}
	return reflect.ValueOf(om), nil
}

func (m *Marshaller) readOrderedSet(in *InputStream, resolver ClassResolver) (reflect.Value, error) {
	loadFactor, err := in.buf.ReadFloat32()
	if err != nil {
		return reflect.Value{}, err
	}
	n, err := in.buf.ReadUint32()
	if err != nil {
		return reflect.Value{}, err
	}
	os := NewOrderedSet()
	os.LoadFactor = loadFactor
	for i := uint32(0); i < n; i++ {
		v, err := m.readValue(in, resolver)
		if err != nil {
			return reflect.Value{}, err
		}
		os.Add(valueOrNil(v))
	}
	return reflect.ValueOf(os), nil
}

func (m *Marshaller) readProperties(in *InputStream, resolver ClassResolver) (reflect.Value, error) {
	hasDefaults, err := in.buf.ReadBool()
	if err != nil {
		return reflect.Value{}, err
	}
	p := NewProperties()
	if hasDefaults {
		dv, err := m.readProperties(in, resolver)
		if err != nil {
			return reflect.Value{}, err
		}
		p.Defaults = dv.Interface().(*Properties)
	}
	n, err := in.buf.ReadUint32()
	if err != nil {
		return reflect.Value{}, err
	}
	for i := uint32(0); i < n; i++ {
		k, err := in.buf.ReadString()
		if err != nil {
			return reflect.Value{}, err
		}
		v, err := in.buf.ReadString()
		if err != nil {
			return reflect.Value{}, err
		}
		p.Set(k, v)
	}
	return reflect.ValueOf(p), nil
}
