package gridwire

import (
	"reflect"
	"sort"
	"strings"
	"time"
)

// fieldKind lets the write/read path inline a primitive access without
// dispatch, mirroring glint's field-kind-driven fast paths (encoder.go,
// decoder.go) and spec.md §3's field table ("BYTE/SHORT/INT/LONG/FLOAT/
// DOUBLE/CHAR/BOOL/OTHER").
type fieldKind uint8

const (
	fieldOther fieldKind = iota
	fieldBool
	fieldByte
	fieldShort
	fieldInt
	fieldLong
	fieldFloat
	fieldDouble
	fieldChar
)

func fieldKindOf(t reflect.Type) fieldKind {
	switch t.Kind() {
	case reflect.Bool:
		return fieldBool
	case reflect.Int8, reflect.Uint8:
		return fieldByte
	case reflect.Int16, reflect.Uint16:
		return fieldShort
	case reflect.Int32, reflect.Uint32:
		if t == charType {
			return fieldChar
		}
		return fieldInt
	case reflect.Int, reflect.Uint, reflect.Int64, reflect.Uint64:
		return fieldLong
	case reflect.Float32:
		return fieldFloat
	case reflect.Float64:
		return fieldDouble
	default:
		return fieldOther
	}
}

// FieldDescriptor describes one persisted field of a concrete type: its
// name, its raw byte offset within the object, and its kind, exactly per
// spec.md §3's field table.
type FieldDescriptor struct {
	Name    string
	Offset  uintptr
	Kind    fieldKind
	Type    reflect.Type
	FieldID uint32

	// Phantom marks a field declared via PersistentFieldDeclarer with no
	// matching struct field: it has no Offset/Type to read or write through,
	// only a kind-appropriate zero value on write and a discard on read.
	Phantom bool
}

// fieldLevel groups one embedding level's fields. Go has no superclass
// chain; the closest analogue is anonymous struct embedding, so each
// anonymous embedded struct field contributes one level, processed
// base(embedded)-first, exactly mirroring spec.md §4.C step 8's
// "reverse the per-level lists so iteration order is base-class first".
type fieldLevel struct {
	levelType  reflect.Type
	fields     []FieldDescriptor
	writeObj   bool // this level implements LevelWriter
	readObj    bool // this level implements LevelReader
}

// ClassDescriptor is the immutable reflective summary of one concrete type,
// per spec.md §3's "Class descriptor".
type ClassDescriptor struct {
	Type     reflect.Type
	Name     string
	Tag      tag
	TypeID   uint32
	Checksum uint16
	Excluded bool

	IsEnum     bool
	enumValues []Enumer

	levels    []fieldLevel
	indexable bool

	hasWriteReplace bool
	hasReadResolve  bool
}

// Indexable reports whether this type is eligible for field-indexing
// footer emission, per spec.md §3's "Field-indexing eligibility".
func (d *ClassDescriptor) Indexable() bool { return d.indexable }

var (
	timeType  = reflect.TypeOf(time.Time{})
	charType  = reflect.TypeOf(Char(0))
	uuidType  = reflect.TypeOf(UUID{})
	stringType = reflect.TypeOf("")
	bytesType = reflect.TypeOf([]byte(nil))
)

var (
	externalizableType = reflect.TypeOf((*Externalizable)(nil)).Elem()
	marshalAwareType    = reflect.TypeOf((*MarshalAware)(nil)).Elem()
	writeReplacerType   = reflect.TypeOf((*WriteReplacer)(nil)).Elem()
	readResolverType    = reflect.TypeOf((*ReadResolver)(nil)).Elem()
	enumerType          = reflect.TypeOf((*Enumer)(nil)).Elem()
	levelWriterType     = reflect.TypeOf((*LevelWriter)(nil)).Elem()
	levelReaderType     = reflect.TypeOf((*LevelReader)(nil)).Elem()
)

func qualifiedName(t reflect.Type) string {
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

func qualifiedNameOf(v any) string {
	return qualifiedName(reflect.TypeOf(v))
}

// gridwireTag mirrors glint's tagOptions/parseTag (glint.go) — "jacked from
// the stdlib" there too — for parsing `gridwire:"name,opt"` struct tags.
type gridwireTag struct {
	name string
	skip bool
}

func parseFieldTag(f reflect.StructField) gridwireTag {
	raw, ok := f.Tag.Lookup("gridwire")
	if !ok {
		return gridwireTag{name: f.Name}
	}
	if raw == "-" {
		return gridwireTag{skip: true}
	}
	parts := strings.Split(raw, ",")
	name := parts[0]
	if name == "" {
		name = f.Name
	}
	return gridwireTag{name: name}
}

// wrapperPointerTypes are the container types whose Go stand-in is itself a
// pointer (Properties/LinkedList/OrderedMap/OrderedSet): for these the
// pointer type IS the class, unlike an ordinary `*SomeStruct` field, which
// is just how Go spells "a reference to SomeStruct" — the wire format has
// no separate notion of a pointer, only objects, mirroring how every
// non-primitive value in the source system is already reference-like.
func isWrapperPointerType(t reflect.Type) bool {
	switch t {
	case reflect.TypeOf((*Properties)(nil)), reflect.TypeOf((*LinkedList)(nil)),
		reflect.TypeOf((*OrderedMap)(nil)), reflect.TypeOf((*OrderedSet)(nil)):
		return true
	default:
		return false
	}
}

// baseType strips a plain `*Struct` pointer down to `Struct` for descriptor
// identity purposes (name, type id, tag, field layout) — a Go pointer to an
// arbitrary struct is this marshaller's only way to spell an object
// reference, not a distinct wire concept, so its class identity must match
// whatever the same struct marshals to by value. Wrapper container pointer
// types are left untouched since the pointer itself is their class.
func baseType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Ptr && !isWrapperPointerType(t) && t.Elem().Kind() == reflect.Struct {
		return t.Elem()
	}
	return t
}

// implementsEither reports whether t or *t implements iface, so a capability
// interface (Externalizable, MarshalAware, WriteReplacer, ReadResolver,
// Enumer) is recognized regardless of whether its methods are declared with
// a value or pointer receiver — mutating methods like ReadExternal need a
// pointer receiver in idiomatic Go, so checking only t would miss them.
func implementsEither(t reflect.Type, iface reflect.Type) bool {
	if t.Implements(iface) {
		return true
	}
	return reflect.PtrTo(t).Implements(iface)
}

var persistentFieldDeclarerType = reflect.TypeOf((*PersistentFieldDeclarer)(nil)).Elem()

// declaredPersistentFields reports whether t (or *t) implements
// PersistentFieldDeclarer and, if so, returns its declared field list.
func declaredPersistentFields(t reflect.Type) ([]PersistentField, bool) {
	if t.Implements(persistentFieldDeclarerType) {
		return reflect.Zero(t).Interface().(PersistentFieldDeclarer).SerialPersistentFields(), true
	}
	if reflect.PtrTo(t).Implements(persistentFieldDeclarerType) {
		return reflect.New(t).Interface().(PersistentFieldDeclarer).SerialPersistentFields(), true
	}
	return nil, false
}

// buildDeclaredFields resolves a serialPersistentFields override against t's
// real fields, producing a phantom FieldDescriptor for any declared name with
// no matching struct field, per spec.md §3.
func buildDeclaredFields(t reflect.Type, baseOffset uintptr, declared []PersistentField) []FieldDescriptor {
	fields := make([]FieldDescriptor, 0, len(declared))
	for _, pf := range declared {
		if sf, ok := t.FieldByName(pf.Name); ok {
			fields = append(fields, FieldDescriptor{
				Name:   pf.Name,
				Offset: baseOffset + sf.Offset,
				Kind:   fieldKindOf(sf.Type),
				Type:   sf.Type,
			})
			continue
		}
		fields = append(fields, FieldDescriptor{
			Name:    pf.Name,
			Kind:    fieldKind(pf.Kind),
			Phantom: true,
		})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields
}

// buildDescriptor produces a ClassDescriptor for t per spec.md §4.C.
func (m *Marshaller) buildDescriptor(t reflect.Type) (*ClassDescriptor, error) {
	t = baseType(t)
	name := qualifiedName(t)

	if m.cfg.isExcluded(t) {
		return &ClassDescriptor{Type: t, Name: name, Excluded: true}, nil
	}

	d := &ClassDescriptor{Type: t, Name: name}
	d.TypeID = resolveTypeID(name, m.cfg.IDMapper)

	switch {
	// Capability interfaces take priority over raw Kind: an Enumer is
	// typically a defined int type (e.g. `type Color int32`), which would
	// otherwise match one of the primitive-kind cases below before ever
	// being recognized as an enum.
	case implementsEither(t, enumerType):
		d.Tag = tagEnum
		d.IsEnum = true
		d.enumValues = enumValuesFor(t)
	case t.Kind() == reflect.Bool:
		d.Tag = tagBool
	case t.Kind() == reflect.Int8 || t.Kind() == reflect.Uint8:
		d.Tag = tagByte
	case t.Kind() == reflect.Int16 || t.Kind() == reflect.Uint16:
		d.Tag = tagShort
	case t == charType:
		d.Tag = tagChar
	case t.Kind() == reflect.Int32 || t.Kind() == reflect.Uint32:
		d.Tag = tagInt
	case t.Kind() == reflect.Int || t.Kind() == reflect.Int64 ||
		t.Kind() == reflect.Uint || t.Kind() == reflect.Uint64:
		d.Tag = tagLong
	case t.Kind() == reflect.Float32:
		d.Tag = tagFloat
	case t.Kind() == reflect.Float64:
		d.Tag = tagDouble
	case t == stringType:
		d.Tag = tagString
	case t == uuidType:
		d.Tag = tagUUID
	case t == timeType:
		d.Tag = tagDate
	case t == bytesType:
		d.Tag = tagByteArray
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Bool:
		d.Tag = tagBoolArray
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Int16:
		d.Tag = tagShortArray
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Int32 && t.Elem() != charType:
		d.Tag = tagIntArray
	case t.Kind() == reflect.Slice && t.Elem() == charType:
		d.Tag = tagCharArray
	case t.Kind() == reflect.Slice && (t.Elem().Kind() == reflect.Int64 || t.Elem().Kind() == reflect.Int):
		d.Tag = tagLongArray
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Float32:
		d.Tag = tagFloatArray
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Float64:
		d.Tag = tagDoubleArray
	case t == reflect.TypeOf(TypeRef{}):
		d.Tag = tagClass
	case t == reflect.TypeOf((*Properties)(nil)):
		d.Tag = tagProperties
	case t == reflect.TypeOf((*LinkedList)(nil)):
		d.Tag = tagLinkedList
	case t == reflect.TypeOf((*OrderedMap)(nil)):
		d.Tag = tagLinkedHashMap
	case t == reflect.TypeOf((*OrderedSet)(nil)):
		d.Tag = tagLinkedHashSet
	case t == reflect.TypeOf(Set(nil)):
		d.Tag = tagHashSet
	case t.Kind() == reflect.Map:
		d.Tag = tagHashMap
	case t.Kind() == reflect.Slice:
		d.Tag = tagArrayList
	case t.Kind() == reflect.Array:
		if isPrimitiveArrayElem(t.Elem()) {
			d.Tag = primitiveArrayTagFor(t.Elem())
		} else {
			d.Tag = tagObjectArray
		}
	case implementsEither(t, externalizableType):
		d.Tag = tagExternalizable
	case implementsEither(t, marshalAwareType):
		d.Tag = tagMarshalAware
	default:
		// No other capability matched: a plain Go struct is this
		// marshaller's formal declaration of the serializable capability
		// (it has a walkable field layout), the closest Go analogue to
		// `implements Serializable`. Anything else reaching here — a bare
		// map/slice/primitive that missed every well-known case above, a
		// func, a chan — declares no capability at all, so per spec.md
		// §4.E this is where require_serializable is actually enforced.
		if t.Kind() != reflect.Struct && m.cfg.RequireSerializable {
			return nil, newError(ErrNotSerializable, "type %s is not a struct and declares no marshalling capability", name)
		}
		d.Tag = tagSerializable
	}

	d.hasWriteReplace = implementsEither(t, writeReplacerType)
	d.hasReadResolve = implementsEither(t, readResolverType)

	if d.Tag == tagSerializable {
		if t.Kind() != reflect.Struct {
			// RequireSerializable is off, or we would have failed above:
			// best-effort empty descriptor, nothing to walk.
			d.indexable = true
			return d, nil
		}
		buildSerializableLevels(d, t)
		own := d.levels[len(d.levels)-1].fields
		d.Checksum = schemaChecksum(own)
		d.indexable = computeIndexable(d)
	}

	return d, nil
}

func isPrimitiveArrayElem(e reflect.Type) bool {
	switch e.Kind() {
	case reflect.Bool, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return e == charType
	}
}

func primitiveArrayTagFor(e reflect.Type) tag {
	switch {
	case e.Kind() == reflect.Bool:
		return tagBoolArray
	case e == charType:
		return tagCharArray
	case e.Kind() == reflect.Int16:
		return tagShortArray
	case e.Kind() == reflect.Int32:
		return tagIntArray
	case e.Kind() == reflect.Int64, e.Kind() == reflect.Int:
		return tagLongArray
	case e.Kind() == reflect.Float32:
		return tagFloatArray
	case e.Kind() == reflect.Float64:
		return tagDoubleArray
	default:
		return tagObjectArray
	}
}

// buildSerializableLevels walks t's fields, treating every anonymous
// embedded struct field as an earlier level (base-class-first), per
// spec.md §4.C steps 5 and 8.
func buildSerializableLevels(d *ClassDescriptor, t reflect.Type) {
	var levels []fieldLevel
	var own []FieldDescriptor

	declared, hasOverride := declaredPersistentFields(t)

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" && !f.Anonymous {
			continue // unexported, non-embedded: not persisted
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			embedded := buildEmbeddedLevel(f.Type, f.Offset)
			levels = append(levels, embedded)
			continue
		}
		if hasOverride {
			continue // this level's own fields come from the declared list instead
		}
		opt := parseFieldTag(f)
		if opt.skip {
			continue
		}
		own = append(own, FieldDescriptor{
			Name:   opt.name,
			Offset: f.Offset,
			Kind:   fieldKindOf(f.Type),
			Type:   f.Type,
		})
	}

	if hasOverride {
		own = buildDeclaredFields(t, 0, declared)
	} else {
		sort.Slice(own, func(i, j int) bool { return own[i].Name < own[j].Name })
	}

	leaf := fieldLevel{
		levelType: t,
		fields:    own,
		writeObj:  implementsEither(t, levelWriterType),
		readObj:   implementsEither(t, levelReaderType),
	}
	levels = append(levels, leaf)
	d.levels = levels

	// assign field ids now that TypeID is known
	for li := range d.levels {
		for fi := range d.levels[li].fields {
			f := &d.levels[li].fields[fi]
			f.FieldID = fieldIDHash(d.TypeID, f.Name)
		}
	}
}

func buildEmbeddedLevel(t reflect.Type, baseOffset uintptr) fieldLevel {
	if declared, ok := declaredPersistentFields(t); ok {
		return fieldLevel{
			levelType: t,
			fields:    buildDeclaredFields(t, baseOffset, declared),
			writeObj:  implementsEither(t, levelWriterType),
			readObj:   implementsEither(t, levelReaderType),
		}
	}

	var fields []FieldDescriptor
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" && !f.Anonymous {
			continue
		}
		opt := parseFieldTag(f)
		if opt.skip {
			continue
		}
		fields = append(fields, FieldDescriptor{
			Name:   opt.name,
			Offset: baseOffset + f.Offset,
			Kind:   fieldKindOf(f.Type),
			Type:   f.Type,
		})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fieldLevel{
		levelType: t,
		fields:    fields,
		writeObj:  implementsEither(t, levelWriterType),
		readObj:   implementsEither(t, levelReaderType),
	}
}

// computeIndexable implements spec.md §3's "Field-indexing eligibility":
// no level declares a custom writeObject/readObject, no duplicate field
// names across levels, and (trivially, since Go has no deeper chain here)
// every level satisfies the same rule.
func computeIndexable(d *ClassDescriptor) bool {
	seen := map[string]bool{}
	for _, lvl := range d.levels {
		if lvl.writeObj || lvl.readObj {
			return false
		}
		for _, f := range lvl.fields {
			if seen[f.Name] {
				return false
			}
			seen[f.Name] = true
		}
	}
	return true
}

func enumValuesFor(t reflect.Type) []Enumer {
	zero := reflect.New(t).Elem().Interface()
	if ev, ok := zero.(Enumer); ok {
		if values, registered := enumRegistry[qualifiedNameOf(ev)]; registered {
			return values
		}
	}
	return nil
}

// allFields returns every field across every level, base-first, the order
// values are written/read in on the wire.
func (d *ClassDescriptor) allFields() []FieldDescriptor {
	var out []FieldDescriptor
	for _, lvl := range d.levels {
		out = append(out, lvl.fields...)
	}
	return out
}
