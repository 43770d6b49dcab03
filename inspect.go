package gridwire

import (
	"fmt"
	"strings"
)

// Inspect renders a human-readable tree of a gridwire document without
// requiring a ClassResolver, mirroring the teacher's schema-less glint.Print
// (printer.go): since the wire format is self-describing, every tag can be
// walked and rendered on its own; only SERIALIZABLE/EXTERNALIZABLE/
// MARSHAL_AWARE bodies can't be decoded field-by-field without the live Go
// type, so those print only their type metadata (plus, for MARSHAL_AWARE,
// any field-name schema already published in this process), never per-field
// values or a footer table.
func Inspect(data []byte) (string, error) {
	in := &inputBuffer{bytes: data}
	var sb strings.Builder
	if err := inspectValue(in, &sb, 0); err != nil {
		return sb.String(), err
	}
	return sb.String(), nil
}

func indent(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
}

func inspectValue(in *inputBuffer, sb *strings.Builder, depth int) error {
	pos := in.Mark()
	tb, err := in.ReadRaw()
	if err != nil {
		return err
	}
	tg := tag(tb)

	indent(sb, depth)
	switch tg {
	case tagNull:
		sb.WriteString("null\n")
		return nil
	case tagHandle:
		target, err := in.ReadUint32()
		if err != nil {
			return err
		}
		fmt.Fprintf(sb, "-> handle(%d)\n", target)
		return nil
	case tagBool:
		v, err := in.ReadBool()
		fmt.Fprintf(sb, "BOOL %v\n", v)
		return err
	case tagByte:
		v, err := in.ReadInt8()
		fmt.Fprintf(sb, "BYTE %d\n", v)
		return err
	case tagShort:
		v, err := in.ReadInt16()
		fmt.Fprintf(sb, "SHORT %d\n", v)
		return err
	case tagChar:
		v, err := in.ReadRune()
		fmt.Fprintf(sb, "CHAR %q\n", v)
		return err
	case tagInt:
		v, err := in.ReadInt32()
		fmt.Fprintf(sb, "INT %d\n", v)
		return err
	case tagLong:
		v, err := in.ReadInt64()
		fmt.Fprintf(sb, "LONG %d\n", v)
		return err
	case tagFloat:
		v, err := in.ReadFloat32()
		fmt.Fprintf(sb, "FLOAT %g\n", v)
		return err
	case tagDouble:
		v, err := in.ReadFloat64()
		fmt.Fprintf(sb, "DOUBLE %g\n", v)
		return err
	case tagString:
		v, err := in.ReadString()
		fmt.Fprintf(sb, "STRING %q\n", v)
		return err
	case tagUUID:
		hi, err := in.ReadUint64()
		if err != nil {
			return err
		}
		lo, err := in.ReadUint64()
		if err != nil {
			return err
		}
		fmt.Fprintf(sb, "UUID %016x%016x\n", hi, lo)
		return nil
	case tagDate:
		v, err := in.ReadTime()
		fmt.Fprintf(sb, "DATE %s\n", v)
		return err
	case tagByteArray:
		v, err := in.ReadBytes()
		fmt.Fprintf(sb, "BYTE_ARRAY % x\n", v)
		return err
	case tagBoolArray, tagShortArray, tagIntArray, tagLongArray, tagFloatArray, tagDoubleArray, tagCharArray:
		return inspectPrimitiveArray(in, sb, tg)
	case tagClass:
		id, name, err := readTypeMetaRaw(in)
		if err != nil {
			return err
		}
		fmt.Fprintf(sb, "CLASS id=%d name=%q\n", id, name)
		return nil
	case tagEnum:
		id, name, err := readTypeMetaRaw(in)
		if err != nil {
			return err
		}
		ordinal, err := in.ReadInt32()
		if err != nil {
			return err
		}
		fmt.Fprintf(sb, "ENUM id=%d name=%q ordinal=%d\n", id, name, ordinal)
		return nil
	case tagExternalizable:
		id, name, err := readTypeMetaRaw(in)
		if err != nil {
			return err
		}
		if _, err := in.ReadUint16(); err != nil {
			return err
		}
		fmt.Fprintf(sb, "EXTERNALIZABLE id=%d name=%q (opaque body, no schema to walk)\n", id, name)
		return fmt.Errorf("gridwire: cannot inspect past an EXTERNALIZABLE body without its type")
	case tagMarshalAware:
		id, name, err := readTypeMetaRaw(in)
		if err != nil {
			return err
		}
		fmt.Fprintf(sb, "MARSHAL_AWARE id=%d name=%q\n", id, name)
		if schema, ok := SchemaOf(id); ok {
			indent(sb, depth+1)
			fmt.Fprintf(sb, "published fields: %s\n", strings.Join(schema, ", "))
		}
		return fmt.Errorf("gridwire: cannot inspect past a MARSHAL_AWARE body without its type")
	case tagSerializable:
		return inspectSerializable(in, sb, depth, pos)
	case tagProperties:
		return inspectProperties(in, sb, depth)
	case tagArrayList, tagObjectArray:
		return inspectList(in, sb, depth, tg)
	case tagLinkedList:
		return inspectList(in, sb, depth, tg)
	case tagHashMap:
		return inspectMap(in, sb, depth, false)
	case tagLinkedHashMap:
		return inspectMap(in, sb, depth, true)
	case tagHashSet, tagLinkedHashSet:
		return inspectSet(in, sb, depth)
	default:
		return newError(ErrProtocolViolation, "unrecognized tag %d at position %d", tb, pos)
	}
}

func readTypeMetaRaw(in *inputBuffer) (uint32, string, error) {
	id, err := in.ReadUint32()
	if err != nil {
		return 0, "", err
	}
	if id == 0 {
		name, err := in.ReadString()
		return 0, name, err
	}
	return id, "", nil
}

func inspectPrimitiveArray(in *inputBuffer, sb *strings.Builder, tg tag) error {
	n, err := in.ReadUint32()
	if err != nil {
		return err
	}
	fmt.Fprintf(sb, "%s[%d]\n", tg, n)
	for i := uint32(0); i < n; i++ {
		switch tg {
		case tagBoolArray:
			_, err = in.ReadBool()
		case tagShortArray:
			_, err = in.ReadInt16()
		case tagIntArray:
			_, err = in.ReadInt32()
		case tagCharArray:
			_, err = in.ReadRune()
		case tagLongArray:
			_, err = in.ReadInt64()
		case tagFloatArray:
			_, err = in.ReadFloat32()
		case tagDoubleArray:
			_, err = in.ReadFloat64()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func inspectSerializable(in *inputBuffer, sb *strings.Builder, depth int, pos int) error {
	id, name, err := readTypeMetaRaw(in)
	if err != nil {
		return err
	}
	checksum, err := in.ReadUint16()
	if err != nil {
		return err
	}
	fmt.Fprintf(sb, "SERIALIZABLE id=%d name=%q checksum=%04x (handle pos %d)\n", id, name, checksum, pos)
	return nil
}

func inspectProperties(in *inputBuffer, sb *strings.Builder, depth int) error {
	sb.WriteString("PROPERTIES\n")
	hasDefaults, err := in.ReadBool()
	if err != nil {
		return err
	}
	if hasDefaults {
		indent(sb, depth+1)
		sb.WriteString("defaults:\n")
		if err := inspectProperties(in, sb, depth+2); err != nil {
			return err
		}
	}
	n, err := in.ReadUint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		k, err := in.ReadString()
		if err != nil {
			return err
		}
		v, err := in.ReadString()
		if err != nil {
			return err
		}
		indent(sb, depth+1)
		fmt.Fprintf(sb, "%s = %s\n", k, v)
	}
	return nil
}

func inspectList(in *inputBuffer, sb *strings.Builder, depth int, tg tag) error {
	n, err := in.ReadUint32()
	if err != nil {
		return err
	}
	fmt.Fprintf(sb, "%s[%d]\n", tg, n)
	for i := uint32(0); i < n; i++ {
		if err := inspectValue(in, sb, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func inspectMap(in *inputBuffer, sb *strings.Builder, depth int, ordered bool) error {
	if _, err := in.ReadFloat32(); err != nil { // load factor
		return err
	}
	if ordered {
		if _, err := in.ReadBool(); err != nil { // accessOrder
			return err
		}
	}
	n, err := in.ReadUint32()
	if err != nil {
		return err
	}
	label := "HASH_MAP"
	if ordered {
		label = "LINKED_HASH_MAP"
	}
	fmt.Fprintf(sb, "%s[%d]\n", label, n)
	for i := uint32(0); i < n; i++ {
		indent(sb, depth+1)
		sb.WriteString("key:\n")
		if err := inspectValue(in, sb, depth+2); err != nil {
			return err
		}
		indent(sb, depth+1)
		sb.WriteString("value:\n")
		if err := inspectValue(in, sb, depth+2); err != nil {
			return err
		}
	}
	return nil
}

func inspectSet(in *inputBuffer, sb *strings.Builder, depth int) error {
	if _, err := in.ReadFloat32(); err != nil {
		return err
	}
	n, err := in.ReadUint32()
	if err != nil {
		return err
	}
	fmt.Fprintf(sb, "SET[%d]\n", n)
	for i := uint32(0); i < n; i++ {
		if err := inspectValue(in, sb, depth+1); err != nil {
			return err
		}
	}
	return nil
}
