package gridwire

import (
	"math"
	"time"
	"unsafe"
)

// outputBuffer is a growable little-endian byte sink. Modeled on glint's
// Buffer (buffer.go) in shape — a plain growable []byte with Write*
// methods — but every numeric primitive here is fixed-width, not varint:
// the wire grammar's scenario `marshal(42:i32) = [INT_TAG, 0x2A,0x00,0x00,0x00]`
// requires raw 4-byte little-endian ints, so the varint/zigzag codec glint
// uses for its own format is not reused (see DESIGN.md, component B).
type outputBuffer struct {
	bytes []byte
}

func (b *outputBuffer) Reset() { b.bytes = b.bytes[:0] }

func (b *outputBuffer) Bytes() []byte { return b.bytes }

func (b *outputBuffer) Len() int { return len(b.bytes) }

// shrinkIfOversize reallocates the backing array at a smaller capacity once
// it has grown past softCap, per spec.md §4.G's soft-cap release behavior.
func (b *outputBuffer) shrinkIfOversize(softCap int) {
	if cap(b.bytes) > softCap {
		b.bytes = make([]byte, 0, softCap)
	}
}

func (b *outputBuffer) WriteRaw(p byte) { b.bytes = append(b.bytes, p) }

func (b *outputBuffer) WriteBool(v bool) {
	if v {
		b.bytes = append(b.bytes, 1)
	} else {
		b.bytes = append(b.bytes, 0)
	}
}

func (b *outputBuffer) WriteUint16(v uint16) {
	b.bytes = append(b.bytes, byte(v), byte(v>>8))
}

func (b *outputBuffer) WriteUint32(v uint32) {
	b.bytes = append(b.bytes, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (b *outputBuffer) WriteUint64(v uint64) {
	b.bytes = append(b.bytes,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

func (b *outputBuffer) WriteInt8(v int8)   { b.WriteRaw(byte(v)) }
func (b *outputBuffer) WriteInt16(v int16) { b.WriteUint16(uint16(v)) }
func (b *outputBuffer) WriteInt32(v int32) { b.WriteUint32(uint32(v)) }
func (b *outputBuffer) WriteInt64(v int64) { b.WriteUint64(uint64(v)) }
func (b *outputBuffer) WriteRune(v rune)   { b.WriteUint32(uint32(v)) }

func (b *outputBuffer) WriteFloat32(v float32) { b.WriteUint32(math.Float32bits(v)) }
func (b *outputBuffer) WriteFloat64(v float64) { b.WriteUint64(math.Float64bits(v)) }

func (b *outputBuffer) WriteBytes(p []byte) {
	b.WriteUint32(uint32(len(p)))
	b.bytes = append(b.bytes, p...)
}

func (b *outputBuffer) WriteString(s string) {
	b.WriteUint32(uint32(len(s)))
	b.bytes = append(b.bytes, s...)
}

func (b *outputBuffer) WriteTime(t time.Time) {
	b.WriteUint64(uint64(t.UnixMilli()))
}

// inputBuffer is a positioned little-endian byte source mirroring glint's
// Reader (reader.go), again with fixed-width reads in place of varints.
type inputBuffer struct {
	bytes []byte
	pos   int
}

func newInputBuffer(b []byte) *inputBuffer { return &inputBuffer{bytes: b} }

func (r *inputBuffer) Remaining() int { return len(r.bytes) - r.pos }

func (r *inputBuffer) Mark() int { return r.pos }

func (r *inputBuffer) Seek(pos int) { r.pos = pos }

func (r *inputBuffer) need(n int) error {
	if r.Remaining() < n {
		return wrapError(ErrProtocolViolation, errTruncated)
	}
	return nil
}

func (r *inputBuffer) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

func (r *inputBuffer) ReadRaw() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.bytes[r.pos]
	r.pos++
	return v, nil
}

func (r *inputBuffer) ReadBool() (bool, error) {
	v, err := r.ReadRaw()
	return v != 0, err
}

func (r *inputBuffer) ReadUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := uint16(r.bytes[r.pos]) | uint16(r.bytes[r.pos+1])<<8
	r.pos += 2
	return v, nil
}

func (r *inputBuffer) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	p := r.bytes[r.pos : r.pos+4]
	v := uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24
	r.pos += 4
	return v, nil
}

func (r *inputBuffer) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	p := r.bytes[r.pos : r.pos+8]
	v := uint64(p[0]) | uint64(p[1])<<8 | uint64(p[2])<<16 | uint64(p[3])<<24 |
		uint64(p[4])<<32 | uint64(p[5])<<40 | uint64(p[6])<<48 | uint64(p[7])<<56
	r.pos += 8
	return v, nil
}

func (r *inputBuffer) ReadInt8() (int8, error) {
	v, err := r.ReadRaw()
	return int8(v), err
}

func (r *inputBuffer) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *inputBuffer) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *inputBuffer) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *inputBuffer) ReadRune() (rune, error) {
	v, err := r.ReadUint32()
	return rune(v), err
}

func (r *inputBuffer) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

func (r *inputBuffer) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

func (r *inputBuffer) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.bytes[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

// ReadString zero-copies the string out of the underlying buffer via an
// unsafe cast, matching glint's Reader.ReadString convention.
func (r *inputBuffer) ReadString() (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	b := r.bytes[r.pos : r.pos+int(n)]
	r.pos += int(n)
	if len(b) == 0 {
		return "", nil
	}
	return *(*string)(unsafe.Pointer(&b)), nil
}

func (r *inputBuffer) ReadTime() (time.Time, error) {
	ms, err := r.ReadUint64()
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}
