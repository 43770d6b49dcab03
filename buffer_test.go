package gridwire

import (
	"testing"
	"time"
)

// TestFixedWidthRoundTrip exercises the write/read pairing for every
// primitive the wire grammar names, matching the concrete scenario in the
// design notes: marshal(42:i32) must be exactly [0x2A,0x00,0x00,0x00], not
// a varint.
func TestFixedWidthRoundTrip(t *testing.T) {
	var out outputBuffer
	out.WriteBool(true)
	out.WriteInt8(-7)
	out.WriteInt16(-1234)
	out.WriteInt32(42)
	out.WriteInt64(1 << 40)
	out.WriteFloat32(3.5)
	out.WriteFloat64(2.718281828)
	out.WriteRune('λ')
	out.WriteString("hello")
	out.WriteBytes([]byte{1, 2, 3})
	now := time.UnixMilli(1700000000123).UTC()
	out.WriteTime(now)

	in := &inputBuffer{bytes: out.Bytes()}

	if v, err := in.ReadBool(); err != nil || v != true {
		t.Fatalf("ReadBool: %v, %v", v, err)
	}
	if v, err := in.ReadInt8(); err != nil || v != -7 {
		t.Fatalf("ReadInt8: %v, %v", v, err)
	}
	if v, err := in.ReadInt16(); err != nil || v != -1234 {
		t.Fatalf("ReadInt16: %v, %v", v, err)
	}
	if v, err := in.ReadInt32(); err != nil || v != 42 {
		t.Fatalf("ReadInt32: %v, %v", v, err)
	}
	if v, err := in.ReadInt64(); err != nil || v != 1<<40 {
		t.Fatalf("ReadInt64: %v, %v", v, err)
	}
	if v, err := in.ReadFloat32(); err != nil || v != 3.5 {
		t.Fatalf("ReadFloat32: %v, %v", v, err)
	}
	if v, err := in.ReadFloat64(); err != nil || v != 2.718281828 {
		t.Fatalf("ReadFloat64: %v, %v", v, err)
	}
	if v, err := in.ReadRune(); err != nil || v != 'λ' {
		t.Fatalf("ReadRune: %v, %v", v, err)
	}
	if v, err := in.ReadString(); err != nil || v != "hello" {
		t.Fatalf("ReadString: %v, %v", v, err)
	}
	if v, err := in.ReadBytes(); err != nil || string(v) != "\x01\x02\x03" {
		t.Fatalf("ReadBytes: %v, %v", v, err)
	}
	if v, err := in.ReadTime(); err != nil || !v.Equal(now) {
		t.Fatalf("ReadTime: %v, %v", v, err)
	}
}

func TestInt32WireShape(t *testing.T) {
	var out outputBuffer
	out.WriteRaw(byte(tagInt))
	out.WriteInt32(42)
	want := []byte{byte(tagInt), 0x2A, 0x00, 0x00, 0x00}
	got := out.Bytes()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %#x want %#x", i, got[i], want[i])
		}
	}
}

func TestTruncatedReadFails(t *testing.T) {
	in := &inputBuffer{bytes: []byte{1, 2}}
	_, err := in.ReadUint32()
	if err == nil {
		t.Fatal("expected truncation error, got nil")
	}
	kind, ok := KindOf(err)
	if !ok || kind != ErrProtocolViolation {
		t.Fatalf("expected ErrProtocolViolation, got %v (ok=%v)", kind, ok)
	}
}

func TestShrinkIfOversize(t *testing.T) {
	var out outputBuffer
	out.bytes = make([]byte, 10, 1<<20)
	out.shrinkIfOversize(1024)
	if cap(out.bytes) > 1024 {
		t.Fatalf("expected capacity to shrink, got %d", cap(out.bytes))
	}
}
