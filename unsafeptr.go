package gridwire

import (
	"reflect"
	"unsafe"
)

// unsafeAdd offsets a raw pointer by n bytes, mirroring glint's
// unsafe.Pointer arithmetic in encoder.go/decoder.go for direct field
// access at a recorded offset rather than a reflect.Value.Field walk.
func unsafeAdd(base uintptr, n uintptr) unsafe.Pointer {
	return unsafe.Pointer(base + n)
}

// reflectNewAt wraps reflect.NewAt for field access by raw offset.
func reflectNewAt(t reflect.Type, p unsafe.Pointer) reflect.Value {
	return reflect.NewAt(t, p)
}
