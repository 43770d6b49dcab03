package gridwire

import "reflect"

// handleTable tracks previously written or read object identities so
// cyclic and shared-reference graphs round-trip, per spec.md's Data Model
// ("Handle table") and Design Notes ("handle table enters the object
// before populating its fields"). It lives for exactly one top-level
// marshal/unmarshal call, matching the per-invocation lifetime glint never
// needed (glint has no handle concept — this is new code grounded in the
// spec's own description, written in the teacher's plain-struct style).
type handleTable struct {
	// write side: object identity -> wire position at which it was entered
	positions map[uintptr]uint32
	// read side: wire position -> the (possibly still-being-populated) value
	objects map[uint32]reflect.Value
}

func newHandleTable() *handleTable {
	return &handleTable{
		positions: make(map[uintptr]uint32),
		objects:   make(map[uint32]reflect.Value),
	}
}

// identityOf returns a stable identity for v and whether v has one at all.
// Only reference-like kinds (pointer, map, slice, chan, func) can alias;
// everything else is a value type and is never entered into the table.
func identityOf(v reflect.Value) (uintptr, bool) {
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func:
		if v.IsNil() {
			return 0, false
		}
		return v.Pointer(), true
	case reflect.Slice:
		if v.IsNil() || v.Len() == 0 {
			return 0, false
		}
		return v.Pointer(), true
	default:
		return 0, false
	}
}

func (h *handleTable) lookup(v reflect.Value) (uint32, bool) {
	id, ok := identityOf(v)
	if !ok {
		return 0, false
	}
	pos, ok := h.positions[id]
	return pos, ok
}

func (h *handleTable) enter(v reflect.Value, pos uint32) {
	if id, ok := identityOf(v); ok {
		h.positions[id] = pos
	}
}

func (h *handleTable) resolve(pos uint32) (reflect.Value, bool) {
	v, ok := h.objects[pos]
	return v, ok
}

func (h *handleTable) register(pos uint32, v reflect.Value) {
	h.objects[pos] = v
}
