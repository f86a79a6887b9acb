// Package wasmtest assembles tiny plugin modules directly in the wasm
// binary format for tests. The generated guests keep real result
// descriptors in linear memory and read them back through the accessor
// exports, so the whole host path (staging, invocation, descriptor
// reads, bounds checks, traps) is exercised without a guest toolchain.
package wasmtest

import "encoding/binary"

// Descriptor fixes one entry point's answer: a payload placed into
// linear memory and the success flag describing it.
type Descriptor struct {
	Payload []byte
	Success bool

	// PtrOverride, when non-nil, replaces the payload pointer written
	// into the descriptor, for hostile out-of-bounds answers.
	PtrOverride *uint32
	// LenOverride likewise replaces the payload length.
	LenOverride *uint32
}

// Module describes a plugin to assemble. The zero value is not useful;
// set at least Present and Store.
type Module struct {
	Present Descriptor
	Store   Descriptor

	// TrapPresent / TrapStore replace the entry's body with an
	// unreachable instruction.
	TrapPresent bool
	TrapStore   bool

	// OmitExports drops exports by name to simulate broken modules.
	OmitExports map[string]bool

	// BadAllocArity gives alloc a (i32) -> () signature.
	BadAllocArity bool
}

// Memory layout of the assembled guest: descriptors at fixed slots, the
// staging address that alloc always returns above them, payloads behind
// that.
const (
	presentDescAddr = 64
	storeDescAddr   = 80
	allocAddr       = 1024
	payloadBase     = 4096
)

// Uint32 is a convenience for the override fields.
func Uint32(v uint32) *uint32 {
	return &v
}

// Build assembles the module bytes.
func (m Module) Build() []byte {
	presentPayloadAddr := uint32(payloadBase)
	storePayloadAddr := presentPayloadAddr + uint32(len(m.Present.Payload))

	// function type table
	t0 := []byte{0x60, 0x01, 0x7F, 0x01, 0x7F}       // (i32) -> (i32)
	t1 := []byte{0x60, 0x02, 0x7F, 0x7F, 0x01, 0x7F} // (i32, i32) -> (i32)
	t2 := []byte{0x60, 0x01, 0x7F, 0x00}             // (i32) -> ()

	allocType := byte(0)
	allocBody := funcBody(i32Const(allocAddr)...)
	if m.BadAllocArity {
		allocType = 2
		allocBody = funcBody()
	}

	presentBody := funcBody(i32Const(presentDescAddr)...)
	if m.TrapPresent {
		presentBody = funcBody(opUnreachable)
	}
	storeBody := funcBody(i32Const(storeDescAddr)...)
	if m.TrapStore {
		storeBody = funcBody(opUnreachable)
	}

	// accessors load the requested field out of the descriptor record:
	// local.get 0; i32.load with the field's offset
	loadField := func(offset byte) []byte {
		return funcBody(0x20, 0x00, 0x28, 0x02, offset)
	}

	typeSection := section(1, vec(t0, t1, t2))
	funcSection := section(3, vec(
		[]byte{allocType}, // alloc
		[]byte{2},         // free
		[]byte{1},         // present
		[]byte{1},         // store
		[]byte{0},         // result_get_ptr
		[]byte{0},         // result_get_len
		[]byte{0},         // result_get_success
	))
	memSection := section(5, vec([]byte{0x00, 0x01})) // 1 page, no max

	var exports [][]byte
	addExport := func(name string, kind byte, index uint64) {
		if m.OmitExports[name] {
			return
		}
		entry := encodeName(name)
		entry = append(entry, kind)
		entry = append(entry, uleb(index)...)
		exports = append(exports, entry)
	}
	addExport("memory", 0x02, 0)
	addExport("alloc", 0x00, 0)
	addExport("free", 0x00, 1)
	addExport("present", 0x00, 2)
	addExport("store", 0x00, 3)
	addExport("result_get_ptr", 0x00, 4)
	addExport("result_get_len", 0x00, 5)
	addExport("result_get_success", 0x00, 6)
	exportSection := section(7, vec(exports...))

	codeSection := section(10, vec(
		allocBody,
		funcBody(), // free: no-op
		presentBody,
		storeBody,
		loadField(0), // payload ptr
		loadField(4), // payload len
		loadField(8), // success flag
	))

	var segments [][]byte
	segments = append(segments,
		dataSegment(presentDescAddr, m.Present.record(presentPayloadAddr)),
		dataSegment(storeDescAddr, m.Store.record(storePayloadAddr)),
	)
	if len(m.Present.Payload) > 0 {
		segments = append(segments, dataSegment(presentPayloadAddr, m.Present.Payload))
	}
	if len(m.Store.Payload) > 0 {
		segments = append(segments, dataSegment(storePayloadAddr, m.Store.Payload))
	}
	dataSection := section(11, vec(segments...))

	module := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	module = append(module, typeSection...)
	module = append(module, funcSection...)
	module = append(module, memSection...)
	module = append(module, exportSection...)
	module = append(module, codeSection...)
	module = append(module, dataSection...)
	return module
}

// record lays the descriptor out as three little-endian u32 fields:
// payload ptr, payload len, success. A capacity field follows for
// layout fidelity but is never read back.
func (d Descriptor) record(payloadAddr uint32) []byte {
	ptr := payloadAddr
	if d.PtrOverride != nil {
		ptr = *d.PtrOverride
	}
	length := uint32(len(d.Payload))
	if d.LenOverride != nil {
		length = *d.LenOverride
	}
	success := uint32(0)
	if d.Success {
		success = 1
	}

	out := make([]byte, 16)
	binary.LittleEndian.PutUint32(out[0:], ptr)
	binary.LittleEndian.PutUint32(out[4:], length)
	binary.LittleEndian.PutUint32(out[8:], success)
	binary.LittleEndian.PutUint32(out[12:], length) // capacity
	return out
}

const opUnreachable = 0x00

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func vec(items ...[]byte) []byte {
	out := uleb(uint64(len(items)))
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

func section(id byte, payload []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint64(len(payload)))...)
	return append(out, payload...)
}

func encodeName(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func funcBody(instrs ...byte) []byte {
	body := append([]byte{0x00}, instrs...) // no locals
	body = append(body, 0x0B)               // end
	return append(uleb(uint64(len(body))), body...)
}

func i32Const(v int64) []byte {
	return append([]byte{0x41}, sleb(v)...)
}

// dataSegment encodes an active data segment targeting memory 0 at the
// given offset: flag byte, offset expr (i32.const; end), then the byte
// vector.
func dataSegment(offset uint32, data []byte) []byte {
	out := []byte{0x00}
	out = append(out, i32Const(int64(offset))...)
	out = append(out, 0x0B)
	out = append(out, uleb(uint64(len(data)))...)
	out = append(out, data...)
	return out
}
