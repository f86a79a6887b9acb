// Package wasm implements the plugin ABI shared by every converter
// module, the generic host driver that speaks it, and the wazero-backed
// engine binding.
//
// A conformant plugin exports seven operations over a single linear
// memory named "memory". The host stages input through alloc, invokes
// present or store, reads the returned result descriptor through the
// three accessor exports, copies the payload out, and releases the
// descriptor with free. The descriptor layout is never probed directly;
// only the accessors are used, which keeps the host independent of guest
// struct layout.
package wasm

import "context"

// Export names required from every plugin module.
const (
	ExportMemory        = "memory"
	ExportAlloc         = "alloc"
	ExportFree          = "free"
	ExportPresent       = "present"
	ExportStore         = "store"
	ExportResultPtr     = "result_get_ptr"
	ExportResultLen     = "result_get_len"
	ExportResultSuccess = "result_get_success"
)

// Entry names a guest entry point the driver can invoke.
type Entry string

const (
	EntryPresent Entry = ExportPresent
	EntryStore   Entry = ExportStore
)

// Guest is the capability set a plugin instance offers to the host
// driver. It is the pivotal abstraction that keeps the driver
// engine-agnostic; realizations exist for wazero and for the in-browser
// runtime.
//
// All guest invocations convert engine faults into *TrapError. An
// instance is single-session and non-reentrant: callers must never
// overlap two operations on the same Guest.
//
// Memory rule: a plugin operation may grow linear memory, so raw views
// must never be held across calls. MemoryRead, MemoryWrite and
// MemorySize re-derive the backing view on every use.
type Guest interface {
	// Alloc returns a pointer to at least n writable bytes owned by the
	// guest. The host stages input there before each call. For n == 0
	// the guest must still return a valid sentinel pointer.
	Alloc(ctx context.Context, n uint32) (uint32, error)

	// Free releases a result descriptor and the payload region it refers
	// to. The host calls it at most once per descriptor.
	Free(ctx context.Context, resultPtr uint32) error

	// Present interprets len input bytes at ptr as the format's binary
	// encoding and returns a result descriptor pointer whose payload is
	// pretty-printed UTF-8 text, or an error message on success == 0.
	Present(ctx context.Context, ptr, length uint32) (uint32, error)

	// Store is the mirror of Present: UTF-8 text in, binary encoding out.
	Store(ctx context.Context, ptr, length uint32) (uint32, error)

	// ResultPtr, ResultLen and ResultSuccess read the descriptor fields.
	ResultPtr(ctx context.Context, resultPtr uint32) (uint32, error)
	ResultLen(ctx context.Context, resultPtr uint32) (uint32, error)
	ResultSuccess(ctx context.Context, resultPtr uint32) (bool, error)

	// MemoryRead copies length bytes out of guest memory. The returned
	// slice is host-owned.
	MemoryRead(ptr, length uint32) ([]byte, error)

	// MemoryWrite copies data into guest memory at ptr.
	MemoryWrite(ptr uint32, data []byte) error

	// MemorySize returns the current linear memory length in bytes.
	MemorySize() uint32

	// Close discards the instance and reclaims its linear memory.
	Close(ctx context.Context) error
}
