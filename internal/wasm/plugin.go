package wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// Plugin is a wazero-backed plugin instance. It owns the instantiated
// module and its linear memory, and implements Guest over the seven
// typed function exports.
//
// A Plugin is single-session and must not be invoked concurrently. After
// Close (or a trap, which closes it through the driver) every call into
// the guest fails.
type Plugin struct {
	instance api.Module
	memory   api.Memory

	alloc         api.Function
	free          api.Function
	present       api.Function
	store         api.Function
	resultPtr     api.Function
	resultLen     api.Function
	resultSuccess api.Function

	closed bool
}

func newPlugin(instance api.Module) (*Plugin, error) {
	memory := instance.ExportedMemory(ExportMemory)
	if memory == nil {
		return nil, &BadModuleError{Reason: fmt.Sprintf("missing %q export", ExportMemory)}
	}

	p := &Plugin{instance: instance, memory: memory}
	for _, bind := range []struct {
		name string
		dst  *api.Function
	}{
		{ExportAlloc, &p.alloc},
		{ExportFree, &p.free},
		{ExportPresent, &p.present},
		{ExportStore, &p.store},
		{ExportResultPtr, &p.resultPtr},
		{ExportResultLen, &p.resultLen},
		{ExportResultSuccess, &p.resultSuccess},
	} {
		fn, err := resolveExport(instance, bind.name)
		if err != nil {
			return nil, err
		}
		*bind.dst = fn
	}
	return p, nil
}

// call invokes a typed export and converts engine faults into TrapError.
func (p *Plugin) call(ctx context.Context, name string, fn api.Function, args ...uint64) ([]uint64, error) {
	if p.closed {
		return nil, fmt.Errorf("plugin instance is closed")
	}
	results, err := fn.Call(ctx, args...)
	if err != nil {
		return nil, &TrapError{Entry: name, Cause: err}
	}
	return results, nil
}

func (p *Plugin) call1(ctx context.Context, name string, fn api.Function, args ...uint64) (uint32, error) {
	results, err := p.call(ctx, name, fn, args...)
	if err != nil {
		return 0, err
	}
	if len(results) != 1 {
		return 0, &BadOutputError{Reason: fmt.Sprintf("%s returned %d values, want 1", name, len(results))}
	}
	return uint32(results[0]), nil
}

func (p *Plugin) Alloc(ctx context.Context, n uint32) (uint32, error) {
	return p.call1(ctx, ExportAlloc, p.alloc, uint64(n))
}

func (p *Plugin) Free(ctx context.Context, resultPtr uint32) error {
	_, err := p.call(ctx, ExportFree, p.free, uint64(resultPtr))
	return err
}

func (p *Plugin) Present(ctx context.Context, ptr, length uint32) (uint32, error) {
	return p.call1(ctx, ExportPresent, p.present, uint64(ptr), uint64(length))
}

func (p *Plugin) Store(ctx context.Context, ptr, length uint32) (uint32, error) {
	return p.call1(ctx, ExportStore, p.store, uint64(ptr), uint64(length))
}

func (p *Plugin) ResultPtr(ctx context.Context, resultPtr uint32) (uint32, error) {
	return p.call1(ctx, ExportResultPtr, p.resultPtr, uint64(resultPtr))
}

func (p *Plugin) ResultLen(ctx context.Context, resultPtr uint32) (uint32, error) {
	return p.call1(ctx, ExportResultLen, p.resultLen, uint64(resultPtr))
}

func (p *Plugin) ResultSuccess(ctx context.Context, resultPtr uint32) (bool, error) {
	v, err := p.call1(ctx, ExportResultSuccess, p.resultSuccess, uint64(resultPtr))
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// MemoryRead copies length bytes out of linear memory. The view is
// re-derived on every access; wazero's api.Memory tracks growth.
func (p *Plugin) MemoryRead(ptr, length uint32) ([]byte, error) {
	data, ok := p.memory.Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("read of [%d, %d) is out of bounds", ptr, uint64(ptr)+uint64(length))
	}
	out := make([]byte, length)
	copy(out, data)
	return out, nil
}

func (p *Plugin) MemoryWrite(ptr uint32, data []byte) error {
	if !p.memory.Write(ptr, data) {
		return fmt.Errorf("write of [%d, %d) is out of bounds", ptr, uint64(ptr)+uint64(len(data)))
	}
	return nil
}

func (p *Plugin) MemorySize() uint32 {
	return p.memory.Size()
}

// Close discards the instance. Idempotent.
func (p *Plugin) Close(ctx context.Context) error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.instance.Close(ctx)
}

var _ Guest = (*Plugin)(nil)
