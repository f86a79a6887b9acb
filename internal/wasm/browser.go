//go:build js && wasm

package wasm

import (
	"context"
	"fmt"
	"syscall/js"
)

// BrowserPlugin is the in-browser realization of Guest, driving a
// WebAssembly.Instance through syscall/js. Instantiation is the only
// asynchronous step; once the instance exists every operation is
// synchronous.
type BrowserPlugin struct {
	memory js.Value

	alloc         js.Value
	free          js.Value
	present       js.Value
	store         js.Value
	resultPtr     js.Value
	resultLen     js.Value
	resultSuccess js.Value

	closed bool
}

// NewBrowserPlugin instantiates wasmBytes with an empty import object
// and resolves the ABI exports. It suspends until the browser finishes
// instantiation or ctx is done.
func NewBrowserPlugin(ctx context.Context, wasmBytes []byte) (*BrowserPlugin, error) {
	buf := js.Global().Get("Uint8Array").New(len(wasmBytes))
	js.CopyBytesToJS(buf, wasmBytes)

	promise := js.Global().Get("WebAssembly").Call("instantiate", buf, js.Global().Get("Object").New())

	type outcome struct {
		value js.Value
		err   error
	}
	done := make(chan outcome, 1)

	onResolve := js.FuncOf(func(_ js.Value, args []js.Value) interface{} {
		done <- outcome{value: args[0].Get("instance")}
		return nil
	})
	defer onResolve.Release()
	onReject := js.FuncOf(func(_ js.Value, args []js.Value) interface{} {
		done <- outcome{err: &BadModuleError{Reason: "instantiation failed", Cause: fmt.Errorf("%s", args[0].Call("toString").String())}}
		return nil
	})
	defer onReject.Release()
	promise.Call("then", onResolve, onReject)

	var instance js.Value
	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		instance = out.value
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	exports := instance.Get("exports")

	memory := exports.Get(ExportMemory)
	if memory.IsUndefined() {
		return nil, &BadModuleError{Reason: fmt.Sprintf("missing %q export", ExportMemory)}
	}

	p := &BrowserPlugin{memory: memory}
	for _, bind := range []struct {
		name string
		dst  *js.Value
	}{
		{ExportAlloc, &p.alloc},
		{ExportFree, &p.free},
		{ExportPresent, &p.present},
		{ExportStore, &p.store},
		{ExportResultPtr, &p.resultPtr},
		{ExportResultLen, &p.resultLen},
		{ExportResultSuccess, &p.resultSuccess},
	} {
		fn := exports.Get(bind.name)
		if fn.IsUndefined() || fn.Type() != js.TypeFunction {
			return nil, &BadModuleError{Reason: fmt.Sprintf("missing %q export", bind.name)}
		}
		*bind.dst = fn
	}
	return p, nil
}

// invoke calls an exported function, converting thrown wasm traps into
// TrapError.
func (p *BrowserPlugin) invoke(name string, fn js.Value, args ...interface{}) (result uint32, err error) {
	if p.closed {
		return 0, fmt.Errorf("plugin instance is closed")
	}
	defer func() {
		if r := recover(); r != nil {
			err = &TrapError{Entry: name, Cause: fmt.Errorf("%v", r)}
		}
	}()
	v := fn.Invoke(args...)
	if v.Type() != js.TypeNumber {
		return 0, nil
	}
	return uint32(v.Int()), nil
}

func (p *BrowserPlugin) Alloc(_ context.Context, n uint32) (uint32, error) {
	return p.invoke(ExportAlloc, p.alloc, n)
}

func (p *BrowserPlugin) Free(_ context.Context, resultPtr uint32) error {
	_, err := p.invoke(ExportFree, p.free, resultPtr)
	return err
}

func (p *BrowserPlugin) Present(_ context.Context, ptr, length uint32) (uint32, error) {
	return p.invoke(ExportPresent, p.present, ptr, length)
}

func (p *BrowserPlugin) Store(_ context.Context, ptr, length uint32) (uint32, error) {
	return p.invoke(ExportStore, p.store, ptr, length)
}

func (p *BrowserPlugin) ResultPtr(_ context.Context, resultPtr uint32) (uint32, error) {
	return p.invoke(ExportResultPtr, p.resultPtr, resultPtr)
}

func (p *BrowserPlugin) ResultLen(_ context.Context, resultPtr uint32) (uint32, error) {
	return p.invoke(ExportResultLen, p.resultLen, resultPtr)
}

func (p *BrowserPlugin) ResultSuccess(_ context.Context, resultPtr uint32) (bool, error) {
	v, err := p.invoke(ExportResultSuccess, p.resultSuccess, resultPtr)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// view returns a fresh Uint8Array over the current memory buffer. Growth
// detaches previous buffers, so views are never cached.
func (p *BrowserPlugin) view(ptr, length uint32) js.Value {
	return js.Global().Get("Uint8Array").New(p.memory.Get("buffer"), ptr, length)
}

func (p *BrowserPlugin) MemoryRead(ptr, length uint32) ([]byte, error) {
	if uint64(ptr)+uint64(length) > uint64(p.MemorySize()) {
		return nil, fmt.Errorf("read of [%d, %d) is out of bounds", ptr, uint64(ptr)+uint64(length))
	}
	out := make([]byte, length)
	js.CopyBytesToGo(out, p.view(ptr, length))
	return out, nil
}

func (p *BrowserPlugin) MemoryWrite(ptr uint32, data []byte) error {
	if uint64(ptr)+uint64(len(data)) > uint64(p.MemorySize()) {
		return fmt.Errorf("write of [%d, %d) is out of bounds", ptr, uint64(ptr)+uint64(len(data)))
	}
	js.CopyBytesToJS(p.view(ptr, uint32(len(data))), data)
	return nil
}

func (p *BrowserPlugin) MemorySize() uint32 {
	return uint32(p.memory.Get("buffer").Get("byteLength").Int())
}

// Close marks the instance closed so every later guest call fails. The
// js references stay in the struct; the browser reclaims the instance and
// its memory once the BrowserPlugin itself is unreachable.
func (p *BrowserPlugin) Close(_ context.Context) error {
	p.closed = true
	return nil
}

var _ Guest = (*BrowserPlugin)(nil)
