package wasm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Runtime is the wazero realization of the engine side of the ABI. It
// owns the engine and hands out plugin instances. Plugins are pure
// computational sandboxes: no WASI, no host functions, no imports of any
// kind are offered to the guest.
type Runtime struct {
	runtime wazero.Runtime
}

// NewRuntime creates a runtime. A non-nil compilation cache (normally the
// module cache's, see internal/modcache) lets the engine reuse
// pre-compiled artifacts across processes.
func NewRuntime(ctx context.Context, cache wazero.CompilationCache) *Runtime {
	config := wazero.NewRuntimeConfig()
	if cache != nil {
		config = config.WithCompilationCache(cache)
	}
	return &Runtime{runtime: wazero.NewRuntimeWithConfig(ctx, config)}
}

// Load compiles wasmBytes and instantiates a fresh plugin instance,
// resolving the seven ABI exports and the linear memory. Any missing or
// wrongly-typed export is a *BadModuleError.
func (r *Runtime) Load(ctx context.Context, wasmBytes []byte) (*Plugin, error) {
	compiled, err := r.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, &BadModuleError{Reason: "compilation failed", Cause: err}
	}

	// Anonymous module, no start functions: conformant plugins carry no
	// initialization entry point.
	instance, err := r.runtime.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		return nil, &BadModuleError{Reason: "instantiation failed", Cause: err}
	}

	plugin, err := newPlugin(instance)
	if err != nil {
		_ = instance.Close(ctx)
		return nil, err
	}
	slog.Debug("plugin instantiated", "memory_bytes", plugin.MemorySize())
	return plugin, nil
}

// Close shuts the engine down, closing every instance created from it.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// export signatures required by the ABI, keyed by export name.
var exportSignatures = map[string]struct {
	params  []api.ValueType
	results []api.ValueType
}{
	ExportAlloc:         {[]api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}},
	ExportFree:          {[]api.ValueType{api.ValueTypeI32}, nil},
	ExportPresent:       {[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}},
	ExportStore:         {[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}},
	ExportResultPtr:     {[]api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}},
	ExportResultLen:     {[]api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}},
	ExportResultSuccess: {[]api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}},
}

func resolveExport(instance api.Module, name string) (api.Function, error) {
	fn := instance.ExportedFunction(name)
	if fn == nil {
		return nil, &BadModuleError{Reason: fmt.Sprintf("missing %q export", name)}
	}
	want := exportSignatures[name]
	def := fn.Definition()
	if !typesEqual(def.ParamTypes(), want.params) || !typesEqual(def.ResultTypes(), want.results) {
		return nil, &BadModuleError{Reason: fmt.Sprintf("export %q has the wrong signature", name)}
	}
	return fn, nil
}

func typesEqual(got, want []api.ValueType) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
