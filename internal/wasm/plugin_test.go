package wasm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"

	"github.com/fkohlgrueber/format-galaxy/internal/wasm"
	"github.com/fkohlgrueber/format-galaxy/internal/wasm/wasmtest"
)

func newTestRuntime(t *testing.T) *wasm.Runtime {
	t.Helper()
	ctx := context.Background()
	r := wasm.NewRuntime(ctx, nil)
	t.Cleanup(func() { _ = r.Close(ctx) })
	return r
}

func TestLoadAndRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRuntime(t)

	module := wasmtest.Module{
		Present: wasmtest.Descriptor{Payload: []byte("1,2,3"), Success: true},
		Store:   wasmtest.Descriptor{Payload: []byte{1, 2, 3}, Success: true},
	}
	plugin, err := r.Load(ctx, module.Build())
	require.NoError(t, err)

	text, err := wasm.Present(ctx, plugin, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "1,2,3", text)

	bin, err := wasm.Store(ctx, plugin, text)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, bin)

	require.NoError(t, plugin.Close(ctx))
}

func TestZeroLengthInput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRuntime(t)

	module := wasmtest.Module{
		Present: wasmtest.Descriptor{Payload: []byte("empty"), Success: true},
		Store:   wasmtest.Descriptor{Success: true},
	}
	plugin, err := r.Load(ctx, module.Build())
	require.NoError(t, err)

	text, err := wasm.Present(ctx, plugin, nil)
	require.NoError(t, err)
	assert.Equal(t, "empty", text)

	// a successful store may legitimately produce zero bytes
	bin, err := wasm.Store(ctx, plugin, "")
	require.NoError(t, err)
	assert.Empty(t, bin)
}

func TestGuestReportedError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRuntime(t)

	message := "I don't like empty Strings!"
	module := wasmtest.Module{
		Present: wasmtest.Descriptor{Payload: []byte(message)},
		Store:   wasmtest.Descriptor{Payload: []byte("ok"), Success: true},
	}
	plugin, err := r.Load(ctx, module.Build())
	require.NoError(t, err)

	_, err = wasm.Present(ctx, plugin, nil)
	var guestErr *wasm.GuestError
	require.ErrorAs(t, err, &guestErr)
	assert.Equal(t, message, guestErr.Message)

	// expected failures leave the instance usable
	bin, err := wasm.Store(ctx, plugin, "text")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), bin)
}

func TestTrapInvalidatesInstance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRuntime(t)

	module := wasmtest.Module{
		Present:     wasmtest.Descriptor{Payload: []byte("x"), Success: true},
		Store:       wasmtest.Descriptor{Success: true},
		TrapPresent: true,
	}
	plugin, err := r.Load(ctx, module.Build())
	require.NoError(t, err)

	_, err = wasm.Present(ctx, plugin, []byte{1})
	var trap *wasm.TrapError
	require.ErrorAs(t, err, &trap)

	// the instance was discarded; further use fails without reaching the guest
	_, err = wasm.Store(ctx, plugin, "text")
	require.Error(t, err)
	assert.NotErrorAs(t, err, &trap)
}

func TestTrapInStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRuntime(t)

	module := wasmtest.Module{
		Present:   wasmtest.Descriptor{Payload: []byte("x"), Success: true},
		Store:     wasmtest.Descriptor{Success: true},
		TrapStore: true,
	}
	plugin, err := r.Load(ctx, module.Build())
	require.NoError(t, err)

	text, err := wasm.Present(ctx, plugin, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, "x", text)

	_, err = wasm.Store(ctx, plugin, text)
	var trap *wasm.TrapError
	require.ErrorAs(t, err, &trap)
}

func TestDescriptorOutOfBounds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRuntime(t)

	// the descriptor claims far more than one page of memory
	module := wasmtest.Module{
		Present: wasmtest.Descriptor{
			Payload:     []byte("x"),
			Success:     true,
			LenOverride: wasmtest.Uint32(1 << 20),
		},
		Store: wasmtest.Descriptor{Success: true},
	}
	plugin, err := r.Load(ctx, module.Build())
	require.NoError(t, err)

	_, err = wasm.Present(ctx, plugin, []byte{1})
	var badOutput *wasm.BadOutputError
	require.ErrorAs(t, err, &badOutput)
}

func TestDescriptorPtrOutOfBounds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRuntime(t)

	module := wasmtest.Module{
		Present: wasmtest.Descriptor{
			Payload:     []byte("x"),
			Success:     true,
			PtrOverride: wasmtest.Uint32(1 << 30),
		},
		Store: wasmtest.Descriptor{Success: true},
	}
	plugin, err := r.Load(ctx, module.Build())
	require.NoError(t, err)

	_, err = wasm.Present(ctx, plugin, []byte{1})
	var badOutput *wasm.BadOutputError
	require.ErrorAs(t, err, &badOutput)
}

func TestNonUTF8ErrorMessage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRuntime(t)

	module := wasmtest.Module{
		Present: wasmtest.Descriptor{Payload: []byte{0xFF, 0xFE}},
		Store:   wasmtest.Descriptor{Success: true},
	}
	plugin, err := r.Load(ctx, module.Build())
	require.NoError(t, err)

	_, err = wasm.Present(ctx, plugin, []byte{1})
	var badOutput *wasm.BadOutputError
	require.ErrorAs(t, err, &badOutput)
}

func TestLoadRejectsInvalidModule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRuntime(t)

	_, err := r.Load(ctx, []byte("not a wasm module"))
	var badModule *wasm.BadModuleError
	require.ErrorAs(t, err, &badModule)
}

func TestLoadRejectsMissingExports(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for _, name := range []string{
		wasm.ExportMemory, wasm.ExportAlloc, wasm.ExportFree, wasm.ExportPresent,
		wasm.ExportStore, wasm.ExportResultPtr, wasm.ExportResultLen, wasm.ExportResultSuccess,
	} {
		t.Run(name, func(t *testing.T) {
			r := newTestRuntime(t)
			module := wasmtest.Module{
				Present:     wasmtest.Descriptor{Payload: []byte("x"), Success: true},
				Store:       wasmtest.Descriptor{Success: true},
				OmitExports: map[string]bool{name: true},
			}

			_, err := r.Load(ctx, module.Build())
			var badModule *wasm.BadModuleError
			require.ErrorAs(t, err, &badModule)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestLoadRejectsWrongArity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRuntime(t)

	module := wasmtest.Module{
		Present:       wasmtest.Descriptor{Payload: []byte("x"), Success: true},
		Store:         wasmtest.Descriptor{Success: true},
		BadAllocArity: true,
	}
	_, err := r.Load(ctx, module.Build())
	var badModule *wasm.BadModuleError
	require.ErrorAs(t, err, &badModule)
	assert.Contains(t, err.Error(), wasm.ExportAlloc)
}

func TestLoadRejectsEmptyModule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRuntime(t)

	// a syntactically valid module with no exports at all
	header := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	_, err := r.Load(ctx, header)
	var badModule *wasm.BadModuleError
	require.ErrorAs(t, err, &badModule)
}

func TestCacheEquivalence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	module := wasmtest.Module{
		Present: wasmtest.Descriptor{Payload: []byte("cached"), Success: true},
		Store:   wasmtest.Descriptor{Success: true},
	}.Build()
	dir := t.TempDir()

	runOnce := func() string {
		cache, err := wazero.NewCompilationCacheWithDir(dir)
		require.NoError(t, err)
		defer cache.Close(ctx)

		r := wasm.NewRuntime(ctx, cache)
		defer r.Close(ctx)

		plugin, err := r.Load(ctx, module)
		require.NoError(t, err)
		text, err := wasm.Present(ctx, plugin, []byte{1})
		require.NoError(t, err)
		return text
	}

	// first run compiles and populates the cache, second deserializes
	first := runOnce()
	second := runOnce()
	assert.Equal(t, "cached", first)
	assert.Equal(t, first, second)
}
