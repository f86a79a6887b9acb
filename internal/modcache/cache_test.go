package modcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashIsStable(t *testing.T) {
	t.Parallel()

	a := Hash([]byte("module"))
	b := Hash([]byte("module"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, Hash([]byte("other")))
}

func TestStoreAndResolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := New(t.TempDir())
	defer cache.Close(ctx)

	blob := []byte("\x00asm fake module bytes")
	hash, err := cache.Store(blob)
	require.NoError(t, err)
	assert.Equal(t, Hash(blob), hash)

	got, err := cache.Resolve(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestResolveMissing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := New(t.TempDir())
	defer cache.Close(ctx)

	_, err := cache.Resolve(ctx, Hash([]byte("never stored")))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolveDetectsCorruption(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := New(t.TempDir())
	defer cache.Close(ctx)

	hash, err := cache.Store([]byte("original bytes"))
	require.NoError(t, err)

	// corrupt the stored blob behind the cache's back
	require.NoError(t, os.WriteFile(cache.SourcePath(hash), []byte("tampered"), 0o644))

	_, err = cache.Resolve(ctx, hash)
	var integrity *IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, hash, integrity.Expected)
}

func TestStoreIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := New(t.TempDir())
	defer cache.Close(ctx)

	blob := []byte("same bytes")
	h1, err := cache.Store(blob)
	require.NoError(t, err)
	h2, err := cache.Store(blob)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	got, err := cache.Resolve(ctx, h1)
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestListSources(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := New(t.TempDir())
	defer cache.Close(ctx)

	hashes, err := cache.ListSources()
	require.NoError(t, err)
	assert.Empty(t, hashes)

	h1, err := cache.Store([]byte("one"))
	require.NoError(t, err)
	h2, err := cache.Store([]byte("two"))
	require.NoError(t, err)

	hashes, err = cache.ListSources()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{h1, h2}, hashes)
}

func TestPrune(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	cache := New(root)
	defer cache.Close(ctx)

	// drop something into the compiled dir to be pruned
	artifact := filepath.Join(root, "compiled", "deadbeef")
	require.NoError(t, os.WriteFile(artifact, []byte("artifact"), 0o644))

	hash, err := cache.Store([]byte("keep me"))
	require.NoError(t, err)

	require.NoError(t, cache.Prune())

	_, err = os.Stat(artifact)
	assert.True(t, os.IsNotExist(err))

	// sources survive pruning
	_, err = cache.Resolve(ctx, hash)
	assert.NoError(t, err)
}

func TestNewWithUnwritableRootFallsBack(t *testing.T) {
	t.Parallel()

	// a file where the root should be: MkdirAll fails, the cache still works
	root := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(root, []byte("file"), 0o644))

	cache := New(root)
	defer cache.Close(context.Background())
	assert.NotNil(t, cache.CompilationCache())
}
