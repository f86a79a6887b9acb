// Package modcache is the content-addressed store for converter modules:
// source wasm blobs keyed by the blake3 hash of their bytes, and the
// engine's pre-compiled artifacts next to them. The cache only buys
// latency; every read path falls back to the source bytes.
package modcache

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tetratelabs/wazero"
	"golang.org/x/sync/singleflight"
	"lukechampine.com/blake3"
)

// Hash returns the hex-encoded blake3 hash of wasmBytes, the key a
// module is stored and cached under.
func Hash(wasmBytes []byte) string {
	sum := blake3.Sum256(wasmBytes)
	return hex.EncodeToString(sum[:])
}

// IntegrityError indicates a stored blob no longer matches its key.
type IntegrityError struct {
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed: expected %s, got %s", e.Expected, e.Actual)
}

// Cache is rooted at a directory with two children:
//
//	plugins/<hex_hash>.wasm   source module blobs
//	compiled/                 engine-owned pre-compiled artifacts
//
// The compiled side is handed to wazero as its compilation cache; the
// engine content-addresses and version-checks artifacts itself, so
// deserialization failures after an engine upgrade silently recompile.
type Cache struct {
	root        string
	compilation wazero.CompilationCache
	group       singleflight.Group
}

// New opens (or creates) a cache rooted at dir. A root that cannot be
// prepared degrades to an in-memory compilation cache with a warning;
// the cache is never a source of correctness.
func New(dir string) *Cache {
	c := &Cache{root: dir}

	compiledDir := filepath.Join(dir, "compiled")
	if err := os.MkdirAll(compiledDir, 0o755); err != nil {
		slog.Warn("cannot create compiled module cache, falling back to in-memory",
			"dir", compiledDir, "error", err)
		c.compilation = wazero.NewCompilationCache()
		return c
	}

	compilation, err := wazero.NewCompilationCacheWithDir(compiledDir)
	if err != nil {
		slog.Warn("cannot open compiled module cache, falling back to in-memory",
			"dir", compiledDir, "error", err)
		compilation = wazero.NewCompilationCache()
	}
	c.compilation = compilation
	return c
}

// CompilationCache exposes the engine-side cache for wiring into the
// runtime configuration.
func (c *Cache) CompilationCache() wazero.CompilationCache {
	return c.compilation
}

// SourcePath returns where the source blob for hash lives.
func (c *Cache) SourcePath(hash string) string {
	return filepath.Join(c.root, "plugins", hash+".wasm")
}

// Resolve reads the source blob for hash and verifies its digest.
// Concurrent resolutions of the same hash are coalesced.
func (c *Cache) Resolve(_ context.Context, hash string) ([]byte, error) {
	v, err, _ := c.group.Do(hash, func() (interface{}, error) {
		data, err := os.ReadFile(c.SourcePath(hash))
		if err != nil {
			return nil, fmt.Errorf("failed to read plugin %s: %w", hash, err)
		}
		if actual := Hash(data); actual != hash {
			return nil, &IntegrityError{Expected: hash, Actual: actual}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Store writes a source blob under its own hash and returns that hash.
// The write goes through a temp file and rename, so concurrent writers
// of the same module are harmless.
func (c *Cache) Store(wasmBytes []byte) (string, error) {
	hash := Hash(wasmBytes)
	dir := filepath.Join(c.root, "plugins")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create plugin dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-plugin")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(wasmBytes); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write plugin: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write plugin: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.SourcePath(hash)); err != nil {
		return "", fmt.Errorf("failed to store plugin: %w", err)
	}
	return hash, nil
}

// Prune removes all pre-compiled artifacts. Source blobs are kept.
func (c *Cache) Prune() error {
	compiledDir := filepath.Join(c.root, "compiled")
	entries, err := os.ReadDir(compiledDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read compiled cache: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(compiledDir, entry.Name())); err != nil {
			return fmt.Errorf("failed to prune compiled cache: %w", err)
		}
	}
	return nil
}

// ListSources returns the hashes of all stored source blobs.
func (c *Cache) ListSources() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.root, "plugins"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read plugin dir: %w", err)
	}
	var hashes []string
	for _, entry := range entries {
		name := entry.Name()
		if filepath.Ext(name) != ".wasm" {
			continue
		}
		hashes = append(hashes, name[:len(name)-len(".wasm")])
	}
	return hashes, nil
}

// Close releases the engine-side cache resources.
func (c *Cache) Close(ctx context.Context) error {
	return c.compilation.Close(ctx)
}
