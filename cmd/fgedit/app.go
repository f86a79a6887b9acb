package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fkohlgrueber/format-galaxy/internal/catalog"
	"github.com/fkohlgrueber/format-galaxy/internal/config"
	"github.com/fkohlgrueber/format-galaxy/internal/modcache"
	"github.com/fkohlgrueber/format-galaxy/internal/selection"
	"github.com/fkohlgrueber/format-galaxy/internal/session"
	"github.com/fkohlgrueber/format-galaxy/internal/wasm"
)

// pinning flags for non-interactive callers; all three must be given
// together.
var (
	pinFormat    uint64
	pinConverter uint64
	pinVersion   int
)

func registerPinFlags(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&pinFormat, "format", 0, "pin the format id (requires --converter and --version-index)")
	cmd.Flags().Uint64Var(&pinConverter, "converter", 0, "pin the converter id")
	cmd.Flags().IntVar(&pinVersion, "version-index", 0, "pin the version by storage index")
}

// appEnv bundles everything a session needs, built once per command.
type appEnv struct {
	cfg     *config.System
	catalog *catalog.Catalog
	cache   *modcache.Cache
	runtime *wasm.Runtime
}

func newAppEnv(ctx context.Context) (*appEnv, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	cat, err := catalog.LoadDocument(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	cache := modcache.New(cfg.CacheRoot)
	runtime := wasm.NewRuntime(ctx, cache.CompilationCache())

	return &appEnv{cfg: cfg, catalog: cat, cache: cache, runtime: runtime}, nil
}

func (e *appEnv) Close(ctx context.Context) {
	_ = e.runtime.Close(ctx)
	_ = e.cache.Close(ctx)
}

// newSession assembles a session with the interactive prompter and the
// configured external editor, honoring pinning flags when given.
func (e *appEnv) newSession(cmd *cobra.Command) (*session.Session, error) {
	s := session.New(e.catalog, &huhPrompter{}, &execEditor{command: e.cfg.Editor}, e.cache, e.runtime)

	pinned := cmd.Flags().Changed("format") || cmd.Flags().Changed("converter") || cmd.Flags().Changed("version-index")
	if pinned {
		if !cmd.Flags().Changed("format") || !cmd.Flags().Changed("converter") || !cmd.Flags().Changed("version-index") {
			return nil, fmt.Errorf("--format, --converter and --version-index must be pinned together")
		}
		s.Pinned = &selection.Selection{
			Format:       catalog.FormatID(pinFormat),
			Converter:    catalog.ConverterID(pinConverter),
			VersionIndex: pinVersion,
		}
	}
	return s, nil
}

func runEdit(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	env, err := newAppEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close(ctx)

	s, err := env.newSession(cmd)
	if err != nil {
		return err
	}
	return s.Edit(ctx, path)
}
