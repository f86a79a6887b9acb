// Package config resolves the host's runtime settings from environment
// variables, an optional config file and defaults.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// System holds the resolved settings.
type System struct {
	// CacheRoot is where source blobs and pre-compiled modules live.
	CacheRoot string
	// CatalogPath points at the catalog document.
	CatalogPath string
	// Editor is the command spawned for the edit step.
	Editor string
}

// Defaults applied before env and file values.
const (
	DefaultCacheRoot   = "./cache"
	DefaultCatalogPath = "catalog.json"
	DefaultEditor      = "vim"
)

// Load resolves settings from the given viper instance, which the CLI
// has already pointed at its config file (if any).
func Load(v *viper.Viper) (*System, error) {
	v.SetDefault("cache_root", DefaultCacheRoot)
	v.SetDefault("catalog_path", DefaultCatalogPath)

	if err := v.BindEnv("cache_root", "FMTGAL_CACHE"); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}
	if err := v.BindEnv("catalog_path", "FMTGAL_CATALOG"); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}
	if err := v.BindEnv("editor", "FMTGAL_EDITOR"); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	sys := &System{
		CacheRoot:   v.GetString("cache_root"),
		CatalogPath: v.GetString("catalog_path"),
		Editor:      v.GetString("editor"),
	}
	if sys.Editor == "" {
		sys.Editor = os.Getenv("EDITOR")
	}
	if sys.Editor == "" {
		sys.Editor = DefaultEditor
	}
	return sys, nil
}
