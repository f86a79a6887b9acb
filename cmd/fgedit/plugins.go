package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fkohlgrueber/format-galaxy/internal/config"
	"github.com/fkohlgrueber/format-galaxy/internal/modcache"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Manage cached converter modules",
}

// openCache resolves the configured cache root without touching the
// catalog; plugin maintenance works with an unreadable catalog too.
func openCache() (*modcache.Cache, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return modcache.New(cfg.CacheRoot), nil
}

func newPluginsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List locally cached converter modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cache, err := openCache()
			if err != nil {
				return err
			}
			defer cache.Close(cmd.Context())

			hashes, err := cache.ListSources()
			if err != nil {
				return err
			}
			if len(hashes) == 0 {
				fmt.Println("No converter modules cached.")
				return nil
			}
			for _, hash := range hashes {
				fmt.Println(hash)
			}
			return nil
		},
	}
}

func newPluginsPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Drop pre-compiled module artifacts",
		Long: `Remove all pre-compiled artifacts from the cache. Source modules are
kept; the engine recompiles them on demand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cache, err := openCache()
			if err != nil {
				return err
			}
			defer cache.Close(cmd.Context())

			if err := cache.Prune(); err != nil {
				return err
			}
			fmt.Println("Compiled module cache pruned.")
			return nil
		},
	}
}

func init() {
	pluginsCmd.AddCommand(newPluginsListCmd())
	pluginsCmd.AddCommand(newPluginsPruneCmd())
	rootCmd.AddCommand(pluginsCmd)
}
