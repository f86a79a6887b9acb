package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fkohlgrueber/format-galaxy/internal/catalog"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "Inspect the format catalog",
}

func newFormatsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List formats, converters and versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := newAppEnv(ctx)
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			printCatalog(env.catalog)
			return nil
		},
	}
}

func printCatalog(cat *catalog.Catalog) {
	type row struct {
		id    catalog.FormatID
		entry catalog.FormatEntry
	}
	rows := make([]row, 0, len(cat.Formats))
	for fid, entry := range cat.Formats {
		rows = append(rows, row{id: fid, entry: entry})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].entry.Name < rows[j].entry.Name })

	for _, r := range rows {
		ext := "none"
		if len(r.entry.Extensions) > 0 {
			ext = strings.Join(r.entry.Extensions, ", ")
		}
		fmt.Printf("%s (id %d, extensions: %s)\n", r.entry.Name, uint64(r.id), ext)

		for cid, conv := range r.entry.Converters {
			labels := make([]string, 0, len(conv.Versions))
			// newest first, matching the selection menus
			for i := len(conv.Versions) - 1; i >= 0; i-- {
				labels = append(labels, conv.Versions[i].Label)
			}
			fmt.Printf("  %s (id %d): %s\n", conv.Name, uint64(cid), strings.Join(labels, ", "))
		}
	}
}

func init() {
	formatsCmd.AddCommand(newFormatsListCmd())
	rootCmd.AddCommand(formatsCmd)
}
