package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fkohlgrueber/format-galaxy/internal/version"
)

// versionCmd implements the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of fgedit",
	Long:  `Print the version, Git commit hash, build date, and platform of fgedit.`,
	Run: func(_ *cobra.Command, _ []string) {
		info := version.Get()
		fmt.Printf("fgedit version %s\n", info.Full())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
