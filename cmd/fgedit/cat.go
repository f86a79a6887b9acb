package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat <file>",
		Short: "Present a file without editing it",
		Long:  `Decode a file through its converter and print the textual presentation.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			text, err := s.Cat(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		},
	}

	registerPinFlags(cmd)
	return cmd
}

func init() {
	rootCmd.AddCommand(newCatCmd())
}
