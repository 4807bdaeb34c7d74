package main

import (
	"github.com/spf13/cobra"
)

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active scoring settings",
	Long: `Prints the stored settings document with its version tag. When nothing
has been stored yet the defaults come back with an empty version.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		vs, err := env.Settings.Get(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), vs)
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
}
