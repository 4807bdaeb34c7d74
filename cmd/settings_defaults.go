package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/forecast-cli/internal/scoring"
)

var settingsDefaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Print the recommended default settings",
	Long: `Prints the built-in scoring defaults as a JSON document. Pipe it to a
file, edit, and feed it back with settings set.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printJSON(cmd.OutOrStdout(), scoring.Defaults())
	},
}

func init() {
	settingsCmd.AddCommand(settingsDefaultsCmd)
}
