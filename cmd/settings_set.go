package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/scoring"
)

var settingsSetFile string

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace the scoring settings from a JSON file",
	Long: `Reads a JSON settings document (the same shape settings show prints),
validates it, and stores it as the new active version. Unknown fields and
out-of-range values are rejected before anything is written.

Example:
  forecast-cli settings defaults > settings.json
  forecast-cli settings set --file settings.json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(settingsSetFile)
		if err != nil {
			return eris.Wrap(err, "read settings file")
		}
		candidate, err := scoring.ParseSettings(data)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		vs, err := env.Settings.Put(ctx, candidate)
		if err != nil {
			return err
		}

		zap.L().Info("settings updated",
			zap.String("version", vs.Version),
			zap.Time("updated_at", vs.UpdatedAt))
		return printJSON(cmd.OutOrStdout(), vs)
	},
}

func init() {
	settingsSetCmd.Flags().StringVar(&settingsSetFile, "file", "", "JSON settings document to store")
	_ = settingsSetCmd.MarkFlagRequired("file")
	settingsCmd.AddCommand(settingsSetCmd)
}
