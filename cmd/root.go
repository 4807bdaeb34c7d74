package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "forecast-cli",
	Short: "Deal scoring and revenue forecasting over CRM pipeline data",
	Long: "Imports opportunity exports, scores every deal against tunable settings, and rolls the " +
		"pipeline up into three-point revenue forecasts, rep leaderboards, and what-if scenarios.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
