package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/snapshot"
)

var (
	snapshotWatch    bool
	snapshotPeriod   string
	snapshotSchedule string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture forecast summaries for trend history",
	Long: `Computes the configured period's forecast and stores its summary with a
timestamp. Repeated captures build the trend history served by the API's
snapshot listing.

With --watch the command stays up and captures on a cron schedule
(six fields, seconds first) until interrupted.

Examples:
  forecast-cli snapshot
  forecast-cli snapshot --period next_quarter
  forecast-cli snapshot --watch --schedule "0 0 18 * * *"`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Flag overrides land on the config before validation so the
		// effective values are the ones checked.
		if snapshotPeriod != "" {
			cfg.Snapshot.Period = snapshotPeriod
		}
		if snapshotSchedule != "" {
			cfg.Snapshot.Schedule = snapshotSchedule
		}

		mode := "store"
		if snapshotWatch {
			mode = "snapshot"
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx, mode)
		if err != nil {
			return err
		}
		defer env.Close()

		period, err := model.ParsePeriod(cfg.Snapshot.Period)
		if err != nil {
			return err
		}
		rec := snapshot.NewRecorder(env.Service, env.Store, period)

		if snapshotWatch {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return rec.Watch(ctx, cfg.Snapshot.Schedule)
		}

		snap, err := rec.RecordOnce(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Captured snapshot %s (%s)\n", snap.ID, snap.Period)
		return nil
	},
}

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotWatch, "watch", false, "keep running and capture on the cron schedule")
	snapshotCmd.Flags().StringVar(&snapshotPeriod, "period", "", "period to snapshot (overrides snapshot.period)")
	snapshotCmd.Flags().StringVar(&snapshotSchedule, "schedule", "", "cron schedule for --watch (overrides snapshot.schedule)")
	rootCmd.AddCommand(snapshotCmd)
}
