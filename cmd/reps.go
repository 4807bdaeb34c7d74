package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/forecast-cli/internal/forecast"
)

var (
	repsPeriod  string
	repsStart   string
	repsEnd     string
	repsOverdue bool
)

var repsCmd = &cobra.Command{
	Use:   "reps",
	Short: "Rank reps by forecasted revenue",
	Long: `Groups the period's deals by owner and prints a leaderboard with win
rates, pipeline value, forecasted revenue, and a 0-100 performance score.

Examples:
  forecast-cli reps
  forecast-cli reps --period this_year
  forecast-cli reps --start 2026-01-01 --end 2026-06-30`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		rng, err := resolveRange(repsPeriod, repsStart, repsEnd)
		if err != nil {
			return err
		}

		req := forecast.Request{Range: rng, ExcludeOverdue: cfg.Forecast.ExcludeOverdue}
		if cmd.Flags().Changed("exclude-overdue") {
			req.ExcludeOverdue = repsOverdue
		}

		resp, err := env.Service.RepPerformance(ctx, req)
		if err != nil {
			return err
		}

		renderReps(cmd.OutOrStdout(), resp)
		return nil
	},
}

func init() {
	repsCmd.Flags().StringVar(&repsPeriod, "period", "", "forecast period (this_month, next_month, this_quarter, next_quarter, this_year, next_year)")
	repsCmd.Flags().StringVar(&repsStart, "start", "", "custom range start (YYYY-MM-DD, inclusive)")
	repsCmd.Flags().StringVar(&repsEnd, "end", "", "custom range end (YYYY-MM-DD, inclusive)")
	repsCmd.Flags().BoolVar(&repsOverdue, "exclude-overdue", false, "drop open deals already past their close date")
	rootCmd.AddCommand(repsCmd)
}

func renderReps(out io.Writer, resp *forecast.RepsResponse) {
	_, _ = fmt.Fprintf(out, "Rep leaderboard %s\n\n", resp.Period.Label())

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tOWNER\tDEALS\tOPEN\tPIPELINE\tWON\tWIN %\tFORECAST\tSCORE")
	_, _ = fmt.Fprintln(w, "----\t-----\t-----\t----\t--------\t---\t-----\t--------\t-----")
	for i, rep := range resp.Reps {
		name := rep.OwnerName
		if name == "" {
			name = rep.OwnerID
		}
		_, _ = usd.Fprintf(w, "%d\t%s\t%d\t%d\t$%.0f\t$%.0f\t%.0f%%\t$%.0f\t%d\n",
			i+1, truncate(name, 28), rep.TotalDeals, rep.OpenDeals,
			rep.PipelineValue, rep.WonValue, rep.WinRate,
			rep.ForecastedRevenue, rep.PerformanceScore)
	}
	_ = w.Flush()

	t := resp.Summary
	_, _ = usd.Fprintf(out, "\nTeam: %d reps, %d deals, $%.0f pipeline, $%.0f won, $%.0f forecasted, %.0f%% avg win rate\n",
		t.TotalReps, t.TotalDeals, t.PipelineValue, t.WonValue, t.ForecastedRevenue, t.AvgWinRate)
}
