package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/forecast-cli/internal/forecast"
)

var (
	scenarioFilePath string
	scenarioPeriod   string
	scenarioStart    string
	scenarioEnd      string
	scenarioOverdue  bool
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Simulate a what-if scenario against the pipeline",
	Long: `Applies a YAML file of deal adjustments on top of the live pipeline and
compares the adjusted forecast against the baseline. The stored deals are
never modified.

Adjustment file shape:
  adjustments:
    - opportunity_id: opp-123
      new_stage: Negotiation
      new_amount: 95000
    - opportunity_id: opp-456
      new_close_date: 2026-09-15

Examples:
  forecast-cli scenario --file bold-q3.yaml
  forecast-cli scenario --file bold-q3.yaml --period next_quarter`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := os.Open(scenarioFilePath)
		if err != nil {
			return eris.Wrap(err, "open scenario file")
		}
		defer f.Close()

		adjustments, err := forecast.LoadAdjustments(f)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		rng, err := resolveRange(scenarioPeriod, scenarioStart, scenarioEnd)
		if err != nil {
			return err
		}

		req := forecast.Request{Range: rng, ExcludeOverdue: cfg.Forecast.ExcludeOverdue}
		if cmd.Flags().Changed("exclude-overdue") {
			req.ExcludeOverdue = scenarioOverdue
		}

		res, err := env.Service.Simulate(ctx, req, adjustments)
		if err != nil {
			return err
		}

		renderScenario(cmd.OutOrStdout(), rng.Label(), len(adjustments), res)
		return nil
	},
}

func init() {
	scenarioCmd.Flags().StringVar(&scenarioFilePath, "file", "", "scenario YAML file with deal adjustments")
	scenarioCmd.Flags().StringVar(&scenarioPeriod, "period", "", "forecast period (this_month, next_month, this_quarter, next_quarter, this_year, next_year)")
	scenarioCmd.Flags().StringVar(&scenarioStart, "start", "", "custom range start (YYYY-MM-DD, inclusive)")
	scenarioCmd.Flags().StringVar(&scenarioEnd, "end", "", "custom range end (YYYY-MM-DD, inclusive)")
	scenarioCmd.Flags().BoolVar(&scenarioOverdue, "exclude-overdue", false, "drop open deals already past their close date")
	_ = scenarioCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(scenarioCmd)
}

func renderScenario(out io.Writer, period string, adjustments int, res *forecast.SimulationResult) {
	_, _ = fmt.Fprintf(out, "Scenario %s (%d adjustments)\n\n", period, adjustments)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "METRIC\tBASELINE\tSCENARIO\tDELTA")
	_, _ = fmt.Fprintln(w, "------\t--------\t--------\t-----")

	b, s, d := res.Baseline, res.Scenario, res.Delta
	scenarioLine(w, "Pipeline", b.TotalPipeline, s.TotalPipeline, d.TotalPipeline)
	scenarioLine(w, "Weighted", b.WeightedPipeline, s.WeightedPipeline, d.WeightedPipeline)
	scenarioLine(w, "Pessimistic", b.Forecast.Pessimistic, s.Forecast.Pessimistic, d.Pessimistic)
	scenarioLine(w, "Likely", b.Forecast.Likely, s.Forecast.Likely, d.Likely)
	scenarioLine(w, "Optimistic", b.Forecast.Optimistic, s.Forecast.Optimistic, d.Optimistic)
	_ = w.Flush()
}

func scenarioLine(w io.Writer, metric string, baseline, scenario, delta float64) {
	_, _ = usd.Fprintf(w, "%s\t$%.0f\t$%.0f\t%s\n", metric, baseline, scenario, signedMoney(delta))
}

// signedMoney keeps the sign visible for deltas, including an explicit +
// on gains so a glance tells direction.
func signedMoney(v float64) string {
	if v < 0 {
		return usd.Sprintf("-$%.0f", -v)
	}
	return usd.Sprintf("+$%.0f", v)
}
