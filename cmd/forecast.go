package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/forecast-cli/internal/forecast"
	"github.com/sells-group/forecast-cli/internal/insight"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/scoring"
	"github.com/sells-group/forecast-cli/pkg/anthropic"
	"github.com/sells-group/forecast-cli/pkg/notion"
)

// usd renders dollar amounts with thousands separators. Shared by every
// command that prints money.
var usd = message.NewPrinter(language.English)

var (
	forecastPeriod    string
	forecastStart     string
	forecastEnd       string
	forecastOwner     string
	forecastOverdue   bool
	forecastFormat    string
	forecastOutput    string
	forecastNotion    bool
	forecastNarrative bool
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Score the pipeline and compute a revenue forecast",
	Long: `Scores every deal closing in the selected period and rolls the pipeline
up into a three-point revenue forecast with per-stage breakdowns.

Examples:
  forecast-cli forecast
  forecast-cli forecast --period next_quarter --owner rep-007
  forecast-cli forecast --start 2026-07-01 --end 2026-09-30
  forecast-cli forecast --format xlsx --output forecast.xlsx
  forecast-cli forecast --narrative --notion`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		rng, err := resolveRange(forecastPeriod, forecastStart, forecastEnd)
		if err != nil {
			return err
		}

		req := forecast.Request{
			Range:          rng,
			OwnerID:        forecastOwner,
			ExcludeOverdue: cfg.Forecast.ExcludeOverdue,
		}
		if cmd.Flags().Changed("exclude-overdue") {
			req.ExcludeOverdue = forecastOverdue
		}

		resp, err := env.Service.Forecast(ctx, req)
		if err != nil {
			return err
		}

		// The narrative is additive output. If generation fails the
		// forecast still prints, minus the commentary.
		var narrative string
		if forecastNarrative {
			narrative, err = generateNarrative(ctx, resp)
			if err != nil {
				zap.L().Warn("narrative generation failed", zap.Error(err))
				narrative = ""
			}
		}

		switch forecastFormat {
		case "table":
			renderForecast(cmd.OutOrStdout(), resp, narrative)
		case "csv":
			if err := exportForecastCSV(resp, forecastOutput); err != nil {
				return err
			}
		case "xlsx":
			if forecastOutput == "" {
				return eris.New("--output is required with --format xlsx")
			}
			if err := exportForecastXLSX(resp, forecastOutput); err != nil {
				return err
			}
		default:
			return eris.Errorf("unknown format %q (expected table, csv, or xlsx)", forecastFormat)
		}

		if forecastNotion {
			if err := publishForecastPage(ctx, env, req, resp, narrative); err != nil {
				return err
			}
		}

		return nil
	},
}

func init() {
	forecastCmd.Flags().StringVar(&forecastPeriod, "period", "", "forecast period (this_month, next_month, this_quarter, next_quarter, this_year, next_year)")
	forecastCmd.Flags().StringVar(&forecastStart, "start", "", "custom range start (YYYY-MM-DD, inclusive)")
	forecastCmd.Flags().StringVar(&forecastEnd, "end", "", "custom range end (YYYY-MM-DD, inclusive)")
	forecastCmd.Flags().StringVar(&forecastOwner, "owner", "", "limit the forecast to one owner id")
	forecastCmd.Flags().BoolVar(&forecastOverdue, "exclude-overdue", false, "drop open deals already past their close date")
	forecastCmd.Flags().StringVar(&forecastFormat, "format", "table", "output format (table, csv, xlsx)")
	forecastCmd.Flags().StringVar(&forecastOutput, "output", "", "write csv or xlsx output to this file instead of stdout")
	forecastCmd.Flags().BoolVar(&forecastNotion, "notion", false, "publish the forecast page to Notion")
	forecastCmd.Flags().BoolVar(&forecastNarrative, "narrative", false, "append an AI commentary on the pipeline")
	rootCmd.AddCommand(forecastCmd)
}

func generateNarrative(ctx context.Context, resp *forecast.Response) (string, error) {
	if cfg.Anthropic.Key == "" {
		return "", eris.New("anthropic API key is not configured (FORECAST_ANTHROPIC_KEY)")
	}
	gen := insight.NewGenerator(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
	return gen.Narrative(ctx, resp)
}

// publishForecastPage pushes the forecast and rep leaderboard to Notion.
// Publishing was requested explicitly, so missing config is an error here
// rather than a warning.
func publishForecastPage(ctx context.Context, env *forecastEnv, req forecast.Request, resp *forecast.Response, narrative string) error {
	if cfg.Notion.Token == "" {
		return eris.New("notion token is required to publish (FORECAST_NOTION_TOKEN)")
	}
	if cfg.Notion.ForecastDB == "" {
		return eris.New("notion forecast database id is required to publish (FORECAST_NOTION_FORECAST_DB)")
	}

	reps, err := env.Service.RepPerformance(ctx, req)
	if err != nil {
		return err
	}

	client := notion.NewClient(cfg.Notion.Token)
	pageID, err := notion.PublishForecast(ctx, client, cfg.Notion.ForecastDB, buildForecastPage(resp, reps.Reps, narrative))
	if err != nil {
		return err
	}

	zap.L().Info("forecast published",
		zap.String("page_id", pageID),
		zap.String("period", resp.Period.Label()))
	return nil
}

func buildForecastPage(resp *forecast.Response, reps []forecast.RepPerformance, narrative string) notion.ForecastPage {
	s := resp.Summary
	page := notion.ForecastPage{
		Title:            "Revenue Forecast " + resp.Period.Label(),
		PeriodLabel:      resp.Period.Label(),
		GeneratedAt:      time.Now(),
		TotalDeals:       s.TotalDeals,
		StaleDeals:       len(resp.StaleDeals),
		TotalPipeline:    s.TotalPipeline,
		WeightedPipeline: s.WeightedPipeline,
		ClosedWon:        s.ClosedWon,
		Pessimistic:      s.Forecast.Pessimistic,
		Likely:           s.Forecast.Likely,
		Optimistic:       s.Forecast.Optimistic,
		HighConfidence:   s.ConfidenceCounts.High,
		MediumConfidence: s.ConfidenceCounts.Medium,
		LowConfidence:    s.ConfidenceCounts.Low,
		Narrative:        narrative,
	}
	for _, rep := range reps {
		name := rep.OwnerName
		if name == "" {
			name = rep.OwnerID
		}
		page.Reps = append(page.Reps, notion.RepRow{
			Name:              name,
			OpenDeals:         rep.OpenDeals,
			PipelineValue:     rep.PipelineValue,
			WonValue:          rep.WonValue,
			WinRate:           rep.WinRate,
			ForecastedRevenue: rep.ForecastedRevenue,
			Score:             rep.PerformanceScore,
		})
	}
	return page
}

func renderForecast(out io.Writer, resp *forecast.Response, narrative string) {
	s := resp.Summary

	_, _ = fmt.Fprintf(out, "Forecast %s\n", resp.Period.Label())
	_, _ = usd.Fprintf(out, "Deals: %d   Pipeline: $%.0f   Weighted: $%.0f   Closed won: $%.0f\n",
		s.TotalDeals, s.TotalPipeline, s.WeightedPipeline, s.ClosedWon)
	_, _ = usd.Fprintf(out, "Forecast: $%.0f pessimistic / $%.0f likely / $%.0f optimistic\n",
		s.Forecast.Pessimistic, s.Forecast.Likely, s.Forecast.Optimistic)
	_, _ = fmt.Fprintf(out, "Confidence: %d high / %d medium / %d low\n",
		s.ConfidenceCounts.High, s.ConfidenceCounts.Medium, s.ConfidenceCounts.Low)

	if len(s.ByStage) > 0 {
		_, _ = fmt.Fprintln(out)
		renderStages(out, s.ByStage)
	}
	if len(resp.Deals) > 0 {
		_, _ = fmt.Fprintln(out)
		renderDeals(out, resp.Deals)
	}
	if len(resp.StaleDeals) > 0 {
		_, _ = fmt.Fprintf(out, "\nStale deals (%d):\n", len(resp.StaleDeals))
		renderStale(out, resp.StaleDeals)
	}
	if narrative != "" {
		_, _ = fmt.Fprintf(out, "\n%s\n", narrative)
	}
}

func renderStages(out io.Writer, byStage map[string]forecast.StageBreakdown) {
	stages := make([]string, 0, len(byStage))
	for name := range byStage {
		stages = append(stages, name)
	}
	// Pipeline order, unknown labels last, ties alphabetical.
	sort.Slice(stages, func(i, j int) bool {
		ri, rj := stageSort(stages[i]), stageSort(stages[j])
		if ri != rj {
			return ri < rj
		}
		return stages[i] < stages[j]
	})

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tDEALS\tVALUE\tWEIGHTED")
	_, _ = fmt.Fprintln(w, "-----\t-----\t-----\t--------")
	for _, name := range stages {
		b := byStage[name]
		_, _ = usd.Fprintf(w, "%s\t%d\t$%.0f\t$%.0f\n", name, b.Count, b.Value, b.WeightedValue)
	}
	_ = w.Flush()
}

func stageSort(name string) int {
	if r := model.Stage(name).Rank(); r >= 0 {
		return r
	}
	return 1 << 10
}

func renderDeals(out io.Writer, deals []scoring.ScoredOpportunity) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSTAGE\tAMOUNT\tSCORE\tCONFIDENCE\tCLOSE")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t------\t-----\t----------\t-----")
	for _, d := range deals {
		o := d.Opportunity
		_, _ = usd.Fprintf(w, "%s\t%s\t%s\t$%.0f\t%d\t%s\t%s\n",
			o.ID, truncate(o.Name, 32), o.Stage, o.Amount, d.Score, d.Confidence, closeLabel(o))
	}
	_ = w.Flush()
}

func renderStale(out io.Writer, deals []scoring.ScoredOpportunity) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tFLAGS")
	_, _ = fmt.Fprintln(w, "--\t----\t-----")
	for _, d := range deals {
		o := d.Opportunity
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", o.ID, truncate(o.Name, 32), strings.Join(d.StaleFlags, ", "))
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func closeLabel(o *model.Opportunity) string {
	if cd := o.EffectiveCloseDate(); cd != nil {
		return cd.Format(time.DateOnly)
	}
	return ""
}

// forecastColumns is the CSV export order. Scripts downstream key on these
// names, so new columns go at the end.
var forecastColumns = []string{
	"id", "name", "owner_id", "stage", "amount",
	"score", "confidence", "close_date", "stale_flags",
}

func exportForecastCSV(resp *forecast.Response, path string) error {
	var out io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrap(err, "forecast export: create file")
		}
		defer f.Close()
		out = f
	}
	return writeForecastCSV(out, resp)
}

func writeForecastCSV(out io.Writer, resp *forecast.Response) error {
	w := csv.NewWriter(out)
	defer w.Flush()

	if err := w.Write(forecastColumns); err != nil {
		return eris.Wrap(err, "forecast export: write header")
	}
	for _, d := range resp.Deals {
		if err := w.Write(forecastRow(d)); err != nil {
			return eris.Wrap(err, "forecast export: write row")
		}
	}
	return nil
}

func forecastRow(d scoring.ScoredOpportunity) []string {
	o := d.Opportunity
	return []string{
		o.ID,
		o.Name,
		o.OwnerID,
		string(o.Stage),
		strconv.FormatFloat(o.Amount, 'f', 2, 64),
		strconv.Itoa(d.Score),
		string(d.Confidence),
		closeLabel(o),
		strings.Join(d.StaleFlags, ";"),
	}
}

// exportForecastXLSX writes a two-sheet workbook: the summary rollup and
// the scored deal list.
func exportForecastXLSX(resp *forecast.Response, path string) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "forecast export: add summary sheet")
	}
	s := resp.Summary
	addStat := func(label string, value float64) {
		row := summary.AddRow()
		row.AddCell().Value = label
		row.AddCell().SetFloat(value)
	}
	addStat("Total deals", float64(s.TotalDeals))
	addStat("Total pipeline", s.TotalPipeline)
	addStat("Weighted pipeline", s.WeightedPipeline)
	addStat("Closed won", s.ClosedWon)
	addStat("Pessimistic", s.Forecast.Pessimistic)
	addStat("Likely", s.Forecast.Likely)
	addStat("Optimistic", s.Forecast.Optimistic)
	addStat("High confidence", float64(s.ConfidenceCounts.High))
	addStat("Medium confidence", float64(s.ConfidenceCounts.Medium))
	addStat("Low confidence", float64(s.ConfidenceCounts.Low))

	deals, err := f.AddSheet("Deals")
	if err != nil {
		return eris.Wrap(err, "forecast export: add deals sheet")
	}
	header := deals.AddRow()
	for _, col := range forecastColumns {
		header.AddCell().Value = col
	}
	for _, d := range resp.Deals {
		o := d.Opportunity
		row := deals.AddRow()
		row.AddCell().Value = o.ID
		row.AddCell().Value = o.Name
		row.AddCell().Value = o.OwnerID
		row.AddCell().Value = string(o.Stage)
		row.AddCell().SetFloat(o.Amount)
		row.AddCell().SetInt(d.Score)
		row.AddCell().Value = string(d.Confidence)
		row.AddCell().Value = closeLabel(o)
		row.AddCell().Value = strings.Join(d.StaleFlags, ";")
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "forecast export: save workbook")
	}
	return nil
}
