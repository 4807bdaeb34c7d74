package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sells-group/forecast-cli/internal/config"
	"github.com/sells-group/forecast-cli/internal/forecast"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/scoring"
)

// testConfig returns a config pointing at a throwaway sqlite store so
// command paths can run end to end. Tests assign it to the global cfg.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Store.Path = filepath.Join(t.TempDir(), "forecast.db")
	c.Forecast.DefaultPeriod = "this_quarter"
	return c
}

func scoredDeal(id, name, owner, stage string, amount float64, score int, conf scoring.Confidence) scoring.ScoredOpportunity {
	closeDate := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	return scoring.ScoredOpportunity{
		Opportunity: &model.Opportunity{
			ID:        id,
			Name:      name,
			OwnerID:   owner,
			Stage:     model.Stage(stage),
			Amount:    amount,
			CloseDate: &closeDate,
		},
		Score:      score,
		Confidence: conf,
	}
}

func sampleResponse() *forecast.Response {
	stale := scoredDeal("opp-9", "Dormant Deal", "rep-2", "Qualified", 30000, 25, scoring.ConfidenceLow)
	stale.StaleFlags = []string{"no_recent_activity", "stuck_in_stage"}

	return &forecast.Response{
		Period: model.DateRange{
			Start: time.Date(2026, 7, 1, 0, 0, 0, 0, time.Local),
			End:   time.Date(2026, 10, 1, 0, 0, 0, 0, time.Local),
		},
		Summary: forecast.Summary{
			TotalDeals:       3,
			TotalPipeline:    480000,
			WeightedPipeline: 212000,
			ClosedWon:        95000,
			Forecast: forecast.ForecastRange{
				Pessimistic: 160000,
				Likely:      212000,
				Optimistic:  290000,
			},
			ConfidenceCounts: forecast.ConfidenceCounts{High: 1, Medium: 1, Low: 1},
			ByStage: map[string]forecast.StageBreakdown{
				"Negotiation": {Count: 1, Value: 250000, WeightedValue: 150000},
				"Lead":        {Count: 1, Value: 50000, WeightedValue: 12000},
				"Proposal":    {Count: 1, Value: 180000, WeightedValue: 50000},
			},
		},
		Deals: []scoring.ScoredOpportunity{
			scoredDeal("opp-1", "Acme Renewal", "rep-1", "Negotiation", 250000, 82, scoring.ConfidenceHigh),
			scoredDeal("opp-2", "Globex Expansion", "rep-2", "Proposal", 180000, 55, scoring.ConfidenceMedium),
			scoredDeal("opp-3", "Initech Pilot", "rep-1", "Lead", 50000, 20, scoring.ConfidenceLow),
		},
		StaleDeals: []scoring.ScoredOpportunity{stale},
	}
}
