package forecast

import (
	"time"

	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/scoring"
)

// scenarioShares is one row of the fixed confidence-to-scenario table: the
// fraction of an open deal's amount counted under each forecast scenario.
type scenarioShares struct {
	pessimistic float64
	likely      float64
	optimistic  float64
}

// bucketShares maps confidence tiers to their forecast shares. The table
// is fixed; tuning happens upstream through scoring settings, not here.
var bucketShares = map[scoring.Confidence]scenarioShares{
	scoring.ConfidenceHigh:   {pessimistic: 0.70, likely: 0.85, optimistic: 0.95},
	scoring.ConfidenceMedium: {pessimistic: 0.30, likely: 0.50, optimistic: 0.70},
	scoring.ConfidenceLow:    {pessimistic: 0.10, likely: 0.20, optimistic: 0.40},
}

// ForecastRange is the three-point revenue forecast. Closed-won revenue is
// the floor of every scenario.
type ForecastRange struct {
	Pessimistic float64 `json:"pessimistic"`
	Likely      float64 `json:"likely"`
	Optimistic  float64 `json:"optimistic"`
}

// StageBreakdown rolls up the open deals sharing one raw stage label.
type StageBreakdown struct {
	Count         int     `json:"count"`
	Value         float64 `json:"value"`
	WeightedValue float64 `json:"weighted_value"`
}

// ConfidenceCounts tallies open deals per tier.
type ConfidenceCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Summary is the aggregate forecast for one period. Derived per request,
// never persisted except as an opt-in snapshot row.
type Summary struct {
	TotalDeals       int                       `json:"total_deals"`
	TotalPipeline    float64                   `json:"total_pipeline"`
	WeightedPipeline float64                   `json:"weighted_pipeline"`
	ClosedWon        float64                   `json:"closed_won"`
	Forecast         ForecastRange             `json:"forecast"`
	ConfidenceCounts ConfidenceCounts          `json:"confidence_counts"`
	ByStage          map[string]StageBreakdown `json:"by_stage"`
}

// AggregateOptions tune one aggregation pass. Now anchors the date-only
// overdue comparison.
type AggregateOptions struct {
	ExcludeOverdue bool
	Now            time.Time
}

// Aggregate folds scored deals into a forecast summary. Closed-won deals
// contribute their full amount to the closed-won total and to every
// scenario as a guaranteed floor; closed-lost deals are counted but carry
// no value; everything else is open pipeline. With ExcludeOverdue set,
// open deals whose effective close date is before today drop out entirely.
func Aggregate(scored []scoring.ScoredOpportunity, opts AggregateOptions) Summary {
	sum := Summary{ByStage: make(map[string]StageBreakdown)}
	today := model.DateOf(opts.Now)

	var open []scoring.ScoredOpportunity
	for _, s := range scored {
		o := s.Opportunity
		switch {
		case o.Stage.IsWon():
			sum.ClosedWon += o.Amount
			sum.TotalDeals++
		case o.Stage.IsLost():
			sum.TotalDeals++
		default:
			if opts.ExcludeOverdue && isOverdue(o, today) {
				continue
			}
			open = append(open, s)
			sum.TotalDeals++
		}
	}

	sum.Forecast = ForecastRange{
		Pessimistic: sum.ClosedWon,
		Likely:      sum.ClosedWon,
		Optimistic:  sum.ClosedWon,
	}

	for _, s := range open {
		o := s.Opportunity
		weighted := o.Amount * float64(s.Score) / 100

		sum.TotalPipeline += o.Amount
		sum.WeightedPipeline += weighted

		share := bucketShares[s.Confidence]
		sum.Forecast.Pessimistic += o.Amount * share.pessimistic
		sum.Forecast.Likely += o.Amount * share.likely
		sum.Forecast.Optimistic += o.Amount * share.optimistic

		// byStage keys on the raw label so unknown stages surface as
		// themselves instead of vanishing into a bucket.
		b := sum.ByStage[string(o.Stage)]
		b.Count++
		b.Value += o.Amount
		b.WeightedValue += weighted
		sum.ByStage[string(o.Stage)] = b

		switch s.Confidence {
		case scoring.ConfidenceHigh:
			sum.ConfidenceCounts.High++
		case scoring.ConfidenceMedium:
			sum.ConfidenceCounts.Medium++
		default:
			sum.ConfidenceCounts.Low++
		}
	}

	return sum
}

// isOverdue compares calendar dates only; a deal closing later today is
// not overdue. Deals with no close date at all cannot be overdue.
func isOverdue(o *model.Opportunity, today time.Time) bool {
	ecd := o.EffectiveCloseDate()
	if ecd == nil {
		return false
	}
	return model.DateOf(ecd.In(today.Location())).Before(today)
}
