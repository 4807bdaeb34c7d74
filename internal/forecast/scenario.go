package forecast

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/scoring"
)

// Adjustment is a sparse what-if overlay for one opportunity. Only the
// fields present are applied; everything else on the deal is untouched.
type Adjustment struct {
	OpportunityID string       `json:"opportunity_id" yaml:"opportunity_id"`
	NewStage      *model.Stage `json:"new_stage,omitempty" yaml:"new_stage"`
	NewValue      *float64     `json:"new_value,omitempty" yaml:"new_value"`
	NewCloseDate  *time.Time   `json:"new_close_date,omitempty" yaml:"new_close_date"`
}

// Delta is scenario minus baseline for the headline forecast numbers.
type Delta struct {
	TotalPipeline    float64 `json:"total_pipeline"`
	WeightedPipeline float64 `json:"weighted_pipeline"`
	Pessimistic      float64 `json:"pessimistic"`
	Likely           float64 `json:"likely"`
	Optimistic       float64 `json:"optimistic"`
}

// SimulationResult pairs the untouched baseline with the adjusted
// scenario and their difference.
type SimulationResult struct {
	Baseline Summary `json:"baseline"`
	Scenario Summary `json:"scenario"`
	Delta    Delta   `json:"delta"`
}

// Simulate scores and aggregates the deals twice, once as they are and
// once with the adjustments overlaid on deep copies. The input deals are
// never mutated, so a simulation can run against live data. Adjustments
// naming unknown opportunity IDs are ignored; with no adjustments at all
// the scenario equals the baseline.
func Simulate(opps []*model.Opportunity, cfg scoring.Settings, adjustments []Adjustment, opts AggregateOptions) SimulationResult {
	baseline := Aggregate(scoreAll(opps, cfg, opts.Now), opts)

	adjusted := make([]*model.Opportunity, len(opps))
	for i, o := range opps {
		adjusted[i] = o.Clone()
	}
	applyAdjustments(adjusted, adjustments)

	scenario := Aggregate(scoreAll(adjusted, cfg, opts.Now), opts)

	return SimulationResult{
		Baseline: baseline,
		Scenario: scenario,
		Delta: Delta{
			TotalPipeline:    scenario.TotalPipeline - baseline.TotalPipeline,
			WeightedPipeline: scenario.WeightedPipeline - baseline.WeightedPipeline,
			Pessimistic:      scenario.Forecast.Pessimistic - baseline.Forecast.Pessimistic,
			Likely:           scenario.Forecast.Likely - baseline.Forecast.Likely,
			Optimistic:       scenario.Forecast.Optimistic - baseline.Forecast.Optimistic,
		},
	}
}

// applyAdjustments overlays adjustments onto the deals in place. Later
// adjustments for the same deal win field by field. A new close date
// lands on the forecasted close date, which takes precedence over the
// CRM close date everywhere downstream.
func applyAdjustments(opps []*model.Opportunity, adjustments []Adjustment) {
	byID := make(map[string]*model.Opportunity, len(opps))
	for _, o := range opps {
		byID[o.ID] = o
	}
	for _, adj := range adjustments {
		o := byID[adj.OpportunityID]
		if o == nil {
			continue
		}
		if adj.NewStage != nil {
			o.Stage = *adj.NewStage
		}
		if adj.NewValue != nil {
			o.Amount = *adj.NewValue
		}
		if adj.NewCloseDate != nil {
			d := *adj.NewCloseDate
			o.ForecastedCloseDate = &d
		}
	}
}

// scenarioFile is the on-disk YAML shape consumed by the scenario
// command.
type scenarioFile struct {
	Adjustments []Adjustment `yaml:"adjustments"`
}

// LoadAdjustments reads a scenario YAML file. Unknown keys are rejected
// so a typo like new_valu fails loudly instead of silently simulating
// nothing.
func LoadAdjustments(r io.Reader) ([]Adjustment, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file scenarioFile
	if err := dec.Decode(&file); err != nil {
		return nil, eris.Wrap(err, "forecast: parse scenario file")
	}
	for i, adj := range file.Adjustments {
		if adj.OpportunityID == "" {
			return nil, eris.Errorf("forecast: adjustment %d missing opportunity_id", i)
		}
	}
	return file.Adjustments, nil
}
