package forecast

import (
	"sort"

	"github.com/sells-group/forecast-cli/internal/scoring"
)

// RepPerformance is the per-owner slice of the pipeline. Deals with no
// owner are grouped under the unassigned sentinel rather than dropped so
// the totals always reconcile with the forecast.
type RepPerformance struct {
	OwnerID           string  `json:"owner_id"`
	OwnerName         string  `json:"owner_name,omitempty"`
	TotalDeals        int     `json:"total_deals"`
	OpenDeals         int     `json:"open_deals"`
	WonDeals          int     `json:"won_deals"`
	LostDeals         int     `json:"lost_deals"`
	TotalValue        float64 `json:"total_value"`
	WonValue          float64 `json:"won_value"`
	LostValue         float64 `json:"lost_value"`
	PipelineValue     float64 `json:"pipeline_value"`
	AvgDealSize       float64 `json:"avg_deal_size"`
	WinRate           float64 `json:"win_rate"`
	ForecastedRevenue float64 `json:"forecasted_revenue"`
	PerformanceScore  int     `json:"performance_score"`
}

// TeamSummary rolls the per-rep rows up to one line for the whole team.
type TeamSummary struct {
	TotalReps         int     `json:"total_reps"`
	TotalDeals        int     `json:"total_deals"`
	WonValue          float64 `json:"won_value"`
	PipelineValue     float64 `json:"pipeline_value"`
	ForecastedRevenue float64 `json:"forecasted_revenue"`
	AvgWinRate        float64 `json:"avg_win_rate"`
}

// ComputeReps groups scored deals by owner and derives win rate, average
// deal size, forecasted revenue, and a 0-100 performance score per rep.
// The owners map supplies display names and may be nil. Rows come back
// sorted by forecasted revenue, highest first.
func ComputeReps(scored []scoring.ScoredOpportunity, owners map[string]string) ([]RepPerformance, TeamSummary) {
	byOwner := make(map[string]*RepPerformance)

	for _, s := range scored {
		o := s.Opportunity
		key := o.OwnerKey()
		rep := byOwner[key]
		if rep == nil {
			rep = &RepPerformance{OwnerID: key, OwnerName: owners[key]}
			byOwner[key] = rep
		}

		rep.TotalDeals++
		rep.TotalValue += o.Amount
		switch {
		case o.Stage.IsWon():
			rep.WonDeals++
			rep.WonValue += o.Amount
		case o.Stage.IsLost():
			rep.LostDeals++
			rep.LostValue += o.Amount
		default:
			rep.OpenDeals++
			rep.PipelineValue += o.Amount
		}
	}

	reps := make([]RepPerformance, 0, len(byOwner))
	var team TeamSummary
	for _, rep := range byOwner {
		finishRep(rep)

		team.TotalReps++
		team.TotalDeals += rep.TotalDeals
		team.WonValue += rep.WonValue
		team.PipelineValue += rep.PipelineValue
		team.ForecastedRevenue += rep.ForecastedRevenue
		team.AvgWinRate += rep.WinRate

		reps = append(reps, *rep)
	}
	if team.TotalReps > 0 {
		team.AvgWinRate /= float64(team.TotalReps)
	}

	sort.Slice(reps, func(i, j int) bool {
		if reps[i].ForecastedRevenue != reps[j].ForecastedRevenue {
			return reps[i].ForecastedRevenue > reps[j].ForecastedRevenue
		}
		return reps[i].OwnerID < reps[j].OwnerID
	})

	return reps, team
}

// finishRep derives the ratio fields once a rep's tallies are complete.
// Win rate only considers decided deals; a rep with nothing decided yet
// holds a zero rate rather than a divide-by-zero.
func finishRep(rep *RepPerformance) {
	if decided := rep.WonDeals + rep.LostDeals; decided > 0 {
		rep.WinRate = float64(rep.WonDeals) / float64(decided) * 100
	}
	if rep.TotalDeals > 0 {
		rep.AvgDealSize = rep.TotalValue / float64(rep.TotalDeals)
	}
	rep.ForecastedRevenue = rep.WonValue + rep.PipelineValue*rep.WinRate/100
	rep.PerformanceScore = performanceScore(rep)
}

// performanceScore rates a rep 0-100 from a base of 50 with win-rate,
// deal-size, and open-pipeline adjustments. Each band applies at most one
// adjustment.
func performanceScore(rep *RepPerformance) int {
	score := 50

	switch {
	case rep.WinRate >= 50:
		score += 20
	case rep.WinRate >= 30:
		score += 10
	case rep.WinRate < 20:
		score -= 10
	}

	switch {
	case rep.AvgDealSize > 50000:
		score += 15
	case rep.AvgDealSize > 25000:
		score += 10
	case rep.AvgDealSize < 10000:
		score -= 5
	}

	switch {
	case rep.OpenDeals > 10:
		score += 10
	case rep.OpenDeals > 5:
		score += 5
	case rep.OpenDeals < 3:
		score -= 10
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
