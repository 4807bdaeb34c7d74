package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/scoring"
)

func repDeal(owner string, stage model.Stage, amount float64) scoring.ScoredOpportunity {
	s := scoredDeal("deal", stage, amount, 50)
	s.Opportunity.OwnerID = owner
	return s
}

func TestComputeRepsGroupsAndRanks(t *testing.T) {
	t.Parallel()

	scored := []scoring.ScoredOpportunity{
		// rep-a: strong closer with a real pipeline.
		repDeal("rep-a", model.StageClosedWon, 30000),
		repDeal("rep-a", model.StageClosedWon, 30000),
		repDeal("rep-a", model.StageClosedLost, 10000),
		repDeal("rep-a", model.StageNegotiation, 50000),
		repDeal("rep-a", model.StageProposal, 30000),
		// rep-b: nothing decided yet.
		repDeal("rep-b", model.StageQualified, 20000),
		// one deal with no owner at all.
		repDeal("", model.StageLead, 5000),
	}

	reps, team := ComputeReps(scored, map[string]string{"rep-a": "Dana Field"})
	require.Len(t, reps, 3)

	a := reps[0]
	assert.Equal(t, "rep-a", a.OwnerID)
	assert.Equal(t, "Dana Field", a.OwnerName)
	assert.Equal(t, 5, a.TotalDeals)
	assert.Equal(t, 2, a.OpenDeals)
	assert.Equal(t, 2, a.WonDeals)
	assert.Equal(t, 1, a.LostDeals)
	assert.InDelta(t, 150000, a.TotalValue, 0.001)
	assert.InDelta(t, 60000, a.WonValue, 0.001)
	assert.InDelta(t, 10000, a.LostValue, 0.001)
	assert.InDelta(t, 80000, a.PipelineValue, 0.001)
	assert.InDelta(t, 30000, a.AvgDealSize, 0.001)
	assert.InDelta(t, 100.0/1.5, a.WinRate, 0.001)
	assert.InDelta(t, 60000+80000*(100.0/1.5)/100, a.ForecastedRevenue, 0.001)

	b := reps[1]
	assert.Equal(t, "rep-b", b.OwnerID)
	assert.Empty(t, b.OwnerName)
	assert.Zero(t, b.WinRate)
	assert.Zero(t, b.ForecastedRevenue)

	orphan := reps[2]
	assert.Equal(t, model.UnassignedOwner, orphan.OwnerID)
	assert.Equal(t, 1, orphan.TotalDeals)

	assert.Equal(t, 3, team.TotalReps)
	assert.Equal(t, 7, team.TotalDeals)
	assert.InDelta(t, 60000, team.WonValue, 0.001)
	assert.InDelta(t, 105000, team.PipelineValue, 0.001)
	assert.InDelta(t, a.ForecastedRevenue, team.ForecastedRevenue, 0.001)
	assert.InDelta(t, (100.0/1.5)/3, team.AvgWinRate, 0.001)
}

func TestComputeRepsSortedByForecastedRevenue(t *testing.T) {
	t.Parallel()

	scored := []scoring.ScoredOpportunity{
		repDeal("low", model.StageClosedWon, 1000),
		repDeal("high", model.StageClosedWon, 90000),
		repDeal("mid", model.StageClosedWon, 40000),
	}

	reps, _ := ComputeReps(scored, nil)
	require.Len(t, reps, 3)
	assert.Equal(t, "high", reps[0].OwnerID)
	assert.Equal(t, "mid", reps[1].OwnerID)
	assert.Equal(t, "low", reps[2].OwnerID)

	for i := 1; i < len(reps); i++ {
		assert.GreaterOrEqual(t, reps[i-1].ForecastedRevenue, reps[i].ForecastedRevenue)
	}
}

func TestComputeRepsTieBreaksOnOwnerID(t *testing.T) {
	t.Parallel()

	// Both reps forecast zero revenue, so order falls back to the
	// owner key for a stable render.
	scored := []scoring.ScoredOpportunity{
		repDeal("zeta", model.StageQualified, 10000),
		repDeal("alpha", model.StageQualified, 10000),
	}

	reps, _ := ComputeReps(scored, nil)
	require.Len(t, reps, 2)
	assert.Equal(t, "alpha", reps[0].OwnerID)
	assert.Equal(t, "zeta", reps[1].OwnerID)
}

func TestWinRateZeroWithoutDecidedDeals(t *testing.T) {
	t.Parallel()

	scored := []scoring.ScoredOpportunity{
		repDeal("rep-1", model.StageLead, 10000),
		repDeal("rep-1", model.StageProposal, 20000),
	}

	reps, _ := ComputeReps(scored, nil)
	require.Len(t, reps, 1)
	assert.Zero(t, reps[0].WinRate)
	assert.Zero(t, reps[0].ForecastedRevenue)
	assert.InDelta(t, 15000, reps[0].AvgDealSize, 0.001)
}

func TestPerformanceScoreBands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rep  RepPerformance
		want int
	}{
		{
			name: "top closer with big deals and deep pipeline",
			rep:  RepPerformance{WinRate: 75, AvgDealSize: 60000, OpenDeals: 12},
			want: 95,
		},
		{
			name: "solid mid performer",
			rep:  RepPerformance{WinRate: 35, AvgDealSize: 30000, OpenDeals: 6},
			want: 75,
		},
		{
			name: "neutral middle bands",
			rep:  RepPerformance{WinRate: 25, AvgDealSize: 15000, OpenDeals: 4},
			want: 50,
		},
		{
			name: "struggling rep",
			rep:  RepPerformance{WinRate: 10, AvgDealSize: 5000, OpenDeals: 1},
			want: 25,
		},
		{
			name: "small deals but huge open book",
			rep:  RepPerformance{WinRate: 50, AvgDealSize: 8000, OpenDeals: 11},
			want: 75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rep := tt.rep
			assert.Equal(t, tt.want, performanceScore(&rep))
		})
	}
}

func TestComputeRepsEmptyInput(t *testing.T) {
	t.Parallel()

	reps, team := ComputeReps(nil, nil)
	assert.Empty(t, reps)
	assert.Equal(t, TeamSummary{}, team)
}
