package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/scoring"
	"github.com/sells-group/forecast-cli/internal/store"
)

type fakeSource struct {
	opps      []*model.Opportunity
	owners    []model.Owner
	err       error
	gotFilter store.Filter
}

func (f *fakeSource) ListOpportunities(_ context.Context, filter store.Filter) ([]*model.Opportunity, error) {
	f.gotFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.opps, nil
}

func (f *fakeSource) ListOwners(context.Context) ([]model.Owner, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.owners, nil
}

type fakeBackend struct {
	rec *scoring.SettingsRecord
}

func (b *fakeBackend) ReadSettings(context.Context) (*scoring.SettingsRecord, error) {
	return b.rec, nil
}

func (b *fakeBackend) WriteSettings(_ context.Context, rec *scoring.SettingsRecord) error {
	b.rec = rec
	return nil
}

func newTestService(src *fakeSource, backend scoring.SettingsBackend) *Service {
	if backend == nil {
		backend = &fakeBackend{}
	}
	return NewService(src, scoring.NewSettingsStore(backend))
}

func serviceRequest() Request {
	return Request{
		Range: model.DateRange{
			Start: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		},
		Now: aggNow,
	}
}

func TestServiceForecast(t *testing.T) {
	t.Parallel()

	hot := simOpportunity("opp-hot", model.StageNegotiation, 50000)
	stale := simOpportunity("opp-stale", model.StageQualified, 10000)
	neglected := aggNow.AddDate(0, 0, -60)
	stale.LastActivityAt = &neglected
	stale.DaysInStage = 50
	won := simOpportunity("opp-won", model.StageClosedWon, 30000)

	src := &fakeSource{opps: []*model.Opportunity{hot, stale, won}}
	svc := newTestService(src, nil)

	resp, err := svc.Forecast(context.Background(), serviceRequest())
	require.NoError(t, err)

	// Deals render in store order, one scored row per input deal.
	require.Len(t, resp.Deals, 3)
	assert.Equal(t, "opp-hot", resp.Deals[0].Opportunity.ID)
	assert.Equal(t, "opp-stale", resp.Deals[1].Opportunity.ID)
	assert.Equal(t, "opp-won", resp.Deals[2].Opportunity.ID)

	assert.Equal(t, 3, resp.Summary.TotalDeals)
	assert.InDelta(t, 30000, resp.Summary.ClosedWon, 0.001)
	assert.InDelta(t, 60000, resp.Summary.TotalPipeline, 0.001)

	// Only the neglected open deal lands in the stale panel.
	require.Len(t, resp.StaleDeals, 1)
	assert.Equal(t, "opp-stale", resp.StaleDeals[0].Opportunity.ID)
	assert.Contains(t, resp.StaleDeals[0].StaleFlags, scoring.StaleNoActivity)
	assert.Contains(t, resp.StaleDeals[0].StaleFlags, scoring.StaleStuckInStage)

	// The request range flows through to the store filter untouched.
	assert.Equal(t, serviceRequest().Range.Start, src.gotFilter.Start)
	assert.Equal(t, serviceRequest().Range.End, src.gotFilter.End)
	assert.Equal(t, serviceRequest().Range, resp.Period)
}

func TestServiceForecastUsesStoredSettings(t *testing.T) {
	t.Parallel()

	opp := simOpportunity("opp-1", model.StageNegotiation, 50000)
	src := &fakeSource{opps: []*model.Opportunity{opp}}

	backend := &fakeBackend{rec: &scoring.SettingsRecord{
		Version:   "v-custom",
		UpdatedAt: aggNow,
		Payload:   []byte(`{"stage_weights": {"Negotiation": 60}}`),
	}}
	svc := newTestService(src, backend)

	resp, err := svc.Forecast(context.Background(), serviceRequest())
	require.NoError(t, err)
	require.Len(t, resp.Deals, 1)

	// With the boosted stage weight the deal pins to the ceiling.
	assert.Equal(t, 100, resp.Deals[0].Score)
	assert.Equal(t, scoring.ConfidenceHigh, resp.Deals[0].Confidence)
}

func TestServiceForecastPropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	src := &fakeSource{err: eris.New("store offline")}
	svc := newTestService(src, nil)

	_, err := svc.Forecast(context.Background(), serviceRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store offline")
}

func TestServiceForecastOwnerFilterPassesThrough(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	svc := newTestService(src, nil)

	req := serviceRequest()
	req.OwnerID = "rep-1"
	_, err := svc.Forecast(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "rep-1", src.gotFilter.OwnerID)
}

func TestServiceRepPerformance(t *testing.T) {
	t.Parallel()

	wonA := simOpportunity("a-won", model.StageClosedWon, 40000)
	wonA.OwnerID = "rep-a"
	openA := simOpportunity("a-open", model.StageProposal, 20000)
	openA.OwnerID = "rep-a"
	openB := simOpportunity("b-open", model.StageLead, 5000)
	openB.OwnerID = "rep-b"

	src := &fakeSource{
		opps: []*model.Opportunity{wonA, openA, openB},
		owners: []model.Owner{
			{ID: "rep-a", DisplayName: "Dana Field"},
			{ID: "rep-b", DisplayName: "Alex Chen"},
		},
	}
	svc := newTestService(src, nil)

	resp, err := svc.RepPerformance(context.Background(), serviceRequest())
	require.NoError(t, err)
	require.Len(t, resp.Reps, 2)

	assert.Equal(t, "rep-a", resp.Reps[0].OwnerID)
	assert.Equal(t, "Dana Field", resp.Reps[0].OwnerName)
	assert.InDelta(t, 100, resp.Reps[0].WinRate, 0.001)
	assert.InDelta(t, 40000+20000, resp.Reps[0].ForecastedRevenue, 0.001)

	assert.Equal(t, "rep-b", resp.Reps[1].OwnerID)
	assert.Equal(t, "Alex Chen", resp.Reps[1].OwnerName)

	assert.Equal(t, 2, resp.Summary.TotalReps)
	assert.Equal(t, 3, resp.Summary.TotalDeals)
}

func TestServiceSimulate(t *testing.T) {
	t.Parallel()

	opp := simOpportunity("opp-1", model.StageProposal, 10000)
	src := &fakeSource{opps: []*model.Opportunity{opp}}
	svc := newTestService(src, nil)

	res, err := svc.Simulate(context.Background(), serviceRequest(), []Adjustment{{
		OpportunityID: "opp-1",
		NewValue:      floatPtr(20000),
	}})
	require.NoError(t, err)
	assert.InDelta(t, 10000, res.Delta.TotalPipeline, 0.001)

	// Stored deal untouched by the simulation.
	assert.InDelta(t, 10000, opp.Amount, 0.001)
}
