package forecast

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/metrics"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/scoring"
	"github.com/sells-group/forecast-cli/internal/store"
)

// Source is the slice of the store the forecast service reads from.
type Source interface {
	ListOpportunities(ctx context.Context, f store.Filter) ([]*model.Opportunity, error)
	ListOwners(ctx context.Context) ([]model.Owner, error)
}

// Service computes forecasts, rep performance, and scenario simulations
// over deals fetched from the store, scored with the current settings
// document.
type Service struct {
	source   Source
	settings *scoring.SettingsStore
}

func NewService(source Source, settings *scoring.SettingsStore) *Service {
	return &Service{source: source, settings: settings}
}

// Request selects the deals for one computation. A zero Now means the
// wall clock; tests pin it.
type Request struct {
	Range          model.DateRange
	OwnerID        string
	ExcludeOverdue bool
	Now            time.Time
}

func (r Request) now() time.Time {
	if r.Now.IsZero() {
		return time.Now()
	}
	return r.Now
}

func (r Request) filter() store.Filter {
	return store.Filter{Start: r.Range.Start, End: r.Range.End, OwnerID: r.OwnerID}
}

// Response is the full forecast payload: the aggregate summary plus every
// scored deal, with stale deals broken out for the review panel.
type Response struct {
	Period     model.DateRange             `json:"period"`
	Summary    Summary                     `json:"summary"`
	Deals      []scoring.ScoredOpportunity `json:"deals"`
	StaleDeals []scoring.ScoredOpportunity `json:"stale_deals,omitempty"`
}

// Forecast scores the deals in the requested period and aggregates them.
// Deals come back in store order so repeated calls render identically.
func (s *Service) Forecast(ctx context.Context, req Request) (*Response, error) {
	started := time.Now()
	now := req.now()

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	opps, err := s.source.ListOpportunities(ctx, req.filter())
	if err != nil {
		return nil, err
	}

	scored := scoreAll(opps, cfg.Settings, now)
	summary := Aggregate(scored, AggregateOptions{ExcludeOverdue: req.ExcludeOverdue, Now: now})

	var stale []scoring.ScoredOpportunity
	for _, sc := range scored {
		if len(sc.StaleFlags) > 0 {
			stale = append(stale, sc)
		}
	}

	metrics.ObserveForecast(len(scored), time.Since(started))
	zap.L().Debug("forecast computed",
		zap.Int("deals", len(scored)),
		zap.Int("stale", len(stale)),
		zap.Duration("elapsed", time.Since(started)))

	return &Response{
		Period:     req.Range,
		Summary:    summary,
		Deals:      scored,
		StaleDeals: stale,
	}, nil
}

// RepsResponse is the per-rep leaderboard plus the team rollup.
type RepsResponse struct {
	Period  model.DateRange  `json:"period"`
	Reps    []RepPerformance `json:"reps"`
	Summary TeamSummary      `json:"summary"`
}

// RepPerformance groups the period's deals by owner and ranks reps by
// forecasted revenue.
func (s *Service) RepPerformance(ctx context.Context, req Request) (*RepsResponse, error) {
	now := req.now()

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	opps, err := s.source.ListOpportunities(ctx, req.filter())
	if err != nil {
		return nil, err
	}
	owners, err := s.source.ListOwners(ctx)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(owners))
	for _, own := range owners {
		names[own.ID] = own.DisplayName
	}

	reps, team := ComputeReps(scoreAll(opps, cfg.Settings, now), names)

	zap.L().Debug("rep performance computed",
		zap.Int("reps", len(reps)),
		zap.Int("deals", team.TotalDeals))

	return &RepsResponse{Period: req.Range, Reps: reps, Summary: team}, nil
}

// Simulate runs a what-if scenario: baseline and adjusted forecasts over
// the same deal set, without touching stored data.
func (s *Service) Simulate(ctx context.Context, req Request, adjustments []Adjustment) (*SimulationResult, error) {
	now := req.now()

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	opps, err := s.source.ListOpportunities(ctx, req.filter())
	if err != nil {
		return nil, err
	}

	res := Simulate(opps, cfg.Settings, adjustments, AggregateOptions{
		ExcludeOverdue: req.ExcludeOverdue,
		Now:            now,
	})

	metrics.ObserveSimulation(len(adjustments))
	zap.L().Debug("scenario simulated",
		zap.Int("deals", len(opps)),
		zap.Int("adjustments", len(adjustments)))

	return &res, nil
}
