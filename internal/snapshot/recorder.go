// Package snapshot persists periodic forecast summaries so the team can
// trend pipeline health over time. Each snapshot stores the aggregate
// summary as computed at capture time; historical rows never reflow when
// scoring settings change later.
package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/forecast"
	"github.com/sells-group/forecast-cli/internal/metrics"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/store"
)

// Recorder captures forecast snapshots for one configured period.
type Recorder struct {
	svc    *forecast.Service
	store  store.Store
	period model.Period
}

func NewRecorder(svc *forecast.Service, st store.Store, period model.Period) *Recorder {
	return &Recorder{svc: svc, store: st, period: period}
}

// payload is the persisted snapshot body.
type payload struct {
	Period  model.DateRange  `json:"period"`
	Summary forecast.Summary `json:"summary"`
}

// RecordOnce computes the configured period's forecast and persists its
// summary.
func (r *Recorder) RecordOnce(ctx context.Context) (*store.Snapshot, error) {
	now := time.Now()
	resp, err := r.svc.Forecast(ctx, forecast.Request{Range: r.period.Range(now)})
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload{Period: resp.Period, Summary: resp.Summary})
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: marshal summary")
	}

	snap := store.Snapshot{
		ID:      uuid.NewString(),
		Period:  string(r.period),
		TakenAt: now.UTC(),
		Payload: raw,
	}
	if err := r.store.SaveSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	metrics.ObserveSnapshot()
	zap.L().Info("snapshot recorded",
		zap.String("id", snap.ID),
		zap.String("period", snap.Period),
		zap.Int("deals", resp.Summary.TotalDeals),
		zap.Float64("weighted_pipeline", resp.Summary.WeightedPipeline),
	)
	return &snap, nil
}

// Watch records a snapshot on the given cron schedule until ctx is
// cancelled. The schedule uses six fields with a leading seconds column.
// A failed capture logs and waits for the next tick.
func (r *Recorder) Watch(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(schedule, func() {
		if _, err := r.RecordOnce(ctx); err != nil {
			zap.L().Error("snapshot: capture failed", zap.Error(err))
		}
	})
	if err != nil {
		return eris.Wrapf(err, "snapshot: parse schedule %q", schedule)
	}

	c.Start()
	zap.L().Info("snapshot watcher started", zap.String("schedule", schedule))

	<-ctx.Done()
	<-c.Stop().Done()
	zap.L().Info("snapshot watcher stopped")
	return nil
}
