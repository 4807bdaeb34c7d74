package forecast

import (
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/scoring"
)

// scoreConcurrency bounds the scoring fan-out. Scoring is cheap, so this
// only matters for very large pipelines.
const scoreConcurrency = 8

// scoreAll scores every deal against one settings document and one clock
// reading. Results hold the input order, deal i lands at index i.
func scoreAll(opps []*model.Opportunity, cfg scoring.Settings, now time.Time) []scoring.ScoredOpportunity {
	scored := make([]scoring.ScoredOpportunity, len(opps))

	g := new(errgroup.Group)
	g.SetLimit(scoreConcurrency)
	for i, o := range opps {
		g.Go(func() error {
			scored[i] = scoring.Score(o, cfg, now)
			return nil
		})
	}
	_ = g.Wait() // scorers never return errors

	return scored
}
