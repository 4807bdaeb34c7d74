package store

import (
	"context"
	"time"

	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/scoring"
)

// Filter selects opportunities for one forecast computation. Start and
// End bound the effective close date as a half-open range; zero values
// leave that side unbounded. Deals with no close date at all only match
// queries with no date bounds.
type Filter struct {
	Start   time.Time `json:"start,omitempty"`
	End     time.Time `json:"end,omitempty"`
	OwnerID string    `json:"owner_id,omitempty"`
}

// Snapshot is one persisted forecast, stored as the serialized summary
// so historical rows read back exactly as they were computed even after
// scoring settings change.
type Snapshot struct {
	ID      string    `json:"id"`
	Period  string    `json:"period"`
	TakenAt time.Time `json:"taken_at"`
	Payload []byte    `json:"payload"`
}

// Store defines the persistence interface for the forecasting engine.
// It also satisfies scoring.SettingsBackend so the settings store can
// sit directly on top of it.
type Store interface {
	// Opportunities
	UpsertOpportunities(ctx context.Context, opps []*model.Opportunity) (int, error)
	ListOpportunities(ctx context.Context, filter Filter) ([]*model.Opportunity, error)

	// Owners
	UpsertOwners(ctx context.Context, owners []model.Owner) (int, error)
	GetOwner(ctx context.Context, id string) (*model.Owner, error)
	ListOwners(ctx context.Context) ([]model.Owner, error)

	// Scoring settings
	ReadSettings(ctx context.Context) (*scoring.SettingsRecord, error)
	WriteSettings(ctx context.Context, rec *scoring.SettingsRecord) error

	// Forecast snapshots
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
