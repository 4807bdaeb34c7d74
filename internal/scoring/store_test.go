package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBackend struct {
	rec    *SettingsRecord
	writes int
}

func (m *memBackend) ReadSettings(_ context.Context) (*SettingsRecord, error) {
	return m.rec, nil
}

func (m *memBackend) WriteSettings(_ context.Context, rec *SettingsRecord) error {
	m.rec = rec
	m.writes++
	return nil
}

func TestSettingsStoreGetWithoutPersistedDocument(t *testing.T) {
	t.Parallel()

	store := NewSettingsStore(&memBackend{})
	got, err := store.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Defaults(), got.Settings)
	assert.Empty(t, got.Version)
}

func TestSettingsStoreRoundTrip(t *testing.T) {
	t.Parallel()

	backend := &memBackend{}
	store := NewSettingsStore(backend)
	ctx := context.Background()

	put, err := store.Put(ctx, store.Defaults())
	require.NoError(t, err)
	assert.NotEmpty(t, put.Version)
	assert.False(t, put.UpdatedAt.IsZero())

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), got.Settings)
	assert.Equal(t, put.Version, got.Version)
}

func TestSettingsStorePutRejectsInvalidDocumentBeforePersisting(t *testing.T) {
	t.Parallel()

	backend := &memBackend{}
	store := NewSettingsStore(backend)

	bad := Defaults()
	bad.DealAge.WarnDays = 500

	_, err := store.Put(context.Background(), bad)
	require.Error(t, err)

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Zero(t, backend.writes, "rejected documents must never reach the backend")
}

func TestSettingsStoreGetFillsMissingKeysFromDefaults(t *testing.T) {
	t.Parallel()

	// A document persisted by an older build may predate newer knobs;
	// reads fill those from the defaults.
	backend := &memBackend{rec: &SettingsRecord{
		Version: "old-doc",
		Payload: []byte(`{"stage_weights": {"Lead": 3}, "deal_age": {"warn_days": 10}}`),
	}}
	store := NewSettingsStore(backend)

	got, err := store.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, got.StageWeights["Lead"])
	assert.Equal(t, 20, got.StageWeights["Negotiation"], "untouched weights keep defaults")
	assert.Equal(t, 10, got.DealAge.WarnDays)
	assert.Equal(t, 90, got.DealAge.AgingDays, "absent fields keep defaults")
	assert.Equal(t, Defaults().Activity, got.Activity, "absent groups keep defaults")
	assert.Equal(t, "old-doc", got.Version)
}

func TestSettingsStorePutDetachesReturnedDocument(t *testing.T) {
	t.Parallel()

	backend := &memBackend{}
	store := NewSettingsStore(backend)
	ctx := context.Background()

	candidate := Defaults()
	put, err := store.Put(ctx, candidate)
	require.NoError(t, err)

	// Caller keeps editing its candidate; the stored document and the
	// returned one must not move with it.
	candidate.StageWeights["Lead"] = 999

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, got.StageWeights["Lead"])
	assert.Equal(t, 0, put.StageWeights["Lead"])
}
