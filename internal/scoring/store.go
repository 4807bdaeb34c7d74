package scoring

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// SettingsRecord is the persisted form of the configuration document: the
// JSON payload plus the version tag stamped at write time.
type SettingsRecord struct {
	Version   string
	UpdatedAt time.Time
	Payload   []byte
}

// SettingsBackend persists the single settings document. ReadSettings
// returns nil (no error) when nothing has been persisted yet.
type SettingsBackend interface {
	ReadSettings(ctx context.Context) (*SettingsRecord, error)
	WriteSettings(ctx context.Context, rec *SettingsRecord) error
}

// SettingsStore is the validated read/write path for scoring configuration.
// Reads fall back to defaults key-by-key; writes validate the complete
// document and stamp a fresh version. There is no partial-update path.
type SettingsStore struct {
	backend SettingsBackend
}

func NewSettingsStore(backend SettingsBackend) *SettingsStore {
	return &SettingsStore{backend: backend}
}

// Defaults returns the hard-coded recommended configuration.
func (s *SettingsStore) Defaults() Settings {
	return Defaults()
}

// Get returns the active configuration. When nothing is persisted the
// defaults come back untagged; otherwise the stored payload is decoded over
// a defaults base so any key missing from an older document picks up its
// recommended value.
func (s *SettingsStore) Get(ctx context.Context) (VersionedSettings, error) {
	rec, err := s.backend.ReadSettings(ctx)
	if err != nil {
		return VersionedSettings{}, eris.Wrap(err, "scoring: read settings")
	}
	if rec == nil {
		return VersionedSettings{Settings: Defaults()}, nil
	}

	merged := Defaults()
	if err := json.Unmarshal(rec.Payload, &merged); err != nil {
		return VersionedSettings{}, eris.Wrap(err, "scoring: decode persisted settings")
	}
	return VersionedSettings{
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt,
		Settings:  merged,
	}, nil
}

// Put validates the candidate and persists it whole. Validation failures
// surface as *ValidationError before anything touches the backend.
func (s *SettingsStore) Put(ctx context.Context, candidate Settings) (VersionedSettings, error) {
	if err := candidate.Validate(); err != nil {
		return VersionedSettings{}, err
	}

	payload, err := json.Marshal(candidate)
	if err != nil {
		return VersionedSettings{}, eris.Wrap(err, "scoring: encode settings")
	}

	rec := &SettingsRecord{
		Version:   uuid.New().String(),
		UpdatedAt: time.Now().UTC(),
		Payload:   payload,
	}
	if err := s.backend.WriteSettings(ctx, rec); err != nil {
		return VersionedSettings{}, eris.Wrap(err, "scoring: write settings")
	}

	return VersionedSettings{
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt,
		Settings:  candidate.Clone(),
	}, nil
}
