package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/scoring"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS opportunities (
	id                    TEXT PRIMARY KEY,
	name                  TEXT NOT NULL,
	owner_id              TEXT NOT NULL DEFAULT '',
	account_id            TEXT NOT NULL DEFAULT '',
	amount                REAL NOT NULL DEFAULT 0,
	stage                 TEXT NOT NULL,
	forecasted_close_date DATETIME,
	close_date            DATETIME,
	last_activity_at      DATETIME,
	account_created_at    DATETIME,
	created_at            DATETIME NOT NULL,
	days_in_stage         INTEGER NOT NULL DEFAULT 0,
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS owners (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	email        TEXT NOT NULL DEFAULT '',
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS scoring_settings (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	version    TEXT NOT NULL,
	payload    TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS forecast_snapshots (
	id       TEXT PRIMARY KEY,
	period   TEXT NOT NULL,
	payload  TEXT NOT NULL,
	taken_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_opportunities_owner ON opportunities(owner_id);
CREATE INDEX IF NOT EXISTS idx_opportunities_stage ON opportunities(stage);
CREATE INDEX IF NOT EXISTS idx_opportunities_close ON opportunities(COALESCE(forecasted_close_date, close_date));
CREATE INDEX IF NOT EXISTS idx_snapshots_taken_at ON forecast_snapshots(taken_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteUpsertOpportunity = `
INSERT INTO opportunities
	(id, name, owner_id, account_id, amount, stage, forecasted_close_date, close_date,
	 last_activity_at, account_created_at, created_at, days_in_stage, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	owner_id = excluded.owner_id,
	account_id = excluded.account_id,
	amount = excluded.amount,
	stage = excluded.stage,
	forecasted_close_date = excluded.forecasted_close_date,
	close_date = excluded.close_date,
	last_activity_at = excluded.last_activity_at,
	account_created_at = excluded.account_created_at,
	created_at = excluded.created_at,
	days_in_stage = excluded.days_in_stage,
	updated_at = excluded.updated_at`

func (s *SQLiteStore) UpsertOpportunities(ctx context.Context, opps []*model.Opportunity) (int, error) {
	if len(opps) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertOpportunity)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, o := range opps {
		_, err := stmt.ExecContext(ctx,
			o.ID, o.Name, o.OwnerID, o.AccountID, o.Amount, string(o.Stage),
			nullTime(o.ForecastedCloseDate), nullTime(o.CloseDate),
			nullTime(o.LastActivityAt), nullTime(o.AccountCreatedAt),
			o.CreatedAt.UTC(), o.DaysInStage, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert opportunity %s", o.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return len(opps), nil
}

func (s *SQLiteStore) ListOpportunities(ctx context.Context, filter Filter) ([]*model.Opportunity, error) {
	query := `SELECT id, name, owner_id, account_id, amount, stage, forecasted_close_date,
	          close_date, last_activity_at, account_created_at, created_at, days_in_stage
	          FROM opportunities WHERE 1=1`
	var args []any

	if !filter.Start.IsZero() {
		query += ` AND COALESCE(forecasted_close_date, close_date) >= ?`
		args = append(args, filter.Start.UTC())
	}
	if !filter.End.IsZero() {
		query += ` AND COALESCE(forecasted_close_date, close_date) < ?`
		args = append(args, filter.End.UTC())
	}
	if filter.OwnerID != "" {
		owner := filter.OwnerID
		if owner == model.UnassignedOwner {
			owner = ""
		}
		query += ` AND owner_id = ?`
		args = append(args, owner)
	}
	query += ` ORDER BY COALESCE(forecasted_close_date, close_date), id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list opportunities")
	}
	defer rows.Close()

	var opps []*model.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		opps = append(opps, o)
	}
	return opps, eris.Wrap(rows.Err(), "sqlite: list opportunities iterate")
}

func (s *SQLiteStore) UpsertOwners(ctx context.Context, owners []model.Owner) (int, error) {
	if len(owners) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin owner upsert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO owners (id, display_name, email, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name,
		 email = excluded.email, updated_at = excluded.updated_at`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare owner upsert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, own := range owners {
		if _, err := stmt.ExecContext(ctx, own.ID, own.DisplayName, own.Email, now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert owner %s", own.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit owner upsert")
	}
	return len(owners), nil
}

func (s *SQLiteStore) GetOwner(ctx context.Context, id string) (*model.Owner, error) {
	var own model.Owner
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, email FROM owners WHERE id = ?`, id,
	).Scan(&own.ID, &own.DisplayName, &own.Email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get owner %s", id)
	}
	return &own, nil
}

func (s *SQLiteStore) ListOwners(ctx context.Context) ([]model.Owner, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name, email FROM owners ORDER BY display_name, id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list owners")
	}
	defer rows.Close()

	var owners []model.Owner
	for rows.Next() {
		var own model.Owner
		if err := rows.Scan(&own.ID, &own.DisplayName, &own.Email); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan owner")
		}
		owners = append(owners, own)
	}
	return owners, eris.Wrap(rows.Err(), "sqlite: list owners iterate")
}

func (s *SQLiteStore) ReadSettings(ctx context.Context) (*scoring.SettingsRecord, error) {
	var rec scoring.SettingsRecord
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT version, payload, updated_at FROM scoring_settings WHERE id = 1`,
	).Scan(&rec.Version, &payload, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read settings")
	}
	rec.Payload = []byte(payload)
	return &rec, nil
}

func (s *SQLiteStore) WriteSettings(ctx context.Context, rec *scoring.SettingsRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scoring_settings (id, version, payload, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET version = excluded.version,
		 payload = excluded.payload, updated_at = excluded.updated_at`,
		rec.Version, string(rec.Payload), rec.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: write settings")
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO forecast_snapshots (id, period, payload, taken_at) VALUES (?, ?, ?, ?)`,
		snap.ID, snap.Period, string(snap.Payload), snap.TakenAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save snapshot %s", snap.ID)
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, period, payload, taken_at FROM forecast_snapshots
		 ORDER BY taken_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var snap Snapshot
		var payload string
		if err := rows.Scan(&snap.ID, &snap.Period, &payload, &snap.TakenAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		snap.Payload = []byte(payload)
		snaps = append(snaps, snap)
	}
	return snaps, eris.Wrap(rows.Err(), "sqlite: list snapshots iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanOpportunity(row scannable) (*model.Opportunity, error) {
	var o model.Opportunity
	var stage string
	var forecastedClose, closeDate, lastActivity, accountCreated sql.NullTime

	err := row.Scan(&o.ID, &o.Name, &o.OwnerID, &o.AccountID, &o.Amount, &stage,
		&forecastedClose, &closeDate, &lastActivity, &accountCreated,
		&o.CreatedAt, &o.DaysInStage)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan opportunity")
	}

	o.Stage = model.Stage(stage)
	o.ForecastedCloseDate = timePtr(forecastedClose)
	o.CloseDate = timePtr(closeDate)
	o.LastActivityAt = timePtr(lastActivity)
	o.AccountCreatedAt = timePtr(accountCreated)
	return &o, nil
}

// nullTime converts an optional timestamp into a bindable UTC value.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
