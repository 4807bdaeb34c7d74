package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/forecast-cli/internal/db"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/scoring"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_owner":      `SELECT id, display_name, email FROM owners WHERE id = $1`,
	"list_owners":    `SELECT id, display_name, email FROM owners ORDER BY display_name, id`,
	"upsert_owner":   `INSERT INTO owners (id, display_name, email, updated_at) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO UPDATE SET display_name = $2, email = $3, updated_at = $4`,
	"read_settings":  `SELECT version, payload, updated_at FROM scoring_settings WHERE id = 1`,
	"write_settings": `INSERT INTO scoring_settings (id, version, payload, updated_at) VALUES (1, $1, $2, $3) ON CONFLICT (id) DO UPDATE SET version = $1, payload = $2, updated_at = $3`,
	"save_snapshot":  `INSERT INTO forecast_snapshots (id, period, payload, taken_at) VALUES ($1, $2, $3, $4)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS opportunities (
	id                    TEXT PRIMARY KEY,
	name                  TEXT NOT NULL,
	owner_id              TEXT NOT NULL DEFAULT '',
	account_id            TEXT NOT NULL DEFAULT '',
	amount                DOUBLE PRECISION NOT NULL DEFAULT 0,
	stage                 TEXT NOT NULL,
	forecasted_close_date TIMESTAMPTZ,
	close_date            TIMESTAMPTZ,
	last_activity_at      TIMESTAMPTZ,
	account_created_at    TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL,
	days_in_stage         INTEGER NOT NULL DEFAULT 0,
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS owners (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	email        TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scoring_settings (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	version    TEXT NOT NULL,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS forecast_snapshots (
	id       TEXT PRIMARY KEY,
	period   TEXT NOT NULL,
	payload  JSONB NOT NULL,
	taken_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_opportunities_owner ON opportunities(owner_id);
CREATE INDEX IF NOT EXISTS idx_opportunities_stage ON opportunities(stage);
CREATE INDEX IF NOT EXISTS idx_opportunities_close ON opportunities((COALESCE(forecasted_close_date, close_date)));
CREATE INDEX IF NOT EXISTS idx_snapshots_taken_at ON forecast_snapshots(taken_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// opportunityColumns is the column order shared by the bulk upsert and
// the row builder below.
var opportunityColumns = []string{
	"id", "name", "owner_id", "account_id", "amount", "stage",
	"forecasted_close_date", "close_date", "last_activity_at",
	"account_created_at", "created_at", "days_in_stage", "updated_at",
}

func (s *PostgresStore) UpsertOpportunities(ctx context.Context, opps []*model.Opportunity) (int, error) {
	if len(opps) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(opps))
	for _, o := range opps {
		rows = append(rows, []any{
			o.ID, o.Name, o.OwnerID, o.AccountID, o.Amount, string(o.Stage),
			nullTime(o.ForecastedCloseDate), nullTime(o.CloseDate),
			nullTime(o.LastActivityAt), nullTime(o.AccountCreatedAt),
			o.CreatedAt.UTC(), o.DaysInStage, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "opportunities",
		Columns:      opportunityColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert opportunities")
	}
	return int(n), nil
}

func (s *PostgresStore) ListOpportunities(ctx context.Context, filter Filter) ([]*model.Opportunity, error) {
	query := `SELECT id, name, owner_id, account_id, amount, stage, forecasted_close_date,
	          close_date, last_activity_at, account_created_at, created_at, days_in_stage
	          FROM opportunities WHERE true`
	args := []any{}
	argIdx := 1

	if !filter.Start.IsZero() {
		query += fmt.Sprintf(` AND COALESCE(forecasted_close_date, close_date) >= $%d`, argIdx)
		args = append(args, filter.Start.UTC())
		argIdx++
	}
	if !filter.End.IsZero() {
		query += fmt.Sprintf(` AND COALESCE(forecasted_close_date, close_date) < $%d`, argIdx)
		args = append(args, filter.End.UTC())
		argIdx++
	}
	if filter.OwnerID != "" {
		owner := filter.OwnerID
		if owner == model.UnassignedOwner {
			owner = ""
		}
		query += fmt.Sprintf(` AND owner_id = $%d`, argIdx)
		args = append(args, owner)
		argIdx++
	}
	query += ` ORDER BY COALESCE(forecasted_close_date, close_date), id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list opportunities")
	}
	defer rows.Close()

	var opps []*model.Opportunity
	for rows.Next() {
		var o model.Opportunity
		var stage string
		var forecastedClose, closeDate, lastActivity, accountCreated *time.Time

		if err := rows.Scan(&o.ID, &o.Name, &o.OwnerID, &o.AccountID, &o.Amount, &stage,
			&forecastedClose, &closeDate, &lastActivity, &accountCreated,
			&o.CreatedAt, &o.DaysInStage); err != nil {
			return nil, eris.Wrap(err, "postgres: scan opportunity")
		}

		o.Stage = model.Stage(stage)
		o.ForecastedCloseDate = forecastedClose
		o.CloseDate = closeDate
		o.LastActivityAt = lastActivity
		o.AccountCreatedAt = accountCreated
		opps = append(opps, &o)
	}
	return opps, eris.Wrap(rows.Err(), "postgres: list opportunities iterate")
}

func (s *PostgresStore) UpsertOwners(ctx context.Context, owners []model.Owner) (int, error) {
	now := time.Now().UTC()
	for _, own := range owners {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO owners (id, display_name, email, updated_at) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET display_name = $2, email = $3, updated_at = $4`,
			own.ID, own.DisplayName, own.Email, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert owner %s", own.ID)
		}
	}
	return len(owners), nil
}

func (s *PostgresStore) GetOwner(ctx context.Context, id string) (*model.Owner, error) {
	var own model.Owner
	err := s.pool.QueryRow(ctx,
		`SELECT id, display_name, email FROM owners WHERE id = $1`, id,
	).Scan(&own.ID, &own.DisplayName, &own.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get owner %s", id)
	}
	return &own, nil
}

func (s *PostgresStore) ListOwners(ctx context.Context) ([]model.Owner, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, display_name, email FROM owners ORDER BY display_name, id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list owners")
	}
	defer rows.Close()

	var owners []model.Owner
	for rows.Next() {
		var own model.Owner
		if err := rows.Scan(&own.ID, &own.DisplayName, &own.Email); err != nil {
			return nil, eris.Wrap(err, "postgres: scan owner")
		}
		owners = append(owners, own)
	}
	return owners, eris.Wrap(rows.Err(), "postgres: list owners iterate")
}

func (s *PostgresStore) ReadSettings(ctx context.Context) (*scoring.SettingsRecord, error) {
	var rec scoring.SettingsRecord
	err := s.pool.QueryRow(ctx,
		`SELECT version, payload, updated_at FROM scoring_settings WHERE id = 1`,
	).Scan(&rec.Version, &rec.Payload, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: read settings")
	}
	return &rec, nil
}

func (s *PostgresStore) WriteSettings(ctx context.Context, rec *scoring.SettingsRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scoring_settings (id, version, payload, updated_at) VALUES (1, $1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET version = $1, payload = $2, updated_at = $3`,
		rec.Version, rec.Payload, rec.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: write settings")
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO forecast_snapshots (id, period, payload, taken_at) VALUES ($1, $2, $3, $4)`,
		snap.ID, snap.Period, snap.Payload, snap.TakenAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save snapshot %s", snap.ID)
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, period, payload, taken_at FROM forecast_snapshots
		 ORDER BY taken_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.Period, &snap.Payload, &snap.TakenAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		snaps = append(snaps, snap)
	}
	return snaps, eris.Wrap(rows.Err(), "postgres: list snapshots iterate")
}
