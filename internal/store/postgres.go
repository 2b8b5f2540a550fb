package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/vendmatch/leadgen-cli/internal/db"
	"github.com/vendmatch/leadgen-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

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

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	city            TEXT NOT NULL,
	state           TEXT NOT NULL,
	radius_miles    DOUBLE PRECISION NOT NULL,
	max_leads       INTEGER NOT NULL,
	industries      JSONB NOT NULL,
	status          TEXT NOT NULL DEFAULT 'queued',
	total           INTEGER NOT NULL DEFAULT 0,
	message         TEXT NOT NULL DEFAULT '',
	external_job_id TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS leads (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id         TEXT NOT NULL REFERENCES runs(id),
	industry       TEXT NOT NULL,
	business_name  TEXT NOT NULL,
	address        TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL DEFAULT '',
	zip            TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL DEFAULT '',
	website        TEXT NOT NULL DEFAULT '',
	source_url     TEXT NOT NULL DEFAULT '',
	distance_miles DOUBLE PRECISION,
	confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
	notes          TEXT NOT NULL DEFAULT '',
	contacted_at   TIMESTAMPTZ,
	manual_notes   TEXT NOT NULL DEFAULT '',
	dedupe_key     TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(run_id, dedupe_key)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_status_created ON runs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_leads_run_id ON leads(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

const pgRunColumns = `id, city, state, radius_miles, max_leads, industries,
	status, total, message, external_job_id, created_at, updated_at, started_at`

func (s *PostgresStore) CreateRun(ctx context.Context, input model.RunInput) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	industriesJSON, err := json.Marshal(input.Industries)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal industries")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, city, state, radius_miles, max_leads, industries, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, input.City, input.State, input.RadiusMiles, input.MaxLeads,
		industriesJSON, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		RunInput:  input,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRunColumns+` FROM runs WHERE id = $1`, runID)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("run not found")
	}
	return r, err
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + pgRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.OldestFirst {
		query += ` ORDER BY created_at ASC`
	} else {
		query += ` ORDER BY created_at DESC`
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) CountRunsByStatus(ctx context.Context, status model.RunStatus) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM runs WHERE status = $1`, string(status)).Scan(&n)
	return n, eris.Wrap(err, "postgres: count runs")
}

func (s *PostgresStore) StaleRunning(ctx context.Context, cutoff time.Time) ([]model.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRunColumns+` FROM runs
		 WHERE status = $1 AND started_at IS NOT NULL AND started_at <= $2`,
		string(model.RunStatusRunning), cutoff.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stale running")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: stale running iterate")
}

func (s *PostgresStore) MarkRunning(ctx context.Context, runID string) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, started_at = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
		string(model.RunStatusRunning), now, now, runID, string(model.RunStatusQueued),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark running %s", runID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, runID string, total int, message string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET total = $1, message = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
		total, message, time.Now().UTC(), runID, string(model.RunStatusRunning),
	)
	return eris.Wrapf(err, "postgres: update progress %s", runID)
}

func (s *PostgresStore) SetExternalJobID(ctx context.Context, runID, jobID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET external_job_id = $1, updated_at = $2 WHERE id = $3 AND status NOT IN ($4, $5)`,
		jobID, time.Now().UTC(), runID,
		string(model.RunStatusDone), string(model.RunStatusFailed),
	)
	return eris.Wrapf(err, "postgres: set external job id %s", runID)
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, message string) error {
	if !status.Terminal() {
		return eris.Errorf("postgres: finish run with non-terminal status %s", status)
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, message = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
		string(status), message, time.Now().UTC(), runID, string(model.RunStatusRunning),
	)
	return eris.Wrapf(err, "postgres: finish run %s", runID)
}

func (s *PostgresStore) ForceFail(ctx context.Context, runID string, message string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, message = $2, updated_at = $3
		 WHERE id = $4 AND status NOT IN ($5, $6)`,
		string(model.RunStatusFailed), message, time.Now().UTC(),
		runID, string(model.RunStatusDone), string(model.RunStatusFailed),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: force fail %s", runID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) InsertLeads(ctx context.Context, leads []model.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin insert leads")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	inserted := 0
	for _, l := range leads {
		id := l.ID
		if id == "" {
			id = uuid.New().String()
		}
		createdAt := l.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO leads (id, run_id, industry, business_name, address, city, state, zip,
				phone, website, source_url, distance_miles, confidence, notes, dedupe_key, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			 ON CONFLICT (run_id, dedupe_key) DO NOTHING`,
			id, l.RunID, l.Industry, l.BusinessName, l.Address, l.City, l.State, l.Zip,
			l.Phone, l.Website, l.SourceURL, l.DistanceMiles, l.Confidence, l.Notes,
			l.DedupeKey, createdAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: insert lead %s", l.BusinessName)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit insert leads")
	}
	return inserted, nil
}

func (s *PostgresStore) CountLeads(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM leads WHERE run_id = $1`, runID).Scan(&n)
	return n, eris.Wrap(err, "postgres: count leads")
}

func (s *PostgresStore) ListLeads(ctx context.Context, runID string) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, industry, business_name, address, city, state, zip,
			phone, website, source_url, distance_miles, confidence, notes,
			contacted_at, manual_notes, dedupe_key, created_at
		 FROM leads WHERE run_id = $1
		 ORDER BY confidence DESC, created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var l model.Lead
		err := rows.Scan(&l.ID, &l.RunID, &l.Industry, &l.BusinessName, &l.Address,
			&l.City, &l.State, &l.Zip, &l.Phone, &l.Website, &l.SourceURL,
			&l.DistanceMiles, &l.Confidence, &l.Notes, &l.ContactedAt, &l.ManualNotes,
			&l.DedupeKey, &l.CreatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var industriesJSON []byte

	err := row.Scan(&r.ID, &r.City, &r.State, &r.RadiusMiles, &r.MaxLeads,
		&industriesJSON, &r.Status, &r.Progress.Total, &r.Progress.Message,
		&r.Progress.ExternalJobID, &r.CreatedAt, &r.UpdatedAt, &r.StartedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}

	if err := json.Unmarshal(industriesJSON, &r.Industries); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal industries")
	}
	return &r, nil
}
