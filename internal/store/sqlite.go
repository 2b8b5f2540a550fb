package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/vendmatch/leadgen-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

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
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	city            TEXT NOT NULL,
	state           TEXT NOT NULL,
	radius_miles    REAL NOT NULL,
	max_leads       INTEGER NOT NULL,
	industries      TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'queued',
	total           INTEGER NOT NULL DEFAULT 0,
	message         TEXT NOT NULL DEFAULT '',
	external_job_id TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	started_at      DATETIME
);

CREATE TABLE IF NOT EXISTS leads (
	id             TEXT PRIMARY KEY,
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
	distance_miles REAL,
	confidence     REAL NOT NULL DEFAULT 0,
	notes          TEXT NOT NULL DEFAULT '',
	contacted_at   DATETIME,
	manual_notes   TEXT NOT NULL DEFAULT '',
	dedupe_key     TEXT NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(run_id, dedupe_key)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_status_created ON runs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_leads_run_id ON leads(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteRunColumns = `id, city, state, radius_miles, max_leads, industries,
	status, total, message, external_job_id, created_at, updated_at, started_at`

func (s *SQLiteStore) CreateRun(ctx context.Context, input model.RunInput) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	industriesJSON, err := json.Marshal(input.Industries)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal industries")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, city, state, radius_miles, max_leads, industries, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, input.City, input.State, input.RadiusMiles, input.MaxLeads,
		string(industriesJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		RunInput:  input,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
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
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) CountRunsByStatus(ctx context.Context, status model.RunStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE status = ?`, string(status)).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count runs")
}

func (s *SQLiteStore) StaleRunning(ctx context.Context, cutoff time.Time) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs
		 WHERE status = ? AND started_at IS NOT NULL AND started_at <= ?`,
		string(model.RunStatusRunning), cutoff.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stale running")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: stale running iterate")
}

func (s *SQLiteStore) MarkRunning(ctx context.Context, runID string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, started_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(model.RunStatusRunning), now, now, runID, string(model.RunStatusQueued),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: mark running %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpdateProgress(ctx context.Context, runID string, total int, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET total = ?, message = ?, updated_at = ? WHERE id = ? AND status = ?`,
		total, message, time.Now().UTC(), runID, string(model.RunStatusRunning),
	)
	return eris.Wrapf(err, "sqlite: update progress %s", runID)
}

func (s *SQLiteStore) SetExternalJobID(ctx context.Context, runID, jobID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET external_job_id = ?, updated_at = ? WHERE id = ? AND status NOT IN (?, ?)`,
		jobID, time.Now().UTC(), runID,
		string(model.RunStatusDone), string(model.RunStatusFailed),
	)
	return eris.Wrapf(err, "sqlite: set external job id %s", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, message string) error {
	if !status.Terminal() {
		return eris.Errorf("sqlite: finish run with non-terminal status %s", status)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, message = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(status), message, time.Now().UTC(), runID, string(model.RunStatusRunning),
	)
	return eris.Wrapf(err, "sqlite: finish run %s", runID)
}

func (s *SQLiteStore) ForceFail(ctx context.Context, runID string, message string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, message = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		string(model.RunStatusFailed), message, time.Now().UTC(),
		runID, string(model.RunStatusDone), string(model.RunStatusFailed),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: force fail %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) InsertLeads(ctx context.Context, leads []model.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert leads")
	}
	defer tx.Rollback() //nolint:errcheck

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

		res, err := tx.ExecContext(ctx,
			`INSERT INTO leads (id, run_id, industry, business_name, address, city, state, zip,
				phone, website, source_url, distance_miles, confidence, notes, dedupe_key, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(run_id, dedupe_key) DO NOTHING`,
			id, l.RunID, l.Industry, l.BusinessName, l.Address, l.City, l.State, l.Zip,
			l.Phone, l.Website, l.SourceURL, l.DistanceMiles, l.Confidence, l.Notes,
			l.DedupeKey, createdAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert lead %s", l.BusinessName)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert leads")
	}
	return inserted, nil
}

func (s *SQLiteStore) CountLeads(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leads WHERE run_id = ?`, runID).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count leads")
}

func (s *SQLiteStore) ListLeads(ctx context.Context, runID string) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, industry, business_name, address, city, state, zip,
			phone, website, source_url, distance_miles, confidence, notes,
			contacted_at, manual_notes, dedupe_key, created_at
		 FROM leads WHERE run_id = ?
		 ORDER BY confidence DESC, created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var l model.Lead
		var distance sql.NullFloat64
		var contacted sql.NullTime

		err := rows.Scan(&l.ID, &l.RunID, &l.Industry, &l.BusinessName, &l.Address,
			&l.City, &l.State, &l.Zip, &l.Phone, &l.Website, &l.SourceURL,
			&distance, &l.Confidence, &l.Notes, &contacted, &l.ManualNotes,
			&l.DedupeKey, &l.CreatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		if distance.Valid {
			l.DistanceMiles = &distance.Float64
		}
		if contacted.Valid {
			l.ContactedAt = &contacted.Time
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var industriesJSON string
	var startedAt sql.NullTime

	err := row.Scan(&r.ID, &r.City, &r.State, &r.RadiusMiles, &r.MaxLeads,
		&industriesJSON, &r.Status, &r.Progress.Total, &r.Progress.Message,
		&r.Progress.ExternalJobID, &r.CreatedAt, &r.UpdatedAt, &startedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(industriesJSON), &r.Industries); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal industries")
	}
	if startedAt.Valid {
		r.StartedAt = &startedAt.Time
	}
	return &r, nil
}
