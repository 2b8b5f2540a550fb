package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendmatch/leadgen-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "Denver", "CO", 25.0, 100, pgxmock.AnyArg(),
			"queued", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), model.RunInput{
		City:        "Denver",
		State:       "CO",
		RadiusMiles: 25,
		MaxLeads:    100,
		Industries:  []string{"vending machines"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkRunning_WinsAndLoses(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1, started_at = \$2`).
		WithArgs("running", pgxmock.AnyArg(), pgxmock.AnyArg(), "run-1", "queued").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	claimed, err := s.MarkRunning(context.Background(), "run-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	mock.ExpectExec(`UPDATE runs SET status = \$1, started_at = \$2`).
		WithArgs("running", pgxmock.AnyArg(), pgxmock.AnyArg(), "run-1", "queued").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	claimed, err = s.MarkRunning(context.Background(), "run-1")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateProgress_GuardedByStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Zero rows touched (run already terminal) is not an error.
	mock.ExpectExec(`UPDATE runs SET total = \$1, message = \$2`).
		WithArgs(42, "Searching", pgxmock.AnyArg(), "run-1", "running").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateProgress(context.Background(), "run-1", 42, "Searching")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ForceFail(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1, message = \$2`).
		WithArgs("failed", "Auto-stopped: exceeded timeout", pgxmock.AnyArg(),
			"run-1", "done", "failed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	stopped, err := s.ForceFail(context.Background(), "run-1", "Auto-stopped: exceeded timeout")
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_RejectsNonTerminal(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	err := s.FinishRun(context.Background(), "run-1", model.RunStatusRunning, "nope")
	require.Error(t, err)
}

func TestPostgresStore_InsertLeads_CountsOnlyInserted(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO leads`).
		WithArgs(pgxmock.AnyArg(), "run-1", "vending machines", "Acme Vending",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO leads`).
		WithArgs(pgxmock.AnyArg(), "run-1", "vending machines", "Acme Vending LLC",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	n, err := s.InsertLeads(context.Background(), []model.Lead{
		{RunID: "run-1", Industry: "vending machines", BusinessName: "Acme Vending", DedupeKey: "acme"},
		{RunID: "run-1", Industry: "vending machines", BusinessName: "Acme Vending LLC", DedupeKey: "acme"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
