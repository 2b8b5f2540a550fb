// Package store persists runs and leads. Two backends exist: SQLite for
// single-machine use and Postgres for deployments with concurrent
// workers. Status-transition writes are guarded in SQL so a finished or
// force-failed run can never be mutated by a stale worker.
package store

import (
	"context"
	"time"

	"github.com/vendmatch/leadgen-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status      model.RunStatus `json:"status,omitempty"`
	Limit       int             `json:"limit,omitempty"`
	Offset      int             `json:"offset,omitempty"`
	OldestFirst bool            `json:"oldest_first,omitempty"`
}

// Store defines the persistence interface for the lead pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, input model.RunInput) (*model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	CountRunsByStatus(ctx context.Context, status model.RunStatus) (int, error)
	// StaleRunning returns running runs that started at or before cutoff.
	StaleRunning(ctx context.Context, cutoff time.Time) ([]model.Run, error)

	// Status transitions. Each is guarded by the current status:
	// MarkRunning claims a queued run and reports whether it won the
	// claim; UpdateProgress and FinishRun only touch runs still in the
	// running state and silently no-op otherwise; SetExternalJobID
	// writes to any non-terminal run so launchers can record the job
	// handle before the worker claims it;
	// ForceFail stops any non-terminal run, keeps its lead total, and
	// reports whether it changed anything.
	MarkRunning(ctx context.Context, runID string) (bool, error)
	UpdateProgress(ctx context.Context, runID string, total int, message string) error
	SetExternalJobID(ctx context.Context, runID, jobID string) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, message string) error
	ForceFail(ctx context.Context, runID string, message string) (bool, error)

	// Leads. InsertLeads skips duplicates on (run_id, dedupe_key) and
	// returns the number actually inserted.
	InsertLeads(ctx context.Context, leads []model.Lead) (int, error)
	CountLeads(ctx context.Context, runID string) (int, error)
	ListLeads(ctx context.Context, runID string) ([]model.Lead, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
