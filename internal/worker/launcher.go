package worker

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vendmatch/leadgen-cli/internal/model"
	"github.com/vendmatch/leadgen-cli/internal/store"
)

// Launcher starts processing for a promoted run.
type Launcher interface {
	Launch(ctx context.Context, run model.Run) error
}

// LocalLauncher processes promoted runs in-process on a bounded worker
// group. Call Wait before exiting to drain in-flight runs.
type LocalLauncher struct {
	orch *Orchestrator
	g    *errgroup.Group
	ctx  context.Context
}

// NewLocalLauncher creates a LocalLauncher allowing up to maxConcurrent
// simultaneous runs. The group context outlives individual Launch calls
// so a short-lived trigger (an HTTP request, a cron tick) does not
// cancel the runs it started.
func NewLocalLauncher(ctx context.Context, orch *Orchestrator, maxConcurrent int) *LocalLauncher {
	g, gctx := errgroup.WithContext(ctx)
	if maxConcurrent > 0 {
		g.SetLimit(maxConcurrent)
	}
	return &LocalLauncher{orch: orch, g: g, ctx: gctx}
}

// Launch implements Launcher.
func (l *LocalLauncher) Launch(_ context.Context, run model.Run) error {
	runID := run.ID
	l.g.Go(func() error {
		if err := l.orch.ProcessRun(l.ctx, runID); err != nil {
			zap.L().Error("run processing failed",
				zap.String("run_id", runID), zap.Error(err))
		}
		// Failures are recorded on the run itself; never tear down the
		// group over one bad run.
		return nil
	})
	return nil
}

// Wait blocks until all launched runs have finished.
func (l *LocalLauncher) Wait() error {
	return l.g.Wait()
}

// ActorStarter starts an external actor job. Satisfied by the Apify
// client.
type ActorStarter interface {
	StartActor(ctx context.Context, actorID string, input any) (string, error)
}

// ApifyLauncher hands promoted runs to an Apify actor and records the
// actor run id so the scheduler can abort it on timeout.
type ApifyLauncher struct {
	client  ActorStarter
	store   store.Store
	actorID string
}

// NewApifyLauncher creates an ApifyLauncher.
func NewApifyLauncher(client ActorStarter, st store.Store, actorID string) *ApifyLauncher {
	return &ApifyLauncher{client: client, store: st, actorID: actorID}
}

type actorInput struct {
	RunID string `json:"runId"`
}

// Launch implements Launcher.
func (l *ApifyLauncher) Launch(ctx context.Context, run model.Run) error {
	jobID, err := l.client.StartActor(ctx, l.actorID, actorInput{RunID: run.ID})
	if err != nil {
		return eris.Wrapf(err, "worker: start actor for run %s", run.ID)
	}

	if err := l.store.SetExternalJobID(ctx, run.ID, jobID); err != nil {
		zap.L().Warn("recording external job id failed",
			zap.String("run_id", run.ID),
			zap.String("job_id", jobID), zap.Error(err))
	}
	return nil
}
