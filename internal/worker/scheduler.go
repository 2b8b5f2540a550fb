package worker

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vendmatch/leadgen-cli/internal/model"
	"github.com/vendmatch/leadgen-cli/internal/resilience"
	"github.com/vendmatch/leadgen-cli/internal/store"
)

const (
	defaultMaxConcurrent = 2
	defaultRunTimeout    = 30 * time.Minute

	timeoutMessage = "Auto-stopped: exceeded timeout"
)

// Aborter cancels an in-flight external job. Satisfied by the Apify
// client; nil disables aborts.
type Aborter interface {
	AbortRun(ctx context.Context, jobID string) error
}

// SchedulerConfig tunes the guardrails.
type SchedulerConfig struct {
	// MaxConcurrent caps simultaneously running runs.
	MaxConcurrent int
	// RunTimeout force-fails runs that have been running longer than this.
	RunTimeout time.Duration
}

// Scheduler enforces the run guardrails: it times out stuck runs and
// promotes queued runs into free concurrency slots, oldest first.
type Scheduler struct {
	store         store.Store
	launcher      Launcher
	aborter       Aborter
	maxConcurrent int
	runTimeout    time.Duration
}

// NewScheduler creates a Scheduler. aborter may be nil.
func NewScheduler(st store.Store, launcher Launcher, aborter Aborter, cfg SchedulerConfig) *Scheduler {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	return &Scheduler{
		store:         st,
		launcher:      launcher,
		aborter:       aborter,
		maxConcurrent: maxConcurrent,
		runTimeout:    timeout,
	}
}

// CycleResult reports what one scheduler pass did.
type CycleResult struct {
	TimedOut  []string `json:"timed_out,omitempty"`
	Triggered []string `json:"triggered,omitempty"`
	Running   int      `json:"running"`
}

// Cycle runs one scheduler pass: stop overdue runs, then fill free
// slots with the oldest queued runs.
func (s *Scheduler) Cycle(ctx context.Context) (*CycleResult, error) {
	result := &CycleResult{}

	cutoff := time.Now().UTC().Add(-s.runTimeout)
	stale, err := s.store.StaleRunning(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: list stale runs")
	}
	for _, run := range stale {
		s.stopOverdue(ctx, run)
		result.TimedOut = append(result.TimedOut, run.ID)
	}

	running, err := s.store.CountRunsByStatus(ctx, model.RunStatusRunning)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: count running")
	}
	result.Running = running

	slots := s.maxConcurrent - running
	if slots <= 0 {
		return result, nil
	}

	queued, err := s.store.ListRuns(ctx, store.RunFilter{
		Status:      model.RunStatusQueued,
		OldestFirst: true,
		Limit:       slots,
	})
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: list queued")
	}

	for _, run := range queued {
		if err := s.launcher.Launch(ctx, run); err != nil {
			zap.L().Error("launch failed",
				zap.String("run_id", run.ID), zap.Error(err))
			continue
		}
		result.Triggered = append(result.Triggered, run.ID)
		result.Running++
	}

	return result, nil
}

// stopOverdue force-fails one overdue run, aborting its external job
// first when one is recorded. The abort is best-effort: the run is
// stopped either way.
func (s *Scheduler) stopOverdue(ctx context.Context, run model.Run) {
	log := zap.L().With(zap.String("run_id", run.ID))

	if jobID := run.Progress.ExternalJobID; jobID != "" && s.aborter != nil {
		abortCfg := resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Second}
		err := resilience.Do(ctx, abortCfg, func(ctx context.Context) error {
			return s.aborter.AbortRun(ctx, jobID)
		})
		if err != nil {
			log.Warn("external job abort failed",
				zap.String("job_id", jobID), zap.Error(err))
		}
	}

	stopped, err := s.store.ForceFail(ctx, run.ID, timeoutMessage)
	if err != nil {
		log.Error("timeout stop failed", zap.Error(err))
		return
	}
	if stopped {
		log.Info("run timed out",
			zap.Duration("timeout", s.runTimeout),
			zap.Int("leads_kept", run.Progress.Total))
	}
}
