// Package snapshot records a daily estimate for every stored activity
// profile and prunes old snapshots and inactive users.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/ashureev/ecotrace/internal/config"
	"github.com/ashureev/ecotrace/internal/domain"
	"github.com/ashureev/ecotrace/internal/footprint"
	"github.com/ashureev/ecotrace/internal/observability"
	"github.com/ashureev/ecotrace/internal/shared"
	"github.com/ashureev/ecotrace/internal/store"
)

// Result summarizes one worker run.
type Result struct {
	RunID           string
	Snapshots       int
	Failed          int
	SnapshotsPruned int64
	UsersDeleted    int64
}

// UserDeletedFunc is called for every user removed by the inactivity sweep.
type UserDeletedFunc func(userID string)

// Worker runs snapshot passes on a cron schedule.
type Worker struct {
	repo          store.Repository
	cfg           config.SnapshotConfig
	retry         config.RetryConfig
	now           func() time.Time
	onUserDeleted UserDeletedFunc
}

// NewWorker creates a snapshot worker.
func NewWorker(repo store.Repository, cfg config.SnapshotConfig, retry config.RetryConfig) *Worker {
	return &Worker{
		repo:  repo,
		cfg:   cfg,
		retry: retry,
		now:   time.Now,
	}
}

// SetUserDeletedCallback registers fn to run after each swept user is removed.
func (w *Worker) SetUserDeletedCallback(fn UserDeletedFunc) {
	w.onUserDeleted = fn
}

// Start schedules RunOnce on the configured cron spec (UTC) until ctx is
// done. Runs never overlap.
func (w *Worker) Start(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(w.cfg.Schedule, func() { w.run(ctx) }); err != nil {
		return fmt.Errorf("invalid snapshot schedule %q: %w", w.cfg.Schedule, err)
	}
	c.Start()
	slog.Info("Snapshot worker started", "schedule", w.cfg.Schedule, "retention", w.cfg.Retention)

	go func() {
		<-ctx.Done()
		stopped := c.Stop()
		<-stopped.Done()
		slog.Info("Snapshot worker shutting down", "reason", ctx.Err())
	}()
	return nil
}

func (w *Worker) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runCtx := ctx
	if w.cfg.WorkerRunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.cfg.WorkerRunTimeout)
		defer cancel()
	}
	if _, err := w.RunOnce(runCtx); err != nil {
		slog.Error("Snapshot run failed", "error", err)
	}
}

// RunOnce snapshots every stored profile for the current UTC day, then
// applies retention. A failed profile does not stop the run.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	now := w.now()
	res := Result{RunID: uuid.NewString()}
	log := slog.With("run_id", res.RunID)

	profiles, err := w.repo.ListProfiles(ctx)
	if err != nil {
		observability.RecordSnapshotRun(false, now)
		return res, fmt.Errorf("list profiles: %w", err)
	}

	var errs []error
	for _, p := range profiles {
		snap := domain.NewSnapshot(p.UserID, footprint.Calculate(p.Activities), now)
		err := shared.RetryOnConflict(ctx, w.retry.DatabaseMaxRetries, w.retry.DatabaseRetryBaseDelay, func() error {
			return w.repo.UpsertSnapshot(ctx, snap)
		})
		if err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("snapshot %s: %w", p.UserID, err))
			log.Warn("Snapshot failed", "error", err, "user_id", p.UserID)
			continue
		}
		res.Snapshots++
	}

	if w.cfg.Retention > 0 {
		cutoff := now.Add(-w.cfg.Retention).UTC().Format(domain.SnapshotDayLayout)
		res.SnapshotsPruned, err = w.repo.DeleteSnapshotsBefore(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune snapshots: %w", err))
		}
	}

	if w.cfg.UserInactivityTTL > 0 {
		deleted, err := w.repo.DeleteInactiveUsers(ctx, w.cfg.UserInactivityTTL)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete inactive users: %w", err))
		}
		res.UsersDeleted = int64(len(deleted))
		if w.onUserDeleted != nil {
			for _, userID := range deleted {
				w.onUserDeleted(userID)
			}
		}
	}

	runErr := errors.Join(errs...)
	observability.RecordSnapshotRun(runErr == nil, now)
	log.Info("Snapshot run completed",
		"snapshots", res.Snapshots,
		"failed", res.Failed,
		"snapshots_pruned", res.SnapshotsPruned,
		"users_deleted", res.UsersDeleted)
	return res, runErr
}
