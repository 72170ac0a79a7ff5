package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/clipforge/internal/db"
	"github.com/lalithlochan/clipforge/internal/metrics"
)

// dispatchFailedMessage is what the user sees when no provider would take the job.
const dispatchFailedMessage = "The generation service is unavailable right now. Please try again."

// jobTimedOutMessage is what the user sees when a job outlives JobDeadline.
const jobTimedOutMessage = "Generation took too long and was stopped. Please try again."

// Tracker is the slice of jobs.Service the dispatcher needs.
type Tracker interface {
	Claim(ctx context.Context, limit int) ([]*db.Job, error)
	Reschedule(ctx context.Context, id uuid.UUID, at time.Time) error
	Fail(ctx context.Context, id uuid.UUID, msg string) (*db.Job, error)
	ReclaimStale(ctx context.Context, claimedBefore time.Time) (int, error)
	Overdue(ctx context.Context, createdBefore time.Time, limit int) ([]*db.Job, error)
}

// Worker polls for queued jobs and submits them to a provider.
type Worker struct {
	jobs     Tracker
	provider Provider
	config   Config
	logger   *zap.Logger
	now      func() time.Time
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	RetryDelays  []time.Duration

	// ClaimLease is how long a queued job may stay claimed before the
	// dispatcher hands it out again.
	ClaimLease time.Duration

	// JobDeadline is the longest a job may stay queued or processing
	// before it is failed.
	JobDeadline time.Duration
}

func New(jobs Tracker, provider Provider, cfg Config, logger *zap.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ClaimLease == 0 {
		cfg.ClaimLease = 5 * time.Minute
	}
	if cfg.JobDeadline == 0 {
		cfg.JobDeadline = 30 * time.Minute
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = []time.Duration{
			10 * time.Second, // attempt 1
			30 * time.Second, // attempt 2
			2 * time.Minute,  // attempt 3 and later
		}
	}

	return &Worker{
		jobs:     jobs,
		provider: provider,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return
		case <-ticker.C:
			w.Sweep(ctx)
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch claims one batch of jobs and dispatches each of them.
func (w *Worker) ProcessBatch(ctx context.Context) int {
	claimed, err := w.jobs.Claim(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to claim jobs", zap.Error(err))
		return 0
	}
	for _, job := range claimed {
		w.dispatch(ctx, job)
	}
	return len(claimed)
}

// Sweep releases claims older than ClaimLease and fails jobs that are
// still unfinished after JobDeadline.
func (w *Worker) Sweep(ctx context.Context) (reclaimed, expired int) {
	now := w.now()

	reclaimed, err := w.jobs.ReclaimStale(ctx, now.Add(-w.config.ClaimLease))
	if err != nil {
		w.logger.Error("failed to reclaim stale jobs", zap.Error(err))
	} else if reclaimed > 0 {
		w.logger.Warn("reclaimed stale dispatch claims", zap.Int("count", reclaimed))
	}

	overdue, err := w.jobs.Overdue(ctx, now.Add(-w.config.JobDeadline), w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to list overdue jobs", zap.Error(err))
		return reclaimed, 0
	}
	for _, job := range overdue {
		if _, err := w.jobs.Fail(ctx, job.ID, jobTimedOutMessage); err != nil {
			// A provider callback may have finished the job meanwhile.
			w.logger.Warn("failed to expire job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
			continue
		}
		metrics.RecordJobExpired(job.Module)
		w.logger.Info("job expired",
			zap.String("job_id", job.ID.String()),
			zap.String("status", job.Status),
			zap.Duration("age", now.Sub(job.CreatedAt)),
		)
		expired++
	}
	return reclaimed, expired
}

func (w *Worker) dispatch(ctx context.Context, job *db.Job) {
	if job.Attempt > w.config.MaxAttempts {
		// Reclaimed more often than it may be dispatched.
		w.failDispatch(ctx, job)
		return
	}

	err := w.provider.Submit(ctx, job)
	if err == nil {
		w.logger.Info("job dispatched",
			zap.String("job_id", job.ID.String()),
			zap.String("module", job.Module),
			zap.Int("attempt", job.Attempt),
		)
		return
	}

	metrics.RecordDispatchFailure(job.Module)
	w.logger.Error("failed to dispatch job",
		zap.Error(err),
		zap.String("job_id", job.ID.String()),
		zap.Int("attempt", job.Attempt),
	)

	if job.Attempt >= w.config.MaxAttempts {
		w.failDispatch(ctx, job)
		return
	}

	next := w.calculateNextRetry(job.Attempt)
	if rerr := w.jobs.Reschedule(ctx, job.ID, next); rerr != nil {
		w.logger.Error("failed to reschedule job",
			zap.String("job_id", job.ID.String()),
			zap.Error(rerr),
		)
	}
}

func (w *Worker) failDispatch(ctx context.Context, job *db.Job) {
	if _, err := w.jobs.Fail(ctx, job.ID, dispatchFailedMessage); err != nil {
		w.logger.Error("failed to mark job failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		return
	}
	w.logger.Info("job failed after dispatch attempts",
		zap.String("job_id", job.ID.String()),
		zap.Int("attempts", job.Attempt),
	)
}

// calculateNextRetry picks the delay for the given attempt number.
func (w *Worker) calculateNextRetry(attempt int) time.Time {
	idx := attempt - 1
	if idx >= len(w.config.RetryDelays) {
		idx = len(w.config.RetryDelays) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return w.now().Add(w.config.RetryDelays[idx])
}
