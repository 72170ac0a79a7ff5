package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const jobColumns = `
	id, user_id, module, params, status, progress, preview_url,
	final_urls, error_message, idempotency_key, notify_email,
	attempt, next_dispatch_at, dispatched_at, created_at, updated_at`

// JobRepository handles database operations for generation jobs
type JobRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *DB, logger *zap.Logger) *JobRepository {
	return &JobRepository{
		db:     db,
		logger: logger,
	}
}

func scanJob(row pgx.Row) (*Job, error) {
	var job Job
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Module,
		&job.Params,
		&job.Status,
		&job.Progress,
		&job.PreviewURL,
		&job.FinalURLs,
		&job.ErrorMessage,
		&job.IdempotencyKey,
		&job.NotifyEmail,
		&job.Attempt,
		&job.NextDispatchAt,
		&job.DispatchedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]*Job, error) {
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return jobs, nil
}

// CreateJob inserts a new job. A duplicate (user_id, idempotency_key) pair
// returns ErrConflict.
func (r *JobRepository) CreateJob(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO jobs (
			id, user_id, module, params, status, idempotency_key, notify_email
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		job.ID,
		job.UserID,
		job.Module,
		job.Params,
		job.Status,
		job.IdempotencyKey,
		job.NotifyEmail,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("insert job: %w", ErrConflict)
	}
	if err != nil {
		r.logger.Error("failed to create job",
			zap.Error(err),
			zap.String("job_id", job.ID.String()),
		)
		return fmt.Errorf("insert job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by ID
func (r *JobRepository) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	return job, nil
}

// GetJobByIdempotencyKey finds the job a user already created with key.
func (r *JobRepository) GetJobByIdempotencyKey(ctx context.Context, userID, key string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE user_id = $1 AND idempotency_key = $2`

	job, err := scanJob(r.db.Pool().QueryRow(ctx, query, userID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job for key %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query job by idempotency key: %w", err)
	}
	return job, nil
}

// ListJobsByUser returns a user's jobs, newest first
func (r *JobRepository) ListJobsByUser(ctx context.Context, userID string, limit, offset int) ([]*Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	return collectJobs(rows)
}

// UpdateJob persists the status snapshot of job, but only if the stored
// status still equals expectedStatus.
func (r *JobRepository) UpdateJob(ctx context.Context, job *Job, expectedStatus string) error {
	query := `
		UPDATE jobs
		SET status = $1, progress = $2, preview_url = $3, final_urls = $4,
		    error_message = $5, updated_at = NOW()
		WHERE id = $6 AND status = $7
		RETURNING updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		job.Status,
		job.Progress,
		job.PreviewURL,
		job.FinalURLs,
		job.ErrorMessage,
		job.ID,
		expectedStatus,
	).Scan(&job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update job %s: %w", job.ID, ErrConflict)
	}
	if err != nil {
		r.logger.Error("failed to update job",
			zap.Error(err),
			zap.String("job_id", job.ID.String()),
		)
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// ClaimDispatchable locks up to limit queued, undispatched jobs, stamps
// them as dispatched and bumps their attempt counter.
func (r *JobRepository) ClaimDispatchable(ctx context.Context, limit int) ([]*Job, error) {
	query := `
		UPDATE jobs
		SET dispatched_at = NOW(), attempt = attempt + 1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = 'queued'
			  AND dispatched_at IS NULL
			  AND (next_dispatch_at IS NULL OR next_dispatch_at <= NOW())
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	return collectJobs(rows)
}

// RescheduleDispatch releases a claimed job so it is picked up again at.
func (r *JobRepository) RescheduleDispatch(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE jobs
		SET dispatched_at = NULL, next_dispatch_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'queued'
	`

	result, err := r.db.Pool().Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("reschedule job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("reschedule job %s: %w", id, ErrConflict)
	}
	return nil
}

// ReleaseStaleClaims returns queued jobs claimed before cutoff to the
// dispatch pool. A claim that old means the dispatcher died before the
// provider accepted the job.
func (r *JobRepository) ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		UPDATE jobs
		SET dispatched_at = NULL, next_dispatch_at = NULL, updated_at = NOW()
		WHERE status = 'queued'
		  AND dispatched_at IS NOT NULL
		  AND dispatched_at < $1
	`

	result, err := r.db.Pool().Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// ListOverdue returns up to limit queued or processing jobs created before cutoff.
func (r *JobRepository) ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]*Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status IN ('queued', 'processing')
		  AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue jobs: %w", err)
	}
	return collectJobs(rows)
}
