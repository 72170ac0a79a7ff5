// Package jobs owns the lifecycle of generation jobs: creation with
// idempotency tokens, owner-scoped reads, and status updates that respect
// the queued -> processing -> completed|failed state machine.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/clipforge/internal/db"
	"github.com/lalithlochan/clipforge/internal/metrics"
)

var (
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")
	// ErrIdempotencyKeyReused means the key was already spent on a different module.
	ErrIdempotencyKeyReused = errors.New("idempotency key reused for a different request")
	ErrInvalidUpdate        = errors.New("invalid job update")
)

const defaultFailureMessage = "Generation failed. Please try again."

// Repository is the storage contract shared by the Postgres and in-memory stores.
type Repository interface {
	CreateJob(ctx context.Context, job *db.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*db.Job, error)
	GetJobByIdempotencyKey(ctx context.Context, userID, key string) (*db.Job, error)
	ListJobsByUser(ctx context.Context, userID string, limit, offset int) ([]*db.Job, error)
	UpdateJob(ctx context.Context, job *db.Job, expectedStatus string) error
	ClaimDispatchable(ctx context.Context, limit int) ([]*db.Job, error)
	RescheduleDispatch(ctx context.Context, id uuid.UUID, at time.Time) error
	ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int, error)
	ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]*db.Job, error)
}

// Enqueuer publishes a created job to an external queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *db.Job) (string, error)
}

// Notifier is told about every persisted status change.
type Notifier interface {
	JobChanged(ctx context.Context, prev, job *db.Job)
}

// CreateInput carries everything needed to create a job.
type CreateInput struct {
	UserID         string
	Email          string
	IdempotencyKey string
	Module         string
	Params         json.RawMessage
}

// Update is a status report from a provider.
type Update struct {
	Status       string   `json:"status"`
	Progress     *int     `json:"progress,omitempty"`
	PreviewURL   *string  `json:"preview_url,omitempty"`
	FinalURLs    []string `json:"final_urls,omitempty"`
	ErrorMessage *string  `json:"error_message,omitempty"`
}

// Service coordinates job storage, queueing and notifications.
type Service struct {
	repo     Repository
	enqueuer Enqueuer // nil if SQS not configured
	notifier Notifier // nil disables notifications
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithEnqueuer publishes created jobs through e.
func WithEnqueuer(e Enqueuer) Option {
	return func(s *Service) { s.enqueuer = e }
}

// WithNotifier reports status changes to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService creates a job service
func NewService(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the request and stores a queued job. If the user already
// created a job with the same idempotency key, that job is returned and
// created is false.
func (s *Service) Create(ctx context.Context, in CreateInput) (job *db.Job, created bool, err error) {
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if in.IdempotencyKey == "" {
		return nil, false, ErrMissingIdempotencyKey
	}

	params, err := NormalizeParams(in.Module, in.Params)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.lookupByKey(ctx, in)
	if err != nil || existing != nil {
		return existing, false, err
	}

	job = &db.Job{
		ID:             uuid.New(),
		UserID:         in.UserID,
		Module:         in.Module,
		Params:         params,
		Status:         db.StatusQueued,
		IdempotencyKey: in.IdempotencyKey,
		NotifyEmail:    in.Email,
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		if errors.Is(err, db.ErrConflict) {
			// Lost a race against a concurrent request with the same key.
			existing, lookupErr := s.lookupByKey(ctx, in)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("create job: %w", err)
	}

	metrics.RecordJobCreated(job.Module)
	s.logger.Info("job created",
		zap.String("job_id", job.ID.String()),
		zap.String("user_id", job.UserID),
		zap.String("module", job.Module),
	)

	if s.enqueuer != nil {
		if msgID, err := s.enqueuer.Enqueue(ctx, job); err != nil {
			// The dispatcher claims from the store, so the queue event is advisory.
			s.logger.Warn("failed to enqueue job event",
				zap.Error(err),
				zap.String("job_id", job.ID.String()),
			)
		} else {
			s.logger.Debug("job event enqueued",
				zap.String("job_id", job.ID.String()),
				zap.String("message_id", msgID),
			)
		}
	}

	return job, true, nil
}

func (s *Service) lookupByKey(ctx context.Context, in CreateInput) (*db.Job, error) {
	existing, err := s.repo.GetJobByIdempotencyKey(ctx, in.UserID, in.IdempotencyKey)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if existing.Module != in.Module {
		return nil, ErrIdempotencyKeyReused
	}
	metrics.RecordIdempotencyHit()
	return existing, nil
}

// Get returns a job owned by userID. Jobs of other users are reported as
// not found.
func (s *Service) Get(ctx context.Context, userID string, id uuid.UUID) (*db.Job, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, fmt.Errorf("job %s: %w", id, db.ErrNotFound)
	}
	return job, nil
}

// List returns the user's job history, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]*db.Job, error) {
	return s.repo.ListJobsByUser(ctx, userID, limit, offset)
}

// Apply moves a job to the reported state. An empty Status means "same
// status", which is only legal while processing (progress updates).
func (s *Service) Apply(ctx context.Context, id uuid.UUID, u Update) (*db.Job, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := job.Clone()

	target := u.Status
	if target == "" {
		target = job.Status
	}
	if !ValidStatus(target) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidUpdate, target)
	}
	if !CanTransition(job.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, target)
	}

	job.Status = target
	if u.Progress != nil {
		p := min(max(*u.Progress, 0), 100)
		job.Progress = &p
	}
	if u.PreviewURL != nil && *u.PreviewURL != "" {
		job.PreviewURL = u.PreviewURL
	}

	switch target {
	case db.StatusProcessing:
		if job.Progress == nil {
			zero := 0
			job.Progress = &zero
		}
	case db.StatusCompleted:
		if len(u.FinalURLs) == 0 {
			return nil, fmt.Errorf("%w: completed requires at least one final url", ErrInvalidUpdate)
		}
		job.FinalURLs = append([]string(nil), u.FinalURLs...)
		done := 100
		job.Progress = &done
		job.ErrorMessage = nil
	case db.StatusFailed:
		msg := defaultFailureMessage
		if u.ErrorMessage != nil && strings.TrimSpace(*u.ErrorMessage) != "" {
			msg = *u.ErrorMessage
		}
		job.ErrorMessage = &msg
	}

	if err := s.repo.UpdateJob(ctx, job, prev.Status); err != nil {
		return nil, err
	}

	if prev.Status != job.Status {
		metrics.RecordJobTransition(job.Module, job.Status, s.now().Sub(job.CreatedAt))
		s.logger.Info("job status changed",
			zap.String("job_id", job.ID.String()),
			zap.String("from", prev.Status),
			zap.String("to", job.Status),
		)
	}

	if s.notifier != nil {
		s.notifier.JobChanged(ctx, prev, job)
	}

	return job, nil
}

// Fail marks a job failed with msg.
func (s *Service) Fail(ctx context.Context, id uuid.UUID, msg string) (*db.Job, error) {
	return s.Apply(ctx, id, Update{Status: db.StatusFailed, ErrorMessage: &msg})
}

// Claim hands up to limit queued jobs to the dispatcher.
func (s *Service) Claim(ctx context.Context, limit int) ([]*db.Job, error) {
	return s.repo.ClaimDispatchable(ctx, limit)
}

// Reschedule releases a claimed job for another dispatch attempt at at.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.repo.RescheduleDispatch(ctx, id, at)
}

// ReclaimStale releases queued jobs whose dispatch claim is older than
// claimedBefore so the dispatcher picks them up again.
func (s *Service) ReclaimStale(ctx context.Context, claimedBefore time.Time) (int, error) {
	return s.repo.ReleaseStaleClaims(ctx, claimedBefore)
}

// Overdue lists up to limit jobs still queued or processing that were
// created before createdBefore.
func (s *Service) Overdue(ctx context.Context, createdBefore time.Time, limit int) ([]*db.Job, error) {
	return s.repo.ListOverdue(ctx, createdBefore, limit)
}
