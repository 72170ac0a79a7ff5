package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/clipforge/internal/db"
	"github.com/lalithlochan/clipforge/internal/metrics"
)

// defaultDeliveryTimeout bounds each SNS publish and SES send made while a
// status update is being applied.
const defaultDeliveryTimeout = 5 * time.Second

// EventPublisher broadcasts terminal job events to downstream consumers.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, job *db.Job) (string, error)
}

// Fanout turns job status changes into in-app notifications, SNS events
// and completion emails.
type Fanout struct {
	store  Store
	events EventPublisher
	mailer Mailer
	logger *zap.Logger

	deliveryTimeout time.Duration
}

type FanoutOption func(*Fanout)

func WithEventPublisher(p EventPublisher) FanoutOption {
	return func(f *Fanout) { f.events = p }
}

func WithMailer(m Mailer) FanoutOption {
	return func(f *Fanout) { f.mailer = m }
}

// WithDeliveryTimeout overrides the per-call deadline for SNS and SES.
func WithDeliveryTimeout(d time.Duration) FanoutOption {
	return func(f *Fanout) {
		if d > 0 {
			f.deliveryTimeout = d
		}
	}
}

func NewFanout(store Store, logger *zap.Logger, opts ...FanoutOption) *Fanout {
	f := &Fanout{store: store, logger: logger, deliveryTimeout: defaultDeliveryTimeout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// JobChanged implements jobs.Notifier. Delivery failures are logged and
// never propagate back into the status update. Each outbound AWS call gets
// its own deadline so a slow provider cannot hold the caller.
func (f *Fanout) JobChanged(ctx context.Context, prev, job *db.Job) {
	if n := notificationFor(prev, job); n != nil {
		if err := f.store.Add(ctx, n); err != nil {
			f.logger.Error("failed to add job notification",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		} else {
			metrics.RecordNotificationCreated(n.Type)
		}
	}

	if prev.Status == job.Status || !job.IsTerminal() {
		return
	}

	if f.events != nil {
		pubCtx, cancel := context.WithTimeout(ctx, f.deliveryTimeout)
		msgID, err := f.events.PublishJobEvent(pubCtx, job)
		cancel()
		if err != nil {
			f.logger.Error("failed to publish job event",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		} else {
			f.logger.Debug("job event published",
				zap.String("job_id", job.ID.String()),
				zap.String("message_id", msgID),
			)
		}
	}

	if f.mailer != nil && job.NotifyEmail != "" {
		mailCtx, cancel := context.WithTimeout(ctx, f.deliveryTimeout)
		err := f.mailer.Send(mailCtx, emailFor(job))
		cancel()
		if err != nil {
			f.logger.Error("failed to email job result",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		}
	}
}

func actionURL(job *db.Job) *string {
	u := "/dashboard/jobs/" + job.ID.String()
	return &u
}

// notificationFor picks at most one notification per change. Terminal
// transitions win over a preview arriving in the same update.
func notificationFor(prev, job *db.Job) *db.Notification {
	meta := &db.NotificationMetadata{JobID: job.ID.String(), JobType: job.Module}
	n := &db.Notification{UserID: job.UserID, ActionURL: actionURL(job), Metadata: meta}

	switch {
	case job.Status == db.StatusCompleted && prev.Status != db.StatusCompleted:
		n.Type = db.NotificationJobCompleted
		n.Title = "Generation complete"
		n.Message = fmt.Sprintf("Your %s job has finished. Open it to play or download the result.", job.Module)
	case job.Status == db.StatusFailed && prev.Status != db.StatusFailed:
		n.Type = db.NotificationSystem
		n.Title = "Generation failed"
		if job.ErrorMessage != nil {
			n.Message = *job.ErrorMessage
		}
	case job.Status == db.StatusProcessing && prev.PreviewURL == nil && job.PreviewURL != nil:
		n.Type = db.NotificationJobReady
		n.Title = "Preview ready"
		n.Message = fmt.Sprintf("A preview of your %s job is ready.", job.Module)
	default:
		return nil
	}
	return n
}

func emailFor(job *db.Job) Email {
	if job.Status == db.StatusCompleted {
		body := fmt.Sprintf("Your %s job %s has finished.\n\n", job.Module, job.ID)
		for _, u := range job.FinalURLs {
			body += u + "\n"
		}
		return Email{To: job.NotifyEmail, Subject: "Your ClipForge generation is ready", Body: body}
	}

	reason := "Generation failed."
	if job.ErrorMessage != nil {
		reason = *job.ErrorMessage
	}
	return Email{
		To:      job.NotifyEmail,
		Subject: "Your ClipForge generation failed",
		Body:    fmt.Sprintf("Your %s job %s failed: %s\n", job.Module, job.ID, reason),
	}
}
