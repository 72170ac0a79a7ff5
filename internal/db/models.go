package db

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a row does not exist or is not visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional update lost a race.
	ErrConflict = errors.New("conflict: row changed concurrently")
)

// Job is a unit of asynchronous generation work
type Job struct {
	ID             uuid.UUID       `json:"id"`
	UserID         string          `json:"user_id"`
	Module         string          `json:"module"`
	Params         json.RawMessage `json:"params"`
	Status         string          `json:"status"`
	Progress       *int            `json:"progress,omitempty"`
	PreviewURL     *string         `json:"preview_url,omitempty"`
	FinalURLs      []string        `json:"final_urls,omitempty"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	IdempotencyKey string          `json:"-"`
	NotifyEmail    string          `json:"-"`
	Attempt        int             `json:"-"`
	NextDispatchAt *time.Time      `json:"-"`
	DispatchedAt   *time.Time      `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsTerminal reports whether the job reached completed or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Clone returns a deep copy so callers can mutate without sharing slices.
func (j *Job) Clone() *Job {
	c := *j
	if j.Params != nil {
		c.Params = append(json.RawMessage(nil), j.Params...)
	}
	if j.FinalURLs != nil {
		c.FinalURLs = append([]string(nil), j.FinalURLs...)
	}
	if j.Progress != nil {
		p := *j.Progress
		c.Progress = &p
	}
	if j.PreviewURL != nil {
		s := *j.PreviewURL
		c.PreviewURL = &s
	}
	if j.ErrorMessage != nil {
		s := *j.ErrorMessage
		c.ErrorMessage = &s
	}
	return &c
}

// Job status constants
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Module identifiers
const (
	ModuleImageToVideo = "image-to-video"
	ModuleImage        = "image"
	ModuleTextToSpeech = "text-to-speech"
	ModuleAudioToVideo = "audio-to-video"
	ModuleUGCVideo     = "ugc-video"
)

// Notification is an in-app notification shown in the dashboard bell
type Notification struct {
	ID        uuid.UUID             `json:"id"`
	UserID    string                `json:"-"`
	Type      string                `json:"type"`
	Title     string                `json:"title"`
	Message   string                `json:"message"`
	Timestamp time.Time             `json:"timestamp"`
	IsRead    bool                  `json:"isRead"`
	ActionURL *string               `json:"actionUrl,omitempty"`
	Metadata  *NotificationMetadata `json:"metadata,omitempty"`
}

// NotificationMetadata is informational only; nothing branches on it.
type NotificationMetadata struct {
	JobID   string  `json:"jobId,omitempty"`
	Credits int     `json:"credits,omitempty"`
	Amount  float64 `json:"amount,omitempty"`
	JobType string  `json:"jobType,omitempty"`
}

// Notification type constants
const (
	NotificationJobReady       = "job_ready"
	NotificationJobCompleted   = "job_completed"
	NotificationCreditAdded    = "credit_added"
	NotificationPaymentSuccess = "payment_success"
	NotificationLowCredits     = "low_credits"
	NotificationSystem         = "system"
	NotificationWelcome        = "welcome"
	NotificationEviction       = "eviction"
)

// ValidNotificationType reports whether t is one of the known types.
func ValidNotificationType(t string) bool {
	switch t {
	case NotificationJobReady, NotificationJobCompleted, NotificationCreditAdded,
		NotificationPaymentSuccess, NotificationLowCredits, NotificationSystem,
		NotificationWelcome, NotificationEviction:
		return true
	}
	return false
}
