package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/clipforge/internal/ai"
	"github.com/lalithlochan/clipforge/internal/auth"
	"github.com/lalithlochan/clipforge/internal/db"
	"github.com/lalithlochan/clipforge/internal/jobs"
	"github.com/lalithlochan/clipforge/internal/notify"
	"github.com/lalithlochan/clipforge/internal/redis"
	"github.com/lalithlochan/clipforge/internal/reveal"
	"github.com/lalithlochan/clipforge/internal/storage"
)

// JobService is the part of jobs.Service the handlers use.
type JobService interface {
	Create(ctx context.Context, in jobs.CreateInput) (*db.Job, bool, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (*db.Job, error)
	List(ctx context.Context, userID string, limit, offset int) ([]*db.Job, error)
	Apply(ctx context.Context, id uuid.UUID, u jobs.Update) (*db.Job, error)
}

// Idempotency reserves and caches job creations per (user, key).
type Idempotency interface {
	CheckOrReserve(ctx context.Context, userID, key string) (*redis.IdempotencyResult, error)
	Store(ctx context.Context, userID, key string, result *redis.IdempotencyResult, ttl time.Duration) error
	Release(ctx context.Context, userID, key string) error
}

// ChatCompleter produces a full assistant reply for a conversation.
type ChatCompleter interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
}

// UploadPresigner issues direct-to-bucket upload URLs.
type UploadPresigner interface {
	PresignUpload(ctx context.Context, userID, contentType string) (*storage.Upload, error)
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger         *zap.Logger
	jobs           JobService
	notifications  notify.Store
	idempotency    Idempotency     // nil if Redis not configured
	chat           ChatCompleter   // nil if AI not configured
	uploads        UploadPresigner // nil if S3 not configured
	callbackSecret string
	revealDelay    time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

func WithIdempotency(i Idempotency) Option {
	return func(h *Handler) { h.idempotency = i }
}

func WithChat(c ChatCompleter) Option {
	return func(h *Handler) { h.chat = c }
}

func WithUploads(u UploadPresigner) Option {
	return func(h *Handler) { h.uploads = u }
}

// WithCallbackSecret sets the shared secret providers send in X-Callback-Token.
func WithCallbackSecret(secret string) Option {
	return func(h *Handler) { h.callbackSecret = secret }
}

// WithRevealDelay sets the per-character delay of chat replies.
func WithRevealDelay(d time.Duration) Option {
	return func(h *Handler) { h.revealDelay = d }
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, jobService JobService, notifications notify.Store, opts ...Option) *Handler {
	h := &Handler{
		logger:        logger,
		jobs:          jobService,
		notifications: notifications,
		revealDelay:   reveal.DefaultDelay,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// principal returns the authenticated caller or writes a 401.
func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", "missing principal")
		return nil, false
	}
	return p, true
}

// pagination parses limit/offset with defaults 20/0 and a max limit of 100.
func pagination(r *http.Request) (limit, offset int) {
	limit = 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	writeProblem(w, status, errType, title, detail)
}

func writeProblem(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
