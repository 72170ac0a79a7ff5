package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/clipforge/internal/db"
	"github.com/lalithlochan/clipforge/internal/jobs"
	"github.com/lalithlochan/clipforge/internal/redis"
)

// CreateJobRequest is the body of POST /v1/jobs.
type CreateJobRequest struct {
	Module         string          `json:"module"`
	Params         json.RawMessage `json:"params"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// JobResponse is returned after creating a job.
type JobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateJob handles POST /v1/jobs.
// The idempotency token comes from the Idempotency-Key header or the
// idempotency_key field; replays answer 200 with X-Idempotency-Replayed.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}
	if key == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing idempotency key",
			"send an Idempotency-Key header or an idempotency_key field")
		return
	}

	reserved := false
	if h.idempotency != nil {
		cached, err := h.idempotency.CheckOrReserve(ctx, p.UserID, key)
		switch {
		case errors.Is(err, redis.ErrDuplicateRequest):
			h.writeError(w, http.StatusConflict, "duplicate_request",
				"Request is already being processed",
				"Another request with this idempotency key is in progress")
			return
		case err != nil:
			h.logger.Warn("idempotency check failed, proceeding",
				zap.Error(err),
				zap.String("idempotency_key", key),
			)
		case cached != nil:
			if h.replayCached(w, r, p.UserID, req.Module, cached) {
				return
			}
		default:
			reserved = true
		}
	}

	job, created, err := h.jobs.Create(ctx, jobs.CreateInput{
		UserID:         p.UserID,
		Email:          p.Email,
		IdempotencyKey: key,
		Module:         req.Module,
		Params:         req.Params,
	})
	if err != nil {
		if reserved {
			if relErr := h.idempotency.Release(ctx, p.UserID, key); relErr != nil {
				h.logger.Warn("failed to release idempotency key", zap.Error(relErr))
			}
		}
		h.writeCreateError(w, err, req.Module)
		return
	}

	if h.idempotency != nil {
		result := &redis.IdempotencyResult{
			JobID:      job.ID.String(),
			Module:     job.Module,
			StatusCode: http.StatusCreated,
		}
		if err := h.idempotency.Store(ctx, p.UserID, key, result, redis.IdempotencyTTL); err != nil {
			h.logger.Warn("failed to store idempotency result",
				zap.Error(err),
				zap.String("idempotency_key", key),
			)
		}
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
		w.Header().Set("X-Idempotency-Replayed", "true")
	}
	w.Header().Set("Location", "/v1/jobs/"+job.ID.String())
	writeJSON(w, status, JobResponse{ID: job.ID.String(), Status: job.Status})
}

// replayCached answers from the Redis cache. It returns false when the
// cached job cannot be loaded, in which case the store decides.
func (h *Handler) replayCached(w http.ResponseWriter, r *http.Request, userID, module string, cached *redis.IdempotencyResult) bool {
	if cached.Module != "" && cached.Module != module {
		h.writeError(w, http.StatusUnprocessableEntity, "idempotency_key_reused",
			"Idempotency key reused", jobs.ErrIdempotencyKeyReused.Error())
		return true
	}
	id, err := uuid.Parse(cached.JobID)
	if err != nil {
		return false
	}
	job, err := h.jobs.Get(r.Context(), userID, id)
	if err != nil {
		h.logger.Warn("cached idempotent job not loadable",
			zap.Error(err),
			zap.String("job_id", cached.JobID),
		)
		return false
	}
	w.Header().Set("X-Idempotency-Replayed", "true")
	w.Header().Set("Location", "/v1/jobs/"+job.ID.String())
	writeJSON(w, http.StatusOK, JobResponse{ID: job.ID.String(), Status: job.Status})
	return true
}

func (h *Handler) writeCreateError(w http.ResponseWriter, err error, module string) {
	switch {
	case errors.Is(err, jobs.ErrUnknownModule):
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Unknown module",
			"module must be one of: "+strings.Join(jobs.Modules(), ", "))
	case errors.Is(err, jobs.ErrInvalidParams):
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid params", err.Error())
	case errors.Is(err, jobs.ErrMissingIdempotencyKey):
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing idempotency key", err.Error())
	case errors.Is(err, jobs.ErrIdempotencyKeyReused):
		h.writeError(w, http.StatusUnprocessableEntity, "idempotency_key_reused", "Idempotency key reused", err.Error())
	default:
		h.logger.Error("failed to create job",
			zap.Error(err),
			zap.String("module", module),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create job", "")
	}
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid job ID", "ID must be a valid UUID")
		return
	}

	job, err := h.jobs.Get(r.Context(), p.UserID, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Job not found", "")
			return
		}
		h.logger.Error("failed to get job", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get job", "")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /v1/jobs?limit=20&offset=0
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)

	list, err := h.jobs.List(r.Context(), p.UserID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list jobs", zap.Error(err), zap.String("user_id", p.UserID))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list jobs", "")
		return
	}
	if list == nil {
		list = []*db.Job{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":   list,
		"limit":  limit,
		"offset": offset,
		"count":  len(list),
	})
}

// JobCallback handles POST /v1/jobs/{id}/callback from a generation
// provider. It is authenticated by the shared X-Callback-Token secret.
func (h *Handler) JobCallback(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Callback-Token")
	if h.callbackSecret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.callbackSecret)) != 1 {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid callback token", "")
		return
	}

	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid job ID", "ID must be a valid UUID")
		return
	}

	var update jobs.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	job, err := h.jobs.Apply(r.Context(), id, update)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "not_found", "Job not found", "")
		case errors.Is(err, jobs.ErrInvalidTransition), errors.Is(err, db.ErrConflict):
			h.writeError(w, http.StatusConflict, "invalid_transition", "Job cannot move to that status", err.Error())
		case errors.Is(err, jobs.ErrInvalidUpdate):
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid update", err.Error())
		default:
			h.logger.Error("failed to apply callback", zap.Error(err), zap.String("id", idStr))
			h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to update job", "")
		}
		return
	}

	h.logger.Info("provider callback applied",
		zap.String("job_id", idStr),
		zap.String("status", job.Status),
	)
	writeJSON(w, http.StatusOK, job)
}
