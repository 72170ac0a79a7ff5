package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lalithlochan/clipforge/internal/storage"
)

// UploadRequest is the body of POST /v1/uploads.
type UploadRequest struct {
	ContentType string `json:"content_type"`
}

// CreateUpload handles POST /v1/uploads and returns a presigned PUT URL.
func (h *Handler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	if h.uploads == nil {
		h.writeError(w, http.StatusServiceUnavailable, "uploads_unavailable", "Uploads are not configured", "")
		return
	}

	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	up, err := h.uploads.PresignUpload(r.Context(), p.UserID, req.ContentType)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedContentType) {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Unsupported content type", err.Error())
			return
		}
		h.logger.Error("failed to presign upload", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "storage_error", "Failed to create upload", "")
		return
	}

	writeJSON(w, http.StatusCreated, up)
}
