package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/clipforge/internal/db"
)

// ListNotifications handles GET /v1/notifications?limit=20&offset=0
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)

	list, err := h.notifications.List(ctx, p.UserID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list notifications", zap.Error(err), zap.String("user_id", p.UserID))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list notifications", "")
		return
	}
	unread, err := h.notifications.UnreadCount(ctx, p.UserID)
	if err != nil {
		h.logger.Error("failed to count unread notifications", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list notifications", "")
		return
	}
	if list == nil {
		list = []*db.Notification{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":         list,
		"unread_count": unread,
		"limit":        limit,
		"offset":       offset,
		"count":        len(list),
	})
}

// MarkNotificationRead handles POST /v1/notifications/{id}/read
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.notificationID(w, r)
	if !ok {
		return
	}

	if err := h.notifications.MarkRead(ctx, p.UserID, id); err != nil {
		h.notificationError(w, err, "Failed to mark notification read")
		return
	}
	unread, err := h.notifications.UnreadCount(ctx, p.UserID)
	if err != nil {
		h.notificationError(w, err, "Failed to count unread notifications")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":           id.String(),
		"isRead":       true,
		"unread_count": unread,
	})
}

// MarkAllNotificationsRead handles POST /v1/notifications/read-all
func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	n, err := h.notifications.MarkAllRead(r.Context(), p.UserID)
	if err != nil {
		h.notificationError(w, err, "Failed to mark notifications read")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"marked":       n,
		"unread_count": 0,
	})
}

// DeleteNotification handles DELETE /v1/notifications/{id}
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.notificationID(w, r)
	if !ok {
		return
	}

	if err := h.notifications.Delete(r.Context(), p.UserID, id); err != nil {
		h.notificationError(w, err, "Failed to delete notification")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":     id.String(),
		"status": "deleted",
	})
}

// ClearNotifications handles DELETE /v1/notifications
func (h *Handler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	n, err := h.notifications.Clear(r.Context(), p.UserID)
	if err != nil {
		h.notificationError(w, err, "Failed to clear notifications")
		return
	}

	h.logger.Info("notifications cleared",
		zap.String("user_id", p.UserID),
		zap.Int("count", n),
	)
	writeJSON(w, http.StatusOK, map[string]any{"cleared": n})
}

func (h *Handler) notificationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification ID", "ID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) notificationError(w http.ResponseWriter, err error, title string) {
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
		return
	}
	h.logger.Error(title, zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, "database_error", title, "")
}
