package msgapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"linkup/cmd/internal/notify"
)

const defaultNotificationLimit = 50

type emitNotificationRequest struct {
	RecipientID string `json:"recipient_id"`
	Kind        string `json:"type"`
	PostID      string `json:"post_id,omitempty"`
	StoryID     string `json:"story_id,omitempty"`
}

type notificationResponse struct {
	ID      string    `json:"id"`
	ActorID string    `json:"actor_id"`
	Kind    string    `json:"type"`
	PostID  string    `json:"post_id,omitempty"`
	StoryID string    `json:"story_id,omitempty"`
	Read    bool      `json:"read"`
	Created time.Time `json:"created_at"`
}

type markNotificationsReadResponse struct {
	Updated int64 `json:"updated"`
}

func toNotificationResponse(n notify.Notification) notificationResponse {
	return notificationResponse{
		ID:      n.ID,
		ActorID: n.ActorID,
		Kind:    n.Kind,
		PostID:  n.PostID,
		StoryID: n.StoryID,
		Read:    n.Read,
		Created: n.CreatedAt,
	}
}

func (h *Handler) registerNotifications(mux *http.ServeMux) {
	if h.fanout == nil {
		return
	}
	mux.HandleFunc("POST /notifications/emit", h.handleEmitNotification)
	mux.HandleFunc("GET /notifications", h.handleListNotifications)
	mux.HandleFunc("POST /notifications/read", h.handleMarkNotificationsRead)
}

// handleEmitNotification fans out a social event. The authenticated caller is
// always the actor; the recipient comes from the body.
func (h *Handler) handleEmitNotification(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req emitNotificationRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	n, err := h.fanout.Notify(r.Context(), notify.NotifyInput{
		RecipientID: req.RecipientID,
		ActorID:     user.ID,
		Kind:        req.Kind,
		PostID:      req.PostID,
		StoryID:     req.StoryID,
	})
	if err != nil {
		if notify.IsValidation(err) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		h.log.Error("msgapi.notify.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, toNotificationResponse(n))
}

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	limit := defaultNotificationLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	rows, err := h.fanout.List(r.Context(), user.ID, limit)
	if err != nil {
		h.log.Error("msgapi.notifications.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	out := make([]notificationResponse, 0, len(rows))
	for _, n := range rows {
		out = append(out, toNotificationResponse(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleMarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	updated, err := h.fanout.MarkAllRead(r.Context(), user.ID)
	if err != nil {
		h.log.Error("msgapi.notifications.read.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, markNotificationsReadResponse{Updated: updated})
}
