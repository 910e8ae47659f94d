// Package msgapi exposes the messaging service over HTTP JSON.
// Every route is bearer-token authenticated with the same verifier the
// websocket handshake uses.
package msgapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"linkup/cmd/identity"
	"linkup/cmd/internal/messaging"
	"linkup/cmd/internal/notify"
	"linkup/cmd/internal/realtime"
	v1 "linkup/shared/contracts/realtime/v1"
)

const defaultMaxBodyBytes = 64 << 10 // 64 KiB

// Handler wires messaging HTTP endpoints to the messaging service.
type Handler struct {
	log     *slog.Logger
	auth    *realtime.Authenticator
	svc     *messaging.Service
	fanout  *notify.Fanout
	metrics *realtime.Metrics

	maxBodyBytes int64
}

// NewHandler constructs a messaging API handler.
// Fanout and metrics may be nil; a nil fanout leaves the notification
// routes unregistered.
func NewHandler(log *slog.Logger, auth *realtime.Authenticator, svc *messaging.Service, fanout *notify.Fanout, metrics *realtime.Metrics) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if auth == nil {
		return nil, errors.New("msgapi: nil authenticator")
	}
	if svc == nil {
		return nil, errors.New("msgapi: nil service")
	}
	return &Handler{
		log:          log,
		auth:         auth,
		svc:          svc,
		fanout:       fanout,
		metrics:      metrics,
		maxBodyBytes: defaultMaxBodyBytes,
	}, nil
}

// Register wires messaging routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /messages/send", h.handleSend)
	mux.HandleFunc("DELETE /messages/{id}", h.handleUnsend)
	mux.HandleFunc("GET /messages/unread/total", h.handleUnreadTotal)
	mux.HandleFunc("GET /messages/unread", h.handleUnreadByConversation)
	mux.HandleFunc("GET /conversations", h.handleListConversations)
	mux.HandleFunc("GET /conversations/resolve/{userId}", h.handleResolve)
	mux.HandleFunc("GET /conversations/{id}/messages", h.handleListMessages)
	mux.HandleFunc("POST /conversations/{id}/read", h.handleMarkRead)
	h.registerNotifications(mux)
}

// ---- request/response shapes ----

type sendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Text       string `json:"text"`
}

type conversationResponse struct {
	ID            string    `json:"id"`
	Participants  [2]string `json:"participants"`
	LastMessageID string    `json:"last_message_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type sendMessageResponse struct {
	Conversation conversationResponse `json:"conversation"`
	Message      v1.MessageView       `json:"message"`
}

type messagesResponse struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []v1.MessageView `json:"messages"`
}

type markReadResponse struct {
	ConversationID string `json:"conversation_id"`
	Updated        int64  `json:"updated"`
}

type unsendResponse struct {
	Message v1.MessageView `json:"message"`
}

type unreadTotalResponse struct {
	Total int64 `json:"total"`
}

type unreadByConversationResponse struct {
	Unread map[string]int64 `json:"unread"`
}

func toConversationResponse(c messaging.Conversation) conversationResponse {
	return conversationResponse{
		ID:            c.ID,
		Participants:  [2]string{c.UserA, c.UserB},
		LastMessageID: c.LastMessageID,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

// ---- handlers ----

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	msg, conv, err := h.svc.SendMessage(r.Context(), user.ID, req.ReceiverID, req.Text)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.metrics.MessageSent()
	writeJSON(w, http.StatusCreated, sendMessageResponse{
		Conversation: toConversationResponse(conv),
		Message:      messaging.ViewOf(msg),
	})
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	other := strings.TrimSpace(r.PathValue("userId"))
	conv, err := h.svc.ResolveOrCreateConversation(r.Context(), user.ID, other)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toConversationResponse(conv))
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	convs, err := h.svc.ListConversations(r.Context(), user.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	out := make([]conversationResponse, 0, len(convs))
	for _, c := range convs {
		out = append(out, toConversationResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	convID := strings.TrimSpace(r.PathValue("id"))
	msgs, err := h.svc.ListMessages(r.Context(), convID, user.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	views := make([]v1.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messaging.ViewOf(m))
	}
	writeJSON(w, http.StatusOK, messagesResponse{ConversationID: convID, Messages: views})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	convID := strings.TrimSpace(r.PathValue("id"))
	updated, err := h.svc.MarkMessagesAsRead(r.Context(), convID, user.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, markReadResponse{ConversationID: convID, Updated: updated})
}

func (h *Handler) handleUnsend(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	msgID := strings.TrimSpace(r.PathValue("id"))
	msg, err := h.svc.UnsendMessage(r.Context(), msgID, user.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, unsendResponse{Message: messaging.ViewOf(msg)})
}

func (h *Handler) handleUnreadTotal(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	total, err := h.svc.TotalUnread(r.Context(), user.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, unreadTotalResponse{Total: total})
}

func (h *Handler) handleUnreadByConversation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	unread, err := h.svc.UnreadByConversation(r.Context(), user.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, unreadByConversationResponse{Unread: unread})
}

// ---- helpers ----

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (identity.User, bool) {
	user, err := h.auth.Authenticate(r)
	if err != nil {
		if errors.Is(err, realtime.ErrTokenMissing) || errors.Is(err, realtime.ErrTokenInvalid) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "valid bearer token required")
			return identity.User{}, false
		}
		h.log.Error("msgapi.auth.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return identity.User{}, false
	}
	return user, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case messaging.IsValidation(err):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case messaging.IsForbidden(err):
		writeError(w, http.StatusForbidden, "forbidden", "not allowed")
	case messaging.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "no such resource")
	default:
		h.log.Error("msgapi.request.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
