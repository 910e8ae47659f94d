package v1

import "time"

// ---- Payloads ----

// MessageView is the wire representation of a persisted message.
// Soft-deleted messages never carry their original text on the wire.
type MessageView struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text,omitempty"`
	Deleted   bool      `json:"deleted,omitempty"`
	DeletedAt time.Time `json:"deleted_at,omitzero"`
	CreatedAt time.Time `json:"created_at"`
}

// MessagePayload delivers a new message to the receiving participant.
type MessagePayload struct {
	ConversationID string      `json:"conversation_id"`
	Message        MessageView `json:"message"`
}

// MessageReadPayload tells the original sender who read the conversation.
type MessageReadPayload struct {
	ConversationID string `json:"conversation_id"`
	ReaderID       string `json:"reader_id"`
}

// MessageDeletedPayload tells both participants that a message was unsent.
type MessageDeletedPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

// TypingRequestPayload is the client -> server typing indicator.
type TypingRequestPayload struct {
	ConversationID string `json:"conversation_id"`
	ToUserID       string `json:"to_user_id"`
}

// TypingEventPayload is the server -> client typing indicator relay.
type TypingEventPayload struct {
	ConversationID string `json:"conversation_id"`
	FromUserID     string `json:"from_user_id"`
}

// ActorView identifies the user who triggered a notification.
type ActorView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// NotificationPayload delivers a social event to its recipient.
type NotificationPayload struct {
	Kind    string    `json:"type"`
	Actor   ActorView `json:"actor"`
	PostID  string    `json:"post_id,omitempty"`
	StoryID string    `json:"story_id,omitempty"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
