package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"linkup/cmd/identity/ids"
	v1 "linkup/shared/contracts/realtime/v1"
)

// Pusher delivers an event to a user's live connection, if any.
// Implementations must be fire-and-forget: no error return, no blocking on
// slow transports. The concrete implementation is realtime.Router.
type Pusher interface {
	Push(userID string, env v1.Envelope) bool
}

// NopPusher is a Pusher that drops everything; used by tests and tools that
// exercise persistence without a live gateway.
type NopPusher struct{}

// Push implements Pusher.
func (NopPusher) Push(string, v1.Envelope) bool { return false }

// Service is the operation surface the HTTP layer calls.
//
// Every operation writes durably first and pushes second; a failed push is
// logged and swallowed, never surfaced to the caller. "Best-effort live,
// durable-eventually": an offline recipient recovers the fact later through
// the conversation list and unread counts.
type Service struct {
	log    *slog.Logger
	store  Store
	unread *UnreadAggregator
	push   Pusher
}

// NewService constructs a Service over store, pushing live events through push.
func NewService(log *slog.Logger, store Store, push Pusher) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	if store == nil {
		return nil, errors.New("messaging: nil store")
	}
	if push == nil {
		push = NopPusher{}
	}
	return &Service{
		log:    log,
		store:  store,
		unread: NewUnreadAggregator(store),
		push:   push,
	}, nil
}

// SendMessage resolves the conversation for {senderID, receiverID}, appends
// the message, and pushes it to the receiver's live connection if present.
func (s *Service) SendMessage(ctx context.Context, senderID, receiverID, text string) (Message, Conversation, error) {
	conv, err := s.store.ResolveOrCreateConversation(ctx, senderID, receiverID, time.Now().UTC())
	if err != nil {
		return Message{}, Conversation{}, err
	}

	msg, err := s.store.AppendMessage(ctx, AppendInput{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Text:           text,
	})
	if err != nil {
		return Message{}, Conversation{}, err
	}

	s.pushEvent(conv.Other(senderID), v1.TypeMessage, v1.MessagePayload{
		ConversationID: conv.ID,
		Message:        ViewOf(msg),
	})

	return msg, conv, nil
}

// ResolveOrCreateConversation returns the canonical conversation between the
// caller and otherUserID, creating it when absent.
func (s *Service) ResolveOrCreateConversation(ctx context.Context, userID, otherUserID string) (Conversation, error) {
	return s.store.ResolveOrCreateConversation(ctx, userID, otherUserID, time.Now().UTC())
}

// MarkMessagesAsRead flips the seen flag on every unseen message addressed to
// readerID in the conversation, then pushes a read receipt to the other
// participant. Returns the number of messages flipped.
func (s *Service) MarkMessagesAsRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	conv, err := s.store.ConversationByID(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.Has(readerID) {
		return 0, fmt.Errorf("%w: not a participant", ErrForbidden)
	}

	n, err := s.store.MarkSeen(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}

	s.pushEvent(conv.Other(readerID), v1.TypeMessageRead, v1.MessageReadPayload{
		ConversationID: conv.ID,
		ReaderID:       readerID,
	})

	return n, nil
}

// UnsendMessage tombstones a message owned by requesterID and tells both
// participants' live connections that it is gone.
func (s *Service) UnsendMessage(ctx context.Context, messageID, requesterID string) (Message, error) {
	msg, err := s.store.SoftDelete(ctx, messageID, requesterID, time.Now().UTC())
	if err != nil {
		return Message{}, err
	}

	conv, err := s.store.ConversationByID(ctx, msg.ConversationID)
	if err != nil {
		// The tombstone is durable; delivery is best-effort anyway.
		s.log.Warn("message.unsend.conversation_lookup_fail", "message_id", messageID, "err", err)
		return msg, nil
	}

	payload := v1.MessageDeletedPayload{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
	}
	s.pushEvent(conv.UserA, v1.TypeMessageDeleted, payload)
	s.pushEvent(conv.UserB, v1.TypeMessageDeleted, payload)

	return msg, nil
}

// ListConversations returns userID's conversations, most recent first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	return s.store.ListConversations(ctx, userID)
}

// ListMessages returns the conversation's messages in chronological order,
// provided userID participates in it.
func (s *Service) ListMessages(ctx context.Context, conversationID, userID string) ([]Message, error) {
	conv, err := s.store.ConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Has(userID) {
		return nil, fmt.Errorf("%w: not a participant", ErrForbidden)
	}
	return s.store.ListMessages(ctx, conversationID)
}

// TotalUnread returns the total unseen count for userID.
func (s *Service) TotalUnread(ctx context.Context, userID string) (int64, error) {
	return s.unread.Total(ctx, userID)
}

// UnreadByConversation returns per-conversation unseen counts for userID.
func (s *Service) UnreadByConversation(ctx context.Context, userID string) (map[string]int64, error) {
	return s.unread.ByConversation(ctx, userID)
}

// pushEvent builds a v1 envelope and hands it to the Pusher.
// Failures are logged and swallowed; the durable write already succeeded.
func (s *Service) pushEvent(userID, typ string, payload any) {
	if userID == "" {
		return
	}

	env, err := NewEnvelope(typ, payload, time.Now().UTC())
	if err != nil {
		s.log.Warn("push.envelope.fail", "type", typ, "err", err)
		return
	}

	if !s.push.Push(userID, env) {
		s.log.Debug("push.skip", "type", typ, "user_id", userID)
	}
}

// NewEnvelope wraps payload into a v1 wire envelope with a fresh ULID.
func NewEnvelope(typ string, payload any, now time.Time) (v1.Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return v1.Envelope{}, err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return v1.Envelope{}, err
	}
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      id,
		TS:      now,
		Payload: b,
	}, nil
}

// ViewOf converts a Message into its wire representation. Tombstones carry
// identity, sender, and timestamps only.
func ViewOf(m Message) v1.MessageView {
	view := v1.MessageView{
		ID:        m.ID,
		Sender:    m.SenderID,
		CreatedAt: m.CreatedAt,
	}
	if at, ok := m.Body.DeletedAt(); ok {
		view.Deleted = true
		view.DeletedAt = at
		return view
	}
	if text, ok := m.Body.Text(); ok {
		view.Text = text
	}
	return view
}
