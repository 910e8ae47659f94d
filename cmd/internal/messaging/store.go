package messaging

import (
	"context"
	"time"
)

// AppendInput describes a message append request.
type AppendInput struct {
	ConversationID string
	SenderID       string
	Text           string
	Now            time.Time
}

// Store is the durable persistence boundary for conversations and messages.
//
// Requirements:
//   - ResolveOrCreateConversation: at most one conversation per unordered
//     participant pair, enforced by a uniqueness constraint on the normalized
//     pair key; the loser of a creation race re-reads and returns the winner's
//     row (never a duplicate, never a merge).
//   - AppendMessage: the message row is durable before the conversation's
//     last-message link is updated (append-then-link). A stale link is
//     acceptable; a lost message is not.
//   - MarkSeen: one bulk monotonic update, idempotent, never a
//     read-modify-write loop in application code.
//   - ListMessages: chronological ascending; soft-deleted entries carry no text.
//   - Unread counts: computed fresh per call, never served from a cache that
//     can lag a completed MarkSeen/AppendMessage.
type Store interface {
	ResolveOrCreateConversation(ctx context.Context, userA, userB string, now time.Time) (Conversation, error)
	ConversationByID(ctx context.Context, id string) (Conversation, error)
	// ListConversations returns userID's conversations, most recently
	// updated first.
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)

	AppendMessage(ctx context.Context, in AppendInput) (Message, error)
	MessageByID(ctx context.Context, id string) (Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)

	// MarkSeen flips seen=true on every unseen message in the conversation
	// not sent by readerID. Returns the number of rows flipped.
	MarkSeen(ctx context.Context, conversationID, readerID string) (int64, error)

	// SoftDelete tombstones a message owned by requesterID: deletion
	// timestamp set, text cleared, seen flag left untouched.
	SoftDelete(ctx context.Context, messageID, requesterID string, now time.Time) (Message, error)

	// TotalUnread counts unseen messages addressed to userID across all of
	// userID's conversations.
	TotalUnread(ctx context.Context, userID string) (int64, error)
	// UnreadByConversation returns a conversationID -> count mapping covering
	// every conversation userID participates in (zero counts included).
	UnreadByConversation(ctx context.Context, userID string) (map[string]int64, error)

	Close() error
}
