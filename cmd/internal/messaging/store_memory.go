package messaging

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"linkup/cmd/identity/ids"
)

// InMemoryStore is the dev/test fallback when DB is not configured.
// It implements the full Store contract, including pair-key uniqueness,
// under one mutex.
type InMemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation // by conversation ID
	byPair        map[string]string        // pair key -> conversation ID
	messages      map[string]*Message      // by message ID
	byConv        map[string][]string      // conversation ID -> message IDs, append order
}

// NewInMemoryStore constructs an empty in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]*Conversation),
		byPair:        make(map[string]string),
		messages:      make(map[string]*Message),
		byConv:        make(map[string][]string),
	}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// ResolveOrCreateConversation finds or creates the canonical conversation for
// the unordered pair {userA, userB}.
func (s *InMemoryStore) ResolveOrCreateConversation(ctx context.Context, userA, userB string, now time.Time) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	low, high := NormalizePair(userA, userB)
	if low == "" || high == "" {
		return Conversation{}, fmt.Errorf("%w: missing participant", ErrValidation)
	}
	if low == high {
		return Conversation{}, ErrSelfConversation
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := low + "|" + high
	if id, ok := s.byPair[key]; ok {
		return *s.conversations[id], nil
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Conversation{}, err
	}

	c := &Conversation{
		ID:        id,
		UserA:     low,
		UserB:     high,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[id] = c
	s.byPair[key] = id
	return *c, nil
}

// ConversationByID returns the conversation for id.
func (s *InMemoryStore) ConversationByID(ctx context.Context, id string) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	return *c, nil
}

// ListConversations returns userID's conversations, most recently updated first.
func (s *InMemoryStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Conversation, 0, 8)
	for _, c := range s.conversations {
		if c.Has(userID) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// AppendMessage persists a message and then bumps the conversation link.
func (s *InMemoryStore) AppendMessage(ctx context.Context, in AppendInput) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Message{}, fmt.Errorf("%w: message text is required", ErrValidation)
	}
	if strings.TrimSpace(in.SenderID) == "" {
		return Message{}, fmt.Errorf("%w: missing sender", ErrValidation)
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[in.ConversationID]
	if !ok {
		return Message{}, fmt.Errorf("%w: conversation %s", ErrNotFound, in.ConversationID)
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Message{}, err
	}

	m := &Message{
		ID:             id,
		ConversationID: c.ID,
		SenderID:       in.SenderID,
		Body:           ActiveBody(text),
		CreatedAt:      now,
	}
	s.messages[id] = m
	s.byConv[c.ID] = append(s.byConv[c.ID], id)

	c.LastMessageID = id
	c.UpdatedAt = now
	return *m, nil
}

// MessageByID returns the message for id.
func (s *InMemoryStore) MessageByID(ctx context.Context, id string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return Message{}, fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	return *m, nil
}

// ListMessages returns the conversation's messages in chronological order.
func (s *InMemoryStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}

	msgIDs := s.byConv[conversationID]
	out := make([]Message, 0, len(msgIDs))
	for _, id := range msgIDs {
		out = append(out, *s.messages[id])
	}
	return out, nil
}

// MarkSeen flips seen=true on unseen messages not sent by readerID.
// The whole update happens under one lock acquisition, so two concurrent
// calls cannot interleave into a partial state.
func (s *InMemoryStore) MarkSeen(ctx context.Context, conversationID, readerID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return 0, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}

	var n int64
	for _, id := range s.byConv[conversationID] {
		m := s.messages[id]
		if m.SenderID != readerID && !m.Seen {
			m.Seen = true
			n++
		}
	}
	return n, nil
}

// SoftDelete tombstones a message owned by requesterID.
// Calling it again on an already-deleted message returns the existing
// tombstone without touching the original deletion timestamp.
func (s *InMemoryStore) SoftDelete(ctx context.Context, messageID, requesterID string, now time.Time) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return Message{}, fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	if m.SenderID != requesterID {
		return Message{}, fmt.Errorf("%w: only the sender can unsend a message", ErrForbidden)
	}
	if m.Body.Deleted() {
		return *m, nil
	}

	m.Body = DeletedBody(now)
	return *m, nil
}

// TotalUnread counts unseen messages addressed to userID.
func (s *InMemoryStore) TotalUnread(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, c := range s.conversations {
		if !c.Has(userID) {
			continue
		}
		n += s.unreadLocked(c.ID, userID)
	}
	return n, nil
}

// UnreadByConversation returns per-conversation unseen counts for userID.
func (s *InMemoryStore) UnreadByConversation(ctx context.Context, userID string) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int64)
	for _, c := range s.conversations {
		if !c.Has(userID) {
			continue
		}
		out[c.ID] = s.unreadLocked(c.ID, userID)
	}
	return out, nil
}

func (s *InMemoryStore) unreadLocked(conversationID, userID string) int64 {
	var n int64
	for _, id := range s.byConv[conversationID] {
		m := s.messages[id]
		if m.SenderID != userID && !m.Seen {
			n++
		}
	}
	return n
}
