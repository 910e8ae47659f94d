package messaging

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestResolveOrCreateOrderIndependent(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	c1, err := st.ResolveOrCreateConversation(ctx, "alice", "bob", now)
	if err != nil {
		t.Fatalf("resolve(alice,bob): %v", err)
	}
	c2, err := st.ResolveOrCreateConversation(ctx, "bob", "alice", now)
	if err != nil {
		t.Fatalf("resolve(bob,alice): %v", err)
	}
	c3, err := st.ResolveOrCreateConversation(ctx, "alice", "bob", now)
	if err != nil {
		t.Fatalf("resolve repeat: %v", err)
	}

	if c1.ID != c2.ID || c2.ID != c3.ID {
		t.Fatalf("expected one canonical conversation, got %s / %s / %s", c1.ID, c2.ID, c3.ID)
	}
	if c1.UserA >= c1.UserB {
		t.Fatalf("participants not normalized: %s >= %s", c1.UserA, c1.UserB)
	}
}

func TestResolveOrCreateRejectsSelf(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	_, err := st.ResolveOrCreateConversation(context.Background(), "alice", "alice", time.Time{})
	if !IsValidation(err) {
		t.Fatalf("resolve(alice,alice) err=%v, want validation error", err)
	}

	_, err = st.ResolveOrCreateConversation(context.Background(), "", "bob", time.Time{})
	if !IsValidation(err) {
		t.Fatalf("resolve(\"\",bob) err=%v, want validation error", err)
	}
}

func TestResolveOrCreateConcurrent(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	ctx := context.Background()

	const workers = 32
	idsSeen := make([]string, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			c, err := st.ResolveOrCreateConversation(ctx, a, b, time.Now().UTC())
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			idsSeen[i] = c.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if idsSeen[i] != idsSeen[0] {
			t.Fatalf("worker %d got conversation %s, worker 0 got %s", i, idsSeen[i], idsSeen[0])
		}
	}

	convs, err := st.ListConversations(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected exactly one conversation, got %d", len(convs))
	}
}

func TestAppendRequiresText(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	ctx := context.Background()

	conv, err := st.ResolveOrCreateConversation(ctx, "alice", "bob", time.Now().UTC())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := st.AppendMessage(ctx, AppendInput{ConversationID: conv.ID, SenderID: "alice", Text: text}); !IsValidation(err) {
			t.Fatalf("append(%q) err=%v, want validation error", text, err)
		}
	}
}

func TestAppendLinksLastMessage(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	ctx := context.Background()

	conv, err := st.ResolveOrCreateConversation(ctx, "alice", "bob", time.Now().UTC())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	m1, err := st.AppendMessage(ctx, AppendInput{ConversationID: conv.ID, SenderID: "alice", Text: "hi"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if m1.Seen {
		t.Fatalf("fresh message must start unseen")
	}

	m2, err := st.AppendMessage(ctx, AppendInput{ConversationID: conv.ID, SenderID: "bob", Text: "hey"})
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}

	got, err := st.ConversationByID(ctx, conv.ID)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	if got.LastMessageID != m2.ID {
		t.Fatalf("last_message=%s want=%s", got.LastMessageID, m2.ID)
	}
	if !got.UpdatedAt.After(conv.UpdatedAt) && !got.UpdatedAt.Equal(conv.UpdatedAt) {
		t.Fatalf("updated_at went backwards: %v -> %v", conv.UpdatedAt, got.UpdatedAt)
	}
}

func TestAppendUnknownConversation(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	_, err := st.AppendMessage(context.Background(), AppendInput{ConversationID: "nope", SenderID: "alice", Text: "hi"})
	if !IsNotFound(err) {
		t.Fatalf("append to unknown conversation err=%v, want not found", err)
	}
}

func TestMarkSeenIdempotent(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	ctx := context.Background()

	conv, _ := st.ResolveOrCreateConversation(ctx, "alice", "bob", time.Now().UTC())
	for i := 0; i < 3; i++ {
		if _, err := st.AppendMessage(ctx, AppendInput{ConversationID: conv.ID, SenderID: "alice", Text: "hi"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := st.AppendMessage(ctx, AppendInput{ConversationID: conv.ID, SenderID: "bob", Text: "yo"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	n, err := st.MarkSeen(ctx, conv.ID, "bob")
	if err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if n != 3 {
		t.Fatalf("first mark seen flipped %d, want 3", n)
	}

	// Second call finds nothing to flip and resets nothing.
	n, err = st.MarkSeen(ctx, conv.ID, "bob")
	if err != nil {
		t.Fatalf("mark seen again: %v", err)
	}
	if n != 0 {
		t.Fatalf("second mark seen flipped %d, want 0", n)
	}

	msgs, err := st.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, m := range msgs {
		switch m.SenderID {
		case "alice":
			if !m.Seen {
				t.Fatalf("alice's message %s not seen after mark seen", m.ID)
			}
		case "bob":
			if m.Seen {
				t.Fatalf("bob's own message %s was flipped by his own mark seen", m.ID)
			}
		}
	}
}

func TestSoftDeleteOwnershipAndIrreversibility(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	conv, _ := st.ResolveOrCreateConversation(ctx, "alice", "bob", now)
	msg, err := st.AppendMessage(ctx, AppendInput{ConversationID: conv.ID, SenderID: "alice", Text: "secret"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := st.SoftDelete(ctx, msg.ID, "bob", now); !IsForbidden(err) {
		t.Fatalf("soft delete by non-sender err=%v, want forbidden", err)
	}

	deleted, err := st.SoftDelete(ctx, msg.ID, "alice", now)
	if err != nil {
		t.Fatalf("soft delete by sender: %v", err)
	}
	if !deleted.Body.Deleted() {
		t.Fatalf("message not tombstoned")
	}
	if text, ok := deleted.Body.Text(); ok || text != "" {
		t.Fatalf("tombstone exposed text %q", text)
	}
	at, ok := deleted.Body.DeletedAt()
	if !ok || at.IsZero() {
		t.Fatalf("tombstone missing deletion timestamp")
	}

	// Repeated delete is a no-op returning the original tombstone.
	again, err := st.SoftDelete(ctx, msg.ID, "alice", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("repeat soft delete: %v", err)
	}
	if at2, _ := again.Body.DeletedAt(); !at2.Equal(at) {
		t.Fatalf("repeat delete moved deleted_at: %v -> %v", at, at2)
	}

	// The listing never exposes the original text either.
	msgs, err := st.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, m := range msgs {
		if m.ID != msg.ID {
			continue
		}
		if text, ok := m.Body.Text(); ok || text != "" {
			t.Fatalf("listing exposed deleted text %q", text)
		}
	}
}

func TestSoftDeleteLeavesSeenUntouched(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	conv, _ := st.ResolveOrCreateConversation(ctx, "alice", "bob", now)
	msg, _ := st.AppendMessage(ctx, AppendInput{ConversationID: conv.ID, SenderID: "alice", Text: "hi"})

	if _, err := st.MarkSeen(ctx, conv.ID, "bob"); err != nil {
		t.Fatalf("mark seen: %v", err)
	}

	deleted, err := st.SoftDelete(ctx, msg.ID, "alice", now)
	if err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if !deleted.Seen {
		t.Fatalf("deletion retroactively unread the message")
	}
}

func TestUnreadCounts(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	ab, _ := st.ResolveOrCreateConversation(ctx, "alice", "bob", now)
	ac, _ := st.ResolveOrCreateConversation(ctx, "alice", "carol", now)

	// Two unread for bob, one unread for alice (from carol).
	st.mustAppend(t, ab.ID, "alice", "one")
	st.mustAppend(t, ab.ID, "alice", "two")
	st.mustAppend(t, ac.ID, "carol", "hello alice")

	total, err := st.TotalUnread(ctx, "bob")
	if err != nil {
		t.Fatalf("total unread bob: %v", err)
	}
	if total != 2 {
		t.Fatalf("bob total unread=%d want=2", total)
	}

	total, err = st.TotalUnread(ctx, "alice")
	if err != nil {
		t.Fatalf("total unread alice: %v", err)
	}
	if total != 1 {
		t.Fatalf("alice total unread=%d want=1", total)
	}

	per, err := st.UnreadByConversation(ctx, "alice")
	if err != nil {
		t.Fatalf("per conversation: %v", err)
	}
	if per[ab.ID] != 0 || per[ac.ID] != 1 {
		t.Fatalf("alice per-conversation=%v want {%s:0 %s:1}", per, ab.ID, ac.ID)
	}

	if _, err := st.MarkSeen(ctx, ac.ID, "alice"); err != nil {
		t.Fatalf("mark seen: %v", err)
	}

	per, err = st.UnreadByConversation(ctx, "alice")
	if err != nil {
		t.Fatalf("per conversation after mark seen: %v", err)
	}
	if per[ac.ID] != 0 {
		t.Fatalf("count after mark seen=%d want=0", per[ac.ID])
	}
}

// mustAppend is a test helper.
func (s *InMemoryStore) mustAppend(t *testing.T, convID, sender, text string) Message {
	t.Helper()
	m, err := s.AppendMessage(context.Background(), AppendInput{ConversationID: convID, SenderID: sender, Text: text})
	if err != nil {
		t.Fatalf("append(%s, %s): %v", convID, sender, err)
	}
	return m
}

func TestListConversationsOrder(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	ab, _ := st.ResolveOrCreateConversation(ctx, "alice", "bob", base)
	ac, _ := st.ResolveOrCreateConversation(ctx, "alice", "carol", base.Add(time.Second))

	// Touch the older conversation; it should float to the top.
	if _, err := st.AppendMessage(ctx, AppendInput{ConversationID: ab.ID, SenderID: "bob", Text: "ping", Now: base.Add(2 * time.Second)}); err != nil {
		t.Fatalf("append: %v", err)
	}

	convs, err := st.ListConversations(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("len=%d want=2", len(convs))
	}
	if convs[0].ID != ab.ID || convs[1].ID != ac.ID {
		t.Fatalf("order=%s,%s want=%s,%s", convs[0].ID, convs[1].ID, ab.ID, ac.ID)
	}
}
