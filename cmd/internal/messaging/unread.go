package messaging

import (
	"context"
	"errors"
)

// UnreadAggregator computes unread counts on demand from message state.
//
// It deliberately holds no cache: seen-state changes on every read receipt,
// and a stale badge number is a user-visible defect. The store's count
// queries are the only source.
type UnreadAggregator struct {
	store Store
}

// NewUnreadAggregator constructs an aggregator over store.
func NewUnreadAggregator(store Store) *UnreadAggregator {
	return &UnreadAggregator{store: store}
}

// Total returns the number of unseen messages addressed to userID across all
// of their conversations.
func (a *UnreadAggregator) Total(ctx context.Context, userID string) (int64, error) {
	if a == nil || a.store == nil {
		return 0, errors.New("messaging: nil aggregator")
	}
	return a.store.TotalUnread(ctx, userID)
}

// ByConversation returns a conversationID -> unseen count mapping for userID.
func (a *UnreadAggregator) ByConversation(ctx context.Context, userID string) (map[string]int64, error) {
	if a == nil || a.store == nil {
		return nil, errors.New("messaging: nil aggregator")
	}
	return a.store.UnreadByConversation(ctx, userID)
}
