package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// InMemoryStore is a Store used when the DB is not configured, and by tests.
type InMemoryStore struct {
	mu   sync.Mutex
	rows map[string]Notification
}

// NewInMemoryStore constructs an empty in-memory Store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[string]Notification)}
}

func (s *InMemoryStore) Append(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrValidation)
	}
	if strings.TrimSpace(n.RecipientID) == "" {
		return fmt.Errorf("%w: missing recipient", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[n.ID] = n
	return nil
}

func (s *InMemoryStore) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, 0)
	for _, n := range s.rows {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var flipped int64
	for id, n := range s.rows {
		if n.RecipientID == recipientID && !n.Read {
			n.Read = true
			s.rows[id] = n
			flipped++
		}
	}
	return flipped, nil
}

func (s *InMemoryStore) Close() {}

var _ Store = (*InMemoryStore)(nil)
