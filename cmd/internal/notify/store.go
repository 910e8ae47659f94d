package notify

import "context"

// Store is the durable persistence boundary for notifications.
type Store interface {
	// Append inserts the row. The caller assigns ID and CreatedAt.
	Append(ctx context.Context, n Notification) error

	// ListForRecipient returns the recipient's notifications,
	// newest first, up to limit.
	ListForRecipient(ctx context.Context, recipientID string, limit int) ([]Notification, error)

	// MarkAllRead flips every unread row for the recipient and
	// returns the number of rows changed. Idempotent.
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)

	// Close releases store resources.
	Close()
}
