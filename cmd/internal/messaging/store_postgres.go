package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"linkup/cmd/identity/ids"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Concurrency model:
// - Conversation uniqueness is carried by a UNIQUE constraint on the
//   normalized pair key; the loser of a concurrent create re-reads the
//   winner's row instead of failing the caller.
// - MarkSeen is a single bulk UPDATE, so concurrent readers cannot
//   double-apply or tear it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "linkup").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("messaging: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("messaging: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "linkup",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("messaging: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

const conversationColumns = `id, user_a, user_b, COALESCE(last_message_id, ''), created_at, updated_at`

// ResolveOrCreateConversation finds or creates the canonical conversation for
// the unordered pair {userA, userB}.
//
// Race policy: INSERT ... ON CONFLICT (pair_key) DO NOTHING; when the insert
// loses a concurrent race it returns no row, and we retry with a fresh
// lookup. Duplicate conversations can never be created, and merges are never
// needed.
func (s *PostgresStore) ResolveOrCreateConversation(ctx context.Context, userA, userB string, now time.Time) (Conversation, error) {
	if s == nil || s.pool == nil {
		return Conversation{}, errors.New("messaging: nil store")
	}

	low, high := NormalizePair(userA, userB)
	if low == "" || high == "" {
		return Conversation{}, fmt.Errorf("%w: missing participant", ErrValidation)
	}
	if low == high {
		return Conversation{}, ErrSelfConversation
	}
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	conversations := pgIdent(s.schema, "conversations")
	key := low + "|" + high

	if c, err := s.conversationByPair(ctx, conversations, key); err == nil {
		return c, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, err
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Conversation{}, err
	}

	var c Conversation
	var lastMsg string
	err = s.pool.QueryRow(ctx,
		`INSERT INTO `+conversations+` (id, user_a, user_b, pair_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (pair_key) DO NOTHING
		 RETURNING `+conversationColumns,
		id, low, high, key, now,
	).Scan(&c.ID, &c.UserA, &c.UserB, &lastMsg, &c.CreatedAt, &c.UpdatedAt)
	if err == nil {
		c.LastMessageID = lastMsg
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}

	// Lost the creation race: the unique pair key swallowed our insert.
	// Fresh lookup returns the winner's row.
	c, err = s.conversationByPair(ctx, conversations, key)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, fmt.Errorf("%w: conversation for pair vanished after race", ErrNotFound)
	}
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

func (s *PostgresStore) conversationByPair(ctx context.Context, table, pairKey string) (Conversation, error) {
	var c Conversation
	var lastMsg string
	err := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM `+table+` WHERE pair_key = $1`,
		pairKey,
	).Scan(&c.ID, &c.UserA, &c.UserB, &lastMsg, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Conversation{}, err
	}
	c.LastMessageID = lastMsg
	return c, nil
}

// ConversationByID returns the conversation for id.
func (s *PostgresStore) ConversationByID(ctx context.Context, id string) (Conversation, error) {
	if s == nil || s.pool == nil {
		return Conversation{}, errors.New("messaging: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	conversations := pgIdent(s.schema, "conversations")

	var c Conversation
	var lastMsg string
	err := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM `+conversations+` WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.UserA, &c.UserB, &lastMsg, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	if err != nil {
		return Conversation{}, err
	}
	c.LastMessageID = lastMsg
	return c, nil
}

// ListConversations returns userID's conversations, most recently updated first.
func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("messaging: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conversations := pgIdent(s.schema, "conversations")

	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationColumns+`
		   FROM `+conversations+`
		  WHERE user_a = $1 OR user_b = $1
		  ORDER BY updated_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Conversation, 0, 16)
	for rows.Next() {
		var c Conversation
		var lastMsg string
		if err := rows.Scan(&c.ID, &c.UserA, &c.UserB, &lastMsg, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.LastMessageID = lastMsg
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// AppendMessage persists a message and then bumps the conversation link.
//
// Ordering invariant (append-then-link): the message INSERT commits before
// the conversation's last_message_id/updated_at are touched. If the process
// dies between the two statements the conversation header is stale, which is
// acceptable; the message itself is already durable.
func (s *PostgresStore) AppendMessage(ctx context.Context, in AppendInput) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("messaging: nil store")
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Message{}, fmt.Errorf("%w: message text is required", ErrValidation)
	}
	if strings.TrimSpace(in.SenderID) == "" {
		return Message{}, fmt.Errorf("%w: missing sender", ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	conversations := pgIdent(s.schema, "conversations")
	messages := pgIdent(s.schema, "messages")

	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM `+conversations+` WHERE id = $1`, in.ConversationID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, fmt.Errorf("%w: conversation %s", ErrNotFound, in.ConversationID)
	}
	if err != nil {
		return Message{}, err
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Message{}, err
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+messages+` (id, conversation_id, sender_id, text, seen, deleted, created_at)
		 VALUES ($1, $2, $3, $4, false, false, $5)`,
		id, in.ConversationID, in.SenderID, text, now,
	); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	if _, err := s.pool.Exec(ctx,
		`UPDATE `+conversations+`
		    SET last_message_id = $2, updated_at = $3
		  WHERE id = $1`,
		in.ConversationID, id, now,
	); err != nil {
		// The message is durable; only the header link failed.
		return Message{}, fmt.Errorf("link last message: %w", err)
	}

	return Message{
		ID:             id,
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Body:           ActiveBody(text),
		CreatedAt:      now,
	}, nil
}

const messageColumns = `id, conversation_id, sender_id, text, seen, deleted, deleted_at, created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var (
		m         Message
		text      string
		deleted   bool
		deletedAt *time.Time
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &text, &m.Seen, &deleted, &deletedAt, &m.CreatedAt); err != nil {
		return Message{}, err
	}
	if deleted {
		var at time.Time
		if deletedAt != nil {
			at = *deletedAt
		}
		m.Body = DeletedBody(at)
	} else {
		m.Body = ActiveBody(text)
	}
	return m, nil
}

// MessageByID returns the message for id.
func (s *PostgresStore) MessageByID(ctx context.Context, id string) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("messaging: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	messages := pgIdent(s.schema, "messages")

	m, err := scanMessage(s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM `+messages+` WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	if err != nil {
		return Message{}, err
	}
	return m, nil
}

// ListMessages returns the conversation's messages in chronological order.
// Soft-deleted rows come back with an empty text column, and the tombstone
// Body cannot expose text regardless.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("messaging: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := s.ConversationByID(ctx, conversationID); err != nil {
		return nil, err
	}

	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+`
		   FROM `+messages+`
		  WHERE conversation_id = $1
		  ORDER BY created_at ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Message, 0, 64)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkSeen flips seen=true on unseen messages not sent by readerID.
// One bulk UPDATE: idempotent, monotonic, and safe under concurrent calls.
func (s *PostgresStore) MarkSeen(ctx context.Context, conversationID, readerID string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("messaging: nil store")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if _, err := s.ConversationByID(ctx, conversationID); err != nil {
		return 0, err
	}

	messages := pgIdent(s.schema, "messages")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+messages+`
		    SET seen = true
		  WHERE conversation_id = $1
		    AND sender_id <> $2
		    AND seen = false`,
		conversationID, readerID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SoftDelete tombstones a message owned by requesterID: text cleared in the
// same UPDATE that sets the deletion flag, so no committed state ever carries
// both. The seen flag is left untouched. Repeated calls return the existing
// tombstone.
func (s *PostgresStore) SoftDelete(ctx context.Context, messageID, requesterID string, now time.Time) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("messaging: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	messages := pgIdent(s.schema, "messages")

	m, err := scanMessage(s.pool.QueryRow(ctx,
		`UPDATE `+messages+`
		    SET deleted = true, deleted_at = $3, text = ''
		  WHERE id = $1
		    AND sender_id = $2
		    AND deleted = false
		RETURNING `+messageColumns,
		messageID, requesterID, now,
	))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Message{}, err
	}

	// No row updated: missing, already deleted, or not the sender.
	existing, err := s.MessageByID(ctx, messageID)
	if err != nil {
		return Message{}, err
	}
	if existing.SenderID != requesterID {
		return Message{}, fmt.Errorf("%w: only the sender can unsend a message", ErrForbidden)
	}
	// Already deleted: idempotent.
	return existing, nil
}

// TotalUnread counts unseen messages addressed to userID.
// Always computed fresh against the messages table; unread counts are a
// user-visible number and must not lag a completed MarkSeen.
func (s *PostgresStore) TotalUnread(ctx context.Context, userID string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("messaging: nil store")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	conversations := pgIdent(s.schema, "conversations")
	messages := pgIdent(s.schema, "messages")

	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*)
		   FROM `+messages+` m
		   JOIN `+conversations+` c ON c.id = m.conversation_id
		  WHERE (c.user_a = $1 OR c.user_b = $1)
		    AND m.sender_id <> $1
		    AND m.seen = false`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// UnreadByConversation returns per-conversation unseen counts for userID,
// including zero rows for conversations with nothing unread.
func (s *PostgresStore) UnreadByConversation(ctx context.Context, userID string) (map[string]int64, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("messaging: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conversations := pgIdent(s.schema, "conversations")
	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT c.id, COUNT(m.id)
		   FROM `+conversations+` c
		   LEFT JOIN `+messages+` m
		     ON m.conversation_id = c.id
		    AND m.sender_id <> $1
		    AND m.seen = false
		  WHERE c.user_a = $1 OR c.user_b = $1
		  GROUP BY c.id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var id string
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
