package notify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
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
			return errors.New("notify: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("notify: invalid schema identifier")
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
		return nil, errors.New("notify: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() {}

const notificationColumns = `id, recipient_id, actor_id, kind, COALESCE(post_id, ''), COALESCE(story_id, ''), read, created_at`

func (s *PostgresStore) Append(ctx context.Context, n Notification) error {
	if s == nil || s.pool == nil {
		return errors.New("notify: nil store")
	}
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrValidation)
	}
	if strings.TrimSpace(n.RecipientID) == "" {
		return fmt.Errorf("%w: missing recipient", ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	notifications := pgIdent(s.schema, "notifications")

	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+notifications+` (id, recipient_id, actor_id, kind, post_id, story_id, read, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8)
	`, n.ID, n.RecipientID, n.ActorID, n.Kind, n.PostID, n.StoryID, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("notify: append: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]Notification, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("notify: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	notifications := pgIdent(s.schema, "notifications")

	rows, err := s.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM `+notifications+`
		WHERE recipient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: list: %w", err)
	}
	defer rows.Close()

	out := make([]Notification, 0, limit)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.ActorID, &n.Kind, &n.PostID, &n.StoryID, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notify: rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("notify: nil store")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	notifications := pgIdent(s.schema, "notifications")

	tag, err := s.pool.Exec(ctx, `
		UPDATE `+notifications+`
		SET read = true
		WHERE recipient_id = $1 AND read = false
	`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("notify: mark read: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Store = (*PostgresStore)(nil)

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
