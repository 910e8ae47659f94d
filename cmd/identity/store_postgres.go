package identity

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Finder backed by the linkup.users table.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
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
			return errors.New("identity: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Finder.
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
		return nil, errors.New("identity: nil pool")
	}
	return st, nil
}

// FindByID resolves a user ID to its profile summary.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (User, error) {
	if s == nil || s.pool == nil {
		return User{}, errors.New("identity: nil store")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, NotFoundError{}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, COALESCE(avatar, ''), created_at
		   FROM `+users+`
		  WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Username, &u.Avatar, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{ID: id}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
