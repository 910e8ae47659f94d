package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"linkup/cmd/identity"
)

var (
	ErrTokenMissing = errors.New("realtime: token missing")
	ErrTokenInvalid = errors.New("realtime: token invalid")
)

const defaultLookupTimeout = 3 * time.Second

// Authenticator resolves the user behind a connection handshake.
//
// The bearer token is read from the "token" query field (browser websocket
// clients cannot set headers) or from the Authorization header, verified as
// an HMAC-signed JWT, and the subject is resolved against the user store.
type Authenticator struct {
	log    *slog.Logger
	secret []byte
	users  identity.Finder

	lookupTimeout time.Duration
}

// NewAuthenticator constructs an Authenticator over the user store.
func NewAuthenticator(log *slog.Logger, secret []byte, users identity.Finder) *Authenticator {
	return &Authenticator{
		log:           log,
		secret:        secret,
		users:         users,
		lookupTimeout: defaultLookupTimeout,
	}
}

// Authenticate verifies the request's bearer token and returns its user.
// Failures unwrap to ErrTokenMissing or ErrTokenInvalid.
func (a *Authenticator) Authenticate(r *http.Request) (identity.User, error) {
	raw := bearerToken(r)
	if raw == "" {
		return identity.User{}, ErrTokenMissing
	}

	userID, err := a.verify(raw)
	if err != nil {
		return identity.User{}, err
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.lookupTimeout)
	defer cancel()

	u, err := a.users.FindByID(ctx, userID)
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.User{}, fmt.Errorf("%w: unknown subject", ErrTokenInvalid)
		}
		return identity.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

func (a *Authenticator) verify(raw string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		// Legacy tokens carry the user id in an "id" claim instead of "sub".
		sub, _ = claims["id"].(string)
	}
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return "", fmt.Errorf("%w: no subject", ErrTokenInvalid)
	}
	return sub, nil
}

func bearerToken(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}

	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return ""
	}
	scheme, rest, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(rest)
}
