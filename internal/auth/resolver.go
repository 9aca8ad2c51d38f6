package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"facultychat/internal/session"
	"facultychat/internal/store"
)

const userTypeMember = "user"

type SessionLookup interface {
	LookupSession(ctx context.Context, sid string) (session.Data, error)
}

type IdentityLookup interface {
	GetIdentity(ctx context.Context, id int64) (store.Identity, error)
}

// Resolver maps a session token to an identity id. Only member sessions of
// active identities resolve; admin sessions and deactivated accounts do not.
type Resolver struct {
	secret     []byte
	cookieName string
	sessions   SessionLookup
	identities IdentityLookup
}

func NewResolver(secret []byte, cookieName string, sessions SessionLookup, identities IdentityLookup) *Resolver {
	return &Resolver{
		secret:     secret,
		cookieName: cookieName,
		sessions:   sessions,
		identities: identities,
	}
}

// Token extracts the raw session token from the cookie, falling back to the
// "session" query parameter for clients that cannot set cookies on the
// upgrade request.
func (r *Resolver) Token(req *http.Request) string {
	if cookie, err := req.Cookie(r.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return strings.TrimSpace(req.URL.Query().Get("session"))
}

func (r *Resolver) Resolve(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrUnauthenticated
	}
	sid, err := ParseSessionCookie(r.secret, token)
	if err != nil {
		return 0, err
	}

	data, err := r.sessions.LookupSession(ctx, sid)
	if errors.Is(err, session.ErrNotFound) {
		return 0, ErrUnauthenticated
	}
	if err != nil {
		return 0, fmt.Errorf("lookup session: %w", err)
	}
	if data.UserType != userTypeMember || data.UserID <= 0 {
		return 0, ErrUnauthenticated
	}

	identity, err := r.identities.GetIdentity(ctx, data.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrUnauthenticated
	}
	if err != nil {
		return 0, fmt.Errorf("load identity: %w", err)
	}
	if !identity.IsActive {
		return 0, ErrUnauthenticated
	}
	return identity.ID, nil
}

func (r *Resolver) ResolveRequest(req *http.Request) (int64, error) {
	return r.Resolve(req.Context(), r.Token(req))
}
