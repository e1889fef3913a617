package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}
var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithSessionContext sets the verified session claims in the given context
func WithSessionContext(r context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(r, sessionCtxKey, claims)
}

// SessionFromContext extracts the verified session claims from the
// standard context. The gate populates these after credential
// verification; handlers treat them as authoritative.
func SessionFromContext(ctx context.Context) (*SessionClaims, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(*SessionClaims)
	return raw, ok
}

// SessionFromRouter extracts the verified session claims from the
// router context locals.
func SessionFromRouter(ctx router.Context, key string) (*SessionClaims, bool) {
	if key == "" {
		key = LocalsSessionClaims
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(*SessionClaims)
	return claims, ok
}

// UserIDFromContext is a convenience accessor for the verified user id.
func UserIDFromContext(ctx context.Context) (string, bool) {
	claims, ok := SessionFromContext(ctx)
	if !ok {
		return "", false
	}
	return claims.UserID(), true
}
