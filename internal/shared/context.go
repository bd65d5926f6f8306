package shared

import "context"

type sessionContextKey struct{}

type identityContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithIdentity records the authenticated identity id, regardless of
// whether it came from a session cookie or a bearer token.
func ContextWithIdentity(ctx context.Context, identityID string) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identityID)
}

// IdentityFromContext returns the authenticated identity id or "".
func IdentityFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(identityContextKey{}).(string); ok && id != "" {
		return id
	}
	if sess := SessionFromContext(ctx); sess != nil {
		return sess.Identity()
	}
	return ""
}
