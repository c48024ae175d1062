package shared

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// SessionUserID returns the signed-in user id stored in the request session.
// Zero with a nil error means the request is anonymous.
func SessionUserID(ctx context.Context) (int64, error) {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return 0, nil
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("shared: malformed session user %q", raw)
	}
	return id, nil
}
