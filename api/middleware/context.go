package middleware

import "context"

type contextKey string

const (
	ctxReviewer  contextKey = "reviewer"
	ctxRole      contextKey = "actor_role"
	ctxSessionID contextKey = "session_id"
)

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// ReviewerFromContext returns the name stamped on records written by the request.
func ReviewerFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxReviewer)
}

func RoleFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxRole)
}

// SessionIDFromContext returns the reviewer-session id (the token's jti).
func SessionIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxSessionID)
}

// WithIdentity injects a reviewer identity; used by tests and internal callers.
func WithIdentity(ctx context.Context, reviewer, role, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxReviewer, reviewer)
	ctx = context.WithValue(ctx, ctxRole, role)
	return context.WithValue(ctx, ctxSessionID, sessionID)
}
