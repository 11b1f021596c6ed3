package tools

import "context"

type contextKey int

const userIDKey contextKey = iota

// WithUserID returns a context carrying the user scope for tool
// handlers. Memory tools refuse to run without it.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the user scope, or "" if absent.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
