// ABOUTME: Request context helpers carrying the authenticated user id
// ABOUTME: Set by Middleware and read by the API handlers

package auth

import "context"

type userKey struct{}

// WithUser returns a context carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext returns the authenticated user id, or "" when the request
// was not authenticated.
func UserFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}
