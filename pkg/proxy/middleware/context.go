// Package middleware provides the HTTP middleware chain shared by both
// ingress listeners: panic recovery, request IDs, and request logging.
package middleware

import "context"

// contextKey is a private type for context keys defined in this package.
type contextKey string

const (
	// RequestIDKey is the context key holding the request's correlation ID.
	RequestIDKey contextKey = "request_id"
)

// GetRequestID returns the request ID from the context, or "" if absent.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
