// Package middleware provides the HTTP middleware chain: request IDs,
// credential extraction, panic recovery, request logging and timeouts.
package middleware

import "context"

type contextKey int

const (
	requestIDKey contextKey = iota
	identityKey
)

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	// PrincipalID identifies the caller (API key identity).
	PrincipalID string

	// TenantID groups principals for rate limiting and routing rules.
	TenantID string
}

// GetRequestID extracts the request ID from the context, empty when unset.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetIdentity extracts the caller identity, zero when unauthenticated.
func GetIdentity(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey).(Identity); ok {
		return id
	}
	return Identity{}
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}
