package auth

import (
	"context"
)

type contextKey string

const providerContextKey contextKey = "auth-provider"

// WithProvider binds the provider of an HTTP session to a request context.
func WithProvider(ctx context.Context, p Provider) context.Context {
	return context.WithValue(ctx, providerContextKey, p)
}

// FromContext returns the provider bound to ctx, if any.
func FromContext(ctx context.Context) (Provider, bool) {
	p, ok := ctx.Value(providerContextKey).(Provider)
	return p, ok && p != nil
}
