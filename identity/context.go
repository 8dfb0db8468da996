package identity

import (
	"context"
)

// Context keys for bound identities. Thread and task keys are stored under
// separate context keys so a context can participate in both schemes.
type contextKey int

const (
	threadKeyKey contextKey = iota
	taskKeyKey
)

func contextKeyFor(mode Mode) contextKey {
	if mode == ModeTask {
		return taskKeyKey
	}
	return threadKeyKey
}

// WithKey returns a new context with the given identity key attached under
// the given mode's key space.
func WithKey(ctx context.Context, mode Mode, key string) context.Context {
	return context.WithValue(ctx, contextKeyFor(mode), key)
}

// KeyFromContext retrieves the identity key for the given mode.
// Returns empty string if no key is bound.
func KeyFromContext(ctx context.Context, mode Mode) string {
	key, _ := ctx.Value(contextKeyFor(mode)).(string)
	return key
}
