// Package correlation carries a per-request identifier through context so
// audit entries and log lines from one request can be stitched together.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

// Header is the HTTP header the id travels in, both inbound and outbound.
const Header = "X-Correlation-ID"

// NewID mints a fresh correlation id.
func NewID() string {
	return uuid.NewString()
}

// WithID returns a context carrying the given correlation id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the correlation id carried by ctx, or "" if none.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

// EnsureID returns ctx unchanged if it already carries a correlation id,
// otherwise attaches a fresh one. Background workers use this so their audit
// entries are traceable even when detached from the originating request.
func EnsureID(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return WithID(ctx, id), id
}
