package fedAuth

import (
	"context"

	"github.com/google/uuid"
)

type correlationIDContextKey struct{}

// WithCorrelationID attaches a correlation id to ctx. The facade forwards it
// to the identity provider on every request and stamps it on audit events.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey{}, id)
}

// CorrelationIDFromContext returns the id attached by [WithCorrelationID].
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, _ := ctx.Value(correlationIDContextKey{}).(string)
	return id, id != ""
}

// correlationID returns the caller's id or mints a new one.
func correlationID(ctx context.Context) string {
	if id, ok := CorrelationIDFromContext(ctx); ok {
		return id
	}
	return uuid.NewString()
}
