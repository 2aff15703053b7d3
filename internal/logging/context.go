package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	fedAuth "github.com/MrEthical07/fedAuth"
)

const correlationKey = "correlation_id"

// ContextHandler stamps the correlation id and any active span onto each
// record before passing it to the wrapped handler. A correlation_id attr set
// by the caller wins over the context value.
type ContextHandler struct {
	inner   slog.Handler
	preset  bool
	inGroup bool
}

func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx == nil {
		return h.inner.Handle(ctx, r)
	}
	if id, ok := fedAuth.CorrelationIDFromContext(ctx); ok && !h.preset && !hasAttr(r, correlationKey) {
		r.AddAttrs(slog.String(correlationKey, id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.inner = h.inner.WithAttrs(attrs)
	if !h.inGroup {
		for _, a := range attrs {
			if a.Key == correlationKey {
				next.preset = true
			}
		}
	}
	return &next
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.inner = h.inner.WithGroup(name)
	next.inGroup = next.inGroup || name != ""
	return &next
}

func hasAttr(r slog.Record, key string) bool {
	found := false
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			found = true
			return false
		}
		return true
	})
	return found
}
