package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	fedAuth "github.com/MrEthical07/fedAuth"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("expected JSON output, got %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestContextHandlerAddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")
	ctx := fedAuth.WithCorrelationID(context.Background(), "cid-1")

	logger.InfoContext(ctx, "from context")
	logger.InfoContext(ctx, "explicit", slog.String("correlation_id", "cid-2"))
	logger.Info("no context")

	recs := decodeLines(t, &buf)
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0]["correlation_id"] != "cid-1" {
		t.Fatalf("expected context correlation id, got %v", recs[0])
	}
	if recs[1]["correlation_id"] != "cid-2" || strings.Count(buf.String(), "cid-1") != 1 {
		t.Fatalf("explicit correlation id must not be duplicated, got %s", buf.String())
	}
	if _, ok := recs[2]["correlation_id"]; ok {
		t.Fatalf("unexpected correlation id %v", recs[2])
	}
}

func TestContextHandlerRespectsPresetAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json").With(slog.String("correlation_id", "bound"))

	logger.InfoContext(fedAuth.WithCorrelationID(context.Background(), "ctx"), "hello")
	if strings.Contains(buf.String(), `"ctx"`) {
		t.Fatalf("bound correlation id must win, got %s", buf.String())
	}
}

func TestContextHandlerAddsSpanContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")

	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.InfoContext(ctx, "traced")
	rec := decodeLines(t, &buf)[0]
	if rec["trace_id"] != tid.String() || rec["span_id"] != sid.String() {
		t.Fatalf("unexpected trace attrs %v", rec)
	}
}
