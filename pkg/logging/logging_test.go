package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/hyp3rd/guance/internal/logtest"
)

const attributeCountWithTrace = 3

func TestEnrichAddsSpanContext(t *testing.T) {
	t.Parallel()

	ctx, span := trace.NewTracerProvider().Tracer("test").Start(context.Background(), "span")
	defer span.End()

	attrs := enrich(ctx, nil, []attribute.KeyValue{attribute.String("foo", "bar")})
	if len(attrs) < attributeCountWithTrace {
		t.Fatalf("expected trace attributes plus payload, got %d", len(attrs))
	}

	if attrs[0].Key != "trace_id" {
		t.Fatalf("expected trace_id first, got %s", attrs[0].Key)
	}

	if attrs[1].Key != "span_id" {
		t.Fatalf("expected span_id second, got %s", attrs[1].Key)
	}
}

func TestEnrichNoSpan(t *testing.T) {
	t.Parallel()

	attrs := enrich(context.Background(), nil, []attribute.KeyValue{attribute.String("foo", "bar")})
	if len(attrs) != 1 {
		t.Fatalf("expected only original attrs, got %d", len(attrs))
	}
}

func TestSlogAdapterWritesWarnLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	adapter := NewSlogAdapter(slogLogger(&buf))
	adapter.Warn(context.Background(), "token missing", attribute.String("signal", "traces"))

	var entry map[string]any

	err := json.Unmarshal(buf.Bytes(), &entry)
	if err != nil {
		t.Fatalf("unmarshal slog output: %v", err)
	}

	if entry["level"] != "WARN" {
		t.Fatalf("expected WARN level, got %v", entry["level"])
	}

	if entry["signal"] != "traces" {
		t.Fatalf("expected signal attribute, got %v", entry)
	}
}

func TestEnrichMasksSecrets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key    string
		masked bool
	}{
		{key: "token", masked: true},
		{key: "otel.exporter.guance.token", masked: true},
		{key: "Authorization", masked: true},
		{key: "db.password", masked: true},
		{key: "endpoint", masked: false},
		{key: "tokens_sent", masked: false},
	}

	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			t.Parallel()

			attrs := enrich(context.Background(), nil, []attribute.KeyValue{attribute.String(tc.key, "tkn_secret")})
			if got := attrs[0].Value.AsString() == Redacted; got != tc.masked {
				t.Fatalf("masked=%v, want %v", got, tc.masked)
			}
		})
	}
}

func TestStdAdapterAppendsError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	adapter := NewStdAdapter(log.New(&buf, "", 0))
	adapter.Error(context.Background(), errors.New("connection refused"), "write failed",
		attribute.String("token", "tkn_secret"),
		attribute.Int("status", 503),
	)

	want := "ERROR write failed token=[REDACTED] status=503 error=connection refused\n"
	if got := buf.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestLevelFilterDropsBelowMinimum(t *testing.T) {
	t.Parallel()

	rec := &logtest.Recorder{}
	adapter := applyLevelFilter(rec, "warn")
	ctx := context.Background()

	adapter.Debug(ctx, "debug")
	adapter.Info(ctx, "info")
	adapter.Warn(ctx, "warn")
	adapter.Error(ctx, nil, "error")

	if got := rec.Messages(); len(got) != 2 || got[0] != "warn" || got[1] != "error" {
		t.Fatalf("unexpected messages %v", got)
	}
}

func TestThrottledAdapterSuppressesBursts(t *testing.T) {
	t.Parallel()

	rec := &logtest.Recorder{}
	adapter := NewThrottled(rec, time.Hour, 2)
	ctx := context.Background()

	for range 5 {
		adapter.Warn(ctx, "write failed")
	}

	adapter.Info(ctx, "info passes")

	got := rec.Messages()
	want := []string{
		"write failed",
		"write failed",
		"too many diagnostic messages, throttling further warnings",
		"info passes",
	}

	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message %d = %q, want %q", i, got[i], want[i])
		}
	}

	if adapter.Dropped() != 3 {
		t.Fatalf("expected 3 dropped events, got %d", adapter.Dropped())
	}
}

func slogLogger(buf *bytes.Buffer) *slog.Logger {
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	return slog.New(handler)
}
