package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew_AddsRequestAndSessionIDs(t *testing.T) {
	var buf bytes.Buffer
	l := New("info", &buf)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithSessionID(ctx, "sid-1")
	l.InfoContext(ctx, "cart updated", "lines", 2)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "cart updated", entry["msg"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "sid-1", entry["session_id"])
	assert.EqualValues(t, 2, entry["lines"])
}

func TestNew_AddsTraceContext(t *testing.T) {
	var buf bytes.Buffer
	l := New("debug", &buf)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.DebugContext(ctx, "hello")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("warn", &buf)

	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.With("component", "cart").Warn("kept")
	entry := decodeLine(t, &buf)
	assert.Equal(t, "cart", entry["component"])
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	l := Discard()
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("whatever"))
}
