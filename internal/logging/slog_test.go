package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestWithOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := WithOperation(New(&buf, false), "gmail.fetch_unread")
	logger.Info("hello")
	if !strings.Contains(buf.String(), "operation=gmail.fetch_unread") {
		t.Errorf("log output %q should contain the operation attribute", buf.String())
	}
}

func TestNewDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug message should be dropped at info level, got %q", buf.String())
	}

	New(&buf, true).Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug message should be written at debug level, got %q", buf.String())
	}
}

func TestAttrs(t *testing.T) {
	tests := []struct {
		name    string
		attr    slog.Attr
		wantKey string
		wantVal string
	}{
		{"operation", Operation("classify"), KeyOperation, "classify"},
		{"model", Model("openai/gpt-4o-mini"), KeyModel, "openai/gpt-4o-mini"},
		{"tool", Tool("triage_classify_unread"), KeyTool, "triage_classify_unread"},
		{"status", Status(StatusSuccess), KeyStatus, StatusSuccess},
		{"error", Err(errors.New("test error")), KeyError, "test error"},
		{"duration", Duration(1500 * time.Millisecond), KeyDuration, "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.wantKey {
				t.Errorf("key = %q, want %q", tt.attr.Key, tt.wantKey)
			}
			if tt.attr.Value.String() != tt.wantVal {
				t.Errorf("value = %q, want %q", tt.attr.Value.String(), tt.wantVal)
			}
		})
	}

	if attr := Err(nil); attr.Key != "" {
		t.Errorf("Err(nil) key = %q, want empty group", attr.Key)
	}
}

func TestAnonymizeEmail(t *testing.T) {
	if got := AnonymizeEmail(""); got != "" {
		t.Errorf("AnonymizeEmail(\"\") = %q, want empty", got)
	}

	h1 := AnonymizeEmail("Acme <billing@acme.test>")
	h2 := AnonymizeEmail("Acme <billing@acme.test>")
	if h1 != h2 {
		t.Error("AnonymizeEmail should be deterministic")
	}
	if len(h1) != len("sender:")+16 || !strings.HasPrefix(h1, "sender:") {
		t.Errorf("unexpected hash format %q", h1)
	}
	if h1 == AnonymizeEmail("other@acme.test") {
		t.Error("different senders should hash differently")
	}
	if SenderHash("x@y.test").Key != KeySenderHash {
		t.Error("SenderHash should use the sender_hash key")
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"", "<empty>"},
		{"ya29.abc", "[token:8 chars]"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := SanitizeToken(tt.token); got != tt.expected {
				t.Errorf("SanitizeToken(%q) = %q, want %q", tt.token, got, tt.expected)
			}
		})
	}
}

func TestNew_TraceCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false).With("component", "test")

	logger.InfoContext(context.Background(), "untraced")
	if strings.Contains(buf.String(), KeyTraceID) {
		t.Errorf("record without a span should not carry a trace id: %q", buf.String())
	}

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	buf.Reset()
	logger.InfoContext(ctx, "traced")
	out := buf.String()
	if !strings.Contains(out, KeyTraceID+"="+span.SpanContext().TraceID().String()) {
		t.Errorf("expected trace id in %q", out)
	}
	if !strings.Contains(out, KeySpanID+"="+span.SpanContext().SpanID().String()) {
		t.Errorf("expected span id in %q", out)
	}
	if !strings.Contains(out, "component=test") {
		t.Errorf("attributes added through With should survive: %q", out)
	}
}
