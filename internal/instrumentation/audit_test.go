package instrumentation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestInvocation_Complete(t *testing.T) {
	tests := []struct {
		name        string
		diagnostic  string
		err         error
		wantSuccess bool
		wantError   string
	}{
		{"success", "", nil, true, ""},
		{"error", "", errors.New("auth error: refresh rejected"), false, "auth error: refresh rejected"},
		{"diagnostic", "Failed to parse JSON response.", nil, false, "Failed to parse JSON response."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := NewInvocation("http", SourceUnread).WithModel("m").Complete(3, 2, tt.diagnostic, tt.err)

			if inv.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v", inv.Success, tt.wantSuccess)
			}
			if inv.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", inv.Error, tt.wantError)
			}
			if inv.Records != 3 || inv.Items != 2 {
				t.Errorf("counts = %d/%d, want 3/2", inv.Records, inv.Items)
			}
			if inv.Duration < 0 {
				t.Error("Duration should not be negative")
			}
		})
	}
}

func TestInvocation_WithSpanContext_NoSpan(t *testing.T) {
	inv := NewInvocation("mcp", SourceEmails).WithSpanContext(context.Background())
	if inv.TraceID != "" || inv.SpanID != "" {
		t.Errorf("expected empty trace context, got %q/%q", inv.TraceID, inv.SpanID)
	}
}

func TestAuditLogger_Log(t *testing.T) {
	tests := []struct {
		name      string
		config    AuditLoggingConfig
		success   bool
		wantMsg   string
		wantModel bool
	}{
		{"success with model", AuditLoggingConfig{Enabled: true, IncludeModel: true}, true, "classification_completed", true},
		{"failure without model", AuditLoggingConfig{Enabled: true}, false, "classification_failed", false},
		{"disabled", AuditLoggingConfig{}, true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			al := NewAuditLoggerWithConfig(slog.New(slog.NewTextHandler(&buf, nil)), tt.config)

			var err error
			if !tt.success {
				err = errors.New("upstream failed")
			}
			al.Log(NewInvocation("http", SourceUnread).WithModel("openai/gpt-4o-mini").Complete(1, 1, "", err))

			out := buf.String()
			if tt.wantMsg == "" {
				if out != "" {
					t.Errorf("expected no output, got %q", out)
				}
				return
			}
			if !strings.Contains(out, tt.wantMsg) {
				t.Errorf("output %q should contain %q", out, tt.wantMsg)
			}
			if got := strings.Contains(out, "model=openai/gpt-4o-mini"); got != tt.wantModel {
				t.Errorf("model present = %v, want %v", got, tt.wantModel)
			}
		})
	}
}

func TestAuditLogger_NilSafe(t *testing.T) {
	var al *AuditLogger
	al.Log(NewInvocation("http", SourceUnread))
	NewAuditLogger(nil).Log(nil)
}
