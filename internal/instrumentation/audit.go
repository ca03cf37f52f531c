package instrumentation

import (
	"context"
	"log/slog"
	"time"
)

// Invocation captures one classification run for the audit log. Message
// content and senders are never recorded; only counts and outcome.
type Invocation struct {
	// Entry point: "http" or "mcp"
	Transport string

	// Source is SourceUnread or SourceEmails
	Source string

	Model   string
	Records int
	Items   int

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewInvocation starts timing a classification run.
func NewInvocation(transport, source string) *Invocation {
	return &Invocation{
		Transport: transport,
		Source:    source,
		StartTime: time.Now(),
	}
}

// WithModel sets the model identifier.
func (inv *Invocation) WithModel(model string) *Invocation {
	inv.Model = model
	return inv
}

// WithSpanContext copies the trace context from the current span.
func (inv *Invocation) WithSpanContext(ctx context.Context) *Invocation {
	inv.TraceID = GetTraceID(ctx)
	inv.SpanID = GetSpanID(ctx)
	return inv
}

// Complete stops timing. A non-empty diagnostic marks the run as failed
// even when err is nil, since extraction failures are reported as data.
func (inv *Invocation) Complete(records, items int, diagnostic string, err error) *Invocation {
	inv.Duration = time.Since(inv.StartTime)
	inv.Records = records
	inv.Items = items
	inv.Success = err == nil && diagnostic == ""
	switch {
	case err != nil:
		inv.Error = err.Error()
	case diagnostic != "":
		inv.Error = diagnostic
	}
	return inv
}

// Status returns "success" or "error".
func (inv *Invocation) Status() string {
	if inv.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes for the invocation.
func (inv *Invocation) LogAttrs(includeModel bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("transport", inv.Transport),
		slog.String("source", inv.Source),
		slog.Int("records", inv.Records),
		slog.Int("items", inv.Items),
		slog.Duration("duration", inv.Duration),
		slog.Bool("success", inv.Success),
	}

	if includeModel && inv.Model != "" {
		attrs = append(attrs, slog.String("model", inv.Model))
	}
	if inv.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", inv.TraceID))
	}
	if inv.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", inv.SpanID))
	}
	if inv.Error != "" {
		attrs = append(attrs, slog.String("error", inv.Error))
	}

	return attrs
}

// AuditLogger writes one structured record per classification run.
type AuditLogger struct {
	logger       *slog.Logger
	includeModel bool
	enabled      bool
}

// NewAuditLogger creates an enabled AuditLogger that includes model names.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true, IncludeModel: true})
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:       logger,
		includeModel: config.IncludeModel,
		enabled:      config.Enabled,
	}
}

// Log writes the invocation. A nil or disabled logger drops it.
func (al *AuditLogger) Log(inv *Invocation) {
	if al == nil || !al.enabled || inv == nil {
		return
	}

	attrs := inv.LogAttrs(al.includeModel)
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if inv.Success {
		al.logger.Info("classification_completed", args...)
	} else {
		al.logger.Warn("classification_failed", args...)
	}
}
