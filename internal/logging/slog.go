package logging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by every stage.
const (
	KeyOperation  = "operation"
	KeyService    = "service"
	KeyModel      = "model"
	KeySenderHash = "sender_hash"
	KeyDuration   = "duration"
	KeyStatus     = "status"
	KeyError      = "error"
	KeyTool       = "tool"
	KeyTraceID    = "trace_id"
	KeySpanID     = "span_id"
)

// Duplicated from the instrumentation package, which imports logging.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// New returns a text logger writing to w. Debug enables debug level output.
// Records logged with a context that carries a sampled span get trace_id
// and span_id attributes.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(&traceHandler{Handler: slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})})
}

type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String(KeyTraceID, sc.TraceID().String()),
			slog.String(KeySpanID, sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

func WithService(logger *slog.Logger, service string) *slog.Logger {
	return logger.With(slog.String(KeyService, service))
}

func Operation(op string) slog.Attr  { return slog.String(KeyOperation, op) }
func Model(model string) slog.Attr   { return slog.String(KeyModel, model) }
func Tool(tool string) slog.Attr     { return slog.String(KeyTool, tool) }
func Status(status string) slog.Attr { return slog.String(KeyStatus, status) }

// Duration is logged in seconds to match the histogram units.
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDuration, d.Seconds())
}

// Err returns the error attribute. A nil error yields an empty group,
// which slog omits from output.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail hashes a sender so log lines can be correlated without
// recording the address.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return "sender:" + hex.EncodeToString(sum[:8])
}

func SenderHash(sender string) slog.Attr {
	return slog.String(KeySenderHash, AnonymizeEmail(sender))
}

// SanitizeToken returns a length indicator without exposing token content.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
