package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer name used for all inboxtriage spans.
const TracerName = "github.com/teemow/inboxtriage"

// Span attribute keys.
const (
	SpanAttrTool        = "mcp.tool"
	SpanAttrService     = "google.service"
	SpanAttrOperation   = "google.operation"
	SpanAttrModel       = "triage.model"
	SpanAttrRecordCount = "triage.record_count"
	SpanAttrItemCount   = "triage.item_count"
	SpanAttrLabelIDs    = "triage.label_ids"
	SpanAttrStructured  = "triage.structured_output"
	SpanAttrSource      = "triage.source"
)

// SpanAttributeBuilder collects span attributes under the keys above.
// Empty string and slice values are skipped where noted.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{attrs: make([]attribute.KeyValue, 0, 8)}
}

func (b *SpanAttributeBuilder) add(kv attribute.KeyValue) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, kv)
	return b
}

func (b *SpanAttributeBuilder) WithTool(tool string) *SpanAttributeBuilder {
	return b.add(attribute.String(SpanAttrTool, tool))
}

// WithGoogleCall tags a Google API call with its service and operation.
func (b *SpanAttributeBuilder) WithGoogleCall(service, operation string) *SpanAttributeBuilder {
	return b.add(attribute.String(SpanAttrService, service)).add(attribute.String(SpanAttrOperation, operation))
}

// WithModel skips an empty model so unconfigured runs do not emit a blank attribute.
func (b *SpanAttributeBuilder) WithModel(model string) *SpanAttributeBuilder {
	if model == "" {
		return b
	}
	return b.add(attribute.String(SpanAttrModel, model))
}

// WithRecordCount is the number of records sent for classification.
func (b *SpanAttributeBuilder) WithRecordCount(n int) *SpanAttributeBuilder {
	return b.add(attribute.Int(SpanAttrRecordCount, n))
}

// WithItemCount is the number of classified items parsed from the answer.
func (b *SpanAttributeBuilder) WithItemCount(n int) *SpanAttributeBuilder {
	return b.add(attribute.Int(SpanAttrItemCount, n))
}

func (b *SpanAttributeBuilder) WithLabelIDs(ids []string) *SpanAttributeBuilder {
	if len(ids) == 0 {
		return b
	}
	return b.add(attribute.StringSlice(SpanAttrLabelIDs, ids))
}

// WithStructuredOutput records whether a JSON schema was requested.
func (b *SpanAttributeBuilder) WithStructuredOutput(on bool) *SpanAttributeBuilder {
	return b.add(attribute.Bool(SpanAttrStructured, on))
}

// WithSource is SourceUnread or SourceEmails.
func (b *SpanAttributeBuilder) WithSource(source string) *SpanAttributeBuilder {
	return b.add(attribute.String(SpanAttrSource, source))
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

func startSpan(ctx context.Context, name string, kind trace.SpanKind, attrs []attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(kind),
	)
}

// StartSpan starts an internal span. The caller must end it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return startSpan(ctx, name, trace.SpanKindInternal, attrs)
}

// StartToolSpan starts a server span for an MCP tool invocation.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	b := NewSpanAttributeBuilder().WithTool(toolName)
	return startSpan(ctx, "tool."+toolName, trace.SpanKindServer, append(b.Build(), attrs...))
}

// StartGoogleAPISpan starts a client span named google.<service>.<operation>.
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	b := NewSpanAttributeBuilder().WithGoogleCall(service, operation)
	return startSpan(ctx, "google."+service+"."+operation, trace.SpanKindClient, append(b.Build(), attrs...))
}

// StartCompletionSpan starts a client span for a completion endpoint call.
// The model attribute is always set, even when empty.
func StartCompletionSpan(ctx context.Context, model string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{attribute.String(SpanAttrModel, model)}, attrs...)
	return startSpan(ctx, "completion.create", trace.SpanKindClient, all)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID of the span in ctx, or "" without a
// valid span.
func GetTraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// GetSpanID is GetTraceID for the span ID.
func GetSpanID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.SpanID().String()
	}
	return ""
}
