// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for inboxtriage.
//
// # Metrics
//
// HTTP:
//   - http_requests_total, http_request_duration_seconds by method, path, status
//
// Upstream calls:
//   - google_api_operations_total, google_api_operation_duration_seconds by service, operation, status
//   - oauth_token_refresh_total by result
//   - completion_requests_total, completion_request_duration_seconds by status
//
// Classification:
//   - classifications_total by source and status
//   - classified_items_total by label (plus sender_domain with detailed labels)
//   - rate_limit_rejections_total by scope
//
// MCP:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds by tool and status
//
// # Tracing
//
// Spans are created for Gmail calls (google.gmail.<operation>), the token
// refresh (google.oauth.refresh), the completion call (completion.create),
// each classification run and each MCP tool call (tool.<name>).
//
// # Configuration
//
// Environment variables:
//   - INSTRUMENTATION_ENABLED: enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: service name (default: inboxtriage)
//   - METRICS_DETAILED_LABELS: add sender domains to item metrics
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_MODEL: audit log controls
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	metrics := provider.Metrics()
//	metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, "list", "success", time.Since(start))
//
// All Metrics methods are safe to call on a nil *Metrics.
package instrumentation
