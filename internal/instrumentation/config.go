package instrumentation

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/inboxtriage/internal/config"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName is the name of the service (default: inboxtriage)
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// ServiceInstanceID is the unique instance identifier (default: hostname)
	ServiceInstanceID string

	// Enabled determines if instrumentation is active (default: true)
	// Set to false via INSTRUMENTATION_ENABLED=false to disable metrics and tracing
	Enabled bool

	// MetricsExporter specifies the metrics exporter type
	// Options: "prometheus", "otlp", "stdout" (default: "prometheus")
	MetricsExporter string

	// TracingExporter specifies the tracing exporter type
	// Options: "otlp", "stdout", "none" (default: "none")
	TracingExporter string

	// OTLPEndpoint is the OTLP collector endpoint, without protocol prefix
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP export. Local development only.
	OTLPInsecure bool

	// TraceSamplingRate is the sampling rate for traces (0.0 to 1.0, default: 0.1)
	TraceSamplingRate float64

	// PrometheusEndpoint is the path for the Prometheus metrics endpoint (default: "/metrics")
	PrometheusEndpoint string

	// DetailedLabels adds the sender domain to classified item metrics.
	// Keep disabled in production to bound cardinality.
	DetailedLabels bool

	// AuditLogging configures the per-classification audit log.
	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	// Enabled determines if audit logging is active (default: true)
	Enabled bool

	// IncludeModel adds the model identifier to audit records (default: true)
	IncludeModel bool
}

// DefaultConfig returns a Config with defaults taken from environment variables.
func DefaultConfig() Config {
	env := config.GetEnvOrDefault
	return Config{
		ServiceName:        env("OTEL_SERVICE_NAME", "inboxtriage"),
		ServiceVersion:     "unknown",
		ServiceInstanceID:  env("OTEL_SERVICE_INSTANCE_ID", ""),
		Enabled:            envBool("INSTRUMENTATION_ENABLED", true),
		MetricsExporter:    env("METRICS_EXPORTER", ExporterPrometheus),
		TracingExporter:    env("TRACING_EXPORTER", ExporterNone),
		OTLPEndpoint:       env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:       envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSamplingRate:  envFloat("OTEL_TRACES_SAMPLER_ARG", 0.1),
		PrometheusEndpoint: env("PROMETHEUS_ENDPOINT", DefaultPrometheusEndpoint),
		DetailedLabels:     envBool("METRICS_DETAILED_LABELS", false),
		AuditLogging: AuditLoggingConfig{
			Enabled:      envBool("AUDIT_LOGGING_ENABLED", true),
			IncludeModel: envBool("AUDIT_LOGGING_INCLUDE_MODEL", true),
		},
	}
}

var (
	metricsExporters = []string{ExporterPrometheus, ExporterOTLP, ExporterStdout}
	tracingExporters = []string{ExporterOTLP, ExporterStdout, ExporterNone}
)

// Validate checks if the configuration is valid. Empty exporter names
// select the defaults and are accepted.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}
	if c.MetricsExporter != "" && !slices.Contains(metricsExporters, c.MetricsExporter) {
		return fmt.Errorf("invalid metrics exporter %q, must be one of: %s", c.MetricsExporter, strings.Join(metricsExporters, ", "))
	}
	if c.TracingExporter != "" && !slices.Contains(tracingExporters, c.TracingExporter) {
		return fmt.Errorf("invalid tracing exporter %q, must be one of: %s", c.TracingExporter, strings.Join(tracingExporters, ", "))
	}
	if c.OTLPEndpoint == "" {
		if c.TracingExporter == ExporterOTLP {
			return fmt.Errorf("OTLP endpoint is required when using OTLP tracing exporter")
		}
		if c.MetricsExporter == ExporterOTLP {
			return fmt.Errorf("OTLP endpoint is required when using OTLP metrics exporter")
		}
	}
	if c.PrometheusEndpoint != "" && !strings.HasPrefix(c.PrometheusEndpoint, "/") {
		return fmt.Errorf("prometheus endpoint must be an absolute path, got %q", c.PrometheusEndpoint)
	}
	return nil
}

// envBool and envFloat keep the default when the variable does not parse,
// so a typo in deployment config never disables the server.
func envBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("ignoring unparseable environment variable", "component", "instrumentation", "key", key)
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("ignoring unparseable environment variable", "component", "instrumentation", "key", key)
		return def
	}
	return v
}

// Constants for metric label values.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Token refresh results
	OAuthResultSuccess = "success"
	OAuthResultFailure = "failure"

	// Upstream service names
	ServiceGmail      = "gmail"
	ServiceOAuth      = "oauth"
	ServiceCompletion = "completion"

	// Classification sources
	SourceUnread = "unread"
	SourceEmails = "emails"

	// Classification outcomes beyond success/error
	StatusNoResponse    = "no_response"
	StatusProviderError = "provider_error"
	StatusParseFailure  = "parse_failure"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// Metric recording intervals
	DefaultMetricInterval = 10 * time.Second

	// DefaultPrometheusEndpoint is the scrape path on the metrics server.
	DefaultPrometheusEndpoint = "/metrics"
)
