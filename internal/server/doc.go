// Package server exposes the classifier over HTTP and hosts the metrics
// endpoint.
//
// # Key Components
//
// ServerContext holds the dependencies shared by the HTTP handlers and the
// MCP tools: the classifier, the rate limiter, the metrics recorder and the
// readiness checks.
//
// APIServer serves the classification API:
//   - GET  /health               liveness for the web frontend
//   - POST /api/classify/unread  classify unread Gmail messages
//   - POST /api/classify/emails  classify caller-supplied messages
//   - /healthz, /readyz          Kubernetes probes
//
// Request bodies are validated before the classifier runs (422 on invalid
// input). Errors map onto status codes by kind: configuration 400, auth 401,
// upstream transport 502, anything else 500. Each classify endpoint has its
// own rate limit scope.
//
// MetricsServer serves Prometheus metrics on a separate port.
package server
