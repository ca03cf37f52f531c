package server

import (
	"net/http"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// HealthChecker serves the plain /health endpoint used by the web frontend
// and the /healthz, /readyz probes for orchestrators.
type HealthChecker struct {
	ready         atomic.Bool
	serverContext *ServerContext
	startTime     time.Time
}

// NewHealthChecker creates a HealthChecker that starts out ready.
// sc may be nil in tests.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse is the body of /readyz and /healthz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// RateLimitInfo describes the configured classify rate limit.
type RateLimitInfo struct {
	Limit  int    `json:"limit"`
	Window string `json:"window"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status    string            `json:"status"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
	RateLimit *RateLimitInfo    `json:"rate_limit,omitempty"`
	Metrics   bool              `json:"metrics"`
}

// evaluate runs the state and dependency checks. ok is false if any failed.
func (h *HealthChecker) evaluate() (checks map[string]string, ok bool) {
	checks = map[string]string{"ready": healthStatusOK, "shutdown": healthStatusOK}
	ok = true

	if !h.ready.Load() {
		checks["ready"] = healthStatusNotReady
		ok = false
	}

	sc := h.serverContext
	if sc == nil {
		return checks, ok
	}
	if sc.IsShutdown() {
		checks["shutdown"] = healthStatusShuttingDown
		ok = false
	}
	for _, check := range sc.ReadinessChecks() {
		if err := check.Check(); err != nil {
			checks[check.Name] = err.Error()
			ok = false
			continue
		}
		checks[check.Name] = healthStatusOK
	}
	return checks, ok
}

// LivenessHandler answers /healthz: the process is up and serving.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler answers /readyz. It fails while a dependency check fails,
// e.g. before 'inboxtriage auth' has written the token file.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks, ok := h.evaluate()
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: healthStatusNotReady, Checks: checks})
			return
		}
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK, Checks: checks})
	})
}

// HealthHandler answers /health with {"status":"ok"} while the process is serving.
func (h *HealthChecker) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": healthStatusOK})
	})
}

// DetailedHealthHandler answers /healthz/detailed with the dependency checks,
// uptime and the limiter configuration.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks, ok := h.evaluate()
		response := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
			Checks: checks,
		}

		if sc := h.serverContext; sc != nil {
			if limiter := sc.Limiter(); limiter != nil {
				response.RateLimit = &RateLimitInfo{Limit: limiter.Limit(), Window: limiter.Window().String()}
			}
			response.Metrics = sc.Metrics() != nil
		}

		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
			response.Status = healthStatusNotReady
			if checks["shutdown"] != healthStatusOK {
				response.Status = healthStatusShuttingDown
			}
		}
		writeJSON(w, status, response)
	})
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("GET "+PathHealth, h.HealthHandler())
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}
