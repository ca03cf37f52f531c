package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teemow/inboxtriage/internal/instrumentation"
)

const (
	// DefaultMetricsAddr is the default address for the metrics server.
	DefaultMetricsAddr = ":9090"

	DefaultMetricsReadTimeout  = 10 * time.Second
	DefaultMetricsWriteTimeout = 10 * time.Second
	DefaultMetricsIdleTimeout  = 60 * time.Second

	// DefaultShutdownTimeout bounds graceful shutdown of either server.
	DefaultShutdownTimeout = 30 * time.Second
)

// MetricsServerConfig holds configuration for the metrics server.
type MetricsServerConfig struct {
	// Addr defaults to DefaultMetricsAddr.
	Addr string

	// Enabled determines whether the metrics server should be started.
	Enabled bool

	// InstrumentationProvider supplies the Prometheus registry and scrape path.
	InstrumentationProvider *instrumentation.Provider

	// Health, when set, answers /readyz on the metrics port so probes can
	// target a port that is never exposed publicly.
	Health *HealthChecker
}

// MetricsServer serves Prometheus metrics on a dedicated port, apart from
// the classification API.
type MetricsServer struct {
	addr     string
	provider *instrumentation.Provider
	health   *HealthChecker

	mu         sync.Mutex
	httpServer *http.Server
}

// NewMetricsServer validates config and returns an unstarted server.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	if config.InstrumentationProvider == nil {
		return nil, errors.New("instrumentation provider is required for metrics server")
	}
	if !config.InstrumentationProvider.Enabled() {
		return nil, errors.New("instrumentation provider is not enabled")
	}
	if config.Addr == "" {
		config.Addr = DefaultMetricsAddr
	}
	return &MetricsServer{
		addr:     config.Addr,
		provider: config.InstrumentationProvider,
		health:   config.Health,
	}, nil
}

// Handler returns the metrics mux.
func (s *MetricsServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Push exporters (otlp, stdout) leave no registry behind; fall back to
	// the default one so Go runtime metrics are still scrapeable.
	metrics := promhttp.Handler()
	if g := s.provider.Gatherer(); g != nil {
		metrics = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	mux.Handle("GET "+s.provider.PrometheusEndpoint(), metrics)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.health != nil {
		mux.Handle("GET /readyz", s.health.ReadinessHandler())
	}
	return mux
}

// Start listens on the configured address and blocks until Shutdown.
func (s *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It returns
// http.ErrServerClosed after a graceful shutdown.
func (s *MetricsServer) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultMetricsReadTimeout,
		WriteTimeout:      DefaultMetricsWriteTimeout,
		IdleTimeout:       DefaultMetricsIdleTimeout,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	slog.Info("starting metrics server", "addr", ln.Addr().String(), "path", s.provider.PrometheusEndpoint())
	return srv.Serve(ln)
}

// Shutdown gracefully shuts down the metrics server. It is a no-op when
// the server was never started.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	slog.Info("shutting down metrics server")
	return srv.Shutdown(ctx)
}

// Addr returns the configured address for the metrics server.
func (s *MetricsServer) Addr() string {
	return s.addr
}
