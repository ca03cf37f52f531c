package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/google"
	"github.com/teemow/inboxtriage/internal/instrumentation"
	"github.com/teemow/inboxtriage/internal/logging"
	"github.com/teemow/inboxtriage/internal/ratelimit"
	"github.com/teemow/inboxtriage/internal/resources"
	"github.com/teemow/inboxtriage/internal/server"
	"github.com/teemow/inboxtriage/internal/tools/google_tools"
	"github.com/teemow/inboxtriage/internal/tools/triage_tools"
)

// Supported transports.
const (
	transportHTTP  = "http"
	transportStdio = "stdio"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

type serveFlags struct {
	sources sourceFlags

	transport   string
	httpAddr    string
	corsOrigins []string
	rateLimit   int
	metrics     MetricsConfig
}

func newServeCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the classification server",
		Long: `Serve unread-mail classification to other programs.

Supports two transports:
  - http: JSON API (default)
      GET  /health
      POST /api/classify/unread
      POST /api/classify/emails
  - stdio: MCP server exposing triage_classify_unread, triage_classify_emails,
    the Gmail authorization tools and the triage:// resources

Configuration:
  Listen address: --http-addr, else :$PORT, else :8000
  Browser origins: --cors-origins or CORS_ORIGINS (comma separated)
  Rate limit: --rate-limit requests per minute for each classify operation (0 disables)
  Completion: MODEL, OPENROUTER_API_KEY, OPENROUTER_API_URL from --env-file or the environment`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("metrics-enabled") {
				if v, err := strconv.ParseBool(os.Getenv("METRICS_ENABLED")); err == nil {
					f.metrics.Enabled = v
				}
			}
			if !cmd.Flags().Changed("metrics-addr") {
				f.metrics.Addr = config.GetEnvOrDefault("METRICS_ADDR", f.metrics.Addr)
			}
			return runServe(f)
		},
	}

	f.sources.bind(cmd)
	cmd.Flags().StringVar(&f.transport, "transport", transportHTTP, "Transport type: http or stdio")
	cmd.Flags().StringVar(&f.httpAddr, "http-addr", "", "HTTP API address (default: :$PORT, else :8000)")
	cmd.Flags().StringSliceVar(&f.corsOrigins, "cors-origins", nil, "Allowed browser origins. Can also use CORS_ORIGINS env var.")
	cmd.Flags().IntVar(&f.rateLimit, "rate-limit", ratelimit.DefaultLimit, "Requests per minute for each classify operation (0 disables)")
	cmd.Flags().BoolVar(&f.metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&f.metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// resolveHTTPAddr returns the flag value, else ":$PORT", else the default.
func resolveHTTPAddr(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return server.DefaultHTTPAddr
}

// resolveCORSOrigins returns the flag values, else CORS_ORIGINS, else the
// default development origins.
func resolveCORSOrigins(flagValues []string) []string {
	if len(flagValues) > 0 {
		return flagValues
	}
	return server.ParseCORSOrigins(os.Getenv("CORS_ORIGINS"))
}

// newLimiter returns nil when limit disables rate limiting.
func newLimiter(limit int) *ratelimit.FixedWindow {
	if limit <= 0 {
		return nil
	}
	return ratelimit.NewFixedWindow(limit)
}

// readinessChecks reports whether the token file exists and the completion
// endpoint is configured.
func readinessChecks(store *google.FileTokenStore, settings config.Settings) []server.ContextOption {
	return []server.ContextOption{
		server.WithReadinessCheck("gmail_token", func() error {
			if !store.HasToken() {
				return errors.New(google.AuthenticationHint(store))
			}
			return nil
		}),
		server.WithReadinessCheck("completion", func() error {
			if !settings.Configured() {
				return fmt.Errorf("%s and %s must be set", config.EnvAPIKey, config.EnvAPIURL)
			}
			return nil
		}),
	}
}

func runServe(f serveFlags) error {
	if f.transport != transportHTTP && f.transport != transportStdio {
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)", f.transport, transportHTTP, transportStdio)
	}

	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.WithService(slog.Default(), "inboxtriage")

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	var audit *instrumentation.AuditLogger
	if provider.Enabled() {
		audit = instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)
	}

	p, err := f.sources.buildPipeline(provider.Metrics(), audit, logger)
	if err != nil {
		return err
	}

	opts := []server.ContextOption{
		server.WithLimiter(newLimiter(f.rateLimit)),
		server.WithMetrics(provider.Metrics()),
	}
	opts = append(opts, readinessChecks(p.store, p.settings)...)

	serverContext, err := server.NewServerContext(shutdownCtx, p.classifier, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		_ = serverContext.Shutdown()
	}()

	if !p.settings.Configured() {
		logger.Warn("completion endpoint is not configured; classify requests will return diagnostics",
			"env_file", f.sources.envFile)
	}

	if f.transport == transportStdio {
		return runStdioServer(newMCPServer(), serverContext, p.store)
	}

	apiServer := server.NewAPIServer(serverContext,
		server.WithCORSOrigins(resolveCORSOrigins(f.corsOrigins)),
		server.WithAPILogger(logger),
	)

	// Metrics are only served next to the HTTP API; stdio owns the process streams.
	if f.metrics.Enabled && provider.Enabled() {
		metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    f.metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
			Health:                  apiServer.Health(),
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", logging.Err(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Warn("error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	return runHTTPServer(shutdownCtx, apiServer, resolveHTTPAddr(f.httpAddr), logger)
}

func newMCPServer() *mcpserver.MCPServer {
	// Note: mcp.Implementation has Title field but WithTitle() ServerOption not available in v0.43.0
	return mcpserver.NewMCPServer("inboxtriage", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, store *google.FileTokenStore) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Triage",
			register: func() error {
				return triage_tools.RegisterTriageTools(mcpSrv, sc)
			},
		},
		{
			name: "Google",
			register: func() error {
				return google_tools.RegisterGoogleTools(mcpSrv, sc, store)
			},
		},
		{
			name: "Triage Resources",
			register: func() error {
				return resources.RegisterTriageResources(mcpSrv, sc)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}
	return nil
}

func runStdioServer(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, store *google.FileTokenStore) error {
	if err := registerAllTools(mcpSrv, sc, store); err != nil {
		return err
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runHTTPServer(ctx context.Context, apiServer *server.APIServer, addr string, logger *slog.Logger) error {
	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down API server: %w", err)
		}
		return nil
	}
}
