package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/teemow/inboxtriage/internal/classifier"
	"github.com/teemow/inboxtriage/internal/gmail"
	"github.com/teemow/inboxtriage/internal/instrumentation"
	"github.com/teemow/inboxtriage/internal/ratelimit"
)

// Classifier runs classifications for the HTTP and MCP handlers.
type Classifier interface {
	ClassifyUnread(ctx context.Context, req classifier.UnreadRequest) (*classifier.Result, error)
	Classify(ctx context.Context, records []gmail.Record, opts classifier.Options) (*classifier.Result, error)
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck struct {
	Name  string
	Check func() error
}

// ServerContext holds the dependencies shared by all request handlers.
//
// The HTTP API and the MCP tools read the same classifier, limiter and
// metrics from it, so both surfaces share one rate-limit budget per scope.
// Shutdown cancels the context handed to long-running work.
type ServerContext struct {
	ctx        context.Context
	cancel     context.CancelFunc
	classifier Classifier
	limiter    *ratelimit.FixedWindow
	metrics    *instrumentation.Metrics
	checks     []ReadinessCheck
	mu         sync.RWMutex
	shutdown   bool
}

// ContextOption configures a ServerContext.
type ContextOption func(*ServerContext)

// WithLimiter applies limiter to the classify endpoints.
func WithLimiter(limiter *ratelimit.FixedWindow) ContextOption {
	return func(sc *ServerContext) { sc.limiter = limiter }
}

// WithMetrics records request metrics on m.
func WithMetrics(m *instrumentation.Metrics) ContextOption {
	return func(sc *ServerContext) { sc.metrics = m }
}

// WithReadinessCheck adds a check to the readiness probe.
func WithReadinessCheck(name string, check func() error) ContextOption {
	return func(sc *ServerContext) {
		sc.checks = append(sc.checks, ReadinessCheck{Name: name, Check: check})
	}
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, c Classifier, opts ...ContextOption) (*ServerContext, error) {
	if c == nil {
		return nil, fmt.Errorf("classifier is required")
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:        shutdownCtx,
		cancel:     cancel,
		classifier: c,
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Classifier returns the classifier
func (sc *ServerContext) Classifier() Classifier {
	return sc.classifier
}

// Limiter returns the rate limiter, or nil when requests are not limited
func (sc *ServerContext) Limiter() *ratelimit.FixedWindow {
	return sc.limiter
}

// Metrics returns the metrics recorder, which may be nil
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// ReadinessChecks returns the registered readiness checks
func (sc *ServerContext) ReadinessChecks() []ReadinessCheck {
	return sc.checks
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
