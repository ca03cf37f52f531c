package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/teemow/inboxtriage/internal/apperrors"
	"github.com/teemow/inboxtriage/internal/classifier"
	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/gmail"
	"github.com/teemow/inboxtriage/internal/instrumentation"
	"github.com/teemow/inboxtriage/internal/llm"
	"github.com/teemow/inboxtriage/internal/logging"
	"github.com/teemow/inboxtriage/internal/ratelimit"
)

// Routes.
const (
	PathHealth         = "/health"
	PathClassifyUnread = "/api/classify/unread"
	PathClassifyEmails = "/api/classify/emails"
)

// Rate limit scopes, one per classify endpoint.
const (
	ScopeClassifyUnread = "classify_unread"
	ScopeClassifyEmails = "classify_emails"
)

// Request bounds.
const (
	MaxResultsLimit = 25
	MaxTokensLimit  = 2000
	MaxEmailsLimit  = 50
)

const (
	// DefaultHTTPAddr is the default listen address for the API server.
	DefaultHTTPAddr = ":8000"

	// TransportHTTP names the HTTP API in audit logs.
	TransportHTTP = "http"

	maxRequestBytes = 4 << 20
)

// DefaultCORSOrigins are the frontend dev servers allowed by default.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

// optionsRequest carries the options shared by both classify endpoints.
// Pointer fields distinguish "absent" from zero so defaults can apply.
type optionsRequest struct {
	Model               string   `json:"model"`
	Labels              []string `json:"labels"`
	MaxTokens           *int     `json:"max_tokens"`
	IncludeReasoning    bool     `json:"include_reasoning"`
	UseStructuredOutput *bool    `json:"use_structured_output"`
	Timeout             *float64 `json:"timeout"`
	APIURL              string   `json:"api_url"`
}

type unreadRequest struct {
	MaxResults *int     `json:"max_results"`
	LabelIDs   []string `json:"label_ids"`
	optionsRequest
}

type emailsRequest struct {
	Emails []gmail.Record `json:"emails"`
	optionsRequest
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// validationError is answered with 422.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

func (o optionsRequest) toOptions() (classifier.Options, error) {
	opts := classifier.Options{
		Model:            o.Model,
		Labels:           o.Labels,
		IncludeReasoning: o.IncludeReasoning,
		APIURL:           o.APIURL,
		Transport:        TransportHTTP,
		Timeout:          llm.DefaultTimeout,
	}

	if o.MaxTokens != nil {
		if *o.MaxTokens < 1 || *o.MaxTokens > MaxTokensLimit {
			return opts, invalid("max_tokens must be between 1 and %d", MaxTokensLimit)
		}
		opts.MaxTokens = *o.MaxTokens
	}
	if o.UseStructuredOutput != nil {
		opts.PlainOutput = !*o.UseStructuredOutput
	}
	if o.Timeout != nil {
		if *o.Timeout <= 0 {
			return opts, invalid("timeout must be greater than 0")
		}
		opts.Timeout = time.Duration(*o.Timeout * float64(time.Second))
	}
	return opts, nil
}

func (r unreadRequest) toRequest() (classifier.UnreadRequest, error) {
	opts, err := r.toOptions()
	if err != nil {
		return classifier.UnreadRequest{}, err
	}

	req := classifier.UnreadRequest{LabelIDs: r.LabelIDs, Options: opts}
	if r.MaxResults != nil {
		if *r.MaxResults < 1 || *r.MaxResults > MaxResultsLimit {
			return req, invalid("max_results must be between 1 and %d", MaxResultsLimit)
		}
		req.MaxResults = int64(*r.MaxResults)
	}
	return req, nil
}

// APIServer serves the classification API.
//
// It routes the two classify endpoints through the rate limiter, answers
// the health endpoints and applies CORS for the configured browser origins.
// Request bodies are read up to maxRequestBytes.
type APIServer struct {
	serverContext *ServerContext
	health        *HealthChecker
	corsOrigins   []string
	httpServer    *http.Server
	logger        *slog.Logger
}

// APIOption configures an APIServer.
type APIOption func(*APIServer)

// WithCORSOrigins sets the allowed browser origins.
func WithCORSOrigins(origins []string) APIOption {
	return func(s *APIServer) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// WithAPILogger sets the logger.
func WithAPILogger(logger *slog.Logger) APIOption {
	return func(s *APIServer) { s.logger = logger }
}

// NewAPIServer creates the API server for sc.
func NewAPIServer(sc *ServerContext, opts ...APIOption) *APIServer {
	s := &APIServer{
		serverContext: sc,
		health:        NewHealthChecker(sc),
		corsOrigins:   DefaultCORSOrigins,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Health returns the server's health checker.
func (s *APIServer) Health() *HealthChecker {
	return s.health
}

// Handler returns the routed handler with CORS applied.
func (s *APIServer) Handler() http.Handler {
	sc := s.serverContext
	mux := http.NewServeMux()

	s.health.RegisterHealthEndpoints(mux)

	mux.Handle("POST "+PathClassifyUnread, s.instrument(PathClassifyUnread,
		ratelimit.Middleware(sc.Limiter(), ScopeClassifyUnread, sc.Metrics(), http.HandlerFunc(s.handleClassifyUnread))))
	mux.Handle("POST "+PathClassifyEmails, s.instrument(PathClassifyEmails,
		ratelimit.Middleware(sc.Limiter(), ScopeClassifyEmails, sc.Metrics(), http.HandlerFunc(s.handleClassifyEmails))))

	return s.cors(mux)
}

// Start starts the API server. It blocks until the server stops.
func (s *APIServer) Start(addr string) error {
	if addr == "" {
		addr = DefaultHTTPAddr
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Completion calls may take up to their timeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr, "cors_origins", s.corsOrigins)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *APIServer) handleClassifyUnread(w http.ResponseWriter, r *http.Request) {
	var body unreadRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.serverContext.Classifier().ClassifyUnread(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *APIServer) handleClassifyEmails(w http.ResponseWriter, r *http.Request) {
	var body emailsRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(body.Emails) > MaxEmailsLimit {
		s.writeError(w, r, invalid("emails must contain at most %d items", MaxEmailsLimit))
		return
	}
	opts, err := body.toOptions()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.serverContext.Classifier().Classify(r.Context(), body.Emails, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decodeBody reads a JSON request body. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return invalid("invalid request body: %v", err)
	}
	return nil
}

// StatusForError maps an error onto an HTTP status code.
//
// Invalid request fields map to 422 and configuration errors to 400.
// Authentication failures map to 401 and upstream transport failures to
// 502. Anything else is a 500. Rate-limit rejections never get here; the
// middleware answers them.
func StatusForError(err error) int {
	var ve *validationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case apperrors.IsConfiguration(err):
		return http.StatusBadRequest
	case apperrors.IsAuth(err):
		return http.StatusUnauthorized
	case apperrors.IsTransport(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusForError(err)
	logger := s.logger.With(logging.Operation(r.URL.Path), "http_status", status, logging.Err(err))
	if status >= http.StatusInternalServerError {
		logger.Error("request failed")
	} else {
		logger.Warn("request rejected")
	}
	writeJSON(w, status, errorResponse{Detail: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records http_requests_total and http_request_duration_seconds
// for requests to path.
func (s *APIServer) instrument(path string, next http.Handler) http.Handler {
	metrics := s.serverContext.Metrics()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := instrumentation.StartSpan(r.Context(), "http "+path)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		metrics.RecordHTTPRequest(ctx, r.Method, path, rec.status, time.Since(start))
		if rec.status >= http.StatusInternalServerError {
			instrumentation.SetSpanError(span, fmt.Errorf("HTTP %d", rec.status))
		} else {
			instrumentation.SetSpanSuccess(span)
		}
	})
}

// cors allows credentialed requests from the configured origins and answers
// preflight requests directly.
func (s *APIServer) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !slices.Contains(s.corsOrigins, origin) {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", r.Header.Get("Access-Control-Request-Method"))
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ParseCORSOrigins splits a comma separated origin list, falling back to
// DefaultCORSOrigins when it is empty.
func ParseCORSOrigins(value string) []string {
	origins := config.SplitList(value)
	if len(origins) == 0 {
		return DefaultCORSOrigins
	}
	return origins
}
