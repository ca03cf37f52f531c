package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/teemow/inboxtriage/internal/apperrors"
	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/extract"
	"github.com/teemow/inboxtriage/internal/gmail"
	"github.com/teemow/inboxtriage/internal/instrumentation"
	"github.com/teemow/inboxtriage/internal/llm"
	"github.com/teemow/inboxtriage/internal/logging"
)

// Diagnostic messages set on Result.Error.
const (
	ErrNoResponse    = "No response from completion provider."
	ErrProvider      = "Completion provider error"
	ErrParseResponse = "Failed to parse JSON response."
)

// Fetcher lists unread mail.
type Fetcher interface {
	FetchUnread(ctx context.Context, maxResults int64, labelIDs []string) ([]gmail.Record, error)
}

// Completer runs a chat completion.
//
// A nil response means the completion client is not configured. Failures
// arrive as an error envelope on the response, never as a Go error, so the
// classifier can turn every outcome into a Result.
type Completer interface {
	Complete(ctx context.Context, model string, messages []llm.Message, opts llm.Options) *llm.Response
}

// Options tunes one classification run.
type Options struct {
	// Model overrides the configured default model.
	Model string
	// Labels overrides config.DefaultLabels.
	Labels []string
	// MaxTokens defaults to config.DefaultMaxTokens when zero.
	MaxTokens int
	// IncludeReasoning keeps the model's reasoning in the response.
	IncludeReasoning bool
	// PlainOutput drops the json_schema response format for models that
	// reject constrained decoding.
	PlainOutput bool
	// APIURL overrides the completion endpoint.
	APIURL string
	// Timeout bounds the completion call; llm.DefaultTimeout when zero.
	Timeout time.Duration
	// Transport names the entry point in the audit log.
	Transport string
}

// UnreadRequest selects the unread mail to classify.
type UnreadRequest struct {
	MaxResults int64
	LabelIDs   []string
	Options
}

// Result is the outcome of a classification run.
//
// Items is never nil. Diagnostic fields are set only when the model's answer
// could not be used: Error names the failure, Details carries the provider's
// error envelope, and RawContent/RawResponse hold what the model produced so
// a caller can decide whether to retry with different options.
type Result struct {
	Items       []extract.Item  `json:"items"`
	Error       string          `json:"error,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	RawContent  string          `json:"raw_content,omitempty"`
	RawResponse json.RawMessage `json:"raw_response,omitempty"`
}

// Classifier composes mail fetching, completion and extraction.
//
// A Classifier is safe for concurrent use. Each run sends one completion
// request for the whole batch, records one classification metric and writes
// one audit entry, whatever the outcome.
//
// Usage:
//
//	c := classifier.New(client, settings.Model, classifier.WithFetcher(fetcher))
//	result, err := c.ClassifyUnread(ctx, classifier.UnreadRequest{MaxResults: 20})
type Classifier struct {
	completer    Completer
	fetcher      Fetcher
	defaultModel string
	metrics      *instrumentation.Metrics
	audit        *instrumentation.AuditLogger
	logger       *slog.Logger
}

// buildMessages is swapped in tests to reach the encode failure path.
var buildMessages = BuildMessages

// Option configures a Classifier.
type Option func(*Classifier)

// WithFetcher sets the source of unread mail for ClassifyUnread.
func WithFetcher(f Fetcher) Option {
	return func(c *Classifier) { c.fetcher = f }
}

// WithMetrics records classification outcomes on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Classifier) { c.metrics = m }
}

// WithAuditLogger writes one audit entry per run.
func WithAuditLogger(al *instrumentation.AuditLogger) Option {
	return func(c *Classifier) { c.audit = al }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) { c.logger = logger }
}

// New creates a Classifier using defaultModel when a run names no model.
func New(completer Completer, defaultModel string, opts ...Option) *Classifier {
	c := &Classifier{
		completer:    completer,
		defaultModel: defaultModel,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClassifyUnread fetches unread mail and classifies it.
//
// Fetch failures are returned as errors and never reach the completion
// endpoint. A classifier built without WithFetcher returns a configuration
// error.
func (c *Classifier) ClassifyUnread(ctx context.Context, req UnreadRequest) (*Result, error) {
	inv := instrumentation.NewInvocation(req.Transport, instrumentation.SourceUnread)

	if c.fetcher == nil {
		err := apperrors.Configuration("no mail fetcher configured", nil)
		c.metrics.RecordClassification(ctx, instrumentation.SourceUnread, instrumentation.StatusError)
		c.audit.Log(inv.Complete(0, 0, "", err))
		return nil, err
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = config.DefaultMaxResults
	}

	records, err := c.fetcher.FetchUnread(ctx, maxResults, req.LabelIDs)
	if err != nil {
		c.metrics.RecordClassification(ctx, instrumentation.SourceUnread, instrumentation.StatusError)
		c.audit.Log(inv.Complete(0, 0, "", err))
		return nil, err
	}

	return c.classify(ctx, inv, records, req.Options)
}

// Classify labels and summarizes caller-supplied records.
//
// An empty batch returns empty items without a completion call. The only
// error returned is a configuration error for a missing model; unusable
// answers are reported through the Result diagnostic fields instead.
func (c *Classifier) Classify(ctx context.Context, records []gmail.Record, opts Options) (*Result, error) {
	inv := instrumentation.NewInvocation(opts.Transport, instrumentation.SourceEmails)
	return c.classify(ctx, inv, records, opts)
}

func (c *Classifier) classify(ctx context.Context, inv *instrumentation.Invocation, records []gmail.Record, opts Options) (*Result, error) {
	if len(records) == 0 {
		c.metrics.RecordClassification(ctx, inv.Source, instrumentation.StatusSuccess)
		c.audit.Log(inv.Complete(0, 0, "", nil))
		return &Result{Items: []extract.Item{}}, nil
	}

	model := opts.Model
	if model == "" {
		model = c.defaultModel
	}
	if model == "" {
		err := apperrors.Configuration("MODEL is missing: set "+config.EnvModel+" in the env file or pass a model", nil)
		c.metrics.RecordClassification(ctx, inv.Source, instrumentation.StatusError)
		c.audit.Log(inv.Complete(len(records), 0, "", err))
		return nil, err
	}
	inv.WithModel(model)

	labels := opts.Labels
	if len(labels) == 0 {
		labels = config.DefaultLabels
	}

	normalized := make([]gmail.Record, len(records))
	for i, r := range records {
		normalized[i] = gmail.Normalize(r, config.MaxBodyChars)
	}

	messages, err := buildMessages(normalized, labels)
	if err != nil {
		c.metrics.RecordClassification(ctx, inv.Source, instrumentation.StatusError)
		c.audit.Log(inv.Complete(len(normalized), 0, "", err))
		return nil, err
	}

	ctx, span := instrumentation.StartSpan(ctx, "classifier.classify",
		instrumentation.NewSpanAttributeBuilder().
			WithModel(model).
			WithRecordCount(len(normalized)).
			WithStructuredOutput(!opts.PlainOutput).
			WithSource(inv.Source).
			Build()...)
	defer span.End()
	inv.WithSpanContext(ctx)

	logger := logging.WithOperation(c.logger, "classify").With(logging.Model(model), "records", len(normalized))

	resp := c.completer.Complete(ctx, model, messages, completionOptions(labels, opts))
	result, status := buildResult(resp, normalized)

	if status == instrumentation.StatusSuccess {
		instrumentation.SetSpanSuccess(span)
		for _, item := range result.Items {
			label := instrumentation.LabelValue(item.Label, labels)
			c.metrics.RecordClassifiedItem(ctx, label, item.Sender)
			logger.DebugContext(ctx, "classified", "id", item.ID, "label", label, logging.SenderHash(item.Sender))
		}
		span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithItemCount(len(result.Items)).Build()...)
		logger.Info("classification completed", "items", len(result.Items))
	} else {
		instrumentation.SetSpanError(span, errors.New(result.Error))
		logger.Warn("classification produced no usable answer", logging.Status(status), "diagnostic", result.Error)
	}

	c.metrics.RecordClassification(ctx, inv.Source, status)
	c.audit.Log(inv.Complete(len(normalized), len(result.Items), result.Error, nil))
	return result, nil
}

// completionOptions maps run options onto the completion request.
func completionOptions(labels []string, opts Options) llm.Options {
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = config.DefaultMaxTokens
	}

	out := llm.Options{
		MaxTokens: maxTokens,
		APIURL:    opts.APIURL,
		Timeout:   opts.Timeout,
	}
	if !opts.IncludeReasoning {
		out.Reasoning = map[string]any{"exclude": true}
	}
	if !opts.PlainOutput {
		out.ResponseFormat = ResponseFormat(labels)
		out.Provider = map[string]any{"require_parameters": true}
	}
	return out
}

// buildResult turns a completion response into a Result and the status
// recorded for it. Only an answer the extractor found items in, or an
// explicit empty list, is a success; every other outcome returns empty
// items with the diagnostic fields for the caller to inspect.
func buildResult(resp *llm.Response, records []gmail.Record) (*Result, string) {
	if resp == nil {
		return &Result{Items: []extract.Item{}, Error: ErrNoResponse}, instrumentation.StatusNoResponse
	}
	if resp.Failed() {
		return &Result{Items: []extract.Item{}, Error: ErrProvider, Details: resp.Details()}, instrumentation.StatusProviderError
	}
	if _, ok := extract.ProviderError(resp.Raw); ok {
		return &Result{Items: []extract.Item{}, Error: ErrProvider, Details: resp.Raw}, instrumentation.StatusProviderError
	}

	// Valid JSON with no recognizable item shape is as unusable as prose.
	out := extract.Extract(resp.Raw)
	if !out.Parsed || !out.Found {
		return &Result{
			Items:       []extract.Item{},
			Error:       ErrParseResponse,
			RawContent:  out.Content,
			RawResponse: resp.Raw,
		}, instrumentation.StatusParseFailure
	}

	backfill(out.Items, records)
	return &Result{Items: out.Items}, instrumentation.StatusSuccess
}

// backfill copies subject and sender from the record with the same ID into
// items that left them empty. With duplicate IDs the last record wins.
func backfill(items []extract.Item, records []gmail.Record) {
	byID := make(map[string]gmail.Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	for i := range items {
		if items[i].ID == "" {
			continue
		}
		src, ok := byID[items[i].ID]
		if !ok {
			continue
		}
		if items[i].Subject == "" {
			items[i].Subject = src.Subject
		}
		if items[i].Sender == "" {
			items[i].Sender = src.Sender
		}
	}
}
