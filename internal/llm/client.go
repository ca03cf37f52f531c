package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/instrumentation"
	"github.com/teemow/inboxtriage/internal/logging"
)

// chatCompletionsPath is the suffix the SDK appends to its base URL.
const chatCompletionsPath = "/chat/completions"

// Client calls an OpenAI-compatible chat completion endpoint through the
// openai-go SDK.
//
// The SDK client is built once with the API key, the instrumented HTTP
// client and retries disabled. The endpoint is resolved per call, so a
// single Client can serve requests that override the configured URL.
type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
	metrics    *instrumentation.Metrics
	logger     *slog.Logger

	sdk openai.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client the SDK sends requests through.
// The default wraps http.DefaultTransport with otelhttp.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithMetrics records completion calls on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a Client from the completion settings.
//
// An empty API key or URL is accepted here. Complete reports the missing
// setting and returns nil, which callers surface as "no response".
func NewClient(settings config.Settings, opts ...Option) *Client {
	c := &Client{
		apiKey: settings.APIKey,
		apiURL: settings.APIURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithService(c.logger, instrumentation.ServiceCompletion)
	c.sdk = openai.NewClient(
		option.WithAPIKey(c.apiKey),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
	)
	return c
}

// Configured reports whether an API key and a default endpoint are set.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.apiURL != ""
}

// Complete sends messages to the completion endpoint and returns the raw
// response or an error envelope.
//
// It returns nil when no API key is set or no endpoint is known for the
// call. Every other outcome, including timeouts and non-2xx answers, is a
// non-nil Response. The call is bounded by opts.Timeout, or DefaultTimeout
// when that is zero, and is never retried.
func (c *Client) Complete(ctx context.Context, model string, messages []Message, opts Options) *Response {
	if c.apiKey == "" {
		c.logger.Warn("completion API key is missing", "env", config.EnvAPIKey)
		return nil
	}
	target := opts.APIURL
	if target == "" {
		target = c.apiURL
	}
	if target == "" {
		c.logger.Warn("completion API URL is missing", "env", config.EnvAPIURL)
		return nil
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, span := instrumentation.StartCompletionSpan(ctx, model,
		instrumentation.NewSpanAttributeBuilder().WithStructuredOutput(opts.ResponseFormat != nil).Build()...)
	defer span.End()

	start := time.Now()
	resp := c.do(ctx, target, timeout, model, messages, opts)

	status := instrumentation.StatusSuccess
	if resp.Err != nil {
		status = resp.Err.Kind
		instrumentation.SetSpanError(span, fmt.Errorf("completion failed: %s", resp.Err.Kind))
		c.logger.Warn("completion request failed",
			logging.Model(model),
			"kind", resp.Err.Kind,
			"http_status", resp.Err.Status,
			"reason", resp.Err.Reason,
		)
		if resp.Err.Body != "" {
			c.logger.Debug("completion error body", "body", resp.Err.Body)
		}
	} else {
		instrumentation.SetSpanSuccess(span)
		c.logger.Debug("completion request succeeded", logging.Model(model), "bytes", len(resp.Raw))
	}
	c.metrics.RecordCompletionRequest(ctx, status, time.Since(start))

	return resp
}

func (c *Client) do(ctx context.Context, target string, timeout time.Duration, model string, messages []Message, opts Options) *Response {
	reqOpts, err := endpointOptions(target)
	if err != nil {
		return failure(KindTransport, 0, err.Error(), "")
	}

	var (
		body     []byte
		httpResp *http.Response
	)
	reqOpts = append(reqOpts,
		option.WithRequestTimeout(timeout),
		option.WithResponseInto(&httpResp),
		option.WithResponseBodyInto(&body),
	)
	for k, v := range opts.Headers {
		reqOpts = append(reqOpts, option.WithHeader(k, v))
	}
	// OpenRouter extensions have no typed field in the SDK params.
	if opts.Reasoning != nil {
		reqOpts = append(reqOpts, option.WithJSONSet("reasoning", opts.Reasoning))
	}
	if opts.Provider != nil {
		reqOpts = append(reqOpts, option.WithJSONSet("provider", opts.Provider))
	}
	if opts.ResponseFormat != nil {
		reqOpts = append(reqOpts, option.WithJSONSet("response_format", opts.ResponseFormat))
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: chatMessages(messages),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := c.sdk.Chat.Completions.New(callCtx, params, reqOpts...); err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return failure(KindHTTP, apiErr.StatusCode, http.StatusText(apiErr.StatusCode), errorBody(apiErr))
		}
		return transportFailure(callCtx, err)
	}

	status := http.StatusOK
	if httpResp != nil {
		status = httpResp.StatusCode
	}
	if !json.Valid(body) {
		return failure(KindDecode, status, "response body is not valid JSON", string(body))
	}
	return &Response{Raw: json.RawMessage(body)}
}

// endpointOptions points the SDK at target. A URL ending in the standard
// chat completions path becomes the base URL. Any other URL is pinned
// exactly by a middleware, since the SDK would otherwise append the path.
func endpointOptions(target string) ([]option.RequestOption, error) {
	trimmed := strings.TrimRight(target, "/")
	if base, ok := strings.CutSuffix(trimmed, chatCompletionsPath); ok {
		return []option.RequestOption{option.WithBaseURL(base + "/")}, nil
	}

	pinned, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid completion URL: %w", err)
	}
	return []option.RequestOption{
		option.WithBaseURL(pinned.Scheme + "://" + pinned.Host + "/"),
		option.WithMiddleware(func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
			u := *pinned
			req.URL = &u
			req.Host = u.Host
			return next(req)
		}),
	}, nil
}

func chatMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// errorBody returns the body of a non-2xx answer. The SDK restores the
// response body after decoding it into the error.
func errorBody(apiErr *openai.Error) string {
	if apiErr.Response != nil && apiErr.Response.Body != nil {
		if data, err := io.ReadAll(apiErr.Response.Body); err == nil && len(data) > 0 {
			return string(data)
		}
	}
	return apiErr.RawJSON()
}

func transportFailure(callCtx context.Context, err error) *Response {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return failure(KindTimeout, 0, "completion request timed out", "")
	}
	return failure(KindTransport, 0, err.Error(), "")
}

func failure(kind string, status int, reason, body string) *Response {
	return &Response{Err: &ErrorEnvelope{Kind: kind, Status: status, Reason: reason, Body: body}}
}
