package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/teemow/inboxtriage/internal/apperrors"
	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/extract"
	"github.com/teemow/inboxtriage/internal/gmail"
	"github.com/teemow/inboxtriage/internal/instrumentation"
	"github.com/teemow/inboxtriage/internal/llm"
)

type fakeCompleter struct {
	resp     *llm.Response
	calls    int
	model    string
	messages []llm.Message
	opts     llm.Options
}

func (f *fakeCompleter) Complete(_ context.Context, model string, messages []llm.Message, opts llm.Options) *llm.Response {
	f.calls++
	f.model = model
	f.messages = messages
	f.opts = opts
	return f.resp
}

type fakeFetcher struct {
	records    []gmail.Record
	err        error
	maxResults int64
	labelIDs   []string
}

func (f *fakeFetcher) FetchUnread(_ context.Context, maxResults int64, labelIDs []string) ([]gmail.Record, error) {
	f.maxResults = maxResults
	f.labelIDs = labelIDs
	return f.records, f.err
}

func answer(content string) *llm.Response {
	data, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
	})
	return &llm.Response{Raw: data}
}

// sentEmails decodes the records embedded in the user message.
func sentEmails(t *testing.T, messages []llm.Message) []map[string]any {
	t.Helper()
	require.Len(t, messages, 1)
	assert.Equal(t, llm.RoleUser, messages[0].Role)

	_, input, found := strings.Cut(messages[0].Content, inputSeparator)
	require.True(t, found, "input separator missing")

	var payload struct {
		Emails []map[string]any `json:"emails"`
	}
	require.NoError(t, json.Unmarshal([]byte(input), &payload))
	return payload.Emails
}

func TestClassify_BackfillsSubjectAndSender(t *testing.T) {
	completer := &fakeCompleter{resp: answer(`{"items":[{"id":"1","label":"work","summary":"s","subject":"","sender":""}]}`)}
	c := New(completer, "openai/gpt-4o-mini")

	result, err := c.Classify(context.Background(), []gmail.Record{
		{ID: "1", Subject: "Invoice", Sender: "Acme"},
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, []extract.Item{{ID: "1", Label: "work", Summary: "s", Subject: "Invoice", Sender: "Acme"}}, result.Items)
	assert.Empty(t, result.Error)
}

func TestClassify_KeepsModelSubject(t *testing.T) {
	completer := &fakeCompleter{resp: answer(`{"items":[
		{"id":"1","label":"importante","summary":"s","subject":"From model","sender":""},
		{"id":"unknown","label":"informazione","summary":"t","subject":"","sender":""},
		{"label":"informazione","summary":"u"}
	]}`)}
	c := New(completer, "m")

	result, err := c.Classify(context.Background(), []gmail.Record{
		{ID: "1", Subject: "Invoice", Sender: "Acme"},
	}, Options{})
	require.NoError(t, err)
	require.Len(t, result.Items, 3)

	assert.Equal(t, "From model", result.Items[0].Subject)
	assert.Equal(t, "Acme", result.Items[0].Sender)
	assert.Empty(t, result.Items[1].Subject)
	assert.Empty(t, result.Items[2].Sender)
}

func TestClassify_EmptyRecordsSkipsCompletion(t *testing.T) {
	completer := &fakeCompleter{}
	c := New(completer, "")

	result, err := c.Classify(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.NotNil(t, result.Items)
	assert.Empty(t, result.Items)
	assert.Zero(t, completer.calls)
}

func TestClassify_MissingModel(t *testing.T) {
	completer := &fakeCompleter{}
	c := New(completer, "")

	_, err := c.Classify(context.Background(), []gmail.Record{{ID: "1"}}, Options{})
	assert.True(t, apperrors.IsConfiguration(err))
	assert.Zero(t, completer.calls)
}

func TestClassify_Request(t *testing.T) {
	completer := &fakeCompleter{resp: answer(`{"items":[]}`)}
	c := New(completer, "default/model")

	body := strings.Repeat("x", config.MaxBodyChars+10)
	_, err := c.Classify(context.Background(), []gmail.Record{
		{ID: "42", Subject: "Fattura <urgente> è pronta", Sender: "a@b.it", Body: body},
	}, Options{Timeout: 5 * time.Second, APIURL: "http://override"})
	require.NoError(t, err)
	require.Equal(t, 1, completer.calls)

	assert.Equal(t, "default/model", completer.model)
	assert.Equal(t, config.DefaultMaxTokens, completer.opts.MaxTokens)
	assert.Equal(t, 5*time.Second, completer.opts.Timeout)
	assert.Equal(t, "http://override", completer.opts.APIURL)
	assert.Equal(t, map[string]any{"exclude": true}, completer.opts.Reasoning)
	assert.Equal(t, map[string]any{"require_parameters": true}, completer.opts.Provider)

	format, ok := completer.opts.ResponseFormat.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]any)
	assert.Equal(t, SchemaName, schema["name"])
	assert.Equal(t, true, schema["strict"])

	content := completer.messages[0].Content
	assert.True(t, strings.HasPrefix(content, SystemPrompt(config.DefaultLabels)))
	assert.Contains(t, content, "[azione_richiesta, informazione, importante, non_importante]")
	assert.Contains(t, content, `<urgente> \u00e8 pronta`, "non-ASCII is escaped, HTML is not")

	emails := sentEmails(t, completer.messages)
	require.Len(t, emails, 1)
	assert.Equal(t, "42", emails[0]["id"])
	assert.Equal(t, "Fattura <urgente> è pronta", emails[0]["subject"])
	assert.Equal(t, false, emails[0]["attachments"])
	assert.True(t, strings.HasSuffix(emails[0]["body"].(string), gmail.TruncationMarker))
}

func TestClassify_RequestOptions(t *testing.T) {
	completer := &fakeCompleter{resp: answer(`{"items":[]}`)}
	c := New(completer, "m")

	_, err := c.Classify(context.Background(), []gmail.Record{{ID: "1"}}, Options{
		Model:            "explicit/model",
		Labels:           []string{"spam", "ham"},
		MaxTokens:        1200,
		IncludeReasoning: true,
		PlainOutput:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, "explicit/model", completer.model)
	assert.Equal(t, 1200, completer.opts.MaxTokens)
	assert.Nil(t, completer.opts.Reasoning)
	assert.Nil(t, completer.opts.ResponseFormat)
	assert.Nil(t, completer.opts.Provider)
	assert.Contains(t, completer.messages[0].Content, "[spam, ham]")
}

func TestClassify_Diagnostics(t *testing.T) {
	tests := []struct {
		name            string
		resp            *llm.Response
		wantError       string
		wantDetails     string
		wantRawContent  string
		wantRawResponse bool
	}{
		{
			name:      "not configured",
			resp:      nil,
			wantError: ErrNoResponse,
		},
		{
			name:        "error envelope",
			resp:        &llm.Response{Err: &llm.ErrorEnvelope{Kind: llm.KindHTTP, Status: 502, Reason: "Bad Gateway", Body: "upstream"}},
			wantError:   ErrProvider,
			wantDetails: `{"error":"HTTPError","status":502,"reason":"Bad Gateway","body":"upstream"}`,
		},
		{
			name:        "provider error body",
			resp:        &llm.Response{Raw: json.RawMessage(`{"error":{"message":"No endpoints found"}}`)},
			wantError:   ErrProvider,
			wantDetails: `{"error":{"message":"No endpoints found"}}`,
		},
		{
			name:            "unparseable answer",
			resp:            answer("Sorry, I cannot help with that."),
			wantError:       ErrParseResponse,
			wantRawContent:  "Sorry, I cannot help with that.",
			wantRawResponse: true,
		},
		{
			name:            "json without item shape",
			resp:            answer(`{"note":"nothing here","count":3}`),
			wantError:       ErrParseResponse,
			wantRawContent:  `{"note":"nothing here","count":3}`,
			wantRawResponse: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&fakeCompleter{resp: tt.resp}, "m")

			result, err := c.Classify(context.Background(), []gmail.Record{{ID: "1"}}, Options{})
			require.NoError(t, err)

			assert.NotNil(t, result.Items)
			assert.Empty(t, result.Items)
			assert.Equal(t, tt.wantError, result.Error)
			if tt.wantDetails != "" {
				assert.JSONEq(t, tt.wantDetails, string(result.Details))
			} else {
				assert.Nil(t, result.Details)
			}
			assert.Equal(t, tt.wantRawContent, result.RawContent)
			assert.Equal(t, tt.wantRawResponse, result.RawResponse != nil)
		})
	}
}

func TestClassifyUnread(t *testing.T) {
	fetcher := &fakeFetcher{records: []gmail.Record{{ID: "m1", Subject: "Invoice", Sender: "Acme"}}}
	completer := &fakeCompleter{resp: answer(`{"items":[{"id":"m1","label":"importante","summary":"pay"}]}`)}
	c := New(completer, "m", WithFetcher(fetcher))

	result, err := c.ClassifyUnread(context.Background(), UnreadRequest{LabelIDs: []string{"INBOX"}})
	require.NoError(t, err)

	assert.Equal(t, int64(config.DefaultMaxResults), fetcher.maxResults)
	assert.Equal(t, []string{"INBOX"}, fetcher.labelIDs)
	assert.Equal(t, []extract.Item{{ID: "m1", Label: "importante", Summary: "pay", Subject: "Invoice", Sender: "Acme"}}, result.Items)
}

func TestClassifyUnread_Errors(t *testing.T) {
	t.Run("fetch failure", func(t *testing.T) {
		fetchErr := &apperrors.TransportError{Op: "list messages", Status: 503}
		completer := &fakeCompleter{}
		c := New(completer, "m", WithFetcher(&fakeFetcher{err: fetchErr}))

		result, err := c.ClassifyUnread(context.Background(), UnreadRequest{MaxResults: 3})
		assert.Nil(t, result)
		assert.True(t, errors.Is(err, fetchErr))
		assert.Zero(t, completer.calls)
	})

	t.Run("no fetcher", func(t *testing.T) {
		c := New(&fakeCompleter{}, "m")
		_, err := c.ClassifyUnread(context.Background(), UnreadRequest{})
		assert.True(t, apperrors.IsConfiguration(err))
	})

	t.Run("empty inbox", func(t *testing.T) {
		completer := &fakeCompleter{}
		c := New(completer, "", WithFetcher(&fakeFetcher{records: []gmail.Record{}}))
		result, err := c.ClassifyUnread(context.Background(), UnreadRequest{})
		require.NoError(t, err)
		assert.Empty(t, result.Items)
		assert.Zero(t, completer.calls)
	})
}

func TestClassify_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := instrumentation.NewMetrics(provider.Meter("test"), false)
	require.NoError(t, err)

	completer := &fakeCompleter{resp: answer(`{"items":[{"id":"1","label":"importante"},{"id":"2","label":"invented"}]}`)}
	c := New(completer, "m", WithMetrics(metrics))
	_, err = c.Classify(context.Background(), []gmail.Record{{ID: "1"}, {ID: "2"}}, Options{})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	labels := map[string]int64{}
	var classifications int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				switch m.Name {
				case "classified_items_total":
					label, _ := dp.Attributes.Value("label")
					labels[label.AsString()] += dp.Value
				case "classifications_total":
					classifications += dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(1), classifications)
	assert.Equal(t, map[string]int64{"importante": 1, "other": 1}, labels)
}

func TestClassify_EncodeFailureIsRecorded(t *testing.T) {
	orig := buildMessages
	t.Cleanup(func() { buildMessages = orig })
	buildMessages = func([]gmail.Record, []string) ([]llm.Message, error) {
		return nil, errors.New("failed to encode records: boom")
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	metrics, err := instrumentation.NewMetrics(provider.Meter("test"), false)
	require.NoError(t, err)

	var auditBuf strings.Builder
	audit := instrumentation.NewAuditLogger(slog.New(slog.NewTextHandler(&auditBuf, nil)))

	completer := &fakeCompleter{}
	c := New(completer, "m", WithMetrics(metrics), WithAuditLogger(audit))
	_, err = c.Classify(context.Background(), []gmail.Record{{ID: "1"}}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Zero(t, completer.calls)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	statuses := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || m.Name != "classifications_total" {
				continue
			}
			for _, dp := range sum.DataPoints {
				status, _ := dp.Attributes.Value("status")
				statuses[status.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{instrumentation.StatusError: 1}, statuses)
	assert.Contains(t, auditBuf.String(), "classification_failed")
	assert.Contains(t, auditBuf.String(), "boom")
}

func TestASCIIJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `{"a":"plain"}`, want: `{"a":"plain"}`},
		{in: `{"a":"è"}`, want: `{"a":"\u00e8"}`},
		{in: `{"a":"😀"}`, want: `{"a":"\ud83d\ude00"}`},
		{in: `{"a":"<b>"}`, want: `{"a":"<b>"}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, asciiJSON(tt.in))
	}
}
