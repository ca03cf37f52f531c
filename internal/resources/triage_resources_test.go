package resources

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxtriage/internal/classifier"
	"github.com/teemow/inboxtriage/internal/gmail"
	"github.com/teemow/inboxtriage/internal/ratelimit"
	"github.com/teemow/inboxtriage/internal/server"
)

type nopClassifier struct{}

func (nopClassifier) ClassifyUnread(context.Context, classifier.UnreadRequest) (*classifier.Result, error) {
	return &classifier.Result{}, nil
}

func (nopClassifier) Classify(context.Context, []gmail.Record, classifier.Options) (*classifier.Result, error) {
	return &classifier.Result{}, nil
}

func readDefaults(t *testing.T, sc *server.ServerContext) map[string]any {
	t.Helper()
	request := mcp.ReadResourceRequest{}
	request.Params.URI = URIDefaults

	contents, err := handleDefaults(context.Background(), request, sc)
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(*mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, URIDefaults, text.URI)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &decoded))
	return decoded
}

func TestRegisterTriageResources(t *testing.T) {
	sc, err := server.NewServerContext(context.Background(), nopClassifier{})
	require.NoError(t, err)
	defer sc.Shutdown()

	mcpSrv := mcpserver.NewMCPServer("test-server", "1.0.0", mcpserver.WithResourceCapabilities(false, false))
	assert.NoError(t, RegisterTriageResources(mcpSrv, sc))
}

func TestHandleDefaults(t *testing.T) {
	sc, err := server.NewServerContext(context.Background(), nopClassifier{},
		server.WithLimiter(ratelimit.NewFixedWindow(10)))
	require.NoError(t, err)
	defer sc.Shutdown()

	decoded := readDefaults(t, sc)
	assert.Equal(t, []any{"azione_richiesta", "informazione", "importante", "non_importante"}, decoded["labels"])
	assert.Equal(t, []any{"INBOX", "UNREAD"}, decoded["label_ids"])
	assert.Equal(t, float64(5), decoded["max_results"])
	assert.Equal(t, float64(800), decoded["max_tokens"])
	assert.Equal(t, "gmail_triage_output", decoded["schema_name"])
	assert.Equal(t, map[string]any{"limit": float64(10), "window_seconds": float64(60)}, decoded["rate_limit"])
}

func TestHandleDefaults_NoLimiter(t *testing.T) {
	sc, err := server.NewServerContext(context.Background(), nopClassifier{})
	require.NoError(t, err)
	defer sc.Shutdown()

	decoded := readDefaults(t, sc)
	assert.NotContains(t, decoded, "rate_limit")
}
