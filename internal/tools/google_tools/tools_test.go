package google_tools

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxtriage/internal/classifier"
	"github.com/teemow/inboxtriage/internal/gmail"
	"github.com/teemow/inboxtriage/internal/google"
	"github.com/teemow/inboxtriage/internal/server"
)

type nopClassifier struct{}

func (nopClassifier) ClassifyUnread(context.Context, classifier.UnreadRequest) (*classifier.Result, error) {
	return &classifier.Result{}, nil
}

func (nopClassifier) Classify(context.Context, []gmail.Record, classifier.Options) (*classifier.Result, error) {
	return &classifier.Result{}, nil
}

func newStore(t *testing.T, tokenURL string) *google.FileTokenStore {
	t.Helper()
	dir := t.TempDir()
	clientPath := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(clientPath, []byte(`{"installed":{
		"client_id":"id","client_secret":"secret",
		"auth_uri":"https://accounts.test/auth","token_uri":"`+tokenURL+`",
		"redirect_uris":["urn:ietf:wg:oauth:2.0:oob"]}}`), 0o600))
	return google.NewFileTokenStore(filepath.Join(dir, "token.json"), clientPath)
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestRegisterGoogleTools(t *testing.T) {
	sc, err := server.NewServerContext(context.Background(), nopClassifier{})
	require.NoError(t, err)
	defer sc.Shutdown()

	mcpSrv := mcpserver.NewMCPServer("test-server", "1.0.0", mcpserver.WithToolCapabilities(true))

	assert.Error(t, RegisterGoogleTools(mcpSrv, sc, nil))
	require.NoError(t, RegisterGoogleTools(mcpSrv, sc, newStore(t, "https://oauth2.test/token")))

	tools := mcpSrv.ListTools()
	assert.Contains(t, tools, ToolGetAuthURL)
	assert.Contains(t, tools, ToolSaveAuthCode)
}

func TestHandleGetAuthURL(t *testing.T) {
	store := newStore(t, "https://oauth2.test/token")

	result, err := handleGetAuthURL(context.Background(), mcp.CallToolRequest{}, store)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, text(t, result), "https://accounts.test/auth?")
	assert.Contains(t, text(t, result), "gmail.readonly")
}

func TestHandleGetAuthURL_MissingClientFile(t *testing.T) {
	store := google.NewFileTokenStore(filepath.Join(t.TempDir(), "token.json"), filepath.Join(t.TempDir(), "absent.json"))

	result, err := handleGetAuthURL(context.Background(), mcp.CallToolRequest{}, store)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleSaveAuthCode(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"ya29.fresh","refresh_token":"1//fresh","expires_in":3599}`)
	}))
	defer tokenServer.Close()

	store := newStore(t, tokenServer.URL)

	result, err := handleSaveAuthCode(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Arguments: map[string]any{"authCode": "the-code"}},
	}, store)
	require.NoError(t, err)
	assert.False(t, result.IsError, text(t, result))
	assert.True(t, store.HasToken())
	assert.NotContains(t, text(t, result), "ya29.fresh")
}

func TestHandleSaveAuthCode_Errors(t *testing.T) {
	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
	}))
	defer rejecting.Close()

	tests := []struct {
		name string
		args map[string]any
	}{
		{name: "missing code", args: map[string]any{}},
		{name: "empty code", args: map[string]any{"authCode": ""}},
		{name: "rejected code", args: map[string]any{"authCode": "bad"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t, rejecting.URL)
			result, err := handleSaveAuthCode(context.Background(), mcp.CallToolRequest{
				Params: mcp.CallToolParams{Arguments: tt.args},
			}, store)
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.False(t, store.HasToken())
		})
	}
}
