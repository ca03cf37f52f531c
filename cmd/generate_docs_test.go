package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxtriage/internal/google"
	"github.com/teemow/inboxtriage/internal/server"
)

func TestGenerateToolsMarkdown(t *testing.T) {
	sc, err := server.NewServerContext(t.Context(), nopClassifier{})
	require.NoError(t, err)

	mcpSrv := mcpserver.NewMCPServer("test-server", "1.0.0", mcpserver.WithToolCapabilities(true))
	store := google.NewFileTokenStore(filepath.Join(t.TempDir(), "token.json"), "")
	require.NoError(t, registerAllTools(mcpSrv, sc, store))

	tools := make([]mcp.Tool, 0)
	for _, serverTool := range mcpSrv.ListTools() {
		tools = append(tools, serverTool.Tool)
	}

	markdown := generateToolsMarkdown(tools)
	assert.Contains(t, markdown, "- [Triage Tools](#triage-tools)")
	assert.Contains(t, markdown, "### triage_classify_emails")
	assert.Contains(t, markdown, "### triage_classify_unread")
	assert.Contains(t, markdown, "- `emails` (required): ")
	assert.Contains(t, markdown, "- `max_results` (optional): ")
	assert.Contains(t, markdown, "### google_save_auth_code")
}

func TestGetCategoryFromToolName(t *testing.T) {
	assert.Equal(t, "Triage Tools", getCategoryFromToolName("triage_classify_unread"))
	assert.Equal(t, "Google Authorization Tools", getCategoryFromToolName("google_get_auth_url"))
	assert.Equal(t, "Other", getCategoryFromToolName("gmail_list"))
}

func TestGenerateDocsCmd(t *testing.T) {
	clearCompletionEnv(t)
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	cmd := newGenerateDocsCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "# MCP Tools Reference")
	assert.Contains(t, out.String(), "## Google Authorization Tools")

	target := filepath.Join(t.TempDir(), "tools.md")
	cmd = newGenerateDocsCmd()
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--output", target})
	require.NoError(t, cmd.Execute())

	written, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(written), "### triage_classify_unread")
}
