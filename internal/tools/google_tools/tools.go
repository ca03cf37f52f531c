package google_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxtriage/internal/google"
	"github.com/teemow/inboxtriage/internal/server"
	"github.com/teemow/inboxtriage/internal/tools/common"
)

// Tool names.
const (
	ToolGetAuthURL   = "google_get_auth_url"
	ToolSaveAuthCode = "google_save_auth_code"
)

// RegisterGoogleTools registers the Gmail authorization tools with the MCP server.
// store locates the OAuth client file and receives the token.
func RegisterGoogleTools(s *mcpserver.MCPServer, sc *server.ServerContext, store *google.FileTokenStore) error {
	if store == nil {
		return fmt.Errorf("token store is required")
	}

	getAuthURLTool := mcp.NewTool(ToolGetAuthURL,
		mcp.WithDescription("Get the OAuth URL to authorize read-only Gmail access for classification"),
	)
	s.AddTool(getAuthURLTool, common.InstrumentedToolHandler(ToolGetAuthURL, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetAuthURL(ctx, request, store)
		}))

	saveAuthCodeTool := mcp.NewTool(ToolSaveAuthCode,
		mcp.WithDescription("Save the OAuth authorization code to complete Gmail authorization"),
		mcp.WithString("authCode",
			mcp.Required(),
			mcp.Description("The authorization code from Google OAuth"),
		),
	)
	s.AddTool(saveAuthCodeTool, common.InstrumentedToolHandler(ToolSaveAuthCode, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSaveAuthCode(ctx, request, store)
		}))

	return nil
}

func handleGetAuthURL(_ context.Context, _ mcp.CallToolRequest, store *google.FileTokenStore) (*mcp.CallToolResult, error) {
	conf, err := google.OAuthConfig(store.ClientPath())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load OAuth client: %v", err)), nil
	}

	result := fmt.Sprintf(`To authorize read-only Gmail access:

1. Visit this URL in your browser:
   %s

2. Sign in with your Google account
3. Grant read-only access to Gmail
4. Copy the authorization code

5. Call the google_save_auth_code tool with the code to complete authentication`, google.AuthURL(conf))

	return mcp.NewToolResultText(result), nil
}

func handleSaveAuthCode(ctx context.Context, request mcp.CallToolRequest, store *google.FileTokenStore) (*mcp.CallToolResult, error) {
	authCode, ok := request.GetArguments()["authCode"].(string)
	if !ok || authCode == "" {
		return mcp.NewToolResultError("authCode is required"), nil
	}

	conf, err := google.OAuthConfig(store.ClientPath())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load OAuth client: %v", err)), nil
	}

	if _, err := google.ExchangeAndSave(ctx, conf, authCode, store); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to save authorization code: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Authorization successful. Gmail token saved to %s. The triage tools can now read unread mail.", store.TokenPath())), nil
}
