package triage_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxtriage/internal/classifier"
	"github.com/teemow/inboxtriage/internal/ratelimit"
	"github.com/teemow/inboxtriage/internal/server"
	"github.com/teemow/inboxtriage/internal/tools/common"
)

// Tool names.
const (
	ToolClassifyUnread = "triage_classify_unread"
	ToolClassifyEmails = "triage_classify_emails"
)

// TransportMCP names the MCP surface in audit logs.
const TransportMCP = "mcp"

func optionParams() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("model",
			mcp.Description("Completion model (default: MODEL from the environment)"),
		),
		mcp.WithArray("labels",
			mcp.Description("Allowed classification labels (default: azione_richiesta, informazione, importante, non_importante)"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithNumber("max_tokens",
			mcp.Description(fmt.Sprintf("Maximum completion tokens, 1-%d (default: 800)", server.MaxTokensLimit)),
		),
		mcp.WithBoolean("include_reasoning",
			mcp.Description("Keep the model's reasoning in the response (default: false)"),
		),
		mcp.WithBoolean("use_structured_output",
			mcp.Description("Request JSON schema constrained output (default: true)"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Completion timeout in seconds (default: 120)"),
		),
		mcp.WithString("api_url",
			mcp.Description("Override the completion endpoint URL"),
		),
	}
}

// RegisterTriageTools registers the classification tools with the MCP server.
//
// triage_classify_unread and triage_classify_emails mirror the two HTTP
// endpoints: same arguments, same result shape, and the same rate-limit
// scopes. Each handler is wrapped with common.InstrumentedToolHandler.
func RegisterTriageTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if sc == nil {
		return fmt.Errorf("server context is required")
	}

	unreadOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Fetch unread Gmail messages and classify and summarize them with a language model"),
		mcp.WithNumber("max_results",
			mcp.Description(fmt.Sprintf("Number of unread messages to classify, 1-%d (default: 5)", server.MaxResultsLimit)),
		),
		mcp.WithArray("label_ids",
			mcp.Description("Gmail label IDs the messages must carry (default: INBOX, UNREAD)"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	}, optionParams()...)
	s.AddTool(mcp.NewTool(ToolClassifyUnread, unreadOpts...),
		common.InstrumentedToolHandler(ToolClassifyUnread, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleClassifyUnread(ctx, request, sc)
		}))

	emailsOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Classify and summarize caller-supplied email records with a language model"),
		mcp.WithArray("emails",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Up to %d records with id, subject, sender, date_time, snippet, attachments and body", server.MaxEmailsLimit)),
			mcp.Items(map[string]any{"type": "object"}),
		),
	}, optionParams()...)
	s.AddTool(mcp.NewTool(ToolClassifyEmails, emailsOpts...),
		common.InstrumentedToolHandler(ToolClassifyEmails, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleClassifyEmails(ctx, request, sc)
		}))

	return nil
}

func handleClassifyUnread(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	req, err := unreadRequestFromArgs(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res := checkLimit(sc, server.ScopeClassifyUnread); res != nil {
		return res, nil
	}

	result, err := sc.Classifier().ClassifyUnread(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to classify unread messages: %v", err)), nil
	}
	return resultText(result)
}

func handleClassifyEmails(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	records, err := recordsFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts, err := optionsFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res := checkLimit(sc, server.ScopeClassifyEmails); res != nil {
		return res, nil
	}

	result, err := sc.Classifier().Classify(ctx, records, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to classify emails: %v", err)), nil
	}
	return resultText(result)
}

// checkLimit returns an error result when scope is over its rate limit.
func checkLimit(sc *server.ServerContext, scope string) *mcp.CallToolResult {
	limiter := sc.Limiter()
	if limiter == nil {
		return nil
	}

	var limitErr *ratelimit.LimitError
	if err := limiter.Check(scope); errors.As(err, &limitErr) {
		return mcp.NewToolResultError(fmt.Sprintf("Rate limit exceeded. Retry in %d seconds.",
			ratelimit.RetryAfterSeconds(limitErr.RetryAfter)))
	}
	return nil
}

func resultText(result *classifier.Result) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
