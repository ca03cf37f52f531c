package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxtriage/internal/classifier"
	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/server"
)

// Resource URIs.
const (
	URIDefaults = "triage://defaults"
	URIPrompt   = "triage://prompt"
)

// RegisterTriageResources registers the classifier description resources
func RegisterTriageResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	defaultsResource := mcp.NewResource(
		URIDefaults,
		"Classification Defaults",
		mcp.WithResourceDescription("Default labels, Gmail filters and argument bounds of the classify tools"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(defaultsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleDefaults(ctx, request, sc)
	})

	promptResource := mcp.NewResource(
		URIPrompt,
		"Classification Prompt",
		mcp.WithResourceDescription("Instruction prompt sent to the model with the default labels"),
		mcp.WithMIMEType("text/plain"),
	)
	s.AddResource(promptResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			&mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: "text/plain",
				Text:     classifier.SystemPrompt(config.DefaultLabels),
			},
		}, nil
	})

	return nil
}

type rateLimitInfo struct {
	Limit         int `json:"limit"`
	WindowSeconds int `json:"window_seconds"`
}

type defaultsInfo struct {
	Labels       []string       `json:"labels"`
	LabelIDs     []string       `json:"label_ids"`
	MaxResults   int            `json:"max_results"`
	MaxTokens    int            `json:"max_tokens"`
	MaxBodyChars int            `json:"max_body_chars"`
	SchemaName   string         `json:"schema_name"`
	Limits       map[string]int `json:"limits"`
	RateLimit    *rateLimitInfo `json:"rate_limit,omitempty"`
}

// handleDefaults returns the defaults and bounds applied to tool arguments
func handleDefaults(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	info := defaultsInfo{
		Labels:       config.DefaultLabels,
		LabelIDs:     config.DefaultLabelIDs,
		MaxResults:   config.DefaultMaxResults,
		MaxTokens:    config.DefaultMaxTokens,
		MaxBodyChars: config.MaxBodyChars,
		SchemaName:   classifier.SchemaName,
		Limits: map[string]int{
			"max_results": server.MaxResultsLimit,
			"max_tokens":  server.MaxTokensLimit,
			"emails":      server.MaxEmailsLimit,
		},
	}
	if limiter := sc.Limiter(); limiter != nil {
		info.RateLimit = &rateLimitInfo{
			Limit:         limiter.Limit(),
			WindowSeconds: int(limiter.Window().Seconds()),
		}
	}

	jsonData, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal defaults: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
