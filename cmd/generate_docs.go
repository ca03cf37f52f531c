package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxtriage/internal/server"
)

// toolCategories maps a tool name prefix to its section heading.
var toolCategories = map[string]string{
	"triage": "Triage Tools",
	"google": "Google Authorization Tools",
}

const otherCategory = "Other"

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate a markdown reference for every tool the MCP server registers.
The reference is built from the live tool schemas, so it cannot drift from
the implementation.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tools, err := listTools(cmd.Context())
			if err != nil {
				return err
			}
			markdown := generateToolsMarkdown(tools)
			if outputFile == "" {
				_, err := io.WriteString(cmd.OutOrStdout(), markdown)
				return err
			}
			if err := os.WriteFile(outputFile, []byte(markdown), 0o644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

// listTools registers the full MCP surface against an idle pipeline.
// Nothing reaches Gmail or the completion endpoint while schemas are read.
func listTools(ctx context.Context) ([]mcp.Tool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var sources sourceFlags
	p, err := sources.buildPipeline(nil, nil, slog.Default())
	if err != nil {
		return nil, err
	}

	sc, err := server.NewServerContext(ctx, p.classifier)
	if err != nil {
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() { _ = sc.Shutdown() }()

	mcpSrv := newMCPServer()
	if err := registerAllTools(mcpSrv, sc, p.store); err != nil {
		return nil, err
	}

	tools := make([]mcp.Tool, 0, len(mcpSrv.ListTools()))
	for _, st := range mcpSrv.ListTools() {
		tools = append(tools, st.Tool)
	}
	return tools, nil
}

func generateToolsMarkdown(tools []mcp.Tool) string {
	byCategory := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		c := getCategoryFromToolName(tool.Name)
		byCategory[c] = append(byCategory[c], tool)
	}
	categories := slices.Sorted(maps.Keys(byCategory))

	var sb strings.Builder
	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("Tools exposed by `inboxtriage serve --transport stdio`. Generated from the registered tool schemas.\n\n")

	sb.WriteString("## Table of Contents\n\n")
	for _, c := range categories {
		fmt.Fprintf(&sb, "- [%s](#%s)\n", c, strings.ToLower(strings.ReplaceAll(c, " ", "-")))
	}
	sb.WriteString("\n")

	for _, c := range categories {
		group := byCategory[c]
		slices.SortFunc(group, func(a, b mcp.Tool) int { return strings.Compare(a.Name, b.Name) })

		fmt.Fprintf(&sb, "## %s\n\n", c)
		for _, tool := range group {
			writeToolMarkdown(&sb, tool)
		}
	}
	return sb.String()
}

func getCategoryFromToolName(name string) string {
	prefix, _, _ := strings.Cut(name, "_")
	if c, ok := toolCategories[prefix]; ok {
		return c
	}
	return otherCategory
}

func writeToolMarkdown(sb *strings.Builder, tool mcp.Tool) {
	fmt.Fprintf(sb, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(sb, "%s\n\n", tool.Description)
	}

	props := tool.InputSchema.Properties
	if len(props) > 0 {
		sb.WriteString("**Arguments:**\n")
		for _, name := range slices.Sorted(maps.Keys(props)) {
			prop, ok := props[name].(map[string]any)
			if !ok {
				continue
			}
			presence := "optional"
			if slices.Contains(tool.InputSchema.Required, name) {
				presence = "required"
			}
			desc, _ := prop["description"].(string)
			if desc == "" {
				desc = propertyType(prop) + " parameter"
			}
			fmt.Fprintf(sb, "- `%s` (%s): %s\n", name, presence, desc)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func propertyType(prop map[string]any) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}
