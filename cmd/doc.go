// Package cmd implements the command-line interface for inboxtriage.
//
// This package provides the following commands:
//   - classify: Classify unread Gmail messages (or records from a file) and print JSON
//   - auth: Authorize read-only Gmail access and write the token file
//   - serve: Start the HTTP API or, with --transport stdio, the MCP server
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
package cmd
