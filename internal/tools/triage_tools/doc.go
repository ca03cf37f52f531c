// Package triage_tools exposes mail classification as MCP tools.
//
// Available tools:
//   - triage_classify_unread: fetch unread Gmail messages and classify them
//   - triage_classify_emails: classify messages supplied by the caller
//
// Both return the classification result as JSON text. Upstream failures
// are returned as tool errors; a model answer that could not be parsed is
// a regular result carrying diagnostic fields.
package triage_tools
