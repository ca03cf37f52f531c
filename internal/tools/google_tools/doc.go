// Package google_tools provides MCP tools for Gmail authorization.
//
// The tools run the same installed-app flow as 'inboxtriage auth' for
// assistants that cannot reach a terminal:
//  1. Call google_get_auth_url to get the consent URL
//  2. The user visits the URL and approves read-only Gmail access
//  3. Call google_save_auth_code with the code to write the token file
//
// Once saved, the token is refreshed automatically by the classify tools.
package google_tools
