// Package logging provides structured logging utilities for inboxtriage.
//
// All packages log through log/slog. This package keeps attribute names
// consistent across the fetch, completion and classification stages and makes
// sure credentials and addresses never reach the log verbatim.
//
// # Usage Patterns
//
// Create a logger scoped to a stage:
//
//	logger := logging.WithOperation(slog.Default(), "gmail.fetch_unread")
//	logger.Info("fetched messages", logging.Status(logging.StatusSuccess))
//
// Sanitize sensitive data before logging:
//
//	logger.Debug("refreshed token", "access_token", logging.SanitizeToken(tok))
//	logger.Debug("record", logging.SenderHash(rec.Sender))
package logging
