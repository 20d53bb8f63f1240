// Package logging provides structured logging helpers shared by the client
// packages and the CLI.
//
// All logging goes through log/slog. The helpers here keep attribute names
// consistent so log lines from the session, the dispatcher and the token
// providers can be correlated.
//
// # Usage Patterns
//
// Scope a logger to an operation and attach resource attributes:
//
//	logger := logging.WithOperation(slog.Default(), "get")
//	logger.Info("request completed",
//	    logging.ResourceType("Deployment"),
//	    logging.Namespace("default"),
//	    logging.ResourceName("nginx"))
//
// Sanitize sensitive data before logging:
//
//	logger.Debug("token refreshed",
//	    logging.Provider("exec"),
//	    slog.String("token", logging.SanitizeToken(token)))
//
// # Security Considerations
//
//   - API server URLs have IP addresses redacted to prevent topology leakage
//   - Bearer tokens are never logged, only their length
//   - Query strings are dropped from logged paths because they may carry
//     selectors with sensitive values
package logging
