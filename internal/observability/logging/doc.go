// Package logging provides structured logging utilities with context propagation.
//
// This package wraps the standard library's log/slog package with helper functions
// for common logging patterns used throughout the application.
//
// Key features:
//   - JSON and text output formats
//   - Daily-rotated log files under LOGS_PATH, newest seven kept
//   - Correlation id and trace id propagation
//   - Context-aware logging
//   - Configurable log levels
//
// Example usage:
//
//	import "seriesbell/internal/observability/logging"
//
//	func main() {
//	    logger, closer, err := logging.Setup(cfg.LogsPath, cfg.LogLevel)
//	    if err != nil { ... }
//	    defer closer.Close()
//	    slog.SetDefault(logger)
//	}
//
//	func tick(ctx context.Context) {
//	    ctx, logger := logging.WithCorrelationID(ctx, logging.FromContext(ctx))
//	    logger.Info("poll pass started")
//	}
package logging
