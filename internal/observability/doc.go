// Package observability groups the bot's logging, metrics and tracing.
//
// Subpackages:
//   - logging: slog setup with daily log files and correlation ids
//   - metrics: Prometheus collectors for platforms, delivery, voice and the gateway
//   - tracing: OpenTelemetry spans for logs and the metrics server
//
// Example usage:
//
//	import (
//	    "seriesbell/internal/observability/logging"
//	    "seriesbell/internal/observability/metrics"
//	)
//
//	func main() {
//	    logger, closer, _ := logging.Setup("logs", "info")
//	    defer closer.Close()
//	    logger.Info("bot started")
//
//	    metrics.RecordFeedCheck("mangadex", "updated")
//	}
package observability
