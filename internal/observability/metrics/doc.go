// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all application metrics including:
//   - Platform API metrics (requests, latency, rate limiter waits)
//   - Feed poller and subscription metrics
//   - Delivery and voice session metrics
//   - Database metrics
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint.
//
// Example usage:
//
//	import "seriesbell/internal/observability/metrics"
//
//	func check(feed *entity.Feed) {
//	    start := time.Now()
//	    // ... fetch latest ...
//	    metrics.RecordPlatformRequest(feed.PlatformID, "fetch_latest", "success", time.Since(start))
//	    metrics.RecordFeedCheck(feed.PlatformID, "updated")
//	}
package metrics
