// Package tracing provides OpenTelemetry tracing integration.
//
// Spans are started around platform API fetches, feed update checks and
// event dispatch. Trace ids are attached to log records so that one poll
// pass can be followed through the logs.
//
// Example usage:
//
//	import "seriesbell/internal/observability/tracing"
//
//	func main() {
//	    shutdown := tracing.Init(1.0)
//	    defer func() { _ = shutdown(context.Background()) }()
//	}
//
//	func check(ctx context.Context) (err error) {
//	    ctx, span := tracing.StartSpan(ctx, "feed.check")
//	    defer func() { tracing.EndSpan(span, err) }()
//	    // ...
//	}
package tracing
