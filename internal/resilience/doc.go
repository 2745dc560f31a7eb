// Package resilience provides reliability and fault tolerance patterns for the application.
// It includes circuit breakers and retry logic so that a failing upstream
// degrades a single platform rather than the whole poller.
//
// The package supports:
//   - Circuit breakers for platform APIs, Discord webhooks and the database
//   - Retry logic with exponential backoff and jitter
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.PlatformAPIConfig("mangadex"))
//	result, err := cb.Execute(func() (interface{}, error) {
//	    return callExternalService()
//	})
//
//	retryConfig := retry.DefaultConfig()
//	err := retry.WithBackoff(ctx, retryConfig, func() error {
//	    return performOperation()
//	})
package resilience
