package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"

	"seriesbell/internal/observability/tracing"
	"seriesbell/internal/usecase/eventbus"
)

// HealthResponse represents a simple health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// SubscriberHealthResponse reports the event bus subscribers and the
// circuit breakers in front of outside services.
type SubscriberHealthResponse struct {
	Healthy     bool                        `json:"healthy"`
	Subscribers []eventbus.SubscriberHealth `json:"subscribers"`
	Breakers    []BreakerStatus             `json:"breakers"`
}

// BreakerStatus is the state of one circuit breaker and the counts of its
// current window.
type BreakerStatus struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	Open                bool   `json:"open"`
	Requests            uint32 `json:"requests"`
	TotalFailures       uint32 `json:"total_failures"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

// breakerReader is implemented by *circuitbreaker.CircuitBreaker and
// *circuitbreaker.DBCircuitBreaker.
type breakerReader interface {
	State() gobreaker.State
	Counts() gobreaker.Counts
}

func breakerStatus(name string, b breakerReader) BreakerStatus {
	state, counts := b.State(), b.Counts()
	return BreakerStatus{
		Name:                name,
		State:               state.String(),
		Open:                state == gobreaker.StateOpen,
		Requests:            counts.Requests,
		TotalFailures:       counts.TotalFailures,
		ConsecutiveFailures: counts.ConsecutiveFailures,
	}
}

// healthReporter is implemented by *eventbus.Bus.
type healthReporter interface {
	Health() []eventbus.SubscriberHealth
}

// newMetricsMux builds the handler of the metrics server:
//   - GET /metrics - Prometheus metrics endpoint
//   - GET /health - liveness check (always 200 OK)
//   - GET /health/subscribers - per-subscriber delivery health and breaker states
func newMetricsMux(bus healthReporter, breakers func() []BreakerStatus) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/health/subscribers", subscriberHealthHandler(bus, breakers))
	return mux
}

// startMetricsServer serves newMetricsMux on port until ctx is cancelled,
// then shuts down within 5 seconds.
func startMetricsServer(ctx context.Context, logger *slog.Logger, port int, bus healthReporter, breakers func() []BreakerStatus) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      tracing.Middleware(newMetricsMux(bus, breakers), "/metrics", "/health"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("metrics server starting", slog.Int("port", port))
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("metrics server shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", slog.Any("error", err))
			return err
		}
		logger.Info("metrics server stopped")
		return nil
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}

// healthHandler always reports ok while the process is serving.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// subscriberHealthHandler answers 503 when any subscriber is unhealthy or
// any breaker is open.
func subscriberHealthHandler(bus healthReporter, breakers func() []BreakerStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := SubscriberHealthResponse{
			Healthy:     true,
			Subscribers: bus.Health(),
			Breakers:    breakers(),
		}
		for _, s := range resp.Subscribers {
			if !s.Healthy {
				resp.Healthy = false
			}
		}
		for _, b := range resp.Breakers {
			if b.Open {
				resp.Healthy = false
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
