// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Platform metrics track calls to series platform APIs
var (
	// PlatformRequestsTotal counts platform API requests by outcome
	PlatformRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_requests_total",
			Help: "Total number of platform API requests",
		},
		[]string{"platform", "operation", "outcome"},
	)

	// PlatformRequestDuration measures platform API latency including retries
	PlatformRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platform_request_duration_seconds",
			Help:    "Platform API request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"platform", "operation"},
	)

	// PlatformRateLimitWait measures time spent waiting for the platform rate limiter
	PlatformRateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platform_rate_limit_wait_seconds",
			Help:    "Time spent waiting for a platform rate limiter",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"platform"},
	)
)

// Feed metrics track the poller and subscriptions
var (
	// FeedsTotal tracks the number of feeds seen by the last poll pass
	FeedsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feeds_total",
			Help: "Number of feeds checked in the last poll pass",
		},
	)

	// FeedChecksTotal counts feed checks by result
	FeedChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_checks_total",
			Help: "Total number of feed update checks",
		},
		[]string{"platform", "result"}, // result: no_update, updated, finished, error
	)

	// PollTicksTotal counts completed poll passes
	PollTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_poll_ticks_total",
			Help: "Total number of completed poll passes",
		},
	)

	// PollTickDuration measures the duration of a full poll pass
	PollTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feed_poll_tick_duration_seconds",
			Help:    "Duration of a full poll pass",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// SubscriptionChangesTotal counts subscribe/unsubscribe outcomes
	SubscriptionChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_changes_total",
			Help: "Total number of subscription changes",
		},
		[]string{"action", "result"},
	)
)

// Delivery metrics track fan-out of feed updates
var (
	// DeliveriesTotal counts delivered messages by channel and status
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveries_total",
			Help: "Total number of feed update deliveries",
		},
		[]string{"channel", "status"}, // channel: guild, dm, webhook
	)

	// DeliveriesSkippedTotal counts deliveries skipped by guild settings
	DeliveriesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveries_skipped_total",
			Help: "Total number of skipped deliveries",
		},
		[]string{"reason"},
	)
)

// Voice metrics track voice session aggregation
var (
	// VoiceSessionsTotal counts session transitions
	VoiceSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_sessions_total",
			Help: "Total number of voice session transitions",
		},
		[]string{"transition"}, // opened, closed, dropped
	)

	// VoiceActiveSessions tracks sessions currently held in memory
	VoiceActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voice_active_sessions",
			Help: "Number of voice sessions currently open",
		},
	)

	// VoiceHeartbeatsTotal counts heartbeat runs by status
	VoiceHeartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_heartbeats_total",
			Help: "Total number of voice heartbeat runs",
		},
		[]string{"status"},
	)
)

// Gateway metrics track the Discord gateway connection
var (
	// GatewayEventsTotal counts handled gateway events by type
	GatewayEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discord_gateway_events_total",
			Help: "Total number of handled Discord gateway events",
		},
		[]string{"type"}, // ready, guild_create, voice_state_update, disconnect
	)

	// GatewayConnected is 1 while the gateway session is ready
	GatewayConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "discord_gateway_connected",
			Help: "Whether the Discord gateway session is connected",
		},
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordOperationDuration records the duration of a named operation
func RecordOperationDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
