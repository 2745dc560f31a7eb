package metrics

import (
	"time"
)

// RecordPlatformRequest records one platform API call.
// Outcome is "success" or the platform error kind (e.g. "series_not_found").
func RecordPlatformRequest(platformID, operation, outcome string, duration time.Duration) {
	PlatformRequestsTotal.WithLabelValues(platformID, operation, outcome).Inc()
	PlatformRequestDuration.WithLabelValues(platformID, operation).Observe(duration.Seconds())
}

// RecordRateLimitWait records time spent blocked on a platform limiter.
func RecordRateLimitWait(platformID string, waited time.Duration) {
	PlatformRateLimitWait.WithLabelValues(platformID).Observe(waited.Seconds())
}

// RecordFeedCheck records the result of a single feed update check.
// Result should be one of "no_update", "updated", "finished" or "error".
func RecordFeedCheck(platformID, result string) {
	FeedChecksTotal.WithLabelValues(platformID, result).Inc()
}

// RecordPollTick records a completed poll pass over feedCount feeds.
func RecordPollTick(feedCount int, duration time.Duration) {
	PollTicksTotal.Inc()
	FeedsTotal.Set(float64(feedCount))
	PollTickDuration.Observe(duration.Seconds())
}

// RecordSubscriptionChange records a subscribe or unsubscribe outcome.
//
// Example:
//
//	metrics.RecordSubscriptionChange("subscribe", "already_subscribed")
func RecordSubscriptionChange(action, result string) {
	SubscriptionChangesTotal.WithLabelValues(action, result).Inc()
}

// RecordDelivery records the result of delivering one message.
func RecordDelivery(channel string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	DeliveriesTotal.WithLabelValues(channel, status).Inc()
}

// RecordDeliverySkipped records a delivery skipped because of guild settings.
func RecordDeliverySkipped(reason string) {
	DeliveriesSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordVoiceSessionOpened records a newly opened voice session.
func RecordVoiceSessionOpened() {
	VoiceSessionsTotal.WithLabelValues("opened").Inc()
	VoiceActiveSessions.Inc()
}

// RecordVoiceSessionClosed records a closed voice session. Dropped sessions
// were shorter than the store's time resolution and were discarded.
func RecordVoiceSessionClosed(dropped bool) {
	transition := "closed"
	if dropped {
		transition = "dropped"
	}
	VoiceSessionsTotal.WithLabelValues(transition).Inc()
	VoiceActiveSessions.Dec()
}

// SetVoiceActiveSessions overwrites the active session gauge after a reconcile.
func SetVoiceActiveSessions(n int) {
	VoiceActiveSessions.Set(float64(n))
}

// RecordVoiceHeartbeat records a heartbeat run.
func RecordVoiceHeartbeat(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	VoiceHeartbeatsTotal.WithLabelValues(status).Inc()
}

// RecordGatewayEvent records a handled gateway event.
func RecordGatewayEvent(eventType string) {
	GatewayEventsTotal.WithLabelValues(eventType).Inc()
}

// SetGatewayConnected updates the gateway connection gauge.
func SetGatewayConnected(connected bool) {
	if connected {
		GatewayConnected.Set(1)
		return
	}
	GatewayConnected.Set(0)
}

// RecordDBQuery records the duration of a database query operation.
// Operation should describe the query type (e.g., "leaderboard", "select_feeds").
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
