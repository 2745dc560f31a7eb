package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seriesbell/internal/usecase/eventbus"
)

type fakeBus []eventbus.SubscriberHealth

func (f fakeBus) Health() []eventbus.SubscriberHealth { return f }

type fakeBreaker struct {
	state  gobreaker.State
	counts gobreaker.Counts
}

func (f fakeBreaker) State() gobreaker.State   { return f.state }
func (f fakeBreaker) Counts() gobreaker.Counts { return f.counts }

func closedBreakers() []BreakerStatus {
	return []BreakerStatus{breakerStatus("database", fakeBreaker{state: gobreaker.StateClosed})}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestMetricsMux_Health(t *testing.T) {
	rec := get(t, newMetricsMux(fakeBus{}, closedBreakers), "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsMux_Metrics(t *testing.T) {
	rec := get(t, newMetricsMux(fakeBus{}, closedBreakers), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetricsMux_SubscriberHealth(t *testing.T) {
	tests := []struct {
		name     string
		bus      fakeBus
		breakers []BreakerStatus
		wantCode int
	}{
		{
			name:     "all healthy",
			bus:      fakeBus{{Name: "discord-guild", EventType: "event.FeedUpdate", Healthy: true}},
			breakers: closedBreakers(),
			wantCode: http.StatusOK,
		},
		{
			name:     "unhealthy subscriber",
			bus:      fakeBus{{Name: "discord-dm", EventType: "event.FeedUpdate", ConsecutiveFailures: 5}},
			breakers: closedBreakers(),
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name:     "open breaker",
			bus:      fakeBus{{Name: "discord-guild", Healthy: true}},
			breakers: []BreakerStatus{breakerStatus("platform:mangadex", fakeBreaker{state: gobreaker.StateOpen})},
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name:     "half-open breaker is not open",
			bus:      fakeBus{},
			breakers: []BreakerStatus{breakerStatus("discord-webhook", fakeBreaker{state: gobreaker.StateHalfOpen})},
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMetricsMux(tt.bus, func() []BreakerStatus { return tt.breakers })
			rec := get(t, mux, "/health/subscribers")

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp SubscriberHealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode == http.StatusOK, resp.Healthy)
			assert.Len(t, resp.Subscribers, len(tt.bus))
			assert.Equal(t, tt.breakers, resp.Breakers)
		})
	}
}

func TestBreakerStatus_ReportsWindowCounts(t *testing.T) {
	got := breakerStatus("platform:anilist", fakeBreaker{
		state:  gobreaker.StateOpen,
		counts: gobreaker.Counts{Requests: 12, TotalFailures: 9, ConsecutiveFailures: 4},
	})

	assert.Equal(t, BreakerStatus{
		Name:                "platform:anilist",
		State:               "open",
		Open:                true,
		Requests:            12,
		TotalFailures:       9,
		ConsecutiveFailures: 4,
	}, got)
}
