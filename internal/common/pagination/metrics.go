package pagination

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesTotal counts served pages by page bucket (1, 2-5, 6+).
	PagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_pages_total",
			Help: "Total number of subscription list pages served",
		},
		[]string{"page_range"},
	)

	// DurationSeconds tracks the time spent loading a page.
	DurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subscription_pagination_duration_seconds",
			Help:    "Subscription page load duration distribution",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"operation"},
	)

	// ErrorsTotal counts paging failures by type (validation, database).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_pagination_errors_total",
			Help: "Total number of subscription pagination errors",
		},
		[]string{"type"},
	)
)

// RecordPage counts a served page.
func RecordPage(page int) {
	PagesTotal.WithLabelValues(pageRangeBucket(page)).Inc()
}

// RecordDuration observes how long operation took.
func RecordDuration(operation string, d time.Duration) {
	DurationSeconds.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordError counts a failure of errorType.
func RecordError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}

func pageRangeBucket(page int) string {
	switch {
	case page <= 1:
		return "1"
	case page <= 5:
		return "2-5"
	default:
		return "6+"
	}
}
