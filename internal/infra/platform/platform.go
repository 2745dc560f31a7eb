// Package platform adapts external series sources (manga, anime and video
// sites) to a single interface used by the subscription service and the
// feed poller.
//
// Every adapter owns a rate limiter sized to the remote API's published
// limits, a circuit breaker and bounded retry for transient failures.
// Remote error shapes are translated to the closed set of Kind values.
package platform

import (
	"context"
	"time"

	"seriesbell/internal/domain/entity"
)

// Info is static metadata describing a platform.
type Info = entity.PlatformInfo

// SourceInfo describes a remote series.
type SourceInfo struct {
	ID          string
	ItemsID     string
	Name        string
	Description string
	SourceURL   string
	ImageURL    string
}

// LatestItem is the newest known chapter, episode or video of a series.
type LatestItem struct {
	Title     string
	Published time.Time
}

// Platform is implemented by every source adapter.
type Platform interface {
	Info() Info
	// IDFromSourceURL extracts the source id from a user supplied URL.
	IDFromSourceURL(rawURL string) (string, error)
	// URLFromSourceID builds the canonical URL stored in feeds.source_url.
	URLFromSourceID(id string) string
	FetchSource(ctx context.Context, id string) (*SourceInfo, error)
	FetchLatest(ctx context.Context, itemsID string) (*LatestItem, error)
}
