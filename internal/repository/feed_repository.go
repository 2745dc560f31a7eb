package repository

import (
	"context"

	"seriesbell/internal/domain/entity"
)

// FeedRepository persists polled feeds. Lookups return (nil, nil) when no row matches.
type FeedRepository interface {
	Get(ctx context.Context, id int64) (*entity.Feed, error)
	SelectBySourceID(ctx context.Context, platformID, sourceID string) (*entity.Feed, error)
	SelectAllByTag(ctx context.Context, tag string) ([]*entity.Feed, error)
	// Insert returns ErrUniqueViolation when the feed already exists.
	Insert(ctx context.Context, feed *entity.Feed) (int64, error)
	// Delete cascades to the feed's items and subscriptions.
	Delete(ctx context.Context, id int64) error
}

// FeedItemRepository persists observed feed versions.
type FeedItemRepository interface {
	// SelectLatestByFeedID returns the item with the greatest published time.
	SelectLatestByFeedID(ctx context.Context, feedID int64) (*entity.FeedItem, error)
	// Replace inserts the item or updates the existing (feed_id, description) row.
	Replace(ctx context.Context, item *entity.FeedItem) (int64, error)
	CountByFeedID(ctx context.Context, feedID int64) (int64, error)
}
