package repository

import (
	"context"

	"seriesbell/internal/domain/entity"
)

type SubscriberRepository interface {
	SelectByTypeAndTarget(ctx context.Context, t entity.SubscriberType, targetID string) (*entity.Subscriber, error)
	// Insert returns ErrUniqueViolation when (type, target_id) already exists.
	Insert(ctx context.Context, sub *entity.Subscriber) (int64, error)
	SelectAllByTypeAndFeed(ctx context.Context, t entity.SubscriberType, feedID int64) ([]*entity.Subscriber, error)
}

type SubscriptionRepository interface {
	// Insert returns ErrUniqueViolation when the subscription already exists.
	Insert(ctx context.Context, feedID, subscriberID int64) (int64, error)
	// DeleteSubscription reports whether a row was removed.
	DeleteSubscription(ctx context.Context, feedID, subscriberID int64) (bool, error)
	ExistsByFeedID(ctx context.Context, feedID int64) (bool, error)
	CountBySubscriberID(ctx context.Context, subscriberID int64) (int64, error)
	// SelectPaginatedWithLatest returns one page (1-indexed) ordered by feed name.
	SelectPaginatedWithLatest(ctx context.Context, subscriberID int64, page, perPage int) ([]entity.FeedWithLatest, error)
	SearchByName(ctx context.Context, subscriberID int64, partial string, limit int) ([]*entity.Feed, error)
}

type ServerSettingsRepository interface {
	// Select returns (nil, nil) when the guild has no stored settings.
	Select(ctx context.Context, guildID string) (*entity.ServerSettings, error)
	Replace(ctx context.Context, guildID string, settings *entity.ServerSettings) error
	ListGuildIDs(ctx context.Context) ([]string, error)
}
