// Package repository declares the persistence contracts used by the use cases.
package repository

import "context"

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Feeds         FeedRepository
	Items         FeedItemRepository
	Subscribers   SubscriberRepository
	Subscriptions SubscriptionRepository
	Settings      ServerSettingsRepository
	Voice         VoiceSessionRepository
	Meta          MetaRepository
}

// Transactor runs fn with repositories bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
