package subscription

import (
	"seriesbell/internal/domain/entity"
	"seriesbell/internal/infra/platform"
)

// SubscribeStatus is the outcome of Subscribe.
type SubscribeStatus int

const (
	SubscribeSuccess SubscribeStatus = iota
	SubscribeAlreadySubscribed
)

func (s SubscribeStatus) String() string {
	if s == SubscribeAlreadySubscribed {
		return "already_subscribed"
	}
	return "success"
}

// SubscribeResult carries the feed the subscriber now follows.
type SubscribeResult struct {
	Status SubscribeStatus
	Feed   *entity.Feed
}

// UnsubscribeStatus is the outcome of Unsubscribe.
type UnsubscribeStatus int

const (
	UnsubscribeSuccess UnsubscribeStatus = iota
	UnsubscribeAlreadyUnsubscribed
	// UnsubscribeNoneSubscribed means no feed exists for the URL at all.
	UnsubscribeNoneSubscribed
)

func (s UnsubscribeStatus) String() string {
	switch s {
	case UnsubscribeAlreadyUnsubscribed:
		return "already_unsubscribed"
	case UnsubscribeNoneSubscribed:
		return "none_subscribed"
	default:
		return "success"
	}
}

// UnsubscribeResult reports the outcome. URL is set for UnsubscribeNoneSubscribed.
type UnsubscribeResult struct {
	Status UnsubscribeStatus
	URL    string
}

// FeedUpdateStatus is the outcome of CheckFeedUpdate.
type FeedUpdateStatus int

const (
	FeedNoUpdate FeedUpdateStatus = iota
	// FeedSourceFinished means the feed was deleted because the source ended.
	FeedSourceFinished
	FeedUpdated
)

func (s FeedUpdateStatus) String() string {
	switch s {
	case FeedSourceFinished:
		return "finished"
	case FeedUpdated:
		return "updated"
	default:
		return "no_update"
	}
}

// FeedUpdateResult is returned by CheckFeedUpdate. Old, New and Info are
// only set for FeedUpdated; Old is nil when the feed had no previous item.
type FeedUpdateResult struct {
	Status FeedUpdateStatus
	Old    *entity.FeedItem
	New    *entity.FeedItem
	Info   platform.Info
}
