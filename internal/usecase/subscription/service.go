package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"seriesbell/internal/common/pagination"
	"seriesbell/internal/domain/entity"
	"seriesbell/internal/domain/event"
	"seriesbell/internal/infra/platform"
	"seriesbell/internal/observability/logging"
	"seriesbell/internal/observability/metrics"
	"seriesbell/internal/observability/tracing"
	"seriesbell/internal/repository"
)

// SearchLimit caps SearchSubscriptions, matching Discord's autocomplete limit.
const SearchLimit = 25

// Platforms resolves URLs and stored platform ids to adapters.
// *platform.Registry satisfies it.
type Platforms interface {
	Resolve(rawURL string) (platform.Platform, string, error)
	Get(platformID string) (platform.Platform, bool)
}

// Publisher receives events raised by the service. *eventbus.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event any) int
}

// Service implements the subscription use cases. It holds no state of its own.
type Service struct {
	Repos      repository.Repositories
	Tx         repository.Transactor
	Platforms  Platforms
	Events     Publisher         // optional
	Pagination pagination.Config // zero value means pagination.DefaultConfig()
}

// Subscribe makes sub follow the series at rawURL, creating the feed on
// first use.
func (s *Service) Subscribe(ctx context.Context, rawURL string, sub *entity.Subscriber) (SubscribeResult, error) {
	if err := checkSubscriber(sub); err != nil {
		return SubscribeResult{}, err
	}

	feed, err := s.getOrCreateFeed(ctx, rawURL)
	if err != nil {
		metrics.RecordSubscriptionChange("subscribe", "error")
		return SubscribeResult{}, err
	}

	if _, err := s.Repos.Subscriptions.Insert(ctx, feed.ID, sub.ID); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			metrics.RecordSubscriptionChange("subscribe", SubscribeAlreadySubscribed.String())
			return SubscribeResult{Status: SubscribeAlreadySubscribed, Feed: feed}, nil
		}
		metrics.RecordSubscriptionChange("subscribe", "error")
		return SubscribeResult{}, unexpected("insert subscription", err)
	}

	metrics.RecordSubscriptionChange("subscribe", SubscribeSuccess.String())
	logging.FromContext(ctx).Info("subscribed",
		slog.Int64("feed_id", feed.ID),
		slog.String("feed", feed.Name),
		slog.String("subscriber_type", sub.Type.String()),
		slog.String("target_id", sub.TargetID))
	return SubscribeResult{Status: SubscribeSuccess, Feed: feed}, nil
}

// Unsubscribe removes sub's subscription to the series at rawURL.
func (s *Service) Unsubscribe(ctx context.Context, rawURL string, sub *entity.Subscriber) (UnsubscribeResult, error) {
	if err := checkSubscriber(sub); err != nil {
		return UnsubscribeResult{}, err
	}

	p, sourceID, err := s.resolve(rawURL)
	if err != nil {
		return UnsubscribeResult{}, err
	}
	feed, err := s.Repos.Feeds.SelectBySourceID(ctx, p.Info().ID, sourceID)
	if err != nil {
		return UnsubscribeResult{}, unexpected("select feed", err)
	}
	if feed == nil {
		metrics.RecordSubscriptionChange("unsubscribe", UnsubscribeNoneSubscribed.String())
		return UnsubscribeResult{Status: UnsubscribeNoneSubscribed, URL: rawURL}, nil
	}

	deleted, err := s.Repos.Subscriptions.DeleteSubscription(ctx, feed.ID, sub.ID)
	if err != nil {
		metrics.RecordSubscriptionChange("unsubscribe", "error")
		return UnsubscribeResult{}, unexpected("delete subscription", err)
	}
	if !deleted {
		metrics.RecordSubscriptionChange("unsubscribe", UnsubscribeAlreadyUnsubscribed.String())
		return UnsubscribeResult{Status: UnsubscribeAlreadyUnsubscribed}, nil
	}
	metrics.RecordSubscriptionChange("unsubscribe", UnsubscribeSuccess.String())
	return UnsubscribeResult{Status: UnsubscribeSuccess}, nil
}

// GetOrCreateSubscriber returns the subscriber for target, creating it if needed.
func (s *Service) GetOrCreateSubscriber(ctx context.Context, target entity.SubscriberTarget) (*entity.Subscriber, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	sub, err := s.Repos.Subscribers.SelectByTypeAndTarget(ctx, target.Type, target.TargetID)
	if err != nil {
		return nil, unexpected("select subscriber", err)
	}
	if sub != nil {
		return sub, nil
	}

	sub = &entity.Subscriber{Type: target.Type, TargetID: target.TargetID}
	if _, err := s.Repos.Subscribers.Insert(ctx, sub); err != nil {
		if !errors.Is(err, repository.ErrUniqueViolation) {
			return nil, unexpected("insert subscriber", err)
		}
		// lost the race; the winner's row is authoritative
		sub, err = s.Repos.Subscribers.SelectByTypeAndTarget(ctx, target.Type, target.TargetID)
		if err != nil {
			return nil, unexpected("select subscriber", err)
		}
		if sub == nil {
			return nil, unexpected("subscriber vanished after unique violation", nil)
		}
	}
	return sub, nil
}

// ListPaginatedSubscriptions returns one page (1-indexed) of the feeds sub
// follows, ordered by name. A page past the end is empty.
func (s *Service) ListPaginatedSubscriptions(ctx context.Context, sub *entity.Subscriber, page, perPage int) ([]entity.FeedWithLatest, error) {
	if err := checkSubscriber(sub); err != nil {
		return nil, err
	}
	params := pagination.Params{Page: page, Limit: perPage}.WithDefaults(s.paginationConfig())

	start := time.Now()
	rows, err := s.Repos.Subscriptions.SelectPaginatedWithLatest(ctx, sub.ID, params.Page, params.Limit)
	pagination.RecordDuration("repository", time.Since(start))
	if err != nil {
		pagination.RecordError("database")
		return nil, unexpected("select subscriptions", err)
	}
	if rows == nil {
		rows = []entity.FeedWithLatest{}
	}
	return rows, nil
}

// ListSubscriptionsPage is ListPaginatedSubscriptions plus page metadata.
func (s *Service) ListSubscriptionsPage(ctx context.Context, sub *entity.Subscriber, params pagination.Params) (pagination.Response[entity.FeedWithLatest], error) {
	cfg := s.paginationConfig()
	params = params.WithDefaults(cfg)

	total, err := s.GetSubscriptionCount(ctx, sub)
	if err != nil {
		return pagination.Response[entity.FeedWithLatest]{}, err
	}
	rows, err := s.ListPaginatedSubscriptions(ctx, sub, params.Page, params.Limit)
	if err != nil {
		return pagination.Response[entity.FeedWithLatest]{}, err
	}

	pagination.RecordPage(params.Page)
	return pagination.NewResponse(rows, pagination.NewMetadata(params, int64(total))), nil
}

// GetSubscriptionCount returns how many feeds sub follows.
func (s *Service) GetSubscriptionCount(ctx context.Context, sub *entity.Subscriber) (uint32, error) {
	if err := checkSubscriber(sub); err != nil {
		return 0, err
	}
	n, err := s.Repos.Subscriptions.CountBySubscriberID(ctx, sub.ID)
	if err != nil {
		return 0, unexpected("count subscriptions", err)
	}
	return uint32(n), nil
}

// SearchSubscriptions matches partial case-insensitively against the names
// of the feeds sub follows, returning at most SearchLimit feeds.
func (s *Service) SearchSubscriptions(ctx context.Context, sub *entity.Subscriber, partial string) ([]*entity.Feed, error) {
	if err := checkSubscriber(sub); err != nil {
		return nil, err
	}
	feeds, err := s.Repos.Subscriptions.SearchByName(ctx, sub.ID, partial, SearchLimit)
	if err != nil {
		return nil, unexpected("search subscriptions", err)
	}
	return feeds, nil
}

// GetServerSettings returns the guild's settings, or the defaults when the
// guild never stored any.
func (s *Service) GetServerSettings(ctx context.Context, guildID string) (*entity.ServerSettings, error) {
	settings, err := s.Repos.Settings.Select(ctx, guildID)
	if err != nil {
		return nil, unexpected("select server settings", err)
	}
	if settings == nil {
		return &entity.ServerSettings{}, nil
	}
	return settings, nil
}

// UpdateServerSettings replaces the guild's settings document and announces
// the change on the event bus.
func (s *Service) UpdateServerSettings(ctx context.Context, guildID string, settings *entity.ServerSettings) error {
	if settings == nil {
		return &entity.ValidationError{Field: "settings", Message: "settings are required"}
	}
	if err := s.Repos.Settings.Replace(ctx, guildID, settings); err != nil {
		return unexpected("replace server settings", err)
	}
	if s.Events != nil {
		s.Events.Publish(ctx, event.SettingsUpdated{GuildID: guildID, Settings: settings})
	}
	return nil
}

// GetFeedsByTag returns every feed carrying tag.
func (s *Service) GetFeedsByTag(ctx context.Context, tag string) ([]*entity.Feed, error) {
	feeds, err := s.Repos.Feeds.SelectAllByTag(ctx, tag)
	if err != nil {
		return nil, unexpected("select feeds by tag", err)
	}
	return feeds, nil
}

// CheckFeedUpdate compares the feed's stored latest item with the remote
// one and records a new item when they differ. Feeds without subscribers
// are not fetched. A finished source deletes the feed.
func (s *Service) CheckFeedUpdate(ctx context.Context, feed *entity.Feed) (res FeedUpdateResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "subscription.CheckFeedUpdate",
		attribute.Int64("feed.id", feed.ID),
		attribute.String("feed.platform", feed.PlatformID),
	)
	defer func() {
		span.SetAttributes(attribute.String("feed.result", res.Status.String()))
		tracing.EndSpan(span, err)
	}()

	subscribed, err := s.Repos.Subscriptions.ExistsByFeedID(ctx, feed.ID)
	if err != nil {
		return FeedUpdateResult{}, unexpected("check subscriptions", err)
	}
	if !subscribed {
		return FeedUpdateResult{Status: FeedNoUpdate}, nil
	}

	latest, err := s.Repos.Items.SelectLatestByFeedID(ctx, feed.ID)
	if err != nil {
		return FeedUpdateResult{}, unexpected("select latest item", err)
	}

	p, ok := s.Platforms.Get(feed.PlatformID)
	if !ok {
		return FeedUpdateResult{}, fmt.Errorf("%w: %q", ErrUnknownPlatform, feed.PlatformID)
	}

	remote, err := p.FetchLatest(ctx, feed.ItemsID)
	switch {
	case platform.IsKind(err, platform.KindSourceFinished):
		if err := s.Repos.Feeds.Delete(ctx, feed.ID); err != nil {
			return FeedUpdateResult{}, unexpected("delete finished feed", err)
		}
		logging.FromContext(ctx).Info("source finished; feed removed",
			slog.Int64("feed_id", feed.ID),
			slog.String("feed", feed.Name))
		return FeedUpdateResult{Status: FeedSourceFinished}, nil
	case platform.IsKind(err, platform.KindEmptySeries):
		return FeedUpdateResult{Status: FeedNoUpdate}, nil
	case err != nil:
		return FeedUpdateResult{}, err
	}

	if latest != nil && remote.Title == latest.Description {
		return FeedUpdateResult{Status: FeedNoUpdate}, nil
	}

	item := &entity.FeedItem{
		FeedID:      feed.ID,
		Description: remote.Title,
		Published:   remote.Published.UTC(),
	}
	// the new item must become the latest even when the remote clock lags
	if latest != nil && !item.Published.After(latest.Published) {
		item.Published = latest.Published.Add(time.Second)
	}
	if _, err := s.Repos.Items.Replace(ctx, item); err != nil {
		return FeedUpdateResult{}, unexpected("replace feed item", err)
	}

	return FeedUpdateResult{Status: FeedUpdated, Old: latest, New: item, Info: p.Info()}, nil
}

// getOrCreateFeed finds the feed for rawURL or creates it together with its
// initial item.
func (s *Service) getOrCreateFeed(ctx context.Context, rawURL string) (*entity.Feed, error) {
	p, sourceID, err := s.resolve(rawURL)
	if err != nil {
		return nil, err
	}
	info := p.Info()

	feed, err := s.Repos.Feeds.SelectBySourceID(ctx, info.ID, sourceID)
	if err != nil {
		return nil, unexpected("select feed", err)
	}
	if feed != nil {
		return feed, nil
	}

	src, err := p.FetchSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	latest, err := p.FetchLatest(ctx, src.ItemsID)
	if err != nil && !platform.IsKind(err, platform.KindEmptySeries) {
		return nil, err
	}

	feed = &entity.Feed{
		Name:        src.Name,
		Description: src.Description,
		PlatformID:  info.ID,
		SourceID:    sourceID,
		ItemsID:     src.ItemsID,
		SourceURL:   p.URLFromSourceID(sourceID),
		CoverURL:    src.ImageURL,
		Tags:        info.Tags,
	}
	if err := feed.Validate(); err != nil {
		return nil, err
	}

	err = s.Tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Feeds.Insert(ctx, feed); err != nil {
			return err
		}
		if latest == nil {
			return nil
		}
		_, err := repos.Items.Replace(ctx, &entity.FeedItem{
			FeedID:      feed.ID,
			Description: latest.Title,
			Published:   latest.Published.UTC(),
		})
		return err
	})
	if err == nil {
		logging.FromContext(ctx).Info("feed created",
			slog.Int64("feed_id", feed.ID),
			slog.String("platform", info.ID),
			slog.String("source_id", sourceID))
		return feed, nil
	}
	if !errors.Is(err, repository.ErrUniqueViolation) {
		return nil, unexpected("insert feed", err)
	}

	// a concurrent subscribe created the feed first
	winner, err := s.Repos.Feeds.SelectBySourceID(ctx, info.ID, sourceID)
	if err != nil {
		return nil, unexpected("select feed", err)
	}
	if winner == nil {
		return nil, unexpected("feed vanished after unique violation", nil)
	}
	return winner, nil
}

// resolve validates a user supplied URL and maps it to a platform and
// source id. A missing scheme is taken as https.
func (s *Service) resolve(rawURL string) (platform.Platform, string, error) {
	u := strings.TrimSpace(rawURL)
	if u != "" && !strings.Contains(u, "://") {
		u = "https://" + u
	}
	if err := entity.ValidateURL(u); err != nil {
		return nil, "", err
	}
	return s.Platforms.Resolve(u)
}

func (s *Service) paginationConfig() pagination.Config {
	if s.Pagination.MaxLimit == 0 {
		return pagination.DefaultConfig()
	}
	return s.Pagination
}

func checkSubscriber(sub *entity.Subscriber) error {
	if sub == nil || sub.ID <= 0 {
		return ErrInvalidSubscriber
	}
	return nil
}
