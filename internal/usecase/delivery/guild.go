package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"seriesbell/internal/domain/entity"
	"seriesbell/internal/domain/event"
	"seriesbell/internal/infra/notifier"
	"seriesbell/internal/observability/logging"
	"seriesbell/internal/observability/metrics"
	"seriesbell/internal/repository"
)

// SettingsReader returns a guild's settings, defaults included.
// *subscription.Service satisfies it.
type SettingsReader interface {
	GetServerSettings(ctx context.Context, guildID string) (*entity.ServerSettings, error)
}

// GuildSubscriber posts feed updates into the feeds channel configured by
// each subscribed guild.
type GuildSubscriber struct {
	subscribers repository.SubscriberRepository
	settings    SettingsReader
	messenger   notifier.Messenger
}

func NewGuildSubscriber(subscribers repository.SubscriberRepository, settings SettingsReader, messenger notifier.Messenger) *GuildSubscriber {
	return &GuildSubscriber{subscribers: subscribers, settings: settings, messenger: messenger}
}

func (g *GuildSubscriber) Name() string { return "discord-guild" }

// Handle delivers e to every guild subscribed to the feed. A failing guild
// does not stop delivery to the others.
func (g *GuildSubscriber) Handle(ctx context.Context, e event.FeedUpdate) error {
	subs, err := g.subscribers.SelectAllByTypeAndFeed(ctx, entity.SubscriberTypeGuild, e.Feed.ID)
	if err != nil {
		return fmt.Errorf("list guild subscribers: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	msg := BuildMessage(e)
	var errs []error
	for _, sub := range subs {
		if err := g.deliver(ctx, sub, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *GuildSubscriber) deliver(ctx context.Context, sub *entity.Subscriber, msg notifier.Message) error {
	logger := logging.FromContext(ctx).With(
		slog.Int64("subscriber_id", sub.ID),
		slog.String("guild_id", sub.TargetID))

	if err := sub.Target().Validate(); err != nil {
		logger.Warn("skipping guild subscriber", slog.Any("error", err))
		metrics.RecordDeliverySkipped("invalid_target")
		return nil
	}

	settings, err := g.settings.GetServerSettings(ctx, sub.TargetID)
	if err != nil {
		logger.Error("load guild settings failed", slog.Any("error", err))
		metrics.RecordDelivery("guild", false)
		return fmt.Errorf("guild %s: %w", sub.TargetID, err)
	}
	if !settings.FeedsEnabled() {
		logger.Debug("feeds disabled for guild")
		metrics.RecordDeliverySkipped("feeds_disabled")
		return nil
	}
	channelID := settings.FeedsChannelID()
	if channelID == "" {
		logger.Info("no feeds channel configured for guild")
		metrics.RecordDeliverySkipped("no_channel")
		return nil
	}

	return send("guild", logger.With(slog.String("channel_id", channelID)), func() error {
		return g.messenger.SendChannel(ctx, channelID, msg)
	})
}

// send runs fn and records the outcome. Destinations that refuse messages
// are logged but not reported as handler failures.
func send(channel string, logger *slog.Logger, fn func() error) error {
	err := fn()
	metrics.RecordDelivery(channel, err == nil)
	switch {
	case err == nil:
		logger.Info("feed update delivered")
		return nil
	case notifier.IsUndeliverable(err):
		logger.Warn("destination refused feed update", slog.Any("error", err))
		return nil
	default:
		logger.Error("feed update delivery failed", slog.Any("error", err))
		return err
	}
}
