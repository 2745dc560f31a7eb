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

// DMSubscriber sends feed updates to users who subscribed by direct message.
type DMSubscriber struct {
	subscribers repository.SubscriberRepository
	messenger   notifier.Messenger
}

func NewDMSubscriber(subscribers repository.SubscriberRepository, messenger notifier.Messenger) *DMSubscriber {
	return &DMSubscriber{subscribers: subscribers, messenger: messenger}
}

func (d *DMSubscriber) Name() string { return "discord-dm" }

func (d *DMSubscriber) Handle(ctx context.Context, e event.FeedUpdate) error {
	subs, err := d.subscribers.SelectAllByTypeAndFeed(ctx, entity.SubscriberTypeDM, e.Feed.ID)
	if err != nil {
		return fmt.Errorf("list dm subscribers: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	msg := BuildMessage(e)
	var errs []error
	for _, sub := range subs {
		logger := logging.FromContext(ctx).With(
			slog.Int64("subscriber_id", sub.ID),
			slog.String("user_id", sub.TargetID))
		if err := sub.Target().Validate(); err != nil {
			logger.Warn("skipping dm subscriber", slog.Any("error", err))
			metrics.RecordDeliverySkipped("invalid_target")
			continue
		}
		if err := send("dm", logger, func() error {
			return d.messenger.SendDM(ctx, sub.TargetID, msg)
		}); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", sub.TargetID, err))
		}
	}
	return errors.Join(errs...)
}
