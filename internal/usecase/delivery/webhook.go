package delivery

import (
	"context"

	"seriesbell/internal/domain/event"
	"seriesbell/internal/infra/notifier"
	"seriesbell/internal/observability/logging"
)

// WebhookSubscriber mirrors every feed update to one Discord webhook,
// regardless of who subscribed.
type WebhookSubscriber struct {
	notifier notifier.Notifier
}

func NewWebhookSubscriber(n notifier.Notifier) *WebhookSubscriber {
	return &WebhookSubscriber{notifier: n}
}

func (w *WebhookSubscriber) Name() string { return "discord-webhook" }

func (w *WebhookSubscriber) Handle(ctx context.Context, e event.FeedUpdate) error {
	return send("webhook", logging.FromContext(ctx), func() error {
		return w.notifier.Notify(ctx, BuildMessage(e))
	})
}
