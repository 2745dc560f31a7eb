package notifier

import "context"

// NoOp discards every message. It stands in for the webhook when none is
// configured and for the bot when running without a Discord token.
type NoOp struct{}

// NewNoOp creates a NoOp.
func NewNoOp() *NoOp {
	return &NoOp{}
}

func (n *NoOp) Notify(context.Context, Message) error { return nil }

func (n *NoOp) SendChannel(context.Context, string, Message) error { return nil }

func (n *NoOp) SendDM(context.Context, string, Message) error { return nil }

var (
	_ Notifier  = (*NoOp)(nil)
	_ Messenger = (*NoOp)(nil)
	_ Notifier  = (*WebhookNotifier)(nil)
	_ Messenger = (*DiscordMessenger)(nil)
)
