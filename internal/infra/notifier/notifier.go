// Package notifier delivers rendered feed updates to Discord.
// Guild channels and direct messages go through the bot's REST session.
// A Discord webhook can mirror every update to one fixed channel.
package notifier

import (
	"context"
	"time"
)

// Message is a rendered notification. It maps onto a single Discord embed.
type Message struct {
	Title        string
	Description  string // markdown body
	URL          string
	ThumbnailURL string
	ImageURL     string
	Footer       string
	Color        int
	Timestamp    time.Time // zero omits the embed timestamp
}

// Messenger sends messages as the bot user.
type Messenger interface {
	// SendChannel posts msg to a guild text channel.
	SendChannel(ctx context.Context, channelID string, msg Message) error

	// SendDM opens (or reuses) the DM channel with userID and posts msg there.
	SendDM(ctx context.Context, userID string, msg Message) error
}

// Notifier posts messages to a preconfigured destination.
// Implementations handle rate limiting and retries internally.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}
