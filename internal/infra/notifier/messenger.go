package notifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Session is the part of *discordgo.Session the messenger calls.
type Session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// DiscordMessenger sends embeds through the bot's REST session. discordgo
// applies Discord's per-route rate limits itself.
type DiscordMessenger struct {
	session Session

	mu         sync.Mutex
	dmChannels map[string]string // user ID -> DM channel ID
}

// NewDiscordMessenger wraps a session.
func NewDiscordMessenger(session Session) *DiscordMessenger {
	return &DiscordMessenger{
		session:    session,
		dmChannels: make(map[string]string),
	}
}

func (m *DiscordMessenger) SendChannel(ctx context.Context, channelID string, msg Message) error {
	_, err := m.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{msg.Embed()},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send to channel %s: %w", channelID, classifyRESTError(err))
	}
	return nil
}

func (m *DiscordMessenger) SendDM(ctx context.Context, userID string, msg Message) error {
	channelID, err := m.dmChannel(ctx, userID)
	if err != nil {
		return err
	}
	if err := m.SendChannel(ctx, channelID, msg); err != nil {
		if IsUndeliverable(err) {
			// the channel may be stale; reopen it next time
			m.mu.Lock()
			delete(m.dmChannels, userID)
			m.mu.Unlock()
		}
		return fmt.Errorf("dm user %s: %w", userID, err)
	}
	return nil
}

func (m *DiscordMessenger) dmChannel(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	id, ok := m.dmChannels[userID]
	m.mu.Unlock()
	if ok {
		return id, nil
	}

	ch, err := m.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("open dm channel for %s: %w", userID, classifyRESTError(err))
	}

	m.mu.Lock()
	m.dmChannels[userID] = ch.ID
	m.mu.Unlock()
	return ch.ID, nil
}
