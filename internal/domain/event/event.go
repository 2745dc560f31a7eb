// Package event defines the in-process events exchanged over the event bus.
package event

import "seriesbell/internal/domain/entity"

// FeedUpdate is published by the feed poller when a feed's latest item changed.
type FeedUpdate struct {
	Feed    *entity.Feed
	Info    entity.PlatformInfo
	OldItem *entity.FeedItem // nil when the feed had no previous item
	NewItem *entity.FeedItem
}

// VoiceMember is a user's voice state at a point in time.
// An empty ChannelID means the user is not in a voice channel.
type VoiceMember struct {
	UserID    string
	GuildID   string
	ChannelID string
	SessionID string
	Bot       bool
}

// InChannel reports whether the member occupies a voice channel.
func (m *VoiceMember) InChannel() bool {
	return m != nil && m.ChannelID != ""
}

// VoiceState is a voice-state transition observed on the gateway.
type VoiceState struct {
	Old *VoiceMember // nil when the previous state is unknown
	New VoiceMember
}

// SettingsUpdated is published after a guild's settings were replaced.
type SettingsUpdated struct {
	GuildID  string
	Settings *entity.ServerSettings
}
