package entity

import (
	"encoding/json"
	"fmt"
)

// ServerSettings is the per-guild configuration document.
// Nil pointers mean "use the default"; the zero value is a valid document.
type ServerSettings struct {
	Feeds   FeedsSettings   `json:"feeds"`
	Voice   VoiceSettings   `json:"voice"`
	Welcome WelcomeSettings `json:"welcome"`
}

// FeedsSettings controls feed delivery into a guild.
type FeedsSettings struct {
	Enabled           *bool   `json:"enabled,omitempty"`
	ChannelID         *string `json:"channel_id,omitempty"`
	SubscribeRoleID   *string `json:"subscribe_role_id,omitempty"`
	UnsubscribeRoleID *string `json:"unsubscribe_role_id,omitempty"`
}

// VoiceSettings controls voice presence tracking.
type VoiceSettings struct {
	Enabled *bool `json:"enabled,omitempty"`
}

// WelcomeSettings controls the greeting posted for new members.
type WelcomeSettings struct {
	Enabled   *bool   `json:"enabled,omitempty"`
	ChannelID *string `json:"channel_id,omitempty"`
	Message   *string `json:"message,omitempty"`
}

// FeedsEnabled reports whether feed delivery is on. Defaults to true.
func (s *ServerSettings) FeedsEnabled() bool {
	return s.Feeds.Enabled == nil || *s.Feeds.Enabled
}

// FeedsChannelID returns the delivery channel, or "" when none is configured.
func (s *ServerSettings) FeedsChannelID() string {
	if s.Feeds.ChannelID == nil {
		return ""
	}
	return *s.Feeds.ChannelID
}

// VoiceEnabled reports whether voice tracking is on. Defaults to true.
func (s *ServerSettings) VoiceEnabled() bool {
	return s.Voice.Enabled == nil || *s.Voice.Enabled
}

// MarshalDocument encodes the settings as the stored JSON document.
func (s *ServerSettings) MarshalDocument() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal server settings: %w", err)
	}
	return string(b), nil
}

// UnmarshalServerSettings decodes a stored JSON document. Unknown keys are
// ignored and missing keys keep their defaults.
func UnmarshalServerSettings(doc string) (*ServerSettings, error) {
	s := &ServerSettings{}
	if doc == "" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(doc), s); err != nil {
		return nil, fmt.Errorf("unmarshal server settings: %w", err)
	}
	return s, nil
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
