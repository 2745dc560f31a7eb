package notifier

import (
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"seriesbell/internal/resilience/retry"
)

const (
	// Discord embed limits
	maxTitleLength       = 256
	maxDescriptionLength = 4096
	maxFooterLength      = 2048
	truncationSuffix     = "..."

	// DefaultColor is Discord blurple (#5865F2).
	DefaultColor = 5793266
)

// RateLimitError represents a 429 from Discord.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// Unwrap exposes the error to retry.WithBackoff so it honours RetryAfter.
func (e *RateLimitError) Unwrap() error {
	return &retry.HTTPError{StatusCode: http.StatusTooManyRequests, Message: e.Message, RetryAfter: e.RetryAfter}
}

// ClientError represents a non-retryable 4xx from Discord, such as a deleted
// channel or a user who does not accept DMs.
type ClientError struct {
	StatusCode int
	Code       int // Discord JSON error code, 0 when unknown
	Message    string
}

func (e *ClientError) Error() string {
	return e.Message
}

// ServerError represents a 5xx from Discord.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

func (e *ServerError) Unwrap() error {
	return &retry.HTTPError{StatusCode: e.StatusCode, Message: e.Message}
}

// IsUndeliverable reports whether err means the destination will not accept
// messages until someone changes permissions or settings.
func IsUndeliverable(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr)
}

// classifyRESTError maps discordgo REST failures onto the error types above.
func classifyRESTError(err error) error {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return err
	}
	msg := restErr.Error()
	code := 0
	if restErr.Message != nil {
		code = restErr.Message.Code
		msg = restErr.Message.Message
	}
	switch status := restErr.Response.StatusCode; {
	case status == http.StatusTooManyRequests:
		return &RateLimitError{Message: msg, RetryAfter: 5 * time.Second}
	case status >= 400 && status < 500:
		return &ClientError{StatusCode: status, Code: code, Message: msg}
	case status >= 500:
		return &ServerError{StatusCode: status, Message: msg}
	}
	return err
}

// truncate cuts text to at most maxRunes runes, ending with suffix when cut.
func truncate(text string, maxRunes int, suffix string) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	keep := maxRunes - utf8.RuneCountInString(suffix)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(text)
	return string(runes[:keep]) + suffix
}

// Embed renders msg as a Discord embed within Discord's field limits.
func (m Message) Embed() *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       truncate(m.Title, maxTitleLength, ""),
		Description: truncate(m.Description, maxDescriptionLength, truncationSuffix),
		URL:         m.URL,
		Color:       m.Color,
	}
	if embed.Color == 0 {
		embed.Color = DefaultColor
	}
	if m.ThumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: m.ThumbnailURL}
	}
	if m.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: m.ImageURL}
	}
	if m.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: truncate(m.Footer, maxFooterLength, truncationSuffix)}
	}
	if !m.Timestamp.IsZero() {
		embed.Timestamp = m.Timestamp.UTC().Format(time.RFC3339)
	}
	return embed
}
