package delivery

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"seriesbell/internal/domain/event"
	"seriesbell/internal/infra/notifier"
)

const (
	maxDescriptionRunes = 500
	descriptionEllipsis = "\n> ..."
	noDescription       = "> No description."
)

var (
	stripPolicy = bluemonday.StrictPolicy()

	// block-level tags that should keep their line break once stripped
	breakTags = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>|</li>`)
)

// BuildMessage renders a feed update as a notification.
func BuildMessage(e event.FeedUpdate) notifier.Message {
	noun := e.Info.ItemNoun
	var b strings.Builder

	fmt.Fprintf(&b, "### %s\n\n%s\n\n", e.Feed.Name, quoteDescription(e.Feed.Description))
	if e.OldItem != nil {
		fmt.Fprintf(&b, "**Old %s**: %s\nPublished on <t:%d>", noun, e.OldItem.Description, e.OldItem.Published.Unix())
	} else {
		fmt.Fprintf(&b, "**No previous %s**", noun)
	}
	fmt.Fprintf(&b, "\n\n**New %s**: %s\nPublished on <t:%d>", noun, e.NewItem.Description, e.NewItem.Published.Unix())
	fmt.Fprintf(&b, "\n\n**[Open in browser ↗](%s)**", e.Feed.SourceURL)

	return notifier.Message{
		Description:  b.String(),
		URL:          e.Feed.SourceURL,
		ThumbnailURL: e.Info.LogoURL,
		ImageURL:     e.Feed.CoverURL,
		Footer:       e.Info.CopyrightNotice,
		Timestamp:    e.NewItem.Published,
	}
}

// quoteDescription strips HTML from a feed description and renders it as a
// markdown quote of at most 500 runes.
func quoteDescription(raw string) string {
	text := breakTags.ReplaceAllString(raw, "\n")
	text = html.UnescapeString(stripPolicy.Sanitize(text))
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return noDescription
	}

	for strings.Contains(text, "\n\n") {
		text = strings.ReplaceAll(text, "\n\n", "\n")
	}
	quoted := "> " + strings.ReplaceAll(text, "\n", "\n> \n> ")

	if utf8.RuneCountInString(quoted) > maxDescriptionRunes {
		quoted = string([]rune(quoted)[:maxDescriptionRunes])
		quoted = strings.TrimRight(quoted, "\n") + descriptionEllipsis
	}
	return quoted
}
