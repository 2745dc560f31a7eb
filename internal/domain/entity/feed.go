package entity

import (
	"strings"
	"time"
)

// TagSeries marks feeds whose latest item is polled for updates.
const TagSeries = "series"

// Feed represents a polled content source such as a manga series or an anime title.
// A given external entity is represented by exactly one Feed, identified by
// the (PlatformID, SourceID) pair. SourceURL is always the canonical URL
// produced by the owning platform adapter.
type Feed struct {
	ID          int64
	Name        string
	Description string
	PlatformID  string
	SourceID    string
	ItemsID     string // per-platform handle used to list items
	SourceURL   string
	CoverURL    string
	Tags        string // comma-separated
}

// TagList returns the feed tags with surrounding whitespace removed.
func (f *Feed) TagList() []string {
	if f.Tags == "" {
		return nil
	}
	parts := strings.Split(f.Tags, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HasTag reports whether tag is one of the feed's comma-separated tags.
func (f *Feed) HasTag(tag string) bool {
	for _, t := range f.TagList() {
		if t == tag {
			return true
		}
	}
	return false
}

// Validate checks the fields required before a Feed can be persisted.
func (f *Feed) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if f.PlatformID == "" {
		return &ValidationError{Field: "platform_id", Message: "platform_id is required"}
	}
	if f.SourceID == "" {
		return &ValidationError{Field: "source_id", Message: "source_id is required"}
	}
	if f.ItemsID == "" {
		return &ValidationError{Field: "items_id", Message: "items_id is required"}
	}
	if f.SourceURL == "" {
		return &ValidationError{Field: "source_url", Message: "source_url is required"}
	}
	return nil
}

// FeedItem is one observed version of a Feed (a chapter or an episode).
// At most one item exists per (FeedID, Description).
type FeedItem struct {
	ID          int64
	FeedID      int64
	Description string // human version label, e.g. "Chapter 127"
	Published   time.Time
}

// Validate checks the fields required before a FeedItem can be persisted.
func (i *FeedItem) Validate() error {
	if i.FeedID <= 0 {
		return &ValidationError{Field: "feed_id", Message: "feed_id must be positive"}
	}
	if strings.TrimSpace(i.Description) == "" {
		return &ValidationError{Field: "description", Message: "description is required"}
	}
	if i.Published.IsZero() {
		return &ValidationError{Field: "published", Message: "published is required"}
	}
	return nil
}

// FeedWithLatest pairs a Feed with its current latest item, if any.
type FeedWithLatest struct {
	Feed   *Feed
	Latest *FeedItem
}
