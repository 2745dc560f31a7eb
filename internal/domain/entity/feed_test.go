package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFeed_HasTag(t *testing.T) {
	tests := []struct {
		name string
		tags string
		tag  string
		want bool
	}{
		{name: "single tag", tags: "series", tag: "series", want: true},
		{name: "tag among many", tags: "manga, series ,weekly", tag: "series", want: true},
		{name: "substring is not a token", tags: "seriesx", tag: "series", want: false},
		{name: "empty tags", tags: "", tag: "series", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &Feed{Tags: tt.tags}
			assert.Equal(t, tt.want, f.HasTag(tt.tag))
		})
	}
}

func TestFeed_Validate(t *testing.T) {
	valid := Feed{
		Name:       "One Piece",
		PlatformID: "mangadex",
		SourceID:   "a1c7c817-4e59-43b7-9365-09675a149a6f",
		ItemsID:    "a1c7c817-4e59-43b7-9365-09675a149a6f",
		SourceURL:  "https://mangadex.org/title/a1c7c817-4e59-43b7-9365-09675a149a6f",
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Feed)
		field  string
	}{
		{name: "missing name", mutate: func(f *Feed) { f.Name = " " }, field: "name"},
		{name: "missing platform", mutate: func(f *Feed) { f.PlatformID = "" }, field: "platform_id"},
		{name: "missing source id", mutate: func(f *Feed) { f.SourceID = "" }, field: "source_id"},
		{name: "missing items id", mutate: func(f *Feed) { f.ItemsID = "" }, field: "items_id"},
		{name: "missing url", mutate: func(f *Feed) { f.SourceURL = "" }, field: "source_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			tt.mutate(&f)
			err := f.Validate()
			var vErr *ValidationError
			if assert.ErrorAs(t, err, &vErr) {
				assert.Equal(t, tt.field, vErr.Field)
			}
		})
	}
}

func TestFeedItem_Validate(t *testing.T) {
	item := FeedItem{FeedID: 1, Description: "Chapter 1", Published: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.NoError(t, item.Validate())

	item.Published = time.Time{}
	assert.Error(t, item.Validate())

	item = FeedItem{FeedID: 0, Description: "Chapter 1", Published: time.Now()}
	assert.Error(t, item.Validate())
}

func TestSubscriberTarget_Validate(t *testing.T) {
	assert.NoError(t, SubscriberTarget{Type: SubscriberTypeDM, TargetID: "100"}.Validate())
	assert.Error(t, SubscriberTarget{Type: "channel", TargetID: "100"}.Validate())
	assert.Error(t, SubscriberTarget{Type: SubscriberTypeGuild, TargetID: ""}.Validate())
	assert.Error(t, SubscriberTarget{Type: SubscriberTypeGuild, TargetID: "guild-1"}.Validate())
}

func TestParseSubscriberType(t *testing.T) {
	got, err := ParseSubscriberType(" Guild ")
	assert.NoError(t, err)
	assert.Equal(t, SubscriberTypeGuild, got)

	_, err = ParseSubscriberType("webhook")
	assert.ErrorIs(t, err, ErrValidationFailed)
}
