package platform

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"seriesbell/internal/resilience/circuitbreaker"
)

// YouTubeID is the platform id stored in feeds.platform_id.
const YouTubeID = "youtube"

var youTubeChannelID = regexp.MustCompile(`^UC[0-9A-Za-z_-]{22}$`)

// YouTube tracks channel uploads through the public Atom feed.
// The feed endpoint has no published limit, so one request per second is used.
type YouTube struct {
	info    Info
	feedURL string
	c       *client
}

// NewYouTube creates the YouTube adapter.
func NewYouTube(opts Options) *YouTube {
	y := &YouTube{
		info: Info{
			ID:              YouTubeID,
			Name:            "YouTube",
			APIHostname:     "www.youtube.com",
			APIDomain:       "youtube.com",
			APIURL:          "https://www.youtube.com/feeds/videos.xml",
			Tags:            "series",
			CopyrightNotice: "© Google LLC",
			ItemNoun:        "Video",
			LogoURL:         "https://www.youtube.com/s/desktop/favicon_144x144.png",
		},
		c: newClient(YouTubeID, quotaLimiter(1, time.Second), opts),
	}
	y.feedURL = y.info.APIURL
	if opts.BaseURL != "" {
		y.feedURL = opts.BaseURL
	}
	return y
}

func (y *YouTube) Info() Info { return y.info }

// IDFromSourceURL accepts https://www.youtube.com/channel/{id}.
func (y *YouTube) IDFromSourceURL(rawURL string) (string, error) {
	return nthPathSegment(rawURL, y.info.APIDomain, 1, "channel")
}

func (y *YouTube) URLFromSourceID(id string) string {
	return "https://www." + y.info.APIDomain + "/channel/" + id
}

// Breaker exposes the adapter's circuit breaker for health reporting.
func (y *YouTube) Breaker() *circuitbreaker.CircuitBreaker { return y.c.Breaker() }

func (y *YouTube) fetchFeed(ctx context.Context, id string) (*gofeed.Feed, error) {
	if !youTubeChannelID.MatchString(id) {
		return nil, &Error{Kind: KindInvalidSeriesID, Platform: YouTubeID, SourceID: id}
	}
	res, err := y.c.get(ctx, y.feedURL, url.Values{"channel_id": {id}})
	if err != nil {
		return nil, err
	}
	switch {
	case res.status == http.StatusNotFound:
		return nil, &Error{Kind: KindSeriesNotFound, Platform: YouTubeID, SourceID: id}
	case res.status >= 400:
		return nil, &Error{Kind: KindAPIError, Platform: YouTubeID, SourceID: id,
			Message: fmt.Sprintf("unexpected status %d", res.status)}
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(res.body))
	if err != nil {
		return nil, &Error{Kind: KindJSONParseFailed, Platform: YouTubeID, SourceID: id, Err: err}
	}
	return feed, nil
}

// FetchSource resolves the channel title and the newest thumbnail.
func (y *YouTube) FetchSource(ctx context.Context, id string) (*SourceInfo, error) {
	var out *SourceInfo
	err := y.c.instrument(ctx, "fetch_source", id, func(ctx context.Context) error {
		feed, err := y.fetchFeed(ctx, id)
		if err != nil {
			return err
		}
		if feed.Title == "" {
			return &Error{Kind: KindMissingField, Platform: YouTubeID, SourceID: id, Field: "feed.title"}
		}

		image := ""
		if feed.Image != nil {
			image = feed.Image.URL
		}
		if image == "" && len(feed.Items) > 0 {
			image = mediaThumbnail(feed.Items[0])
		}

		out = &SourceInfo{
			ID:          id,
			ItemsID:     id,
			Name:        feed.Title,
			Description: feed.Description,
			SourceURL:   y.URLFromSourceID(id),
			ImageURL:    image,
		}
		return nil
	})
	return out, err
}

// FetchLatest returns the newest upload by publish time.
func (y *YouTube) FetchLatest(ctx context.Context, itemsID string) (*LatestItem, error) {
	var out *LatestItem
	err := y.c.instrument(ctx, "fetch_latest", itemsID, func(ctx context.Context) error {
		feed, err := y.fetchFeed(ctx, itemsID)
		if err != nil {
			return err
		}
		if len(feed.Items) == 0 {
			return &Error{Kind: KindEmptySeries, Platform: YouTubeID, SourceID: itemsID}
		}

		items := make([]*gofeed.Item, len(feed.Items))
		copy(items, feed.Items)
		sort.SliceStable(items, func(i, j int) bool {
			return itemTime(items[i]).After(itemTime(items[j]))
		})
		newest := items[0]

		published := itemTime(newest)
		if published.IsZero() {
			return &Error{Kind: KindMissingField, Platform: YouTubeID, SourceID: itemsID, Field: "entry.published"}
		}
		if newest.Title == "" {
			return &Error{Kind: KindMissingField, Platform: YouTubeID, SourceID: itemsID, Field: "entry.title"}
		}

		out = &LatestItem{Title: newest.Title, Published: published.UTC()}
		return nil
	})
	return out, err
}

func itemTime(it *gofeed.Item) time.Time {
	if it.PublishedParsed != nil {
		return *it.PublishedParsed
	}
	if it.UpdatedParsed != nil {
		return *it.UpdatedParsed
	}
	return time.Time{}
}

// mediaThumbnail reads <media:group><media:thumbnail url=...> from an entry.
func mediaThumbnail(it *gofeed.Item) string {
	groups := it.Extensions["media"]["group"]
	if len(groups) == 0 {
		return ""
	}
	thumbs := groups[0].Children["thumbnail"]
	if len(thumbs) == 0 {
		return ""
	}
	return thumbs[0].Attrs["url"]
}
