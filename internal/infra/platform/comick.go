package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"seriesbell/internal/resilience/circuitbreaker"
)

// ComickID is the platform id stored in feeds.platform_id.
const ComickID = "comick"

// Comick does not document a quota; its x-ratelimit-limit header reports
// 200 requests per minute.
const comickRequestsPerMinute = 200

var comickSlug = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Comick tracks manga chapters through the Comick REST API. Series are
// addressed by slug in URLs and by hid for chapter lookups.
type Comick struct {
	info     Info
	apiURL   string
	coverURL string
	c        *client
}

// NewComick creates the Comick adapter.
func NewComick(opts Options) *Comick {
	c := &Comick{
		info: Info{
			ID:              ComickID,
			Name:            "Comick",
			APIHostname:     "api.comick.dev",
			APIDomain:       "comick.dev",
			APIURL:          "https://api.comick.dev",
			Tags:            "series",
			CopyrightNotice: "© Comick 2021-2026",
			ItemNoun:        "Chapter",
			LogoURL:         "https://comick.dev/_next/image?url=%2Fstatic%2Ficons%2Funicorn-64.png&w=144&q=75",
		},
		coverURL: "https://meo.comick.pictures",
		c:        newClient(ComickID, quotaLimiter(comickRequestsPerMinute, time.Minute), opts),
	}
	c.apiURL = c.info.APIURL
	if opts.BaseURL != "" {
		c.apiURL = strings.TrimSuffix(opts.BaseURL, "/")
	}
	return c
}

func (c *Comick) Info() Info { return c.info }

// IDFromSourceURL accepts https://comick.dev/comic/{slug}.
func (c *Comick) IDFromSourceURL(rawURL string) (string, error) {
	return nthPathSegment(rawURL, c.info.APIDomain, 1, "comic")
}

func (c *Comick) URLFromSourceID(id string) string {
	return fmt.Sprintf("https://%s/comic/%s", c.info.APIDomain, id)
}

// Breaker exposes the adapter's circuit breaker for health reporting.
func (c *Comick) Breaker() *circuitbreaker.CircuitBreaker { return c.c.Breaker() }

// comickEnvelope covers both payloads; errors carry statusCode and message.
type comickEnvelope struct {
	StatusCode *int   `json:"statusCode"`
	Message    string `json:"message"`
	Comic      *struct {
		HID      string  `json:"hid"`
		Title    string  `json:"title"`
		Desc     *string `json:"desc"`
		MDCovers []struct {
			B2Key string `json:"b2key"`
		} `json:"md_covers"`
	} `json:"comic"`
	Chapters *[]struct {
		Chap      *string `json:"chap"`
		PublishAt *string `json:"publish_at"`
	} `json:"chapters"`
}

func (c *Comick) request(ctx context.Context, id, path string, query url.Values) (*comickEnvelope, error) {
	if !comickSlug.MatchString(id) {
		return nil, &Error{Kind: KindInvalidSeriesID, Platform: ComickID, SourceID: id}
	}
	res, err := c.c.get(ctx, c.apiURL+path, query)
	if err != nil {
		return nil, err
	}

	var env comickEnvelope
	if err := json.Unmarshal(res.body, &env); err != nil {
		if res.status == http.StatusNotFound {
			return nil, &Error{Kind: KindSeriesNotFound, Platform: ComickID, SourceID: id}
		}
		return nil, &Error{Kind: KindJSONParseFailed, Platform: ComickID, SourceID: id, Err: err}
	}
	if env.StatusCode != nil || res.status >= 400 {
		status := res.status
		if env.StatusCode != nil {
			status = *env.StatusCode
		}
		if status == http.StatusNotFound {
			return nil, &Error{Kind: KindSeriesNotFound, Platform: ComickID, SourceID: id}
		}
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", status)
		}
		return nil, &Error{Kind: KindAPIError, Platform: ComickID, SourceID: id, Message: msg}
	}
	return &env, nil
}

// FetchSource resolves the slug to its hid, title and cover.
func (c *Comick) FetchSource(ctx context.Context, id string) (*SourceInfo, error) {
	var out *SourceInfo
	err := c.c.instrument(ctx, "fetch_source", id, func(ctx context.Context) error {
		env, err := c.request(ctx, id, "/comic/"+id, nil)
		if err != nil {
			return err
		}
		comic := env.Comic
		switch {
		case comic == nil:
			return &Error{Kind: KindMissingField, Platform: ComickID, SourceID: id, Field: "comic"}
		case comic.HID == "":
			return &Error{Kind: KindMissingField, Platform: ComickID, SourceID: id, Field: "comic.hid"}
		case comic.Title == "":
			return &Error{Kind: KindMissingField, Platform: ComickID, SourceID: id, Field: "comic.title"}
		case len(comic.MDCovers) == 0 || comic.MDCovers[0].B2Key == "":
			return &Error{Kind: KindMissingField, Platform: ComickID, SourceID: id, Field: "comic.md_covers.0.b2key"}
		}

		out = &SourceInfo{
			ID:        id,
			ItemsID:   comic.HID,
			Name:      comic.Title,
			SourceURL: c.URLFromSourceID(id),
			ImageURL:  c.coverURL + "/" + comic.MDCovers[0].B2Key,
		}
		if comic.Desc != nil {
			out.Description = *comic.Desc
		}
		return nil
	})
	return out, err
}

// FetchLatest returns the newest English chapter of the comic with hid.
func (c *Comick) FetchLatest(ctx context.Context, hid string) (*LatestItem, error) {
	var out *LatestItem
	err := c.c.instrument(ctx, "fetch_latest", hid, func(ctx context.Context) error {
		env, err := c.request(ctx, hid, "/comic/"+hid+"/chapters", url.Values{"lang": {"en"}})
		if err != nil {
			return err
		}
		if env.Chapters == nil {
			return &Error{Kind: KindMissingField, Platform: ComickID, SourceID: hid, Field: "chapters"}
		}
		if len(*env.Chapters) == 0 {
			return &Error{Kind: KindEmptySeries, Platform: ComickID, SourceID: hid}
		}

		ch := (*env.Chapters)[0]
		if ch.Chap == nil || *ch.Chap == "" {
			return &Error{Kind: KindMissingField, Platform: ComickID, SourceID: hid, Field: "chapters.0.chap"}
		}
		if ch.PublishAt == nil || *ch.PublishAt == "" {
			return &Error{Kind: KindMissingField, Platform: ComickID, SourceID: hid, Field: "chapters.0.publish_at"}
		}
		published, err := time.Parse(time.RFC3339, *ch.PublishAt)
		if err != nil {
			return &Error{Kind: KindInvalidTimestamp, Platform: ComickID, SourceID: hid,
				Field: "chapters.0.publish_at", Message: *ch.PublishAt, Err: err}
		}

		out = &LatestItem{
			Title:     fmt.Sprintf("%s %s", c.info.ItemNoun, *ch.Chap),
			Published: published.UTC(),
		}
		return nil
	})
	return out, err
}
