package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"seriesbell/internal/resilience/circuitbreaker"
)

// AniListID is the platform id stored in feeds.platform_id.
const AniListID = "anilist"

// AniList is currently limited to 30 requests per minute.
// See https://docs.anilist.co/guide/rate-limiting.
const aniListRequestsPerMinute = 30

const aniListSourceQuery = `query ($id: Int) {
  Media(id: $id, type: ANIME) {
    title { romaji }
    description(asHtml: false)
    coverImage { extraLarge }
  }
}`

const aniListLatestQuery = `query ($id: Int) {
  Media(id: $id, type: ANIME) {
    status
    nextAiringEpisode { airingAt episode }
  }
}`

// AniList tracks anime episodes through the AniList GraphQL API.
type AniList struct {
	info   Info
	apiURL string
	c      *client
}

// NewAniList creates the AniList adapter.
func NewAniList(opts Options) *AniList {
	a := &AniList{
		info: Info{
			ID:              AniListID,
			Name:            "AniList Anime",
			APIHostname:     "graphql.anilist.co",
			APIDomain:       "anilist.co",
			APIURL:          "https://graphql.anilist.co",
			Tags:            "series",
			CopyrightNotice: "© AniList LLC 2025",
			ItemNoun:        "Episode",
			LogoURL:         "https://anilist.co/img/icons/android-chrome-192x192.png",
		},
		c: newClient(AniListID,
			quotaLimiter(aniListRequestsPerMinute, time.Minute), opts),
	}
	a.apiURL = a.info.APIURL
	if opts.BaseURL != "" {
		a.apiURL = opts.BaseURL
	}
	return a
}

func (a *AniList) Info() Info { return a.info }

// IDFromSourceURL accepts https://anilist.co/anime/{id}[/slug].
func (a *AniList) IDFromSourceURL(rawURL string) (string, error) {
	return nthPathSegment(rawURL, a.info.APIDomain, 1, "anime")
}

func (a *AniList) URLFromSourceID(id string) string {
	return fmt.Sprintf("https://%s/anime/%s", a.info.APIDomain, id)
}

// Breaker exposes the adapter's circuit breaker for health reporting.
func (a *AniList) Breaker() *circuitbreaker.CircuitBreaker { return a.c.Breaker() }

type aniListError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type aniListMedia struct {
	Status string `json:"status"`
	Title  *struct {
		Romaji *string `json:"romaji"`
	} `json:"title"`
	Description *string `json:"description"`
	CoverImage  *struct {
		ExtraLarge *string `json:"extraLarge"`
	} `json:"coverImage"`
	NextAiringEpisode *struct {
		AiringAt *int64 `json:"airingAt"`
		Episode  *int   `json:"episode"`
	} `json:"nextAiringEpisode"`
}

type aniListResponse struct {
	Data *struct {
		Media *aniListMedia `json:"Media"`
	} `json:"data"`
	Errors []aniListError `json:"errors"`
}

func (a *AniList) validateID(id string) (int, error) {
	n, err := strconv.ParseInt(id, 10, 32)
	if err != nil || n <= 0 {
		return 0, &Error{Kind: KindInvalidSeriesID, Platform: AniListID, SourceID: id}
	}
	return int(n), nil
}

// request posts a GraphQL query and returns the Media object.
// A "Not Found" error maps to SeriesNotFound; other errors are joined with " | ".
func (a *AniList) request(ctx context.Context, id, query string) (*aniListMedia, error) {
	n, err := a.validateID(id)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": map[string]any{"id": n},
	})
	if err != nil {
		return nil, &Error{Kind: KindRequestFailed, Platform: AniListID, SourceID: id, Err: err}
	}

	res, err := a.c.postJSON(ctx, a.apiURL, payload)
	if err != nil {
		return nil, err
	}

	var body aniListResponse
	if err := json.Unmarshal(res.body, &body); err != nil {
		if res.status == http.StatusNotFound {
			return nil, &Error{Kind: KindSeriesNotFound, Platform: AniListID, SourceID: id}
		}
		return nil, &Error{Kind: KindJSONParseFailed, Platform: AniListID, SourceID: id, Err: err}
	}
	if len(body.Errors) > 0 {
		msgs := make([]string, 0, len(body.Errors))
		for _, e := range body.Errors {
			if e.Status == http.StatusNotFound {
				return nil, &Error{Kind: KindSeriesNotFound, Platform: AniListID, SourceID: id}
			}
			msgs = append(msgs, e.Message)
		}
		return nil, &Error{Kind: KindAPIError, Platform: AniListID, SourceID: id, Message: strings.Join(msgs, " | ")}
	}
	if body.Data == nil || body.Data.Media == nil {
		return nil, &Error{Kind: KindSeriesNotFound, Platform: AniListID, SourceID: id}
	}
	return body.Data.Media, nil
}

// FetchSource resolves the romaji title, plain-text description and cover.
func (a *AniList) FetchSource(ctx context.Context, id string) (*SourceInfo, error) {
	var out *SourceInfo
	err := a.c.instrument(ctx, "fetch_source", id, func(ctx context.Context) error {
		media, err := a.request(ctx, id, aniListSourceQuery)
		if err != nil {
			return err
		}
		if media.Title == nil || media.Title.Romaji == nil {
			return &Error{Kind: KindMissingField, Platform: AniListID, SourceID: id, Field: "data.Media.title.romaji"}
		}
		if media.Description == nil {
			return &Error{Kind: KindMissingField, Platform: AniListID, SourceID: id, Field: "data.Media.description"}
		}
		if media.CoverImage == nil || media.CoverImage.ExtraLarge == nil {
			return &Error{Kind: KindMissingField, Platform: AniListID, SourceID: id, Field: "data.Media.coverImage.extraLarge"}
		}

		out = &SourceInfo{
			ID:          id,
			ItemsID:     id,
			Name:        *media.Title.Romaji,
			Description: htmlToText(*media.Description),
			SourceURL:   a.URLFromSourceID(id),
			ImageURL:    *media.CoverImage.ExtraLarge,
		}
		return nil
	})
	return out, err
}

// FetchLatest returns the next scheduled episode. A show with no next
// episode is finished, unless it has not started airing yet.
func (a *AniList) FetchLatest(ctx context.Context, itemsID string) (*LatestItem, error) {
	var out *LatestItem
	err := a.c.instrument(ctx, "fetch_latest", itemsID, func(ctx context.Context) error {
		media, err := a.request(ctx, itemsID, aniListLatestQuery)
		if err != nil {
			return err
		}
		next := media.NextAiringEpisode
		if next == nil {
			if media.Status == "NOT_YET_RELEASED" {
				return &Error{Kind: KindEmptySeries, Platform: AniListID, SourceID: itemsID}
			}
			return &Error{Kind: KindSourceFinished, Platform: AniListID, SourceID: itemsID}
		}
		if next.Episode == nil {
			return &Error{Kind: KindMissingField, Platform: AniListID, SourceID: itemsID, Field: "data.Media.nextAiringEpisode.episode"}
		}
		if next.AiringAt == nil {
			return &Error{Kind: KindMissingField, Platform: AniListID, SourceID: itemsID, Field: "data.Media.nextAiringEpisode.airingAt"}
		}
		if *next.AiringAt <= 0 {
			return &Error{Kind: KindInvalidTimestamp, Platform: AniListID, SourceID: itemsID,
				Field: "data.Media.nextAiringEpisode.airingAt", Message: strconv.FormatInt(*next.AiringAt, 10)}
		}

		out = &LatestItem{
			Title:     fmt.Sprintf("%s %d", a.info.ItemNoun, *next.Episode),
			Published: time.Unix(*next.AiringAt, 0).UTC(),
		}
		return nil
	})
	return out, err
}

// htmlToText flattens the light markup AniList leaves in descriptions
// (<br>, <i>, <b>) into plain text with line breaks.
func htmlToText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	text := doc.Text()
	// "<br><br>" followed by a source newline leaves runs of blank lines.
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}
