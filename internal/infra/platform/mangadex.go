package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"seriesbell/internal/resilience/circuitbreaker"
)

// MangaDexID is the platform id stored in feeds.platform_id.
const MangaDexID = "mangadex"

// MangaDex allows 5 requests per second per client.
const mangaDexRequestsPerSecond = 5

// MangaDex tracks manga chapters through the MangaDex REST API.
type MangaDex struct {
	info     Info
	apiURL   string
	coverURL string
	c        *client
}

// NewMangaDex creates the MangaDex adapter.
func NewMangaDex(opts Options) *MangaDex {
	m := &MangaDex{
		info: Info{
			ID:              MangaDexID,
			Name:            "MangaDex",
			APIHostname:     "api.mangadex.org",
			APIDomain:       "mangadex.org",
			APIURL:          "https://api.mangadex.org",
			Tags:            "series",
			CopyrightNotice: "© MangaDex 2025",
			ItemNoun:        "Chapter",
			// Discord embeds do not render SVG and MangaDex serves no PNG logo.
			LogoURL: "https://cdn.jsdelivr.net/gh/homarr-labs/dashboard-icons/png/manga-dex.png",
		},
		coverURL: "https://uploads.mangadex.org/covers",
		c:        newClient(MangaDexID, quotaLimiter(mangaDexRequestsPerSecond, time.Second), opts),
	}
	m.apiURL = m.info.APIURL
	if opts.BaseURL != "" {
		m.apiURL = strings.TrimSuffix(opts.BaseURL, "/")
	}
	return m
}

func (m *MangaDex) Info() Info { return m.info }

// IDFromSourceURL accepts https://mangadex.org/title/{uuid}[/slug].
func (m *MangaDex) IDFromSourceURL(rawURL string) (string, error) {
	return nthPathSegment(rawURL, m.info.APIDomain, 1, "title")
}

func (m *MangaDex) URLFromSourceID(id string) string {
	return fmt.Sprintf("https://%s/title/%s", m.info.APIDomain, id)
}

type mangaDexError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type mangaDexEnvelope struct {
	Result string          `json:"result"`
	Errors []mangaDexError `json:"errors"`
	Data   json.RawMessage `json:"data"`
}

type mangaDexManga struct {
	ID         string `json:"id"`
	Attributes *struct {
		Title       map[string]string   `json:"title"`
		AltTitles   []map[string]string `json:"altTitles"`
		Description map[string]string   `json:"description"`
	} `json:"attributes"`
	Relationships []struct {
		Type       string `json:"type"`
		Attributes *struct {
			FileName string `json:"fileName"`
		} `json:"attributes"`
	} `json:"relationships"`
}

type mangaDexChapter struct {
	ID         string `json:"id"`
	Attributes *struct {
		Chapter   *string `json:"chapter"`
		PublishAt string  `json:"publishAt"`
	} `json:"attributes"`
}

func (m *MangaDex) validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &Error{Kind: KindInvalidSeriesID, Platform: MangaDexID, SourceID: id}
	}
	return nil
}

// request performs a GET and returns the envelope's data. A 404 maps to
// SeriesNotFound; an errors array maps to APIError with the first detail.
func (m *MangaDex) request(ctx context.Context, id, path string, query url.Values) (json.RawMessage, error) {
	res, err := m.c.get(ctx, m.apiURL+path, query)
	if err != nil {
		return nil, err
	}
	if res.status == http.StatusNotFound {
		return nil, &Error{Kind: KindSeriesNotFound, Platform: MangaDexID, SourceID: id}
	}

	var env mangaDexEnvelope
	if err := json.Unmarshal(res.body, &env); err != nil {
		return nil, &Error{Kind: KindJSONParseFailed, Platform: MangaDexID, SourceID: id, Err: err}
	}
	if len(env.Errors) > 0 {
		msg := env.Errors[0].Detail
		if msg == "" {
			msg = env.Errors[0].Title
		}
		if msg == "" {
			msg = "unknown API error"
		}
		return nil, &Error{Kind: KindAPIError, Platform: MangaDexID, SourceID: id, Message: msg}
	}
	if res.status >= 400 {
		return nil, &Error{Kind: KindAPIError, Platform: MangaDexID, SourceID: id,
			Message: fmt.Sprintf("unexpected status %d", res.status)}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &Error{Kind: KindMissingField, Platform: MangaDexID, SourceID: id, Field: "data"}
	}
	return env.Data, nil
}

// FetchSource resolves title, description and cover art.
func (m *MangaDex) FetchSource(ctx context.Context, id string) (*SourceInfo, error) {
	var out *SourceInfo
	err := m.c.instrument(ctx, "fetch_source", id, func(ctx context.Context) error {
		if err := m.validateID(id); err != nil {
			return err
		}
		data, err := m.request(ctx, id, "/manga/"+id, url.Values{"includes[]": {"cover_art"}})
		if err != nil {
			return err
		}

		var manga mangaDexManga
		if err := json.Unmarshal(data, &manga); err != nil {
			return &Error{Kind: KindJSONParseFailed, Platform: MangaDexID, SourceID: id, Err: err}
		}
		if manga.Attributes == nil {
			return &Error{Kind: KindMissingField, Platform: MangaDexID, SourceID: id, Field: "data.attributes"}
		}

		name, ok := mangaDexTitle(manga.Attributes.Title, manga.Attributes.AltTitles)
		if !ok {
			return &Error{Kind: KindMissingField, Platform: MangaDexID, SourceID: id, Field: "title or altTitles in en/ja-ro/ja"}
		}

		fileName := ""
		for _, rel := range manga.Relationships {
			if rel.Type == "cover_art" && rel.Attributes != nil {
				fileName = rel.Attributes.FileName
				break
			}
		}
		if fileName == "" {
			return &Error{Kind: KindMissingField, Platform: MangaDexID, SourceID: id, Field: "cover_art.attributes.fileName"}
		}

		out = &SourceInfo{
			ID:          id,
			ItemsID:     id,
			Name:        name,
			Description: manga.Attributes.Description["en"],
			SourceURL:   m.URLFromSourceID(id),
			ImageURL:    fmt.Sprintf("%s/%s/%s", m.coverURL, id, fileName),
		}
		return nil
	})
	return out, err
}

// mangaDexTitle picks en > ja-ro > ja, checking the title map before altTitles
// for each language.
func mangaDexTitle(titles map[string]string, alt []map[string]string) (string, bool) {
	for _, lang := range []string{"en", "ja-ro", "ja"} {
		if t := titles[lang]; t != "" {
			return t, true
		}
		for _, a := range alt {
			if t := a[lang]; t != "" {
				return t, true
			}
		}
	}
	return "", false
}

// FetchLatest returns the newest English (or Indonesian) chapter.
func (m *MangaDex) FetchLatest(ctx context.Context, itemsID string) (*LatestItem, error) {
	var out *LatestItem
	err := m.c.instrument(ctx, "fetch_latest", itemsID, func(ctx context.Context) error {
		if err := m.validateID(itemsID); err != nil {
			return err
		}
		query := url.Values{
			"order[createdAt]":     {"desc"},
			"limit":                {"1"},
			"translatedLanguage[]": {"en", "id"},
		}
		data, err := m.request(ctx, itemsID, "/manga/"+itemsID+"/feed", query)
		if err != nil {
			return err
		}

		var chapters []mangaDexChapter
		if err := json.Unmarshal(data, &chapters); err != nil {
			return &Error{Kind: KindJSONParseFailed, Platform: MangaDexID, SourceID: itemsID, Err: err}
		}
		if len(chapters) == 0 {
			return &Error{Kind: KindEmptySeries, Platform: MangaDexID, SourceID: itemsID}
		}

		attr := chapters[0].Attributes
		if attr == nil {
			return &Error{Kind: KindMissingField, Platform: MangaDexID, SourceID: itemsID, Field: "chapter.attributes"}
		}
		if attr.Chapter == nil || *attr.Chapter == "" {
			return &Error{Kind: KindMissingField, Platform: MangaDexID, SourceID: itemsID, Field: "attributes.chapter"}
		}
		if attr.PublishAt == "" {
			return &Error{Kind: KindMissingField, Platform: MangaDexID, SourceID: itemsID, Field: "attributes.publishAt"}
		}
		published, err := time.Parse(time.RFC3339, attr.PublishAt)
		if err != nil {
			return &Error{Kind: KindInvalidTimestamp, Platform: MangaDexID, SourceID: itemsID,
				Field: "attributes.publishAt", Message: attr.PublishAt, Err: err}
		}

		out = &LatestItem{
			Title:     fmt.Sprintf("%s %s", m.info.ItemNoun, *attr.Chapter),
			Published: published.UTC(),
		}
		return nil
	})
	return out, err
}

// Breaker exposes the adapter's circuit breaker for health reporting.
func (m *MangaDex) Breaker() *circuitbreaker.CircuitBreaker { return m.c.Breaker() }
