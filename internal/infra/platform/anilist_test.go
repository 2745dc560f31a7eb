package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]int `json:"variables"`
}

func newAniListServer(t *testing.T, reply func(req graphQLRequest) (int, string)) *AniList {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, body := reply(req)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewAniList(testOptions(srv))
}

func TestAniList_URLRoundTrip(t *testing.T) {
	a := NewAniList(Options{})

	id, err := a.IDFromSourceURL("https://anilist.co/anime/154587/Sousou-no-Frieren/")
	require.NoError(t, err)
	assert.Equal(t, "154587", id)
	assert.Equal(t, "https://anilist.co/anime/154587", a.URLFromSourceID(id))

	_, err = a.IDFromSourceURL("https://anilist.co/manga/30013")
	var perr *URLParseError
	assert.ErrorAs(t, err, &perr)
}

func TestAniList_FetchSource(t *testing.T) {
	a := newAniListServer(t, func(req graphQLRequest) (int, string) {
		assert.Equal(t, 154587, req.Variables["id"])
		assert.Contains(t, req.Query, "coverImage")
		return 200, `{"data":{"Media":{
			"title":{"romaji":"Sousou no Frieren"},
			"description":"The adventure is over.<br><br>\nBut life goes on for <i>Frieren</i>.",
			"coverImage":{"extraLarge":"https://img.anili.st/cover.jpg"}}}}`
	})

	src, err := a.FetchSource(context.Background(), "154587")
	require.NoError(t, err)
	assert.Equal(t, "Sousou no Frieren", src.Name)
	assert.Equal(t, "The adventure is over.\n\nBut life goes on for Frieren.", src.Description)
	assert.Equal(t, "https://img.anili.st/cover.jpg", src.ImageURL)
	assert.Equal(t, "https://anilist.co/anime/154587", src.SourceURL)
}

func TestAniList_FetchLatest(t *testing.T) {
	a := newAniListServer(t, func(req graphQLRequest) (int, string) {
		assert.Contains(t, req.Query, "nextAiringEpisode")
		return 200, `{"data":{"Media":{"status":"RELEASING","nextAiringEpisode":{"airingAt":1700000000,"episode":12}}}}`
	})

	item, err := a.FetchLatest(context.Background(), "154587")
	require.NoError(t, err)
	assert.Equal(t, "Episode 12", item.Title)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), item.Published)
}

func TestAniList_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   Kind
		msg    string
	}{
		{name: "finished", status: 200, body: `{"data":{"Media":{"status":"FINISHED","nextAiringEpisode":null}}}`, kind: KindSourceFinished},
		{name: "not yet released", status: 200, body: `{"data":{"Media":{"status":"NOT_YET_RELEASED","nextAiringEpisode":null}}}`, kind: KindEmptySeries},
		{name: "not found", status: 404, body: `{"errors":[{"message":"Not Found.","status":404}],"data":{"Media":null}}`, kind: KindSeriesNotFound},
		{name: "errors joined", status: 400, body: `{"errors":[{"message":"first","status":400},{"message":"second","status":400}]}`, kind: KindAPIError, msg: "first | second"},
		{name: "missing episode", status: 200, body: `{"data":{"Media":{"nextAiringEpisode":{"airingAt":1700000000}}}}`, kind: KindMissingField},
		{name: "bad airingAt", status: 200, body: `{"data":{"Media":{"nextAiringEpisode":{"airingAt":0,"episode":1}}}}`, kind: KindInvalidTimestamp},
		{name: "garbage", status: 200, body: `not json`, kind: KindJSONParseFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAniListServer(t, func(graphQLRequest) (int, string) { return tt.status, tt.body })

			_, err := a.FetchLatest(context.Background(), "1")
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err), err.Error())
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestAniList_InvalidID(t *testing.T) {
	a := NewAniList(Options{})
	for _, id := range []string{"abc", "", "-4", "99999999999"} {
		_, err := a.FetchSource(context.Background(), id)
		assert.True(t, IsKind(err, KindInvalidSeriesID), id)
	}
}

func TestHTMLToText(t *testing.T) {
	assert.Equal(t, "plain", htmlToText("  plain "))
	assert.Equal(t, "a\nb", htmlToText("a<br>b"))
	assert.Equal(t, "Tom & Jerry", htmlToText("Tom &amp; Jerry"))
	assert.False(t, strings.Contains(htmlToText("<b>bold</b>"), "<"))
}
